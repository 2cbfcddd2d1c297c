package memory

import "github.com/goliatone/go-webhook-relay/core"

// NewStores returns a fresh in-process store set.
func NewStores() core.StoreSet {
	forwarding := NewForwardingStore()
	return core.StoreSet{
		Ledger:      NewLedger(),
		Audit:       NewAuditStore(),
		Forwarding:  forwarding,
		Projections: forwarding,
	}
}
