package relay

import (
	"fmt"

	relaycommand "github.com/goliatone/go-webhook-relay/command"
	"github.com/goliatone/go-webhook-relay/core"
	relayquery "github.com/goliatone/go-webhook-relay/query"
)

var errServiceNotConfigured = fmt.Errorf("relay: service is not configured")

type Commands struct {
	ResumeForwarding  *relaycommand.ResumeForwardingCommand
	RecoverForwarding *relaycommand.RecoverForwardingCommand
}

type Queries struct {
	GetDeliveryProjection *relayquery.GetDeliveryProjectionQuery
	GetWebhookEvent       *relayquery.GetWebhookEventQuery
	ListAudit             *relayquery.ListAuditQuery
	GetForwardingState    *relayquery.GetForwardingStateQuery
}

// Facade exposes the relay's operator commands and read queries as
// go-command handlers.
type Facade struct {
	commands Commands
	queries  Queries
}

func NewFacade(forwarder relaycommand.ForwardingService, stores core.StoreSet) (*Facade, error) {
	if forwarder == nil {
		return nil, fmt.Errorf("relay: forwarding service is required")
	}
	if !stores.Complete() {
		return nil, fmt.Errorf("relay: complete store set is required")
	}
	return &Facade{
		commands: Commands{
			ResumeForwarding:  relaycommand.NewResumeForwardingCommand(forwarder),
			RecoverForwarding: relaycommand.NewRecoverForwardingCommand(forwarder),
		},
		queries: Queries{
			GetDeliveryProjection: relayquery.NewGetDeliveryProjectionQuery(stores.Projections),
			GetWebhookEvent:       relayquery.NewGetWebhookEventQuery(stores.Ledger),
			ListAudit:             relayquery.NewListAuditQuery(stores.Audit),
			GetForwardingState:    relayquery.NewGetForwardingStateQuery(stores.Forwarding),
		},
	}, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}
