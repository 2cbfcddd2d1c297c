package sqlstore

import "github.com/goliatone/go-webhook-relay/core"

var (
	_ core.IdempotencyLedger = (*WebhookEventStore)(nil)
	_ core.AuditStore        = (*AuditStore)(nil)
	_ core.ForwardingStore   = (*ForwardingStore)(nil)
	_ core.ProjectionReader  = (*ForwardingStore)(nil)
	_ ProjectionBackend      = (*ForwardingStore)(nil)
	_ ProjectionBackend      = (*CachedProjectionStore)(nil)

	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
