package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type webhookEventRecord struct {
	bun.BaseModel `bun:"table:webhook_events,alias:we"`

	EventID            string    `bun:"event_id,pk"`
	ProviderID         string    `bun:"provider_id,notnull"`
	UserID             string    `bun:"user_id,notnull"`
	ScopeKey           string    `bun:"scope_key,notnull"`
	PayloadHash        string    `bun:"payload_hash,notnull"`
	Payload            []byte    `bun:"payload,notnull"`
	Verification       string    `bun:"verification,notnull"`
	Outcome            string    `bun:"outcome,notnull"`
	ResponseStatusCode int       `bun:"response_status_code,notnull"`
	ReceivedAt         time.Time `bun:"received_at,notnull"`
}

type integrationAuditRecord struct {
	bun.BaseModel `bun:"table:integration_audits,alias:ia"`

	ID         string    `bun:"id,pk"`
	UserID     string    `bun:"user_id,notnull"`
	ProviderID string    `bun:"provider_id,notnull"`
	Action     string    `bun:"action,notnull"`
	EventID    *string   `bun:"event_id"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type forwardingStateRecord struct {
	bun.BaseModel `bun:"table:forwarding_states,alias:fs"`

	EventID       string     `bun:"event_id,pk"`
	ScopeKey      string     `bun:"scope_key,notnull"`
	ProviderID    string     `bun:"provider_id,notnull"`
	Status        string     `bun:"status,notnull"`
	AttemptCount  int        `bun:"attempt_count,notnull"`
	LastError     string     `bun:"last_error,notnull"`
	NextAttemptAt *time.Time `bun:"next_attempt_at,nullzero"`
	ReceivedAt    time.Time  `bun:"received_at,notnull"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type deliveryProjectionRecord struct {
	bun.BaseModel `bun:"table:delivery_projections,alias:dp"`

	ScopeKey       string    `bun:"scope_key,pk"`
	Status         string    `bun:"status,notnull"`
	LastEventID    string    `bun:"last_event_id,notnull"`
	LastReceivedAt time.Time `bun:"last_received_at,notnull"`
	LastUpdatedAt  time.Time `bun:"last_updated_at,notnull"`
}
