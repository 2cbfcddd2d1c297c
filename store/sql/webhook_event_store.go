package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-webhook-relay/core"
	"github.com/uptrace/bun"
)

// WebhookEventStore is the SQL idempotency ledger. The primary key on
// event_id makes the first insert the only ClaimNew; every later claim reads
// back the stored row and classifies itself against it.
type WebhookEventStore struct {
	db  *bun.DB
	Now func() time.Time
}

func NewWebhookEventStore(db *bun.DB) (*WebhookEventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &WebhookEventStore{db: db}, nil
}

func (s *WebhookEventStore) Claim(ctx context.Context, in core.ClaimInput) (core.ClaimResult, error) {
	if s == nil || s.db == nil {
		return core.ClaimResult{}, fmt.Errorf("sqlstore: webhook event store is not configured")
	}
	if err := in.Validate(); err != nil {
		return core.ClaimResult{}, err
	}
	event := in.Event()
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = s.now()
	}

	record := webhookEventFromDomain(event)
	result, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (event_id) DO NOTHING").
		Exec(ctx)
	if err != nil && !isUniqueViolation(err) {
		return core.ClaimResult{}, err
	}
	if err == nil {
		if affected, rowsErr := result.RowsAffected(); rowsErr == nil && affected == 1 {
			return core.ClaimResult{Status: core.ClaimNew, Event: event}, nil
		}
	}

	existing, err := s.Get(ctx, event.EventID)
	if err != nil {
		return core.ClaimResult{}, fmt.Errorf("sqlstore: read back claimed event %q: %w", event.EventID, err)
	}
	return core.ClaimResult{
		Status: core.ClassifyClaim(existing, event.PayloadHash),
		Event:  existing,
	}, nil
}

func (s *WebhookEventStore) Get(ctx context.Context, eventID string) (core.WebhookEvent, error) {
	if s == nil || s.db == nil {
		return core.WebhookEvent{}, fmt.Errorf("sqlstore: webhook event store is not configured")
	}
	record := &webhookEventRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.event_id = ?", strings.TrimSpace(eventID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.WebhookEvent{}, core.ErrNotFound
		}
		return core.WebhookEvent{}, err
	}
	return webhookEventToDomain(record), nil
}

func (s *WebhookEventStore) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func webhookEventFromDomain(event core.WebhookEvent) *webhookEventRecord {
	return &webhookEventRecord{
		EventID:            event.EventID,
		ProviderID:         event.ProviderID,
		UserID:             event.UserID,
		ScopeKey:           event.ScopeKey,
		PayloadHash:        event.PayloadHash,
		Payload:            append([]byte{}, event.Payload...),
		Verification:       string(event.Verification),
		Outcome:            string(event.Outcome),
		ResponseStatusCode: event.ResponseStatusCode,
		ReceivedAt:         event.ReceivedAt.UTC(),
	}
}

func webhookEventToDomain(record *webhookEventRecord) core.WebhookEvent {
	if record == nil {
		return core.WebhookEvent{}
	}
	return core.WebhookEvent{
		EventID:            record.EventID,
		ProviderID:         record.ProviderID,
		UserID:             record.UserID,
		ScopeKey:           record.ScopeKey,
		PayloadHash:        record.PayloadHash,
		Payload:            append([]byte(nil), record.Payload...),
		Verification:       core.VerificationResult(record.Verification),
		Outcome:            core.EventOutcome(record.Outcome),
		ResponseStatusCode: record.ResponseStatusCode,
		ReceivedAt:         record.ReceivedAt.UTC(),
	}
}
