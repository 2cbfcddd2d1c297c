// Package redisstore implements the idempotency ledger on Redis.
//
// The ledger row is stored as JSON under one key per event id. SETNX makes
// the first writer the only ClaimNew; losers read the stored row back and
// classify themselves against its payload hash. Keys are written without an
// expiry: a forgotten id would turn the next replay into a second ClaimNew.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-webhook-relay/core"
	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "relay:webhook_event"

// Client is the subset of *redis.Client the ledger uses.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

type Ledger struct {
	client Client
	// KeyPrefix namespaces ledger keys. Defaults to DefaultKeyPrefix.
	KeyPrefix string
	Now       func() time.Time
}

func NewLedger(client Client) (*Ledger, error) {
	if client == nil {
		return nil, fmt.Errorf("redisstore: redis client is required")
	}
	return &Ledger{
		client:    client,
		KeyPrefix: DefaultKeyPrefix,
	}, nil
}

func (l *Ledger) Claim(ctx context.Context, in core.ClaimInput) (core.ClaimResult, error) {
	if l == nil || l.client == nil {
		return core.ClaimResult{}, fmt.Errorf("redisstore: ledger is not configured")
	}
	if err := in.Validate(); err != nil {
		return core.ClaimResult{}, err
	}
	event := in.Event()
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = l.now()
	}
	encoded, err := json.Marshal(eventToRecord(event))
	if err != nil {
		return core.ClaimResult{}, fmt.Errorf("redisstore: encode event %q: %w", event.EventID, err)
	}

	created, err := l.client.SetNX(ctx, l.key(event.EventID), encoded, 0).Result()
	if err != nil {
		return core.ClaimResult{}, fmt.Errorf("redisstore: claim event %q: %w", event.EventID, err)
	}
	if created {
		return core.ClaimResult{Status: core.ClaimNew, Event: event}, nil
	}

	existing, err := l.Get(ctx, event.EventID)
	if err != nil {
		return core.ClaimResult{}, fmt.Errorf("redisstore: read back claimed event %q: %w", event.EventID, err)
	}
	return core.ClaimResult{
		Status: core.ClassifyClaim(existing, event.PayloadHash),
		Event:  existing,
	}, nil
}

func (l *Ledger) Get(ctx context.Context, eventID string) (core.WebhookEvent, error) {
	if l == nil || l.client == nil {
		return core.WebhookEvent{}, fmt.Errorf("redisstore: ledger is not configured")
	}
	raw, err := l.client.Get(ctx, l.key(eventID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.WebhookEvent{}, core.ErrNotFound
		}
		return core.WebhookEvent{}, err
	}
	var record eventRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return core.WebhookEvent{}, fmt.Errorf("redisstore: decode event %q: %w", eventID, err)
	}
	return record.toDomain(), nil
}

func (l *Ledger) key(eventID string) string {
	prefix := strings.TrimSpace(l.KeyPrefix)
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return prefix + ":" + strings.TrimSpace(eventID)
}

func (l *Ledger) now() time.Time {
	if l.Now == nil {
		return time.Now().UTC()
	}
	return l.Now().UTC()
}

type eventRecord struct {
	EventID            string    `json:"event_id"`
	ProviderID         string    `json:"provider_id"`
	UserID             string    `json:"user_id"`
	ScopeKey           string    `json:"scope_key"`
	PayloadHash        string    `json:"payload_hash"`
	Payload            []byte    `json:"payload"`
	Verification       string    `json:"verification"`
	Outcome            string    `json:"outcome"`
	ResponseStatusCode int       `json:"response_status_code"`
	ReceivedAt         time.Time `json:"received_at"`
}

func eventToRecord(event core.WebhookEvent) eventRecord {
	return eventRecord{
		EventID:            event.EventID,
		ProviderID:         event.ProviderID,
		UserID:             event.UserID,
		ScopeKey:           event.ScopeKey,
		PayloadHash:        event.PayloadHash,
		Payload:            event.Payload,
		Verification:       string(event.Verification),
		Outcome:            string(event.Outcome),
		ResponseStatusCode: event.ResponseStatusCode,
		ReceivedAt:         event.ReceivedAt.UTC(),
	}
}

func (r eventRecord) toDomain() core.WebhookEvent {
	return core.WebhookEvent{
		EventID:            r.EventID,
		ProviderID:         r.ProviderID,
		UserID:             r.UserID,
		ScopeKey:           r.ScopeKey,
		PayloadHash:        r.PayloadHash,
		Payload:            append([]byte(nil), r.Payload...),
		Verification:       core.VerificationResult(r.Verification),
		Outcome:            core.EventOutcome(r.Outcome),
		ResponseStatusCode: r.ResponseStatusCode,
		ReceivedAt:         r.ReceivedAt.UTC(),
	}
}

var (
	_ core.IdempotencyLedger = (*Ledger)(nil)
	_ Client                 = (*redis.Client)(nil)
)
