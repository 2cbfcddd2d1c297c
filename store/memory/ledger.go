package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-webhook-relay/core"
)

type Ledger struct {
	mu     sync.Mutex
	events map[string]core.WebhookEvent
	Now    func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{
		events: map[string]core.WebhookEvent{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (l *Ledger) Claim(_ context.Context, in core.ClaimInput) (core.ClaimResult, error) {
	if l == nil {
		return core.ClaimResult{}, fmt.Errorf("memory: ledger is nil")
	}
	if err := in.Validate(); err != nil {
		return core.ClaimResult{}, err
	}
	event := in.Event()
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = l.now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.events[event.EventID]; ok {
		return core.ClaimResult{
			Status: core.ClassifyClaim(existing, event.PayloadHash),
			Event:  cloneEvent(existing),
		}, nil
	}
	l.events[event.EventID] = event
	return core.ClaimResult{Status: core.ClaimNew, Event: cloneEvent(event)}, nil
}

func (l *Ledger) Get(_ context.Context, eventID string) (core.WebhookEvent, error) {
	if l == nil {
		return core.WebhookEvent{}, fmt.Errorf("memory: ledger is nil")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	event, ok := l.events[strings.TrimSpace(eventID)]
	if !ok {
		return core.WebhookEvent{}, core.ErrNotFound
	}
	return cloneEvent(event), nil
}

// Len reports how many distinct event ids have been claimed.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func (l *Ledger) now() time.Time {
	if l.Now == nil {
		return time.Now().UTC()
	}
	return l.Now().UTC()
}

func cloneEvent(event core.WebhookEvent) core.WebhookEvent {
	event.Payload = append([]byte(nil), event.Payload...)
	return event
}

var _ core.IdempotencyLedger = (*Ledger)(nil)
