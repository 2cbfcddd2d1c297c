// Package audit records actions taken against user-scoped integrations.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-webhook-relay/core"
	"github.com/google/uuid"
)

// Recorder appends audit rows. It never updates or deletes existing rows.
type Recorder struct {
	Store core.AuditStore
	NewID func() string
	Now   func() time.Time
}

func NewRecorder(store core.AuditStore) *Recorder {
	return &Recorder{
		Store: store,
		NewID: uuid.NewString,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (r *Recorder) Record(ctx context.Context, in core.AuditInput) (core.IntegrationAudit, error) {
	if r == nil || r.Store == nil {
		return core.IntegrationAudit{}, fmt.Errorf("audit: store is required")
	}
	entry := core.IntegrationAudit{
		UserID:     strings.TrimSpace(in.UserID),
		ProviderID: strings.TrimSpace(strings.ToLower(in.ProviderID)),
		Action:     strings.TrimSpace(in.Action),
		EventID:    strings.TrimSpace(in.EventID),
		CreatedAt:  in.CreatedAt,
	}
	if entry.ProviderID == "" {
		return core.IntegrationAudit{}, core.BadInputError("audit: provider is required", nil)
	}
	if entry.Action == "" {
		return core.IntegrationAudit{}, core.BadInputError("audit: action is required", nil)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	entry.AuditID = r.newID()

	stored, err := r.Store.Append(ctx, entry)
	if err != nil {
		return core.IntegrationAudit{}, err
	}
	return stored, nil
}

func (r *Recorder) Recorded(ctx context.Context, eventID string) (bool, error) {
	if r == nil || r.Store == nil {
		return false, fmt.Errorf("audit: store is required")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return false, core.BadInputError("audit: event id is required", nil)
	}
	count, err := r.Store.CountByEvent(ctx, eventID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Recorder) newID() string {
	if r.NewID == nil {
		return uuid.NewString()
	}
	return r.NewID()
}

func (r *Recorder) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

var _ core.AuditRecorder = (*Recorder)(nil)
