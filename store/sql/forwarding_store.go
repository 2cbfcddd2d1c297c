package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-webhook-relay/core"
	"github.com/uptrace/bun"
)

const defaultDueLimit = 100

// upsertProjectionQuery keeps one row per scope. A newer (or equal)
// received_at replaces the row; the event already shown always refreshes it.
const upsertProjectionQuery = `
INSERT INTO delivery_projections (scope_key, status, last_event_id, last_received_at, last_updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (scope_key) DO UPDATE SET
	status = excluded.status,
	last_event_id = excluded.last_event_id,
	last_received_at = excluded.last_received_at,
	last_updated_at = excluded.last_updated_at
WHERE delivery_projections.last_event_id = excluded.last_event_id
   OR delivery_projections.last_received_at <= excluded.last_received_at
`

// ForwardingStore persists forwarding rows. Each write runs in a transaction
// that also upserts the delivery projection for the row's scope.
type ForwardingStore struct {
	db *bun.DB
}

func NewForwardingStore(db *bun.DB) (*ForwardingStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &ForwardingStore{db: db}, nil
}

func (s *ForwardingStore) Initialize(ctx context.Context, state core.ForwardingState) (core.ForwardingState, bool, error) {
	if s == nil || s.db == nil {
		return core.ForwardingState{}, false, fmt.Errorf("sqlstore: forwarding store is not configured")
	}
	state.EventID = strings.TrimSpace(state.EventID)
	if state.EventID == "" {
		return core.ForwardingState{}, false, fmt.Errorf("sqlstore: event id is required")
	}
	if state.Status != core.ForwardingQueued {
		return core.ForwardingState{}, false, fmt.Errorf("sqlstore: forwarding rows start queued, got %s", state.Status)
	}

	record := forwardingStateFromDomain(state)
	created := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		result, err := tx.NewInsert().
			Model(record).
			On("CONFLICT (event_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, _ := result.RowsAffected(); affected != 1 {
			return nil
		}
		created = true
		return upsertProjection(ctx, tx, state)
	})
	if err != nil {
		return core.ForwardingState{}, false, err
	}
	if !created {
		existing, err := s.Get(ctx, state.EventID)
		return existing, false, err
	}
	return forwardingStateToDomain(record), true, nil
}

func (s *ForwardingStore) Get(ctx context.Context, eventID string) (core.ForwardingState, error) {
	if s == nil || s.db == nil {
		return core.ForwardingState{}, fmt.Errorf("sqlstore: forwarding store is not configured")
	}
	return getForwardingState(ctx, s.db, strings.TrimSpace(eventID))
}

// Transition applies a compare-and-swap update. The UPDATE is guarded on the
// expected status and attempt count, so a concurrent writer makes it touch
// zero rows and the call returns core.ErrTransitionConflict with the row as
// currently stored.
func (s *ForwardingStore) Transition(ctx context.Context, transition core.Transition) (core.ForwardingState, error) {
	if s == nil || s.db == nil {
		return core.ForwardingState{}, fmt.Errorf("sqlstore: forwarding store is not configured")
	}
	if err := transition.Validate(); err != nil {
		return core.ForwardingState{}, err
	}

	var next core.ForwardingState
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := getForwardingState(ctx, tx, transition.EventID)
		if err != nil {
			return err
		}
		if current.Status != transition.From || current.AttemptCount != transition.FromAttempts {
			next = current
			return core.ErrTransitionConflict
		}
		next = transition.Apply(current)

		result, err := tx.NewUpdate().
			Model((*forwardingStateRecord)(nil)).
			Set("status = ?", string(next.Status)).
			Set("attempt_count = ?", next.AttemptCount).
			Set("last_error = ?", next.LastError).
			Set("next_attempt_at = ?", next.NextAttemptAt).
			Set("updated_at = ?", next.UpdatedAt).
			Where("event_id = ?", transition.EventID).
			Where("status = ?", string(transition.From)).
			Where("attempt_count = ?", transition.FromAttempts).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, _ := result.RowsAffected(); affected != 1 {
			next = current
			return core.ErrTransitionConflict
		}
		return upsertProjection(ctx, tx, next)
	})
	if err != nil {
		if errors.Is(err, core.ErrTransitionConflict) {
			return next, core.ErrTransitionConflict
		}
		return core.ForwardingState{}, err
	}
	return next, nil
}

// ListDue returns queued rows, retrying rows whose next attempt is due, and
// in-flight rows whose lease expired, oldest update first.
func (s *ForwardingStore) ListDue(ctx context.Context, query core.DueQuery) ([]core.ForwardingState, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: forwarding store is not configured")
	}
	limit := query.Limit
	if limit <= 0 {
		limit = defaultDueLimit
	}
	now := query.Now.UTC()
	if query.Now.IsZero() {
		now = time.Now().UTC()
	}

	var records []forwardingStateRecord
	err := s.db.NewSelect().
		Model(&records).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			q = q.Where("?TableAlias.status = ?", string(core.ForwardingQueued)).
				WhereOr(
					"?TableAlias.status = ? AND (?TableAlias.next_attempt_at IS NULL OR ?TableAlias.next_attempt_at <= ?)",
					string(core.ForwardingRetrying),
					now,
				)
			if !query.LeaseExpiredBefore.IsZero() {
				q = q.WhereOr(
					"?TableAlias.status = ? AND ?TableAlias.updated_at < ?",
					string(core.ForwardingInFlight),
					query.LeaseExpiredBefore.UTC(),
				)
			}
			return q
		}).
		OrderExpr("?TableAlias.updated_at ASC, ?TableAlias.event_id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.ForwardingState, 0, len(records))
	for index := range records {
		out = append(out, forwardingStateToDomain(&records[index]))
	}
	return out, nil
}

func (s *ForwardingStore) GetProjection(ctx context.Context, scopeKey string) (core.DeliveryProjection, error) {
	if s == nil || s.db == nil {
		return core.DeliveryProjection{}, fmt.Errorf("sqlstore: forwarding store is not configured")
	}
	record := &deliveryProjectionRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.scope_key = ?", strings.TrimSpace(scopeKey)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.DeliveryProjection{}, core.ErrNotFound
		}
		return core.DeliveryProjection{}, err
	}
	return deliveryProjectionToDomain(record), nil
}

func getForwardingState(ctx context.Context, db bun.IDB, eventID string) (core.ForwardingState, error) {
	record := &forwardingStateRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.event_id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.ForwardingState{}, core.ErrNotFound
		}
		return core.ForwardingState{}, err
	}
	return forwardingStateToDomain(record), nil
}

func upsertProjection(ctx context.Context, db bun.IDB, state core.ForwardingState) error {
	if strings.TrimSpace(state.ScopeKey) == "" {
		return nil
	}
	projection := core.ProjectionFor(state)
	_, err := db.NewRaw(
		upsertProjectionQuery,
		projection.ScopeKey,
		string(projection.Status),
		projection.LastEventID,
		projection.LastReceivedAt,
		projection.LastUpdatedAt,
	).Exec(ctx)
	return err
}

func forwardingStateFromDomain(state core.ForwardingState) *forwardingStateRecord {
	record := &forwardingStateRecord{
		EventID:      state.EventID,
		ScopeKey:     strings.TrimSpace(state.ScopeKey),
		ProviderID:   strings.TrimSpace(state.ProviderID),
		Status:       string(state.Status),
		AttemptCount: state.AttemptCount,
		LastError:    state.LastError,
		ReceivedAt:   state.ReceivedAt.UTC(),
		CreatedAt:    state.CreatedAt.UTC(),
		UpdatedAt:    state.UpdatedAt.UTC(),
	}
	if state.NextAttemptAt != nil {
		next := state.NextAttemptAt.UTC()
		record.NextAttemptAt = &next
	}
	return record
}

func forwardingStateToDomain(record *forwardingStateRecord) core.ForwardingState {
	if record == nil {
		return core.ForwardingState{}
	}
	state := core.ForwardingState{
		EventID:      record.EventID,
		ScopeKey:     record.ScopeKey,
		ProviderID:   record.ProviderID,
		Status:       core.ForwardingStatus(record.Status),
		AttemptCount: record.AttemptCount,
		LastError:    record.LastError,
		ReceivedAt:   record.ReceivedAt.UTC(),
		CreatedAt:    record.CreatedAt.UTC(),
		UpdatedAt:    record.UpdatedAt.UTC(),
	}
	if record.NextAttemptAt != nil {
		next := record.NextAttemptAt.UTC()
		state.NextAttemptAt = &next
	}
	return state
}

func deliveryProjectionToDomain(record *deliveryProjectionRecord) core.DeliveryProjection {
	if record == nil {
		return core.DeliveryProjection{}
	}
	return core.DeliveryProjection{
		ScopeKey:       record.ScopeKey,
		Status:         core.ForwardingStatus(record.Status),
		LastEventID:    record.LastEventID,
		LastReceivedAt: record.LastReceivedAt.UTC(),
		LastUpdatedAt:  record.LastUpdatedAt.UTC(),
	}
}
