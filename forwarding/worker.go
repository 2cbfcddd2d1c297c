package forwarding

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-webhook-relay/core"
)

// Run starts the worker pool and the recovery sweep and blocks until ctx is
// cancelled. Attempts in progress at shutdown finish their state writes.
func (e *Engine) Run(ctx context.Context) error {
	if _, err := e.Recover(ctx); err != nil {
		e.observer.Error(ctx, "initial forwarding sweep failed", map[string]any{"error": err.Error()})
	}

	var wg sync.WaitGroup
	for worker := 0; worker < e.cfg.Workers; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.work(ctx)
		}()
	}

	ticker := time.NewTicker(e.cfg.SweepInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.stopTimers()
			wg.Wait()
			return nil
		case <-ticker.C:
			if _, err := e.Recover(ctx); err != nil {
				e.observer.Error(ctx, "forwarding sweep failed", map[string]any{"error": err.Error()})
			}
		}
	}
}

func (e *Engine) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case eventID := <-e.queue:
			if _, err := e.Attempt(ctx, eventID); err != nil {
				e.observer.Error(ctx, "forwarding attempt failed to persist", map[string]any{
					"event_id": eventID,
					"error":    err.Error(),
				})
			}
		}
	}
}

// Recover lists rows owed an attempt and re-enqueues them. In-flight rows
// whose lease expired belong to a crashed attempt; they are moved to
// retrying, or to failed when the attempt budget is spent, before being
// re-enqueued.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	startedAt := time.Now()
	current := e.clock()
	due, err := e.store.ListDue(ctx, core.DueQuery{
		Now:                current,
		LeaseExpiredBefore: current.Add(-e.cfg.Lease()),
		Limit:              e.cfg.SweepBatchSize,
	})
	if err != nil {
		e.observer.Observe(ctx, startedAt, "forward_sweep", err, nil)
		return 0, err
	}

	enqueued := 0
	var firstErr error
	for _, state := range due {
		if e.busy(state.EventID) {
			continue
		}
		if state.Status == core.ForwardingInFlight {
			released, releaseErr := e.releaseAbandoned(ctx, state, current)
			if releaseErr != nil {
				if core.IsTransitionConflict(releaseErr) {
					continue
				}
				if firstErr == nil {
					firstErr = releaseErr
				}
				continue
			}
			if released.Terminal() {
				continue
			}
		}
		if err := e.Enqueue(ctx, state.EventID); err != nil && firstErr == nil {
			firstErr = err
		}
		enqueued++
	}
	e.observer.Observe(ctx, startedAt, "forward_sweep", firstErr, map[string]any{
		"due":      len(due),
		"enqueued": enqueued,
	})
	return enqueued, firstErr
}

func (e *Engine) releaseAbandoned(ctx context.Context, state core.ForwardingState, at time.Time) (core.ForwardingState, error) {
	transition := core.Transition{
		EventID:      state.EventID,
		From:         core.ForwardingInFlight,
		FromAttempts: state.AttemptCount,
		AttemptCount: state.AttemptCount,
		LastError:    abandonedAttemptError,
		At:           at,
	}
	if state.AttemptCount >= e.cfg.MaxAttempts {
		transition.To = core.ForwardingFailed
	} else {
		next := at
		transition.To = core.ForwardingRetrying
		transition.NextAttemptAt = &next
	}
	return e.store.Transition(ctx, transition)
}
