package forwarding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-webhook-relay/core"
	"github.com/goliatone/go-webhook-relay/webhooks"
)

const abandonedAttemptError = "forwarding attempt lease expired"

type EventReader interface {
	Get(ctx context.Context, eventID string) (core.WebhookEvent, error)
}

type Timer interface {
	Stop() bool
}

type AfterFunc func(delay time.Duration, fn func()) Timer

type Option func(*Engine)

func WithObserver(observer *core.Observer) Option {
	return func(e *Engine) {
		if observer != nil {
			e.observer = observer
		}
	}
}

func WithRetryPolicy(policy webhooks.RetryPolicy) Option {
	return func(e *Engine) {
		if policy != nil {
			e.retry = policy
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithAfterFunc(after AfterFunc) Option {
	return func(e *Engine) {
		if after != nil {
			e.afterFunc = after
		}
	}
}

type Engine struct {
	store    core.ForwardingStore
	events   EventReader
	pipeline core.DeliveryPipeline
	cfg      core.ForwardingConfig
	retry    webhooks.RetryPolicy
	observer *core.Observer
	now      func() time.Time

	afterFunc AfterFunc
	queue     chan string

	mu       sync.Mutex
	inflight map[string]struct{}
	timers   map[string]Timer
}

func NewEngine(
	store core.ForwardingStore,
	events EventReader,
	pipeline core.DeliveryPipeline,
	cfg core.ForwardingConfig,
	opts ...Option,
) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("forwarding: store is required")
	}
	if events == nil {
		return nil, fmt.Errorf("forwarding: event reader is required")
	}
	if pipeline == nil {
		return nil, fmt.Errorf("forwarding: delivery pipeline is required")
	}
	defaults := core.DefaultConfig().Forwarding
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.AttemptTimeoutMS <= 0 {
		cfg.AttemptTimeoutMS = defaults.AttemptTimeoutMS
	}
	if cfg.LeaseMS <= cfg.AttemptTimeoutMS {
		cfg.LeaseMS = cfg.AttemptTimeoutMS * 2
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.SweepIntervalMS <= 0 {
		cfg.SweepIntervalMS = defaults.SweepIntervalMS
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = defaults.SweepBatchSize
	}

	engine := &Engine{
		store:    store,
		events:   events,
		pipeline: pipeline,
		cfg:      cfg,
		retry:    webhooks.RetryPolicyFromConfig(cfg),
		observer: core.NewObserver(nil, nil),
		now: func() time.Time {
			return time.Now().UTC()
		},
		afterFunc: func(delay time.Duration, fn func()) Timer {
			return time.AfterFunc(delay, fn)
		},
		queue:    make(chan string, cfg.QueueSize),
		inflight: map[string]struct{}{},
		timers:   map[string]Timer{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(engine)
		}
	}
	return engine, nil
}

// Initialize creates the queued forwarding row for an accepted event. It is
// idempotent: an existing row is returned unchanged.
func (e *Engine) Initialize(ctx context.Context, event core.WebhookEvent) (core.ForwardingState, bool, error) {
	if event.Outcome != core.OutcomeAccepted {
		return core.ForwardingState{}, false, core.BadInputError("forwarding: only accepted events are forwarded", map[string]any{
			"event_id": event.EventID,
			"outcome":  string(event.Outcome),
		})
	}
	current := e.clock()
	received := event.ReceivedAt
	if received.IsZero() {
		received = current
	}
	state, created, err := e.store.Initialize(ctx, core.ForwardingState{
		EventID:    event.EventID,
		ScopeKey:   event.ScopeKey,
		ProviderID: event.ProviderID,
		Status:     core.ForwardingQueued,
		ReceivedAt: received.UTC(),
		CreatedAt:  current,
		UpdatedAt:  current,
	})
	if err != nil {
		return core.ForwardingState{}, false, err
	}
	return state, created, nil
}

// Enqueue hands an event id to the worker pool. A full queue is not an
// error: the row stays due in the store and the recovery sweep picks it up.
func (e *Engine) Enqueue(ctx context.Context, eventID string) error {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return core.BadInputError("forwarding: event id is required", nil)
	}
	select {
	case e.queue <- eventID:
	default:
		e.observer.Warn(ctx, "forwarding queue full, deferring to sweep", map[string]any{"event_id": eventID})
	}
	return nil
}

// Attempt runs at most one delivery attempt for the event. Concurrent or
// premature triggers observe the current state and return it untouched.
// Delivery failures are absorbed into the state machine; the returned error
// reports store failures only.
func (e *Engine) Attempt(ctx context.Context, eventID string) (core.ForwardingState, error) {
	eventID = strings.TrimSpace(eventID)
	if !e.acquire(eventID) {
		return e.store.Get(ctx, eventID)
	}
	defer e.release(eventID)

	state, err := e.store.Get(ctx, eventID)
	if err != nil {
		return core.ForwardingState{}, err
	}
	if !state.Due(e.clock()) {
		return state, nil
	}

	started, err := e.store.Transition(ctx, core.Transition{
		EventID:      eventID,
		From:         state.Status,
		FromAttempts: state.AttemptCount,
		To:           core.ForwardingInFlight,
		AttemptCount: state.AttemptCount + 1,
		At:           e.clock(),
	})
	if err != nil {
		if core.IsTransitionConflict(err) {
			return e.store.Get(ctx, eventID)
		}
		return state, err
	}

	startedAt := time.Now()
	deliverErr := e.deliver(ctx, started)
	persistCtx := context.WithoutCancel(ctx)
	final, err := e.settle(persistCtx, started, deliverErr)

	fields := map[string]any{
		"event_id":          eventID,
		"provider_id":       started.ProviderID,
		"scope_key":         started.ScopeKey,
		"attempt":           started.AttemptCount,
		"forwarding_status": string(final.Status),
	}
	observed := err
	if observed == nil && deliverErr != nil {
		observed = core.TransientForwardingError(eventID, started.AttemptCount, deliverErr)
	}
	e.observer.Observe(ctx, startedAt, "forward_attempt", observed, fields)
	if err != nil {
		return final, err
	}

	if final.Status == core.ForwardingRetrying && final.NextAttemptAt != nil {
		e.schedule(eventID, final.NextAttemptAt.Sub(e.clock()))
	}
	if final.Status == core.ForwardingFailed {
		e.observer.Error(ctx, "forwarding exhausted", map[string]any{
			"event_id": eventID,
			"error":    core.ForwardingExhaustedError(eventID, final.AttemptCount, deliverErr).Error(),
		})
	}
	return final, nil
}

func (e *Engine) deliver(ctx context.Context, state core.ForwardingState) error {
	event, err := e.events.Get(ctx, state.EventID)
	if err != nil {
		return fmt.Errorf("forwarding: load event: %w", err)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout())
	defer cancel()
	if err := e.pipeline.Deliver(attemptCtx, event.Forwarded(state.AttemptCount)); err != nil {
		return err
	}
	if err := attemptCtx.Err(); err != nil {
		return err
	}
	return nil
}

// settle persists the outcome of an in-flight attempt.
func (e *Engine) settle(ctx context.Context, started core.ForwardingState, deliverErr error) (core.ForwardingState, error) {
	transition := core.Transition{
		EventID:      started.EventID,
		From:         core.ForwardingInFlight,
		FromAttempts: started.AttemptCount,
		AttemptCount: started.AttemptCount,
		At:           e.clock(),
	}
	switch {
	case deliverErr == nil:
		transition.To = core.ForwardingDelivered
	case started.AttemptCount >= e.cfg.MaxAttempts:
		transition.To = core.ForwardingFailed
		transition.LastError = errorText(deliverErr)
	default:
		next := transition.At.Add(e.retry.NextDelay(started.AttemptCount))
		transition.To = core.ForwardingRetrying
		transition.LastError = errorText(deliverErr)
		transition.NextAttemptAt = &next
	}
	final, err := e.store.Transition(ctx, transition)
	if err != nil {
		return started, err
	}
	return final, nil
}

// Resume re-enqueues a non-terminal event and reports its current state.
func (e *Engine) Resume(ctx context.Context, eventID string) (core.ForwardingState, error) {
	state, err := e.store.Get(ctx, eventID)
	if err != nil {
		return core.ForwardingState{}, err
	}
	if state.Terminal() || state.Status == core.ForwardingInFlight {
		return state, nil
	}
	if err := e.Enqueue(ctx, state.EventID); err != nil {
		return state, err
	}
	return state, nil
}

func (e *Engine) Get(ctx context.Context, eventID string) (core.ForwardingState, error) {
	return e.store.Get(ctx, eventID)
}

func (e *Engine) acquire(eventID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[eventID]; busy {
		return false
	}
	e.inflight[eventID] = struct{}{}
	return true
}

func (e *Engine) release(eventID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, eventID)
}

func (e *Engine) busy(eventID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.inflight[eventID]
	return ok
}

func (e *Engine) schedule(eventID string, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.timers[eventID]; ok {
		existing.Stop()
	}
	e.timers[eventID] = e.afterFunc(delay, func() {
		e.mu.Lock()
		delete(e.timers, eventID)
		e.mu.Unlock()
		_ = e.Enqueue(context.Background(), eventID)
	})
}

func (e *Engine) stopTimers() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, timer := range e.timers {
		timer.Stop()
		delete(e.timers, id)
	}
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "forwarding attempt timed out: " + err.Error()
	}
	return err.Error()
}

var _ core.ForwardingScheduler = (*Engine)(nil)
