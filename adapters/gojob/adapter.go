package gojob

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-webhook-relay/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

const (
	JobIDForward      = "relay.forward"
	ScriptPathForward = "relay.forward"

	DedupPolicyDrop = "drop"
)

const (
	paramEventID     = "event_id"
	paramProviderID  = "provider_id"
	paramUserID      = "user_id"
	paramScopeKey    = "scope_key"
	paramPayloadHash = "payload_hash"
	paramPayload     = "payload"
	paramReceivedAt  = "received_at"
	paramAttempt     = "attempt"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// ToExecutionMessage maps a forwarded event to a go-job message. The
// idempotency key pins one queued job per forwarding attempt.
func ToExecutionMessage(event core.ForwardedEvent) *job.ExecutionMessage {
	eventID := strings.TrimSpace(event.EventID)
	return &job.ExecutionMessage{
		JobID:      JobIDForward,
		ScriptPath: ScriptPathForward,
		Parameters: map[string]any{
			paramEventID:     eventID,
			paramProviderID:  strings.TrimSpace(event.ProviderID),
			paramUserID:      strings.TrimSpace(event.UserID),
			paramScopeKey:    strings.TrimSpace(event.ScopeKey),
			paramPayloadHash: strings.TrimSpace(event.PayloadHash),
			paramPayload:     base64.StdEncoding.EncodeToString(event.Payload),
			paramReceivedAt:  event.ReceivedAt.UTC().Format(time.RFC3339Nano),
			paramAttempt:     event.Attempt,
		},
		IdempotencyKey: eventID + ":" + strconv.Itoa(event.Attempt),
		DedupPolicy:    job.DeduplicationPolicy(DedupPolicyDrop),
	}
}

// FromExecutionMessage rebuilds the forwarded event carried by a go-job
// message. Parameters may have passed through a JSON round trip, so numeric
// values are accepted as any number type.
func FromExecutionMessage(msg *job.ExecutionMessage) (core.ForwardedEvent, error) {
	if msg == nil {
		return core.ForwardedEvent{}, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDForward {
		return core.ForwardedEvent{}, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	params := msg.Parameters
	event := core.ForwardedEvent{
		EventID:     stringParam(params, paramEventID),
		ProviderID:  stringParam(params, paramProviderID),
		UserID:      stringParam(params, paramUserID),
		ScopeKey:    stringParam(params, paramScopeKey),
		PayloadHash: stringParam(params, paramPayloadHash),
		Attempt:     intParam(params, paramAttempt),
	}
	if event.EventID == "" {
		return core.ForwardedEvent{}, fmt.Errorf("gojob: message is missing %s", paramEventID)
	}
	payload, err := base64.StdEncoding.DecodeString(stringParam(params, paramPayload))
	if err != nil {
		return core.ForwardedEvent{}, fmt.Errorf("gojob: decode payload for %s: %w", event.EventID, err)
	}
	event.Payload = payload
	if raw := stringParam(params, paramReceivedAt); raw != "" {
		receivedAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return core.ForwardedEvent{}, fmt.Errorf("gojob: parse received_at for %s: %w", event.EventID, err)
		}
		event.ReceivedAt = receivedAt.UTC()
	}
	return event, nil
}

// QueuePipeline hands accepted events to a go-job queue. A successful enqueue
// counts as a successful forwarding attempt; the consumer owns delivery from
// that point on.
type QueuePipeline struct {
	enqueuer queue.Enqueuer
}

func NewQueuePipeline(enqueuer queue.Enqueuer) *QueuePipeline {
	return &QueuePipeline{enqueuer: enqueuer}
}

func (p *QueuePipeline) Deliver(ctx context.Context, event core.ForwardedEvent) error {
	if p == nil || p.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if strings.TrimSpace(event.EventID) == "" {
		return fmt.Errorf("gojob: event id is required")
	}
	if err := p.enqueuer.Enqueue(ctx, ToExecutionMessage(event)); err != nil {
		return fmt.Errorf("gojob: enqueue %s: %w", event.EventID, err)
	}
	return nil
}

// Consumer drains relay.forward jobs into a downstream pipeline, acking on
// success and nacking with bounded retry on failure.
type Consumer struct {
	dequeuer   queue.Dequeuer
	downstream core.DeliveryPipeline
	policy     RetryPolicy
	backoff    func(attempt int) time.Duration
	observer   *core.Observer

	mu       sync.Mutex
	failures map[string]int
}

type ConsumerOption func(*Consumer)

func WithBackoff(fn func(attempt int) time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if fn != nil {
			c.backoff = fn
		}
	}
}

func WithObserver(observer *core.Observer) ConsumerOption {
	return func(c *Consumer) {
		if observer != nil {
			c.observer = observer
		}
	}
}

func NewConsumer(dequeuer queue.Dequeuer, downstream core.DeliveryPipeline, policy RetryPolicy, opts ...ConsumerOption) *Consumer {
	consumer := &Consumer{
		dequeuer:   dequeuer,
		downstream: downstream,
		policy:     policy,
		backoff:    func(int) time.Duration { return time.Second },
		observer:   core.NewObserver(nil, nil),
		failures:   map[string]int{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(consumer)
		}
	}
	return consumer
}

// ProcessNext dequeues one message and settles it. Malformed messages are
// dead-lettered. Failures are counted per idempotency key so the retry
// policy bounds redeliveries of the same job.
func (c *Consumer) ProcessNext(ctx context.Context) error {
	if c == nil || c.dequeuer == nil || c.downstream == nil {
		return fmt.Errorf("gojob: consumer is not configured")
	}
	delivery, err := c.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}
	event, err := FromExecutionMessage(delivery.Message())
	if err != nil {
		c.observer.Warn(ctx, "relay.gojob.malformed_message", map[string]any{"error": err.Error()})
		return delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: err.Error()})
	}

	key := delivery.Message().IdempotencyKey
	if err := c.downstream.Deliver(ctx, event); err != nil {
		attempt := c.recordFailure(key)
		opts := c.policy.NormalizeAttempt(queue.NackOptions{
			Delay:   c.backoff(attempt),
			Requeue: true,
			Reason:  err.Error(),
		}, attempt)
		c.observer.Warn(ctx, "relay.gojob.delivery_failed", map[string]any{
			"event_id":    event.EventID,
			"attempt":     attempt,
			"requeue":     opts.Requeue,
			"dead_letter": opts.DeadLetter,
			"error":       err.Error(),
		})
		if !opts.Requeue {
			c.clearFailures(key)
		}
		return delivery.Nack(ctx, opts)
	}
	c.clearFailures(key)
	return delivery.Ack(ctx)
}

func (c *Consumer) recordFailure(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[key]++
	return c.failures[key]
}

func (c *Consumer) clearFailures(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.failures, key)
}

// Run processes messages until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := c.ProcessNext(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.observer.Error(ctx, "relay.gojob.process_failed", map[string]any{"error": err.Error()})
		}
	}
}

func stringParam(params map[string]any, key string) string {
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	if text, ok := value.(string); ok {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func intParam(params map[string]any, key string) int {
	switch value := params[key].(type) {
	case int:
		return value
	case int32:
		return int(value)
	case int64:
		return int(value)
	case float64:
		return int(value)
	case float32:
		return int(value)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

var _ core.DeliveryPipeline = (*QueuePipeline)(nil)
