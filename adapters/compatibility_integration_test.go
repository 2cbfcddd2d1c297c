package adapters_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	relay "github.com/goliatone/go-webhook-relay"
	"github.com/goliatone/go-webhook-relay/adapters/gojob"
	"github.com/goliatone/go-webhook-relay/core"
	"github.com/goliatone/go-webhook-relay/webhooks"
)

func TestRelayForwardsThroughGoJobQueue(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	jobs := &memoryQueue{}

	cfg := relay.DefaultConfig()
	cfg.Signature.Secrets = []core.SecretConfig{{ID: "k1", Secret: "compat-secret"}}
	svc, err := relay.New(cfg,
		relay.WithPipeline(gojob.NewQueuePipeline(jobs)),
		relay.WithClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}

	body := []byte(`{"order":"o_1"}`)
	if _, err := svc.Ingest(ctx, core.IngestRequest{
		ProviderID: "shop",
		UserID:     "usr_1",
		Headers: webhooks.SignedHeaders("evt_job", strconv.FormatInt(now.Unix(), 10),
			webhooks.Sign([]byte("compat-secret"), "evt_job", now, body)),
		Body: body,
	}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	state, err := svc.Engine().Attempt(ctx, "evt_job")
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if state.Status != core.ForwardingDelivered {
		t.Fatalf("expected enqueue to count as delivered, got %s", state.Status)
	}
	if jobs.len() != 1 {
		t.Fatalf("expected one queued job, got %d", jobs.len())
	}

	var received []core.ForwardedEvent
	consumer := gojob.NewConsumer(jobs, core.DeliveryPipelineFunc(func(_ context.Context, event core.ForwardedEvent) error {
		received = append(received, event)
		return nil
	}), gojob.RetryPolicy{MaxAttempts: 3})
	if err := consumer.ProcessNext(ctx); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(received) != 1 || received[0].EventID != "evt_job" || string(received[0].Payload) != string(body) {
		t.Fatalf("unexpected consumed events %#v", received)
	}
	if received[0].ScopeKey != "shop:usr_1" {
		t.Fatalf("expected scope key to travel with the job, got %q", received[0].ScopeKey)
	}
	if jobs.acked != 1 {
		t.Fatalf("expected job to be acked, got %d", jobs.acked)
	}
}

type memoryQueue struct {
	mu       sync.Mutex
	messages []*job.ExecutionMessage
	acked    int
}

func (q *memoryQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, msg)
	return nil
}

func (q *memoryQueue) Dequeue(context.Context) (queue.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.messages) == 0 {
		return nil, nil
	}
	msg := q.messages[0]
	q.messages = q.messages[1:]
	return &memoryDelivery{queue: q, msg: msg}, nil
}

func (q *memoryQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

type memoryDelivery struct {
	queue *memoryQueue
	msg   *job.ExecutionMessage
}

func (d *memoryDelivery) Message() *job.ExecutionMessage { return d.msg }

func (d *memoryDelivery) Ack(context.Context) error {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	d.queue.acked++
	return nil
}

func (d *memoryDelivery) Nack(ctx context.Context, opts queue.NackOptions) error {
	if opts.Requeue {
		return d.queue.Enqueue(ctx, d.msg)
	}
	return nil
}
