package pipeline

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-relay/core"
	"github.com/segmentio/kafka-go"
)

const (
	KindKafka = "kafka"

	KafkaHeaderEventID     = "event-id"
	KafkaHeaderProviderID  = "provider-id"
	KafkaHeaderUserID      = "user-id"
	KafkaHeaderAttempt     = "attempt"
	KafkaHeaderPayloadHash = "payload-sha256"
	KafkaHeaderReceivedAt  = "received-at"
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPipeline publishes each event as one message keyed by scope key, so
// events of a scope land on the same partition in arrival order.
type KafkaPipeline struct {
	Writer MessageWriter
}

// NewKafkaWriter builds a synchronous writer that waits for all in-sync
// replicas before acknowledging.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}
}

func NewKafkaPipeline(writer MessageWriter) (*KafkaPipeline, error) {
	if writer == nil {
		return nil, pipelineError(
			"pipeline: kafka writer is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"pipeline": KindKafka},
		)
	}
	return &KafkaPipeline{Writer: writer}, nil
}

func (p *KafkaPipeline) Deliver(ctx context.Context, event core.ForwardedEvent) error {
	if p == nil || p.Writer == nil {
		return notConfigured(KindKafka)
	}
	key := strings.TrimSpace(event.ScopeKey)
	if key == "" {
		key = event.EventID
	}
	message := kafka.Message{
		Key:   []byte(key),
		Value: append([]byte(nil), event.Payload...),
		Headers: []kafka.Header{
			{Key: KafkaHeaderEventID, Value: []byte(event.EventID)},
			{Key: KafkaHeaderProviderID, Value: []byte(event.ProviderID)},
			{Key: KafkaHeaderUserID, Value: []byte(event.UserID)},
			{Key: KafkaHeaderAttempt, Value: []byte(strconv.Itoa(event.Attempt))},
			{Key: KafkaHeaderPayloadHash, Value: []byte(event.PayloadHash)},
			{Key: KafkaHeaderReceivedAt, Value: []byte(event.ReceivedAt.UTC().Format(time.RFC3339Nano))},
		},
	}
	if err := p.Writer.WriteMessages(ctx, message); err != nil {
		return pipelineWrapError(
			err,
			goerrors.CategoryExternal,
			"pipeline: write kafka message",
			http.StatusBadGateway,
			map[string]any{"pipeline": KindKafka, "event_id": event.EventID},
		)
	}
	return nil
}

// Close closes the writer when it supports closing.
func (p *KafkaPipeline) Close() error {
	if p == nil || p.Writer == nil {
		return nil
	}
	if closer, ok := p.Writer.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

var (
	_ core.DeliveryPipeline = (*KafkaPipeline)(nil)
	_ MessageWriter         = (*kafka.Writer)(nil)
)
