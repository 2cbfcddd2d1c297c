package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// IdempotencyLedger claims event ids. Claim must be linearizable per event
// id: exactly one caller observes ClaimNew for a given id.
type IdempotencyLedger interface {
	Claim(ctx context.Context, in ClaimInput) (ClaimResult, error)
	Get(ctx context.Context, eventID string) (WebhookEvent, error)
}

type AuditStore interface {
	Append(ctx context.Context, entry IntegrationAudit) (IntegrationAudit, error)
	CountByEvent(ctx context.Context, eventID string) (int, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]IntegrationAudit, error)
}

// ForwardingStore owns forwarding rows and the delivery projection. Every
// write updates both inside one transaction.
type ForwardingStore interface {
	Initialize(ctx context.Context, state ForwardingState) (ForwardingState, bool, error)
	Get(ctx context.Context, eventID string) (ForwardingState, error)
	Transition(ctx context.Context, transition Transition) (ForwardingState, error)
	ListDue(ctx context.Context, query DueQuery) ([]ForwardingState, error)
}

type DueQuery struct {
	Now time.Time
	// LeaseExpiredBefore selects in-flight rows last updated before this
	// instant. Zero disables lease recovery.
	LeaseExpiredBefore time.Time
	Limit              int
}

type ProjectionReader interface {
	GetProjection(ctx context.Context, scopeKey string) (DeliveryProjection, error)
}

// DeliveryPipeline is the internal collaborator accepted events are pushed
// to. Any returned error is treated as transient.
type DeliveryPipeline interface {
	Deliver(ctx context.Context, event ForwardedEvent) error
}

type DeliveryPipelineFunc func(ctx context.Context, event ForwardedEvent) error

func (f DeliveryPipelineFunc) Deliver(ctx context.Context, event ForwardedEvent) error {
	return f(ctx, event)
}

type SignatureVerifier interface {
	Verify(ctx context.Context, envelope SignedEnvelope) (VerificationResult, error)
}

// SignedEnvelope carries the signed parts of an inbound request.
type SignedEnvelope struct {
	MessageID  string
	Timestamp  string
	Signatures []string
	Payload    []byte
}

// ForwardingScheduler creates forwarding rows for accepted events and
// accepts event ids that are ready for an attempt. Initialize reports
// whether the row was created by this call.
type ForwardingScheduler interface {
	Initialize(ctx context.Context, event WebhookEvent) (ForwardingState, bool, error)
	Enqueue(ctx context.Context, eventID string) error
}

// AuditRecorder writes the single audit row of an event. Recorded reports
// whether that row already exists.
type AuditRecorder interface {
	Record(ctx context.Context, in AuditInput) (IntegrationAudit, error)
	Recorded(ctx context.Context, eventID string) (bool, error)
}

type ScopeResolver func(providerID, userID string) string

// StoreSet groups the persistence collaborators a relay runs on.
type StoreSet struct {
	Ledger      IdempotencyLedger
	Audit       AuditStore
	Forwarding  ForwardingStore
	Projections ProjectionReader
}

func (s StoreSet) Complete() bool {
	return s.Ledger != nil && s.Audit != nil && s.Forwarding != nil && s.Projections != nil
}

type StoreProvider interface {
	Stores() StoreSet
}

// RepositoryStoreFactory builds stores lazily from a persistence client.
type RepositoryStoreFactory interface {
	StoreProvider
	BuildStores(persistenceClient any) error
}
