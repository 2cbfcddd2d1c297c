package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

type VerificationResult string

const (
	VerificationValid            VerificationResult = "valid"
	VerificationInvalidSignature VerificationResult = "invalid_signature"
	VerificationStaleTimestamp   VerificationResult = "stale_timestamp"
)

func (v VerificationResult) Valid() bool {
	return v == VerificationValid
}

type EventOutcome string

const (
	OutcomeAccepted EventOutcome = "accepted"
	OutcomeRejected EventOutcome = "rejected"
	OutcomeConflict EventOutcome = "conflict"
)

type ClaimStatus string

const (
	ClaimNew           ClaimStatus = "new"
	ClaimDuplicateSame ClaimStatus = "duplicate_same"
	ClaimConflict      ClaimStatus = "conflict"
)

type ForwardingStatus string

const (
	ForwardingQueued    ForwardingStatus = "queued"
	ForwardingInFlight  ForwardingStatus = "forwarding"
	ForwardingRetrying  ForwardingStatus = "retrying"
	ForwardingDelivered ForwardingStatus = "delivered"
	ForwardingFailed    ForwardingStatus = "failed"
)

// WebhookEvent is the ledger row recorded on first sight of an event id.
type WebhookEvent struct {
	EventID            string
	ProviderID         string
	UserID             string
	ScopeKey           string
	PayloadHash        string
	Payload            []byte
	Verification       VerificationResult
	Outcome            EventOutcome
	ResponseStatusCode int
	ReceivedAt         time.Time
}

func (e WebhookEvent) Forwarded(attempt int) ForwardedEvent {
	return ForwardedEvent{
		EventID:     e.EventID,
		ProviderID:  e.ProviderID,
		UserID:      e.UserID,
		ScopeKey:    e.ScopeKey,
		PayloadHash: e.PayloadHash,
		Payload:     append([]byte(nil), e.Payload...),
		ReceivedAt:  e.ReceivedAt,
		Attempt:     attempt,
	}
}

type IntegrationAudit struct {
	AuditID    string
	UserID     string
	ProviderID string
	Action     string
	EventID    string
	CreatedAt  time.Time
}

type ForwardingState struct {
	EventID       string
	ScopeKey      string
	ProviderID    string
	Status        ForwardingStatus
	AttemptCount  int
	LastError     string
	NextAttemptAt *time.Time
	ReceivedAt    time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (s ForwardingState) Terminal() bool {
	return s.Status.Terminal()
}

// Due reports whether an attempt may start for the state at the given time.
func (s ForwardingState) Due(at time.Time) bool {
	switch s.Status {
	case ForwardingQueued:
		return true
	case ForwardingRetrying:
		return s.NextAttemptAt == nil || !s.NextAttemptAt.After(at)
	default:
		return false
	}
}

type DeliveryProjection struct {
	ScopeKey       string
	Status         ForwardingStatus
	LastEventID    string
	LastReceivedAt time.Time
	LastUpdatedAt  time.Time
}

type ClaimInput struct {
	EventID            string
	ProviderID         string
	UserID             string
	ScopeKey           string
	PayloadHash        string
	Payload            []byte
	Verification       VerificationResult
	Outcome            EventOutcome
	ResponseStatusCode int
	ReceivedAt         time.Time
}

func (in ClaimInput) Event() WebhookEvent {
	return WebhookEvent{
		EventID:            strings.TrimSpace(in.EventID),
		ProviderID:         strings.TrimSpace(in.ProviderID),
		UserID:             strings.TrimSpace(in.UserID),
		ScopeKey:           strings.TrimSpace(in.ScopeKey),
		PayloadHash:        in.PayloadHash,
		Payload:            append([]byte(nil), in.Payload...),
		Verification:       in.Verification,
		Outcome:            in.Outcome,
		ResponseStatusCode: in.ResponseStatusCode,
		ReceivedAt:         in.ReceivedAt.UTC(),
	}
}

func (in ClaimInput) Validate() error {
	if strings.TrimSpace(in.EventID) == "" {
		return fmt.Errorf("core: event id is required")
	}
	if strings.TrimSpace(in.PayloadHash) == "" {
		return fmt.Errorf("core: payload hash is required")
	}
	switch in.Verification {
	case VerificationValid, VerificationInvalidSignature, VerificationStaleTimestamp:
	default:
		return fmt.Errorf("core: unknown verification result %q", in.Verification)
	}
	switch in.Outcome {
	case OutcomeAccepted, OutcomeRejected:
	default:
		return fmt.Errorf("core: claim outcome must be accepted or rejected, got %q", in.Outcome)
	}
	if in.Outcome == OutcomeAccepted && !in.Verification.Valid() {
		return fmt.Errorf("core: only verified events can be accepted")
	}
	return nil
}

type ClaimResult struct {
	Status ClaimStatus
	// Event is the ledger row as stored, which for duplicates is the row
	// written by the first observation.
	Event WebhookEvent
}

// ClassifyClaim resolves a lost insert race against the stored row.
func ClassifyClaim(existing WebhookEvent, payloadHash string) ClaimStatus {
	if existing.PayloadHash == payloadHash {
		return ClaimDuplicateSame
	}
	return ClaimConflict
}

type AuditInput struct {
	UserID     string
	ProviderID string
	Action     string
	EventID    string
	CreatedAt  time.Time
}

// Transition is a compare-and-swap update of a forwarding row. The update
// applies only while the stored status and attempt count still match From
// and FromAttempts.
type Transition struct {
	EventID       string
	From          ForwardingStatus
	FromAttempts  int
	To            ForwardingStatus
	AttemptCount  int
	LastError     string
	NextAttemptAt *time.Time
	At            time.Time
}

// ForwardedEvent is the payload handed to the delivery pipeline.
type ForwardedEvent struct {
	EventID     string
	ProviderID  string
	UserID      string
	ScopeKey    string
	PayloadHash string
	Payload     []byte
	ReceivedAt  time.Time
	Attempt     int
}

type IngestRequest struct {
	ProviderID string
	UserID     string
	Headers    map[string]string
	Body       []byte
}

// IngestResponse is the synchronous answer given to the provider. Replays of
// the same event id and payload receive an identical response.
type IngestResponse struct {
	Accepted     bool               `json:"accepted"`
	StatusCode   int                `json:"-"`
	Status       string             `json:"status"`
	EventID      string             `json:"event_id"`
	Outcome      EventOutcome       `json:"outcome"`
	Verification VerificationResult `json:"verification"`
}

type IngestResult struct {
	Response IngestResponse
	Claim    ClaimStatus
}

// PayloadHash returns the hex encoded sha256 digest of the raw body.
func PayloadHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// DefaultScopeKey scopes projections per provider and user.
func DefaultScopeKey(providerID, userID string) string {
	providerID = strings.TrimSpace(strings.ToLower(providerID))
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return providerID
	}
	return providerID + ":" + userID
}
