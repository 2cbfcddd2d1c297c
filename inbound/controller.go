package inbound

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-webhook-relay/core"
	"github.com/goliatone/go-webhook-relay/webhooks"
)

const (
	ResponseReceived = "received"
	ResponseRejected = "rejected"
	ResponseConflict = "conflict"
)

type Controller struct {
	Verifier          core.SignatureVerifier
	Ledger            core.IdempotencyLedger
	Audit             core.AuditRecorder
	Forwarder         core.ForwardingScheduler
	ScopeKey          core.ScopeResolver
	AuditAction       string
	RejectAuditAction string
	Observer          *core.Observer
	Now               func() time.Time
}

func NewController(
	verifier core.SignatureVerifier,
	ledger core.IdempotencyLedger,
	audit core.AuditRecorder,
	forwarder core.ForwardingScheduler,
) *Controller {
	defaults := core.DefaultConfig().Ingest
	return &Controller{
		Verifier:          verifier,
		Ledger:            ledger,
		Audit:             audit,
		Forwarder:         forwarder,
		ScopeKey:          core.DefaultScopeKey,
		AuditAction:       defaults.AuditAction,
		RejectAuditAction: defaults.RejectAuditAction,
		Observer:          core.NewObserver(nil, nil),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Ingest verifies, claims, audits and schedules forwarding for one inbound
// webhook. Rejections and conflicts return both a response and an error;
// replays of a known id and payload return the first response unchanged.
func (c *Controller) Ingest(ctx context.Context, req core.IngestRequest) (result core.IngestResult, err error) {
	startedAt := time.Now()
	fields := map[string]any{}
	defer func() {
		fields["claim"] = string(result.Claim)
		fields["verification"] = string(result.Response.Verification)
		fields["status_code"] = result.Response.StatusCode
		c.observer().Observe(ctx, startedAt, "ingest_webhook", err, fields)
	}()

	if c == nil || c.Verifier == nil || c.Ledger == nil || c.Audit == nil || c.Forwarder == nil {
		return core.IngestResult{}, inboundInternal(nil, "inbound: controller is not fully configured", nil)
	}
	req.ProviderID = strings.TrimSpace(strings.ToLower(req.ProviderID))
	req.UserID = strings.TrimSpace(req.UserID)
	fields["provider_id"] = req.ProviderID
	fields["user_id"] = req.UserID
	if req.ProviderID == "" {
		return core.IngestResult{}, inboundBadInput("inbound: provider id is required", nil)
	}

	envelope, envErr := webhooks.EnvelopeFromHeaders(req.Headers, req.Body)
	if envErr != nil {
		return core.IngestResult{}, inboundBadInput(envErr.Error(), map[string]any{"provider_id": req.ProviderID})
	}
	fields["event_id"] = envelope.MessageID

	verification, verifyErr := c.Verifier.Verify(ctx, envelope)
	if verifyErr != nil {
		return core.IngestResult{}, inboundInternal(verifyErr, "inbound: signature verification unavailable", map[string]any{
			"event_id": envelope.MessageID,
		})
	}

	outcome := core.OutcomeRejected
	statusCode := http.StatusUnauthorized
	if verification.Valid() {
		outcome = core.OutcomeAccepted
		statusCode = http.StatusAccepted
	}
	scopeKey := c.scopeKey(req.ProviderID, req.UserID)
	fields["scope_key"] = scopeKey

	claim, claimErr := c.Ledger.Claim(ctx, core.ClaimInput{
		EventID:            envelope.MessageID,
		ProviderID:         req.ProviderID,
		UserID:             req.UserID,
		ScopeKey:           scopeKey,
		PayloadHash:        core.PayloadHash(req.Body),
		Payload:            req.Body,
		Verification:       verification,
		Outcome:            outcome,
		ResponseStatusCode: statusCode,
		ReceivedAt:         c.now(),
	})
	if claimErr != nil {
		return core.IngestResult{}, inboundInternal(claimErr, "inbound: idempotency claim failed", map[string]any{
			"event_id": envelope.MessageID,
		})
	}
	result.Claim = claim.Status

	switch claim.Status {
	case core.ClaimConflict:
		result.Response = core.IngestResponse{
			Accepted:     false,
			StatusCode:   http.StatusConflict,
			Status:       ResponseConflict,
			EventID:      envelope.MessageID,
			Outcome:      core.OutcomeConflict,
			Verification: verification,
		}
		return result, core.ConflictingReplayError(envelope.MessageID)
	case core.ClaimNew:
		if err := c.recordAudit(ctx, claim.Event); err != nil {
			return result, err
		}
		if err := c.ensureForwarding(ctx, claim.Event); err != nil {
			return result, err
		}
	case core.ClaimDuplicateSame:
		if err := c.ensureAudit(ctx, claim.Event); err != nil {
			return result, err
		}
		if err := c.ensureForwarding(ctx, claim.Event); err != nil {
			return result, err
		}
	}

	result.Response = storedResponse(claim.Event)
	return result, rejectionError(claim.Event, envelope.Timestamp)
}

func (c *Controller) recordAudit(ctx context.Context, event core.WebhookEvent) error {
	action := c.AuditAction
	if event.Outcome != core.OutcomeAccepted {
		action = c.RejectAuditAction
	}
	if _, err := c.Audit.Record(ctx, core.AuditInput{
		UserID:     event.UserID,
		ProviderID: event.ProviderID,
		Action:     action,
		EventID:    event.EventID,
		CreatedAt:  event.ReceivedAt,
	}); err != nil {
		return inboundInternal(err, "inbound: audit record failed", map[string]any{"event_id": event.EventID})
	}
	return nil
}

// ensureAudit writes the audit row of a replayed event only when the first
// request stopped between claim and audit.
func (c *Controller) ensureAudit(ctx context.Context, event core.WebhookEvent) error {
	recorded, err := c.Audit.Recorded(ctx, event.EventID)
	if err != nil {
		return inboundInternal(err, "inbound: audit lookup failed", map[string]any{"event_id": event.EventID})
	}
	if recorded {
		return nil
	}
	return c.recordAudit(ctx, event)
}

// ensureForwarding creates and enqueues the forwarding row of an accepted
// event. For replays the row already exists and nothing is enqueued; it is
// only created here when an earlier request stopped between claim and
// forwarding setup.
func (c *Controller) ensureForwarding(ctx context.Context, event core.WebhookEvent) error {
	if event.Outcome != core.OutcomeAccepted {
		return nil
	}
	_, created, err := c.Forwarder.Initialize(ctx, event)
	if err != nil {
		return inboundInternal(err, "inbound: forwarding setup failed", map[string]any{"event_id": event.EventID})
	}
	if !created {
		return nil
	}
	if err := c.Forwarder.Enqueue(ctx, event.EventID); err != nil {
		c.observer().Warn(ctx, "forwarding enqueue failed, leaving event to sweep", map[string]any{
			"event_id": event.EventID,
			"error":    err.Error(),
		})
	}
	return nil
}

func storedResponse(event core.WebhookEvent) core.IngestResponse {
	response := core.IngestResponse{
		Accepted:     event.Outcome == core.OutcomeAccepted,
		StatusCode:   event.ResponseStatusCode,
		EventID:      event.EventID,
		Outcome:      event.Outcome,
		Verification: event.Verification,
	}
	if response.Accepted {
		response.Status = ResponseReceived
	} else {
		response.Status = ResponseRejected
	}
	if response.StatusCode == 0 {
		response.StatusCode = http.StatusUnauthorized
		if response.Accepted {
			response.StatusCode = http.StatusAccepted
		}
	}
	return response
}

func (c *Controller) scopeKey(providerID, userID string) string {
	if c.ScopeKey == nil {
		return core.DefaultScopeKey(providerID, userID)
	}
	return c.ScopeKey(providerID, userID)
}

func (c *Controller) observer() *core.Observer {
	if c == nil {
		return nil
	}
	return c.Observer
}

func (c *Controller) now() time.Time {
	if c.Now == nil {
		return time.Now().UTC()
	}
	return c.Now().UTC()
}
