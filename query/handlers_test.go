package query

import (
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-relay/core"
	"github.com/goliatone/go-webhook-relay/store/memory"
)

var receivedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedForwarding(t *testing.T, store *memory.ForwardingStore, eventID string) {
	t.Helper()
	_, _, err := store.Initialize(context.Background(), core.ForwardingState{
		EventID:    eventID,
		ScopeKey:   "acme:usr_1",
		ProviderID: "acme",
		Status:     core.ForwardingQueued,
		ReceivedAt: receivedAt,
		CreatedAt:  receivedAt,
		UpdatedAt:  receivedAt,
	})
	if err != nil {
		t.Fatalf("seed forwarding: %v", err)
	}
}

func TestGetDeliveryProjectionQuery_ReturnsLatestScopeState(t *testing.T) {
	store := memory.NewForwardingStore()
	seedForwarding(t, store, "evt_1")

	out, err := NewGetDeliveryProjectionQuery(store).Query(context.Background(), GetDeliveryProjectionMessage{ScopeKey: "acme:usr_1"})
	if err != nil {
		t.Fatalf("query projection: %v", err)
	}
	if out.LastEventID != "evt_1" || out.Status != core.ForwardingQueued {
		t.Fatalf("unexpected projection: %#v", out)
	}
}

func TestGetDeliveryProjectionQuery_MissingScopeIsNotFound(t *testing.T) {
	_, err := NewGetDeliveryProjectionQuery(memory.NewForwardingStore()).
		Query(context.Background(), GetDeliveryProjectionMessage{ScopeKey: "nobody"})
	if !core.HasTextCode(err, core.RelayErrorNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found sentinel in chain, got %v", err)
	}
}

func TestGetWebhookEventQuery_ReturnsLedgerRow(t *testing.T) {
	ledger := memory.NewLedger()
	_, err := ledger.Claim(context.Background(), core.ClaimInput{
		EventID:            "evt_1",
		ProviderID:         "acme",
		UserID:             "usr_1",
		ScopeKey:           "acme:usr_1",
		PayloadHash:        core.PayloadHash([]byte("{}")),
		Payload:            []byte("{}"),
		Verification:       core.VerificationValid,
		Outcome:            core.OutcomeAccepted,
		ResponseStatusCode: 202,
		ReceivedAt:         receivedAt,
	})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	qry := NewGetWebhookEventQuery(ledger)
	out, err := qry.Query(context.Background(), GetWebhookEventMessage{EventID: "evt_1"})
	if err != nil {
		t.Fatalf("query event: %v", err)
	}
	if out.Outcome != core.OutcomeAccepted || out.ResponseStatusCode != 202 {
		t.Fatalf("unexpected event: %#v", out)
	}

	_, err = qry.Query(context.Background(), GetWebhookEventMessage{EventID: "evt_missing"})
	if !core.IsNotFound(err) {
		t.Fatalf("expected not found for unknown event, got %v", err)
	}
}

func TestListAuditQuery_DelegatesWithLimit(t *testing.T) {
	called := false
	reader := stubAuditReader{
		listFn: func(_ context.Context, userID string, limit int) ([]core.IntegrationAudit, error) {
			called = true
			if userID != "usr_1" || limit != 10 {
				t.Fatalf("unexpected list request: %q %d", userID, limit)
			}
			return []core.IntegrationAudit{{AuditID: "a1", UserID: "usr_1", Action: "upsert"}}, nil
		},
	}

	out, err := NewListAuditQuery(reader).Query(context.Background(), ListAuditMessage{UserID: " usr_1 ", Limit: 10})
	if err != nil {
		t.Fatalf("query audit: %v", err)
	}
	if !called {
		t.Fatalf("expected audit reader invocation")
	}
	if len(out) != 1 || out[0].Action != "upsert" {
		t.Fatalf("unexpected audit rows: %#v", out)
	}
}

func TestListAuditQuery_RejectsOutOfRangeLimit(t *testing.T) {
	qry := NewListAuditQuery(stubAuditReader{})
	if _, err := qry.Query(context.Background(), ListAuditMessage{UserID: "usr_1", Limit: -1}); !core.HasTextCode(err, core.RelayErrorBadInput) {
		t.Fatalf("expected bad input for negative limit, got %v", err)
	}
	if _, err := qry.Query(context.Background(), ListAuditMessage{UserID: "usr_1", Limit: maxAuditLimit + 1}); !core.HasTextCode(err, core.RelayErrorBadInput) {
		t.Fatalf("expected bad input for oversized limit, got %v", err)
	}
}

func TestGetForwardingStateQuery_ReturnsStoredState(t *testing.T) {
	store := memory.NewForwardingStore()
	seedForwarding(t, store, "evt_2")

	out, err := NewGetForwardingStateQuery(store).Query(context.Background(), GetForwardingStateMessage{EventID: "evt_2"})
	if err != nil {
		t.Fatalf("query forwarding state: %v", err)
	}
	if out.Status != core.ForwardingQueued || out.AttemptCount != 0 {
		t.Fatalf("unexpected forwarding state: %#v", out)
	}
}

func TestQueries_ValidationReturnsRichError(t *testing.T) {
	_, err := NewGetForwardingStateQuery(memory.NewForwardingStore()).Query(context.Background(), GetForwardingStateMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.RelayErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.RelayErrorBadInput, rich.TextCode)
	}
}

func TestQueries_NilReaderReturnsDependencyError(t *testing.T) {
	var qry *GetWebhookEventQuery
	_, err := qry.Query(context.Background(), GetWebhookEventMessage{EventID: "evt_1"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}

type stubAuditReader struct {
	listFn func(ctx context.Context, userID string, limit int) ([]core.IntegrationAudit, error)
}

func (s stubAuditReader) ListByUser(ctx context.Context, userID string, limit int) ([]core.IntegrationAudit, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, userID, limit)
}
