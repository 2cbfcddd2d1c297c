package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-webhook-relay/core"
)

func claimInput(eventID string, body string) core.ClaimInput {
	return core.ClaimInput{
		EventID:      eventID,
		ProviderID:   "acme",
		UserID:       "usr_1",
		ScopeKey:     "acme:usr_1",
		PayloadHash:  core.PayloadHash([]byte(body)),
		Payload:      []byte(body),
		Verification: core.VerificationValid,
		Outcome:      core.OutcomeAccepted,
		ReceivedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestLedger_ConcurrentClaimsYieldSingleNew(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan core.ClaimStatus, 32)
	for index := 0; index < 32; index++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := ledger.Claim(ctx, claimInput("evt_1", `{"a":1}`))
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			results <- result.Status
		}()
	}
	wg.Wait()
	close(results)

	counts := map[core.ClaimStatus]int{}
	for status := range results {
		counts[status]++
	}
	if counts[core.ClaimNew] != 1 {
		t.Fatalf("expected exactly one new claim, got %#v", counts)
	}
	if counts[core.ClaimDuplicateSame] != 31 {
		t.Fatalf("expected 31 duplicate claims, got %#v", counts)
	}
	if ledger.Len() != 1 {
		t.Fatalf("expected one ledger row, got %d", ledger.Len())
	}
}

func TestLedger_ConflictKeepsOriginalRow(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()
	if _, err := ledger.Claim(ctx, claimInput("evt_1", `{"a":1}`)); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	conflicting := claimInput("evt_1", `{"a":2}`)
	conflicting.Outcome = core.OutcomeRejected
	conflicting.Verification = core.VerificationInvalidSignature
	result, err := ledger.Claim(ctx, conflicting)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if result.Status != core.ClaimConflict {
		t.Fatalf("expected conflict, got %s", result.Status)
	}
	if result.Event.Outcome != core.OutcomeAccepted {
		t.Fatalf("expected original outcome, got %s", result.Event.Outcome)
	}

	stored, err := ledger.Get(ctx, "evt_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(stored.Payload) != `{"a":1}` {
		t.Fatalf("expected original payload, got %s", stored.Payload)
	}
	if _, err := ledger.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAuditStore_OneRowPerEvent(t *testing.T) {
	store := NewAuditStore()
	ctx := context.Background()
	first, err := store.Append(ctx, core.IntegrationAudit{AuditID: "a1", UserID: "usr_1", ProviderID: "acme", Action: "upsert", EventID: "evt_1"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	second, err := store.Append(ctx, core.IntegrationAudit{AuditID: "a2", UserID: "usr_1", ProviderID: "acme", Action: "upsert", EventID: "evt_1"})
	if err != nil {
		t.Fatalf("append duplicate: %v", err)
	}
	if second.AuditID != first.AuditID {
		t.Fatalf("expected existing audit row, got %s", second.AuditID)
	}
	count, _ := store.CountByEvent(ctx, "evt_1")
	if count != 1 {
		t.Fatalf("expected one audit row, got %d", count)
	}

	if _, err := store.Append(ctx, core.IntegrationAudit{AuditID: "a3", UserID: "usr_1", ProviderID: "acme", Action: "disconnect"}); err != nil {
		t.Fatalf("append without event: %v", err)
	}
	listed, _ := store.ListByUser(ctx, "usr_1", 10)
	if len(listed) != 2 || listed[0].AuditID != "a3" {
		t.Fatalf("expected newest first, got %#v", listed)
	}
}

func TestForwardingStore_TransitionIsCompareAndSwap(t *testing.T) {
	store := NewForwardingStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	state, created, err := store.Initialize(ctx, core.ForwardingState{
		EventID:    "evt_1",
		ScopeKey:   "acme:usr_1",
		Status:     core.ForwardingQueued,
		ReceivedAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil || !created {
		t.Fatalf("initialize: created=%v err=%v", created, err)
	}
	if _, created, _ := store.Initialize(ctx, state); created {
		t.Fatalf("expected second initialize to be a no-op")
	}

	start := core.Transition{EventID: "evt_1", From: core.ForwardingQueued, FromAttempts: 0, To: core.ForwardingInFlight, AttemptCount: 1, At: now}
	if _, err := store.Transition(ctx, start); err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	if _, err := store.Transition(ctx, start); !errors.Is(err, core.ErrTransitionConflict) {
		t.Fatalf("expected transition conflict, got %v", err)
	}

	projection, err := store.GetProjection(ctx, "acme:usr_1")
	if err != nil {
		t.Fatalf("projection: %v", err)
	}
	if projection.Status != core.ForwardingInFlight || projection.LastEventID != "evt_1" {
		t.Fatalf("unexpected projection %#v", projection)
	}
}

func TestForwardingStore_ListDueIncludesExpiredLeases(t *testing.T) {
	store := NewForwardingStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, id := range []string{"evt_queued", "evt_inflight", "evt_retry_later"} {
		if _, _, err := store.Initialize(ctx, core.ForwardingState{EventID: id, Status: core.ForwardingQueued, UpdatedAt: now}); err != nil {
			t.Fatalf("initialize %s: %v", id, err)
		}
	}
	for _, id := range []string{"evt_inflight", "evt_retry_later"} {
		if _, err := store.Transition(ctx, core.Transition{EventID: id, From: core.ForwardingQueued, To: core.ForwardingInFlight, AttemptCount: 1, At: now}); err != nil {
			t.Fatalf("start %s: %v", id, err)
		}
	}
	later := now.Add(time.Hour)
	if _, err := store.Transition(ctx, core.Transition{
		EventID: "evt_retry_later", From: core.ForwardingInFlight, FromAttempts: 1,
		To: core.ForwardingRetrying, AttemptCount: 1, NextAttemptAt: &later, At: now,
	}); err != nil {
		t.Fatalf("retrying: %v", err)
	}

	due, err := store.ListDue(ctx, core.DueQuery{Now: now.Add(time.Minute)})
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 1 || due[0].EventID != "evt_queued" {
		t.Fatalf("expected only queued row, got %#v", due)
	}

	due, _ = store.ListDue(ctx, core.DueQuery{Now: later, LeaseExpiredBefore: now.Add(time.Second)})
	if len(due) != 3 {
		t.Fatalf("expected queued, retrying and abandoned rows, got %#v", due)
	}
}
