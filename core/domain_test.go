package core

import (
	"testing"
	"time"
)

func TestCanTransition_FollowsForwardingStateMachine(t *testing.T) {
	allowed := [][2]ForwardingStatus{
		{ForwardingQueued, ForwardingInFlight},
		{ForwardingInFlight, ForwardingDelivered},
		{ForwardingInFlight, ForwardingRetrying},
		{ForwardingInFlight, ForwardingFailed},
		{ForwardingRetrying, ForwardingInFlight},
		{ForwardingRetrying, ForwardingFailed},
	}
	for _, pair := range allowed {
		if !CanTransition(pair[0], pair[1]) {
			t.Fatalf("expected %s -> %s to be allowed", pair[0], pair[1])
		}
	}

	rejected := [][2]ForwardingStatus{
		{ForwardingQueued, ForwardingDelivered},
		{ForwardingQueued, ForwardingRetrying},
		{ForwardingRetrying, ForwardingQueued},
		{ForwardingDelivered, ForwardingInFlight},
		{ForwardingFailed, ForwardingRetrying},
		{ForwardingInFlight, ForwardingQueued},
	}
	for _, pair := range rejected {
		if CanTransition(pair[0], pair[1]) {
			t.Fatalf("expected %s -> %s to be rejected", pair[0], pair[1])
		}
	}
}

func TestTransitionValidate_AttemptCounterRules(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	start := Transition{EventID: "evt_1", From: ForwardingQueued, FromAttempts: 0, To: ForwardingInFlight, AttemptCount: 1, At: now}
	if err := start.Validate(); err != nil {
		t.Fatalf("expected attempt start to validate: %v", err)
	}

	start.AttemptCount = 0
	if err := start.Validate(); err == nil {
		t.Fatalf("expected attempt start without increment to fail")
	}

	retry := Transition{EventID: "evt_1", From: ForwardingInFlight, FromAttempts: 1, To: ForwardingRetrying, AttemptCount: 1, At: now}
	if err := retry.Validate(); err == nil {
		t.Fatalf("expected retrying without next_attempt_at to fail")
	}
	next := now.Add(time.Second)
	retry.NextAttemptAt = &next
	if err := retry.Validate(); err != nil {
		t.Fatalf("expected retrying transition to validate: %v", err)
	}
}

func TestTransitionApply_RetryingRecordsErrorAndSchedule(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	next := now.Add(2 * time.Second)
	state := ForwardingState{EventID: "evt_1", Status: ForwardingInFlight, AttemptCount: 1}

	updated := Transition{
		EventID:       "evt_1",
		From:          ForwardingInFlight,
		FromAttempts:  1,
		To:            ForwardingRetrying,
		AttemptCount:  1,
		LastError:     "downstream unavailable",
		NextAttemptAt: &next,
		At:            now,
	}.Apply(state)

	if updated.Status != ForwardingRetrying {
		t.Fatalf("expected retrying, got %s", updated.Status)
	}
	if updated.LastError != "downstream unavailable" {
		t.Fatalf("expected last error, got %q", updated.LastError)
	}
	if updated.NextAttemptAt == nil || !updated.NextAttemptAt.Equal(next) {
		t.Fatalf("expected next attempt at %s, got %v", next, updated.NextAttemptAt)
	}
	if !updated.UpdatedAt.Equal(now) {
		t.Fatalf("expected updated_at %s, got %s", now, updated.UpdatedAt)
	}
	if updated.Due(now) {
		t.Fatalf("expected retrying row not due before next attempt")
	}
	if !updated.Due(next) {
		t.Fatalf("expected retrying row due at next attempt")
	}
}

func TestProjectionSupersedes_LastWriteWinsByReceivedAt(t *testing.T) {
	older := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	newer := older.Add(time.Minute)
	current := DeliveryProjection{ScopeKey: "acme:u1", LastEventID: "evt_2", LastReceivedAt: newer, Status: ForwardingQueued}

	stale := DeliveryProjection{ScopeKey: "acme:u1", LastEventID: "evt_1", LastReceivedAt: older, Status: ForwardingDelivered}
	if stale.Supersedes(current) {
		t.Fatalf("expected older event not to overwrite newer projection")
	}

	same := DeliveryProjection{ScopeKey: "acme:u1", LastEventID: "evt_2", LastReceivedAt: newer, Status: ForwardingDelivered}
	if !same.Supersedes(current) {
		t.Fatalf("expected same event to refresh its projection")
	}

	if !stale.Supersedes(DeliveryProjection{}) {
		t.Fatalf("expected any projection to supersede an empty row")
	}
}

func TestClassifyClaim(t *testing.T) {
	existing := WebhookEvent{EventID: "evt_1", PayloadHash: PayloadHash([]byte(`{"a":1}`))}
	if got := ClassifyClaim(existing, PayloadHash([]byte(`{"a":1}`))); got != ClaimDuplicateSame {
		t.Fatalf("expected duplicate_same, got %s", got)
	}
	if got := ClassifyClaim(existing, PayloadHash([]byte(`{"a":2}`))); got != ClaimConflict {
		t.Fatalf("expected conflict, got %s", got)
	}
}

func TestDefaultScopeKey(t *testing.T) {
	if got := DefaultScopeKey(" Acme ", "usr_1"); got != "acme:usr_1" {
		t.Fatalf("unexpected scope key %q", got)
	}
	if got := DefaultScopeKey("acme", ""); got != "acme" {
		t.Fatalf("unexpected scope key without user %q", got)
	}
}

func TestParseForwardingStatus(t *testing.T) {
	status, err := ParseForwardingStatus(" Retrying ")
	if err != nil || status != ForwardingRetrying {
		t.Fatalf("expected retrying, got %q err=%v", status, err)
	}
	if _, err := ParseForwardingStatus("paused"); err == nil {
		t.Fatalf("expected unknown status error")
	}
}
