package core

import (
	"fmt"
	"strings"
)

var forwardingTransitions = map[ForwardingStatus][]ForwardingStatus{
	ForwardingQueued:   {ForwardingInFlight},
	ForwardingInFlight: {ForwardingDelivered, ForwardingRetrying, ForwardingFailed},
	ForwardingRetrying: {ForwardingInFlight, ForwardingFailed},
}

func (s ForwardingStatus) Terminal() bool {
	return s == ForwardingDelivered || s == ForwardingFailed
}

func (s ForwardingStatus) Valid() bool {
	switch s {
	case ForwardingQueued, ForwardingInFlight, ForwardingRetrying, ForwardingDelivered, ForwardingFailed:
		return true
	default:
		return false
	}
}

func ParseForwardingStatus(value string) (ForwardingStatus, error) {
	status := ForwardingStatus(strings.TrimSpace(strings.ToLower(value)))
	if !status.Valid() {
		return "", fmt.Errorf("core: unknown forwarding status %q", value)
	}
	return status, nil
}

func CanTransition(from, to ForwardingStatus) bool {
	for _, next := range forwardingTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Validate checks the transition against the forwarding state machine and
// the attempt counter rules: starting an attempt increments the counter,
// every other transition keeps it.
func (t Transition) Validate() error {
	if strings.TrimSpace(t.EventID) == "" {
		return fmt.Errorf("core: transition event id is required")
	}
	if !CanTransition(t.From, t.To) {
		return fmt.Errorf("core: invalid forwarding transition %s -> %s", t.From, t.To)
	}
	if t.To == ForwardingInFlight {
		if t.AttemptCount != t.FromAttempts+1 {
			return fmt.Errorf("core: starting an attempt must increment attempt_count")
		}
	} else if t.AttemptCount != t.FromAttempts {
		return fmt.Errorf("core: attempt_count may only change when an attempt starts")
	}
	if t.To == ForwardingRetrying && t.NextAttemptAt == nil {
		return fmt.Errorf("core: retrying transition requires next_attempt_at")
	}
	if t.At.IsZero() {
		return fmt.Errorf("core: transition timestamp is required")
	}
	return nil
}

// Apply returns the state after the transition. The caller is expected to
// have validated the transition.
func (t Transition) Apply(state ForwardingState) ForwardingState {
	state.Status = t.To
	state.AttemptCount = t.AttemptCount
	state.UpdatedAt = t.At.UTC()
	switch t.To {
	case ForwardingInFlight:
		state.NextAttemptAt = nil
	case ForwardingRetrying:
		next := t.NextAttemptAt.UTC()
		state.NextAttemptAt = &next
		state.LastError = t.LastError
	case ForwardingFailed:
		state.NextAttemptAt = nil
		state.LastError = t.LastError
	case ForwardingDelivered:
		state.NextAttemptAt = nil
	}
	return state
}

// ProjectionFor builds the projection row mirroring a forwarding state.
func ProjectionFor(state ForwardingState) DeliveryProjection {
	return DeliveryProjection{
		ScopeKey:       state.ScopeKey,
		Status:         state.Status,
		LastEventID:    state.EventID,
		LastReceivedAt: state.ReceivedAt.UTC(),
		LastUpdatedAt:  state.UpdatedAt.UTC(),
	}
}

// Supersedes reports whether candidate should overwrite current. Later
// received events win; the same event always refreshes its own row.
func (p DeliveryProjection) Supersedes(current DeliveryProjection) bool {
	if current.ScopeKey == "" {
		return true
	}
	if p.LastEventID == current.LastEventID {
		return true
	}
	return !p.LastReceivedAt.Before(current.LastReceivedAt)
}
