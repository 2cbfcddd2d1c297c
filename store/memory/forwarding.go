package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-webhook-relay/core"
)

// ForwardingStore keeps forwarding rows and delivery projections under one
// lock so every state write and its projection update land together.
type ForwardingStore struct {
	mu          sync.Mutex
	states      map[string]core.ForwardingState
	projections map[string]core.DeliveryProjection
	history     map[string][]core.ForwardingStatus
}

func NewForwardingStore() *ForwardingStore {
	return &ForwardingStore{
		states:      map[string]core.ForwardingState{},
		projections: map[string]core.DeliveryProjection{},
		history:     map[string][]core.ForwardingStatus{},
	}
}

func (s *ForwardingStore) Initialize(_ context.Context, state core.ForwardingState) (core.ForwardingState, bool, error) {
	if s == nil {
		return core.ForwardingState{}, false, fmt.Errorf("memory: forwarding store is nil")
	}
	state.EventID = strings.TrimSpace(state.EventID)
	if state.EventID == "" {
		return core.ForwardingState{}, false, fmt.Errorf("memory: event id is required")
	}
	if state.Status != core.ForwardingQueued {
		return core.ForwardingState{}, false, fmt.Errorf("memory: forwarding rows start queued, got %s", state.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.states[state.EventID]; ok {
		return cloneState(existing), false, nil
	}
	s.states[state.EventID] = cloneState(state)
	s.history[state.EventID] = []core.ForwardingStatus{state.Status}
	s.projectLocked(state)
	return cloneState(state), true, nil
}

func (s *ForwardingStore) Get(_ context.Context, eventID string) (core.ForwardingState, error) {
	if s == nil {
		return core.ForwardingState{}, fmt.Errorf("memory: forwarding store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[strings.TrimSpace(eventID)]
	if !ok {
		return core.ForwardingState{}, core.ErrNotFound
	}
	return cloneState(state), nil
}

func (s *ForwardingStore) Transition(_ context.Context, transition core.Transition) (core.ForwardingState, error) {
	if s == nil {
		return core.ForwardingState{}, fmt.Errorf("memory: forwarding store is nil")
	}
	if err := transition.Validate(); err != nil {
		return core.ForwardingState{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.states[transition.EventID]
	if !ok {
		return core.ForwardingState{}, core.ErrNotFound
	}
	if current.Status != transition.From || current.AttemptCount != transition.FromAttempts {
		return cloneState(current), core.ErrTransitionConflict
	}
	next := transition.Apply(current)
	s.states[next.EventID] = next
	s.history[next.EventID] = append(s.history[next.EventID], next.Status)
	s.projectLocked(next)
	return cloneState(next), nil
}

func (s *ForwardingStore) ListDue(_ context.Context, query core.DueQuery) ([]core.ForwardingState, error) {
	if s == nil {
		return nil, fmt.Errorf("memory: forwarding store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.ForwardingState{}
	for _, state := range s.states {
		switch {
		case state.Due(query.Now):
		case state.Status == core.ForwardingInFlight &&
			!query.LeaseExpiredBefore.IsZero() &&
			state.UpdatedAt.Before(query.LeaseExpiredBefore):
		default:
			continue
		}
		out = append(out, cloneState(state))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].EventID < out[j].EventID
		}
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

func (s *ForwardingStore) GetProjection(_ context.Context, scopeKey string) (core.DeliveryProjection, error) {
	if s == nil {
		return core.DeliveryProjection{}, fmt.Errorf("memory: forwarding store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	projection, ok := s.projections[strings.TrimSpace(scopeKey)]
	if !ok {
		return core.DeliveryProjection{}, core.ErrNotFound
	}
	return projection, nil
}

// History returns every status an event has been written with, in order.
func (s *ForwardingStore) History(eventID string) []core.ForwardingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.ForwardingStatus(nil), s.history[eventID]...)
}

func (s *ForwardingStore) projectLocked(state core.ForwardingState) {
	if strings.TrimSpace(state.ScopeKey) == "" {
		return
	}
	candidate := core.ProjectionFor(state)
	if candidate.Supersedes(s.projections[state.ScopeKey]) {
		s.projections[state.ScopeKey] = candidate
	}
}

func cloneState(state core.ForwardingState) core.ForwardingState {
	if state.NextAttemptAt != nil {
		next := *state.NextAttemptAt
		state.NextAttemptAt = &next
	}
	return state
}

var (
	_ core.ForwardingStore  = (*ForwardingStore)(nil)
	_ core.ProjectionReader = (*ForwardingStore)(nil)
)
