package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-webhook-relay/core"
)

type AuditStore struct {
	mu      sync.Mutex
	entries []core.IntegrationAudit
	byEvent map[string]int
}

func NewAuditStore() *AuditStore {
	return &AuditStore{byEvent: map[string]int{}}
}

// Append stores a new audit row. A second row for the same event id is never
// written; the existing row is returned instead.
func (s *AuditStore) Append(_ context.Context, entry core.IntegrationAudit) (core.IntegrationAudit, error) {
	if s == nil {
		return core.IntegrationAudit{}, fmt.Errorf("memory: audit store is nil")
	}
	if strings.TrimSpace(entry.AuditID) == "" {
		return core.IntegrationAudit{}, fmt.Errorf("memory: audit id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	eventID := strings.TrimSpace(entry.EventID)
	if eventID != "" {
		if index, ok := s.byEvent[eventID]; ok {
			return s.entries[index], nil
		}
		s.byEvent[eventID] = len(s.entries)
	}
	s.entries = append(s.entries, entry)
	return entry, nil
}

func (s *AuditStore) CountByEvent(_ context.Context, eventID string) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("memory: audit store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, entry := range s.entries {
		if entry.EventID == eventID {
			count++
		}
	}
	return count, nil
}

func (s *AuditStore) ListByUser(_ context.Context, userID string, limit int) ([]core.IntegrationAudit, error) {
	if s == nil {
		return nil, fmt.Errorf("memory: audit store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.IntegrationAudit{}
	for index := len(s.entries) - 1; index >= 0; index-- {
		if s.entries[index].UserID != userID {
			continue
		}
		out = append(out, s.entries[index])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *AuditStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

var _ core.AuditStore = (*AuditStore)(nil)
