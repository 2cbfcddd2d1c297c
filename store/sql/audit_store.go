package sqlstore

import (
	"context"
	"fmt"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-webhook-relay/core"
	"github.com/uptrace/bun"
)

const defaultAuditListLimit = 100

type AuditStore struct {
	db   *bun.DB
	repo repository.Repository[*integrationAuditRecord]
}

func NewAuditStore(db *bun.DB) (*AuditStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*integrationAuditRecord](db, integrationAuditHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid integration audit repository wiring: %w", err)
		}
	}
	return &AuditStore{db: db, repo: repo}, nil
}

// Append inserts an audit row. The partial unique index on event_id keeps a
// single row per event; a losing insert returns the stored row.
func (s *AuditStore) Append(ctx context.Context, entry core.IntegrationAudit) (core.IntegrationAudit, error) {
	if s == nil || s.repo == nil {
		return core.IntegrationAudit{}, fmt.Errorf("sqlstore: audit store is not configured")
	}
	if strings.TrimSpace(entry.AuditID) == "" {
		return core.IntegrationAudit{}, fmt.Errorf("sqlstore: audit id is required")
	}
	record := integrationAuditFromDomain(entry)
	if _, err := s.repo.Create(ctx, record); err != nil {
		if record.EventID == nil {
			return core.IntegrationAudit{}, err
		}
		// The repository may wrap the driver error, so the unique index is
		// confirmed by reading the stored row rather than by message.
		existing, getErr := s.getByEvent(ctx, *record.EventID)
		if getErr != nil {
			return core.IntegrationAudit{}, err
		}
		return existing, nil
	}
	return integrationAuditToDomain(record), nil
}

func (s *AuditStore) CountByEvent(ctx context.Context, eventID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: audit store is not configured")
	}
	return s.db.NewSelect().
		Model((*integrationAuditRecord)(nil)).
		Where("?TableAlias.event_id = ?", strings.TrimSpace(eventID)).
		Count(ctx)
}

func (s *AuditStore) ListByUser(ctx context.Context, userID string, limit int) ([]core.IntegrationAudit, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: audit store is not configured")
	}
	if limit <= 0 {
		limit = defaultAuditListLimit
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("user_id", "=", strings.TrimSpace(userID)),
		repository.OrderBy("created_at DESC"),
		repository.OrderBy("id DESC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.IntegrationAudit, 0, len(records))
	for _, record := range records {
		out = append(out, integrationAuditToDomain(record))
	}
	return out, nil
}

func (s *AuditStore) getByEvent(ctx context.Context, eventID string) (core.IntegrationAudit, error) {
	record := &integrationAuditRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.event_id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.IntegrationAudit{}, core.ErrNotFound
		}
		return core.IntegrationAudit{}, err
	}
	return integrationAuditToDomain(record), nil
}

func integrationAuditFromDomain(entry core.IntegrationAudit) *integrationAuditRecord {
	record := &integrationAuditRecord{
		ID:         strings.TrimSpace(entry.AuditID),
		UserID:     strings.TrimSpace(entry.UserID),
		ProviderID: strings.TrimSpace(entry.ProviderID),
		Action:     strings.TrimSpace(entry.Action),
		CreatedAt:  entry.CreatedAt.UTC(),
	}
	if eventID := strings.TrimSpace(entry.EventID); eventID != "" {
		record.EventID = &eventID
	}
	return record
}

func integrationAuditToDomain(record *integrationAuditRecord) core.IntegrationAudit {
	if record == nil {
		return core.IntegrationAudit{}
	}
	entry := core.IntegrationAudit{
		AuditID:    record.ID,
		UserID:     record.UserID,
		ProviderID: record.ProviderID,
		Action:     record.Action,
		CreatedAt:  record.CreatedAt.UTC(),
	}
	if record.EventID != nil {
		entry.EventID = *record.EventID
	}
	return entry
}
