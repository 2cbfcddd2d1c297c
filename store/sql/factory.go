package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-webhook-relay/core"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds every SQL store over one bun database.
type RepositoryFactory struct {
	db    *bun.DB
	cache repositorycache.CacheService

	ledger      *WebhookEventStore
	audits      *AuditStore
	forwarding  *ForwardingStore
	projections *CachedProjectionStore
}

type FactoryOption func(*RepositoryFactory)

// WithProjectionCache routes projection reads through cacheService.
func WithProjectionCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cache = cacheService
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// BuildStores accepts a *bun.DB or anything exposing DB() *bun.DB, such as a
// go-persistence-bun client.
func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.ledger != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) Ledger() *WebhookEventStore {
	if f == nil {
		return nil
	}
	return f.ledger
}

func (f *RepositoryFactory) AuditStore() *AuditStore {
	if f == nil {
		return nil
	}
	return f.audits
}

// ForwardingStore returns the store the forwarding engine should write
// through. With a projection cache configured it is the cached wrapper, so
// transitions evict stale projections.
func (f *RepositoryFactory) ForwardingStore() ProjectionBackend {
	if f == nil {
		return nil
	}
	if f.projections != nil {
		return f.projections
	}
	return f.forwarding
}

func (f *RepositoryFactory) ProjectionReader() core.ProjectionReader {
	return f.ForwardingStore()
}

// Stores exposes the built stores through the core contracts.
func (f *RepositoryFactory) Stores() core.StoreSet {
	if f == nil || f.ledger == nil {
		return core.StoreSet{}
	}
	forwarding := f.ForwardingStore()
	return core.StoreSet{
		Ledger:      f.ledger,
		Audit:       f.audits,
		Forwarding:  forwarding,
		Projections: forwarding,
	}
}

func (f *RepositoryFactory) initStores() error {
	ledger, err := NewWebhookEventStore(f.db)
	if err != nil {
		return err
	}
	audits, err := NewAuditStore(f.db)
	if err != nil {
		return err
	}
	forwarding, err := NewForwardingStore(f.db)
	if err != nil {
		return err
	}
	f.ledger = ledger
	f.audits = audits
	f.forwarding = forwarding

	if f.cache != nil {
		projections, err := NewCachedProjectionStore(forwarding, f.cache)
		if err != nil {
			return err
		}
		f.projections = projections
	}
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
