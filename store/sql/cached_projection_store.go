package sqlstore

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/url"
	"strings"
	"sync/atomic"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-webhook-relay/core"
)

const (
	projectionCacheKeyPrefix    = "go-webhook-relay::delivery_projection::v1"
	projectionGenerationStripes = 64
)

// ProjectionBackend is a forwarding store that also serves projections.
type ProjectionBackend interface {
	core.ForwardingStore
	core.ProjectionReader
}

// CachedProjectionStore serves projection reads from a cache. Writes go to
// the base store first, bump the scope generation and then evict the scope
// they touched. A read whose fetch overlapped a write sees a changed
// generation, evicts what it may have cached and reads the base store again.
type CachedProjectionStore struct {
	base        ProjectionBackend
	cache       repositorycache.CacheService
	generations [projectionGenerationStripes]atomic.Uint64
}

func NewCachedProjectionStore(
	base ProjectionBackend,
	cacheService repositorycache.CacheService,
) (*CachedProjectionStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base forwarding store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: projection cache service is required")
	}
	return &CachedProjectionStore{base: base, cache: cacheService}, nil
}

// ProjectionCacheKey returns go-webhook-relay::delivery_projection::v1::<scope_key>
// with the scope key URL-path escaped.
func ProjectionCacheKey(scopeKey string) (string, error) {
	scopeKey = strings.TrimSpace(scopeKey)
	if scopeKey == "" {
		return "", fmt.Errorf("sqlstore: scope key is required")
	}
	return projectionCacheKeyPrefix + "::" + url.PathEscape(scopeKey), nil
}

func (s *CachedProjectionStore) GetProjection(ctx context.Context, scopeKey string) (core.DeliveryProjection, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.DeliveryProjection{}, fmt.Errorf("sqlstore: cached projection store is not configured")
	}
	cacheKey, err := ProjectionCacheKey(scopeKey)
	if err != nil {
		return core.DeliveryProjection{}, err
	}
	scopeKey = strings.TrimSpace(scopeKey)
	generation := s.generation(scopeKey)
	observed := generation.Load()
	projection, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.DeliveryProjection, error) {
		return s.base.GetProjection(ctx, scopeKey)
	})
	if err != nil {
		return projection, err
	}
	if generation.Load() != observed {
		if err := s.cache.Delete(ctx, cacheKey); err != nil {
			return core.DeliveryProjection{}, err
		}
		return s.base.GetProjection(ctx, scopeKey)
	}
	return projection, nil
}

func (s *CachedProjectionStore) Initialize(ctx context.Context, state core.ForwardingState) (core.ForwardingState, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.ForwardingState{}, false, fmt.Errorf("sqlstore: cached projection store is not configured")
	}
	stored, created, err := s.base.Initialize(ctx, state)
	if err != nil {
		return stored, created, err
	}
	if created {
		if err := s.evict(ctx, stored.ScopeKey); err != nil {
			return stored, created, err
		}
	}
	return stored, created, nil
}

func (s *CachedProjectionStore) Get(ctx context.Context, eventID string) (core.ForwardingState, error) {
	if s == nil || s.base == nil {
		return core.ForwardingState{}, fmt.Errorf("sqlstore: cached projection store is not configured")
	}
	return s.base.Get(ctx, eventID)
}

func (s *CachedProjectionStore) Transition(ctx context.Context, transition core.Transition) (core.ForwardingState, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.ForwardingState{}, fmt.Errorf("sqlstore: cached projection store is not configured")
	}
	next, err := s.base.Transition(ctx, transition)
	if err != nil {
		return next, err
	}
	if err := s.evict(ctx, next.ScopeKey); err != nil {
		return next, err
	}
	return next, nil
}

func (s *CachedProjectionStore) ListDue(ctx context.Context, query core.DueQuery) ([]core.ForwardingState, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached projection store is not configured")
	}
	return s.base.ListDue(ctx, query)
}

func (s *CachedProjectionStore) evict(ctx context.Context, scopeKey string) error {
	scopeKey = strings.TrimSpace(scopeKey)
	if scopeKey == "" {
		return nil
	}
	s.generation(scopeKey).Add(1)
	cacheKey, err := ProjectionCacheKey(scopeKey)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

// generation returns the write counter for the stripe holding scopeKey.
// Scopes sharing a stripe only cost an extra base read.
func (s *CachedProjectionStore) generation(scopeKey string) *atomic.Uint64 {
	hash := fnv.New32a()
	_, _ = hash.Write([]byte(scopeKey))
	return &s.generations[hash.Sum32()%projectionGenerationStripes]
}
