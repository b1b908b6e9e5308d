package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Ashurkovd/outcomebazaar/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for market state. Writes go to the primary store and invalidate the
// cache; reads check Redis first then fall back to the primary.
//
// Only market records are cached. Lots and the P&L accumulator are read by
// the portfolio aggregator, which must recompute on every read, so caching
// them would only create staleness.
type CachedStore struct {
	Store
	rdb *redis.Client
	ttl time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		Store: primary,
		rdb:   rdb,
		ttl:   ttl,
	}
}

func marketKey(id string) string {
	return "market:" + id
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateMarket(ctx context.Context, m *model.Market) error {
	if err := s.Store.CreateMarket(ctx, m); err != nil {
		return err
	}
	s.cacheMarket(ctx, m)
	return nil
}

func (s *CachedStore) UpdateMarket(ctx context.Context, m *model.Market) error {
	if err := s.Store.UpdateMarket(ctx, m); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, marketKey(m.ID))
	return nil
}

// --- Read-through ---

func (s *CachedStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	data, err := s.rdb.Get(ctx, marketKey(id)).Bytes()
	if err == nil {
		var m model.Market
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	m, err := s.Store.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheMarket(ctx, m)
	return m, nil
}

func (s *CachedStore) cacheMarket(ctx context.Context, m *model.Market) {
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	s.rdb.Set(ctx, marketKey(m.ID), data, s.ttl)
}

var _ Store = (*CachedStore)(nil)
