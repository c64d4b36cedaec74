package adapters

import (
	"context"
	"log/slog"
	"slices"

	"golang.org/x/sync/singleflight"

	"expensetracker/internal/cache"
	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
	"expensetracker/internal/ports"
)

// CachedStore puts a per-owner snapshot cache in front of a store.
// Concurrent misses for one owner share a single fetch, and an insert
// through the CachedStore drops that owner's entry.
type CachedStore struct {
	next  ports.TransactionStore
	cache *cache.LRUCache[[]core.Record]
	group singleflight.Group
}

var _ ports.TransactionStore = (*CachedStore)(nil)

func NewCachedStore(next ports.TransactionStore, snapshots *cache.LRUCache[[]core.Record]) *CachedStore {
	return &CachedStore{next: next, cache: snapshots}
}

func (s *CachedStore) Insert(ctx context.Context, ownerID string, t core.Transaction) (string, error) {
	id, err := s.next.Insert(ctx, ownerID, t)
	if err != nil {
		return "", err
	}
	s.Invalidate(ownerID)
	return id, nil
}

// Snapshot returns a copy so callers cannot alter the cached slice.
func (s *CachedStore) Snapshot(ctx context.Context, ownerID string) ([]core.Record, error) {
	if records, ok := s.cache.Get(ownerID); ok {
		slog.DebugContext(ctx, "Snapshot cache hit",
			applog.FieldComponent, applog.ComponentCache,
			applog.FieldOwnerID, ownerID)
		return slices.Clone(records), nil
	}

	v, err, shared := s.group.Do(ownerID, func() (any, error) {
		records, err := s.next.Snapshot(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		s.cache.Set(ownerID, records)
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "Snapshot cache miss",
		applog.FieldComponent, applog.ComponentCache,
		applog.FieldOwnerID, ownerID,
		"shared", shared)
	return slices.Clone(v.([]core.Record)), nil
}

// Invalidate drops ownerID's cached snapshot.
func (s *CachedStore) Invalidate(ownerID string) {
	s.group.Forget(ownerID)
	s.cache.Delete(ownerID)
}

// GetTransaction passes through when the wrapped store supports it.
func (s *CachedStore) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	if g, ok := s.next.(ports.TransactionGetter); ok {
		return g.GetTransaction(ctx, id)
	}
	return core.Transaction{}, ports.ErrNotFound
}
