// Package dedup remembers which place ids were already exported.
package dedup

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// StateKey is the key the set is persisted under.
const StateKey = "EXPORT-URLS-DEDUP"

// StateStore persists the set between runs.
type StateStore interface {
	LoadState(ctx context.Context, key string, dst any) (bool, error)
	SaveState(ctx context.Context, key string, v any) error
}

// Set is a concurrency-safe set of place ids.
type Set struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{seen: make(map[string]struct{})}
}

// TestAndAdd reports whether id was already present and adds it if not.
func (s *Set) TestAndAdd(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return true
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
	return false
}

// Len is the number of ids in the set.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Load unions the persisted ids into the set.
func (s *Set) Load(ctx context.Context, store StateStore) error {
	var ids []string
	ok, err := store.LoadState(ctx, StateKey, &ids)
	if err != nil {
		return eris.Wrap(err, "loading dedup set")
	}
	if !ok {
		return nil
	}
	for _, id := range ids {
		s.TestAndAdd(id)
	}
	return nil
}

// Persist saves the ids in insertion order.
func (s *Set) Persist(ctx context.Context, store StateStore) error {
	s.mu.Lock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	s.mu.Unlock()

	if err := store.SaveState(ctx, StateKey, ids); err != nil {
		return eris.Wrap(err, "persisting dedup set")
	}
	return nil
}
