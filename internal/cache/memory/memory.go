// Package memory provides the in-process cache backend. It is the default
// when no DSN is configured and doubles as the reference implementation
// the other backends are tested against.
package memory

import (
	"context"
	"sync"

	"github.com/siftlab/sift/internal/cache"
	"github.com/siftlab/sift/internal/card"
)

// ensure memoryStore implements cache.Store
var _ cache.Store = (*memoryStore)(nil)

type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]cache.Entry
}

// New creates an empty in-memory cache.Store.
func New() cache.Store {
	return &memoryStore{entries: make(map[string]cache.Entry)}
}

func (s *memoryStore) Get(ctx context.Context, key string) (*cache.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}

	// Copy out so callers cannot mutate the stored records.
	out := e
	out.Records = make([]card.Card, len(e.Records))
	copy(out.Records, e.Records)
	return &out, nil
}

func (s *memoryStore) Put(ctx context.Context, entry *cache.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *entry
	stored.Records = make([]card.Card, len(entry.Records))
	copy(stored.Records, entry.Records)
	s.entries[entry.Key] = stored
	return nil
}

func (s *memoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *memoryStore) Close() error {
	return nil
}
