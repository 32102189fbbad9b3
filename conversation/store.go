package conversation

import (
	"context"
	"slices"
	"sync"
)

// Store persists conversations by key.
type Store interface {
	// Load returns the cached messages for key, or nil if none are cached.
	Load(ctx context.Context, key Key) ([]Message, error)
	// Update applies fn to the latest persisted value of key and stores the
	// result. If fn returns an error nothing is written.
	Update(ctx context.Context, key Key, fn func([]Message) ([]Message, error)) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.Mutex
	data map[Key][]Message
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[Key][]Message)}
}

func (s *MemoryStore) Load(_ context.Context, key Key) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data[key]), nil
}

func (s *MemoryStore) Update(_ context.Context, key Key, fn func([]Message) ([]Message, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(slices.Clone(s.data[key]))
	if err != nil {
		return err
	}
	s.data[key] = slices.Clone(next)
	return nil
}
