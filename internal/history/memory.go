package history

import (
	"context"
	"sync"
)

// MemoryStore keeps history in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]Entry)}
}

func (s *MemoryStore) Append(_ context.Context, e Entry) error {
	e, err := prepare(e)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.entries[e.Username], e)
	if len(list) > MaxEntries {
		list = append([]Entry(nil), list[len(list)-MaxEntries:]...)
	}
	s.entries[e.Username] = list
	return nil
}

func (s *MemoryStore) List(_ context.Context, username string) ([]Entry, error) {
	username, err := normalizeUser(username)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.entries[username]
	out := make([]Entry, len(list))
	for i, e := range list {
		e.Symptoms = append([]string(nil), e.Symptoms...)
		out[i] = e
	}
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
