package guard

import "sync"

// MemoryStore keeps guard state in a process-wide map.
//
// Entries never expire and are lost on process restart: a fresh
// process starts with an empty guard. The set grows without bound
// under sustained traffic with unique keys - a known limitation of
// this design, kept deliberately rather than inventing an eviction
// policy. Use SQLiteStore or a bounded Store implementation where that
// matters.
type MemoryStore struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]struct{})}
}

// Contains implements Store.
func (s *MemoryStore) Contains(key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[key]
	return ok, nil
}

// Insert implements Store.
func (s *MemoryStore) Insert(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[key] = struct{}{}
	return nil
}

// Len returns the number of recorded keys. Useful for observing the
// unbounded-growth limitation in tests.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}
