// Package guard tracks which logical requests have already been fully
// processed, keyed by an opaque idempotency key, so that repeated
// invocations of the same request short-circuit instead of re-running
// evaluation.
//
// The guard's state lives behind the Store interface so the default
// unbounded in-memory set can be swapped for a bounded or durable
// implementation without changing the contract. A key moves one way,
// unseen to seen, and never back within a store's lifetime.
package guard

import (
	"fmt"
	"sync"
)

// Store is the injectable persistence point for guard state.
// Implementations must be safe for concurrent use.
type Store interface {
	// Contains reports whether key has been inserted.
	Contains(key string) (bool, error)

	// Insert records key as seen. Inserting an existing key is a no-op.
	Insert(key string) error
}

// Guard answers whether a request should be processed and records
// completed ones.
//
// Each operation holds a mutex around its store access, but the
// check-then-mark pair across ShouldProcess and MarkProcessed is
// deliberately not atomic: two requests racing on the same key before
// either marks it can both process. The traffic model is a single
// in-flight request per key, so that window is accepted rather than
// papered over with a wider lock.
type Guard struct {
	mu    sync.Mutex
	store Store
}

// New creates a Guard over the given store.
func New(store Store) *Guard {
	return &Guard{store: store}
}

// ShouldProcess reports whether key has not yet been marked processed.
// The first call for a fresh key returns true; after MarkProcessed it
// returns false for the store's lifetime.
func (g *Guard) ShouldProcess(key string) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("idempotency key must not be empty")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	seen, err := g.store.Contains(key)
	if err != nil {
		return false, fmt.Errorf("guard check: %w", err)
	}
	return !seen, nil
}

// MarkProcessed records key as fully processed. Call only after the
// request's evaluation succeeded; a failed request stays unseen so a
// retry can run.
func (g *Guard) MarkProcessed(key string) error {
	if key == "" {
		return fmt.Errorf("idempotency key must not be empty")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.store.Insert(key); err != nil {
		return fmt.Errorf("guard mark: %w", err)
	}
	return nil
}
