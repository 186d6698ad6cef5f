package app

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/bft-labs/spbatch/internal/domain"
)

// Registry tracks the batches that are live (created and not yet executed).
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	batches map[uuid.UUID]*domain.Batch
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{batches: make(map[uuid.UUID]*domain.Batch)}
}

// Put registers b. An id that is already live is rejected.
func (r *Registry) Put(b *domain.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.batches[b.ID()]; ok {
		return fmt.Errorf("spbatch: batch %s already registered", b.ID())
	}
	r.batches[b.ID()] = b
	return nil
}

// Get returns the live batch with the given id.
func (r *Registry) Get(id uuid.UUID) (*domain.Batch, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.batches[id]
	return b, ok
}

// Contains reports whether id is live.
func (r *Registry) Contains(id uuid.UUID) bool {
	_, ok := r.Get(id)
	return ok
}

// Remove evicts id if present.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.batches, id)
}

// Len returns the number of live batches.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.batches)
}
