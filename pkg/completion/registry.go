package completion

import (
	"context"
	"sync"
)

// requestRegistry tracks the cancel handle of every in-flight completion
// attempt so disposal can revoke them all at once. Each handle is
// revocable exactly once and never outlives the attempt it guards.
type requestRegistry struct {
	mu      sync.Mutex
	handles map[string]context.CancelFunc
}

func newRequestRegistry() *requestRegistry {
	return &requestRegistry{handles: make(map[string]context.CancelFunc)}
}

func (r *requestRegistry) register(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[id] = cancel
}

// release removes the handle and cancels it, so the attempt's context is
// always cleaned up on every exit path.
func (r *requestRegistry) release(id string) {
	r.mu.Lock()
	cancel, ok := r.handles[id]
	delete(r.handles, id)
	r.mu.Unlock()
	if ok {
		cancel()
	}
}

// cancelAll revokes every registered handle and clears the registry.
// Idempotent and safe while attempts are in flight.
func (r *requestRegistry) cancelAll() {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[string]context.CancelFunc)
	r.mu.Unlock()
	for _, cancel := range handles {
		cancel()
	}
}

func (r *requestRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}
