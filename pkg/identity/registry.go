package identity

import (
	"fmt"
	"sync"
)

// Registry resolves declaring identities to their WorldLine for the gate's
// identity-binding stage. Reads are lock-free-ish (RWMutex); writes
// (registration, continuity append) take the writer lock.
type Registry struct {
	mu    sync.RWMutex
	lines map[string]*WorldLine
}

// NewRegistry creates an empty identity registry.
func NewRegistry() *Registry {
	return &Registry{lines: make(map[string]*WorldLine)}
}

// Register adds a WorldLine to the registry. Idempotent: registering the
// same id twice is a no-op.
func (r *Registry) Register(w *WorldLine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.lines[w.ID()]; exists {
		return
	}
	r.lines[w.ID()] = w
}

// Lookup resolves a declaring identity by id.
func (r *Registry) Lookup(id string) (*WorldLine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.lines[id]
	if !ok {
		return nil, fmt.Errorf("identity: worldline %q not found", id)
	}
	return w, nil
}
