// Package handles implements the opaque integer handle registries the
// adapter lends to the DAP editor for stack frames, variable containers,
// source references, and breakpoint ids.
package handles

import "sync"

// Registry lends nonzero, monotonically increasing uint32 handles for
// values of type T. It is not safe to share a single Registry across
// domains; the adapter keeps one Registry for stack frames and the
// VariableEngine one for variable containers. Breakpoint ids use BiRegistry
// instead, and no registry is kept for source references.
type Registry[T any] struct {
	mu     sync.Mutex
	next   uint32
	values map[uint32]T
}

// New returns an empty Registry. The first handle it lends is 1 — 0 is
// never valid, matching DAP's convention that a zero variablesReference
// means "no children".
func New[T any]() *Registry[T] {
	return &Registry[T]{next: 1, values: make(map[uint32]T)}
}

// Create lends a new handle for v and returns it.
func (r *Registry[T]) Create(v T) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.next
	r.next++
	r.values[h] = v
	return h
}

// Get looks up the value associated with h. ok is false if h was never
// issued, or was issued and since discarded by Reset.
func (r *Registry[T]) Get(h uint32) (v T, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok = r.values[h]
	return v, ok
}

// Reset discards every handle issued so far. The next handle issued after
// Reset still increases monotonically from whatever it last reached;
// nothing is reused. The frame and variable-container registries are reset
// on every debugger pause; the breakpoint-id BiRegistry has no Reset and
// lives for the whole session.
func (r *Registry[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = make(map[uint32]T)
}

// Len reports how many handles are currently live.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// BiRegistry is a Registry specialized for string values with an
// additional reverse index, used for the breakpoint-id domain: the engine
// needs to go from a freshly-minted external id to the CDP breakpointId,
// and also needs to recognize "have we already minted an id for this CDP
// breakpointId" when rebinding across navigations.
type BiRegistry struct {
	mu      sync.Mutex
	next    uint32
	forward map[uint32]string
	reverse map[string]uint32
}

// NewBiRegistry returns an empty bidirectional registry.
func NewBiRegistry() *BiRegistry {
	return &BiRegistry{
		next:    1,
		forward: make(map[uint32]string),
		reverse: make(map[string]uint32),
	}
}

// Create lends a new handle for the given CDP breakpoint id string. If a
// handle was already issued for this exact string, that existing handle is
// returned instead of minting a second one.
func (r *BiRegistry) Create(cdpID string) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.reverse[cdpID]; ok {
		return h
	}
	h := r.next
	r.next++
	r.forward[h] = cdpID
	r.reverse[cdpID] = h
	return h
}

// Get returns the CDP breakpoint id string for handle h.
func (r *BiRegistry) Get(h uint32) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.forward[h]
	return v, ok
}

// Lookup returns the handle previously minted for the given CDP breakpoint
// id string, if any.
func (r *BiRegistry) Lookup(cdpID string) (uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.reverse[cdpID]
	return h, ok
}

// Rebind re-associates an existing handle with a new CDP breakpoint id,
// used when a pending breakpoint's underlying CDP id changes across a
// rebind (the external DAP-facing id must stay stable; only the backing
// CDP id moves).
func (r *BiRegistry) Rebind(h uint32, newCDPID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.forward[h]; ok {
		delete(r.reverse, old)
	}
	r.forward[h] = newCDPID
	r.reverse[newCDPID] = h
}
