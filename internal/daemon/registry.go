package daemon

import (
	"sync"
	"sync/atomic"
)

// tokenRegistry maps each command identity to the cancellation token of the
// most recently issued command for it.
//
// Entries are never removed when a command finishes. A stale token only
// affects a command that has already been dequeued, and the worker reads each
// token exactly once at dequeue time, so setting it later is harmless.
type tokenRegistry struct {
	mu     sync.Mutex
	tokens map[identity]*atomic.Bool
}

func newTokenRegistry() *tokenRegistry {
	return &tokenRegistry{
		tokens: make(map[identity]*atomic.Bool),
	}
}

// issue cancels the pending token for id, if any, registers a fresh one and
// passes it to enqueue while still holding the lock. Holding the lock across
// enqueue keeps queue order identical to registry order for a given identity.
// enqueue must not block.
func (r *tokenRegistry) issue(id identity, enqueue func(token *atomic.Bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.tokens[id]; ok {
		old.Store(true)
		delete(r.tokens, id)
	}

	token := new(atomic.Bool)
	r.tokens[id] = token
	enqueue(token)
}

// len returns the number of registered identities.
func (r *tokenRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}
