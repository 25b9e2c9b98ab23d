package client

import (
	"sync"
	"sync/atomic"

	"github.com/adamwoolhether/asynchttp/native"
)

// routes maps correlation tokens to live exchanges for every client in the
// process. Entries are added on send and removed on disposal.
var routes = newRegistry()

// registry is a weak back-reference table: holding a token never keeps an
// exchange alive past its disposal.
type registry struct {
	mu      sync.RWMutex
	entries map[native.Token]*exchange
	next    atomic.Uintptr
}

func newRegistry() *registry {
	return &registry{entries: make(map[native.Token]*exchange)}
}

// reserve hands out a fresh, never reused token.
func (r *registry) reserve() native.Token {
	return native.Token(r.next.Add(1))
}

func (r *registry) add(t native.Token, x *exchange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[t] = x
}

// lookup returns the exchange for t, or false if it was never registered
// or is gone.
func (r *registry) lookup(t native.Token) (*exchange, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	x, ok := r.entries[t]
	return x, ok
}

func (r *registry) remove(t native.Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, t)
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
