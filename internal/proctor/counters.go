package proctor

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Counters tracks one session's rolling detection state. The face-sample
// and browser-event paths are independent concurrent producers, so every
// update goes through the mutex; different sessions never share a Counters.
type Counters struct {
	mu                  sync.Mutex
	lookAway            int
	multipleFace        int
	browserViolations   int
	lastStatusBroadcast time.Time
}

// BrowserViolations returns the cumulative browser-event violation count.
func (c *Counters) BrowserViolations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.browserViolations
}

// Registry maps session IDs to their Counters. Counters are created lazily
// on first use and dropped when the session terminates, so per-sample state
// stays bounded by the number of live sessions.
type Registry struct {
	mu sync.Mutex
	m  map[uuid.UUID]*Counters
}

// NewRegistry creates an empty counter registry.
func NewRegistry() *Registry {
	return &Registry{m: make(map[uuid.UUID]*Counters)}
}

// Get returns the Counters for sessionID, creating them if absent.
func (r *Registry) Get(sessionID uuid.UUID) *Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.m[sessionID]
	if !ok {
		c = &Counters{}
		r.m[sessionID] = c
	}
	return c
}

// Drop discards the Counters for sessionID. Called on session termination.
func (r *Registry) Drop(sessionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, sessionID)
}

// Len returns the number of live sessions with counter state.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}
