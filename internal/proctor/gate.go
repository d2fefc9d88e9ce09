package proctor

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/invigilo/proctor-backend/internal/model"
)

const (
	// DefaultGateWindow and DefaultGateBurst bound incident write
	// amplification: at most DefaultGateBurst incidents per
	// (session, type) within any trailing DefaultGateWindow.
	DefaultGateWindow = 60 * time.Second
	DefaultGateBurst  = 3
)

type gateKey struct {
	sessionID uuid.UUID
	kind      model.IncidentType
}

// Gate rate-limits incident creation per (sessionID, incidentType).
// Suppressed occurrences are dropped silently; the first DefaultGateBurst
// within a window always pass, regardless of type.
type Gate struct {
	mu     sync.Mutex
	window time.Duration
	burst  int
	hits   map[gateKey][]time.Time
}

// NewGate creates a Gate with the given trailing window and burst.
func NewGate(window time.Duration, burst int) *Gate {
	return &Gate{
		window: window,
		burst:  burst,
		hits:   make(map[gateKey][]time.Time),
	}
}

// Allow reports whether an incident of this type may be created for the
// session at instant now, and records the creation when permitted.
func (g *Gate) Allow(sessionID uuid.UUID, kind model.IncidentType, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := gateKey{sessionID: sessionID, kind: kind}
	cutoff := now.Add(-g.window)

	// Age out hits that left the trailing window.
	recent := g.hits[key][:0]
	for _, t := range g.hits[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= g.burst {
		g.hits[key] = recent
		return false
	}

	g.hits[key] = append(recent, now)
	return true
}

// Forget drops all gate state for a session. Called on termination so the
// hit map does not grow with dead sessions.
func (g *Gate) Forget(sessionID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key := range g.hits {
		if key.sessionID == sessionID {
			delete(g.hits, key)
		}
	}
}
