package proctor

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/invigilo/proctor-backend/internal/model"
)

func TestGate_BurstThenSuppress(t *testing.T) {
	g := NewGate(DefaultGateWindow, DefaultGateBurst)
	sessionID := uuid.New()
	now := time.Now()

	assert.True(t, g.Allow(sessionID, model.IncidentTabSwitch, now))
	assert.True(t, g.Allow(sessionID, model.IncidentTabSwitch, now.Add(time.Second)))
	assert.True(t, g.Allow(sessionID, model.IncidentTabSwitch, now.Add(2*time.Second)))

	// Fourth within the window is suppressed.
	assert.False(t, g.Allow(sessionID, model.IncidentTabSwitch, now.Add(3*time.Second)))
}

func TestGate_TrailingWindowAgesOut(t *testing.T) {
	g := NewGate(60*time.Second, 3)
	sessionID := uuid.New()
	now := time.Now()

	g.Allow(sessionID, model.IncidentLookingAway, now)
	g.Allow(sessionID, model.IncidentLookingAway, now.Add(10*time.Second))
	g.Allow(sessionID, model.IncidentLookingAway, now.Add(20*time.Second))

	assert.False(t, g.Allow(sessionID, model.IncidentLookingAway, now.Add(30*time.Second)))

	// 61s after the first hit only two remain in the trailing window.
	assert.True(t, g.Allow(sessionID, model.IncidentLookingAway, now.Add(61*time.Second)))
}

func TestGate_KeysAreIndependent(t *testing.T) {
	g := NewGate(60*time.Second, 1)
	a, b := uuid.New(), uuid.New()
	now := time.Now()

	assert.True(t, g.Allow(a, model.IncidentTabSwitch, now))
	assert.False(t, g.Allow(a, model.IncidentTabSwitch, now))

	// Different type, same session: separate budget.
	assert.True(t, g.Allow(a, model.IncidentWindowBlur, now))
	// Same type, different session: separate budget.
	assert.True(t, g.Allow(b, model.IncidentTabSwitch, now))
}

func TestGate_ForgetClearsSession(t *testing.T) {
	g := NewGate(60*time.Second, 1)
	sessionID := uuid.New()
	now := time.Now()

	g.Allow(sessionID, model.IncidentTabSwitch, now)
	assert.False(t, g.Allow(sessionID, model.IncidentTabSwitch, now))

	g.Forget(sessionID)
	assert.True(t, g.Allow(sessionID, model.IncidentTabSwitch, now))
}
