package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invigilo/proctor-backend/internal/model"
	"github.com/invigilo/proctor-backend/internal/proctor"
	ws "github.com/invigilo/proctor-backend/internal/websocket"
)

func tabSwitchViolation() proctor.Violation {
	return proctor.Violation{
		Type:        model.IncidentTabSwitch,
		Severity:    model.SeverityMedium,
		Description: "Student switched to another tab",
	}
}

func TestRecord_QueuesAndBroadcasts(t *testing.T) {
	queue := &fakeQueue{}
	hub := &fakeHub{}
	svc := NewIncidentService(&fakeIncidentStore{}, fakeStudentStore{}, queue, hub, zerolog.Nop())
	sessionID := uuid.New()

	incident, created := svc.Record(context.Background(), sessionID, 7, tabSwitchViolation())

	require.True(t, created)
	require.NotNil(t, incident)
	assert.NotEqual(t, uuid.Nil, incident.ID)
	assert.Equal(t, sessionID, incident.SessionID)
	assert.False(t, incident.CreatedAt.IsZero())

	assert.Equal(t, 1, queue.len())
	events := hub.all()
	require.Len(t, events, 1)
	ie, ok := events[0].(ws.IncidentEvent)
	require.True(t, ok)
	assert.Equal(t, ws.EventSecurityIncident, ie.Event)
	assert.Equal(t, "Test Student", ie.StudentName)
	assert.Equal(t, "R-001", ie.RollNumber)
}

func TestRecord_GateSuppresssFourthInWindow(t *testing.T) {
	queue := &fakeQueue{}
	hub := &fakeHub{}
	svc := NewIncidentService(&fakeIncidentStore{}, fakeStudentStore{}, queue, hub, zerolog.Nop())
	sessionID := uuid.New()

	base := time.Now()
	step := 0
	svc.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	for i := 0; i < 3; i++ {
		_, created := svc.Record(context.Background(), sessionID, 7, tabSwitchViolation())
		assert.True(t, created, "incident %d", i)
	}

	incident, created := svc.Record(context.Background(), sessionID, 7, tabSwitchViolation())
	assert.False(t, created)
	assert.Nil(t, incident)
	assert.Equal(t, 3, queue.len())
	assert.Len(t, hub.all(), 3)

	// A different type is not affected by the exhausted budget.
	_, created = svc.Record(context.Background(), sessionID, 7, proctor.Violation{
		Type: model.IncidentWindowBlur, Severity: model.SeverityMedium,
	})
	assert.True(t, created)
}

func TestRecord_QueueFailureStillBroadcasts(t *testing.T) {
	queue := &fakeQueue{err: assert.AnError}
	hub := &fakeHub{}
	svc := NewIncidentService(&fakeIncidentStore{}, fakeStudentStore{}, queue, hub, zerolog.Nop())

	incident, created := svc.Record(context.Background(), uuid.New(), 7, tabSwitchViolation())

	require.True(t, created, "a persistence hiccup must not hide the incident from proctors")
	require.NotNil(t, incident)
	assert.Len(t, hub.all(), 1)
}

func TestReleaseSession_ResetsGateBudget(t *testing.T) {
	svc := NewIncidentService(&fakeIncidentStore{}, fakeStudentStore{}, &fakeQueue{}, &fakeHub{}, zerolog.Nop())
	sessionID := uuid.New()

	for i := 0; i < 3; i++ {
		svc.Record(context.Background(), sessionID, 7, tabSwitchViolation())
	}
	_, created := svc.Record(context.Background(), sessionID, 7, tabSwitchViolation())
	require.False(t, created)

	svc.ReleaseSession(sessionID)

	_, created = svc.Record(context.Background(), sessionID, 7, tabSwitchViolation())
	assert.True(t, created)
}

func TestResolve_PassesThroughStoreErrors(t *testing.T) {
	store := &fakeIncidentStore{resolveErr: assert.AnError}
	svc := NewIncidentService(store, fakeStudentStore{}, &fakeQueue{}, &fakeHub{}, zerolog.Nop())

	err := svc.Resolve(context.Background(), uuid.New(), 1)
	assert.ErrorIs(t, err, assert.AnError)

	store.resolveErr = nil
	id := uuid.New()
	require.NoError(t, svc.Resolve(context.Background(), id, 1))
	assert.Equal(t, []uuid.UUID{id}, store.resolved)
}
