package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/invigilo/proctor-backend/internal/model"
	"github.com/invigilo/proctor-backend/internal/proctor"
	ws "github.com/invigilo/proctor-backend/internal/websocket"
)

// IncidentService is the single sink for security incidents. It applies the
// per-(session, type) rate gate, queues the write for the background worker,
// and pushes the incident to connected admins. Persistence and broadcast are
// both best-effort here; only the gate decision is authoritative.
type IncidentService struct {
	store    IncidentStore
	students StudentStore
	queue    Queue
	hub      Broadcaster
	gate     *proctor.Gate
	log      zerolog.Logger
	now      func() time.Time
}

func NewIncidentService(
	store IncidentStore,
	students StudentStore,
	queue Queue,
	hub Broadcaster,
	log zerolog.Logger,
) *IncidentService {
	return &IncidentService{
		store:    store,
		students: students,
		queue:    queue,
		hub:      hub,
		gate:     proctor.NewGate(proctor.DefaultGateWindow, proctor.DefaultGateBurst),
		log:      log.With().Str("component", "incident_service").Logger(),
		now:      time.Now,
	}
}

// Record turns a classified violation into a persisted incident for the
// session, unless the rate gate suppresses it. Returns the incident and
// whether one was created.
func (s *IncidentService) Record(ctx context.Context, sessionID uuid.UUID, studentID int, v proctor.Violation) (*model.SecurityIncident, bool) {
	now := s.now()

	if !s.gate.Allow(sessionID, v.Type, now) {
		s.log.Debug().
			Str("session_id", sessionID.String()).
			Str("type", string(v.Type)).
			Msg("incident suppressed by rate gate")
		return nil, false
	}

	incident := &model.SecurityIncident{
		ID:          uuid.New(),
		SessionID:   sessionID,
		Type:        v.Type,
		Severity:    v.Severity,
		Description: v.Description,
		Metadata:    v.Metadata,
		CreatedAt:   now,
	}

	// Queue for batched persistence. Losing an incident must never block
	// or fail the exam flow, so a queue error only logs.
	if err := s.queue.Enqueue(ctx, incident); err != nil {
		s.log.Error().Err(err).
			Str("incident_id", incident.ID.String()).
			Msg("failed to enqueue incident for persistence")
	}

	event := ws.IncidentEvent{
		Event:    ws.EventSecurityIncident,
		Incident: incident,
	}
	if student, err := s.students.GetByID(ctx, studentID); err == nil {
		event.StudentName = student.Name
		event.RollNumber = student.RollNumber
	}
	s.hub.BroadcastToAdmins(event)

	s.log.Info().
		Str("session_id", sessionID.String()).
		Str("type", string(v.Type)).
		Str("severity", string(v.Severity)).
		Msg("security incident recorded")

	return incident, true
}

// ListBySession returns all incidents for a session, newest first.
func (s *IncidentService) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.SecurityIncident, error) {
	return s.store.ListBySession(ctx, sessionID)
}

// CountUnresolved returns the number of incidents awaiting review.
func (s *IncidentService) CountUnresolved(ctx context.Context) (int64, error) {
	return s.store.CountUnresolved(ctx)
}

// Resolve marks an incident reviewed by adminID. Resolving twice by the same
// admin is a no-op; a second admin gets repository.ErrResolvedByOther.
func (s *IncidentService) Resolve(ctx context.Context, id uuid.UUID, adminID int) error {
	if err := s.store.Resolve(ctx, id, adminID); err != nil {
		return err
	}
	s.log.Info().
		Str("incident_id", id.String()).
		Int("admin_id", adminID).
		Msg("incident resolved")
	return nil
}

// ReleaseSession drops gate state for a terminated session.
func (s *IncidentService) ReleaseSession(sessionID uuid.UUID) {
	s.gate.Forget(sessionID)
}
