package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/invigilo/proctor-backend/internal/model"
)

// Store interfaces consumed by the services. The pgx-backed types in
// internal/repository satisfy them; tests substitute in-memory fakes.

// SessionStore persists exam sessions.
type SessionStore interface {
	Create(ctx context.Context, s *model.ExamSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	GetByHallTicket(ctx context.Context, hallTicketID uuid.UUID) (*model.ExamSession, error)
	UpdateState(ctx context.Context, id uuid.UUID, status model.SessionStatus, timeRemaining, violationCount int, finishedAt *time.Time) error
	FinalizeAnswers(ctx context.Context, s *model.ExamSession) error
}

// HallTicketStore reads and consumes hall tickets.
type HallTicketStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.HallTicket, error)
	GetByToken(ctx context.Context, token string) (*model.HallTicket, error)
	MarkUsed(ctx context.Context, id uuid.UUID) error
	MarkVerified(ctx context.Context, id uuid.UUID) error
}

// QuestionStore derives session question sets.
type QuestionStore interface {
	RandomSubset(ctx context.Context, qbankID uuid.UUID, n int) ([]uuid.UUID, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error)
}

// StudentStore reads student display data.
type StudentStore interface {
	GetByID(ctx context.Context, id int) (*model.Student, error)
}

// IncidentStore persists and resolves security incidents.
type IncidentStore interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.SecurityIncident, error)
	CountUnresolved(ctx context.Context) (int64, error)
	Resolve(ctx context.Context, id uuid.UUID, adminID int) error
}

// Queue is a fire-and-forget persistence queue.
type Queue interface {
	Enqueue(ctx context.Context, v interface{}) error
}

// Broadcaster fans events out to connected admin observers.
type Broadcaster interface {
	BroadcastToAdmins(v interface{})
}
