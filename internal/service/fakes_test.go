package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/invigilo/proctor-backend/internal/model"
)

// In-memory fakes for the store interfaces. They mimic the pgx repositories
// closely enough for the state machine: pgx.ErrNoRows on misses, value
// isolation via Clone.

type fakeSessionStore struct {
	mu         sync.Mutex
	byID       map[uuid.UUID]*model.ExamSession
	failUpdate error
	updates    int
	finalizes  int
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{byID: make(map[uuid.UUID]*model.ExamSession)}
}

func (f *fakeSessionStore) Create(ctx context.Context, s *model.ExamSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[s.ID] = s.Clone()
	return nil
}

func (f *fakeSessionStore) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return s.Clone(), nil
}

func (f *fakeSessionStore) GetByHallTicket(ctx context.Context, hallTicketID uuid.UUID) (*model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.byID {
		if s.HallTicketID == hallTicketID {
			return s.Clone(), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeSessionStore) UpdateState(ctx context.Context, id uuid.UUID, status model.SessionStatus, timeRemaining, violationCount int, finishedAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate != nil {
		return f.failUpdate
	}
	s, ok := f.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	f.updates++
	s.Status = status
	s.TimeRemaining = timeRemaining
	s.ViolationCount = violationCount
	s.FinishedAt = finishedAt
	return nil
}

func (f *fakeSessionStore) FinalizeAnswers(ctx context.Context, s *model.ExamSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.byID[s.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	f.finalizes++
	stored.Answers = s.Clone().Answers
	stored.CurrentQuestion = s.CurrentQuestion
	return nil
}

func (f *fakeSessionStore) stored(id uuid.UUID) *model.ExamSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id].Clone()
}

type fakeTicketStore struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]*model.HallTicket
	used     int
	verified int
}

func newFakeTicketStore() *fakeTicketStore {
	return &fakeTicketStore{byID: make(map[uuid.UUID]*model.HallTicket)}
}

func (f *fakeTicketStore) add(t *model.HallTicket) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[t.ID] = t
}

func (f *fakeTicketStore) GetByID(ctx context.Context, id uuid.UUID) (*model.HallTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTicketStore) GetByToken(ctx context.Context, token string) (*model.HallTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.byID {
		if t.TicketToken == token {
			cp := *t
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeTicketStore) MarkUsed(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.used++
	if t, ok := f.byID[id]; ok && t.Status == model.HallTicketStatusActive {
		t.Status = model.HallTicketStatusUsed
	}
	return nil
}

func (f *fakeTicketStore) MarkVerified(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verified++
	if t, ok := f.byID[id]; ok {
		t.IsVerified = true
	}
	return nil
}

type fakeQuestionStore struct {
	qids []uuid.UUID
}

func (f *fakeQuestionStore) RandomSubset(ctx context.Context, qbankID uuid.UUID, n int) ([]uuid.UUID, error) {
	if n > len(f.qids) {
		n = len(f.qids)
	}
	return append([]uuid.UUID(nil), f.qids[:n]...), nil
}

func (f *fakeQuestionStore) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error) {
	out := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Question{ID: id, QuestionText: "q"})
	}
	return out, nil
}

type fakeStudentStore struct{}

func (fakeStudentStore) GetByID(ctx context.Context, id int) (*model.Student, error) {
	return &model.Student{ID: id, Name: "Test Student", RollNumber: "R-001"}, nil
}

type fakeIncidentStore struct {
	mu         sync.Mutex
	resolved   []uuid.UUID
	resolveErr error
}

func (f *fakeIncidentStore) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.SecurityIncident, error) {
	return nil, nil
}

func (f *fakeIncidentStore) CountUnresolved(ctx context.Context) (int64, error) {
	return 0, nil
}

func (f *fakeIncidentStore) Resolve(ctx context.Context, id uuid.UUID, adminID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return f.resolveErr
	}
	f.resolved = append(f.resolved, id)
	return nil
}

type fakeQueue struct {
	mu    sync.Mutex
	items []interface{}
	err   error
}

func (f *fakeQueue) Enqueue(ctx context.Context, v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.items = append(f.items, v)
	return nil
}

func (f *fakeQueue) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

type fakeHub struct {
	mu     sync.Mutex
	events []interface{}
}

func (f *fakeHub) BroadcastToAdmins(v interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, v)
}

func (f *fakeHub) all() []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]interface{}(nil), f.events...)
}

func (f *fakeHub) AdminCount() int { return 0 }
