package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/invigilo/proctor-backend/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ExamSessionRepository handles exam session data access.
// question_ids and answers are stored as jsonb documents.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

// Create inserts a new exam session row.
func (r *ExamSessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	questionIDs, err := json.Marshal(s.QuestionIDs)
	if err != nil {
		return fmt.Errorf("marshal question ids: %w", err)
	}
	answers, err := json.Marshal(s.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions
		   (id, hall_ticket_id, student_id, status, current_question, question_ids, answers, time_remaining, violation_count)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8, $9)
		 RETURNING started_at`,
		s.ID, s.HallTicketID, s.StudentID, s.Status, s.CurrentQuestion,
		questionIDs, answers, s.TimeRemaining, s.ViolationCount,
	).Scan(&s.StartedAt)
}

// GetByID retrieves a session by its ID.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	return r.scanOne(r.pool.QueryRow(ctx,
		`SELECT id, hall_ticket_id, student_id, status, current_question, question_ids, answers,
		        time_remaining, violation_count, started_at, finished_at
		 FROM exam_sessions WHERE id = $1`, id))
}

// GetByHallTicket retrieves the session spawned by a hall ticket, if any.
func (r *ExamSessionRepository) GetByHallTicket(ctx context.Context, hallTicketID uuid.UUID) (*model.ExamSession, error) {
	return r.scanOne(r.pool.QueryRow(ctx,
		`SELECT id, hall_ticket_id, student_id, status, current_question, question_ids, answers,
		        time_remaining, violation_count, started_at, finished_at
		 FROM exam_sessions WHERE hall_ticket_id = $1`, hallTicketID))
}

// UpdateState persists a status transition together with the frozen time
// budget and violation count. finishedAt is nil for non-terminal states.
func (r *ExamSessionRepository) UpdateState(ctx context.Context, id uuid.UUID, status model.SessionStatus, timeRemaining, violationCount int, finishedAt *time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET status = $2, time_remaining = $3, violation_count = $4, finished_at = $5
		 WHERE id = $1`,
		id, status, timeRemaining, violationCount, finishedAt)
	return err
}

// FinalizeAnswers writes the complete final answer set and question pointer
// as part of the terminal transition.
func (r *ExamSessionRepository) FinalizeAnswers(ctx context.Context, s *model.ExamSession) error {
	answers, err := json.Marshal(s.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET answers = $2::jsonb, current_question = $3
		 WHERE id = $1`,
		s.ID, answers, s.CurrentQuestion)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *ExamSessionRepository) scanOne(row rowScanner) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	var questionIDs, answers []byte
	err := row.Scan(
		&s.ID, &s.HallTicketID, &s.StudentID, &s.Status, &s.CurrentQuestion,
		&questionIDs, &answers, &s.TimeRemaining, &s.ViolationCount,
		&s.StartedAt, &s.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(questionIDs, &s.QuestionIDs); err != nil {
		return nil, fmt.Errorf("unmarshal question ids: %w", err)
	}
	if err := json.Unmarshal(answers, &s.Answers); err != nil {
		return nil, fmt.Errorf("unmarshal answers: %w", err)
	}
	return s, nil
}
