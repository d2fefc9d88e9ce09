package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/invigilo/proctor-backend/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HallTicketRepository handles hall ticket data access. Tickets are created
// by the external admin workflow; this service only reads and consumes them.
type HallTicketRepository struct {
	pool *pgxpool.Pool
}

// NewHallTicketRepository creates a new HallTicketRepository.
func NewHallTicketRepository(pool *pgxpool.Pool) *HallTicketRepository {
	return &HallTicketRepository{pool: pool}
}

const hallTicketColumns = `id, ticket_token, student_id, exam_title, qbank_id, question_count,
	duration_minutes, status, is_verified, valid_from, valid_until`

// GetByID retrieves a hall ticket by its ID.
func (r *HallTicketRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.HallTicket, error) {
	return r.scanOne(r.pool.QueryRow(ctx,
		`SELECT `+hallTicketColumns+` FROM hall_tickets WHERE id = $1`, id))
}

// GetByToken retrieves a hall ticket by its scanned QR token.
func (r *HallTicketRepository) GetByToken(ctx context.Context, token string) (*model.HallTicket, error) {
	return r.scanOne(r.pool.QueryRow(ctx,
		`SELECT `+hallTicketColumns+` FROM hall_tickets WHERE ticket_token = $1`, token))
}

// MarkUsed flips an active ticket to USED once its session has been created.
func (r *HallTicketRepository) MarkUsed(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE hall_tickets SET status = $2 WHERE id = $1 AND status = $3`,
		id, model.HallTicketStatusUsed, model.HallTicketStatusActive)
	return err
}

// MarkVerified records that the student passed identity verification.
func (r *HallTicketRepository) MarkVerified(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE hall_tickets SET is_verified = TRUE WHERE id = $1`, id)
	return err
}

func (r *HallTicketRepository) scanOne(row rowScanner) (*model.HallTicket, error) {
	t := &model.HallTicket{}
	err := row.Scan(
		&t.ID, &t.TicketToken, &t.StudentID, &t.ExamTitle, &t.QBankID, &t.QuestionCount,
		&t.DurationMinutes, &t.Status, &t.IsVerified, &t.ValidFrom, &t.ValidUntil,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}
