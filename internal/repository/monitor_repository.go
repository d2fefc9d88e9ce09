package repository

import (
	"context"
	"encoding/json"

	"github.com/invigilo/proctor-backend/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MonitorRepository provides data access for the admin dashboard aggregates.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// CountActiveSessions returns the number of sessions currently in progress
// or paused.
func (r *MonitorRepository) CountActiveSessions(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_sessions WHERE status IN ($1, $2)`,
		model.SessionStatusInProgress, model.SessionStatusPaused).Scan(&n)
	return n, err
}

// AverageProgress returns the mean answered fraction (0..1) across live
// sessions. The fraction is computed in Go from the jsonb documents rather
// than in SQL to keep the query trivial.
func (r *MonitorRepository) AverageProgress(ctx context.Context) (float64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_ids, answers FROM exam_sessions WHERE status IN ($1, $2)`,
		model.SessionStatusInProgress, model.SessionStatusPaused)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var sum float64
	var count int
	for rows.Next() {
		var questionIDs, answers []byte
		if err := rows.Scan(&questionIDs, &answers); err != nil {
			return 0, err
		}
		var qids []string
		var ans map[string]string
		if err := json.Unmarshal(questionIDs, &qids); err != nil {
			continue
		}
		if err := json.Unmarshal(answers, &ans); err != nil {
			continue
		}
		if len(qids) == 0 {
			continue
		}
		sum += float64(len(ans)) / float64(len(qids))
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}
	return sum / float64(count), nil
}
