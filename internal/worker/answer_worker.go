package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/invigilo/proctor-backend/internal/config"
	"github.com/invigilo/proctor-backend/internal/service"
)

// AnswerWorker consumes persist_answers_queue and merges autosaved answers
// into the session's answers document. Best-effort by design: the
// authoritative answer set is flushed synchronously on submit.
type AnswerWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewAnswerWorker creates a new AnswerWorker.
func NewAnswerWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AnswerWorker {
	return &AnswerWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "answer_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *AnswerWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AnswerWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistAnswersQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var payload service.AnswerSave
	if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	if err := w.persistAnswer(ctx, &payload); err != nil {
		w.log.Error().Err(err).
			Str("session_id", payload.SessionID.String()).
			Str("question_id", payload.QuestionID).
			Msg("Failed to persist answer")
	}
}

// persistAnswer merges one answer into the session's jsonb answers column.
func (w *AnswerWorker) persistAnswer(ctx context.Context, p *service.AnswerSave) error {
	answer, err := json.Marshal(p.Answer)
	if err != nil {
		return err
	}
	_, err = w.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET answers = answers || jsonb_build_object($2::text, $3::jsonb)
		 WHERE id = $1`,
		p.SessionID, p.QuestionID, answer,
	)
	return err
}

// drain empties the queue without blocking, used during shutdown.
func (w *AnswerWorker) drain(ctx context.Context) {
	drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	for {
		result, err := w.rdb.LPop(drainCtx, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			return // Empty or Redis gone, either way we are done
		}

		var payload service.AnswerSave
		if err := json.Unmarshal([]byte(result), &payload); err != nil {
			continue
		}
		if err := w.persistAnswer(drainCtx, &payload); err != nil {
			w.log.Error().Err(err).Msg("Drain persist failed")
			return
		}
	}
}
