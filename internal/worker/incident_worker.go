package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/invigilo/proctor-backend/internal/config"
	"github.com/invigilo/proctor-backend/internal/model"
	"github.com/invigilo/proctor-backend/internal/repository"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// IncidentWorker drains the incident queue into PostgreSQL in batches.
// The hot path (classification and fan-out) never waits on the database;
// this worker is the only thing between the queue and durable storage.
type IncidentWorker struct {
	incidents *repository.IncidentRepository
	rdb       *redis.Client
	log       zerolog.Logger
}

func NewIncidentWorker(incidents *repository.IncidentRepository, rdb *redis.Client, log zerolog.Logger) *IncidentWorker {
	return &IncidentWorker{
		incidents: incidents,
		rdb:       rdb,
		log:       log.With().Str("component", "incident_worker").Logger(),
	}
}

func (w *IncidentWorker) Start(ctx context.Context) {
	w.log.Info().Msg("IncidentWorker started")

	buffer := make([]*model.SecurityIncident, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// Flush on size or age.
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// BLPop blocks for 1 second. Returns immediately if data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistIncidentsQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue // Queue empty, loop back to check flush timer
			}
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var incident model.SecurityIncident
		if err := json.Unmarshal([]byte(result[1]), &incident); err != nil {
			// Malformed JSON cannot be retried. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed incident")
			continue
		}

		buffer = append(buffer, &incident)
	}
}

// flushSafe attempts bulk insert, then row-by-row recovery, then requeue.
func (w *IncidentWorker) flushSafe(ctx context.Context, batch []*model.SecurityIncident) {
	if err := w.incidents.BulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *IncidentWorker) fallbackInsert(ctx context.Context, batch []*model.SecurityIncident) {
	requeueList := make([]*model.SecurityIncident, 0)

	for _, inc := range batch {
		if err := w.incidents.Insert(ctx, inc); err != nil {
			w.log.Error().Err(err).Str("incident_id", inc.ID.String()).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, inc)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *IncidentWorker) requeue(ctx context.Context, items []*model.SecurityIncident) {
	pipe := w.rdb.Pipeline()
	for _, inc := range items {
		data, _ := json.Marshal(inc)
		pipe.RPush(ctx, config.WorkerKey.PersistIncidentsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue incidents to Redis. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed incidents back to Redis")
	// Avoid thrashing while the database is down.
	time.Sleep(2 * time.Second)
}

func (w *IncidentWorker) shutdown(buffer []*model.SecurityIncident) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
