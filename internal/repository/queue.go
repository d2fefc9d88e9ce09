package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invigilo/proctor-backend/internal/config"
	"github.com/redis/go-redis/v9"
)

// RedisQueue is a fire-and-forget persistence queue backed by a Redis list.
// Producers enqueue JSON payloads; a worker drains them into PostgreSQL.
type RedisQueue struct {
	rdb *redis.Client
	key string
}

// NewIncidentQueue returns the queue feeding the incident persistence worker.
func NewIncidentQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: config.WorkerKey.PersistIncidentsQueue}
}

// NewAnswerQueue returns the queue feeding the answer persistence worker.
func NewAnswerQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: config.WorkerKey.PersistAnswersQueue}
}

// Enqueue marshals v and pushes it onto the queue.
func (q *RedisQueue) Enqueue(ctx context.Context, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal queue payload: %w", err)
	}
	return q.rdb.RPush(ctx, q.key, payload).Err()
}
