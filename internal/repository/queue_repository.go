package repository

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/quiz-integrity/internal/config"
	"github.com/stemsi/quiz-integrity/internal/model"
)

// QueueRepository pushes payloads onto the Redis persistence queues
// drained by the workers.
type QueueRepository struct {
	rdb *redis.Client
}

// NewQueueRepository creates a new QueueRepository.
func NewQueueRepository(rdb *redis.Client) *QueueRepository {
	return &QueueRepository{rdb: rdb}
}

// EnqueueAttempt queues an attempt for the cheat worker.
func (r *QueueRepository) EnqueueAttempt(ctx context.Context, a model.StudentAttempt) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return r.rdb.RPush(ctx, config.WorkerKey.PersistCheatsQueue, payload).Err()
}

// EnqueueResult queues a graded result for the result worker.
func (r *QueueRepository) EnqueueResult(ctx context.Context, res *model.QuizResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return r.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, payload).Err()
}

// Depths returns the length of every persistence queue.
func (r *QueueRepository) Depths(ctx context.Context) (map[string]int64, error) {
	queues := config.WorkerKey.Queues()
	cmds := make([]*redis.IntCmd, len(queues))

	pipe := r.rdb.Pipeline()
	for i, q := range queues {
		cmds[i] = pipe.LLen(ctx, q)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(queues))
	for i, q := range queues {
		out[q] = cmds[i].Val()
	}
	return out, nil
}
