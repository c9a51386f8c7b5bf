package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quiz-integrity/internal/config"
	"github.com/stemsi/quiz-integrity/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// AttemptWriter is the append-only store the cheat worker drains into.
type AttemptWriter interface {
	CopyAttempts(ctx context.Context, batch []model.StudentAttempt) (int64, error)
	Insert(ctx context.Context, a model.StudentAttempt) error
}

// CheatWorker moves queued integrity events from Redis into Postgres.
type CheatWorker struct {
	store AttemptWriter
	rdb   *redis.Client
	log   zerolog.Logger

	batchTimeout time.Duration
	requeueDelay time.Duration
}

func NewCheatWorker(store AttemptWriter, rdb *redis.Client, log zerolog.Logger) *CheatWorker {
	return &CheatWorker{
		store:        store,
		rdb:          rdb,
		log:          log.With().Str("component", "cheat_worker").Logger(),
		batchTimeout: BatchTimeout,
		requeueDelay: 2 * time.Second,
	}
}

func (w *CheatWorker) Start(ctx context.Context) {
	w.log.Info().Msg("CheatWorker started")

	buffer := make([]model.StudentAttempt, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Flush on size or age
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= w.batchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		// 2. Graceful shutdown
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistCheatsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			sleepCtx(ctx, 3*time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var a model.StudentAttempt
		if err := json.Unmarshal([]byte(result[1]), &a); err != nil {
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}
		if a.QuizID == "" || a.StudentID == "" {
			w.log.Error().Str("data", result[1]).Msg("Discarding attempt without quiz or student")
			continue
		}

		buffer = append(buffer, a)
	}
}

// flushSafe attempts bulk insert, then row-by-row insert, then requeue.
func (w *CheatWorker) flushSafe(ctx context.Context, batch []model.StudentAttempt) {
	if len(batch) == 0 {
		return
	}

	n, err := w.store.CopyAttempts(ctx, batch)
	if err == nil {
		w.log.Debug().Int64("count", n).Msg("Persisted cheating attempts")
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")

	requeueList := make([]model.StudentAttempt, 0)
	for _, a := range batch {
		if err := w.store.Insert(ctx, a); err != nil {
			w.log.Error().Err(err).
				Str("quiz_id", a.QuizID).
				Str("student_id", a.StudentID).
				Msg("Insert failed, requeueing")
			requeueList = append(requeueList, a)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *CheatWorker) requeue(ctx context.Context, items []model.StudentAttempt) {
	pipe := w.rdb.Pipeline()
	for _, a := range items {
		data, _ := json.Marshal(a)
		pipe.RPush(ctx, config.WorkerKey.PersistCheatsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue attempts to Redis. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed attempts back to Redis")
	sleepCtx(ctx, w.requeueDelay)
}

func (w *CheatWorker) shutdown(buffer []model.StudentAttempt) {
	w.log.Info().Int("pending", len(buffer)).Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	w.flushSafe(shutdownCtx, buffer)
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
