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

// ResultWriter is the result store the result worker drains into.
type ResultWriter interface {
	CopyResults(ctx context.Context, batch []*model.QuizResult) (int64, error)
	Insert(ctx context.Context, res *model.QuizResult) error
}

// ResultWorker persists graded submissions and clears their answer buffers.
type ResultWorker struct {
	store ResultWriter
	rdb   *redis.Client
	log   zerolog.Logger

	batchTimeout time.Duration
}

func NewResultWorker(store ResultWriter, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		store:        store,
		rdb:          rdb,
		log:          log.With().Str("component", "result_worker").Logger(),
		batchTimeout: BatchTimeout,
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]*model.QuizResult, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= BatchSize || time.Since(lastFlush) >= w.batchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Int("pending", len(batch)).Msg("Shutdown requested. Flushing remaining batch...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.flushSafe(shutdownCtx, batch)
			cancel()
			return

		default:
			item, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistResultsQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
					sleepCtx(ctx, time.Second)
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var res model.QuizResult
			if err := json.Unmarshal([]byte(item[1]), &res); err != nil {
				w.log.Error().Err(err).Str("data", item[1]).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &res)
		}
	}
}

// ----------------------------------------------------------------
// Batch insert wrapper
// ----------------------------------------------------------------

func (w *ResultWorker) flushSafe(ctx context.Context, batch []*model.QuizResult) {
	if len(batch) == 0 {
		return
	}

	if _, err := w.store.CopyResults(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("bulk result insert failed, using fallback")

		persisted := make([]*model.QuizResult, 0, len(batch))
		for _, res := range batch {
			if err := w.store.Insert(ctx, res); err != nil {
				w.log.Error().Err(err).
					Str("result_id", res.ID.String()).
					Msg("result insert failed, requeueing")
				raw, _ := json.Marshal(res)
				w.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
				continue
			}
			persisted = append(persisted, res)
		}
		w.clearAnswerBuffers(ctx, persisted)
		return
	}

	w.clearAnswerBuffers(ctx, batch)
}

// clearAnswerBuffers drops the sealed answer hashes of persisted submissions.
// The live buffer may already hold answers for a later attempt.
func (w *ResultWorker) clearAnswerBuffers(ctx context.Context, batch []*model.QuizResult) {
	if len(batch) == 0 {
		return
	}

	pipe := w.rdb.Pipeline()
	for _, res := range batch {
		pipe.Del(ctx, config.CacheKey.SubmittedAnswersKey(res.QuizID, res.UserID, res.ID.String()))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Warn().Err(err).Msg("failed to clear answer buffers")
	}
}
