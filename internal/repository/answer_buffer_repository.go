package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/quiz-integrity/internal/config"
	"github.com/stemsi/quiz-integrity/internal/model"
)

// AnswerBufferRepository holds autosaved answers in Redis until submit.
type AnswerBufferRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewAnswerBufferRepository creates a new AnswerBufferRepository.
func NewAnswerBufferRepository(rdb *redis.Client, ttl time.Duration) *AnswerBufferRepository {
	return &AnswerBufferRepository{rdb: rdb, ttl: ttl}
}

// Save stores one answer and returns how many questions are answered. A
// blank answer clears the question.
func (r *AnswerBufferRepository) Save(ctx context.Context, quizID, studentID, questionID string, ans model.Answer) (int64, error) {
	key := config.CacheKey.StudentAnswersKey(quizID, studentID)
	encoded, err := json.Marshal(ans)
	if err != nil {
		return 0, err
	}

	var count *redis.IntCmd
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if ans.IsBlank() {
			pipe.HDel(ctx, key, questionID)
		} else {
			pipe.HSet(ctx, key, questionID, encoded)
		}
		count = pipe.HLen(ctx, key)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count.Val(), nil
}

// Count returns how many questions have a buffered answer.
func (r *AnswerBufferRepository) Count(ctx context.Context, quizID, studentID string) (int64, error) {
	return r.rdb.HLen(ctx, config.CacheKey.StudentAnswersKey(quizID, studentID)).Result()
}

// Load decodes every buffered answer.
func (r *AnswerBufferRepository) Load(ctx context.Context, quizID, studentID string) (map[string]model.Answer, error) {
	raw, err := r.rdb.HGetAll(ctx, config.CacheKey.StudentAnswersKey(quizID, studentID)).Result()
	if err != nil {
		return nil, err
	}

	answers := make(map[string]model.Answer, len(raw))
	for qid, data := range raw {
		var ans model.Answer
		if err := json.Unmarshal([]byte(data), &ans); err != nil {
			return nil, fmt.Errorf("decode buffered answer %s: %w", qid, err)
		}
		answers[qid] = ans
	}
	return answers, nil
}

// Seal moves the buffer aside under the graded result's id. Autosaves after
// a submit then land in a fresh buffer and survive the result worker
// clearing the sealed one. A missing buffer is not an error.
func (r *AnswerBufferRepository) Seal(ctx context.Context, quizID, studentID, resultID string) error {
	src := config.CacheKey.StudentAnswersKey(quizID, studentID)
	dst := config.CacheKey.SubmittedAnswersKey(quizID, studentID, resultID)

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Rename(ctx, src, dst)
		if r.ttl > 0 {
			pipe.Expire(ctx, dst, r.ttl)
		}
		return nil
	})
	if err != nil && !isNoSuchKey(err) {
		return err
	}
	return nil
}

func isNoSuchKey(err error) bool {
	return strings.Contains(err.Error(), "no such key")
}
