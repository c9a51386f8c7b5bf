package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/quiz-integrity/internal/config"
	"github.com/stemsi/quiz-integrity/internal/model"
)

const maxUpdateRetries = 5

// MonitorRepository is the Redis-backed live session feed. Every student of
// a quiz has one JSON entry in the quiz's live sessions hash. It also owns
// the quiz monitor pub/sub channel.
type MonitorRepository struct {
	rdb       *redis.Client
	idleAfter time.Duration
	ttl       time.Duration
	now       func() time.Time
}

// NewMonitorRepository creates a new MonitorRepository. idleAfter is the
// inactivity window after which active entries read as idle; zero disables it.
func NewMonitorRepository(rdb *redis.Client, idleAfter, ttl time.Duration) *MonitorRepository {
	return &MonitorRepository{rdb: rdb, idleAfter: idleAfter, ttl: ttl, now: time.Now}
}

// Snapshot returns every live entry of a quiz. Malformed entries are skipped.
func (r *MonitorRepository) Snapshot(ctx context.Context, quizID string) (model.LiveSnapshot, error) {
	snap := model.LiveSnapshot{QuizID: quizID}

	raw, err := r.rdb.HGetAll(ctx, config.CacheKey.LiveSessionsKey(quizID)).Result()
	if err != nil {
		return snap, err
	}

	now := r.now()
	snap.ActiveStudents = make([]model.LiveStudentSession, 0, len(raw))
	for sid, data := range raw {
		var s model.LiveStudentSession
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			continue
		}
		s.StudentID = sid
		if r.idleAfter > 0 && s.Status == model.SessionActive && now.Sub(s.LastActive) > r.idleAfter {
			s.Status = model.SessionIdle
		}
		snap.ActiveStudents = append(snap.ActiveStudents, s)
	}
	return snap, nil
}

// Update applies fn to one entry under optimistic locking, creating the
// entry when absent, and returns the stored value.
func (r *MonitorRepository) Update(ctx context.Context, quizID, studentID string, fn func(s *model.LiveStudentSession)) (*model.LiveStudentSession, error) {
	key := config.CacheKey.LiveSessionsKey(quizID)
	var stored model.LiveStudentSession

	txf := func(tx *redis.Tx) error {
		sess := model.LiveStudentSession{StudentID: studentID}
		data, err := tx.HGet(ctx, key, studentID).Bytes()
		switch {
		case err == nil:
			if err := json.Unmarshal(data, &sess); err != nil {
				sess = model.LiveStudentSession{StudentID: studentID}
			}
		case !errors.Is(err, redis.Nil):
			return err
		}

		fn(&sess)
		sess.StudentID = studentID

		encoded, err := json.Marshal(sess)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, studentID, encoded)
			if r.ttl > 0 {
				pipe.Expire(ctx, key, r.ttl)
			}
			return nil
		})
		if err == nil {
			stored = sess
		}
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := r.rdb.Watch(ctx, txf, key)
		if err == nil {
			return &stored, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("update live session %s/%s: %w", quizID, studentID, redis.TxFailedErr)
}

// Publish notifies monitors of a quiz.
func (r *MonitorRepository) Publish(ctx context.Context, ev model.MonitorEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, config.CacheKey.QuizMonitorChannel(ev.QuizID), payload).Err()
}

// Subscribe opens the monitor channel of a quiz. The caller closes it.
func (r *MonitorRepository) Subscribe(ctx context.Context, quizID string) *redis.PubSub {
	return r.rdb.Subscribe(ctx, config.CacheKey.QuizMonitorChannel(quizID))
}
