package repository

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/quiz-integrity/internal/config"
	"github.com/stemsi/quiz-integrity/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

var base = time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)

func TestMonitorRepositoryUpdateCreatesAndMerges(t *testing.T) {
	mr, rdb := newTestRedis(t)
	repo := NewMonitorRepository(rdb, 0, time.Hour)
	ctx := context.Background()

	sess, err := repo.Update(ctx, "quiz-1", "s1", func(s *model.LiveStudentSession) {
		s.StudentName = "Ayu"
		s.Status = model.SessionActive
	})
	require.NoError(t, err)
	assert.Equal(t, "s1", sess.StudentID)

	sess, err = repo.Update(ctx, "quiz-1", "s1", func(s *model.LiveStudentSession) {
		s.QuestionsAnswered = 3
	})
	require.NoError(t, err)
	assert.Equal(t, "Ayu", sess.StudentName)
	assert.Equal(t, 3, sess.QuestionsAnswered)

	key := config.CacheKey.LiveSessionsKey("quiz-1")
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Hour, mr.TTL(key))
}

func TestMonitorRepositoryConcurrentAppends(t *testing.T) {
	_, rdb := newTestRedis(t)
	repo := NewMonitorRepository(rdb, 0, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(ctx, "quiz-1", "s1", func(s *model.LiveStudentSession) {
				s.CheatingAttempts = append(s.CheatingAttempts, model.CheatAttempt{Type: model.CheatTabSwitch, Timestamp: base})
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap, err := repo.Snapshot(ctx, "quiz-1")
	require.NoError(t, err)
	require.Len(t, snap.ActiveStudents, 1)
	assert.Len(t, snap.ActiveStudents[0].CheatingAttempts, 4)
}

func TestMonitorRepositorySnapshotIdleRule(t *testing.T) {
	mr, rdb := newTestRedis(t)
	repo := NewMonitorRepository(rdb, 2*time.Minute, 0)
	repo.now = func() time.Time { return base }
	ctx := context.Background()

	put := func(sid string, s model.LiveStudentSession) {
		data, err := json.Marshal(s)
		require.NoError(t, err)
		mr.HSet(config.CacheKey.LiveSessionsKey("quiz-1"), sid, string(data))
	}
	put("fresh", model.LiveStudentSession{Status: model.SessionActive, LastActive: base.Add(-time.Minute)})
	put("stale", model.LiveStudentSession{Status: model.SessionActive, LastActive: base.Add(-5 * time.Minute)})
	put("flagged", model.LiveStudentSession{Status: model.SessionSuspectedCheating, LastActive: base.Add(-5 * time.Minute)})
	mr.HSet(config.CacheKey.LiveSessionsKey("quiz-1"), "broken", "{not json")

	snap, err := repo.Snapshot(ctx, "quiz-1")
	require.NoError(t, err)
	require.Len(t, snap.ActiveStudents, 3)

	status := make(map[string]model.SessionStatus)
	for _, s := range snap.ActiveStudents {
		status[s.StudentID] = s.Status
	}
	assert.Equal(t, model.SessionActive, status["fresh"])
	assert.Equal(t, model.SessionIdle, status["stale"])
	assert.Equal(t, model.SessionSuspectedCheating, status["flagged"])
}

func TestMonitorRepositorySnapshotEmpty(t *testing.T) {
	_, rdb := newTestRedis(t)
	repo := NewMonitorRepository(rdb, 0, 0)

	snap, err := repo.Snapshot(context.Background(), "quiz-none")
	require.NoError(t, err)
	assert.Equal(t, "quiz-none", snap.QuizID)
	assert.Empty(t, snap.ActiveStudents)
}

func TestMonitorRepositoryPublishSubscribe(t *testing.T) {
	_, rdb := newTestRedis(t)
	repo := NewMonitorRepository(rdb, 0, 0)
	ctx := context.Background()

	sub := repo.Subscribe(ctx, "quiz-1")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.Publish(ctx, model.MonitorEvent{Type: model.MonitorEventCheat, QuizID: "quiz-1", StudentID: "s1", At: base}))

	select {
	case msg := <-sub.Channel():
		var ev model.MonitorEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
		assert.Equal(t, model.MonitorEventCheat, ev.Type)
		assert.Equal(t, "s1", ev.StudentID)
	case <-time.After(2 * time.Second):
		t.Fatal("no monitor event received")
	}
}

func TestAnswerBufferRepository(t *testing.T) {
	mr, rdb := newTestRedis(t)
	repo := NewAnswerBufferRepository(rdb, 30*time.Minute)
	ctx := context.Background()

	n, err := repo.Save(ctx, "quiz-1", "s1", "q1", model.ScalarAnswer("a"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.Save(ctx, "quiz-1", "s1", "q2", model.SetAnswer("a", "c"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.Save(ctx, "quiz-1", "s1", "q1", model.ScalarAnswer("b"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	answers, err := repo.Load(ctx, "quiz-1", "s1")
	require.NoError(t, err)
	v, _ := answers["q1"].Scalar()
	assert.Equal(t, "b", v)
	ids, _ := answers["q2"].Set()
	assert.ElementsMatch(t, []string{"a", "c"}, ids)

	// clearing an answer removes it from the count
	n, err = repo.Save(ctx, "quiz-1", "s1", "q2", model.Answer{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, err := repo.Count(ctx, "quiz-1", "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 30*time.Minute, mr.TTL(config.CacheKey.StudentAnswersKey("quiz-1", "s1")))
}

func TestAnswerBufferEmptySetClearsAnswer(t *testing.T) {
	mr, rdb := newTestRedis(t)
	repo := NewAnswerBufferRepository(rdb, time.Hour)
	ctx := context.Background()

	_, err := repo.Save(ctx, "quiz-1", "s1", "q1", model.SetAnswer("a"))
	require.NoError(t, err)
	n, err := repo.Save(ctx, "quiz-1", "s1", "q2", model.ScalarAnswer("b"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.Save(ctx, "quiz-1", "s1", "q1", model.SetAnswer())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.Save(ctx, "quiz-1", "s1", "q2", model.ScalarAnswer(""))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	// an empty selection was never stored
	_, err = repo.Save(ctx, "quiz-1", "s1", "q3", model.SetAnswer())
	require.NoError(t, err)
	assert.False(t, mr.Exists(config.CacheKey.StudentAnswersKey("quiz-1", "s1")))
}

func TestAnswerBufferSeal(t *testing.T) {
	mr, rdb := newTestRedis(t)
	repo := NewAnswerBufferRepository(rdb, time.Hour)
	ctx := context.Background()

	_, err := repo.Save(ctx, "quiz-1", "s1", "q1", model.ScalarAnswer("a"))
	require.NoError(t, err)
	require.NoError(t, repo.Seal(ctx, "quiz-1", "s1", "r1"))

	live := config.CacheKey.StudentAnswersKey("quiz-1", "s1")
	sealed := config.CacheKey.SubmittedAnswersKey("quiz-1", "s1", "r1")
	assert.False(t, mr.Exists(live))
	assert.Equal(t, `"a"`, mr.HGet(sealed, "q1"))
	assert.Equal(t, time.Hour, mr.TTL(sealed))

	// a retry starts from an empty buffer
	count, err := repo.Count(ctx, "quiz-1", "s1")
	require.NoError(t, err)
	assert.Zero(t, count)

	n, err := repo.Save(ctx, "quiz-1", "s1", "q1", model.ScalarAnswer("b"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, `"a"`, mr.HGet(sealed, "q1"))

	// nothing buffered is fine
	assert.NoError(t, repo.Seal(ctx, "quiz-1", "s2", "r2"))
}

func TestAnswerBufferLoadEmpty(t *testing.T) {
	_, rdb := newTestRedis(t)
	repo := NewAnswerBufferRepository(rdb, 0)

	answers, err := repo.Load(context.Background(), "quiz-1", "nobody")
	require.NoError(t, err)
	assert.Empty(t, answers)
}

func TestDeviceRepositoryBind(t *testing.T) {
	mr, rdb := newTestRedis(t)
	repo := NewDeviceRepository(rdb, time.Hour)
	ctx := context.Background()

	bound, same, err := repo.Bind(ctx, "quiz-1", "s1", "laptop")
	require.NoError(t, err)
	assert.True(t, same)
	assert.Equal(t, "laptop", bound)

	bound, same, err = repo.Bind(ctx, "quiz-1", "s1", "laptop")
	require.NoError(t, err)
	assert.True(t, same)

	bound, same, err = repo.Bind(ctx, "quiz-1", "s1", "phone")
	require.NoError(t, err)
	assert.False(t, same)
	assert.Equal(t, "laptop", bound)

	mr.FastForward(2 * time.Hour)
	bound, same, err = repo.Bind(ctx, "quiz-1", "s1", "phone")
	require.NoError(t, err)
	assert.True(t, same)
	assert.Equal(t, "phone", bound)
}

func TestQueueRepository(t *testing.T) {
	mr, rdb := newTestRedis(t)
	repo := NewQueueRepository(rdb)
	ctx := context.Background()

	require.NoError(t, repo.EnqueueAttempt(ctx, model.StudentAttempt{QuizID: "quiz-1", StudentID: "s1", CheatAttempt: model.CheatAttempt{Type: model.CheatTabSwitch, Timestamp: base}}))
	require.NoError(t, repo.EnqueueAttempt(ctx, model.StudentAttempt{QuizID: "quiz-1", StudentID: "s2", CheatAttempt: model.CheatAttempt{Type: model.CheatWindowBlur, Timestamp: base}}))
	require.NoError(t, repo.EnqueueResult(ctx, &model.QuizResult{QuizID: "quiz-1", UserID: "s1", Completed: true}))

	depths, err := repo.Depths(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), depths[config.WorkerKey.PersistCheatsQueue])
	assert.Equal(t, int64(1), depths[config.WorkerKey.PersistResultsQueue])

	items, err := mr.List(config.WorkerKey.PersistCheatsQueue)
	require.NoError(t, err)
	var first model.StudentAttempt
	require.NoError(t, json.Unmarshal([]byte(items[0]), &first))
	assert.Equal(t, "s1", first.StudentID)
	assert.Equal(t, model.CheatTabSwitch, first.Type)
}
