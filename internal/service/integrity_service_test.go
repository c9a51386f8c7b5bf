package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/quiz-integrity/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIntegrityFixture() (*IntegrityService, *fakeFeed, *fakeQueue, *fakePublisher) {
	feed := newFakeFeed()
	queue := &fakeQueue{}
	pub := &fakePublisher{}
	svc := NewIntegrityService(feed, queue, pub, zerolog.Nop())
	svc.now = func() time.Time { return t0 }
	return svc, feed, queue, pub
}

func TestRecordAppendsAndQueues(t *testing.T) {
	svc, feed, queue, pub := newIntegrityFixture()
	ctx := context.Background()

	first, err := svc.Record(ctx, "quiz-1", "s1", "Ayu", attemptAt(model.CheatTabSwitch, -time.Minute))
	require.NoError(t, err)
	assert.Equal(t, t0.Add(-time.Minute), first.Timestamp)

	_, err = svc.Record(ctx, "quiz-1", "s1", "Ayu", attemptAt(model.CheatCopyDetected, -2*time.Minute))
	require.NoError(t, err)

	sess := feed.get("quiz-1", "s1")
	require.Len(t, sess.CheatingAttempts, 2)
	assert.Equal(t, model.SessionSuspectedCheating, sess.Status)
	assert.Equal(t, "Ayu", sess.StudentName)
	assert.Equal(t, sess.CheatingAttempts[0].Timestamp, sess.CheatingAttempts[1].Timestamp)

	require.Len(t, queue.attempts, 2)
	assert.Equal(t, sess.CheatingAttempts[1], queue.attempts[1].CheatAttempt)
	assert.Len(t, pub.events, 2)
	assert.Equal(t, model.MonitorEventCheat, pub.events[0].Type)
}

func TestRecordUsesServerTimeForMissingOrFutureTimestamps(t *testing.T) {
	svc, _, _, _ := newIntegrityFixture()
	ctx := context.Background()

	stored, err := svc.Record(ctx, "quiz-1", "s1", "", model.CheatAttempt{Type: model.CheatWindowBlur})
	require.NoError(t, err)
	assert.Equal(t, t0, stored.Timestamp)

	stored, err = svc.Record(ctx, "quiz-1", "s2", "", attemptAt(model.CheatWindowBlur, time.Hour))
	require.NoError(t, err)
	assert.Equal(t, t0, stored.Timestamp)

	stored, err = svc.Record(ctx, "quiz-1", "s3", "", attemptAt(model.CheatWindowBlur, 2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, t0.Add(2*time.Second), stored.Timestamp)
}

func TestRecordKeepsUnknownTypes(t *testing.T) {
	svc, feed, _, _ := newIntegrityFixture()

	_, err := svc.Record(context.Background(), "quiz-1", "s1", "", model.CheatAttempt{Type: "devtools_open"})
	require.NoError(t, err)
	assert.Equal(t, model.CheatType("devtools_open"), feed.get("quiz-1", "s1").CheatingAttempts[0].Type)
}

func TestRecordDoesNotReopenSubmittedSession(t *testing.T) {
	svc, feed, _, _ := newIntegrityFixture()
	ctx := context.Background()
	_, _ = feed.Update(ctx, "quiz-1", "s1", func(s *model.LiveStudentSession) { s.Status = model.SessionSubmitted })

	_, err := svc.Record(ctx, "quiz-1", "s1", "", model.CheatAttempt{Type: model.CheatQuizAbandoned})
	require.NoError(t, err)
	assert.Equal(t, model.SessionSubmitted, feed.get("quiz-1", "s1").Status)
}

func TestRecordQueueFailure(t *testing.T) {
	svc, _, queue, pub := newIntegrityFixture()
	queue.err = errors.New("redis down")

	_, err := svc.Record(context.Background(), "quiz-1", "s1", "", model.CheatAttempt{Type: model.CheatTabSwitch})
	assert.Error(t, err)
	assert.Empty(t, pub.events)
}
