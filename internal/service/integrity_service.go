package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/quiz-integrity/internal/model"
)

// maxClockSkew bounds how far ahead of the server a client timestamp may be.
const maxClockSkew = 5 * time.Second

// IntegrityService records integrity events. The live feed entry holds the
// sequence seen so far; the persistence queue makes it durable.
type IntegrityService struct {
	feed      LiveFeed
	queue     PersistQueue
	publisher MonitorPublisher
	log       zerolog.Logger
	now       func() time.Time
}

// NewIntegrityService creates a new IntegrityService.
func NewIntegrityService(feed LiveFeed, queue PersistQueue, publisher MonitorPublisher, log zerolog.Logger) *IntegrityService {
	return &IntegrityService{
		feed:      feed,
		queue:     queue,
		publisher: publisher,
		log:       log.With().Str("component", "integrity_service").Logger(),
		now:       time.Now,
	}
}

// Record appends one attempt for (quizID, studentID) and returns it as stored.
// Unknown types are kept; they display as UnknownCheatLabel.
func (s *IntegrityService) Record(ctx context.Context, quizID, studentID, studentName string, a model.CheatAttempt) (model.CheatAttempt, error) {
	now := s.now()
	if a.Timestamp.IsZero() || a.Timestamp.After(now.Add(maxClockSkew)) {
		a.Timestamp = now
	}
	if !a.Type.Known() {
		s.log.Warn().Str("quiz_id", quizID).Str("type", string(a.Type)).Msg("Recording attempt with unknown type")
	}

	var stored model.CheatAttempt
	_, err := s.feed.Update(ctx, quizID, studentID, func(sess *model.LiveStudentSession) {
		if sess.StartedAt.IsZero() {
			sess.StartedAt = now
		}
		if sess.StudentName == "" {
			sess.StudentName = studentName
		}
		sess.LastActive = now
		sess.CheatingAttempts, stored = AppendAttempt(sess.CheatingAttempts, a)
		if sess.Status != model.SessionSubmitted {
			sess.Status = model.SessionSuspectedCheating
		}
	})
	if err != nil {
		return model.CheatAttempt{}, fmt.Errorf("update live session: %w", err)
	}

	if err := s.queue.EnqueueAttempt(ctx, model.StudentAttempt{
		QuizID:       quizID,
		StudentID:    studentID,
		CheatAttempt: stored,
	}); err != nil {
		return model.CheatAttempt{}, fmt.Errorf("queue attempt: %w", err)
	}

	if err := s.publisher.Publish(ctx, model.MonitorEvent{
		Type:      model.MonitorEventCheat,
		QuizID:    quizID,
		StudentID: studentID,
		At:        now,
	}); err != nil {
		s.log.Warn().Err(err).Str("quiz_id", quizID).Msg("Failed to publish cheat event")
	}

	s.log.Info().
		Str("quiz_id", quizID).
		Str("student_id", studentID).
		Str("type", string(stored.Type)).
		Str("severity", string(stored.Type.Severity())).
		Msg("Integrity event recorded")

	return stored, nil
}
