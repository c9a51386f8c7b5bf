package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/quiz-integrity/internal/model"
)

// LiveSessionService keeps a student's live feed entry current from the
// student stream and notifies monitors.
type LiveSessionService struct {
	feed      LiveFeed
	publisher MonitorPublisher
	log       zerolog.Logger
	now       func() time.Time
}

// NewLiveSessionService creates a new LiveSessionService.
func NewLiveSessionService(feed LiveFeed, publisher MonitorPublisher, log zerolog.Logger) *LiveSessionService {
	return &LiveSessionService{
		feed:      feed,
		publisher: publisher,
		log:       log.With().Str("component", "live_session_service").Logger(),
		now:       time.Now,
	}
}

// Join creates the entry on the first ping and refreshes it afterwards.
func (s *LiveSessionService) Join(ctx context.Context, quizID, studentID, studentName string, answered int) (*model.LiveStudentSession, error) {
	return s.touch(ctx, quizID, studentID, studentName, answered, model.MonitorEventJoined)
}

// Progress records the answered count after an autosave.
func (s *LiveSessionService) Progress(ctx context.Context, quizID, studentID string, answered int) (*model.LiveStudentSession, error) {
	return s.touch(ctx, quizID, studentID, "", answered, model.MonitorEventProgress)
}

// Ping refreshes lastActive without changing progress.
func (s *LiveSessionService) Ping(ctx context.Context, quizID, studentID string) error {
	now := s.now()
	_, err := s.feed.Update(ctx, quizID, studentID, func(sess *model.LiveStudentSession) {
		if sess.StartedAt.IsZero() {
			sess.StartedAt = now
			sess.Status = model.SessionActive
		}
		sess.LastActive = now
		if sess.Status == model.SessionIdle {
			sess.Status = model.SessionActive
		}
	})
	return err
}

// MarkSubmitted moves the entry to its terminal state.
func (s *LiveSessionService) MarkSubmitted(ctx context.Context, quizID, studentID string, answered int) error {
	now := s.now()
	_, err := s.feed.Update(ctx, quizID, studentID, func(sess *model.LiveStudentSession) {
		if sess.StartedAt.IsZero() {
			sess.StartedAt = now
		}
		sess.LastActive = now
		sess.QuestionsAnswered = answered
		sess.Status = model.SessionSubmitted
	})
	return err
}

func (s *LiveSessionService) touch(ctx context.Context, quizID, studentID, studentName string, answered int, evType model.MonitorEventType) (*model.LiveStudentSession, error) {
	now := s.now()
	sess, err := s.feed.Update(ctx, quizID, studentID, func(sess *model.LiveStudentSession) {
		if sess.StartedAt.IsZero() {
			sess.StartedAt = now
			sess.Status = model.SessionActive
		}
		if studentName != "" {
			sess.StudentName = studentName
		}
		sess.LastActive = now
		if answered >= 0 {
			sess.QuestionsAnswered = answered
		}
		if sess.Status == model.SessionIdle {
			sess.Status = model.SessionActive
		}
	})
	if err != nil {
		return nil, err
	}

	if err := s.publisher.Publish(ctx, model.MonitorEvent{
		Type:      evType,
		QuizID:    quizID,
		StudentID: studentID,
		At:        now,
	}); err != nil {
		s.log.Warn().Err(err).Str("quiz_id", quizID).Msg("Failed to publish monitor event")
	}
	return sess, nil
}
