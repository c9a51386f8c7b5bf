package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/quiz-integrity/internal/model"
)

// Submission errors.
var (
	ErrAlreadySubmitted = errors.New("no attempts left for this quiz")
	ErrResultNotFound   = errors.New("no result for this student")
)

// Submission is a student's final answer set for one quiz.
type Submission struct {
	QuizID         string
	UserID         string
	Answers        map[string]model.Answer
	TotalTimeSpent int
}

// GradedSubmission is the outcome returned to the student stream.
type GradedSubmission struct {
	Result     *model.QuizResult
	Percentage string
	// Reveal is true when the quiz shows results immediately.
	Reveal bool
}

// RescoreDiff reports a stored result whose score differs from a regrade.
type RescoreDiff struct {
	ResultID    uuid.UUID `json:"result_id"`
	UserID      string    `json:"user_id"`
	StoredScore int       `json:"stored_score"`
	StoredTotal int       `json:"stored_total"`
	Score       int       `json:"score"`
	TotalPoints int       `json:"total_points"`
}

// GradingService grades submissions and hands results to the persistence queue.
type GradingService struct {
	quizzes   *QuizService
	results   ResultStore
	queue     PersistQueue
	publisher MonitorPublisher
	log       zerolog.Logger
	now       func() time.Time
}

// NewGradingService creates a new GradingService.
func NewGradingService(quizzes *QuizService, results ResultStore, queue PersistQueue, publisher MonitorPublisher, log zerolog.Logger) *GradingService {
	return &GradingService{
		quizzes:   quizzes,
		results:   results,
		queue:     queue,
		publisher: publisher,
		log:       log.With().Str("component", "grading_service").Logger(),
		now:       time.Now,
	}
}

// Submit grades sub, queues the completed result and notifies monitors.
func (s *GradingService) Submit(ctx context.Context, sub Submission) (*GradedSubmission, error) {
	quiz, err := s.quizzes.GetByID(ctx, sub.QuizID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !quiz.Available(now) {
		return nil, ErrQuizNotAvailable
	}

	if quiz.MaxAttempts > 0 {
		prior, err := s.results.ListByQuizAndUser(ctx, sub.QuizID, sub.UserID)
		if err != nil {
			return nil, fmt.Errorf("list prior results: %w", err)
		}
		completed := 0
		for _, r := range prior {
			if r.Completed {
				completed++
			}
		}
		if completed >= quiz.MaxAttempts {
			return nil, ErrAlreadySubmitted
		}
	}

	answers := make(map[string]model.Answer, len(sub.Answers))
	for qid, ans := range sub.Answers {
		answers[qid] = ans
	}
	score := ScoreSubmission(quiz, answers)

	result := &model.QuizResult{
		ID:             uuid.New(),
		UserID:         sub.UserID,
		QuizID:         sub.QuizID,
		Answers:        answers,
		Score:          score.Score,
		TotalPoints:    score.TotalPoints,
		Completed:      true,
		Timestamp:      now,
		TotalTimeSpent: sub.TotalTimeSpent,
	}

	if err := s.queue.EnqueueResult(ctx, result); err != nil {
		return nil, fmt.Errorf("queue result: %w", err)
	}

	if err := s.publisher.Publish(ctx, model.MonitorEvent{
		Type:      model.MonitorEventSubmitted,
		QuizID:    sub.QuizID,
		StudentID: sub.UserID,
		At:        now,
	}); err != nil {
		s.log.Warn().Err(err).Str("quiz_id", sub.QuizID).Msg("Failed to publish submit event")
	}

	s.log.Info().
		Str("quiz_id", sub.QuizID).
		Str("user_id", sub.UserID).
		Int("score", score.Score).
		Int("total_points", score.TotalPoints).
		Msg("Quiz submitted and graded")

	return &GradedSubmission{
		Result:     result,
		Percentage: FormatPercentage(score.Score, score.TotalPoints),
		Reveal:     quiz.ShowResults == model.ShowResultsImmediately,
	}, nil
}

// Rescore regrades every stored result of a quiz against the current
// document. Stored results are not modified.
func (s *GradingService) Rescore(ctx context.Context, quizID string) ([]RescoreDiff, error) {
	quiz, err := s.quizzes.GetByID(ctx, quizID)
	if err != nil {
		return nil, err
	}
	results, err := s.results.ListByQuiz(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}

	var diffs []RescoreDiff
	for _, r := range results {
		got := ScoreSubmission(quiz, r.Answers)
		if got.Score == r.Score && got.TotalPoints == r.TotalPoints {
			continue
		}
		diffs = append(diffs, RescoreDiff{
			ResultID:    r.ID,
			UserID:      r.UserID,
			StoredScore: r.Score,
			StoredTotal: r.TotalPoints,
			Score:       got.Score,
			TotalPoints: got.TotalPoints,
		})
	}
	return diffs, nil
}
