package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stemsi/quiz-integrity/internal/model"
	"github.com/stemsi/quiz-integrity/internal/repository"
	"github.com/stemsi/quiz-integrity/internal/validator"
	"golang.org/x/sync/errgroup"
)

// Quiz errors.
var (
	ErrQuizNotFound     = errors.New("quiz not found")
	ErrQuizNotAvailable = errors.New("quiz is outside its availability window")
	ErrInvalidQuiz      = errors.New("quiz document is invalid")
)

// QuizIssue is one problem found in a quiz document.
type QuizIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (i QuizIssue) String() string { return i.Field + ": " + i.Message }

// InvalidQuizError carries every issue found by ValidateQuiz.
type InvalidQuizError struct {
	Issues []QuizIssue
}

func (e *InvalidQuizError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, i := range e.Issues {
		parts = append(parts, i.String())
	}
	return fmt.Sprintf("%s: %s", ErrInvalidQuiz, strings.Join(parts, "; "))
}

func (e *InvalidQuizError) Unwrap() error { return ErrInvalidQuiz }

// QuizService loads quiz documents together with their attempt log.
type QuizService struct {
	quizzes  QuizStore
	attempts AttemptStore
	log      zerolog.Logger
}

// NewQuizService creates a new QuizService.
func NewQuizService(quizzes QuizStore, attempts AttemptStore, log zerolog.Logger) *QuizService {
	return &QuizService{
		quizzes:  quizzes,
		attempts: attempts,
		log:      log.With().Str("component", "quiz_service").Logger(),
	}
}

// GetByID fetches the quiz document without attempts.
func (s *QuizService) GetByID(ctx context.Context, quizID string) (*model.Quiz, error) {
	quiz, err := s.quizzes.GetByID(ctx, quizID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("get quiz %s: %w", quizID, err)
	}
	return quiz, nil
}

// Load fetches the quiz and folds its attempt log into CheatingAttempts.
func (s *QuizService) Load(ctx context.Context, quizID string) (*model.Quiz, error) {
	var (
		quiz *model.Quiz
		rows []model.StudentAttempt
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		quiz, err = s.GetByID(gctx, quizID)
		return err
	})
	g.Go(func() error {
		var err error
		rows, err = s.attempts.ListByQuiz(gctx, quizID)
		if err != nil {
			return fmt.Errorf("list attempts: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	quiz.CheatingAttempts = make(map[string][]model.CheatAttempt)
	FoldAttempts(quiz, rows)
	return quiz, nil
}

// Import normalizes, validates and stores a quiz document.
func (s *QuizService) Import(ctx context.Context, quiz *model.Quiz) error {
	NormalizeQuiz(quiz)
	if issues := ValidateQuiz(quiz); len(issues) > 0 {
		return &InvalidQuizError{Issues: issues}
	}
	if err := s.quizzes.Upsert(ctx, quiz); err != nil {
		return fmt.Errorf("store quiz %s: %w", quiz.ID, err)
	}
	s.log.Info().Str("quiz_id", quiz.ID).Int("questions", len(quiz.Questions)).Int("points", quiz.Points).Msg("Quiz imported")
	return nil
}

// NormalizeQuiz recomputes the denormalized points total and fills defaults.
func NormalizeQuiz(quiz *model.Quiz) {
	quiz.Points = quiz.SumPoints()
	if quiz.SecurityLevel == "" {
		quiz.SecurityLevel = model.SecurityMedium
	}
	if quiz.ShowResults == "" {
		quiz.ShowResults = model.ShowResultsManual
	}
}

// ValidateQuiz checks the document against the question and quiz invariants.
func ValidateQuiz(quiz *model.Quiz) []QuizIssue {
	var issues []QuizIssue
	add := func(field, format string, args ...interface{}) {
		issues = append(issues, QuizIssue{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	for field, msg := range validator.Struct(quiz) {
		add(field, "%s", msg)
	}

	seen := make(map[string]struct{}, len(quiz.Questions))
	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		field := fmt.Sprintf("questions[%d]", i)

		if _, dup := seen[q.ID]; dup && q.ID != "" {
			add(field+".id", "duplicate question id %q", q.ID)
		}
		seen[q.ID] = struct{}{}

		if !q.Type.Known() {
			add(field+".type", "unsupported question type %q", q.Type)
			continue
		}
		validateQuestion(q, field, add)
	}

	if sum := quiz.SumPoints(); quiz.Points != sum {
		add("points", "points %d does not match question total %d", quiz.Points, sum)
	}
	if quiz.AvailableFrom != nil && quiz.AvailableTo != nil && quiz.AvailableTo.Before(*quiz.AvailableFrom) {
		add("available_to", "must not be before available_from")
	}
	return issues
}

func validateQuestion(q *model.Question, field string, add func(field, format string, args ...interface{})) {
	choiceIDs := make(map[string]struct{}, len(q.Choices))
	for _, c := range q.Choices {
		if _, dup := choiceIDs[c.ID]; dup {
			add(field+".choices", "duplicate choice id %q", c.ID)
		}
		choiceIDs[c.ID] = struct{}{}
	}

	answerField := field + ".correct_answer"
	switch q.Type {
	case model.QuestionTypeSingleChoice:
		if len(q.Choices) == 0 {
			add(field+".choices", "required for %s", q.Type)
		}
		id, ok := q.CorrectAnswer.Scalar()
		if !ok {
			add(answerField, "must be a single choice id")
			return
		}
		if _, ok := choiceIDs[id]; !ok {
			add(answerField, "references unknown choice %q", id)
		}

	case model.QuestionTypeMultipleChoice:
		if len(q.Choices) == 0 {
			add(field+".choices", "required for %s", q.Type)
		}
		ids, ok := q.CorrectAnswer.Set()
		if !ok || len(ids) == 0 {
			add(answerField, "must be a non-empty set of choice ids")
			return
		}
		for _, id := range ids {
			if _, ok := choiceIDs[id]; !ok {
				add(answerField, "references unknown choice %q", id)
			}
		}

	case model.QuestionTypeTrueFalse:
		v, ok := q.CorrectAnswer.Scalar()
		if !ok || (v != model.AnswerTrue && v != model.AnswerFalse) {
			add(answerField, "must be %q or %q", model.AnswerTrue, model.AnswerFalse)
		}

	case model.QuestionTypeOpenEnded:
		if !q.CorrectAnswer.IsZero() {
			add(answerField, "must be empty for %s", q.Type)
		}
	}
}
