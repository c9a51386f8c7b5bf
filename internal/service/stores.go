package service

import (
	"context"

	"github.com/stemsi/quiz-integrity/internal/model"
)

// Collaborators consumed by the services. Postgres and Redis repositories
// satisfy them in production; tests use in-memory fakes.

// QuizStore fetches quiz documents by id.
type QuizStore interface {
	GetByID(ctx context.Context, quizID string) (*model.Quiz, error)
	Upsert(ctx context.Context, quiz *model.Quiz) error
}

// ResultStore reads insert-only quiz results.
type ResultStore interface {
	ListByQuiz(ctx context.Context, quizID string) ([]model.QuizResult, error)
	ListByQuizAndUser(ctx context.Context, quizID, userID string) ([]model.QuizResult, error)
}

// AttemptStore reads the append-only attempt log in insertion order.
type AttemptStore interface {
	ListByQuiz(ctx context.Context, quizID string) ([]model.StudentAttempt, error)
	ListByStudent(ctx context.Context, quizID, studentID string) ([]model.StudentAttempt, error)
}

// StudentDirectory resolves display names. Missing ids are simply absent
// from the returned map.
type StudentDirectory interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]*model.Student, error)
}

// LiveFeed is the source of live session snapshots and the writer used by
// the student stream to keep entries current.
type LiveFeed interface {
	Snapshot(ctx context.Context, quizID string) (model.LiveSnapshot, error)
	Update(ctx context.Context, quizID, studentID string, fn func(s *model.LiveStudentSession)) (*model.LiveStudentSession, error)
}

// PersistQueue hands attempts and results to the background workers.
type PersistQueue interface {
	EnqueueAttempt(ctx context.Context, a model.StudentAttempt) error
	EnqueueResult(ctx context.Context, r *model.QuizResult) error
}

// MonitorPublisher notifies live monitors that a quiz changed.
type MonitorPublisher interface {
	Publish(ctx context.Context, ev model.MonitorEvent) error
}
