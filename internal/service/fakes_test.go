package service

import (
	"context"
	"errors"
	"sync"

	"github.com/stemsi/quiz-integrity/internal/model"
	"github.com/stemsi/quiz-integrity/internal/repository"
)

type fakeQuizStore struct {
	quizzes map[string]*model.Quiz
}

func newFakeQuizStore(quizzes ...*model.Quiz) *fakeQuizStore {
	s := &fakeQuizStore{quizzes: make(map[string]*model.Quiz)}
	for _, q := range quizzes {
		s.quizzes[q.ID] = q
	}
	return s
}

func (s *fakeQuizStore) GetByID(_ context.Context, quizID string) (*model.Quiz, error) {
	q, ok := s.quizzes[quizID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (s *fakeQuizStore) Upsert(_ context.Context, quiz *model.Quiz) error {
	s.quizzes[quiz.ID] = quiz
	return nil
}

type fakeResultStore struct {
	results []model.QuizResult
	err     error
}

func (s *fakeResultStore) ListByQuiz(_ context.Context, quizID string) ([]model.QuizResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []model.QuizResult
	for _, r := range s.results {
		if r.QuizID == quizID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeResultStore) ListByQuizAndUser(ctx context.Context, quizID, userID string) ([]model.QuizResult, error) {
	all, err := s.ListByQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	var out []model.QuizResult
	for _, r := range all {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeAttemptStore struct {
	rows []model.StudentAttempt
}

func (s *fakeAttemptStore) ListByQuiz(_ context.Context, quizID string) ([]model.StudentAttempt, error) {
	var out []model.StudentAttempt
	for _, r := range s.rows {
		if r.QuizID == quizID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeAttemptStore) ListByStudent(ctx context.Context, quizID, studentID string) ([]model.StudentAttempt, error) {
	all, _ := s.ListByQuiz(ctx, quizID)
	var out []model.StudentAttempt
	for _, r := range all {
		if r.StudentID == studentID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeDirectory struct {
	students map[string]*model.Student
	err      error
}

func (d *fakeDirectory) GetByIDs(_ context.Context, ids []string) (map[string]*model.Student, error) {
	if d.err != nil {
		return nil, d.err
	}
	out := make(map[string]*model.Student)
	for _, id := range ids {
		if s, ok := d.students[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

type fakeFeed struct {
	mu       sync.Mutex
	sessions map[string]map[string]model.LiveStudentSession
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{sessions: make(map[string]map[string]model.LiveStudentSession)}
}

func (f *fakeFeed) Snapshot(_ context.Context, quizID string) (model.LiveSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := model.LiveSnapshot{QuizID: quizID}
	for _, s := range f.sessions[quizID] {
		snap.ActiveStudents = append(snap.ActiveStudents, s)
	}
	return snap, nil
}

func (f *fakeFeed) Update(_ context.Context, quizID, studentID string, fn func(s *model.LiveStudentSession)) (*model.LiveStudentSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sessions[quizID] == nil {
		f.sessions[quizID] = make(map[string]model.LiveStudentSession)
	}
	s, ok := f.sessions[quizID][studentID]
	if !ok {
		s = model.LiveStudentSession{StudentID: studentID}
	}
	fn(&s)
	f.sessions[quizID][studentID] = s
	return &s, nil
}

func (f *fakeFeed) get(quizID, studentID string) model.LiveStudentSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[quizID][studentID]
}

type fakeQueue struct {
	attempts []model.StudentAttempt
	results  []*model.QuizResult
	err      error
}

func (q *fakeQueue) EnqueueAttempt(_ context.Context, a model.StudentAttempt) error {
	if q.err != nil {
		return q.err
	}
	q.attempts = append(q.attempts, a)
	return nil
}

func (q *fakeQueue) EnqueueResult(_ context.Context, r *model.QuizResult) error {
	if q.err != nil {
		return q.err
	}
	q.results = append(q.results, r)
	return nil
}

type fakePublisher struct {
	events []model.MonitorEvent
	fail   bool
}

func (p *fakePublisher) Publish(_ context.Context, ev model.MonitorEvent) error {
	if p.fail {
		return errors.New("publish failed")
	}
	p.events = append(p.events, ev)
	return nil
}
