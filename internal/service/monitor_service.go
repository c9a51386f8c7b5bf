package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/quiz-integrity/internal/model"
	"golang.org/x/sync/errgroup"
)

// MonitorService drives live monitoring: it fetches feed snapshots and
// results, and merges them through a client's Monitor.
type MonitorService struct {
	quizzes  *QuizService
	results  ResultStore
	feed     LiveFeed
	students StudentDirectory
	log      zerolog.Logger
	now      func() time.Time
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(quizzes *QuizService, results ResultStore, feed LiveFeed, students StudentDirectory, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		quizzes:  quizzes,
		results:  results,
		feed:     feed,
		students: students,
		log:      log.With().Str("component", "monitor_service").Logger(),
		now:      time.Now,
	}
}

// Start points m at quizID, discarding state for any previous quiz.
func (s *MonitorService) Start(ctx context.Context, m *Monitor, quizID string) (*model.Quiz, error) {
	quiz, err := s.quizzes.GetByID(ctx, quizID)
	if err != nil {
		return nil, err
	}
	m.Watch(quizID, len(quiz.Questions))
	return quiz, nil
}

// Refresh runs one cycle for the quiz m is watching. The feed snapshot and
// the results are fetched concurrently; the merge itself is atomic.
func (s *MonitorService) Refresh(ctx context.Context, m *Monitor) (model.LiveView, error) {
	quizID := m.Watching()
	if quizID == "" {
		return model.LiveView{}, ErrMonitorSwitched
	}

	var (
		snapshot model.LiveSnapshot
		results  []model.QuizResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snapshot, err = s.feed.Snapshot(gctx, quizID)
		if err != nil {
			return fmt.Errorf("live snapshot: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		results, err = s.results.ListByQuiz(gctx, quizID)
		if err != nil {
			return fmt.Errorf("list results: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.LiveView{}, err
	}

	view, err := m.Apply(quizID, snapshot, results, s.now())
	if err != nil {
		return model.LiveView{}, err
	}

	s.resolveNames(ctx, &view)
	return view, nil
}

// resolveNames fills names the feed did not carry. Directory failures
// leave the placeholder in place.
func (s *MonitorService) resolveNames(ctx context.Context, view *model.LiveView) {
	lists := [][]model.LiveEntry{view.Active, view.Cheaters, view.Submitted}

	var missing []string
	for _, list := range lists {
		for _, e := range list {
			if e.StudentName == "" {
				missing = append(missing, e.StudentID)
			}
		}
	}
	if len(missing) == 0 {
		return
	}

	found, err := s.students.GetByIDs(ctx, missing)
	if err != nil {
		s.log.Warn().Err(err).Str("quiz_id", view.QuizID).Msg("Student lookup failed, using placeholder names")
		found = nil
	}
	for _, list := range lists {
		for i := range list {
			if list[i].StudentName == "" {
				list[i].StudentName = found[list[i].StudentID].DisplayName()
			}
		}
	}
}
