package service

import (
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/stemsi/quiz-integrity/internal/model"
)

// ErrMonitorSwitched is returned when a refresh finishes after the monitor
// has moved to another quiz or stopped. Its data must be discarded.
var ErrMonitorSwitched = errors.New("monitor switched quiz")

// ProgressPercent is round(100*answered/total) clamped to [0, 100].
func ProgressPercent(answered, total int) int {
	if total <= 0 || answered <= 0 {
		return 0
	}
	p := int(math.Round(100 * float64(answered) / float64(total)))
	if p > 100 {
		return 100
	}
	return p
}

// LatestResult picks the record with the latest timestamp. Equal timestamps
// prefer a completed record, then the higher score.
func LatestResult(results []model.QuizResult) (model.QuizResult, bool) {
	if len(results) == 0 {
		return model.QuizResult{}, false
	}
	best := results[0]
	for _, r := range results[1:] {
		switch {
		case r.Timestamp.After(best.Timestamp):
			best = r
		case r.Timestamp.Equal(best.Timestamp):
			if (r.Completed && !best.Completed) || (r.Completed == best.Completed && r.Score > best.Score) {
				best = r
			}
		}
	}
	return best, true
}

// BestResults keeps one record per user for live aggregation: the higher
// score wins, equal scores fall back to the later timestamp. This is not
// the same rule as LatestResult.
func BestResults(results []model.QuizResult) map[string]model.QuizResult {
	out := make(map[string]model.QuizResult, len(results))
	for _, r := range results {
		cur, ok := out[r.UserID]
		if !ok || r.Score > cur.Score || (r.Score == cur.Score && r.Timestamp.After(cur.Timestamp)) {
			out[r.UserID] = r
		}
	}
	return out
}

// LiveAggregator is the reconciliation state for one monitored quiz. It is
// not safe for concurrent use; Monitor serializes access.
type LiveAggregator struct {
	quizID         string
	totalQuestions int

	cheaters  map[string]model.LiveStudentSession
	submitted map[string]struct{}
	names     map[string]string
}

// NewLiveAggregator creates an empty aggregator.
func NewLiveAggregator(quizID string, totalQuestions int) *LiveAggregator {
	return &LiveAggregator{
		quizID:         quizID,
		totalQuestions: totalQuestions,
		cheaters:       make(map[string]model.LiveStudentSession),
		submitted:      make(map[string]struct{}),
		names:          make(map[string]string),
	}
}

// QuizID returns the monitored quiz.
func (a *LiveAggregator) QuizID() string { return a.quizID }

// CachedCheaters is the number of entries held in the cheaters cache.
func (a *LiveAggregator) CachedCheaters() int { return len(a.cheaters) }

// Merge folds one feed snapshot and the current results into the read
// model. The returned view is complete; no intermediate state escapes.
func (a *LiveAggregator) Merge(snapshot model.LiveSnapshot, results []model.QuizResult, now time.Time) model.LiveView {
	best := BestResults(results)
	for uid, r := range best {
		if r.Completed {
			a.submitted[uid] = struct{}{}
		}
	}

	sessions := dedupeSessions(snapshot.ActiveStudents)

	view := model.LiveView{
		QuizID:         a.quizID,
		TotalQuestions: a.totalQuestions,
		Active:         []model.LiveEntry{},
		Cheaters:       []model.LiveEntry{},
		Submitted:      []model.LiveEntry{},
		GeneratedAt:    now,
	}

	suspected := make(map[string]struct{})
	for _, s := range sessions {
		if s.StudentName != "" {
			a.names[s.StudentID] = s.StudentName
		}
		s.Status = a.classify(s)

		switch s.Status {
		case model.SessionSubmitted:
			a.submitted[s.StudentID] = struct{}{}
			delete(a.cheaters, s.StudentID)
		case model.SessionSuspectedCheating:
			suspected[s.StudentID] = struct{}{}
			if cached, ok := a.cheaters[s.StudentID]; ok && len(cached.CheatingAttempts) > len(s.CheatingAttempts) {
				// progress follows the feed, the attempt list never shrinks
				s.CheatingAttempts = cached.CheatingAttempts
			}
			a.cheaters[s.StudentID] = s
		default:
			view.Active = append(view.Active, a.entry(s, best))
			if s.Status == model.SessionIdle {
				view.Stats.Idle++
			} else {
				view.Stats.Active++
			}
		}
	}

	// the cache only enriches students the current snapshot still flags
	for sid := range suspected {
		e := a.entry(a.cheaters[sid], best)
		view.Cheaters = append(view.Cheaters, e)
		view.Stats.Attempts += e.AttemptCount
	}

	for sid := range a.submitted {
		e := model.LiveEntry{
			LiveStudentSession: model.LiveStudentSession{
				StudentID:   sid,
				StudentName: a.names[sid],
				Status:      model.SessionSubmitted,
			},
			Progress: 100,
		}
		if r, ok := best[sid]; ok {
			score := r.Score
			e.Score = &score
		}
		view.Submitted = append(view.Submitted, e)
	}

	view.Stats.Cheaters = len(view.Cheaters)
	view.Stats.Submitted = len(view.Submitted)
	sortEntries(view.Active)
	sortEntries(view.Cheaters)
	sortEntries(view.Submitted)
	return view
}

// classify resolves the status of one feed entry. Submitted is terminal;
// any recorded attempt outranks active and idle.
func (a *LiveAggregator) classify(s model.LiveStudentSession) model.SessionStatus {
	if _, done := a.submitted[s.StudentID]; done || s.Status == model.SessionSubmitted {
		return model.SessionSubmitted
	}
	if len(s.CheatingAttempts) > 0 {
		return model.SessionSuspectedCheating
	}
	if s.Status == model.SessionIdle {
		return model.SessionIdle
	}
	return model.SessionActive
}

func (a *LiveAggregator) entry(s model.LiveStudentSession, best map[string]model.QuizResult) model.LiveEntry {
	if s.StudentName == "" {
		s.StudentName = a.names[s.StudentID]
	}
	e := model.LiveEntry{
		LiveStudentSession: s,
		Progress:           ProgressPercent(s.QuestionsAnswered, a.totalQuestions),
		AttemptCount:       len(s.CheatingAttempts),
		Severity:           WorstSeverity(s.CheatingAttempts),
	}
	if r, ok := best[s.StudentID]; ok {
		score := r.Score
		e.Score = &score
	}
	return e
}

// dedupeSessions collapses repeated feed entries for one student, keeping
// the one with more attempts, then the most recent activity.
func dedupeSessions(in []model.LiveStudentSession) []model.LiveStudentSession {
	idx := make(map[string]int, len(in))
	out := make([]model.LiveStudentSession, 0, len(in))
	for _, s := range in {
		if s.StudentID == "" {
			continue
		}
		i, ok := idx[s.StudentID]
		if !ok {
			idx[s.StudentID] = len(out)
			out = append(out, s)
			continue
		}
		cur := out[i]
		if len(s.CheatingAttempts) > len(cur.CheatingAttempts) ||
			(len(s.CheatingAttempts) == len(cur.CheatingAttempts) && s.LastActive.After(cur.LastActive)) {
			out[i] = s
		}
	}
	return out
}

func sortEntries(entries []model.LiveEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].StudentName != entries[j].StudentName {
			return entries[i].StudentName < entries[j].StudentName
		}
		return entries[i].StudentID < entries[j].StudentID
	})
}

// Monitor owns the per-quiz aggregators of one monitoring client. Watching
// a quiz tears down whatever was watched before; Stop tears down all.
type Monitor struct {
	mu     sync.Mutex
	quizID string
	caches map[string]*LiveAggregator
}

// NewMonitor creates an idle monitor.
func NewMonitor() *Monitor {
	return &Monitor{caches: make(map[string]*LiveAggregator)}
}

// Watch switches the monitor to quizID with a fresh aggregator.
func (m *Monitor) Watch(quizID string, totalQuestions int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.quizID != "" {
		delete(m.caches, m.quizID)
	}
	m.quizID = quizID
	m.caches[quizID] = NewLiveAggregator(quizID, totalQuestions)
}

// Stop discards all reconciliation state.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.quizID = ""
	for id := range m.caches {
		delete(m.caches, id)
	}
}

// Watching returns the current quiz id, empty when stopped.
func (m *Monitor) Watching() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quizID
}

// Cached reports whether an aggregator exists for quizID.
func (m *Monitor) Cached(quizID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.caches[quizID]
	return ok
}

// Apply merges data fetched for quizID. Merges are serialized, so each
// one sees the cache left by the previous one.
func (m *Monitor) Apply(quizID string, snapshot model.LiveSnapshot, results []model.QuizResult, now time.Time) (model.LiveView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	agg, ok := m.caches[quizID]
	if !ok || m.quizID != quizID {
		return model.LiveView{}, ErrMonitorSwitched
	}
	return agg.Merge(snapshot, results, now), nil
}
