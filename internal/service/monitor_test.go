package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stemsi/quiz-integrity/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func session(id string, status model.SessionStatus, answered int, attempts ...model.CheatAttempt) model.LiveStudentSession {
	return model.LiveStudentSession{
		StudentID:         id,
		StudentName:       "Student " + id,
		Status:            status,
		QuestionsAnswered: answered,
		LastActive:        t0,
		CheatingAttempts:  attempts,
	}
}

func snapshotOf(sessions ...model.LiveStudentSession) model.LiveSnapshot {
	return model.LiveSnapshot{QuizID: "quiz-1", ActiveStudents: sessions}
}

func ids(entries []model.LiveEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.StudentID)
	}
	return out
}

func TestProgressPercent(t *testing.T) {
	assert.Equal(t, 0, ProgressPercent(0, 10))
	assert.Equal(t, 0, ProgressPercent(3, 0))
	assert.Equal(t, 0, ProgressPercent(-1, 10))
	assert.Equal(t, 33, ProgressPercent(1, 3))
	assert.Equal(t, 67, ProgressPercent(2, 3))
	assert.Equal(t, 100, ProgressPercent(12, 10))
}

func TestLatestResult(t *testing.T) {
	_, ok := LatestResult(nil)
	assert.False(t, ok)

	got, ok := LatestResult([]model.QuizResult{
		{Score: 9, Timestamp: t0},
		{Score: 3, Timestamp: t0.Add(time.Minute)},
	})
	require.True(t, ok)
	assert.Equal(t, 3, got.Score)

	got, _ = LatestResult([]model.QuizResult{
		{Score: 9, Timestamp: t0, Completed: false},
		{Score: 2, Timestamp: t0, Completed: true},
	})
	assert.True(t, got.Completed)

	got, _ = LatestResult([]model.QuizResult{
		{Score: 2, Timestamp: t0, Completed: true},
		{Score: 5, Timestamp: t0, Completed: true},
	})
	assert.Equal(t, 5, got.Score)
}

func TestBestResults(t *testing.T) {
	best := BestResults([]model.QuizResult{
		{UserID: "s1", Score: 7, Timestamp: t0},
		{UserID: "s1", Score: 4, Timestamp: t0.Add(time.Minute)},
		{UserID: "s2", Score: 5, Timestamp: t0},
		{UserID: "s2", Score: 5, Timestamp: t0.Add(time.Minute), TotalTimeSpent: 42},
	})
	assert.Equal(t, 7, best["s1"].Score)
	assert.Equal(t, 42, best["s2"].TotalTimeSpent)
}

func TestMergeClassifiesSessions(t *testing.T) {
	agg := NewLiveAggregator("quiz-1", 4)
	view := agg.Merge(snapshotOf(
		session("a", model.SessionActive, 2),
		session("b", model.SessionIdle, 1),
		session("c", model.SessionActive, 3, attemptAt(model.CheatTabSwitch, 0)),
		session("d", model.SessionSubmitted, 4),
	), nil, t0)

	assert.Equal(t, []string{"a", "b"}, ids(view.Active))
	assert.Equal(t, []string{"c"}, ids(view.Cheaters))
	assert.Equal(t, []string{"d"}, ids(view.Submitted))
	assert.Equal(t, model.LiveStats{Active: 1, Idle: 1, Cheaters: 1, Submitted: 1, Attempts: 1}, view.Stats)
	assert.Equal(t, 50, view.Active[0].Progress)
	assert.Equal(t, 100, view.Submitted[0].Progress)
}

func TestMergeSubmittedIsTerminal(t *testing.T) {
	agg := NewLiveAggregator("quiz-1", 2)
	agg.Merge(snapshotOf(session("a", model.SessionSubmitted, 2)), nil, t0)

	// a stale feed entry must not move the student back
	view := agg.Merge(snapshotOf(session("a", model.SessionActive, 1, attemptAt(model.CheatCopyDetected, 0))), nil, t0)
	assert.Empty(t, view.Active)
	assert.Empty(t, view.Cheaters)
	assert.Equal(t, []string{"a"}, ids(view.Submitted))
}

func TestMergeCompletedResultMarksSubmitted(t *testing.T) {
	agg := NewLiveAggregator("quiz-1", 2)
	view := agg.Merge(
		snapshotOf(session("a", model.SessionActive, 1)),
		[]model.QuizResult{{UserID: "a", QuizID: "quiz-1", Score: 8, Completed: true, Timestamp: t0}},
		t0,
	)
	assert.Empty(t, view.Active)
	require.Len(t, view.Submitted, 1)
	require.NotNil(t, view.Submitted[0].Score)
	assert.Equal(t, 8, *view.Submitted[0].Score)
	assert.Equal(t, "Student a", view.Submitted[0].StudentName)
}

func TestMergeCheaterCacheIsSticky(t *testing.T) {
	agg := NewLiveAggregator("quiz-1", 2)
	two := session("c", model.SessionSuspectedCheating, 1,
		attemptAt(model.CheatTabSwitch, 0), attemptAt(model.CheatCopyDetected, time.Second))
	agg.Merge(snapshotOf(two), nil, t0)

	// a lagging replica reports fewer attempts; the richer cached entry wins
	one := session("c", model.SessionSuspectedCheating, 1, attemptAt(model.CheatTabSwitch, 0))
	view := agg.Merge(snapshotOf(one), nil, t0)

	require.Len(t, view.Cheaters, 1)
	assert.Equal(t, 2, view.Cheaters[0].AttemptCount)
	assert.Equal(t, model.SeverityHard, view.Cheaters[0].Severity)
}

func TestMergeCheaterProgressFollowsFeed(t *testing.T) {
	agg := NewLiveAggregator("quiz-1", 5)
	tab := attemptAt(model.CheatTabSwitch, 0)
	copyEv := attemptAt(model.CheatCopyDetected, time.Second)
	agg.Merge(snapshotOf(session("c", model.SessionSuspectedCheating, 1, tab, copyEv)), nil, t0)

	lagging := session("c", model.SessionSuspectedCheating, 4, tab)
	lagging.LastActive = t0.Add(time.Minute)
	view := agg.Merge(snapshotOf(lagging), nil, t0)
	require.Len(t, view.Cheaters, 1)
	assert.Equal(t, 2, view.Cheaters[0].AttemptCount)
	assert.Equal(t, 4, view.Cheaters[0].QuestionsAnswered)
	assert.Equal(t, 80, view.Cheaters[0].Progress)
	assert.Equal(t, t0.Add(time.Minute), view.Cheaters[0].LastActive)

	view = agg.Merge(snapshotOf(session("c", model.SessionSuspectedCheating, 5, tab, copyEv)), nil, t0)
	require.Len(t, view.Cheaters, 1)
	assert.Equal(t, 2, view.Cheaters[0].AttemptCount)
	assert.Equal(t, 5, view.Cheaters[0].QuestionsAnswered)
	assert.Equal(t, 100, view.Cheaters[0].Progress)
}

// A cheater absent from one snapshot drops out of the view; when it comes
// back with fewer attempts the cached list is shown again.
func TestMergeStickyCheaterAcrossSnapshots(t *testing.T) {
	agg := NewLiveAggregator("quiz-1", 4)
	tab := attemptAt(model.CheatTabSwitch, 0)
	blur := attemptAt(model.CheatWindowBlur, time.Second)

	view := agg.Merge(snapshotOf(session("x", model.SessionSuspectedCheating, 1, tab, blur)), nil, t0)
	require.Len(t, view.Cheaters, 1)
	assert.Equal(t, 2, view.Cheaters[0].AttemptCount)

	view = agg.Merge(snapshotOf(session("y", model.SessionActive, 2)), nil, t0)
	assert.Empty(t, view.Cheaters)
	assert.Equal(t, []string{"y"}, ids(view.Active))

	view = agg.Merge(snapshotOf(session("x", model.SessionSuspectedCheating, 3, tab)), nil, t0)
	require.Len(t, view.Cheaters, 1)
	assert.GreaterOrEqual(t, view.Cheaters[0].AttemptCount, 2)
	assert.Equal(t, 3, view.Cheaters[0].QuestionsAnswered)
}

func TestMergeDropsCheatersMissingFromSnapshot(t *testing.T) {
	agg := NewLiveAggregator("quiz-1", 2)
	agg.Merge(snapshotOf(session("c", model.SessionActive, 1, attemptAt(model.CheatTabSwitch, 0))), nil, t0)

	view := agg.Merge(snapshotOf(), nil, t0)
	assert.Empty(t, view.Cheaters)
	assert.Equal(t, 1, agg.CachedCheaters())
}

func TestMergeCheaterLeavesWhenSubmitted(t *testing.T) {
	agg := NewLiveAggregator("quiz-1", 2)
	agg.Merge(snapshotOf(session("c", model.SessionActive, 1, attemptAt(model.CheatTabSwitch, 0))), nil, t0)
	view := agg.Merge(snapshotOf(session("c", model.SessionSubmitted, 2, attemptAt(model.CheatTabSwitch, 0))), nil, t0)

	assert.Empty(t, view.Cheaters)
	assert.Equal(t, []string{"c"}, ids(view.Submitted))
	assert.Equal(t, 0, agg.CachedCheaters())
}

func TestMergeDedupesFeedEntries(t *testing.T) {
	agg := NewLiveAggregator("quiz-1", 2)
	older := session("a", model.SessionActive, 1)
	newer := session("a", model.SessionActive, 2)
	newer.LastActive = t0.Add(time.Minute)

	view := agg.Merge(snapshotOf(older, newer, model.LiveStudentSession{}), nil, t0)
	require.Len(t, view.Active, 1)
	assert.Equal(t, 2, view.Active[0].QuestionsAnswered)
}

func TestMergeSortsByNameThenID(t *testing.T) {
	agg := NewLiveAggregator("quiz-1", 1)
	x := session("x", model.SessionActive, 0)
	x.StudentName = "Ana"
	y := session("y", model.SessionActive, 0)
	y.StudentName = "Ana"
	z := session("z", model.SessionActive, 0)
	z.StudentName = "Aaron"

	view := agg.Merge(snapshotOf(y, z, x), nil, t0)
	assert.Equal(t, []string{"z", "x", "y"}, ids(view.Active))
}

func TestMonitorWatchSwitchDiscardsState(t *testing.T) {
	m := NewMonitor()
	m.Watch("quiz-1", 2)
	assert.True(t, m.Cached("quiz-1"))

	m.Watch("quiz-2", 3)
	assert.False(t, m.Cached("quiz-1"))
	assert.True(t, m.Cached("quiz-2"))
	assert.Equal(t, "quiz-2", m.Watching())

	_, err := m.Apply("quiz-1", snapshotOf(), nil, t0)
	assert.ErrorIs(t, err, ErrMonitorSwitched)

	view, err := m.Apply("quiz-2", model.LiveSnapshot{QuizID: "quiz-2"}, nil, t0)
	require.NoError(t, err)
	assert.Equal(t, 3, view.TotalQuestions)

	m.Stop()
	assert.Equal(t, "", m.Watching())
	assert.False(t, m.Cached("quiz-2"))
	_, err = m.Apply("quiz-2", snapshotOf(), nil, t0)
	assert.ErrorIs(t, err, ErrMonitorSwitched)
}

func TestMonitorApplyIsSerialized(t *testing.T) {
	m := NewMonitor()
	m.Watch("quiz-1", 2)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			attempts := make([]model.CheatAttempt, n%5+1)
			for j := range attempts {
				attempts[j] = attemptAt(model.CheatTabSwitch, time.Duration(j)*time.Second)
			}
			_, err := m.Apply("quiz-1", snapshotOf(session("c", model.SessionActive, 1, attempts...)), nil, t0)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	view, err := m.Apply("quiz-1", snapshotOf(session("c", model.SessionActive, 1, attemptAt(model.CheatTabSwitch, 0))), nil, t0)
	require.NoError(t, err)
	require.Len(t, view.Cheaters, 1)
	assert.Equal(t, 5, view.Cheaters[0].AttemptCount)
}
