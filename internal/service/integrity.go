package service

import "github.com/stemsi/quiz-integrity/internal/model"

// AppendAttempt returns seq with a appended. A timestamp earlier than the
// last entry is raised to it so the sequence stays non-decreasing. Existing
// entries are never touched.
func AppendAttempt(seq []model.CheatAttempt, a model.CheatAttempt) ([]model.CheatAttempt, model.CheatAttempt) {
	if n := len(seq); n > 0 && a.Timestamp.Before(seq[n-1].Timestamp) {
		a.Timestamp = seq[n-1].Timestamp
	}
	// full slice expression so an append never writes into a caller's spare capacity
	return append(seq[:len(seq):len(seq)], a), a
}

// RecordAttempt appends a to quiz.CheatingAttempts[studentID], creating the
// map and the sequence when absent. It returns the attempt as stored.
func RecordAttempt(quiz *model.Quiz, studentID string, a model.CheatAttempt) model.CheatAttempt {
	if quiz.CheatingAttempts == nil {
		quiz.CheatingAttempts = make(map[string][]model.CheatAttempt)
	}
	seq, stored := AppendAttempt(quiz.CheatingAttempts[studentID], a)
	quiz.CheatingAttempts[studentID] = seq
	return stored
}

// AttemptsFor returns the attempts of one student; a nil map reads as empty.
func AttemptsFor(attempts map[string][]model.CheatAttempt, studentID string) []model.CheatAttempt {
	if attempts == nil {
		return nil
	}
	return attempts[studentID]
}

// HasCheating is true once any attempt is recorded. There is no threshold.
func HasCheating(attempts map[string][]model.CheatAttempt, studentID string) bool {
	return len(AttemptsFor(attempts, studentID)) > 0
}

// WorstSeverity is the highest severity in seq, SeverityNone when empty.
func WorstSeverity(seq []model.CheatAttempt) model.Severity {
	worst := model.SeverityNone
	for _, a := range seq {
		if s := a.Type.Severity(); s.Rank() > worst.Rank() {
			worst = s
		}
	}
	return worst
}

// LabelAttempts decorates seq for display.
func LabelAttempts(seq []model.CheatAttempt) []model.LabeledAttempt {
	out := make([]model.LabeledAttempt, 0, len(seq))
	for _, a := range seq {
		out = append(out, a.Labeled())
	}
	return out
}

// FoldAttempts rebuilds the per-student map from rows in insertion order.
func FoldAttempts(quiz *model.Quiz, rows []model.StudentAttempt) {
	for _, r := range rows {
		RecordAttempt(quiz, r.StudentID, r.CheatAttempt)
	}
}
