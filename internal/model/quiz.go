package model

import "time"

// SecurityLevel controls how aggressively the client reports integrity events.
type SecurityLevel string

const (
	SecurityLow     SecurityLevel = "low"
	SecurityMedium  SecurityLevel = "medium"
	SecurityHigh    SecurityLevel = "high"
	SecurityExtreme SecurityLevel = "extreme"
)

// ShowResults decides when a student sees their score.
type ShowResults string

const (
	ShowResultsImmediately   ShowResults = "immediately"
	ShowResultsAfterDeadline ShowResults = "after_deadline"
	ShowResultsManual        ShowResults = "manual"
)

// Quiz is a named assessment owned by one teacher and targeted at classes.
// The document is stored as JSONB; CheatingAttempts is filled from the
// append-only attempts table when the quiz is loaded.
type Quiz struct {
	ID                 string        `json:"id" yaml:"id" validate:"required"`
	Title              string        `json:"title" yaml:"title" validate:"required,max=255"`
	Description        string        `json:"description,omitempty" yaml:"description,omitempty"`
	TeacherID          string        `json:"teacher_id" yaml:"teacher_id" validate:"required"`
	ClassIDs           []string      `json:"class_ids" yaml:"class_ids"`
	Questions          []Question    `json:"questions" yaml:"questions" validate:"dive"`
	TimeLimit          int           `json:"time_limit" yaml:"time_limit" validate:"gte=0"`
	MaxAttempts        int           `json:"max_attempts" yaml:"max_attempts" validate:"gte=0"`
	AvailableFrom      *time.Time    `json:"available_from,omitempty" yaml:"available_from,omitempty"`
	AvailableTo        *time.Time    `json:"available_to,omitempty" yaml:"available_to,omitempty"`
	SecurityLevel      SecurityLevel `json:"security_level" yaml:"security_level" validate:"omitempty,oneof=low medium high extreme"`
	ShowResults        ShowResults   `json:"show_results" yaml:"show_results" validate:"omitempty,oneof=immediately after_deadline manual"`
	RandomizeQuestions bool          `json:"randomize_questions" yaml:"randomize_questions"`
	RandomizeChoices   bool          `json:"randomize_choices" yaml:"randomize_choices"`
	AllowReview        bool          `json:"allow_review" yaml:"allow_review"`
	Proctored          bool          `json:"proctored" yaml:"proctored"`
	Points             int           `json:"points" yaml:"points"`

	CheatingAttempts map[string][]CheatAttempt `json:"cheating_attempts,omitempty" yaml:"-"`
}

// Question looks a question up by id.
func (q *Quiz) Question(id string) (*Question, bool) {
	for i := range q.Questions {
		if q.Questions[i].ID == id {
			return &q.Questions[i], true
		}
	}
	return nil, false
}

// SumPoints is the sum of all question weights.
func (q *Quiz) SumPoints() int {
	total := 0
	for _, qs := range q.Questions {
		total += qs.Points
	}
	return total
}

// Available reports whether now falls inside the optional availability window.
func (q *Quiz) Available(now time.Time) bool {
	if q.AvailableFrom != nil && now.Before(*q.AvailableFrom) {
		return false
	}
	if q.AvailableTo != nil && now.After(*q.AvailableTo) {
		return false
	}
	return true
}

// ResultsVisible reports whether students may see their own results at now.
func (q *Quiz) ResultsVisible(now time.Time) bool {
	switch q.ShowResults {
	case ShowResultsImmediately:
		return true
	case ShowResultsAfterDeadline:
		return q.AvailableTo == nil || now.After(*q.AvailableTo)
	default:
		return false
	}
}
