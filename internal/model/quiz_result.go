package model

import (
	"time"

	"github.com/google/uuid"
)

// QuizResult is one persisted submission or snapshot of a student's answers.
// Records are insert-only; a newer record supersedes an older one.
type QuizResult struct {
	ID             uuid.UUID         `json:"id"`
	UserID         string            `json:"user_id"`
	QuizID         string            `json:"quiz_id"`
	Answers        map[string]Answer `json:"answers"`
	Score          int               `json:"score"`
	TotalPoints    int               `json:"total_points"`
	Completed      bool              `json:"completed"`
	Timestamp      time.Time         `json:"timestamp"`
	TotalTimeSpent int               `json:"total_time_spent"`
}

// ResultRow is one line of the teacher review table.
type ResultRow struct {
	UserID         string    `json:"user_id"`
	StudentName    string    `json:"student_name"`
	Score          int       `json:"score"`
	TotalPoints    int       `json:"total_points"`
	Percentage     string    `json:"percentage"`
	Completed      bool      `json:"completed"`
	SubmittedAt    time.Time `json:"submitted_at,omitzero"`
	TotalTimeSpent int       `json:"total_time_spent"`
	AttemptCount   int       `json:"attempt_count"`
	HasCheating    bool      `json:"has_cheating"`
	WorstSeverity  Severity  `json:"worst_severity,omitempty"`
}

// QuestionReview is the per-question breakdown of one result.
type QuestionReview struct {
	QuestionID    string       `json:"question_id"`
	Type          QuestionType `json:"type"`
	Text          string       `json:"text"`
	Points        int          `json:"points"`
	Answer        string       `json:"answer"`
	CorrectAnswer string       `json:"correct_answer"`
	IsCorrect     *bool        `json:"is_correct"`
	Awarded       int          `json:"awarded"`
}

// UnmatchedAnswer is an answer keyed by a question id the quiz does not have.
type UnmatchedAnswer struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

// ResultDetail is the teacher view of one student's latest result.
type ResultDetail struct {
	QuizID      string            `json:"quiz_id"`
	QuizTitle   string            `json:"quiz_title"`
	Result      ResultRow         `json:"result"`
	Questions   []QuestionReview  `json:"questions"`
	Unmatched   []UnmatchedAnswer `json:"unmatched,omitempty"`
	Attempts    []LabeledAttempt  `json:"attempts"`
	HasResult   bool              `json:"has_result"`
	AllowReview bool              `json:"allow_review"`
}
