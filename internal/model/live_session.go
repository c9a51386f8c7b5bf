package model

import "time"

// SessionStatus is the live state of a student taking a quiz.
type SessionStatus string

const (
	SessionActive            SessionStatus = "active"
	SessionIdle              SessionStatus = "idle"
	SessionSubmitted         SessionStatus = "submitted"
	SessionSuspectedCheating SessionStatus = "suspected_cheating"
)

// LiveStudentSession is the ephemeral feed entry for one student.
type LiveStudentSession struct {
	StudentID         string         `json:"student_id"`
	StudentName       string         `json:"student_name"`
	Status            SessionStatus  `json:"status"`
	QuestionsAnswered int            `json:"questions_answered"`
	StartedAt         time.Time      `json:"started_at"`
	LastActive        time.Time      `json:"last_active"`
	CheatingAttempts  []CheatAttempt `json:"cheating_attempts"`
}

// LiveSnapshot is one poll of the live feed for a quiz.
type LiveSnapshot struct {
	QuizID         string               `json:"quiz_id"`
	ActiveStudents []LiveStudentSession `json:"active_students"`
}

// LiveEntry is a session decorated for the monitor view.
type LiveEntry struct {
	LiveStudentSession
	Progress     int      `json:"progress"`
	AttemptCount int      `json:"attempt_count"`
	Severity     Severity `json:"severity,omitempty"`
	Score        *int     `json:"score,omitempty"`
}

// LiveStats summarises a LiveView.
type LiveStats struct {
	Active    int `json:"active"`
	Idle      int `json:"idle"`
	Cheaters  int `json:"cheaters"`
	Submitted int `json:"submitted"`
	Attempts  int `json:"attempts"`
}

// LiveView is the read model handed to the monitor after one merge.
type LiveView struct {
	QuizID         string      `json:"quiz_id"`
	TotalQuestions int         `json:"total_questions"`
	Active         []LiveEntry `json:"active"`
	Cheaters       []LiveEntry `json:"cheaters"`
	Submitted      []LiveEntry `json:"submitted"`
	Stats          LiveStats   `json:"stats"`
	GeneratedAt    time.Time   `json:"generated_at"`
}

// MonitorEventType names the pub/sub notifications that trigger a refresh.
type MonitorEventType string

const (
	MonitorEventJoined    MonitorEventType = "joined"
	MonitorEventProgress  MonitorEventType = "progress"
	MonitorEventCheat     MonitorEventType = "cheat"
	MonitorEventSubmitted MonitorEventType = "submitted"
)

// MonitorEvent is published on the quiz monitor channel.
type MonitorEvent struct {
	Type      MonitorEventType `json:"type"`
	QuizID    string           `json:"quiz_id"`
	StudentID string           `json:"student_id"`
	At        time.Time        `json:"at"`
}
