package websocket

import (
	"time"

	"github.com/stemsi/quiz-integrity/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
	ActionCheat    Action = "cheat"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AutosaveRequest is sent by the client to save a single answer.
type AutosaveRequest struct {
	Action Action       `json:"action"`
	QID    string       `json:"q_id"`
	Answer model.Answer `json:"ans"`
}

// CheatRequest is sent by the client to report an integrity event.
type CheatRequest struct {
	Action      Action          `json:"action"`
	Type        model.CheatType `json:"type"`
	Description string          `json:"description"`
	Timestamp   time.Time       `json:"timestamp"`
}

// SubmitRequest is sent by the client to finish and grade the quiz.
type SubmitRequest struct {
	Action    Action `json:"action"`
	TimeSpent int    `json:"time_spent"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError    Event = "error"
	EventSaved    Event = "saved"
	EventRecorded Event = "recorded"
	EventGraded   Event = "graded"
	EventPong     Event = "pong"
)

type AutosaveResponse struct {
	Event    Event  `json:"event"`
	QID      string `json:"q_id"`
	Answered int64  `json:"answered"`
}

type RecordedResponse struct {
	Event    Event           `json:"event"`
	Type     model.CheatType `json:"type"`
	Label    string          `json:"label"`
	Severity model.Severity  `json:"severity"`
	At       time.Time       `json:"timestamp"`
}

// GradedResponse carries the score only when the quiz reveals results
// immediately.
type GradedResponse struct {
	Event       Event   `json:"event"`
	ResultID    string  `json:"result_id"`
	Revealed    bool    `json:"revealed"`
	Score       *int    `json:"score,omitempty"`
	TotalPoints *int    `json:"total_points,omitempty"`
	Percentage  *string `json:"percentage,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event     `json:"event"`
	At    time.Time `json:"server_time"`
}
