package model

import "time"

// CheatType is the closed taxonomy of integrity events.
type CheatType string

const (
	CheatTabSwitch       CheatType = "tab_switch"
	CheatWindowBlur      CheatType = "window_blur"
	CheatCopyDetected    CheatType = "copy_detected"
	CheatBrowserClose    CheatType = "browser_close"
	CheatMultipleDevices CheatType = "multiple_devices"
	CheatTimeAnomaly     CheatType = "time_anomaly"
	CheatQuizAbandoned   CheatType = "quiz_abandoned"
)

// Severity is the display weight of an attempt. It is derived, never stored.
type Severity string

const (
	SeverityNone    Severity = ""
	SeveritySoft    Severity = "amber"
	SeverityHard    Severity = "red"
	SeverityUnknown Severity = "gray"
)

// Rank orders severities for "worst seen" aggregation.
func (s Severity) Rank() int {
	switch s {
	case SeverityHard:
		return 3
	case SeveritySoft:
		return 2
	case SeverityUnknown:
		return 1
	default:
		return 0
	}
}

// UnknownCheatLabel is shown for types outside the taxonomy.
const UnknownCheatLabel = "Unknown issue"

var cheatLabels = map[CheatType]string{
	CheatTabSwitch:       "Switched tab",
	CheatWindowBlur:      "Left the quiz window",
	CheatCopyDetected:    "Copy detected",
	CheatBrowserClose:    "Closed the browser",
	CheatMultipleDevices: "Multiple devices",
	CheatTimeAnomaly:     "Time anomaly",
	CheatQuizAbandoned:   "Abandoned the quiz",
}

// Known reports whether t belongs to the taxonomy.
func (t CheatType) Known() bool {
	_, ok := cheatLabels[t]
	return ok
}

// Label returns the human label, or UnknownCheatLabel.
func (t CheatType) Label() string {
	if l, ok := cheatLabels[t]; ok {
		return l
	}
	return UnknownCheatLabel
}

// Severity maps the type to its display weight.
func (t CheatType) Severity() Severity {
	switch t {
	case CheatTabSwitch, CheatWindowBlur, CheatBrowserClose, CheatQuizAbandoned:
		return SeveritySoft
	case CheatCopyDetected, CheatMultipleDevices, CheatTimeAnomaly:
		return SeverityHard
	default:
		return SeverityUnknown
	}
}

// CheatAttempt is one recorded integrity violation.
type CheatAttempt struct {
	Type        CheatType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description,omitempty"`
}

// LabeledAttempt is a CheatAttempt decorated for display.
type LabeledAttempt struct {
	CheatAttempt
	Label    string   `json:"label"`
	Severity Severity `json:"severity"`
}

// Labeled decorates the attempt with its label and severity.
func (a CheatAttempt) Labeled() LabeledAttempt {
	return LabeledAttempt{
		CheatAttempt: a,
		Label:        a.Type.Label(),
		Severity:     a.Type.Severity(),
	}
}

// StudentAttempt is an attempt addressed to a (quiz, student) pair, the
// unit that is queued and persisted.
type StudentAttempt struct {
	QuizID    string `json:"quiz_id"`
	StudentID string `json:"student_id"`
	CheatAttempt
}
