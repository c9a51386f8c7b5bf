package model

import "strings"

// UnknownStudentName is displayed when the directory has no record for an id.
const UnknownStudentName = "Unknown student"

// Student is the read-only directory record used for display names.
type Student struct {
	ID        string `json:"id" yaml:"id" validate:"required"`
	FirstName string `json:"first_name" yaml:"first_name"`
	LastName  string `json:"last_name" yaml:"last_name"`
	ClassID   string `json:"class_id,omitempty" yaml:"class_id,omitempty"`
}

// DisplayName joins first and last name, falling back to the placeholder.
func (s *Student) DisplayName() string {
	if s == nil {
		return UnknownStudentName
	}
	name := strings.TrimSpace(strings.TrimSpace(s.FirstName) + " " + strings.TrimSpace(s.LastName))
	if name == "" {
		return UnknownStudentName
	}
	return name
}
