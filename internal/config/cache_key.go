package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// LiveSessionsKey returns the hash holding every live session of a quiz
func (r *CacheKeyStruct) LiveSessionsKey(quizID string) string {
	return fmt.Sprintf("quiz:%s:live_sessions", quizID)
}

// StudentAnswersKey returns the hash buffering a student's autosaved answers
func (r *CacheKeyStruct) StudentAnswersKey(quizID, studentID string) string {
	return fmt.Sprintf("student:%s:quiz:%s:answers", studentID, quizID)
}

// SubmittedAnswersKey returns the hash a buffer is moved to when a result is
// graded, so later autosaves start a fresh buffer
func (r *CacheKeyStruct) SubmittedAnswersKey(quizID, studentID, resultID string) string {
	return fmt.Sprintf("student:%s:quiz:%s:answers:%s", studentID, quizID, resultID)
}

// StudentDeviceKey returns the key binding a student's quiz stream to one device
func (r *CacheKeyStruct) StudentDeviceKey(quizID, studentID string) string {
	return fmt.Sprintf("student:%s:quiz:%s:device", studentID, quizID)
}

// QuizMonitorChannel returns the Redis PubSub channel name for a quiz monitor
func (r *CacheKeyStruct) QuizMonitorChannel(quizID string) string {
	return fmt.Sprintf("quiz:%s:monitor", quizID)
}

var CacheKey = NewCacheKeyStruct()
