package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stemsi/quiz-integrity/internal/model"
)

// Correctness is the tri-state verdict for one answer.
type Correctness int8

const (
	Incorrect Correctness = iota
	Correct
	// Ungraded means a human must assign the points (openEnded).
	Ungraded
)

func (c Correctness) String() string {
	switch c {
	case Correct:
		return "correct"
	case Ungraded:
		return "ungraded"
	default:
		return "incorrect"
	}
}

// Bool returns nil for Ungraded, which is how the verdict is serialized.
func (c Correctness) Bool() *bool {
	if c == Ungraded {
		return nil
	}
	v := c == Correct
	return &v
}

// Display placeholders.
const (
	NoAnswerText       = "No answer"
	ManualGradingText  = "Graded manually"
	NotAvailableText   = "N/A"
	missingChoiceText  = "[missing choice %s]"
	trueDisplay        = "True"
	falseDisplay       = "False"
	choiceSeparator    = ", "
	percentageTemplate = "%.1f%%"
)

// ErrInvalidAnswer is returned for an answer whose shape does not fit its
// question type.
var ErrInvalidAnswer = errors.New("answer shape does not match question type")

// CheckAnswer rejects answers the grader could never accept. An empty
// answer is always valid; it clears the question.
func CheckAnswer(q *model.Question, ans model.Answer) error {
	if ans.IsZero() {
		return nil
	}
	switch q.Type {
	case model.QuestionTypeTrueFalse:
		v, ok := ans.Scalar()
		if !ok || (v != model.AnswerTrue && v != model.AnswerFalse) {
			return ErrInvalidAnswer
		}
	case model.QuestionTypeSingleChoice, model.QuestionTypeOpenEnded:
		if ans.Kind() != model.AnswerScalar {
			return ErrInvalidAnswer
		}
	case model.QuestionTypeMultipleChoice:
		if ans.Kind() != model.AnswerSet {
			return ErrInvalidAnswer
		}
	}
	return nil
}

// IsCorrect grades one answer against its question. It never panics and
// never returns Correct for an unknown question type.
func IsCorrect(q *model.Question, ans model.Answer) Correctness {
	switch q.Type {
	case model.QuestionTypeTrueFalse, model.QuestionTypeSingleChoice:
		got, ok := ans.Scalar()
		if !ok {
			return Incorrect
		}
		want, ok := q.CorrectAnswer.Scalar()
		if !ok || got != want {
			return Incorrect
		}
		return Correct

	case model.QuestionTypeMultipleChoice:
		got, ok := ans.Set()
		if !ok {
			return Incorrect
		}
		want, ok := q.CorrectAnswer.Set()
		if !ok || len(got) != len(want) {
			return Incorrect
		}
		if !ans.Equal(q.CorrectAnswer) {
			return Incorrect
		}
		return Correct

	case model.QuestionTypeOpenEnded:
		return Ungraded

	default:
		return Incorrect
	}
}

// Score is the outcome of grading a whole submission.
type Score struct {
	Score       int `json:"score"`
	TotalPoints int `json:"total_points"`
}

// ScoreSubmission folds per-question verdicts into a total. Ungraded
// questions count toward TotalPoints but award nothing.
func ScoreSubmission(quiz *model.Quiz, answers map[string]model.Answer) Score {
	var s Score
	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		s.TotalPoints += q.Points
		if IsCorrect(q, answers[q.ID]) == Correct {
			s.Score += q.Points
		}
	}
	return s
}

// Percentage returns 100*score/total. ok is false when total is zero.
func Percentage(score, total int) (pct float64, ok bool) {
	if total <= 0 {
		return 0, false
	}
	return 100 * float64(score) / float64(total), true
}

// FormatPercentage renders Percentage, or NotAvailableText for a zero total.
func FormatPercentage(score, total int) string {
	pct, ok := Percentage(score, total)
	if !ok {
		return NotAvailableText
	}
	return fmt.Sprintf(percentageTemplate, pct)
}

// RenderAnswer resolves an answer to display text. Unknown choice ids are
// rendered as a placeholder.
func RenderAnswer(q *model.Question, ans model.Answer) string {
	if ans.IsZero() {
		return NoAnswerText
	}

	switch q.Type {
	case model.QuestionTypeSingleChoice, model.QuestionTypeMultipleChoice:
		return renderChoices(q, ans)
	case model.QuestionTypeTrueFalse:
		v, ok := ans.Scalar()
		if !ok {
			return ans.String()
		}
		switch strings.ToLower(v) {
		case model.AnswerTrue:
			return trueDisplay
		case model.AnswerFalse:
			return falseDisplay
		}
		return v
	case model.QuestionTypeOpenEnded:
		if v, ok := ans.Scalar(); ok {
			return v
		}
		return ans.String()
	default:
		return ans.String()
	}
}

// RenderCorrectAnswer renders the answer key of a question.
func RenderCorrectAnswer(q *model.Question) string {
	if q.Type == model.QuestionTypeOpenEnded {
		return ManualGradingText
	}
	return RenderAnswer(q, q.CorrectAnswer)
}

func renderChoices(q *model.Question, ans model.Answer) string {
	var ids []string
	switch ans.Kind() {
	case model.AnswerScalar:
		v, _ := ans.Scalar()
		ids = []string{v}
	case model.AnswerSet:
		ids, _ = ans.Set()
	}
	if len(ids) == 0 {
		return NoAnswerText
	}

	texts := make([]string, 0, len(ids))
	for _, id := range ids {
		if text, ok := q.ChoiceText(id); ok {
			texts = append(texts, text)
			continue
		}
		texts = append(texts, fmt.Sprintf(missingChoiceText, id))
	}
	return strings.Join(texts, choiceSeparator)
}
