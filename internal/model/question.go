package model

// QuestionType is the closed set of question shapes. Grading, answer
// rendering and validation all switch on it.
type QuestionType string

const (
	QuestionTypeSingleChoice   QuestionType = "singleChoice"
	QuestionTypeMultipleChoice QuestionType = "multipleChoice"
	QuestionTypeTrueFalse      QuestionType = "trueFalse"
	QuestionTypeOpenEnded      QuestionType = "openEnded"
)

// Known reports whether t is one of the supported question types.
func (t QuestionType) Known() bool {
	switch t {
	case QuestionTypeSingleChoice, QuestionTypeMultipleChoice, QuestionTypeTrueFalse, QuestionTypeOpenEnded:
		return true
	}
	return false
}

// HasChoices reports whether questions of this type carry a choice list.
func (t QuestionType) HasChoices() bool {
	return t == QuestionTypeSingleChoice || t == QuestionTypeMultipleChoice
}

// Choice is one selectable option of a choice question.
type Choice struct {
	ID   string `json:"id" yaml:"id" validate:"required"`
	Text string `json:"text" yaml:"text"`
}

// Question represents a single assessment item inside a quiz document.
type Question struct {
	ID            string       `json:"id" yaml:"id" validate:"required"`
	Type          QuestionType `json:"type" yaml:"type" validate:"required"`
	Text          string       `json:"text" yaml:"text"`
	Points        int          `json:"points" yaml:"points" validate:"gt=0"`
	Choices       []Choice     `json:"choices,omitempty" yaml:"choices,omitempty" validate:"dive"`
	CorrectAnswer Answer       `json:"correct_answer,omitzero" yaml:"correct_answer,omitempty"`
}

// ChoiceText returns the display text for a choice id.
func (q *Question) ChoiceText(id string) (string, bool) {
	for _, c := range q.Choices {
		if c.ID == id {
			return c.Text, true
		}
	}
	return "", false
}

// TrueFalse literals stored as the correct answer of trueFalse questions.
const (
	AnswerTrue  = "true"
	AnswerFalse = "false"
)
