package model

import (
	"github.com/google/uuid"
)

// QuestionType enumerates supported question kinds.
type QuestionType string

const (
	QuestionTypeSingleChoice QuestionType = "SINGLE_CHOICE"
	QuestionTypeMultiChoice  QuestionType = "MULTI_CHOICE"
	QuestionTypeTrueFalse    QuestionType = "TRUE_FALSE"
)

// Question is a reusable question with its options.
type Question struct {
	ID     uuid.UUID    `json:"id"`
	Prompt string       `json:"prompt"`
	Type   QuestionType `json:"type"`
}

// Option is one selectable answer for a question. IsCorrect never leaves
// the server in candidate-facing payloads.
type Option struct {
	ID         uuid.UUID `json:"id"`
	QuestionID uuid.UUID `json:"question_id"`
	Text       string    `json:"text"`
	IsCorrect  bool      `json:"-"`
}

// OptionView is an option as shown to a candidate (no correctness flag).
type OptionView struct {
	ID   uuid.UUID `json:"id"`
	Text string    `json:"text"`
}

// QuestionView is a question as shown to a candidate taking an exam.
type QuestionView struct {
	ID       uuid.UUID    `json:"id"`
	Prompt   string       `json:"prompt"`
	Type     QuestionType `json:"type"`
	Points   float64      `json:"points"`
	Position int          `json:"position"`
	Options  []OptionView `json:"options"`
}
