package model

import (
	"github.com/google/uuid"
)

// StudentAnswer is one selected option within a finalized submission.
// Rows are written together with the finalize write and are immutable.
type StudentAnswer struct {
	ID             uuid.UUID `json:"id"`
	AttemptID      uuid.UUID `json:"attempt_id"`
	QuestionID     uuid.UUID `json:"question_id"`
	OptionID       uuid.UUID `json:"option_id"`
	PerOptionScore float64   `json:"per_option_score"`
}
