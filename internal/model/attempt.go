package model

import (
	"time"

	"github.com/google/uuid"
)

// Grading provenance markers recorded on finalized attempts.
const (
	GradedBySelf   = "self-submitted"
	GradedBySystem = "system-auto-submit"
)

// ExamAttempt is one user's session taking one exam.
//
// FinishedAt transitions from nil to non-nil exactly once; after that the
// record is immutable. ExpiresAt nil means the attempt never expires.
type ExamAttempt struct {
	ID         uuid.UUID  `json:"id"`
	ExamID     uuid.UUID  `json:"exam_id"`
	UserID     int        `json:"user_id"`
	StartedAt  time.Time  `json:"started_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Score      *float64   `json:"score,omitempty"`
	GradedBy   *string    `json:"graded_by,omitempty"`
}

// Open reports whether the attempt has not been finalized yet.
func (a *ExamAttempt) Open() bool {
	return a.FinishedAt == nil
}

// AnswerSubmission is one question's selected options within a submit request.
type AnswerSubmission struct {
	QuestionID        uuid.UUID   `json:"question_id" binding:"required"`
	SelectedOptionIDs []uuid.UUID `json:"selected_option_ids"`
}

// SubmitAttemptRequest is the payload finalizing an attempt. An empty or
// missing answers list is a valid submission and scores zero.
type SubmitAttemptRequest struct {
	Answers []AnswerSubmission `json:"answers" binding:"omitempty,dive"`
}

// AttemptStarted is returned when an attempt is opened.
type AttemptStarted struct {
	AttemptID uuid.UUID      `json:"attempt_id"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Questions []QuestionView `json:"questions"`
}

// AttemptResult summarizes a graded submission.
type AttemptResult struct {
	Score          float64 `json:"score"`
	MaxScore       float64 `json:"max_score"`
	TotalCorrect   int     `json:"total_correct"`
	TotalQuestions int     `json:"total_questions"`
}

// AttemptSummary is a list-view projection of an attempt.
type AttemptSummary struct {
	ExamAttempt
	ExamTitle string `json:"exam_title"`
}

// QuestionReview is the per-question breakdown in an attempt detail view.
type QuestionReview struct {
	QuestionID        uuid.UUID   `json:"question_id"`
	Prompt            string      `json:"prompt"`
	Points            float64     `json:"points"`
	Options           []OptionView `json:"options"`
	SelectedOptionIDs []uuid.UUID `json:"selected_option_ids"`
	CorrectOptionIDs  []uuid.UUID `json:"correct_option_ids"`
	IsCorrect         bool        `json:"is_correct"`
	AwardedPoints     float64     `json:"awarded_points"`
}

// AttemptDetail is the full review view of an attempt.
type AttemptDetail struct {
	Attempt   ExamAttempt      `json:"attempt"`
	ExamTitle string           `json:"exam_title"`
	Questions []QuestionReview `json:"questions"`
}
