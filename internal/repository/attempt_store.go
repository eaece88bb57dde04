package repository

import (
	"context"
	"errors"
	"time"

	"github.com/examloop/examloop-backend/internal/model"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// AttemptStore is the persistence contract for exam attempts. It is the only
// component allowed to mutate an attempt's terminal fields, and both mutating
// primitives are conditional: under concurrent finalization of the same
// attempt exactly one caller observes true.
type AttemptStore interface {
	// Create inserts a new open attempt and fills in its ID.
	Create(ctx context.Context, a *model.ExamAttempt) error

	// GetByID retrieves an attempt, or ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error)

	// ListByUser retrieves a user's attempts, newest first, with the total count.
	ListByUser(ctx context.Context, userID, limit, offset int) ([]model.ExamAttempt, int64, error)

	// ListAnswers retrieves the answer rows recorded for an attempt.
	ListAnswers(ctx context.Context, attemptID uuid.UUID) ([]model.StudentAnswer, error)

	// ListOpenExpired retrieves attempts that are still open and whose
	// deadline has passed. Untimed attempts (nil expiry) are never returned.
	ListOpenExpired(ctx context.Context, now time.Time) ([]model.ExamAttempt, error)

	// TryFinalize closes the attempt only if it is still open, reporting
	// whether this call performed the update. A false result means another
	// finalizer already won; it is not an error.
	TryFinalize(ctx context.Context, id uuid.UUID, score float64, gradedBy string) (bool, error)

	// FinalizeWithAnswers records the answer rows and closes the attempt as
	// one atomic operation. When the finalize condition fails, nothing is
	// persisted — a lost race leaves no orphaned answer rows.
	FinalizeWithAnswers(ctx context.Context, id uuid.UUID, answers []model.StudentAnswer, score float64, gradedBy string) (bool, error)
}
