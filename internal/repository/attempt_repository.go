package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/examloop/examloop-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AttemptRepository is the PostgreSQL-backed AttemptStore.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, exam_id, user_id, started_at, expires_at, finished_at, score, graded_by`

func scanAttempt(row pgx.Row) (*model.ExamAttempt, error) {
	a := &model.ExamAttempt{}
	err := row.Scan(&a.ID, &a.ExamID, &a.UserID, &a.StartedAt, &a.ExpiresAt, &a.FinishedAt, &a.Score, &a.GradedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// Create inserts a new open attempt.
func (r *AttemptRepository) Create(ctx context.Context, a *model.ExamAttempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_attempts (exam_id, user_id, started_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		a.ExamID, a.UserID, a.StartedAt, a.ExpiresAt,
	).Scan(&a.ID)
}

// GetByID retrieves an attempt by its UUID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE id = $1`, id))
}

// ListByUser retrieves a user's attempts, newest first, with the total count.
func (r *AttemptRepository) ListByUser(ctx context.Context, userID, limit, offset int) ([]model.ExamAttempt, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_attempts WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE user_id = $1
		 ORDER BY started_at DESC
		 LIMIT $2 OFFSET $3`, userID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var attempts []model.ExamAttempt
	for rows.Next() {
		var a model.ExamAttempt
		if err := rows.Scan(&a.ID, &a.ExamID, &a.UserID, &a.StartedAt, &a.ExpiresAt, &a.FinishedAt, &a.Score, &a.GradedBy); err != nil {
			return nil, 0, err
		}
		attempts = append(attempts, a)
	}
	return attempts, total, rows.Err()
}

// ListAnswers retrieves the answer rows recorded for an attempt.
func (r *AttemptRepository) ListAnswers(ctx context.Context, attemptID uuid.UUID) ([]model.StudentAnswer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, attempt_id, question_id, option_id, per_option_score
		 FROM student_answers
		 WHERE attempt_id = $1`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.StudentAnswer
	for rows.Next() {
		var sa model.StudentAnswer
		if err := rows.Scan(&sa.ID, &sa.AttemptID, &sa.QuestionID, &sa.OptionID, &sa.PerOptionScore); err != nil {
			return nil, err
		}
		answers = append(answers, sa)
	}
	return answers, rows.Err()
}

// ListOpenExpired retrieves open attempts whose deadline has passed.
func (r *AttemptRepository) ListOpenExpired(ctx context.Context, now time.Time) ([]model.ExamAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE finished_at IS NULL
		   AND expires_at IS NOT NULL
		   AND expires_at <= $1
		 ORDER BY expires_at`, now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.ExamAttempt
	for rows.Next() {
		var a model.ExamAttempt
		if err := rows.Scan(&a.ID, &a.ExamID, &a.UserID, &a.StartedAt, &a.ExpiresAt, &a.FinishedAt, &a.Score, &a.GradedBy); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// TryFinalize closes the attempt with a single conditional write. The
// finished_at IS NULL predicate is the whole concurrency story: the database
// guarantees at most one caller gets a row back.
func (r *AttemptRepository) TryFinalize(ctx context.Context, id uuid.UUID, score float64, gradedBy string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET finished_at = NOW(), score = $2, graded_by = $3
		 WHERE id = $1 AND finished_at IS NULL`,
		id, score, gradedBy,
	)
	if err != nil {
		return false, fmt.Errorf("finalize attempt: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// FinalizeWithAnswers records the answer rows and closes the attempt in one
// transaction. Losing the finalize race rolls the answers back too.
func (r *AttemptRepository) FinalizeWithAnswers(ctx context.Context, id uuid.UUID, answers []model.StudentAnswer, score float64, gradedBy string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE exam_attempts
		 SET finished_at = NOW(), score = $2, graded_by = $3
		 WHERE id = $1 AND finished_at IS NULL`,
		id, score, gradedBy,
	)
	if err != nil {
		return false, fmt.Errorf("finalize attempt: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	if len(answers) > 0 {
		rows := make([][]interface{}, 0, len(answers))
		for _, sa := range answers {
			rows = append(rows, []interface{}{id, sa.QuestionID, sa.OptionID, sa.PerOptionScore})
		}
		if _, err := tx.CopyFrom(
			ctx,
			pgx.Identifier{"student_answers"},
			[]string{"attempt_id", "question_id", "option_id", "per_option_score"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return false, fmt.Errorf("record answers: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}
