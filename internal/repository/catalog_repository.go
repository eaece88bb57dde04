package repository

import (
	"context"
	"errors"

	"github.com/examloop/examloop-backend/internal/model"
	"github.com/examloop/examloop-backend/internal/scoring"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogRepository reads the exam/question/option catalog. The catalog is
// immutable from this service's perspective.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// GetExamByID retrieves an exam by its UUID, or ErrNotFound.
func (r *CatalogRepository) GetExamByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, status, duration_minutes, created_at, updated_at
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.Status, &e.DurationMinutes, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// ListPublished returns all exams with PUBLISHED status, newest first.
func (r *CatalogRepository) ListPublished(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, status, duration_minutes, created_at, updated_at
		 FROM exams WHERE status = $1
		 ORDER BY created_at DESC`, model.ExamStatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Title, &e.Status, &e.DurationMinutes, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// PaperQuestions retrieves an exam's question views in paper order.
// Correctness flags are not selected here: this is the candidate-facing view.
func (r *CatalogRepository) PaperQuestions(ctx context.Context, examID uuid.UUID) ([]model.QuestionView, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT q.id, q.prompt, q.question_type, eq.points, eq.position, o.id, o.option_text
		 FROM exam_questions eq
		 JOIN questions q ON q.id = eq.question_id
		 JOIN options o ON o.question_id = q.id
		 WHERE eq.exam_id = $1
		 ORDER BY eq.position, o.id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.QuestionView
	index := make(map[uuid.UUID]int)

	for rows.Next() {
		var (
			qv  model.QuestionView
			opt model.OptionView
		)
		if err := rows.Scan(&qv.ID, &qv.Prompt, &qv.Type, &qv.Points, &qv.Position, &opt.ID, &opt.Text); err != nil {
			return nil, err
		}
		i, ok := index[qv.ID]
		if !ok {
			i = len(questions)
			index[qv.ID] = i
			questions = append(questions, qv)
		}
		questions[i].Options = append(questions[i].Options, opt)
	}
	return questions, rows.Err()
}

// AnswerKey retrieves the grading key for an exam: each question's point
// value and correct-option set, in paper order. Internal use only; this
// must never cross the external boundary.
func (r *CatalogRepository) AnswerKey(ctx context.Context, examID uuid.UUID) ([]scoring.QuestionKey, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT q.id, eq.points, o.id
		 FROM exam_questions eq
		 JOIN questions q ON q.id = eq.question_id
		 LEFT JOIN options o ON o.question_id = q.id AND o.is_correct
		 WHERE eq.exam_id = $1
		 ORDER BY eq.position`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var key []scoring.QuestionKey
	index := make(map[uuid.UUID]int)

	for rows.Next() {
		var (
			questionID uuid.UUID
			points     float64
			optionID   *uuid.UUID
		)
		if err := rows.Scan(&questionID, &points, &optionID); err != nil {
			return nil, err
		}
		i, ok := index[questionID]
		if !ok {
			i = len(key)
			index[questionID] = i
			key = append(key, scoring.QuestionKey{QuestionID: questionID, Points: points})
		}
		if optionID != nil {
			key[i].CorrectOptionIDs = append(key[i].CorrectOptionIDs, *optionID)
		}
	}
	return key, rows.Err()
}
