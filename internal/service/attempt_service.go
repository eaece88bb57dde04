package service

import (
	"context"
	"errors"
	"time"

	"github.com/examloop/examloop-backend/internal/model"
	"github.com/examloop/examloop-backend/internal/repository"
	"github.com/examloop/examloop-backend/internal/scoring"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sentinel errors for attempt lifecycle operations.
var (
	ErrNotFound         = errors.New("not found")
	ErrExamNotPublished = errors.New("exam is not published")
	ErrForbidden        = errors.New("attempt belongs to another user")
	ErrAttemptFinalized = errors.New("attempt already finalized")
)

// ExamCatalog is the read surface the attempt lifecycle needs from the
// exam catalog. *ExamService satisfies it.
type ExamCatalog interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	GetExamPaper(ctx context.Context, examID uuid.UUID) (*model.ExamPaper, error)
	AnswerKey(ctx context.Context, examID uuid.UUID) ([]scoring.QuestionKey, error)
}

// AttemptService owns the attempt lifecycle: start, submit, review.
//
// Finalization is at-most-once: submit and the expiry sweeper both race
// through the store's conditional write, and only the winner's score stands.
type AttemptService struct {
	catalog  ExamCatalog
	attempts repository.AttemptStore
	log      zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(catalog ExamCatalog, attempts repository.AttemptStore, log zerolog.Logger) *AttemptService {
	return &AttemptService{
		catalog:  catalog,
		attempts: attempts,
		log:      log.With().Str("component", "attempt_service").Logger(),
	}
}

// StartAttempt opens a new attempt on a published exam and returns the
// paper the candidate will answer. The deadline is fixed at start time;
// untimed exams produce attempts with no deadline.
func (s *AttemptService) StartAttempt(ctx context.Context, userID int, examID uuid.UUID) (*model.AttemptStarted, error) {
	exam, err := s.catalog.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotPublished
	}

	paper, err := s.catalog.GetExamPaper(ctx, examID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	attempt := &model.ExamAttempt{
		ExamID:    examID,
		UserID:    userID,
		StartedAt: now,
	}
	if exam.DurationMinutes != nil {
		deadline := now.Add(time.Duration(*exam.DurationMinutes) * time.Minute)
		attempt.ExpiresAt = &deadline
	}

	if err := s.attempts.Create(ctx, attempt); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("exam_id", examID.String()).
		Int("user_id", userID).
		Msg("Attempt started")

	return &model.AttemptStarted{
		AttemptID: attempt.ID,
		ExpiresAt: attempt.ExpiresAt,
		Questions: paper.Questions,
	}, nil
}

// SubmitAttempt grades the candidate's answers and finalizes the attempt.
//
// The grade is computed before the conditional write, so a submission that
// loses the race against the expiry sweeper changes nothing: the sweeper's
// zero score stands and the caller gets ErrAttemptFinalized. Expiry is
// enforced by the sweeper, not here; a submission arriving after the
// deadline but before the sweep still counts.
func (s *AttemptService) SubmitAttempt(ctx context.Context, userID int, attemptID uuid.UUID, answers []model.AnswerSubmission) (*model.AttemptResult, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if attempt.UserID != userID {
		return nil, ErrForbidden
	}
	if !attempt.Open() {
		return nil, ErrAttemptFinalized
	}

	key, err := s.catalog.AnswerKey(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}

	submitted := make(map[uuid.UUID][]uuid.UUID, len(answers))
	for _, a := range answers {
		submitted[a.QuestionID] = a.SelectedOptionIDs
	}

	result := scoring.Grade(key, submitted)

	rows := answerRows(attemptID, answers, result)

	ok, err := s.attempts.FinalizeWithAnswers(ctx, attemptID, rows, result.Score, model.GradedBySelf)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race, most likely against the expiry sweeper.
		return nil, ErrAttemptFinalized
	}

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Float64("score", result.Score).
		Int("correct", result.TotalCorrect).
		Int("questions", result.TotalQuestions).
		Msg("Attempt submitted")

	return &model.AttemptResult{
		Score:          result.Score,
		MaxScore:       result.MaxScore,
		TotalCorrect:   result.TotalCorrect,
		TotalQuestions: result.TotalQuestions,
	}, nil
}

// GetAttemptDetail returns the full review of an attempt: status, score,
// and for finalized attempts the per-question breakdown with the correct
// answers revealed.
func (s *AttemptService) GetAttemptDetail(ctx context.Context, userID int, attemptID uuid.UUID) (*model.AttemptDetail, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if attempt.UserID != userID {
		return nil, ErrForbidden
	}

	exam, err := s.catalog.GetByID(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}

	detail := &model.AttemptDetail{
		Attempt:   *attempt,
		ExamTitle: exam.Title,
	}

	// Answers and the key are only revealed once the attempt is closed.
	if attempt.Open() {
		return detail, nil
	}

	paper, err := s.catalog.GetExamPaper(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}
	key, err := s.catalog.AnswerKey(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}
	stored, err := s.attempts.ListAnswers(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	keyByQuestion := make(map[uuid.UUID]scoring.QuestionKey, len(key))
	for _, qk := range key {
		keyByQuestion[qk.QuestionID] = qk
	}
	selectedByQuestion := make(map[uuid.UUID][]uuid.UUID)
	for _, row := range stored {
		selectedByQuestion[row.QuestionID] = append(selectedByQuestion[row.QuestionID], row.OptionID)
	}

	detail.Questions = make([]model.QuestionReview, 0, len(paper.Questions))
	for _, q := range paper.Questions {
		qk := keyByQuestion[q.ID]
		selected := selectedByQuestion[q.ID]
		review := model.QuestionReview{
			QuestionID:        q.ID,
			Prompt:            q.Prompt,
			Points:            q.Points,
			Options:           q.Options,
			SelectedOptionIDs: selected,
			CorrectOptionIDs:  qk.CorrectOptionIDs,
		}
		if scoring.SetsEqual(selected, qk.CorrectOptionIDs) {
			review.IsCorrect = true
			review.AwardedPoints = q.Points
		}
		detail.Questions = append(detail.Questions, review)
	}

	return detail, nil
}

// ListMyAttempts returns a page of the user's attempts, newest first,
// enriched with exam titles.
func (s *AttemptService) ListMyAttempts(ctx context.Context, userID, limit, offset int) ([]model.AttemptSummary, int64, error) {
	attempts, total, err := s.attempts.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	summaries := make([]model.AttemptSummary, 0, len(attempts))
	for _, a := range attempts {
		summary := model.AttemptSummary{ExamAttempt: a}
		exam, err := s.catalog.GetByID(ctx, a.ExamID)
		if err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", a.ExamID.String()).
				Msg("Failed to resolve exam title")
		} else {
			summary.ExamTitle = exam.Title
		}
		summaries = append(summaries, summary)
	}

	return summaries, total, nil
}

// answerRows builds the persisted answer rows for a graded submission.
// Each selected option becomes one row carrying the points the question
// earned. Questions not present in the key produce no rows.
func answerRows(attemptID uuid.UUID, answers []model.AnswerSubmission, result scoring.Result) []model.StudentAnswer {
	awarded := make(map[uuid.UUID]float64, len(result.Outcomes))
	known := make(map[uuid.UUID]bool, len(result.Outcomes))
	for _, o := range result.Outcomes {
		awarded[o.QuestionID] = o.Awarded
		known[o.QuestionID] = true
	}

	var rows []model.StudentAnswer
	for _, a := range answers {
		if !known[a.QuestionID] {
			continue
		}
		for _, optID := range a.SelectedOptionIDs {
			rows = append(rows, model.StudentAnswer{
				AttemptID:      attemptID,
				QuestionID:     a.QuestionID,
				OptionID:       optID,
				PerOptionScore: awarded[a.QuestionID],
			})
		}
	}
	return rows
}
