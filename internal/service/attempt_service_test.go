package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/examloop/examloop-backend/internal/model"
	"github.com/examloop/examloop-backend/internal/repository"
	"github.com/examloop/examloop-backend/internal/scoring"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// fakeCatalog serves a fixed exam, paper and key without Redis or Postgres.
type fakeCatalog struct {
	exam  model.Exam
	paper model.ExamPaper
	key   []scoring.QuestionKey
}

func (f *fakeCatalog) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	if id != f.exam.ID {
		return nil, repository.ErrNotFound
	}
	exam := f.exam
	return &exam, nil
}

func (f *fakeCatalog) GetExamPaper(_ context.Context, examID uuid.UUID) (*model.ExamPaper, error) {
	if examID != f.exam.ID {
		return nil, repository.ErrNotFound
	}
	paper := f.paper
	return &paper, nil
}

func (f *fakeCatalog) AnswerKey(_ context.Context, examID uuid.UUID) ([]scoring.QuestionKey, error) {
	if examID != f.exam.ID {
		return nil, repository.ErrNotFound
	}
	return f.key, nil
}

// twoQuestionCatalog builds a published exam with one single-choice and one
// multi-choice question worth 1 point each.
func twoQuestionCatalog(durationMinutes *int) (*fakeCatalog, []uuid.UUID) {
	examID := uuid.New()
	q1 := uuid.New()
	q2 := uuid.New()
	q1correct := uuid.New()
	q1wrong := uuid.New()
	q2a := uuid.New()
	q2b := uuid.New()
	q2wrong := uuid.New()

	cat := &fakeCatalog{
		exam: model.Exam{
			ID:              examID,
			Title:           "Networking Basics",
			Status:          model.ExamStatusPublished,
			DurationMinutes: durationMinutes,
		},
		paper: model.ExamPaper{
			ExamID:          examID,
			Title:           "Networking Basics",
			DurationMinutes: durationMinutes,
			Questions: []model.QuestionView{
				{
					ID: q1, Prompt: "Default HTTPS port?", Type: model.QuestionTypeSingleChoice,
					Points: 1, Position: 1,
					Options: []model.OptionView{{ID: q1correct, Text: "443"}, {ID: q1wrong, Text: "80"}},
				},
				{
					ID: q2, Prompt: "Which are transport protocols?", Type: model.QuestionTypeMultiChoice,
					Points: 1, Position: 2,
					Options: []model.OptionView{{ID: q2a, Text: "TCP"}, {ID: q2b, Text: "UDP"}, {ID: q2wrong, Text: "HTTP"}},
				},
			},
		},
		key: []scoring.QuestionKey{
			{QuestionID: q1, Points: 1, CorrectOptionIDs: []uuid.UUID{q1correct}},
			{QuestionID: q2, Points: 1, CorrectOptionIDs: []uuid.UUID{q2a, q2b}},
		},
	}

	return cat, []uuid.UUID{q1, q1correct, q1wrong, q2, q2a, q2b, q2wrong}
}

func newTestService(cat ExamCatalog) (*AttemptService, *repository.MemoryAttemptStore) {
	store := repository.NewMemoryAttemptStore()
	return NewAttemptService(cat, store, zerolog.Nop()), store
}

func intPtr(v int) *int { return &v }

func TestStartAttempt(t *testing.T) {
	ctx := context.Background()

	t.Run("timed exam gets a deadline", func(t *testing.T) {
		cat, _ := twoQuestionCatalog(intPtr(30))
		svc, store := newTestService(cat)

		started, err := svc.StartAttempt(ctx, 7, cat.exam.ID)
		if err != nil {
			t.Fatalf("StartAttempt: %v", err)
		}
		if started.ExpiresAt == nil {
			t.Fatal("expected a deadline on a timed exam")
		}
		if len(started.Questions) != 2 {
			t.Fatalf("expected 2 questions, got %d", len(started.Questions))
		}

		attempt, err := store.GetByID(ctx, started.AttemptID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		want := attempt.StartedAt.Add(30 * time.Minute)
		if !attempt.ExpiresAt.Equal(want) {
			t.Errorf("deadline = %v, want %v", attempt.ExpiresAt, want)
		}
	})

	t.Run("untimed exam has no deadline", func(t *testing.T) {
		cat, _ := twoQuestionCatalog(nil)
		svc, _ := newTestService(cat)

		started, err := svc.StartAttempt(ctx, 7, cat.exam.ID)
		if err != nil {
			t.Fatalf("StartAttempt: %v", err)
		}
		if started.ExpiresAt != nil {
			t.Errorf("expected nil deadline, got %v", started.ExpiresAt)
		}
	})

	t.Run("zero duration expires immediately", func(t *testing.T) {
		cat, _ := twoQuestionCatalog(intPtr(0))
		svc, store := newTestService(cat)

		started, err := svc.StartAttempt(ctx, 7, cat.exam.ID)
		if err != nil {
			t.Fatalf("StartAttempt: %v", err)
		}

		attempt, _ := store.GetByID(ctx, started.AttemptID)
		if !attempt.ExpiresAt.Equal(attempt.StartedAt) {
			t.Errorf("deadline %v should equal start %v", attempt.ExpiresAt, attempt.StartedAt)
		}

		expired, err := store.ListOpenExpired(ctx, time.Now().UTC().Add(time.Second))
		if err != nil {
			t.Fatalf("ListOpenExpired: %v", err)
		}
		if len(expired) != 1 {
			t.Errorf("expected the attempt to be sweepable, got %d expired", len(expired))
		}
	})

	t.Run("unpublished exam rejected", func(t *testing.T) {
		cat, _ := twoQuestionCatalog(intPtr(30))
		cat.exam.Status = model.ExamStatusDraft
		svc, _ := newTestService(cat)

		if _, err := svc.StartAttempt(ctx, 7, cat.exam.ID); !errors.Is(err, ErrExamNotPublished) {
			t.Errorf("err = %v, want ErrExamNotPublished", err)
		}
	})

	t.Run("unknown exam not found", func(t *testing.T) {
		cat, _ := twoQuestionCatalog(intPtr(30))
		svc, _ := newTestService(cat)

		if _, err := svc.StartAttempt(ctx, 7, uuid.New()); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestSubmitAttempt(t *testing.T) {
	ctx := context.Background()

	t.Run("grades and finalizes", func(t *testing.T) {
		cat, ids := twoQuestionCatalog(intPtr(30))
		q1, q1correct := ids[0], ids[1]
		q2, q2a, q2b := ids[3], ids[4], ids[5]
		svc, store := newTestService(cat)

		started, _ := svc.StartAttempt(ctx, 7, cat.exam.ID)

		result, err := svc.SubmitAttempt(ctx, 7, started.AttemptID, []model.AnswerSubmission{
			{QuestionID: q1, SelectedOptionIDs: []uuid.UUID{q1correct}},
			{QuestionID: q2, SelectedOptionIDs: []uuid.UUID{q2b, q2a}},
		})
		if err != nil {
			t.Fatalf("SubmitAttempt: %v", err)
		}
		if result.Score != 2.0 || result.TotalCorrect != 2 {
			t.Errorf("score = %v correct = %d, want 2.0 and 2", result.Score, result.TotalCorrect)
		}

		attempt, _ := store.GetByID(ctx, started.AttemptID)
		if attempt.Open() {
			t.Fatal("attempt should be finalized")
		}
		if attempt.GradedBy == nil || *attempt.GradedBy != model.GradedBySelf {
			t.Errorf("graded_by = %v, want %q", attempt.GradedBy, model.GradedBySelf)
		}

		rows, _ := store.ListAnswers(ctx, started.AttemptID)
		if len(rows) != 3 {
			t.Errorf("expected 3 answer rows, got %d", len(rows))
		}
	})

	t.Run("partial match scores zero for the question", func(t *testing.T) {
		cat, ids := twoQuestionCatalog(intPtr(30))
		q1, q1correct := ids[0], ids[1]
		q2, q2a := ids[3], ids[4]
		svc, _ := newTestService(cat)

		started, _ := svc.StartAttempt(ctx, 7, cat.exam.ID)

		// q2 requires both TCP and UDP; selecting only one earns nothing.
		result, err := svc.SubmitAttempt(ctx, 7, started.AttemptID, []model.AnswerSubmission{
			{QuestionID: q1, SelectedOptionIDs: []uuid.UUID{q1correct}},
			{QuestionID: q2, SelectedOptionIDs: []uuid.UUID{q2a}},
		})
		if err != nil {
			t.Fatalf("SubmitAttempt: %v", err)
		}
		if result.Score != 1.0 || result.TotalCorrect != 1 {
			t.Errorf("score = %v correct = %d, want 1.0 and 1", result.Score, result.TotalCorrect)
		}
	})

	t.Run("unknown questions ignored and not persisted", func(t *testing.T) {
		cat, ids := twoQuestionCatalog(intPtr(30))
		q1, q1correct := ids[0], ids[1]
		svc, store := newTestService(cat)

		started, _ := svc.StartAttempt(ctx, 7, cat.exam.ID)

		result, err := svc.SubmitAttempt(ctx, 7, started.AttemptID, []model.AnswerSubmission{
			{QuestionID: q1, SelectedOptionIDs: []uuid.UUID{q1correct}},
			{QuestionID: uuid.New(), SelectedOptionIDs: []uuid.UUID{uuid.New()}},
		})
		if err != nil {
			t.Fatalf("SubmitAttempt: %v", err)
		}
		if result.Score != 1.0 {
			t.Errorf("score = %v, want 1.0", result.Score)
		}

		rows, _ := store.ListAnswers(ctx, started.AttemptID)
		if len(rows) != 1 {
			t.Errorf("expected 1 answer row, got %d", len(rows))
		}
	})

	t.Run("another user's attempt forbidden", func(t *testing.T) {
		cat, _ := twoQuestionCatalog(intPtr(30))
		svc, _ := newTestService(cat)

		started, _ := svc.StartAttempt(ctx, 7, cat.exam.ID)

		if _, err := svc.SubmitAttempt(ctx, 8, started.AttemptID, nil); !errors.Is(err, ErrForbidden) {
			t.Errorf("err = %v, want ErrForbidden", err)
		}
	})

	t.Run("second submit rejected, first score stands", func(t *testing.T) {
		cat, ids := twoQuestionCatalog(intPtr(30))
		q1, q1correct := ids[0], ids[1]
		svc, store := newTestService(cat)

		started, _ := svc.StartAttempt(ctx, 7, cat.exam.ID)

		if _, err := svc.SubmitAttempt(ctx, 7, started.AttemptID, []model.AnswerSubmission{
			{QuestionID: q1, SelectedOptionIDs: []uuid.UUID{q1correct}},
		}); err != nil {
			t.Fatalf("first submit: %v", err)
		}

		if _, err := svc.SubmitAttempt(ctx, 7, started.AttemptID, nil); !errors.Is(err, ErrAttemptFinalized) {
			t.Errorf("err = %v, want ErrAttemptFinalized", err)
		}

		attempt, _ := store.GetByID(ctx, started.AttemptID)
		if attempt.Score == nil || *attempt.Score != 1.0 {
			t.Errorf("score = %v, want 1.0 from the first submit", attempt.Score)
		}
	})

	t.Run("submit after sweep keeps sweeper's zero score", func(t *testing.T) {
		cat, ids := twoQuestionCatalog(intPtr(0))
		q1, q1correct := ids[0], ids[1]
		svc, store := newTestService(cat)

		started, _ := svc.StartAttempt(ctx, 7, cat.exam.ID)

		// The sweeper wins the race.
		won, err := store.TryFinalize(ctx, started.AttemptID, 0, model.GradedBySystem)
		if err != nil || !won {
			t.Fatalf("TryFinalize: won=%v err=%v", won, err)
		}

		if _, err := svc.SubmitAttempt(ctx, 7, started.AttemptID, []model.AnswerSubmission{
			{QuestionID: q1, SelectedOptionIDs: []uuid.UUID{q1correct}},
		}); !errors.Is(err, ErrAttemptFinalized) {
			t.Errorf("err = %v, want ErrAttemptFinalized", err)
		}

		attempt, _ := store.GetByID(ctx, started.AttemptID)
		if attempt.Score == nil || *attempt.Score != 0 {
			t.Errorf("score = %v, want the sweeper's 0", attempt.Score)
		}
		if attempt.GradedBy == nil || *attempt.GradedBy != model.GradedBySystem {
			t.Errorf("graded_by = %v, want %q", attempt.GradedBy, model.GradedBySystem)
		}

		rows, _ := store.ListAnswers(ctx, started.AttemptID)
		if len(rows) != 0 {
			t.Errorf("lost submission must persist no answer rows, got %d", len(rows))
		}
	})
}

func TestGetAttemptDetail(t *testing.T) {
	ctx := context.Background()

	t.Run("open attempt hides answers", func(t *testing.T) {
		cat, _ := twoQuestionCatalog(intPtr(30))
		svc, _ := newTestService(cat)

		started, _ := svc.StartAttempt(ctx, 7, cat.exam.ID)

		detail, err := svc.GetAttemptDetail(ctx, 7, started.AttemptID)
		if err != nil {
			t.Fatalf("GetAttemptDetail: %v", err)
		}
		if !detail.Attempt.Open() {
			t.Error("attempt should still be open")
		}
		if len(detail.Questions) != 0 {
			t.Errorf("open attempt must not reveal the review, got %d questions", len(detail.Questions))
		}
		if detail.ExamTitle != "Networking Basics" {
			t.Errorf("exam_title = %q", detail.ExamTitle)
		}
	})

	t.Run("finalized attempt reveals breakdown", func(t *testing.T) {
		cat, ids := twoQuestionCatalog(intPtr(30))
		q1, q1correct := ids[0], ids[1]
		q2, q2a := ids[3], ids[4]
		svc, _ := newTestService(cat)

		started, _ := svc.StartAttempt(ctx, 7, cat.exam.ID)
		if _, err := svc.SubmitAttempt(ctx, 7, started.AttemptID, []model.AnswerSubmission{
			{QuestionID: q1, SelectedOptionIDs: []uuid.UUID{q1correct}},
			{QuestionID: q2, SelectedOptionIDs: []uuid.UUID{q2a}},
		}); err != nil {
			t.Fatalf("SubmitAttempt: %v", err)
		}

		detail, err := svc.GetAttemptDetail(ctx, 7, started.AttemptID)
		if err != nil {
			t.Fatalf("GetAttemptDetail: %v", err)
		}
		if len(detail.Questions) != 2 {
			t.Fatalf("expected 2 question reviews, got %d", len(detail.Questions))
		}

		first := detail.Questions[0]
		if first.QuestionID != q1 || !first.IsCorrect || first.AwardedPoints != 1.0 {
			t.Errorf("q1 review = %+v, want correct with 1.0 awarded", first)
		}
		second := detail.Questions[1]
		if second.IsCorrect || second.AwardedPoints != 0 {
			t.Errorf("q2 review = %+v, want incorrect with 0 awarded", second)
		}
		if len(second.CorrectOptionIDs) != 2 {
			t.Errorf("q2 correct options = %d, want 2 revealed", len(second.CorrectOptionIDs))
		}
	})

	t.Run("detail is read-only and repeatable", func(t *testing.T) {
		cat, ids := twoQuestionCatalog(intPtr(30))
		q1, q1correct := ids[0], ids[1]
		svc, _ := newTestService(cat)

		started, _ := svc.StartAttempt(ctx, 7, cat.exam.ID)
		svc.SubmitAttempt(ctx, 7, started.AttemptID, []model.AnswerSubmission{
			{QuestionID: q1, SelectedOptionIDs: []uuid.UUID{q1correct}},
		})

		a, err := svc.GetAttemptDetail(ctx, 7, started.AttemptID)
		if err != nil {
			t.Fatalf("first read: %v", err)
		}
		b, err := svc.GetAttemptDetail(ctx, 7, started.AttemptID)
		if err != nil {
			t.Fatalf("second read: %v", err)
		}
		if *a.Attempt.Score != *b.Attempt.Score || len(a.Questions) != len(b.Questions) {
			t.Error("repeated reads should return identical results")
		}
	})

	t.Run("another user's attempt forbidden", func(t *testing.T) {
		cat, _ := twoQuestionCatalog(intPtr(30))
		svc, _ := newTestService(cat)

		started, _ := svc.StartAttempt(ctx, 7, cat.exam.ID)

		if _, err := svc.GetAttemptDetail(ctx, 8, started.AttemptID); !errors.Is(err, ErrForbidden) {
			t.Errorf("err = %v, want ErrForbidden", err)
		}
	})
}

func TestListMyAttempts(t *testing.T) {
	ctx := context.Background()
	cat, _ := twoQuestionCatalog(intPtr(30))
	svc, _ := newTestService(cat)

	for i := 0; i < 3; i++ {
		if _, err := svc.StartAttempt(ctx, 7, cat.exam.ID); err != nil {
			t.Fatalf("StartAttempt: %v", err)
		}
	}
	svc.StartAttempt(ctx, 8, cat.exam.ID)

	summaries, total, err := svc.ListMyAttempts(ctx, 7, 2, 0)
	if err != nil {
		t.Fatalf("ListMyAttempts: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(summaries) != 2 {
		t.Errorf("page size = %d, want 2", len(summaries))
	}
	for _, s := range summaries {
		if s.UserID != 7 {
			t.Errorf("leaked attempt for user %d", s.UserID)
		}
		if s.ExamTitle != "Networking Basics" {
			t.Errorf("exam_title = %q", s.ExamTitle)
		}
	}
}
