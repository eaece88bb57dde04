package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/examloop/examloop-backend/internal/model"
	"github.com/google/uuid"
)

func openAttempt(t *testing.T, s *MemoryAttemptStore, expiresAt *time.Time) *model.ExamAttempt {
	t.Helper()
	a := &model.ExamAttempt{
		ExamID:    uuid.New(),
		UserID:    1,
		StartedAt: time.Now(),
		ExpiresAt: expiresAt,
	}
	if err := s.Create(context.Background(), a); err != nil {
		t.Fatalf("create attempt: %v", err)
	}
	return a
}

func TestTryFinalizeExactlyOnce(t *testing.T) {
	s := NewMemoryAttemptStore()
	past := time.Now().Add(-time.Minute)
	a := openAttempt(t, s, &past)

	// One user submit racing one sweeper pass, many times over.
	const racers = 32
	var wg sync.WaitGroup
	wins := make(chan string, racers)

	for i := 0; i < racers; i++ {
		gradedBy := model.GradedBySelf
		score := 7.5
		if i%2 == 0 {
			gradedBy = model.GradedBySystem
			score = 0
		}
		wg.Add(1)
		go func(score float64, gradedBy string) {
			defer wg.Done()
			ok, err := s.TryFinalize(context.Background(), a.ID, score, gradedBy)
			if err != nil {
				t.Errorf("finalize: %v", err)
				return
			}
			if ok {
				wins <- gradedBy
			}
		}(score, gradedBy)
	}
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("got %d winners, want exactly 1", len(winners))
	}

	got, err := s.GetByID(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.FinishedAt == nil || got.Score == nil || got.GradedBy == nil {
		t.Fatal("attempt not finalized")
	}
	if *got.GradedBy != winners[0] {
		t.Errorf("graded_by = %q, winner was %q", *got.GradedBy, winners[0])
	}
}

func TestFinalizeWithAnswersLostRacePersistsNothing(t *testing.T) {
	s := NewMemoryAttemptStore()
	past := time.Now().Add(-time.Minute)
	a := openAttempt(t, s, &past)

	// Sweeper wins first.
	ok, err := s.TryFinalize(context.Background(), a.ID, 0, model.GradedBySystem)
	if err != nil || !ok {
		t.Fatalf("sweeper finalize: ok=%v err=%v", ok, err)
	}

	answers := []model.StudentAnswer{
		{QuestionID: uuid.New(), OptionID: uuid.New(), PerOptionScore: 1.0},
	}
	ok, err = s.FinalizeWithAnswers(context.Background(), a.ID, answers, 1.0, model.GradedBySelf)
	if err != nil {
		t.Fatalf("finalize with answers: %v", err)
	}
	if ok {
		t.Fatal("user submit won after sweeper already finalized")
	}

	stored, err := s.ListAnswers(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("list answers: %v", err)
	}
	if len(stored) != 0 {
		t.Errorf("lost race left %d orphaned answer rows", len(stored))
	}

	got, _ := s.GetByID(context.Background(), a.ID)
	if *got.Score != 0 || *got.GradedBy != model.GradedBySystem {
		t.Errorf("sweeper result overwritten: score=%v graded_by=%v", *got.Score, *got.GradedBy)
	}
}

func TestFinalizeWithAnswersRecordsRows(t *testing.T) {
	s := NewMemoryAttemptStore()
	a := openAttempt(t, s, nil)

	answers := []model.StudentAnswer{
		{QuestionID: uuid.New(), OptionID: uuid.New(), PerOptionScore: 2.0},
		{QuestionID: uuid.New(), OptionID: uuid.New(), PerOptionScore: 0},
	}
	ok, err := s.FinalizeWithAnswers(context.Background(), a.ID, answers, 2.0, model.GradedBySelf)
	if err != nil || !ok {
		t.Fatalf("finalize: ok=%v err=%v", ok, err)
	}

	stored, err := s.ListAnswers(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("list answers: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("stored %d answers, want 2", len(stored))
	}
	for _, sa := range stored {
		if sa.AttemptID != a.ID {
			t.Errorf("answer row attributed to %v, want %v", sa.AttemptID, a.ID)
		}
		if sa.ID == uuid.Nil {
			t.Error("answer row missing ID")
		}
	}
}

func TestListOpenExpired(t *testing.T) {
	s := NewMemoryAttemptStore()
	now := time.Now()

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	expired := openAttempt(t, s, &past)
	openAttempt(t, s, &future) // not yet due
	openAttempt(t, s, nil)     // untimed, never swept

	finished := openAttempt(t, s, &past)
	if ok, _ := s.TryFinalize(context.Background(), finished.ID, 0, model.GradedBySystem); !ok {
		t.Fatal("setup finalize failed")
	}

	due, err := s.ListOpenExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("got %d due attempts, want 1", len(due))
	}
	if due[0].ID != expired.ID {
		t.Errorf("wrong attempt returned: %v", due[0].ID)
	}
}

func TestListOpenExpiredNeverReturnsUntimed(t *testing.T) {
	s := NewMemoryAttemptStore()
	openAttempt(t, s, nil)

	// Far future "now" still must not sweep an untimed attempt.
	due, err := s.ListOpenExpired(context.Background(), time.Now().AddDate(100, 0, 0))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("untimed attempt returned by ListOpenExpired")
	}
}

func TestListByUserPagination(t *testing.T) {
	s := NewMemoryAttemptStore()
	base := time.Now()
	for i := 0; i < 5; i++ {
		a := &model.ExamAttempt{
			ExamID:    uuid.New(),
			UserID:    42,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.Create(context.Background(), a); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	// Another user's attempt must not leak in.
	other := &model.ExamAttempt{ExamID: uuid.New(), UserID: 7, StartedAt: base}
	if err := s.Create(context.Background(), other); err != nil {
		t.Fatalf("create: %v", err)
	}

	page, total, err := s.ListByUser(context.Background(), 42, 2, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(page) != 2 {
		t.Fatalf("page size = %d, want 2", len(page))
	}
	if !page[0].StartedAt.After(page[1].StartedAt) {
		t.Error("attempts not sorted newest first")
	}
}
