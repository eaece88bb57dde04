package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/examloop/examloop-backend/internal/model"
	"github.com/examloop/examloop-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func seedAttempt(t *testing.T, store repository.AttemptStore, expiresAt *time.Time) uuid.UUID {
	t.Helper()
	a := &model.ExamAttempt{
		ExamID:    uuid.New(),
		UserID:    1,
		StartedAt: time.Now().UTC().Add(-time.Hour),
		ExpiresAt: expiresAt,
	}
	if err := store.Create(context.Background(), a); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return a.ID
}

func timePtr(v time.Time) *time.Time { return &v }

func TestSweep(t *testing.T) {
	ctx := context.Background()

	t.Run("finalizes overdue attempts with zero score", func(t *testing.T) {
		store := repository.NewMemoryAttemptStore()
		overdue := seedAttempt(t, store, timePtr(time.Now().UTC().Add(-time.Minute)))
		future := seedAttempt(t, store, timePtr(time.Now().UTC().Add(time.Hour)))
		untimed := seedAttempt(t, store, nil)

		w := NewExpiryWorker(store, time.Minute, zerolog.Nop())
		w.Sweep(ctx)

		a, _ := store.GetByID(ctx, overdue)
		if a.Open() {
			t.Fatal("overdue attempt should be finalized")
		}
		if a.Score == nil || *a.Score != 0 {
			t.Errorf("score = %v, want 0", a.Score)
		}
		if a.GradedBy == nil || *a.GradedBy != model.GradedBySystem {
			t.Errorf("graded_by = %v, want %q", a.GradedBy, model.GradedBySystem)
		}

		for _, id := range []uuid.UUID{future, untimed} {
			a, _ := store.GetByID(ctx, id)
			if !a.Open() {
				t.Errorf("attempt %s should still be open", id)
			}
		}
	})

	t.Run("sweep is idempotent", func(t *testing.T) {
		store := repository.NewMemoryAttemptStore()
		id := seedAttempt(t, store, timePtr(time.Now().UTC().Add(-time.Minute)))

		w := NewExpiryWorker(store, time.Minute, zerolog.Nop())
		w.Sweep(ctx)

		a, _ := store.GetByID(ctx, id)
		first := *a.FinishedAt

		w.Sweep(ctx)

		a, _ = store.GetByID(ctx, id)
		if !a.FinishedAt.Equal(first) {
			t.Error("second sweep must not touch an already finalized attempt")
		}
	})

	t.Run("one failure does not block the rest", func(t *testing.T) {
		inner := repository.NewMemoryAttemptStore()
		poisoned := seedAttempt(t, inner, timePtr(time.Now().UTC().Add(-time.Minute)))
		healthy := seedAttempt(t, inner, timePtr(time.Now().UTC().Add(-time.Minute)))

		store := &flakyStore{AttemptStore: inner, failID: poisoned}
		w := NewExpiryWorker(store, time.Minute, zerolog.Nop())
		w.Sweep(ctx)

		a, _ := inner.GetByID(ctx, healthy)
		if a.Open() {
			t.Error("healthy attempt should be finalized despite the earlier failure")
		}
		a, _ = inner.GetByID(ctx, poisoned)
		if !a.Open() {
			t.Error("poisoned attempt should remain open for the next sweep")
		}
	})
}

// flakyStore fails TryFinalize for one attempt ID and delegates everything else.
type flakyStore struct {
	repository.AttemptStore
	failID uuid.UUID
}

func (s *flakyStore) TryFinalize(ctx context.Context, id uuid.UUID, score float64, gradedBy string) (bool, error) {
	if id == s.failID {
		return false, errors.New("simulated write failure")
	}
	return s.AttemptStore.TryFinalize(ctx, id, score, gradedBy)
}
