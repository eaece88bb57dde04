package worker

import (
	"context"
	"time"

	"github.com/examloop/examloop-backend/internal/model"
	"github.com/examloop/examloop-backend/internal/repository"
	"github.com/rs/zerolog"
)

// ExpiryWorker periodically finalizes open attempts whose deadline has
// passed, recording a zero score. It shares the store's conditional write
// with the submit path, so racing a late submission is safe: exactly one
// of them closes the attempt.
type ExpiryWorker struct {
	store    repository.AttemptStore
	log      zerolog.Logger
	interval time.Duration
}

// NewExpiryWorker creates a new ExpiryWorker.
func NewExpiryWorker(store repository.AttemptStore, interval time.Duration, log zerolog.Logger) *ExpiryWorker {
	return &ExpiryWorker{
		store:    store,
		log:      log.With().Str("component", "expiry_worker").Logger(),
		interval: interval,
	}
}

// Start begins the periodic sweep loop. Call in a goroutine.
func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep finalizes every overdue open attempt it can find. A failure on one
// attempt never blocks the rest; anything missed is retried next tick.
func (w *ExpiryWorker) Sweep(ctx context.Context) {
	now := time.Now().UTC()

	expired, err := w.store.ListOpenExpired(ctx, now)
	if err != nil {
		w.log.Error().Err(err).Msg("List expired attempts failed")
		return
	}
	if len(expired) == 0 {
		return
	}

	closed := 0
	for _, a := range expired {
		won, err := w.store.TryFinalize(ctx, a.ID, 0, model.GradedBySystem)
		if err != nil {
			w.log.Error().Err(err).
				Str("attempt_id", a.ID.String()).
				Msg("Auto-finalize failed")
			continue
		}
		if !won {
			// A submission slipped in between the list and the write.
			w.log.Debug().
				Str("attempt_id", a.ID.String()).
				Msg("Attempt already finalized, skipping")
			continue
		}
		closed++
		w.log.Info().
			Str("attempt_id", a.ID.String()).
			Str("exam_id", a.ExamID.String()).
			Int("user_id", a.UserID).
			Time("deadline", *a.ExpiresAt).
			Msg("Attempt auto-finalized")
	}

	if closed > 0 {
		w.log.Info().Int("closed", closed).Int("candidates", len(expired)).Msg("Sweep complete")
	}
}
