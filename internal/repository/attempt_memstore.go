package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/examloop/examloop-backend/internal/model"
	"github.com/google/uuid"
)

// MemoryAttemptStore is an in-process AttemptStore for single-node
// deployments and tests. All state lives behind one mutex, which gives the
// same exactly-one-winner finalize guarantee as the SQL conditional write.
type MemoryAttemptStore struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*model.ExamAttempt
	answers  map[uuid.UUID][]model.StudentAnswer
}

// NewMemoryAttemptStore creates an empty MemoryAttemptStore.
func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{
		attempts: make(map[uuid.UUID]*model.ExamAttempt),
		answers:  make(map[uuid.UUID][]model.StudentAnswer),
	}
}

// Create inserts a new open attempt, assigning an ID if unset.
func (s *MemoryAttemptStore) Create(_ context.Context, a *model.ExamAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	cp := *a
	s.attempts[a.ID] = &cp
	return nil
}

// GetByID retrieves a copy of an attempt.
func (s *MemoryAttemptStore) GetByID(_ context.Context, id uuid.UUID) (*model.ExamAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// ListByUser retrieves a user's attempts, newest first.
func (s *MemoryAttemptStore) ListByUser(_ context.Context, userID, limit, offset int) ([]model.ExamAttempt, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []model.ExamAttempt
	for _, a := range s.attempts {
		if a.UserID == userID {
			all = append(all, *a)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].StartedAt.After(all[j].StartedAt)
	})

	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

// ListAnswers retrieves the answer rows recorded for an attempt.
func (s *MemoryAttemptStore) ListAnswers(_ context.Context, attemptID uuid.UUID) ([]model.StudentAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]model.StudentAnswer(nil), s.answers[attemptID]...), nil
}

// ListOpenExpired retrieves open attempts whose deadline has passed.
func (s *MemoryAttemptStore) ListOpenExpired(_ context.Context, now time.Time) ([]model.ExamAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []model.ExamAttempt
	for _, a := range s.attempts {
		if a.FinishedAt == nil && a.ExpiresAt != nil && !a.ExpiresAt.After(now) {
			expired = append(expired, *a)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].ExpiresAt.Before(*expired[j].ExpiresAt)
	})
	return expired, nil
}

// TryFinalize closes the attempt only if it is still open.
func (s *MemoryAttemptStore) TryFinalize(_ context.Context, id uuid.UUID, score float64, gradedBy string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.finalizeLocked(id, score, gradedBy), nil
}

// FinalizeWithAnswers records answers and closes the attempt atomically.
func (s *MemoryAttemptStore) FinalizeWithAnswers(_ context.Context, id uuid.UUID, answers []model.StudentAnswer, score float64, gradedBy string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.finalizeLocked(id, score, gradedBy) {
		return false, nil
	}

	recorded := make([]model.StudentAnswer, 0, len(answers))
	for _, sa := range answers {
		if sa.ID == uuid.Nil {
			sa.ID = uuid.New()
		}
		sa.AttemptID = id
		recorded = append(recorded, sa)
	}
	s.answers[id] = recorded
	return true, nil
}

func (s *MemoryAttemptStore) finalizeLocked(id uuid.UUID, score float64, gradedBy string) bool {
	a, ok := s.attempts[id]
	if !ok || a.FinishedAt != nil {
		return false
	}
	now := time.Now()
	a.FinishedAt = &now
	a.Score = &score
	a.GradedBy = &gradedBy
	return true
}
