package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/examloop/examloop-backend/internal/config"
	"github.com/examloop/examloop-backend/internal/model"
	"github.com/examloop/examloop-backend/internal/repository"
	"github.com/examloop/examloop-backend/internal/scoring"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrNoQuestions is returned when an exam has no questions to serve.
var ErrNoQuestions = errors.New("exam has no questions")

// ExamService provides catalog reads with a Redis cache in front: the
// candidate-facing paper and the internal grading key are cached per exam,
// prewarmed at startup, and reloaded from PostgreSQL on a cache miss.
type ExamService struct {
	catalog *repository.CatalogRepository
	rdb     *redis.Client
	log     zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(catalog *repository.CatalogRepository, rdb *redis.Client, log zerolog.Logger) *ExamService {
	return &ExamService{
		catalog: catalog,
		rdb:     rdb,
		log:     log.With().Str("component", "exam_service").Logger(),
	}
}

// GetByID retrieves an exam by its UUID.
func (s *ExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return s.catalog.GetExamByID(ctx, id)
}

// ListPublished returns all exams open for attempts.
func (s *ExamService) ListPublished(ctx context.Context) ([]model.Exam, error) {
	return s.catalog.ListPublished(ctx)
}

// GetExamPaper retrieves the candidate-facing paper for an exam, serving
// from Redis and falling back to PostgreSQL (with self-heal) on a miss.
func (s *ExamService) GetExamPaper(ctx context.Context, examID uuid.UUID) (*model.ExamPaper, error) {
	key := config.CacheKey.ExamPaperKey(examID.String())

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var paper model.ExamPaper
		if err := json.Unmarshal(data, &paper); err != nil {
			return nil, fmt.Errorf("unmarshal paper: %w", err)
		}
		return &paper, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get paper: %w", err)
	}

	// Cache miss (evicted, or never warmed). PostgreSQL is the source of
	// truth; warm the cache back so the next request is fast.
	exam, err := s.catalog.GetExamByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if err := s.WarmExamCache(ctx, exam); err != nil {
		return nil, err
	}
	return s.buildPaper(ctx, exam)
}

// AnswerKey retrieves the grading key for an exam from Redis, falling back
// to PostgreSQL on a miss. Internal use only; never returned to callers.
func (s *ExamService) AnswerKey(ctx context.Context, examID uuid.UUID) ([]scoring.QuestionKey, error) {
	cacheKey := config.CacheKey.ExamAnswerKeyKey(examID.String())

	fields, err := s.rdb.HGetAll(ctx, cacheKey).Result()
	if err != nil {
		return nil, fmt.Errorf("get answer key: %w", err)
	}
	if len(fields) > 0 {
		key := make([]scoring.QuestionKey, 0, len(fields))
		for _, raw := range fields {
			var qk scoring.QuestionKey
			if err := json.Unmarshal([]byte(raw), &qk); err != nil {
				return nil, fmt.Errorf("unmarshal answer key: %w", err)
			}
			key = append(key, qk)
		}
		return key, nil
	}

	key, err := s.catalog.AnswerKey(ctx, examID)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, ErrNoQuestions
	}

	exam, err := s.catalog.GetExamByID(ctx, examID)
	if err == nil {
		if warmErr := s.WarmExamCache(ctx, exam); warmErr != nil {
			s.log.Warn().Err(warmErr).Str("exam_id", examID.String()).Msg("Answer key self-heal failed")
		}
	}
	return key, nil
}

// WarmExamCache loads an exam's paper and grading key from PostgreSQL into
// Redis. Used by PrewarmAllCaches and the cache-miss fallbacks.
func (s *ExamService) WarmExamCache(ctx context.Context, exam *model.Exam) error {
	paper, err := s.buildPaper(ctx, exam)
	if err != nil {
		return err
	}

	paperJSON, err := json.Marshal(paper)
	if err != nil {
		return fmt.Errorf("marshal paper: %w", err)
	}

	key, err := s.catalog.AnswerKey(ctx, exam.ID)
	if err != nil {
		return fmt.Errorf("load answer key: %w", err)
	}

	keyFields := make(map[string]interface{}, len(key))
	for _, qk := range key {
		raw, err := json.Marshal(qk)
		if err != nil {
			return fmt.Errorf("marshal answer key: %w", err)
		}
		keyFields[qk.QuestionID.String()] = raw
	}

	// Cache both atomically via pipeline.
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.ExamPaperKey(exam.ID.String()), paperJSON, 0)
	pipe.Del(ctx, config.CacheKey.ExamAnswerKeyKey(exam.ID.String()))
	pipe.HSet(ctx, config.CacheKey.ExamAnswerKeyKey(exam.ID.String()), keyFields)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("exam_id", exam.ID.String()).
		Int("questions", len(paper.Questions)).
		Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads all published exams into Redis on application
// startup, so the first wave of attempts never stampedes PostgreSQL.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.catalog.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}

	if len(exams) == 0 {
		s.log.Info().Msg("No published exams to prewarm")
		return nil
	}

	warmed := 0
	for i := range exams {
		if err := s.WarmExamCache(ctx, &exams[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}

func (s *ExamService) buildPaper(ctx context.Context, exam *model.Exam) (*model.ExamPaper, error) {
	questions, err := s.catalog.PaperQuestions(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	return &model.ExamPaper{
		ExamID:          exam.ID,
		Title:           exam.Title,
		DurationMinutes: exam.DurationMinutes,
		Questions:       questions,
	}, nil
}
