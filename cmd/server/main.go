package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/examloop/examloop-backend/internal/config"
	"github.com/examloop/examloop-backend/internal/database"
	"github.com/examloop/examloop-backend/internal/handler"
	"github.com/examloop/examloop-backend/internal/logger"
	"github.com/examloop/examloop-backend/internal/repository"
	"github.com/examloop/examloop-backend/internal/router"
	"github.com/examloop/examloop-backend/internal/service"
	"github.com/examloop/examloop-backend/internal/validator"
	"github.com/examloop/examloop-backend/internal/worker"
	"github.com/rs/zerolog"
)

func main() {
	cfg := config.Load()

	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("attempt_store", cfg.AttemptStore).
		Msg("Starting ExamLoop Backend")

	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	userRepo := repository.NewUserRepository(pool)
	catalogRepo := repository.NewCatalogRepository(pool)

	// The memory driver keeps attempts in-process; catalog and users stay
	// in PostgreSQL either way.
	var attemptStore repository.AttemptStore
	if cfg.AttemptStore == "memory" {
		log.Warn().Msg("Using in-memory attempt store; attempts will not survive a restart")
		attemptStore = repository.NewMemoryAttemptStore()
	} else {
		attemptStore = repository.NewAttemptRepository(pool)
	}

	authService := service.NewAuthService(cfg, rdb)
	userService := service.NewUserService(userRepo)
	examService := service.NewExamService(catalogRepo, rdb, log)
	attemptService := service.NewAttemptService(examService, attemptStore, log)

	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService, userService),
		Attempt: handler.NewAttemptHandler(examService, attemptService),
		WS:      handler.NewWSHandler(attemptStore, log, cfg.AllowedOrigins),
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())

	expiryWorker := worker.NewExpiryWorker(attemptStore, cfg.SweepInterval, log)
	go expiryWorker.Start(workerCtx)

	// Load all published exams into Redis BEFORE accepting traffic, so the
	// first wave of attempts does not stampede PostgreSQL.
	if err := examService.PrewarmAllCaches(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	r := router.SetupRouter(authService, handlers, cfg)

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop the sweeper. Anything mid-sweep finishes next startup.
	workerCancel()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
