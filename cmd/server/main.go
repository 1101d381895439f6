package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prepwise/prepwise-backend/internal/config"
	"github.com/prepwise/prepwise-backend/internal/database"
	"github.com/prepwise/prepwise-backend/internal/handler"
	"github.com/prepwise/prepwise-backend/internal/logger"
	"github.com/prepwise/prepwise-backend/internal/repository"
	"github.com/prepwise/prepwise-backend/internal/router"
	"github.com/prepwise/prepwise-backend/internal/service"
	"github.com/prepwise/prepwise-backend/internal/validator"
	"github.com/prepwise/prepwise-backend/internal/worker"
	"github.com/rs/zerolog"
)

func main() {
	cfg := config.Load()

	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting PrepWise Backend")

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

	// Repositories.
	userRepo := repository.NewUserRepository(pool)
	paperRepo := repository.NewPaperRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	answerRepo := repository.NewAnswerRepository(pool)
	progressRepo := repository.NewMarkingProgressRepository(pool)

	// Services.
	authService := service.NewAuthService(cfg, rdb)
	userService := service.NewUserService(userRepo, authService)
	paperService := service.NewPaperService(paperRepo)
	attemptService := service.NewAttemptService(attemptRepo, answerRepo, paperRepo, progressRepo, rdb, log)
	markingService := service.NewMarkingService()

	// Handlers.
	handlers := &router.Handlers{
		Auth:      handler.NewAuthHandler(authService, userService, log),
		Paper:     handler.NewPaperHandler(paperService),
		Attempt:   handler.NewAttemptHandler(attemptService, log),
		MarkingWS: handler.NewMarkingWSHandler(rdb, attemptService, log, cfg.AllowedOrigins),
	}

	// Background workers consume the Redis queues the handlers fill.
	workerCtx, workerCancel := context.WithCancel(context.Background())

	trackingWorker := worker.NewTrackingWorker(pool, rdb, log)
	markingWorker := worker.NewMarkingWorker(pool, rdb, markingService, cfg, log)

	go trackingWorker.Start(workerCtx)
	go markingWorker.Start(workerCtx)

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

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
