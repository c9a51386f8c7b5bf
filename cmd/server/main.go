package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/quiz-integrity/internal/config"
	"github.com/stemsi/quiz-integrity/internal/database"
	"github.com/stemsi/quiz-integrity/internal/handler"
	"github.com/stemsi/quiz-integrity/internal/logger"
	"github.com/stemsi/quiz-integrity/internal/middleware"
	"github.com/stemsi/quiz-integrity/internal/repository"
	"github.com/stemsi/quiz-integrity/internal/router"
	"github.com/stemsi/quiz-integrity/internal/service"
	"github.com/stemsi/quiz-integrity/internal/validator"
	"github.com/stemsi/quiz-integrity/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting quiz integrity service")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	quizRepo := repository.NewQuizRepository(pool)
	resultRepo := repository.NewResultRepository(pool)
	attemptRepo := repository.NewCheatAttemptRepository(pool)
	studentRepo := repository.NewStudentRepository(pool)
	monitorRepo := repository.NewMonitorRepository(rdb, cfg.LiveIdleAfter, cfg.LiveSessionTTL)
	answerRepo := repository.NewAnswerBufferRepository(rdb, cfg.LiveSessionTTL)
	queueRepo := repository.NewQueueRepository(rdb)
	deviceRepo := repository.NewDeviceRepository(rdb, cfg.LiveSessionTTL)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	quizService := service.NewQuizService(quizRepo, attemptRepo, log)
	gradingService := service.NewGradingService(quizService, resultRepo, queueRepo, monitorRepo, log)
	integrityService := service.NewIntegrityService(monitorRepo, queueRepo, monitorRepo, log)
	liveService := service.NewLiveSessionService(monitorRepo, monitorRepo, log)
	monitorService := service.NewMonitorService(quizService, resultRepo, monitorRepo, studentRepo, log)
	reviewService := service.NewReviewService(quizService, resultRepo, studentRepo, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Stream:    handler.NewQuizStreamHandler(quizService, gradingService, integrityService, liveService, answerRepo, log, cfg.AllowedOrigins),
		Integrity: handler.NewIntegrityHandler(quizService, integrityService, log),
		Review:    handler.NewReviewHandler(reviewService, log),
		Monitor:   handler.NewMonitorHandler(monitorService, monitorRepo, cfg.MonitorRefresh, log),
		System:    handler.NewSystemHandler(pool, rdb, queueRepo, log),
	}

	beaconLimiter := middleware.NewRateLimiter(cfg.BeaconRatePerMinute, time.Minute)
	defer beaconLimiter.Stop()

	guards := &router.Guards{
		QuizOwner:     middleware.RequireQuizOwner(quizRepo),
		DeviceBinding: middleware.BindDevice(deviceRepo, log),
		BeaconLimiter: beaconLimiter,
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	cheatWorker := worker.NewCheatWorker(attemptRepo, rdb, log)
	resultWorker := worker.NewResultWorker(resultRepo, rdb, log)

	workers.Add(2)
	go func() { defer workers.Done(); cheatWorker.Start(workerCtx) }()
	go func() { defer workers.Done(); resultWorker.Start(workerCtx) }()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, guards, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
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

	// 2. Stop background workers and wait for their final flush.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
