package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/database"
	"github.com/stemsi/exstem-live/internal/handler"
	"github.com/stemsi/exstem-live/internal/logger"
	"github.com/stemsi/exstem-live/internal/middleware"
	"github.com/stemsi/exstem-live/internal/repository"
	"github.com/stemsi/exstem-live/internal/router"
	"github.com/stemsi/exstem-live/internal/service"
	"github.com/stemsi/exstem-live/internal/validator"
	"github.com/stemsi/exstem-live/internal/worker"
)

const prewarmHorizon = 24 * time.Hour

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Int("kickout_threshold", cfg.KickoutThreshold).
		Msg("Starting ExStem Live")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

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

	// ─── Connect to RabbitMQ (optional) ────────────────────────────────
	amqpConn, amqpCh, err := database.NewRabbitMQ(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	// A nil *amqp.Channel must not become a non-nil interface value.
	var publisher worker.Publisher
	if amqpCh != nil {
		publisher = amqpCh
		defer amqpConn.Close()
		defer amqpCh.Close()
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	examRepo := repository.NewExamRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	answerRepo := repository.NewAnswerRepository(pool)
	violationRepo := repository.NewViolationRepository(pool)
	studentRepo := repository.NewStudentRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	examCache := service.NewExamCache(examRepo, rdb, cfg.ExamCacheTTL, log)
	events := service.NewEventPublisher(rdb, log)
	notifyQueue := service.NewNotificationQueue(rdb)
	limiter := service.NewViolationLimiter(rdb, cfg.ViolationRateLimit)

	catalogService := service.NewCatalogService(examRepo, examCache, notifyQueue, log)
	attemptService := service.NewAttemptService(examCache, attemptRepo, answerRepo, events, log)
	answerService := service.NewAnswerService(examCache, attemptRepo, answerRepo, events, log)
	integrityService := service.NewIntegrityService(attemptRepo, violationRepo, limiter, events, cfg.KickoutThreshold, log)
	scoringService := service.NewScoringService(attemptRepo, events, log)
	reportService := service.NewReportService(examRepo, attemptRepo, answerRepo, violationRepo, studentRepo)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		StudentPortal: handler.NewStudentPortalHandler(attemptService, answerService, integrityService, scoringService, log),
		Exam:          handler.NewExamHandler(catalogService, reportService, log),
		Monitor:       handler.NewMonitorHandler(rdb, reportService, log),
		WS:            handler.NewWSHandler(attemptService, answerService, integrityService, scoringService, log, cfg.AllowedOrigins),
		Health:        handler.NewHealthHandler(pool, rdb),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	sweeper := worker.NewExpirySweeper(attemptRepo, scoringService, cfg.SweepSchedule, cfg.SweepGrace, log)
	notifier := worker.NewNotificationWorker(rdb, examCache, studentRepo, publisher, cfg.NotifyExchange, log)
	requestLimiter := middleware.NewRateLimiter(240, time.Minute)

	for _, run := range []func(context.Context){sweeper.Start, notifier.Start, requestLimiter.RunCleanup} {
		workers.Add(1)
		go func(run func(context.Context)) {
			defer workers.Done()
			run(workerCtx)
		}(run)
	}

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Exams opening within the horizon are loaded before traffic arrives.
	if err := examCache.Prewarm(ctx, prewarmHorizon); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, requestLimiter, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

	// 2. Stop background workers and wait for the running sweep to finish.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
