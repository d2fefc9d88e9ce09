package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/invigilo/proctor-backend/internal/config"
	"github.com/invigilo/proctor-backend/internal/database"
	"github.com/invigilo/proctor-backend/internal/handler"
	"github.com/invigilo/proctor-backend/internal/logger"
	"github.com/invigilo/proctor-backend/internal/repository"
	"github.com/invigilo/proctor-backend/internal/router"
	"github.com/invigilo/proctor-backend/internal/service"
	"github.com/invigilo/proctor-backend/internal/validator"
	ws "github.com/invigilo/proctor-backend/internal/websocket"
	"github.com/invigilo/proctor-backend/internal/worker"
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
		Msg("Starting Proctor Backend")

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
	sessionRepo := repository.NewExamSessionRepository(pool)
	ticketRepo := repository.NewHallTicketRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	studentRepo := repository.NewStudentRepository(pool)
	adminRepo := repository.NewAdminRepository(pool)
	incidentRepo := repository.NewIncidentRepository(pool)
	monitorRepo := repository.NewMonitorRepository(pool)
	incidentQueue := repository.NewIncidentQueue(rdb)
	answerQueue := repository.NewAnswerQueue(rdb)

	// ─── Initialize Hub and Services ───────────────────────────────────
	hub := ws.NewHub(log)

	authService := service.NewAuthService(ticketRepo, studentRepo, adminRepo, rdb, cfg, log)
	incidentService := service.NewIncidentService(incidentRepo, studentRepo, incidentQueue, hub, log)
	sessionService := service.NewExamSessionService(sessionRepo, ticketRepo, questionRepo, incidentService, answerQueue, hub, log)
	monitorService := service.NewMonitorService(monitorRepo, incidentService, hub, log)

	// ─── Initialize Handlers ───────────────────────────────────────────
	handlers := router.Handlers{
		Auth:      handler.NewAuthHandler(authService, log),
		Session:   handler.NewSessionHandler(sessionService, log),
		Incident:  handler.NewIncidentHandler(incidentService, log),
		Dashboard: handler.NewDashboardHandler(monitorService),
		WS:        handler.NewWSHandler(sessionService, hub, cfg.AllowedOrigins, log),
	}

	// ─── Start Background Workers ──────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	incidentWorker := worker.NewIncidentWorker(incidentRepo, rdb, log)
	answerWorker := worker.NewAnswerWorker(pool, rdb, log)

	go incidentWorker.Start(workerCtx)
	go answerWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.Setup(cfg, authService, handlers)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
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

	// 2. Stop per-session countdowns; sessions stay resumable in PostgreSQL.
	sessionService.Shutdown()

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
