package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itilprep/itil-exam-backend/internal/cache"
	"github.com/itilprep/itil-exam-backend/internal/config"
	"github.com/itilprep/itil-exam-backend/internal/database"
	"github.com/itilprep/itil-exam-backend/internal/handler"
	"github.com/itilprep/itil-exam-backend/internal/logger"
	"github.com/itilprep/itil-exam-backend/internal/middleware"
	"github.com/itilprep/itil-exam-backend/internal/repository"
	"github.com/itilprep/itil-exam-backend/internal/router"
	"github.com/itilprep/itil-exam-backend/internal/service"
	"github.com/itilprep/itil-exam-backend/internal/validator"
	"github.com/itilprep/itil-exam-backend/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var errNotConnected = errors.New("not connected")

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Int("exam_questions", cfg.Exam.QuestionCount).
		Int("exam_seconds", cfg.Exam.TimeBudgetSeconds).
		Msg("Starting ITIL exam backend")

	if err := cfg.Exam.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid exam configuration")
	}

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	// The catalog falls back to the bundled question set, so a missing
	// database degrades the service instead of stopping it.
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Warn().Err(err).Msg("PostgreSQL unavailable, serving the bundled question set")
	} else {
		defer pool.Close()
	}

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, catalog cache and resync queue disabled")
	} else {
		defer rdb.Close()
	}

	// ─── Connect to MongoDB ────────────────────────────────────────────
	mdb, err := database.NewMongoDatabase(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure MongoDB")
	}
	defer func() {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		_ = mdb.Client().Disconnect(disconnectCtx)
	}()

	// ─── Open Local Fallback Store ─────────────────────────────────────
	fallbackDB, err := database.OpenFallbackStore(ctx, cfg.FallbackDBPath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open fallback store")
	}
	defer fallbackDB.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	resultRepo := repository.NewResultRepository(mdb)
	statsRepo := repository.NewUserStatsRepository(mdb)
	fallbackRepo := repository.NewFallbackResultRepository(fallbackDB)
	bundled := repository.NewBundledQuestionSource(nil)

	indexCtx, indexCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := resultRepo.EnsureIndexes(indexCtx); err != nil {
		log.Warn().Err(err).Msg("Result indexes not ensured")
	}
	indexCancel()

	// Interfaces stay nil when the backing store is missing.
	var questionStore service.QuestionStore
	if pool != nil {
		questionStore = repository.NewQuestionRepository(pool)
	}

	var (
		catalogCache service.CatalogCache
		resyncQueue  *cache.ResyncQueue
		enqueuer     service.ResyncEnqueuer
		queueLen     handler.QueueLength
	)
	if rdb != nil {
		catalogCache = cache.NewCatalogCache(rdb, cfg.QuestionCacheTTL)
		resyncQueue = cache.NewResyncQueue(rdb)
		enqueuer = resyncQueue
		queueLen = resyncQueue
	}

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	questionService := service.NewQuestionService(questionStore, bundled, catalogCache, log)
	resultService := service.NewResultService(resultRepo, fallbackRepo, statsRepo, enqueuer, cfg.Exam.PassThresholdPercent, log)
	progressService := service.NewProgressService(resultService)
	sessionService := service.NewExamSessionService(questionService, resultService, cfg.Exam, cfg.SessionRetention, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Question:      handler.NewQuestionHandler(questionService),
		Session:       handler.NewSessionHandler(sessionService),
		SessionEvents: handler.NewSessionEventsHandler(sessionService, log),
		Result:        handler.NewResultHandler(resultService, progressService),
		WS:            handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		System:        handler.NewSystemHandler(healthChecks(pool, rdb, mdb.Client().Ping, fallbackDB.PingContext), sessionService, queueLen, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workersDone := make(chan struct{})
	workers := 1

	go func() {
		sessionService.RunSweeper(workerCtx, time.Minute)
		workersDone <- struct{}{}
	}()

	if resyncQueue != nil {
		resyncWorker := worker.NewResyncWorker(resultService, resyncQueue, fallbackRepo, log)
		if _, err := resyncWorker.Recover(ctx); err != nil {
			log.Warn().Err(err).Msg("Fallback results not re-queued")
		}
		workers++
		go func() {
			resyncWorker.Start(workerCtx)
			workersDone <- struct{}{}
		}()
	}

	limiter := middleware.NewRateLimiter(workerCtx, cfg.RateLimit, time.Minute)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, limiter, cfg)

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

	// 2. Stop countdowns and wait for submitted results to be stored.
	persistCtx, persistCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer persistCancel()
	if err := sessionService.Shutdown(persistCtx); err != nil {
		log.Error().Err(err).Msg("Result persistence did not finish")
	}

	// 3. Stop background workers; the resync worker flushes its batch.
	workerCancel()
	for i := 0; i < workers; i++ {
		<-workersDone
	}

	log.Info().Msg("Shutdown complete")
}

// healthChecks builds the /health probes. Stores that never connected
// report as down.
func healthChecks(pool *pgxpool.Pool, rdb *redis.Client, mongoPing func(context.Context, *readpref.ReadPref) error, sqlitePing func(context.Context) error) map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{
		"mongodb": func(ctx context.Context) error { return mongoPing(ctx, readpref.Primary()) },
		"sqlite":  sqlitePing,
	}

	checks["postgres"] = func(context.Context) error { return errNotConnected }
	if pool != nil {
		checks["postgres"] = pool.Ping
	}

	checks["redis"] = func(context.Context) error { return errNotConnected }
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	return checks
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
