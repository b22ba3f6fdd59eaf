package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/detection-feed/internal/adapter/api"
	"github.com/V4T54L/detection-feed/internal/adapter/api/handler"
	"github.com/V4T54L/detection-feed/internal/adapter/filename"
	"github.com/V4T54L/detection-feed/internal/adapter/filestore"
	"github.com/V4T54L/detection-feed/internal/adapter/metrics"
	"github.com/V4T54L/detection-feed/internal/adapter/repository/cache"
	"github.com/V4T54L/detection-feed/internal/adapter/repository/memory"
	"github.com/V4T54L/detection-feed/internal/adapter/repository/postgres"
	redisrepo "github.com/V4T54L/detection-feed/internal/adapter/repository/redis"
	"github.com/V4T54L/detection-feed/internal/adapter/repository/wal"
	"github.com/V4T54L/detection-feed/internal/adapter/sanitize"
	"github.com/V4T54L/detection-feed/internal/adapter/scheduler"
	"github.com/V4T54L/detection-feed/internal/domain"
	"github.com/V4T54L/detection-feed/internal/pkg/config"
	"github.com/V4T54L/detection-feed/internal/pkg/logger"
	"github.com/V4T54L/detection-feed/internal/usecase"

	_ "github.com/lib/pq" // postgres driver
)

// statsConsumerName identifies the server when it inspects the consumer
// group; it never reads from the stream.
const statsConsumerName = "detection-feed-server"

func main() {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	m := metrics.New(prometheus.DefaultRegisterer)

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Watched Directory ---
	files, err := filestore.New(cfg.WatchDir)
	if err != nil {
		logger.Error("failed to prepare watched directory", "dir", cfg.WatchDir, "error", err)
		os.Exit(1)
	}

	// --- Event Store ---
	var store domain.EventStore
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		db, err := openPostgres(ctx, cfg.PostgresURL, logger)
		if err != nil {
			logger.Error("failed to initialize postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store = postgres.NewEventRepository(db, logger)
	case config.StoreDriverMemory:
		logger.Warn("using in-memory event store, events are lost on restart")
		store = memory.NewEventStore()
	}
	if cfg.LookupCacheSize > 0 {
		store = cache.New(store, cfg.LookupCacheSize, cfg.LookupCacheTTL, m)
	}

	listUseCase := usecase.NewListEventsUseCase(store, cfg.StaticPrefix)

	// --- Notification Sinks ---
	sseBroker := handler.NewSSEBroker(ctx, listUseCase.Image, logger)
	publishers := []domain.EventPublisher{sseBroker}

	var streamStats handler.StreamInspector
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()

		walLog, err := wal.Open(cfg.WALPath, cfg.WALSegmentSize, cfg.WALMaxDiskSize, logger)
		if err != nil {
			logger.Error("failed to initialize WAL", "error", err)
			os.Exit(1)
		}
		defer walLog.Close()

		publisher := redisrepo.NewEventPublisher(redisClient, cfg.EventsStream, cfg.EventsStreamMaxLen, walLog, logger, m)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("could not connect to redis, will proceed in WAL-only mode", "error", err)
			publisher.SetAvailable(false)
		} else if walLog.Pending() {
			if err := publisher.ReplayWAL(ctx); err != nil {
				logger.Error("failed to replay WAL at startup", "error", err)
			}
		}

		// Start Redis health check and WAL replay loop
		go publisher.StartHealthCheck(ctx, cfg.RedisHealthInterval)

		publishers = append(publishers, publisher)
		streamStats = redisrepo.NewEventConsumer(redisClient, cfg.EventsStream, cfg.ConsumerGroup, statsConsumerName, logger)
	} else {
		logger.Info("REDIS_ADDR not set, notification stream disabled")
	}

	// --- Use Cases ---
	loc, _ := cfg.Location() // validated above
	parser := filename.NewParser(loc, logger, m)
	sanitizer := sanitize.NewSanitizer(cfg.MaxCategoryLen, cfg.MaxDescriptionLen, logger)

	scanUseCase := usecase.NewScanDirectoryUseCase(files.Dir(), store, parser, logger, m, publishers...)
	uploadUseCase := usecase.NewUploadEventUseCase(store, files, sanitizer, logger, m, publishers...)

	// --- Scan Scheduler ---
	sched := scheduler.New(scanUseCase, scheduler.Options{
		Dir:      files.Dir(),
		Interval: cfg.ScanInterval,
		Timeout:  cfg.ScanTimeout,
		Mode:     cfg.WatchMode,
		Debounce: cfg.WatchDebounce,
	}, logger, m)
	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scan scheduler", "error", err)
		os.Exit(1)
	}

	// --- Admin and Metrics Server ---
	adminHandler := handler.NewAdminHandler(sched, streamStats, logger)
	adminServer := &http.Server{
		Addr:              cfg.AdminAddr,
		Handler:           api.NewAdminRouter(adminHandler, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting admin & metrics server", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin & metrics server failed", "error", err)
		}
	}()

	// --- Public Server ---
	eventHandler := handler.NewEventHandler(uploadUseCase, listUseCase, logger, m, cfg.MaxUploadBytes)
	publicServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(cfg, logger, m, eventHandler, sseBroker),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       time.Minute,
	}

	go func() {
		logger.Info("starting public server", "addr", publicServer.Addr, "watch_dir", files.Dir())
		if err := publicServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("public server failed", "error", err)
			stop() // Trigger shutdown on server error
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	logger.Info("shutting down...")

	sched.Stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := publicServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("public server shutdown failed", "error", err)
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server shutdown failed", "error", err)
	}

	logger.Info("servers shut down gracefully")
}

// openPostgres connects, verifies the connection and applies migrations.
func openPostgres(ctx context.Context, url string, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("connected to postgres")

	if err := postgres.Migrate(db, logger); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
