package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/detection-feed/internal/adapter/notifier"
	redisrepo "github.com/V4T54L/detection-feed/internal/adapter/repository/redis"
	"github.com/V4T54L/detection-feed/internal/pkg/config"
	"github.com/V4T54L/detection-feed/internal/pkg/logger"
	"github.com/V4T54L/detection-feed/internal/usecase"
)

// errorBackoff is how long the loop waits after a failed read before trying
// again. Reads block on the stream, so an idle loop does not spin.
const errorBackoff = 2 * time.Second

func main() {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.ValidateConsumer()
	}
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Info("starting detection consumer")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	log.Info("connected to redis")

	// Create a unique consumer name for this instance
	consumerName := cfg.ConsumerName
	if consumerName == "" {
		consumerName, err = os.Hostname()
		if err != nil {
			log.Warn("could not get hostname for consumer name, using default", "error", err)
			consumerName = "consumer-default"
		}
	}

	consumer := redisrepo.NewEventConsumer(redisClient, cfg.EventsStream, cfg.ConsumerGroup, consumerName, log)
	if err := consumer.EnsureGroup(ctx); err != nil {
		log.Error("failed to prepare consumer group", "error", err)
		os.Exit(1)
	}

	notifyUseCase := usecase.NewNotifyDetectionsUseCase(consumer, notifier.NewLogNotifier(log), log, cfg.NotifyRetryCount, cfg.NotifyRetryBackoff)

	log.Info("consumer started, waiting for detections...",
		"stream", cfg.EventsStream,
		"group", cfg.ConsumerGroup,
		"consumer", consumerName,
	)

	for ctx.Err() == nil {
		delivered, err := notifyUseCase.ProcessBatch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			log.Error("error processing batch", "error", err)
			if delivered == 0 {
				select {
				case <-ctx.Done():
				case <-time.After(errorBackoff):
				}
			}
		}
	}

	log.Info("consumer shut down gracefully")
}
