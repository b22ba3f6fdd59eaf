package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/detection-feed/internal/adapter/metrics"
	"github.com/V4T54L/detection-feed/internal/domain"
)

const (
	payloadField   = "payload"
	maxDrainPasses = 5
)

// EventPublisher appends new events to a Redis Stream. While Redis is
// unreachable events are journaled to the WAL and replayed once it recovers.
type EventPublisher struct {
	client      *redis.Client
	stream      string
	maxLen      int64
	wal         domain.WALRepository
	logger      *slog.Logger
	metrics     *metrics.Metrics
	isAvailable atomic.Bool
}

// NewEventPublisher creates a publisher for stream. maxLen caps the stream
// approximately; zero leaves it uncapped. The WAL is optional.
func NewEventPublisher(client *redis.Client, stream string, maxLen int64, wal domain.WALRepository, logger *slog.Logger, m *metrics.Metrics) *EventPublisher {
	p := &EventPublisher{
		client:  client,
		stream:  stream,
		maxLen:  maxLen,
		wal:     wal,
		logger:  logger.With("component", "redis_publisher"),
		metrics: m,
	}
	p.isAvailable.Store(true)
	return p
}

// SetAvailable overrides the availability flag, e.g. after a failed startup ping.
func (p *EventPublisher) SetAvailable(ok bool) {
	p.isAvailable.Store(ok)
	p.metrics.SetWALActive(!ok && p.wal != nil)
}

// Publish adds the event to the stream, falling back to the WAL.
func (p *EventPublisher) Publish(ctx context.Context, event domain.Event) error {
	if !p.isAvailable.Load() {
		return p.writeWAL(ctx, event, nil)
	}

	err := p.xadd(ctx, event)
	if err == nil {
		return nil
	}
	if !isNetworkError(err) {
		p.metrics.PublishFailed("redis")
		return err
	}
	if p.isAvailable.CompareAndSwap(true, false) {
		p.logger.Error("redis connection lost during publish", "error", err)
		p.metrics.SetWALActive(p.wal != nil)
	}
	return p.writeWAL(ctx, event, err)
}

func (p *EventPublisher) writeWAL(ctx context.Context, event domain.Event, cause error) error {
	if p.wal == nil {
		p.metrics.PublishFailed("redis")
		if cause != nil {
			return fmt.Errorf("redis unavailable and WAL not configured: %w", cause)
		}
		return errors.New("redis unavailable and WAL not configured")
	}
	p.logger.Warn("redis unavailable, journaling event to WAL", "event_id", event.ID, "filename", event.Filename)
	if err := p.wal.Write(ctx, event); err != nil {
		p.metrics.PublishFailed("wal")
		return fmt.Errorf("failed to journal event: %w", err)
	}
	return nil
}

func (p *EventPublisher) xadd(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{payloadField: payload},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to XADD to redis stream: %w", err)
	}
	return nil
}

// StartHealthCheck pings Redis every interval and replays the WAL when the
// connection comes back. It blocks until ctx is done.
func (p *EventPublisher) StartHealthCheck(ctx context.Context, interval time.Duration) {
	if p.wal == nil {
		p.logger.Info("WAL is not configured, skipping health check")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("stopping redis health check")
			return
		case <-ticker.C:
			p.checkHealth(ctx)
		}
	}
}

func (p *EventPublisher) checkHealth(ctx context.Context) {
	if err := p.client.Ping(ctx).Err(); err != nil {
		if p.isAvailable.CompareAndSwap(true, false) {
			p.logger.Error("redis connection lost", "error", err)
			p.metrics.SetWALActive(true)
		}
		return
	}
	if p.isAvailable.Load() {
		// Publishes that read the flag just before it flipped may still
		// have journaled their event.
		if p.wal != nil && p.wal.Pending() {
			p.drainWAL(ctx)
		}
		return
	}

	// Replay before flipping the flag so journaled events keep their order
	// ahead of new publishes.
	p.logger.Info("redis connection recovered")
	if err := p.ReplayWAL(ctx); err != nil {
		p.logger.Error("failed to replay WAL after redis recovery", "error", err)
		return
	}
	p.isAvailable.Store(true)
	p.metrics.SetWALActive(false)

	// Events journaled while the first replay ran landed in a newer segment.
	p.drainWAL(ctx)
}

// drainWAL replays until the WAL is empty. New publishes go straight to the
// stream once the flag is set, so this settles within a few passes.
func (p *EventPublisher) drainWAL(ctx context.Context) {
	for i := 0; i < maxDrainPasses && p.wal.Pending(); i++ {
		if err := p.ReplayWAL(ctx); err != nil {
			p.logger.Error("failed to replay events journaled during recovery", "error", err)
			return
		}
	}
}

// ReplayWAL publishes every journaled event and truncates the WAL on success.
func (p *EventPublisher) ReplayWAL(ctx context.Context) error {
	if p.wal == nil {
		return nil
	}
	if err := p.wal.Replay(ctx, func(event domain.Event) error {
		return p.xadd(ctx, event)
	}); err != nil {
		return fmt.Errorf("WAL replay failed: %w", err)
	}
	if err := p.wal.Truncate(ctx); err != nil {
		return fmt.Errorf("failed to truncate WAL after replay: %w", err)
	}
	return nil
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed) || errors.Is(err, context.DeadlineExceeded)
}
