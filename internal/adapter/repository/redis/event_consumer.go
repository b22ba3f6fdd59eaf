package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/detection-feed/internal/domain"
)

// StreamStats summarizes the notification stream for operators.
type StreamStats struct {
	Length  int64  `json:"length"`
	LastID  string `json:"lastId"`
	Group   string `json:"group"`
	Pending int64  `json:"pending"`
	Lag     int64  `json:"lag"`
}

// EventConsumer reads the notification stream through a consumer group.
type EventConsumer struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	block    time.Duration
	logger   *slog.Logger
}

func NewEventConsumer(client *redis.Client, stream, group, consumer string, logger *slog.Logger) *EventConsumer {
	return &EventConsumer{
		client:   client,
		stream:   stream,
		group:    group,
		consumer: consumer,
		block:    2 * time.Second,
		logger:   logger.With("component", "redis_consumer"),
	}
}

// EnsureGroup creates the stream and consumer group if they do not exist.
// The group starts at the beginning of the stream.
func (c *EventConsumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !isBusyGroupError(err) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// ReadBatch returns up to count new messages, blocking briefly when the
// stream is idle. Malformed messages are acked and skipped.
func (c *EventConsumer) ReadBatch(ctx context.Context, count int) ([]domain.StreamEvent, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    int64(count),
		Block:    c.block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to XREADGROUP from redis: %w", err)
	}
	if len(streams) == 0 {
		return nil, nil
	}

	var bad []string
	events := make([]domain.StreamEvent, 0, len(streams[0].Messages))
	for _, msg := range streams[0].Messages {
		payload, ok := msg.Values[payloadField].(string)
		if !ok {
			c.logger.Warn("invalid message format in stream, skipping", "message_id", msg.ID)
			bad = append(bad, msg.ID)
			continue
		}
		var event domain.Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			c.logger.Warn("failed to unmarshal event from stream, skipping", "message_id", msg.ID, "error", err)
			bad = append(bad, msg.ID)
			continue
		}
		events = append(events, domain.StreamEvent{MessageID: msg.ID, Event: event})
	}
	if err := c.Ack(ctx, bad...); err != nil {
		c.logger.Error("failed to ack malformed messages", "error", err)
	}
	return events, nil
}

// Ack acknowledges processed messages.
func (c *EventConsumer) Ack(ctx context.Context, messageIDs ...string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	if err := c.client.XAck(ctx, c.stream, c.group, messageIDs...).Err(); err != nil {
		return fmt.Errorf("failed to XACK messages in redis: %w", err)
	}
	return nil
}

// Stats reports the stream length and this group's backlog.
func (c *EventConsumer) Stats(ctx context.Context) (StreamStats, error) {
	info, err := c.client.XInfoStream(ctx, c.stream).Result()
	if isNoSuchKeyError(err) {
		// Nothing has been published yet.
		return StreamStats{Group: c.group}, nil
	}
	if err != nil {
		return StreamStats{}, fmt.Errorf("failed to get stream info for %s: %w", c.stream, err)
	}
	stats := StreamStats{Length: info.Length, LastID: info.LastGeneratedID, Group: c.group}

	groups, err := c.client.XInfoGroups(ctx, c.stream).Result()
	if err != nil {
		return StreamStats{}, fmt.Errorf("failed to get group info for %s: %w", c.stream, err)
	}
	for _, g := range groups {
		if g.Name == c.group {
			stats.Pending = g.Pending
			stats.Lag = g.Lag
			break
		}
	}
	return stats, nil
}

func isBusyGroupError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func isNoSuchKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such key")
}
