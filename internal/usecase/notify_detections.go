package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/V4T54L/detection-feed/internal/domain"
)

const defaultNotifyBatchSize = 100

// NotifyDetectionsUseCase reads new events from the notification stream,
// hands each to a notifier and acknowledges it once delivered.
type NotifyDetectionsUseCase struct {
	stream       domain.EventStream
	notifier     domain.EventNotifier
	logger       *slog.Logger
	batchSize    int
	retryCount   int
	retryBackoff time.Duration
}

// NewNotifyDetectionsUseCase creates a new use case for delivering detections.
func NewNotifyDetectionsUseCase(stream domain.EventStream, notifier domain.EventNotifier, logger *slog.Logger, retryCount int, retryBackoff time.Duration) *NotifyDetectionsUseCase {
	if retryCount < 1 {
		retryCount = 1
	}
	return &NotifyDetectionsUseCase{
		stream:       stream,
		notifier:     notifier,
		logger:       logger,
		batchSize:    defaultNotifyBatchSize,
		retryCount:   retryCount,
		retryBackoff: retryBackoff,
	}
}

// ProcessBatch delivers one batch and returns how many events were
// acknowledged. Events whose delivery fails after all retries are left
// pending in the consumer group.
func (uc *NotifyDetectionsUseCase) ProcessBatch(ctx context.Context) (int, error) {
	batch, err := uc.stream.ReadBatch(ctx, uc.batchSize)
	if err != nil {
		uc.logger.Error("failed to read events from stream", "error", err)
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	delivered := make([]string, 0, len(batch))
	var lastErr error
	for _, msg := range batch {
		if err := uc.notifyWithRetry(ctx, msg.Event); err != nil {
			uc.logger.Error("failed to deliver detection", "event_id", msg.Event.ID, "message_id", msg.MessageID, "error", err)
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		delivered = append(delivered, msg.MessageID)
	}

	if err := uc.stream.Ack(ctx, delivered...); err != nil {
		uc.logger.Error("failed to acknowledge delivered events", "error", err)
		return 0, err
	}

	uc.logger.Debug("processed detection batch", "read", len(batch), "delivered", len(delivered))
	return len(delivered), lastErr
}

func (uc *NotifyDetectionsUseCase) notifyWithRetry(ctx context.Context, event domain.Event) error {
	var lastErr error
	for i := 0; i < uc.retryCount; i++ {
		err := uc.notifier.Notify(ctx, event)
		if err == nil {
			return nil
		}
		lastErr = err
		uc.logger.Warn("failed to deliver detection, retrying", "attempt", i+1, "event_id", event.ID, "error", err)
		select {
		case <-time.After(uc.retryBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
