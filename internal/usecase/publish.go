package usecase

import (
	"context"
	"log/slog"

	"github.com/V4T54L/detection-feed/internal/domain"
)

// publishAll hands event to every publisher. Failures are logged and never
// undo the store write.
func publishAll(ctx context.Context, publishers []domain.EventPublisher, event domain.Event, logger *slog.Logger) {
	for _, p := range publishers {
		if err := p.Publish(ctx, event); err != nil {
			logger.Warn("failed to publish event", "event_id", event.ID, "filename", event.Filename, "error", err)
		}
	}
}
