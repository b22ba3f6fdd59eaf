package notifier

import (
	"context"
	"log/slog"

	"github.com/V4T54L/detection-feed/internal/domain"
)

// LogNotifier reports detections as structured log records.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a new LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

// Notify logs the detection at Warn level so it stands out from routine output.
func (n *LogNotifier) Notify(ctx context.Context, event domain.Event) error {
	n.logger.LogAttrs(ctx, slog.LevelWarn, "DETECTION",
		slog.String("event_id", event.ID),
		slog.String("filename", event.Filename),
		slog.String("category", event.Category),
		slog.String("description", event.Description),
		slog.Time("timestamp", event.Timestamp),
		slog.String("source", string(event.Source)),
	)
	return nil
}
