package domain

import "context"

// EventStore is the persistence capability consumed by the scanner, the
// upload path and the listing endpoint. From the ingestion path's point of
// view it is append-only.
type EventStore interface {
	// FindByFilename returns the event recorded for name, or ErrNotFound.
	FindByFilename(ctx context.Context, name string) (Event, error)

	// Create assigns an ID and persists the event. Implementations that
	// enforce filename uniqueness return ErrDuplicateFilename on conflict.
	Create(ctx context.Context, in EventInput) (Event, error)

	// ListByTimestampDesc returns every event, newest timestamp first.
	ListByTimestampDesc(ctx context.Context) ([]Event, error)
}

// EventPublisher receives every newly created event. Publishing is best
// effort: callers log failures and never roll back the store write.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// WALRepository defines the interface for the Write-Ahead Log used while the
// notification stream is unavailable.
type WALRepository interface {
	// Write appends an event to the local WAL file.
	Write(ctx context.Context, event Event) error

	// Replay reads events from the WAL and sends them to a handler function.
	Replay(ctx context.Context, handler func(event Event) error) error

	// Truncate removes WAL segments that have been successfully replayed.
	Truncate(ctx context.Context) error

	// Pending reports whether any events are still journaled.
	Pending() bool
}

// StreamEvent is an event delivered by the notification stream, tagged with
// the message ID used to acknowledge it.
type StreamEvent struct {
	MessageID string
	Event     Event
}

// EventStream is the consumer side of the notification stream.
type EventStream interface {
	ReadBatch(ctx context.Context, count int) ([]StreamEvent, error)
	Ack(ctx context.Context, messageIDs ...string) error
}

// EventNotifier delivers a detection to a downstream alerting channel.
type EventNotifier interface {
	Notify(ctx context.Context, event Event) error
}
