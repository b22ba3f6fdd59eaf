package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/V4T54L/detection-feed/internal/domain"
)

const uniqueViolation = "23505"

// EventRepository implements domain.EventStore for PostgreSQL.
type EventRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewEventRepository creates a new PostgreSQL event repository.
func NewEventRepository(db *sql.DB, logger *slog.Logger) *EventRepository {
	return &EventRepository{db: db, logger: logger.With("component", "event_repository")}
}

func (r *EventRepository) FindByFilename(ctx context.Context, name string) (domain.Event, error) {
	const query = `
		SELECT id, filename, category, description, timestamp, source, created_at
		FROM events
		WHERE filename = $1`

	e, err := scanEvent(r.db.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Event{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Event{}, fmt.Errorf("find event by filename: %w", err)
	}
	return e, nil
}

// Create inserts the event. A conflicting filename leaves the existing row
// untouched and returns domain.ErrDuplicateFilename.
func (r *EventRepository) Create(ctx context.Context, in domain.EventInput) (domain.Event, error) {
	if err := in.Validate(); err != nil {
		return domain.Event{}, err
	}

	const query = `
		INSERT INTO events (id, filename, category, description, timestamp, source)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (filename) DO NOTHING
		RETURNING created_at`

	e := domain.Event{
		ID:          uuid.NewString(),
		Filename:    in.Filename,
		Category:    in.Category,
		Description: in.Description,
		Timestamp:   in.Timestamp.UTC(),
		Source:      in.Source,
	}

	err := r.db.QueryRowContext(ctx, query,
		e.ID, e.Filename, e.Category, e.Description, e.Timestamp, string(e.Source),
	).Scan(&e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Event{}, domain.ErrDuplicateFilename
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.Event{}, domain.ErrDuplicateFilename
		}
		return domain.Event{}, fmt.Errorf("insert event: %w", err)
	}
	e.CreatedAt = e.CreatedAt.UTC()

	r.logger.Debug("event stored", "event_id", e.ID, "filename", e.Filename)
	return e, nil
}

func (r *EventRepository) ListByTimestampDesc(ctx context.Context) ([]domain.Event, error) {
	const query = `
		SELECT id, filename, category, description, timestamp, source, created_at
		FROM events
		ORDER BY timestamp DESC, created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (domain.Event, error) {
	var (
		e      domain.Event
		source string
	)
	if err := row.Scan(&e.ID, &e.Filename, &e.Category, &e.Description, &e.Timestamp, &source, &e.CreatedAt); err != nil {
		return domain.Event{}, err
	}
	e.Source = domain.EventSource(source)
	e.Timestamp = e.Timestamp.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}
