package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/detection-feed/internal/domain"
)

// EventStore is an in-process domain.EventStore. Filenames are unique, as in
// the Postgres implementation. Contents are lost on restart.
type EventStore struct {
	mu         sync.RWMutex
	byFilename map[string]domain.Event
	events     []domain.Event
	now        func() time.Time
}

func NewEventStore() *EventStore {
	return &EventStore{
		byFilename: make(map[string]domain.Event),
		now:        time.Now,
	}
}

func (s *EventStore) FindByFilename(_ context.Context, name string) (domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byFilename[name]
	if !ok {
		return domain.Event{}, domain.ErrNotFound
	}
	return e, nil
}

func (s *EventStore) Create(ctx context.Context, in domain.EventInput) (domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return domain.Event{}, err
	}
	if err := in.Validate(); err != nil {
		return domain.Event{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byFilename[in.Filename]; exists {
		return domain.Event{}, domain.ErrDuplicateFilename
	}

	e := domain.Event{
		ID:          uuid.NewString(),
		Filename:    in.Filename,
		Category:    in.Category,
		Description: in.Description,
		Timestamp:   in.Timestamp.UTC(),
		Source:      in.Source,
		CreatedAt:   s.now().UTC(),
	}
	s.byFilename[e.Filename] = e
	s.events = append(s.events, e)
	return e, nil
}

func (s *EventStore) ListByTimestampDesc(_ context.Context) ([]domain.Event, error) {
	s.mu.RLock()
	out := make([]domain.Event, len(s.events))
	copy(out, s.events)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
