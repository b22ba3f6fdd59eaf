// Package cache wraps a domain.EventStore with an in-process LRU of filename
// lookups. The scanner looks up every directory entry on every tick, so once
// a file is known its lookup never reaches the database again until the
// entry expires or is evicted.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/V4T54L/detection-feed/internal/adapter/metrics"
	"github.com/V4T54L/detection-feed/internal/domain"
)

// EventStore caches positive FindByFilename results. Misses are never cached
// since a file can be recorded at any moment. Events are immutable, so a
// cached hit cannot go stale.
type EventStore struct {
	next    domain.EventStore
	lookups *expirable.LRU[string, domain.Event]
	metrics *metrics.Metrics
}

// New wraps next. size is the maximum number of cached filenames and ttl the
// lifetime of each entry.
func New(next domain.EventStore, size int, ttl time.Duration, m *metrics.Metrics) *EventStore {
	return &EventStore{
		next:    next,
		lookups: expirable.NewLRU[string, domain.Event](size, nil, ttl),
		metrics: m,
	}
}

func (s *EventStore) FindByFilename(ctx context.Context, name string) (domain.Event, error) {
	if e, ok := s.lookups.Get(name); ok {
		s.metrics.LookupCache(true)
		return e, nil
	}
	s.metrics.LookupCache(false)

	e, err := s.next.FindByFilename(ctx, name)
	if err != nil {
		return domain.Event{}, err
	}
	s.lookups.Add(name, e)
	return e, nil
}

// Create forwards to the wrapped store and caches the new event.
func (s *EventStore) Create(ctx context.Context, in domain.EventInput) (domain.Event, error) {
	e, err := s.next.Create(ctx, in)
	if err != nil {
		return domain.Event{}, err
	}
	s.lookups.Add(e.Filename, e)
	return e, nil
}

func (s *EventStore) ListByTimestampDesc(ctx context.Context) ([]domain.Event, error) {
	return s.next.ListByTimestampDesc(ctx)
}

// Len reports the number of cached filenames.
func (s *EventStore) Len() int {
	return s.lookups.Len()
}
