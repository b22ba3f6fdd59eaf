package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/V4T54L/detection-feed/internal/domain"
)

// MockEventStore is a mock implementation of domain.EventStore for testing.
// It does not enforce filename uniqueness; use the memory store for that.
type MockEventStore struct {
	mu        sync.Mutex
	Events    []domain.Event
	Created   []domain.EventInput
	FindCalls []string
	FindErr   error
	CreateErr error
	ListErr   error

	// BeforeCreate, when set, runs before every Create while the mock lock
	// is not held, so tests can interleave other writers.
	BeforeCreate func(in domain.EventInput)
}

func (m *MockEventStore) FindByFilename(ctx context.Context, name string) (domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FindCalls = append(m.FindCalls, name)
	if m.FindErr != nil {
		return domain.Event{}, m.FindErr
	}
	for _, e := range m.Events {
		if e.Filename == name {
			return e, nil
		}
	}
	return domain.Event{}, domain.ErrNotFound
}

func (m *MockEventStore) Create(ctx context.Context, in domain.EventInput) (domain.Event, error) {
	if m.BeforeCreate != nil {
		m.BeforeCreate(in)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return domain.Event{}, m.CreateErr
	}
	m.Created = append(m.Created, in)
	event := domain.Event{
		ID:          fmt.Sprintf("evt-%d", len(m.Events)+1),
		Filename:    in.Filename,
		Category:    in.Category,
		Description: in.Description,
		Timestamp:   in.Timestamp,
		Source:      in.Source,
		CreatedAt:   time.Now().UTC(),
	}
	m.Events = append(m.Events, event)
	return event, nil
}

func (m *MockEventStore) ListByTimestampDesc(ctx context.Context) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := append([]domain.Event(nil), m.Events...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// Count returns the number of stored events.
func (m *MockEventStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Events)
}

// MockEventPublisher records published events.
type MockEventPublisher struct {
	mu         sync.Mutex
	Published  []domain.Event
	PublishErr error
}

func (m *MockEventPublisher) Publish(ctx context.Context, event domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.Published = append(m.Published, event)
	return nil
}

// Events returns a copy of the published events.
func (m *MockEventPublisher) Events() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Event(nil), m.Published...)
}

// MockWALRepository is an in-memory domain.WALRepository. Like the file
// journal, Truncate only drops the entries handed over by the last Replay.
type MockWALRepository struct {
	mu        sync.Mutex
	Entries   []domain.Event
	WriteErr  error
	Truncated int
	// OnReplay, if set, runs after Replay has taken its snapshot.
	OnReplay func()

	replayed int
}

func (m *MockWALRepository) Write(ctx context.Context, event domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Entries = append(m.Entries, event)
	return nil
}

func (m *MockWALRepository) Replay(ctx context.Context, handler func(event domain.Event) error) error {
	m.mu.Lock()
	entries := append([]domain.Event(nil), m.Entries...)
	m.replayed = 0
	m.mu.Unlock()
	if m.OnReplay != nil {
		m.OnReplay()
	}
	for _, e := range entries {
		if err := handler(e); err != nil {
			return err
		}
		m.mu.Lock()
		m.replayed++
		m.mu.Unlock()
	}
	return nil
}

func (m *MockWALRepository) Truncate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append([]domain.Event(nil), m.Entries[m.replayed:]...)
	m.replayed = 0
	m.Truncated++
	return nil
}

func (m *MockWALRepository) Pending() bool {
	return m.Len() > 0
}

// Len returns the number of journaled events.
func (m *MockWALRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Entries)
}

// MockEventStream serves a fixed batch and records acknowledgements.
type MockEventStream struct {
	mu      sync.Mutex
	Batch   []domain.StreamEvent
	ReadErr error
	AckErr  error
	Acked   []string
}

func (m *MockEventStream) ReadBatch(ctx context.Context, count int) ([]domain.StreamEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	batch := m.Batch
	m.Batch = nil
	return batch, nil
}

func (m *MockEventStream) Ack(ctx context.Context, messageIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AckErr != nil {
		return m.AckErr
	}
	m.Acked = append(m.Acked, messageIDs...)
	return nil
}

// MockEventNotifier records notified events. FailFor makes Notify fail for
// the listed event IDs.
type MockEventNotifier struct {
	mu       sync.Mutex
	Notified []domain.Event
	Calls    int
	FailFor  map[string]error
}

func (m *MockEventNotifier) Notify(ctx context.Context, event domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if err, ok := m.FailFor[event.ID]; ok {
		return err
	}
	m.Notified = append(m.Notified, event)
	return nil
}
