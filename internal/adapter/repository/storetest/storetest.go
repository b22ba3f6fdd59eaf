// Package storetest holds the behavioural contract every domain.EventStore
// implementation must satisfy.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/V4T54L/detection-feed/internal/domain"
)

// EventStoreSuite runs against the store returned by NewStore, which must be
// empty on every call.
type EventStoreSuite struct {
	suite.Suite
	NewStore func() domain.EventStore

	store domain.EventStore
	ctx   context.Context
}

func (s *EventStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.NewStore()
}

func input(name string, ts time.Time) domain.EventInput {
	return domain.EventInput{
		Filename:    name,
		Category:    domain.DefaultCategory,
		Description: domain.DefaultDescription,
		Timestamp:   ts,
		Source:      domain.SourceScan,
	}
}

// TestCreateAndFind verifies created events can be looked up by filename.
func (s *EventStoreSuite) TestCreateAndFind() {
	ts := time.Date(2024, 5, 1, 13, 45, 2, 0, time.UTC)

	s.Run("creates and finds by filename", func() {
		created, err := s.store.Create(s.ctx, input("ch1_Fall_2024-05-01_13-45-02.jpg", ts))
		s.Require().NoError(err)
		s.NotEmpty(created.ID)
		s.False(created.CreatedAt.IsZero())
		s.True(created.Timestamp.Equal(ts))

		found, err := s.store.FindByFilename(s.ctx, "ch1_Fall_2024-05-01_13-45-02.jpg")
		s.Require().NoError(err)
		s.Equal(created.ID, found.ID)
		s.Equal(domain.DefaultCategory, found.Category)
		s.Equal(domain.DefaultDescription, found.Description)
		s.Equal(domain.SourceScan, found.Source)
		s.True(found.Timestamp.Equal(ts))
	})

	s.Run("returns ErrNotFound for unknown filename", func() {
		_, err := s.store.FindByFilename(s.ctx, "missing.jpg")
		s.Require().ErrorIs(err, domain.ErrNotFound)
	})

	s.Run("lookup is exact", func() {
		_, err := s.store.FindByFilename(s.ctx, "CH1_FALL_2024-05-01_13-45-02.JPG")
		s.Require().ErrorIs(err, domain.ErrNotFound)
	})
}

// TestFilenameUniqueness verifies a filename can only be recorded once.
func (s *EventStoreSuite) TestFilenameUniqueness() {
	s.Run("rejects duplicate filename", func() {
		_, err := s.store.Create(s.ctx, input("dup.jpg", time.Now()))
		s.Require().NoError(err)

		_, err = s.store.Create(s.ctx, input("dup.jpg", time.Now()))
		s.Require().ErrorIs(err, domain.ErrDuplicateFilename)
	})

	s.Run("concurrent creates yield exactly one event", func() {
		const writers = 20
		var wg sync.WaitGroup
		var ok, dup atomic.Int32

		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.store.Create(s.ctx, input("race.jpg", time.Now()))
				switch {
				case err == nil:
					ok.Add(1)
				case errors.Is(err, domain.ErrDuplicateFilename):
					dup.Add(1)
				}
			}()
		}
		wg.Wait()

		s.Equal(int32(1), ok.Load())
		s.Equal(int32(writers-1), dup.Load())

		events, err := s.store.ListByTimestampDesc(s.ctx)
		s.Require().NoError(err)
		count := 0
		for _, e := range events {
			if e.Filename == "race.jpg" {
				count++
			}
		}
		s.Equal(1, count)
	})
}

// TestValidation verifies invalid inputs are rejected without being stored.
func (s *EventStoreSuite) TestValidation() {
	_, err := s.store.Create(s.ctx, input("", time.Now()))
	s.Require().ErrorIs(err, domain.ErrEmptyFilename)

	_, err = s.store.Create(s.ctx, input("zero.jpg", time.Time{}))
	s.Require().ErrorIs(err, domain.ErrInvalidTimestamp)

	events, err := s.store.ListByTimestampDesc(s.ctx)
	s.Require().NoError(err)
	s.Empty(events)
}

// TestListOrdering verifies events come back newest timestamp first.
func (s *EventStoreSuite) TestListOrdering() {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	offsets := []int{5, 1, 9, 3, 7, 3}
	for i, off := range offsets {
		_, err := s.store.Create(s.ctx, input(fmt.Sprintf("f%d.jpg", i), base.Add(time.Duration(off)*time.Minute)))
		s.Require().NoError(err)
	}

	events, err := s.store.ListByTimestampDesc(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(events, len(offsets))
	for i := 1; i < len(events); i++ {
		s.False(events[i-1].Timestamp.Before(events[i].Timestamp),
			"event %d (%s) is older than event %d (%s)", i-1, events[i-1].Timestamp, i, events[i].Timestamp)
	}
}

// TestEmptyList verifies an empty store lists nothing without error.
func (s *EventStoreSuite) TestEmptyList() {
	events, err := s.store.ListByTimestampDesc(s.ctx)
	s.Require().NoError(err)
	s.Empty(events)
}
