package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/V4T54L/detection-feed/internal/adapter/metrics"
	"github.com/V4T54L/detection-feed/internal/adapter/repository/memory"
	"github.com/V4T54L/detection-feed/internal/adapter/repository/storetest"
	"github.com/V4T54L/detection-feed/internal/domain"
	"github.com/V4T54L/detection-feed/internal/domain/mocks"
)

func TestCachedEventStoreSuite(t *testing.T) {
	suite.Run(t, &storetest.EventStoreSuite{
		NewStore: func() domain.EventStore {
			return New(memory.NewEventStore(), 100, time.Hour, nil)
		},
	})
}

func TestFindByFilename_CachesHits(t *testing.T) {
	ctx := context.Background()
	m := metrics.New(prometheus.NewRegistry())
	backing := &mocks.MockEventStore{
		Events: []domain.Event{{ID: "evt-1", Filename: "a.jpg", Timestamp: time.Now()}},
	}
	store := New(backing, 10, time.Hour, m)

	for i := 0; i < 3; i++ {
		e, err := store.FindByFilename(ctx, "a.jpg")
		require.NoError(t, err)
		assert.Equal(t, "evt-1", e.ID)
	}

	assert.Len(t, backing.FindCalls, 1, "backing store should be queried once")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.LookupCacheHits))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.LookupCacheMisses))
}

func TestFindByFilename_DoesNotCacheMisses(t *testing.T) {
	ctx := context.Background()
	backing := &mocks.MockEventStore{}
	store := New(backing, 10, time.Hour, nil)

	_, err := store.FindByFilename(ctx, "new.jpg")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = backing.Create(ctx, domain.EventInput{Filename: "new.jpg", Timestamp: time.Now()})
	require.NoError(t, err)

	e, err := store.FindByFilename(ctx, "new.jpg")
	require.NoError(t, err)
	assert.Equal(t, "new.jpg", e.Filename)
	assert.Len(t, backing.FindCalls, 2)
}

func TestCreate_PopulatesCache(t *testing.T) {
	ctx := context.Background()
	backing := &mocks.MockEventStore{}
	store := New(backing, 10, time.Hour, nil)

	_, err := store.Create(ctx, domain.EventInput{Filename: "b.jpg", Timestamp: time.Now()})
	require.NoError(t, err)

	_, err = store.FindByFilename(ctx, "b.jpg")
	require.NoError(t, err)
	assert.Empty(t, backing.FindCalls, "lookup after create should be served from cache")
	assert.Equal(t, 1, store.Len())
}

func TestFindByFilename_PropagatesErrors(t *testing.T) {
	boom := errors.New("connection refused")
	store := New(&mocks.MockEventStore{FindErr: boom}, 10, time.Hour, nil)

	_, err := store.FindByFilename(context.Background(), "a.jpg")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.Len())
}

func TestFindByFilename_Expires(t *testing.T) {
	ctx := context.Background()
	backing := &mocks.MockEventStore{
		Events: []domain.Event{{ID: "evt-1", Filename: "a.jpg", Timestamp: time.Now()}},
	}
	store := New(backing, 10, 20*time.Millisecond, nil)

	_, err := store.FindByFilename(ctx, "a.jpg")
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)
	_, err = store.FindByFilename(ctx, "a.jpg")
	require.NoError(t, err)

	assert.Len(t, backing.FindCalls, 2)
}
