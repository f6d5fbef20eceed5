package history

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Brownie44l1/leafscan-api/internal/prediction"
)

var base = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func record(userID, id string, offset time.Duration) prediction.Record {
	return prediction.Record{
		ID:          id,
		UserID:      userID,
		PlantName:   "Tomato",
		DiseaseName: "Late Blight",
		Confidence:  0.9,
		Timestamp:   base.Add(offset),
	}
}

// flakyStore wraps a MemoryStore and fails selected operations.
type flakyStore struct {
	*MemoryStore
	failPut       bool
	failQuery     bool
	failGet       bool
	failIncrement bool
}

var errStore = errors.New("store down")

func (f *flakyStore) PutRecord(ctx context.Context, rec prediction.Record) error {
	if f.failPut {
		return errStore
	}
	return f.MemoryStore.PutRecord(ctx, rec)
}

func (f *flakyStore) QueryRecords(ctx context.Context, userID string, limit int) ([]prediction.Record, error) {
	if f.failQuery {
		return nil, errStore
	}
	return f.MemoryStore.QueryRecords(ctx, userID, limit)
}

func (f *flakyStore) GetRecord(ctx context.Context, userID, id string) (prediction.Record, error) {
	if f.failGet {
		return prediction.Record{}, errStore
	}
	return f.MemoryStore.GetRecord(ctx, userID, id)
}

func (f *flakyStore) IncrementCounters(ctx context.Context, userID string, delta int64, at time.Time) error {
	if f.failIncrement {
		return errStore
	}
	return f.MemoryStore.IncrementCounters(ctx, userID, delta, at)
}

type countingInvalidator struct {
	users []string
}

func (c *countingInvalidator) Invalidate(_ context.Context, userID string) error {
	c.users = append(c.users, userID)
	return nil
}

func TestAdapter_SaveAndList(t *testing.T) {
	ctx := context.Background()
	a := NewAdapter(NewMemoryStore(), nil, zap.NewNop())

	require.True(t, a.Save(ctx, record("u1", "a", 0)).Saved())
	require.True(t, a.Save(ctx, record("u1", "b", time.Minute)).Saved())
	require.True(t, a.Save(ctx, record("u2", "c", 2*time.Minute)).Saved())

	res := a.List(ctx, "u1", 0)
	require.False(t, res.Degraded())
	require.Len(t, res.Records, 2)
	assert.Equal(t, "b", res.Records[0].ID)
	assert.Equal(t, "a", res.Records[1].ID)

	p, err := a.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.TotalPredictions)
	require.NotNil(t, p.LastPredictionAt)
	assert.Equal(t, base.Add(time.Minute), *p.LastPredictionAt)
}

func TestAdapter_ListLimits(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a := NewAdapter(store, nil, zap.NewNop())

	for i := 0; i < MaxListLimit+10; i++ {
		require.NoError(t, store.PutRecord(ctx, record("u1", fmt.Sprintf("r%04d", i), time.Duration(i)*time.Second)))
	}

	tests := []struct {
		name     string
		limit    int
		expected int
	}{
		{name: "default", limit: 0, expected: DefaultListLimit},
		{name: "negative", limit: -3, expected: DefaultListLimit},
		{name: "explicit", limit: 7, expected: 7},
		{name: "capped", limit: 10000, expected: MaxListLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := a.List(ctx, "u1", tt.limit)
			assert.Len(t, res.Records, tt.expected)
			assert.Equal(t, fmt.Sprintf("r%04d", MaxListLimit+9), res.Records[0].ID)
		})
	}
}

func TestAdapter_ListEmptyUser(t *testing.T) {
	res := NewAdapter(NewMemoryStore(), nil, zap.NewNop()).List(context.Background(), "nobody", 10)
	assert.False(t, res.Degraded())
	assert.NotNil(t, res.Records)
	assert.Empty(t, res.Records)
}

func TestAdapter_ListDegraded(t *testing.T) {
	a := NewAdapter(&flakyStore{MemoryStore: NewMemoryStore(), failQuery: true}, nil, zap.NewNop())

	res := a.List(context.Background(), "u1", 10)
	assert.True(t, res.Degraded())
	assert.ErrorIs(t, res.Err, errStore)
	assert.NotNil(t, res.Records)
	assert.Empty(t, res.Records)
}

func TestAdapter_SaveStatuses(t *testing.T) {
	ctx := context.Background()

	failed := NewAdapter(&flakyStore{MemoryStore: NewMemoryStore(), failPut: true}, nil, zap.NewNop())
	res := failed.Save(ctx, record("u1", "a", 0))
	assert.Equal(t, SaveFailed, res.Status)
	assert.False(t, res.Saved())

	store := &flakyStore{MemoryStore: NewMemoryStore(), failIncrement: true}
	partial := NewAdapter(store, nil, zap.NewNop())
	res = partial.Save(ctx, record("u1", "a", 0))
	assert.Equal(t, SavePartial, res.Status)
	assert.True(t, res.Saved())

	got, err := store.GetRecord(ctx, "u1", "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
}

func TestAdapter_Delete(t *testing.T) {
	ctx := context.Background()
	inv := &countingInvalidator{}
	a := NewAdapter(NewMemoryStore(), inv, zap.NewNop())

	require.True(t, a.Save(ctx, record("u1", "a", 0)).Saved())

	assert.Equal(t, DeleteNotFound, a.Delete(ctx, "u2", "a").Status, "other users cannot see the record")
	assert.Equal(t, DeleteNotFound, a.Delete(ctx, "u1", "missing").Status)

	p, err := a.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.TotalPredictions, "not-found deletes leave counters alone")
	assert.Equal(t, []string{"u1"}, inv.users, "only the save invalidated")

	res := a.Delete(ctx, "u1", "a")
	assert.True(t, res.Deleted())
	assert.Empty(t, a.List(ctx, "u1", 0).Records)

	assert.Equal(t, DeleteNotFound, a.Delete(ctx, "u1", "a").Status)

	p, err = a.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.TotalPredictions)
	assert.Equal(t, []string{"u1", "u1"}, inv.users)
}

func TestAdapter_DeleteDecrementsByOne(t *testing.T) {
	ctx := context.Background()
	a := NewAdapter(NewMemoryStore(), nil, zap.NewNop())

	for i, id := range []string{"a", "b", "c"} {
		require.True(t, a.Save(ctx, record("u1", id, time.Duration(i)*time.Minute)).Saved())
	}
	before, err := a.Profile(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(3), before.TotalPredictions)

	assert.Equal(t, DeleteNotFound, a.Delete(ctx, "u1", "zzz").Status)
	p, err := a.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, before.TotalPredictions, p.TotalPredictions)

	require.True(t, a.Delete(ctx, "u1", "b").Deleted())
	p, err = a.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, before.TotalPredictions-1, p.TotalPredictions)
	assert.Len(t, a.List(ctx, "u1", 0).Records, 2)
}

func TestLazyStore_ReadyDoesNotWaitOutSlowConnect(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	store := NewLazyStore(func(context.Context) (Store, error) {
		close(started)
		<-release
		return NewMemoryStore(), nil
	})
	a := NewAdapter(store, nil, zap.NewNop())

	connected := make(chan error, 1)
	go func() { connected <- store.Ping(context.Background()) }()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	begin := time.Now()
	assert.False(t, a.Ready(ctx))
	assert.Less(t, time.Since(begin), time.Second)

	close(release)
	require.NoError(t, <-connected)
	assert.True(t, a.Ready(context.Background()))
}

func TestAdapter_DeleteLookupFailure(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(), failGet: true}
	a := NewAdapter(store, nil, zap.NewNop())

	assert.Equal(t, DeleteFailed, a.Delete(context.Background(), "u1", "a").Status)
}

func TestAdapter_CountersNeverNegative(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a := NewAdapter(store, nil, zap.NewNop())

	require.NoError(t, store.PutRecord(ctx, record("u1", "a", 0)))
	require.NoError(t, store.PutRecord(ctx, record("u1", "b", 0)))

	assert.True(t, a.Delete(ctx, "u1", "a").Deleted())
	assert.True(t, a.Delete(ctx, "u1", "b").Deleted())

	p, err := a.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.TotalPredictions)
	assert.Nil(t, p.LastPredictionAt)
}

func TestAdapter_Profile(t *testing.T) {
	ctx := context.Background()
	a := NewAdapter(NewMemoryStore(), nil, zap.NewNop())

	p, err := a.Profile(ctx, "new-user")
	require.NoError(t, err)
	assert.Equal(t, "new-user", p.UserID)
	assert.Zero(t, p.TotalPredictions)

	require.NoError(t, a.UpdateProfile(ctx, "new-user", "Ada"))
	p, err = a.Profile(ctx, "new-user")
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.DisplayName)
	assert.NotNil(t, p.UpdatedAt)
}

func TestLazyStore_RetriesAfterFailure(t *testing.T) {
	ctx := context.Background()
	attempts := 0
	store := NewLazyStore(func(context.Context) (Store, error) {
		attempts++
		if attempts == 1 {
			return nil, errStore
		}
		return NewMemoryStore(), nil
	})

	assert.Error(t, store.Ping(ctx))
	assert.NoError(t, store.Ping(ctx))
	assert.NoError(t, store.PutRecord(ctx, record("u1", "a", 0)))
	assert.Equal(t, 2, attempts)
	assert.NoError(t, store.Close())
}

func TestMemoryStore_DoesNotShareSlices(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	rec := record("u1", "a", 0)
	rec.Symptoms = []string{"dark lesions"}
	rec.Treatments = []string{"copper fungicide"}
	require.NoError(t, store.PutRecord(ctx, rec))

	rec.Symptoms[0] = "edited by caller"
	got, err := store.GetRecord(ctx, "u1", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"dark lesions"}, got.Symptoms)

	got.Treatments[0] = "edited after read"
	scanned, err := store.ScanRecords(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, scanned, 1)
	assert.Equal(t, []string{"copper fungicide"}, scanned[0].Treatments)

	scanned[0].Symptoms[0] = "edited after scan"
	listed, err := store.QueryRecords(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"dark lesions"}, listed[0].Symptoms)
}
