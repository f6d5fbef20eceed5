package history

import (
	"context"
	"fmt"
	"time"

	"github.com/Brownie44l1/leafscan-api/internal/lazy"
	"github.com/Brownie44l1/leafscan-api/internal/prediction"
)

// LazyStore connects to the backing store on first use. A failed connect
// surfaces as an error from that call and is retried on the next one.
type LazyStore struct {
	handle *lazy.Handle[Store]
}

var _ Store = (*LazyStore)(nil)

func NewLazyStore(connect func(ctx context.Context) (Store, error)) *LazyStore {
	return &LazyStore{handle: lazy.New(connect)}
}

func (l *LazyStore) get(ctx context.Context) (Store, error) {
	s, err := l.handle.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("store unavailable: %w", err)
	}
	return s, nil
}

func (l *LazyStore) PutRecord(ctx context.Context, rec prediction.Record) error {
	s, err := l.get(ctx)
	if err != nil {
		return err
	}
	return s.PutRecord(ctx, rec)
}

func (l *LazyStore) GetRecord(ctx context.Context, userID, id string) (prediction.Record, error) {
	s, err := l.get(ctx)
	if err != nil {
		return prediction.Record{}, err
	}
	return s.GetRecord(ctx, userID, id)
}

func (l *LazyStore) DeleteRecord(ctx context.Context, userID, id string) error {
	s, err := l.get(ctx)
	if err != nil {
		return err
	}
	return s.DeleteRecord(ctx, userID, id)
}

func (l *LazyStore) QueryRecords(ctx context.Context, userID string, limit int) ([]prediction.Record, error) {
	s, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return s.QueryRecords(ctx, userID, limit)
}

func (l *LazyStore) ScanRecords(ctx context.Context, userID string) ([]prediction.Record, error) {
	s, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return s.ScanRecords(ctx, userID)
}

func (l *LazyStore) IncrementCounters(ctx context.Context, userID string, delta int64, at time.Time) error {
	s, err := l.get(ctx)
	if err != nil {
		return err
	}
	return s.IncrementCounters(ctx, userID, delta, at)
}

func (l *LazyStore) GetProfile(ctx context.Context, userID string) (Profile, error) {
	s, err := l.get(ctx)
	if err != nil {
		return Profile{}, err
	}
	return s.GetProfile(ctx, userID)
}

func (l *LazyStore) UpdateProfile(ctx context.Context, userID, displayName string, at time.Time) error {
	s, err := l.get(ctx)
	if err != nil {
		return err
	}
	return s.UpdateProfile(ctx, userID, displayName, at)
}

func (l *LazyStore) Ping(ctx context.Context) error {
	s, err := l.get(ctx)
	if err != nil {
		return err
	}
	return s.Ping(ctx)
}

// Close closes the underlying store if it was ever opened.
func (l *LazyStore) Close() error {
	if s, ok := l.handle.Peek(); ok {
		return s.Close()
	}
	return nil
}
