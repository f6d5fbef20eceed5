package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Brownie44l1/leafscan-api/internal/prediction"
)

// MemoryStore keeps everything in process. It is used for local development
// and tests. Records are copied on the way in and out so callers never share
// slices with the stored value.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]map[string]prediction.Record
	profiles map[string]Profile
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]map[string]prediction.Record),
		profiles: make(map[string]Profile),
	}
}

func (m *MemoryStore) PutRecord(_ context.Context, rec prediction.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.records[rec.UserID]
	if !ok {
		user = make(map[string]prediction.Record)
		m.records[rec.UserID] = user
	}
	user[rec.ID] = rec.Clone()
	return nil
}

func (m *MemoryStore) GetRecord(_ context.Context, userID, id string) (prediction.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[userID][id]
	if !ok {
		return prediction.Record{}, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) DeleteRecord(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[userID][id]; !ok {
		return ErrNotFound
	}
	delete(m.records[userID], id)
	return nil
}

func (m *MemoryStore) QueryRecords(ctx context.Context, userID string, limit int) ([]prediction.Record, error) {
	out, err := m.ScanRecords(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ScanRecords(_ context.Context, userID string) ([]prediction.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]prediction.Record, 0, len(m.records[userID]))
	for _, rec := range m.records[userID] {
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (m *MemoryStore) IncrementCounters(_ context.Context, userID string, delta int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.profiles[userID]
	p.UserID = userID
	p.TotalPredictions += delta
	if p.TotalPredictions < 0 {
		p.TotalPredictions = 0
	}
	if delta > 0 {
		t := at.UTC()
		p.LastPredictionAt = &t
	}
	m.profiles[userID] = p
	return nil
}

func (m *MemoryStore) GetProfile(_ context.Context, userID string) (Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[userID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) UpdateProfile(_ context.Context, userID, displayName string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.profiles[userID]
	p.UserID = userID
	p.DisplayName = displayName
	t := at.UTC()
	p.UpdatedAt = &t
	m.profiles[userID] = p
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
