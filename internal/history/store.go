// Package history persists prediction records per user and keeps the user's
// aggregate counters alongside them.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/Brownie44l1/leafscan-api/internal/prediction"
)

// ErrNotFound is returned by a Store when a record or profile does not exist.
var ErrNotFound = errors.New("not found")

// Counters are the per-user aggregates kept in step with the history.
type Counters struct {
	TotalPredictions int64      `json:"totalPredictions"`
	LastPredictionAt *time.Time `json:"lastPredictionAt"`
}

// Profile is the user document: display fields plus counters.
type Profile struct {
	UserID      string     `json:"userId"`
	DisplayName string     `json:"displayName"`
	UpdatedAt   *time.Time `json:"updatedAt"`
	Counters
}

// Store is the document-store boundary. Records are partitioned by user and
// addressed by (userID, record ID).
type Store interface {
	PutRecord(ctx context.Context, rec prediction.Record) error
	GetRecord(ctx context.Context, userID, id string) (prediction.Record, error)
	DeleteRecord(ctx context.Context, userID, id string) error
	// QueryRecords returns at most limit records, newest first.
	QueryRecords(ctx context.Context, userID string, limit int) ([]prediction.Record, error)
	// ScanRecords returns every record of the user in the store's default order.
	ScanRecords(ctx context.Context, userID string) ([]prediction.Record, error)
	// IncrementCounters adds delta to the user's total, clamping at zero.
	// lastPredictionAt is set only when delta is positive.
	IncrementCounters(ctx context.Context, userID string, delta int64, at time.Time) error
	GetProfile(ctx context.Context, userID string) (Profile, error)
	UpdateProfile(ctx context.Context, userID, displayName string, at time.Time) error
	Ping(ctx context.Context) error
	Close() error
}
