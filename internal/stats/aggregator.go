// Package stats derives per-user summary statistics from the prediction
// history.
package stats

import (
	"context"

	"go.uber.org/zap"

	"github.com/Brownie44l1/leafscan-api/internal/logging"
	"github.com/Brownie44l1/leafscan-api/internal/prediction"
)

// Scanner reads a user's full history.
type Scanner interface {
	ScanRecords(ctx context.Context, userID string) ([]prediction.Record, error)
}

// Cache stores computed Stats per user and generation. Invalidation moves
// the user to a new generation, so Stats computed from a scan that raced a
// write land under a generation that is never read again. Implementations
// report a miss as (Stats{}, false, nil).
type Cache interface {
	Generation(ctx context.Context, userID string) (int64, error)
	Get(ctx context.Context, userID string, gen int64) (Stats, bool, error)
	Set(ctx context.Context, userID string, gen int64, s Stats) error
}

type Stats struct {
	TotalPredictions    int            `json:"total_predictions"`
	HealthyPredictions  int            `json:"healthy_predictions"`
	DiseasedPredictions int            `json:"diseased_predictions"`
	MostCommonDisease   *string        `json:"most_common_disease"`
	DiseaseCounts       map[string]int `json:"disease_counts"`
}

// Empty is the zero result: no predictions, no disease.
func Empty() Stats {
	return Stats{DiseaseCounts: map[string]int{}}
}

type Aggregator struct {
	scanner Scanner
	cache   Cache
	logger  *zap.Logger
}

// NewAggregator builds an aggregator. cache may be nil.
func NewAggregator(scanner Scanner, cache Cache, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		scanner: scanner,
		cache:   cache,
		logger:  logger.With(zap.String("component", "stats")),
	}
}

// Compute returns the user's statistics. A failed read yields Empty().
func (a *Aggregator) Compute(ctx context.Context, userID string) Stats {
	if a.cache == nil {
		s, _ := a.scan(ctx, userID)
		return s
	}

	// The generation is read before the scan. A write that lands after this
	// point bumps it, and the value set below is never served.
	gen, err := a.cache.Generation(ctx, userID)
	if err != nil {
		a.logger.Warn("Stats cache generation read failed", logging.UserID(userID), zap.Error(err))
		s, _ := a.scan(ctx, userID)
		return s
	}

	s, ok, err := a.cache.Get(ctx, userID, gen)
	if err != nil {
		a.logger.Warn("Stats cache read failed", logging.UserID(userID), zap.Error(err))
	} else if ok {
		return s
	}

	s, ok = a.scan(ctx, userID)
	if !ok {
		return s
	}
	if err := a.cache.Set(ctx, userID, gen, s); err != nil {
		a.logger.Warn("Stats cache write failed", logging.UserID(userID), zap.Error(err))
	}
	return s
}

func (a *Aggregator) scan(ctx context.Context, userID string) (Stats, bool) {
	records, err := a.scanner.ScanRecords(ctx, userID)
	if err != nil {
		a.logger.Error("Failed to read history for stats",
			logging.UserID(userID),
			zap.String("error", logging.SanitizeError(err)))
		return Empty(), false
	}
	return Summarize(records), true
}

// Summarize folds records into Stats. Only diseased records are counted per
// disease. The most common disease is the one with the highest count, ties
// going to the lexicographically smallest name.
func Summarize(records []prediction.Record) Stats {
	s := Empty()
	s.TotalPredictions = len(records)

	for _, r := range records {
		if r.IsHealthy {
			s.HealthyPredictions++
			continue
		}
		name := r.DiseaseName
		if name == "" {
			name = "Unknown"
		}
		s.DiseaseCounts[name]++
	}
	s.DiseasedPredictions = s.TotalPredictions - s.HealthyPredictions

	var (
		best  string
		count int
	)
	for name, n := range s.DiseaseCounts {
		if n > count || (n == count && name < best) {
			best, count = name, n
		}
	}
	if count > 0 {
		s.MostCommonDisease = &best
	}
	return s
}
