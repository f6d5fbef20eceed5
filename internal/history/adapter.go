package history

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Brownie44l1/leafscan-api/internal/logging"
	"github.com/Brownie44l1/leafscan-api/internal/prediction"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Invalidator drops derived data for a user after the history changes.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

type SaveStatus int

const (
	SaveFailed SaveStatus = iota
	// SavePartial means the record was written but the counters were not.
	SavePartial
	SaveOK
)

type SaveResult struct {
	Status SaveStatus
}

// Saved reports whether the record exists in the store.
func (r SaveResult) Saved() bool {
	return r.Status == SaveOK || r.Status == SavePartial
}

// ListResult is a page of history. When the store failed, Records is empty
// and Err holds the cause.
type ListResult struct {
	Records []prediction.Record
	Err     error
}

func (r ListResult) Degraded() bool {
	return r.Err != nil
}

type DeleteStatus int

const (
	DeleteFailed DeleteStatus = iota
	DeleteNotFound
	DeleteRemoved
)

type DeleteResult struct {
	Status DeleteStatus
}

func (r DeleteResult) Deleted() bool {
	return r.Status == DeleteRemoved
}

// Adapter is the history API used by the pipeline and handlers. It never
// returns store errors to its callers; they are logged and turned into
// result values.
type Adapter struct {
	store       Store
	invalidator Invalidator
	now         func() time.Time
	logger      *zap.Logger
}

func NewAdapter(store Store, invalidator Invalidator, logger *zap.Logger) *Adapter {
	return &Adapter{
		store:       store,
		invalidator: invalidator,
		now:         time.Now,
		logger:      logger.With(zap.String("component", "history")),
	}
}

func (a *Adapter) Save(ctx context.Context, rec prediction.Record) SaveResult {
	if err := a.store.PutRecord(ctx, rec); err != nil {
		a.logger.Error("Failed to save prediction",
			logging.UserID(rec.UserID),
			zap.String("prediction_id", rec.ID),
			zap.String("error", logging.SanitizeError(err)))
		return SaveResult{Status: SaveFailed}
	}
	a.invalidate(ctx, rec.UserID)

	if err := a.store.IncrementCounters(ctx, rec.UserID, 1, rec.Timestamp); err != nil {
		a.logger.Warn("Prediction saved but counters not updated",
			logging.UserID(rec.UserID),
			zap.String("prediction_id", rec.ID),
			zap.String("error", logging.SanitizeError(err)))
		return SaveResult{Status: SavePartial}
	}

	a.logger.Info("Prediction saved",
		logging.UserID(rec.UserID),
		zap.String("prediction_id", rec.ID))
	return SaveResult{Status: SaveOK}
}

// List returns up to limit records, newest first. limit <= 0 means
// DefaultListLimit; larger values are capped at MaxListLimit.
func (a *Adapter) List(ctx context.Context, userID string, limit int) ListResult {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	records, err := a.store.QueryRecords(ctx, userID, limit)
	if err != nil {
		a.logger.Error("Failed to get prediction history",
			logging.UserID(userID),
			zap.String("error", logging.SanitizeError(err)))
		return ListResult{Records: []prediction.Record{}, Err: err}
	}
	if records == nil {
		records = []prediction.Record{}
	}

	a.logger.Debug("Retrieved prediction history",
		logging.UserID(userID),
		zap.Int("count", len(records)))
	return ListResult{Records: records}
}

func (a *Adapter) Delete(ctx context.Context, userID, predictionID string) DeleteResult {
	if _, err := a.store.GetRecord(ctx, userID, predictionID); err != nil {
		if errors.Is(err, ErrNotFound) {
			a.logger.Warn("Prediction not found",
				logging.UserID(userID),
				zap.String("prediction_id", predictionID))
			return DeleteResult{Status: DeleteNotFound}
		}
		a.logger.Error("Failed to look up prediction",
			logging.UserID(userID),
			zap.String("prediction_id", predictionID),
			zap.String("error", logging.SanitizeError(err)))
		return DeleteResult{Status: DeleteFailed}
	}

	if err := a.store.DeleteRecord(ctx, userID, predictionID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return DeleteResult{Status: DeleteNotFound}
		}
		a.logger.Error("Failed to delete prediction",
			logging.UserID(userID),
			zap.String("prediction_id", predictionID),
			zap.String("error", logging.SanitizeError(err)))
		return DeleteResult{Status: DeleteFailed}
	}
	a.invalidate(ctx, userID)

	if err := a.store.IncrementCounters(ctx, userID, -1, a.now()); err != nil {
		a.logger.Warn("Prediction deleted but counters not updated",
			logging.UserID(userID),
			zap.String("prediction_id", predictionID),
			zap.String("error", logging.SanitizeError(err)))
	}

	a.logger.Info("Prediction deleted",
		logging.UserID(userID),
		zap.String("prediction_id", predictionID))
	return DeleteResult{Status: DeleteRemoved}
}

// Profile returns the user's profile. A user with no document yet gets an
// empty profile.
func (a *Adapter) Profile(ctx context.Context, userID string) (Profile, error) {
	p, err := a.store.GetProfile(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Profile{UserID: userID}, nil
	}
	if err != nil {
		a.logger.Error("Failed to get user profile",
			logging.UserID(userID),
			zap.String("error", logging.SanitizeError(err)))
		return Profile{}, err
	}
	return p, nil
}

func (a *Adapter) UpdateProfile(ctx context.Context, userID, displayName string) error {
	if err := a.store.UpdateProfile(ctx, userID, displayName, a.now().UTC()); err != nil {
		a.logger.Error("Failed to update user profile",
			logging.UserID(userID),
			zap.String("error", logging.SanitizeError(err)))
		return err
	}
	a.logger.Info("User profile updated", logging.UserID(userID))
	return nil
}

// Ready pings the store.
func (a *Adapter) Ready(ctx context.Context) bool {
	return a.store.Ping(ctx) == nil
}

func (a *Adapter) invalidate(ctx context.Context, userID string) {
	if a.invalidator == nil {
		return
	}
	if err := a.invalidator.Invalidate(ctx, userID); err != nil {
		a.logger.Warn("Failed to invalidate stats cache",
			logging.UserID(userID),
			zap.Error(err))
	}
}
