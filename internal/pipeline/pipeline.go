// Package pipeline runs one uploaded image through normalization,
// classification, diagnosis lookup and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Brownie44l1/leafscan-api/internal/diagnosis"
	"github.com/Brownie44l1/leafscan-api/internal/history"
	"github.com/Brownie44l1/leafscan-api/internal/inference"
	"github.com/Brownie44l1/leafscan-api/internal/logging"
	"github.com/Brownie44l1/leafscan-api/internal/model"
	"github.com/Brownie44l1/leafscan-api/internal/prediction"
)

var (
	// ErrBusy is returned when the caller gave up waiting for a worker.
	ErrBusy = errors.New("no inference worker available")
	// ErrSaveFailed is returned when the record could not be persisted.
	ErrSaveFailed = errors.New("failed to save prediction")
)

type Normalizer interface {
	Normalize(data []byte) (model.Tensor, error)
}

type Classifier interface {
	Classify(ctx context.Context, t model.Tensor) (inference.Result, error)
}

type Resolver interface {
	ResolveIndex(i int) (diagnosis.Diagnosis, error)
	ResolveLabel(label string) (diagnosis.Diagnosis, error)
}

type Recorder interface {
	Save(ctx context.Context, rec prediction.Record) history.SaveResult
}

// Archiver stores the original upload and returns its URL.
type Archiver interface {
	Archive(ctx context.Context, userID string, data []byte, contentType string) (string, error)
}

type Config struct {
	// Workers bounds concurrent predictions. Values below 1 mean 1.
	Workers int
}

type Pipeline struct {
	normalizer Normalizer
	classifier Classifier
	resolver   Resolver
	builder    *prediction.Builder
	recorder   Recorder
	archiver   Archiver
	sem        *semaphore.Weighted
	logger     *zap.Logger
}

// New wires a pipeline. archiver may be nil.
func New(cfg Config, n Normalizer, c Classifier, r Resolver, b *prediction.Builder, rec Recorder, archiver Archiver, logger *zap.Logger) *Pipeline {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		normalizer: n,
		classifier: c,
		resolver:   r,
		builder:    b,
		recorder:   rec,
		archiver:   archiver,
		sem:        semaphore.NewWeighted(int64(workers)),
		logger:     logger.With(zap.String("component", "pipeline")),
	}
}

// Predict diagnoses one image for userID and stores the result. ctx only
// bounds the wait for a worker; once admitted the prediction runs to
// completion even if the caller goes away.
func (p *Pipeline) Predict(ctx context.Context, userID string, data []byte, contentType string) (prediction.Record, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return prediction.Record{}, fmt.Errorf("%w: %v", ErrBusy, err)
	}
	defer p.sem.Release(1)

	return p.run(context.WithoutCancel(ctx), userID, data, contentType)
}

// Classify runs only normalization and the model. Nothing is resolved or
// stored. Admission works as in Predict.
func (p *Pipeline) Classify(ctx context.Context, data []byte) (model.PredictionResponse, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return model.PredictionResponse{}, fmt.Errorf("%w: %v", ErrBusy, err)
	}
	defer p.sem.Release(1)

	tensor, err := p.normalizer.Normalize(data)
	if err != nil {
		return model.PredictionResponse{}, err
	}
	res, err := p.classifier.Classify(context.WithoutCancel(ctx), tensor)
	if err != nil {
		return model.PredictionResponse{}, err
	}

	predictions := res.Scores
	if predictions == nil {
		predictions = map[string]float64{}
	}
	return model.PredictionResponse{
		ClassIndex:  res.ClassIndex,
		Label:       res.Label,
		Confidence:  res.Confidence,
		Predictions: predictions,
	}, nil
}

func (p *Pipeline) run(ctx context.Context, userID string, data []byte, contentType string) (prediction.Record, error) {
	tensor, err := p.normalizer.Normalize(data)
	if err != nil {
		p.logger.Info("Rejected image", logging.UserID(userID), zap.Error(err))
		return prediction.Record{}, err
	}

	res, err := p.classifier.Classify(ctx, tensor)
	if err != nil {
		return prediction.Record{}, err
	}

	d, err := p.resolve(res)
	if err != nil {
		p.logger.Error("Model output has no diagnosis",
			zap.Int("class_index", res.ClassIndex),
			zap.String("label", res.Label),
			zap.Error(err))
		return prediction.Record{}, err
	}

	var imageURL string
	if p.archiver != nil {
		imageURL, err = p.archiver.Archive(ctx, userID, data, contentType)
		if err != nil {
			p.logger.Warn("Failed to archive image", logging.UserID(userID), zap.Error(err))
			imageURL = ""
		}
	}

	rec, err := p.builder.Build(userID, d, res, imageURL)
	if err != nil {
		return prediction.Record{}, fmt.Errorf("build record: %w", err)
	}

	if !p.recorder.Save(ctx, rec).Saved() {
		return prediction.Record{}, ErrSaveFailed
	}

	p.logger.Info("Prediction completed",
		logging.UserID(userID),
		zap.String("prediction_id", rec.ID),
		zap.String("plant", rec.PlantName),
		zap.String("disease", rec.DiseaseName),
		zap.Float64("confidence", rec.Confidence))
	return rec, nil
}

func (p *Pipeline) resolve(res inference.Result) (diagnosis.Diagnosis, error) {
	if res.Label != "" {
		return p.resolver.ResolveLabel(res.Label)
	}
	return p.resolver.ResolveIndex(res.ClassIndex)
}
