// Package inference turns the model's probability vector into a single
// classification.
package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"go.uber.org/zap"

	"github.com/Brownie44l1/leafscan-api/internal/model"
)

// ErrModelUnavailable is returned when the runtime has no loaded model.
// It is retryable by the caller.
var ErrModelUnavailable = model.ErrUnavailable

// InvalidOutputError means the runtime produced something that is not a
// probability vector.
type InvalidOutputError struct {
	Reason string
}

func (e *InvalidOutputError) Error() string {
	return "invalid model output: " + e.Reason
}

// Runtime is the opaque model call.
type Runtime interface {
	Infer(ctx context.Context, t model.Tensor) ([]float32, error)
}

// Result is the top class of one inference. Label is empty when the model
// ships without a class list and only the raw index is known. Scores holds
// every class probability keyed by label, or by index without labels.
type Result struct {
	ClassIndex int
	Confidence float64
	Label      string
	Scores     map[string]float64
}

type Adapter struct {
	runtime Runtime
	labels  []string
	logger  *zap.Logger
}

func NewAdapter(runtime Runtime, labels []string, logger *zap.Logger) *Adapter {
	return &Adapter{
		runtime: runtime,
		labels:  labels,
		logger:  logger.With(zap.String("component", "inference")),
	}
}

// Classify runs the model once. It never retries.
func (a *Adapter) Classify(ctx context.Context, t model.Tensor) (Result, error) {
	probs, err := a.runtime.Infer(ctx, t)
	if err != nil {
		if errors.Is(err, ErrModelUnavailable) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("inference failed: %w", err)
	}

	idx, conf, err := Argmax(probs)
	if err != nil {
		a.logger.Error("Model returned invalid output", zap.Int("classes", len(probs)), zap.Error(err))
		return Result{}, err
	}

	res := Result{ClassIndex: idx, Confidence: conf, Scores: make(map[string]float64, len(probs))}
	res.Label = a.label(idx)
	for i, p := range probs {
		key := a.label(i)
		if key == "" {
			key = strconv.Itoa(i)
		}
		res.Scores[key] = Widen(p)
	}

	a.logger.Debug("Classified image",
		zap.Int("class_index", res.ClassIndex),
		zap.String("label", res.Label),
		zap.Float64("confidence", res.Confidence))
	return res, nil
}

func (a *Adapter) label(i int) string {
	if i < len(a.labels) {
		return a.labels[i]
	}
	return ""
}

// Argmax returns the index and value of the largest entry. Ties resolve to
// the lowest index. Every entry must lie in [0,1].
func Argmax(probs []float32) (int, float64, error) {
	if len(probs) == 0 {
		return 0, 0, &InvalidOutputError{Reason: "empty probability vector"}
	}

	maxIdx := 0
	maxVal := probs[0]
	for i, v := range probs {
		f := float64(v)
		if math.IsNaN(f) || f < 0 || f > 1 {
			return 0, 0, &InvalidOutputError{Reason: fmt.Sprintf("value %v at index %d outside [0,1]", v, i)}
		}
		if v > maxVal {
			maxVal = v
			maxIdx = i
		}
	}
	return maxIdx, Widen(maxVal), nil
}

// Widen converts a model output to float64 through its shortest decimal
// form, so 0.1 stays 0.1 instead of 0.10000000149011612.
func Widen(v float32) float64 {
	f, err := strconv.ParseFloat(strconv.FormatFloat(float64(v), 'g', -1, 32), 64)
	if err != nil {
		return float64(v)
	}
	return f
}
