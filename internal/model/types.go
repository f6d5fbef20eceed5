package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrUnavailable is returned by a runtime that has no loaded model.
var ErrUnavailable = errors.New("model unavailable")

// Layout is the memory order of a normalized image tensor.
type Layout string

const (
	LayoutNHWC Layout = "nhwc"
	LayoutNCHW Layout = "nchw"
)

// Metadata describes the exported model. It is read from the JSON file that
// ships next to the .onnx file.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
	Layout      Layout   `json:"layout"`
}

// PredictionResponse is the raw classification of one image, returned
// without a diagnosis and without being stored.
type PredictionResponse struct {
	ClassIndex  int                `json:"classIndex"`
	Label       string             `json:"label,omitempty"`
	Confidence  float64            `json:"confidence"`
	Predictions map[string]float64 `json:"predictions"`
}

// Tensor is a dense float32 tensor with its shape. Data length always equals
// the product of Shape.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Elements returns the number of values the shape describes.
func Elements(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}

// LoadMetadata reads and validates model metadata from path.
func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}

	if metadata.InputName == "" {
		metadata.InputName = "input"
	}
	if metadata.OutputName == "" {
		metadata.OutputName = "output"
	}
	if metadata.Layout == "" {
		metadata.Layout = LayoutNHWC
	}

	if err := metadata.Validate(); err != nil {
		return Metadata{}, err
	}
	return metadata, nil
}

// Validate checks that the shapes are usable for single-image classification.
func (m Metadata) Validate() error {
	if m.Layout != LayoutNHWC && m.Layout != LayoutNCHW {
		return fmt.Errorf("invalid metadata: unknown layout %q", m.Layout)
	}
	if len(m.InputShape) != 4 || m.InputShape[0] != 1 {
		return fmt.Errorf("invalid metadata: input shape %v is not [1,...] rank 4", m.InputShape)
	}
	for _, d := range m.InputShape {
		if d <= 0 {
			return fmt.Errorf("invalid metadata: input shape %v has non-positive dimension", m.InputShape)
		}
	}
	if Elements(m.OutputShape) <= 0 {
		return fmt.Errorf("invalid metadata: output shape %v is empty", m.OutputShape)
	}
	if len(m.Classes) > 0 && len(m.Classes) != Elements(m.OutputShape) {
		return fmt.Errorf("invalid metadata: %d classes for output of %d values",
			len(m.Classes), Elements(m.OutputShape))
	}
	if m.ImageSize <= 0 {
		return fmt.Errorf("invalid metadata: image_size must be positive")
	}
	return nil
}

// DefaultMetadata describes a 224x224 NHWC classifier with the given number
// of outputs. It is used when no metadata file ships with the model.
func DefaultMetadata(classes int) Metadata {
	return Metadata{
		InputShape:  []int64{1, 224, 224, 3},
		OutputShape: []int64{1, int64(classes)},
		ImageSize:   224,
		InputName:   "input",
		OutputName:  "output",
		Layout:      LayoutNHWC,
	}
}
