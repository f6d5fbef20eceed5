package model

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeMetadata(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model_metadata.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMetadata(t *testing.T) {
	path := writeMetadata(t, `{
		"input_shape": [1, 224, 224, 3],
		"output_shape": [1, 3],
		"classes": ["a", "b", "c"],
		"image_size": 224
	}`)

	m, err := LoadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, "input", m.InputName)
	assert.Equal(t, "output", m.OutputName)
	assert.Equal(t, LayoutNHWC, m.Layout)
	assert.Equal(t, []string{"a", "b", "c"}, m.Classes)
}

func TestLoadMetadata_Errors(t *testing.T) {
	_, err := LoadMetadata(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = LoadMetadata(writeMetadata(t, `{not json`))
	assert.Error(t, err)

	_, err = LoadMetadata(writeMetadata(t, `{"input_shape":[1,224,224,3],"output_shape":[1,3],"classes":["a"],"image_size":224}`))
	assert.ErrorContains(t, err, "classes")
}

func TestMetadata_Validate(t *testing.T) {
	valid := DefaultMetadata(38)
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(m *Metadata)
	}{
		{"unknown layout", func(m *Metadata) { m.Layout = "hwc" }},
		{"rank 3 input", func(m *Metadata) { m.InputShape = []int64{224, 224, 3} }},
		{"batch of two", func(m *Metadata) { m.InputShape = []int64{2, 224, 224, 3} }},
		{"zero dimension", func(m *Metadata) { m.InputShape = []int64{1, 0, 224, 3} }},
		{"empty output", func(m *Metadata) { m.OutputShape = nil }},
		{"no image size", func(m *Metadata) { m.ImageSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := DefaultMetadata(38)
			tt.mutate(&m)
			assert.Error(t, m.Validate())
		})
	}
}

func TestElements(t *testing.T) {
	assert.Equal(t, 0, Elements(nil))
	assert.Equal(t, 38, Elements([]int64{1, 38}))
	assert.Equal(t, 150528, Elements([]int64{1, 224, 224, 3}))
}

func TestServer_UnavailableWithoutModel(t *testing.T) {
	s := NewServer(Config{
		ModelPath:         filepath.Join(t.TempDir(), "missing.onnx"),
		SharedLibraryPath: filepath.Join(t.TempDir(), "missing.so"),
	}, DefaultMetadata(38), zap.NewNop())
	defer s.Close()

	assert.False(t, s.Ready())
	_, err := s.Infer(context.Background(), Tensor{Shape: []int64{1, 224, 224, 3}})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, s.Ready())
}
