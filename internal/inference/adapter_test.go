package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Brownie44l1/leafscan-api/internal/model"
)

type fakeRuntime struct {
	probs []float32
	err   error
	calls int
}

func (f *fakeRuntime) Infer(ctx context.Context, t model.Tensor) ([]float32, error) {
	f.calls++
	return f.probs, f.err
}

func TestArgmax(t *testing.T) {
	tests := []struct {
		name     string
		probs    []float32
		wantIdx  int
		wantConf float64
		wantErr  bool
	}{
		{name: "uniform picks lowest index", probs: []float32{0.1, 0.1, 0.1}, wantIdx: 0, wantConf: 0.1},
		{name: "clear winner", probs: []float32{0.1, 0.7, 0.2}, wantIdx: 1, wantConf: 0.7},
		{name: "tie after first", probs: []float32{0.1, 0.45, 0.45}, wantIdx: 1, wantConf: 0.45},
		{name: "single class", probs: []float32{1}, wantIdx: 0, wantConf: 1},
		{name: "empty", probs: nil, wantErr: true},
		{name: "negative", probs: []float32{-0.1, 0.5}, wantErr: true},
		{name: "above one", probs: []float32{0.2, 1.5}, wantErr: true},
		{name: "nan", probs: []float32{float32(math.NaN()), 0.5}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, conf, err := Argmax(tt.probs)
			if tt.wantErr {
				var invalid *InvalidOutputError
				require.ErrorAs(t, err, &invalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantIdx, idx)
			assert.Equal(t, tt.wantConf, conf)
			assert.GreaterOrEqual(t, conf, 0.0)
			assert.LessOrEqual(t, conf, 1.0)
		})
	}
}

func TestClassify_UniformVector(t *testing.T) {
	rt := &fakeRuntime{probs: []float32{0.1, 0.1, 0.1}}
	a := NewAdapter(rt, nil, zap.NewNop())

	res, err := a.Classify(context.Background(), model.Tensor{})
	require.NoError(t, err)

	assert.Equal(t, 0, res.ClassIndex)
	assert.Equal(t, 0.1, res.Confidence)
	assert.Empty(t, res.Label)
	assert.Equal(t, map[string]float64{"0": 0.1, "1": 0.1, "2": 0.1}, res.Scores)
	assert.Equal(t, 1, rt.calls)

	raw, err := json.Marshal(map[string]float64{"confidence": res.Confidence})
	require.NoError(t, err)
	assert.JSONEq(t, `{"confidence":0.1}`, string(raw))
}

func TestWiden(t *testing.T) {
	assert.Equal(t, 0.1, Widen(0.1))
	assert.Equal(t, 0.45, Widen(0.45))
	assert.Equal(t, 1.0, Widen(1))
	assert.Equal(t, 0.0, Widen(0))
}

func TestClassify_WithLabels(t *testing.T) {
	rt := &fakeRuntime{probs: []float32{0.05, 0.9, 0.05}}
	a := NewAdapter(rt, []string{"a", "b", "c"}, zap.NewNop())

	res, err := a.Classify(context.Background(), model.Tensor{})
	require.NoError(t, err)
	assert.Equal(t, "b", res.Label)
	assert.Equal(t, map[string]float64{"a": 0.05, "b": 0.9, "c": 0.05}, res.Scores)
}

func TestClassify_ModelUnavailable(t *testing.T) {
	rt := &fakeRuntime{err: fmt.Errorf("%w: no session", model.ErrUnavailable)}
	a := NewAdapter(rt, nil, zap.NewNop())

	_, err := a.Classify(context.Background(), model.Tensor{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelUnavailable))
	assert.Equal(t, 1, rt.calls, "inference must not be retried")
}

func TestClassify_RuntimeFailure(t *testing.T) {
	rt := &fakeRuntime{err: errors.New("boom")}
	a := NewAdapter(rt, nil, zap.NewNop())

	_, err := a.Classify(context.Background(), model.Tensor{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrModelUnavailable))
	assert.Equal(t, 1, rt.calls)
}
