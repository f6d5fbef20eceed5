package prediction

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/leafscan-api/internal/diagnosis"
	"github.com/Brownie44l1/leafscan-api/internal/inference"
)

var blight = diagnosis.Diagnosis{
	PlantName:      "Tomato",
	DiseaseName:    "Late Blight",
	Description:    "desc",
	Symptoms:       []string{"s1"},
	Treatments:     []string{"t1"},
	PreventionTips: []string{"p1"},
}

func TestBuild(t *testing.T) {
	b := NewBuilder()

	rec, err := b.Build("u1", blight, inference.Result{ClassIndex: 30, Confidence: 0.87}, "")
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, "Tomato", rec.PlantName)
	assert.Equal(t, "Late Blight", rec.DiseaseName)
	assert.Equal(t, 30, rec.ClassIndex)
	assert.InDelta(t, 0.87, rec.Confidence, 1e-9)
	assert.Equal(t, time.UTC, rec.Timestamp.Location())
	assert.Equal(t, []string{"s1"}, rec.Symptoms)
}

func TestBuild_UniqueIDs(t *testing.T) {
	b := NewBuilder()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		rec, err := b.Build("u1", blight, inference.Result{Confidence: 0.5}, "")
		require.NoError(t, err)
		require.False(t, seen[rec.ID], "duplicate id %s", rec.ID)
		seen[rec.ID] = true
	}
}

func TestBuild_MissingFields(t *testing.T) {
	b := NewBuilder()

	tests := []struct {
		name   string
		userID string
		d      diagnosis.Diagnosis
	}{
		{name: "no user", userID: "", d: blight},
		{name: "no plant", userID: "u1", d: diagnosis.Diagnosis{DiseaseName: "x"}},
		{name: "no disease", userID: "u1", d: diagnosis.Diagnosis{PlantName: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Build(tt.userID, tt.d, inference.Result{Confidence: 0.5}, "")
			assert.ErrorIs(t, err, ErrMissingField)
		})
	}
}

func TestBuild_RejectsConfidenceOutOfRange(t *testing.T) {
	_, err := NewBuilder().Build("u1", blight, inference.Result{Confidence: 1.2}, "")
	assert.Error(t, err)
}

func TestBuild_TimestampsNeverGoBackwards(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(-time.Minute), base.Add(time.Second)}
	i := 0
	b := NewBuilderWithClock(func() time.Time {
		t := times[i]
		i++
		return t
	})

	var stamps []time.Time
	for range times {
		rec, err := b.Build("u1", blight, inference.Result{Confidence: 0.5}, "")
		require.NoError(t, err)
		stamps = append(stamps, rec.Timestamp)
	}

	assert.Equal(t, base, stamps[0])
	assert.Equal(t, base, stamps[1])
	assert.Equal(t, base.Add(time.Second), stamps[2])
}

func TestBuild_DoesNotAliasDiagnosis(t *testing.T) {
	d := blight
	d.Symptoms = []string{"a"}
	rec, err := NewBuilder().Build("u1", d, inference.Result{Confidence: 0.5}, "")
	require.NoError(t, err)

	d.Symptoms[0] = "b"
	assert.Equal(t, "a", rec.Symptoms[0])
}

func TestRecord_JSONFieldNames(t *testing.T) {
	rec, err := NewBuilder().Build("u1", blight, inference.Result{Confidence: 0.5}, "")
	require.NoError(t, err)

	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	for _, k := range []string{"id", "plantName", "diseaseName", "confidence", "description",
		"symptoms", "treatments", "preventionTips", "isHealthy", "timestamp"} {
		assert.Contains(t, m, k)
	}
	assert.NotContains(t, m, "imageUrl")
}

func TestRecord_Clone(t *testing.T) {
	r := Record{ID: "a", Symptoms: []string{"spots"}, Treatments: []string{"prune"}}
	c := r.Clone()
	c.Symptoms[0] = "changed"
	c.Treatments = append(c.Treatments, "spray")

	assert.Equal(t, []string{"spots"}, r.Symptoms)
	assert.Equal(t, []string{"prune"}, r.Treatments)
	assert.Equal(t, []string{}, c.PreventionTips)
}
