// Package prediction defines the immutable prediction record and its builder.
package prediction

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Brownie44l1/leafscan-api/internal/diagnosis"
	"github.com/Brownie44l1/leafscan-api/internal/inference"
)

// ErrMissingField is returned when the mapping data is missing a required field.
var ErrMissingField = errors.New("missing required field")

// Record is one stored diagnosis. It is never modified after Build.
type Record struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	PlantName      string    `json:"plantName"`
	DiseaseName    string    `json:"diseaseName"`
	Confidence     float64   `json:"confidence"`
	Description    string    `json:"description"`
	Symptoms       []string  `json:"symptoms"`
	Treatments     []string  `json:"treatments"`
	PreventionTips []string  `json:"preventionTips"`
	IsHealthy      bool      `json:"isHealthy"`
	ClassIndex     int       `json:"classIndex"`
	Timestamp      time.Time `json:"timestamp"`
	ImageURL       string    `json:"imageUrl,omitempty"`
}

// Clone returns a copy that shares no slices with r.
func (r Record) Clone() Record {
	r.Symptoms = clone(r.Symptoms)
	r.Treatments = clone(r.Treatments)
	r.PreventionTips = clone(r.PreventionTips)
	return r
}

// Builder assembles records. Timestamps from one builder never go backwards.
type Builder struct {
	now   func() time.Time
	newID func() string

	mu   sync.Mutex
	last time.Time
}

func NewBuilder() *Builder {
	return &Builder{now: time.Now, newID: uuid.NewString}
}

// NewBuilderWithClock is used by tests to control time.
func NewBuilderWithClock(now func() time.Time) *Builder {
	return &Builder{now: now, newID: uuid.NewString}
}

func (b *Builder) Build(userID string, d diagnosis.Diagnosis, res inference.Result, imageURL string) (Record, error) {
	switch {
	case userID == "":
		return Record{}, fmt.Errorf("%w: userId", ErrMissingField)
	case d.PlantName == "":
		return Record{}, fmt.Errorf("%w: plantName", ErrMissingField)
	case d.DiseaseName == "":
		return Record{}, fmt.Errorf("%w: diseaseName", ErrMissingField)
	}
	if res.Confidence < 0 || res.Confidence > 1 {
		return Record{}, fmt.Errorf("confidence %v outside [0,1]", res.Confidence)
	}

	return Record{
		ID:             b.newID(),
		UserID:         userID,
		PlantName:      d.PlantName,
		DiseaseName:    d.DiseaseName,
		Confidence:     res.Confidence,
		Description:    d.Description,
		Symptoms:       clone(d.Symptoms),
		Treatments:     clone(d.Treatments),
		PreventionTips: clone(d.PreventionTips),
		IsHealthy:      d.IsHealthy,
		ClassIndex:     res.ClassIndex,
		Timestamp:      b.stamp(),
		ImageURL:       imageURL,
	}, nil
}

func (b *Builder) stamp() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.now().UTC()
	if t.Before(b.last) {
		t = b.last
	}
	b.last = t
	return t
}

func clone(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
