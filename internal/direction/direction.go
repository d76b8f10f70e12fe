// Package direction classifies the approach direction of the other vehicle
// from its bounding-box track.
package direction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/banshee-data/accident.report/internal/detection"
)

// Label is a normalised approach direction.
type Label string

const (
	FromLeft  Label = "from_left"
	Center    Label = "center"
	FromRight Label = "from_right"
	Unknown   Label = "unknown"
)

// modelLabels is the output order of the sequence classifier head.
var modelLabels = []string{"left", "center", "right"}

// MinSamples is the shortest track the sequence model is run on.
const MinSamples = 2

// FeatureDim is the width of one per-frame feature vector.
const FeatureDim = 6

// ErrModelMissing is returned when a track is long enough to classify but no
// model was configured.
var ErrModelMissing = errors.New("direction model not loaded")

// Normalize maps raw model and legacy labels onto Label.
func Normalize(raw string) Label {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "left", "from_left":
		return FromLeft
	case "right", "from_right":
		return FromRight
	case "center", "centre", "straight":
		return Center
	default:
		return Unknown
	}
}

// SequenceModel scores a (timesteps x FeatureDim) sequence and returns one
// logit per class in modelLabels order.
type SequenceModel interface {
	Predict(ctx context.Context, seq [][]float32) ([]float32, error)
}

// Features converts a track into [cx, cy, w, h, x1, y1] rows.
func Features(track []detection.Sample) [][]float32 {
	out := make([][]float32, len(track))
	for i, s := range track {
		cx, cy := s.Box.Center()
		out[i] = []float32{
			float32(cx), float32(cy),
			float32(s.Box.Width()), float32(s.Box.Height()),
			float32(s.Box[0]), float32(s.Box[1]),
		}
	}
	return out
}

// Result is the classifier output record.
type Result struct {
	Direction Label              `json:"direction"`
	RawLabel  string             `json:"raw_label,omitempty"`
	Track     []detection.Sample `json:"track"`
	Features  [][]float32        `json:"features"`
	Invoked   bool               `json:"model_invoked"`
}

// Classifier runs the sequence model over the vehicle-B track.
type Classifier struct {
	model SequenceModel
}

func NewClassifier(model SequenceModel) *Classifier {
	return &Classifier{model: model}
}

// Classify returns Unknown without touching the model when fewer than
// MinSamples frames contain the other vehicle.
func (c *Classifier) Classify(ctx context.Context, set detection.Set) (Result, error) {
	track := set.Track(detection.ClassVehicleB)
	res := Result{Direction: Unknown, Track: track, Features: Features(track)}
	if len(track) < MinSamples {
		return res, nil
	}
	if c.model == nil {
		return res, ErrModelMissing
	}

	logits, err := c.model.Predict(ctx, res.Features)
	if err != nil {
		return res, fmt.Errorf("direction model: %w", err)
	}
	if len(logits) != len(modelLabels) {
		return res, fmt.Errorf("direction model returned %d logits, want %d", len(logits), len(modelLabels))
	}
	best := 0
	for i, v := range logits {
		if v > logits[best] {
			best = i
		}
	}
	res.Invoked = true
	res.RawLabel = modelLabels[best]
	res.Direction = Normalize(res.RawLabel)
	return res, nil
}
