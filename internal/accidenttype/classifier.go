// Package accidenttype classifies the accident type from the other vehicle's
// box sequence and its approach direction using a text sequence classifier.
package accidenttype

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/banshee-data/accident.report/internal/direction"
	"github.com/banshee-data/accident.report/internal/monitoring"
)

// denyBias is added to the logit of every suppressed class.
const denyBias = -1e9

// ErrModelMissing is returned when the classifier has no model or vocab.
var ErrModelMissing = errors.New("accident type model not loaded")

// TextModel scores one encoded text and returns a logit per class.
type TextModel interface {
	Logits(ctx context.Context, enc Encoding) ([]float32, error)
}

// Result is the classifier output record.
type Result struct {
	Code       string    `json:"accident_type"`
	Index      int       `json:"class_index"`
	DamageHint string    `json:"damage_location,omitempty"`
	Suppressed []string  `json:"suppressed,omitempty"`
	Tokens     int       `json:"tokens"`
	Logits     []float32 `json:"logits"`
}

// Classifier wires tokenizer, model, label map and denylist together. All
// fields are read-only after construction and safe for concurrent use.
type Classifier struct {
	tok      *Tokenizer
	model    TextModel
	labels   *LabelMap
	denylist map[string][]string
}

// NewClassifier builds a classifier. labels may be nil, in which case model
// indices are reported as codes. denylist maps a direction label to the
// codes it rules out.
func NewClassifier(tok *Tokenizer, model TextModel, labels *LabelMap, denylist map[string][]string) *Classifier {
	return &Classifier{tok: tok, model: model, labels: labels, denylist: denylist}
}

// Classify runs the model over in and returns the arg-max class after the
// direction denylist has been applied.
func (c *Classifier) Classify(ctx context.Context, in Input) (Result, error) {
	if c.tok == nil || c.model == nil {
		return Result{}, ErrModelMissing
	}
	enc, err := c.tok.Encode(in.Text())
	if err != nil {
		return Result{}, err
	}
	logits, err := c.model.Logits(ctx, enc)
	if err != nil {
		return Result{}, fmt.Errorf("accident type model: %w", err)
	}
	if len(logits) == 0 {
		return Result{}, fmt.Errorf("accident type model returned no logits")
	}

	biased := slices.Clone(logits)
	var suppressed []string
	denied := c.denylist[string(direction.Normalize(in.Direction))]
	for i := range biased {
		code := c.labels.Code(i)
		if slices.Contains(denied, code) {
			biased[i] += denyBias
			suppressed = append(suppressed, code)
		}
	}

	best := 0
	for i, v := range biased {
		if v > biased[best] {
			best = i
		}
	}
	if len(suppressed) > 0 {
		monitoring.Logf("[accidenttype] direction %s suppressed codes %v", in.Direction, suppressed)
	}

	return Result{
		Code:       c.labels.Code(best),
		Index:      best,
		DamageHint: c.labels.DamageHint(best),
		Suppressed: suppressed,
		Tokens:     len(enc.InputIDs),
		Logits:     logits,
	}, nil
}
