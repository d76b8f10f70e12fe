package direction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/accident.report/internal/detection"
)

type stubModel struct {
	logits []float32
	err    error
	calls  int
	last   [][]float32
}

func (m *stubModel) Predict(_ context.Context, seq [][]float32) ([]float32, error) {
	m.calls++
	m.last = seq
	return m.logits, m.err
}

func vehicleB(idx int, box detection.BBox) detection.Frame {
	return detection.Frame{
		Name:  detection.FrameName(idx),
		Index: idx,
		Boxes: []detection.Box{{BBox: box, Score: 0.9, Class: detection.ClassVehicleB}},
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]Label{
		"left":       FromLeft,
		"from_left":  FromLeft,
		" Right ":    FromRight,
		"from_right": FromRight,
		"center":     Center,
		"":           Unknown,
		"diagonal":   Unknown,
	}
	for in, want := range tests {
		assert.Equal(t, want, Normalize(in), "Normalize(%q)", in)
	}
}

func TestClassify_TooFewSamplesSkipsModel(t *testing.T) {
	for _, set := range []detection.Set{
		nil,
		{{Name: "00000.jpg", Index: 0}},
		{vehicleB(4, detection.BBox{0, 0, 10, 10}), {Name: "00005.jpg", Index: 5}},
	} {
		m := &stubModel{logits: []float32{9, 0, 0}}
		res, err := NewClassifier(m).Classify(context.Background(), set)
		require.NoError(t, err)
		assert.Equal(t, Unknown, res.Direction)
		assert.False(t, res.Invoked)
		assert.Zero(t, m.calls)
	}

	// A nil model is fine when it would not be called.
	res, err := NewClassifier(nil).Classify(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Unknown, res.Direction)
}

func TestClassify_RunsModel(t *testing.T) {
	set := detection.Set{
		vehicleB(3, detection.BBox{20, 10, 40, 30}),
		{Name: "00002.jpg", Index: 2, Boxes: []detection.Box{
			{BBox: detection.BBox{0, 0, 5, 5}, Class: detection.ClassTrafficLightRed},
			{BBox: detection.BBox{10, 10, 30, 30}, Class: detection.ClassVehicleB},
		}},
	}
	m := &stubModel{logits: []float32{0.1, 0.2, 3.4}}

	res, err := NewClassifier(m).Classify(context.Background(), set)
	require.NoError(t, err)
	assert.Equal(t, FromRight, res.Direction)
	assert.Equal(t, "right", res.RawLabel)
	assert.True(t, res.Invoked)
	assert.Equal(t, 1, m.calls)

	// Sorted by frame index, features are [cx, cy, w, h, x1, y1].
	assert.Equal(t, [][]float32{
		{20, 20, 20, 20, 10, 10},
		{30, 20, 20, 20, 20, 10},
	}, m.last)
}

func TestClassify_ModelErrors(t *testing.T) {
	set := detection.Set{
		vehicleB(0, detection.BBox{0, 0, 10, 10}),
		vehicleB(1, detection.BBox{1, 1, 11, 11}),
	}

	_, err := NewClassifier(nil).Classify(context.Background(), set)
	assert.ErrorIs(t, err, ErrModelMissing)

	_, err = NewClassifier(&stubModel{err: errors.New("boom")}).Classify(context.Background(), set)
	assert.ErrorContains(t, err, "boom")

	_, err = NewClassifier(&stubModel{logits: []float32{1, 2}}).Classify(context.Background(), set)
	assert.ErrorContains(t, err, "logits")
}
