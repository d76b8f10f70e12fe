package egomotion

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForegroundTracker(t *testing.T) {
	var tr ForegroundTracker

	m := tr.Update([]uint8{0, 127, 128, 255})
	assert.Equal(t, []bool{false, false, true, true}, m.Foreground)
	assert.Equal(t, []bool{false, false, true, true}, m.New, "first frame: all foreground is new")
	assert.Equal(t, []bool{true, true, false, false}, m.Background)
	assert.Equal(t, 2, m.NewCount)

	m = tr.Update([]uint8{255, 0, 255, 255})
	assert.Equal(t, []bool{true, false, false, false}, m.New)
	assert.Equal(t, 1, m.NewCount)
	assert.Equal(t, []bool{false, true, false, false}, m.Background)

	// A frame of another size starts from an empty previous mask.
	m = tr.Update([]uint8{255, 0, 255})
	assert.Equal(t, 2, m.NewCount)
}

func TestMaskBytes(t *testing.T) {
	assert.Equal(t, []uint8{255, 0, 255}, MaskBytes([]bool{true, false, true}))
}

func TestGridPoints(t *testing.T) {
	got := GridPoints(40, 20, 15)
	want := []Point{{0, 0}, {15, 0}, {30, 0}, {0, 15}, {15, 15}, {30, 15}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GridPoints mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectBackground(t *testing.T) {
	// 3x2 mask, background only in the right column.
	bg := []bool{false, false, true, false, false, true}
	pts := []Point{{0, 0}, {2, 0}, {2, 1}, {1, 1}}
	assert.Equal(t, []Point{{2, 0}, {2, 1}}, SelectBackground(pts, bg, 3))
}

func TestSparseSample(t *testing.T) {
	prev := []Point{{0, 0}, {10, 10}, {20, 20}, {30, 30}}
	next := []Point{{2, 1}, {12, 11}, {0, 0}, {34, 33}}
	ok := []bool{true, true, false, true}

	s := SparseSample(prev, next, ok)
	assert.InDelta(t, -8.0/3.0, s.DX, 1e-9)
	assert.InDelta(t, -5.0/3.0, s.DY, 1e-9)
	assert.InDelta(t, 0.75, s.Quality, 1e-12)

	assert.Equal(t, FlowSample{}, SparseSample(nil, nil, nil))
	assert.Equal(t, FlowSample{Quality: 0}, SparseSample(prev, next, make([]bool, 4)))
}

func TestDenseSample(t *testing.T) {
	flow := []float32{
		1, 2,
		3, 4,
		100, 100,
		float32(math.NaN()), 5,
	}
	bg := []bool{true, true, false, true}

	s := DenseSample(flow, bg)
	assert.InDelta(t, 2.0/3.0, s.Quality, 1e-12)
	assert.InDelta(t, -4, s.DY, 1e-9)

	assert.Equal(t, FlowSample{}, DenseSample(flow, make([]bool, 4)))
}

func TestRANSACSample(t *testing.T) {
	prev := []Point{{0, 0}, {10, 0}, {0, 10}, {10, 10}}
	next := []Point{{1, 2}, {11, 2}, {1, 12}, {11, 12}}
	ok := []bool{true, true, true, true}

	t.Run("uses fit translation", func(t *testing.T) {
		calls := 0
		fit := func(from, to []Point) (float64, float64, bool) {
			calls++
			require.Len(t, from, 4)
			return 1.5, 2.5, true
		}
		s := RANSACSample(prev, next, ok, 0.3, fit)
		assert.Equal(t, 1, calls)
		assert.Equal(t, FlowSample{DX: -1.5, DY: -2.5, Quality: 1}, s)
	})

	t.Run("low quality falls back to median", func(t *testing.T) {
		fit := func(from, to []Point) (float64, float64, bool) {
			t.Fatal("fit must not run below the quality floor")
			return 0, 0, false
		}
		s := RANSACSample(prev, next, []bool{true, false, false, false}, 0.3, fit)
		assert.Equal(t, FlowSample{DX: -1, DY: -2, Quality: 0.25}, s)
	})

	t.Run("failed fit falls back to median", func(t *testing.T) {
		fit := func(from, to []Point) (float64, float64, bool) { return 0, 0, false }
		s := RANSACSample(prev, next, ok, 0.3, fit)
		assert.Equal(t, FlowSample{DX: -1, DY: -2, Quality: 1}, s)
	})
}
