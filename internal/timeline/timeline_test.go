package timeline

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/accident.report/internal/config"
	"github.com/banshee-data/accident.report/internal/detection"
	"github.com/banshee-data/accident.report/internal/fsutil"
)

func defaultParams() Params {
	return ParamsFromConfig(config.EmptyPipelineConfig())
}

// shrinkingClip builds a 100-frame clip where vehicle B is visible on frames
// 20..80, shrinking until frame 75 and growing again afterwards.
func shrinkingClip() detection.Set {
	var set detection.Set
	for i := 0; i < 100; i++ {
		f := detection.Frame{Name: detection.FrameName(i), Index: i}
		if i >= 20 && i <= 80 {
			half := 60.0 - float64(i-20)*0.9
			if i > 75 {
				half = 60.0 - 55*0.9 + float64(i-75)*2
			}
			f.Boxes = []detection.Box{{
				BBox:  detection.BBox{300 - half, 200 - half, 300 + half, 200 + half},
				Score: 0.8,
				Class: detection.ClassVehicleB,
			}}
		}
		set = append(set, f)
	}
	return set
}

func TestReconstruct_MinAreaFallback(t *testing.T) {
	res := Reconstruct(Input{Detections: shrinkingClip()}, defaultParams())

	assert.Equal(t, 75, res.Collision.FrameIdx)
	assert.Equal(t, MethodMinArea, res.Collision.Method)
	assert.Equal(t, "00075.jpg", res.Collision.Frame)
	require.NotNil(t, res.Collision.Reference)
	assert.LessOrEqual(t, res.FirstSeen, 75)
	assert.GreaterOrEqual(t, res.FirstSeen, 20)

	want := []Event{
		{EventFirstSeen, res.FirstSeen},
		{EventAccidentEstimated, 75},
		{EventAftermath, 85},
	}
	if diff := cmp.Diff(want, res.Events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestReconstruct_SkipFloor(t *testing.T) {
	set := detection.Set{
		{Name: "00002.jpg", Index: 2, Boxes: []detection.Box{{BBox: detection.BBox{0, 0, 1, 1}, Class: detection.ClassVehicleB}}},
		{Name: "00040.jpg", Index: 40, Boxes: []detection.Box{{BBox: detection.BBox{0, 0, 10, 10}, Class: detection.ClassVehicleB}}},
	}
	res := Reconstruct(Input{Detections: set}, defaultParams())
	assert.Equal(t, 40, res.Collision.FrameIdx, "tiny box inside the skip span is ignored")

	// With nothing past the floor the whole clip is considered.
	res = Reconstruct(Input{Detections: set[:1]}, defaultParams())
	assert.Equal(t, 2, res.Collision.FrameIdx)
}

func TestReconstruct_NoVehicle(t *testing.T) {
	set := detection.Set{{Name: "00000.jpg", Index: 0}, {Name: "00001.jpg", Index: 1}}
	res := Reconstruct(Input{Detections: set, Direction: "unknown"}, defaultParams())

	assert.Equal(t, 0, res.Collision.FrameIdx)
	assert.Equal(t, MethodDefault, res.Collision.Method)
	assert.Nil(t, res.Collision.Reference)
	assert.Equal(t, 0, res.FirstSeen)
	assert.Equal(t, "unknown", res.Direction)
	assert.Equal(t, EventAftermath, res.Events[len(res.Events)-1].Label)
	assert.Equal(t, 10, res.Events[len(res.Events)-1].Frame)
}

func TestReconstruct_ForegroundCandidates(t *testing.T) {
	set := shrinkingClip()
	fg := map[int]int{
		5:  99999, // inside the skip span
		50: 1200,
		60: 4000,
		90: 300,
	}
	res := Reconstruct(Input{Detections: set, Foreground: fg}, defaultParams())
	assert.Equal(t, MethodBackground, res.Collision.Method)
	assert.Equal(t, 60, res.Collision.Candidate)
	assert.Equal(t, 60, res.Collision.FrameIdx)
	assert.LessOrEqual(t, res.FirstSeen, 60)
}

func TestReconstruct_ForegroundSearchesForwardThenBackward(t *testing.T) {
	box := detection.Box{BBox: detection.BBox{0, 0, 10, 10}, Class: detection.ClassVehicleB}
	set := detection.Set{
		{Name: "00040.jpg", Index: 40, Boxes: []detection.Box{box}},
		{Name: "00050.jpg", Index: 50},
		{Name: "00055.jpg", Index: 55, Boxes: []detection.Box{box}},
	}
	res := Reconstruct(Input{Detections: set, Foreground: map[int]int{50: 10}}, defaultParams())
	assert.Equal(t, 55, res.Collision.FrameIdx, "forward hit preferred")

	res = Reconstruct(Input{Detections: set[:2], Foreground: map[int]int{50: 10}}, defaultParams())
	assert.Equal(t, 40, res.Collision.FrameIdx, "backward when nothing ahead")
}

func TestReconstruct_BackwardWalkStopsAtGap(t *testing.T) {
	box := detection.Box{BBox: detection.BBox{100, 100, 200, 200}, Class: detection.ClassVehicleB}
	var set detection.Set
	for _, i := range []int{31, 32, 33, 40, 41, 42, 43} {
		set = append(set, detection.Frame{Name: detection.FrameName(i), Index: i, Boxes: []detection.Box{box}})
	}
	p := defaultParams()
	p.MaxBackwardGap = 3
	res := Reconstruct(Input{Detections: set, Foreground: map[int]int{43: 1}}, p)
	assert.Equal(t, 43, res.Collision.FrameIdx)
	assert.Equal(t, 40, res.FirstSeen)

	p.MaxBackwardGap = 6
	res = Reconstruct(Input{Detections: set, Foreground: map[int]int{43: 1}}, p)
	assert.Equal(t, 31, res.FirstSeen)
}

func TestReconstruct_SignalEvent(t *testing.T) {
	signals := []Event{{"traffic-light-green", 64}, {"traffic-light-red", 12}}
	res := Reconstruct(Input{Detections: shrinkingClip(), Signals: signals}, defaultParams())

	labels := make([]string, len(res.Events))
	for i, e := range res.Events {
		labels[i] = e.Label
	}
	assert.Contains(t, labels, EventSignalDetected)
	for i := 1; i < len(res.Events); i++ {
		assert.LessOrEqual(t, res.Events[i-1].Frame, res.Events[i].Frame)
	}
	assert.Equal(t, Event{EventSignalDetected, 12}, res.Events[0])
}

func TestReconstruct_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	p := defaultParams()
	for trial := 0; trial < 200; trial++ {
		var set detection.Set
		n := rng.Intn(120)
		for i := 0; i < n; i++ {
			f := detection.Frame{Name: detection.FrameName(i), Index: i}
			if rng.Float64() < 0.6 {
				x, y := rng.Float64()*500, rng.Float64()*300
				w, h := 5+rng.Float64()*80, 5+rng.Float64()*80
				f.Boxes = append(f.Boxes, detection.Box{BBox: detection.BBox{x, y, x + w, y + h}, Class: detection.ClassVehicleB})
			}
			set = append(set, f)
		}
		var fg map[int]int
		if trial%2 == 0 {
			fg = map[int]int{}
			for i := 0; i < n; i++ {
				fg[i] = rng.Intn(1000)
			}
		}
		res := Reconstruct(Input{Detections: set, Foreground: fg}, p)
		require.LessOrEqual(t, res.FirstSeen, res.Collision.FrameIdx, "trial %d", trial)
		aftermath := res.Events[len(res.Events)-1]
		require.Equal(t, EventAftermath, aftermath.Label)
		require.Equal(t, res.Collision.FrameIdx+p.AftermathOffset, aftermath.Frame)
	}
}

func TestForegroundRoundTrip(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()

	counts, err := ReadForeground(mfs, "/run/bg")
	require.NoError(t, err)
	assert.Nil(t, counts)

	require.NoError(t, WriteForeground(mfs, "/run/bg", map[int]int{3: 10, 40: 2}))
	counts, err = ReadForeground(mfs, "/run/bg")
	require.NoError(t, err)
	assert.Equal(t, map[int]int{3: 10, 40: 2}, counts)

	require.NoError(t, mfs.WriteFile("/run/bg/"+ForegroundFile, []byte(`{"schema_version": 9, "counts": {}}`), 0o644))
	_, err = ReadForeground(mfs, "/run/bg")
	assert.Error(t, err)
}
