package egomotion

import "math"

// foregroundLevel is the MOG2 output value at or above which a pixel counts
// as foreground. Shadow pixels (127) are background.
const foregroundLevel = 128

// Point is a pixel location in image coordinates.
type Point struct {
	X, Y float32
}

// ForegroundTracker turns raw MOG2 output into foreground, newly appeared
// foreground and background masks. The zero value starts with an empty
// previous mask.
type ForegroundTracker struct {
	prev []bool
}

// Masks is one frame's split of the subtractor output.
type Masks struct {
	Foreground []bool
	New        []bool
	Background []bool
	NewCount   int
}

// Update consumes one raw subtractor mask and returns the split. The first
// frame treats all foreground as new.
func (t *ForegroundTracker) Update(raw []uint8) Masks {
	if len(t.prev) != len(raw) {
		t.prev = make([]bool, len(raw))
	}
	m := Masks{
		Foreground: make([]bool, len(raw)),
		New:        make([]bool, len(raw)),
		Background: make([]bool, len(raw)),
	}
	for i, v := range raw {
		fg := v >= foregroundLevel
		fresh := fg && !t.prev[i]
		m.Foreground[i] = fg
		m.New[i] = fresh
		m.Background[i] = !fg && !fresh
		if fresh {
			m.NewCount++
		}
	}
	copy(t.prev, m.Foreground)
	return m
}

// MaskBytes renders a boolean mask as 0/255 pixels.
func MaskBytes(mask []bool) []uint8 {
	out := make([]uint8, len(mask))
	for i, v := range mask {
		if v {
			out[i] = 255
		}
	}
	return out
}

// GridPoints returns the sampling grid over a w x h frame, row by row.
func GridPoints(w, h, step int) []Point {
	if step <= 0 {
		step = 1
	}
	pts := make([]Point, 0, ((w+step-1)/step)*((h+step-1)/step))
	for y := 0; y < h; y += step {
		for x := 0; x < w; x += step {
			pts = append(pts, Point{X: float32(x), Y: float32(y)})
		}
	}
	return pts
}

// SelectBackground keeps the grid points that fall on background pixels of
// a w-wide mask.
func SelectBackground(pts []Point, background []bool, w int) []Point {
	out := make([]Point, 0, len(pts))
	for _, p := range pts {
		i := int(p.Y)*w + int(p.X)
		if i >= 0 && i < len(background) && background[i] {
			out = append(out, p)
		}
	}
	return out
}

// SparseSample summarises tracked points as the negated mean displacement of
// the successfully tracked ones. Quality is the tracked fraction.
func SparseSample(prev, next []Point, ok []bool) FlowSample {
	if len(prev) == 0 {
		return FlowSample{}
	}
	var sx, sy float64
	n := 0
	for i := range prev {
		if i >= len(next) || i >= len(ok) || !ok[i] {
			continue
		}
		sx += float64(next[i].X - prev[i].X)
		sy += float64(next[i].Y - prev[i].Y)
		n++
	}
	s := FlowSample{Quality: float64(n) / float64(len(prev))}
	if n > 0 {
		s.DX = -sx / float64(n)
		s.DY = -sy / float64(n)
	}
	return s
}

// DenseSample summarises an interleaved (fx, fy) flow field as the negated
// median over background pixels. Quality is the finite fraction of those
// pixels.
func DenseSample(flow []float32, background []bool) FlowSample {
	var fx, fy []float64
	finite := 0
	for i, bg := range background {
		if !bg || 2*i+1 >= len(flow) {
			continue
		}
		x, y := float64(flow[2*i]), float64(flow[2*i+1])
		fx = append(fx, x)
		fy = append(fy, y)
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			finite++
		}
	}
	if len(fx) == 0 {
		return FlowSample{}
	}
	return FlowSample{
		DX:      -median(fx),
		DY:      -median(fy),
		Quality: float64(finite) / float64(len(fx)),
	}
}

// AffineFit estimates a partial affine transform between two point sets and
// returns its translation. ok is false when no model was found.
type AffineFit func(from, to []Point) (tx, ty float64, ok bool)

// RANSACSample summarises full-grid tracking. When enough points tracked it
// uses the negated translation of a robust affine fit, otherwise the negated
// median displacement of the tracked points.
func RANSACSample(prev, next []Point, ok []bool, minQuality float64, fit AffineFit) FlowSample {
	if len(prev) == 0 {
		return FlowSample{}
	}
	var from, to []Point
	var dx, dy []float64
	for i := range prev {
		if i >= len(next) || i >= len(ok) || !ok[i] {
			continue
		}
		from = append(from, prev[i])
		to = append(to, next[i])
		dx = append(dx, float64(next[i].X-prev[i].X))
		dy = append(dy, float64(next[i].Y-prev[i].Y))
	}
	s := FlowSample{Quality: float64(len(from)) / float64(len(prev))}
	if s.Quality >= minQuality && len(from) >= 3 && fit != nil {
		if tx, ty, found := fit(from, to); found {
			s.DX, s.DY = -tx, -ty
			return s
		}
	}
	if len(dx) > 0 {
		s.DX, s.DY = -median(dx), -median(dy)
	}
	return s
}
