// Package detection defines the per-frame detection record shared by every
// analysis stage downstream of the object detector.
package detection

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Class is a detector class id.
type Class int

// Class ids emitted by the accident detector weights. Id 0 is the analysis
// vehicle's own bonnet/dashboard and is ignored by every consumer.
const (
	ClassVehicleA          Class = 0
	ClassVehicleB          Class = 1
	ClassTrafficLightRed   Class = 2
	ClassTrafficLightGreen Class = 3
)

func (c Class) String() string {
	switch c {
	case ClassVehicleA:
		return "vehicle_A"
	case ClassVehicleB:
		return "vehicle_B"
	case ClassTrafficLightRed:
		return "traffic-light-red"
	case ClassTrafficLightGreen:
		return "traffic-light-green"
	default:
		return "class_" + strconv.Itoa(int(c))
	}
}

// IsTrafficLight reports whether c is one of the signal-state classes.
func (c Class) IsTrafficLight() bool {
	return c == ClassTrafficLightRed || c == ClassTrafficLightGreen
}

// BBox is an axis-aligned box in pixel coordinates: x1, y1, x2, y2.
type BBox [4]float64

func (b BBox) Width() float64  { return b[2] - b[0] }
func (b BBox) Height() float64 { return b[3] - b[1] }

// Area returns zero for degenerate boxes.
func (b BBox) Area() float64 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Center returns the box centre.
func (b BBox) Center() (cx, cy float64) {
	return (b[0] + b[2]) / 2, (b[1] + b[3]) / 2
}

// IoU returns the intersection-over-union of two boxes in [0, 1].
func IoU(a, b BBox) float64 {
	ix1 := max(a[0], b[0])
	iy1 := max(a[1], b[1])
	ix2 := min(a[2], b[2])
	iy2 := min(a[3], b[3])
	iw := ix2 - ix1
	ih := iy2 - iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Box is a single detection inside a frame.
type Box struct {
	BBox  BBox    `json:"bbox"`
	Score float64 `json:"score"`
	Class Class   `json:"class"`
}

// Frame holds all detections for one extracted frame. An empty Boxes slice is
// a valid frame with nothing detected.
type Frame struct {
	Name  string `json:"frame"`
	Index int    `json:"frame_idx"`
	Boxes []Box  `json:"boxes"`
}

// First returns the first box of class c in detector output order.
func (f Frame) First(c Class) (Box, bool) {
	for _, b := range f.Boxes {
		if b.Class == c {
			return b, true
		}
	}
	return Box{}, false
}

// FrameIndex parses the numeric index encoded in a frame filename such as
// "00042.jpg" or "/tmp/frames/00042.jpg".
func FrameIndex(name string) (int, error) {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	idx, err := strconv.Atoi(stem)
	if err != nil {
		return 0, fmt.Errorf("frame %q has no numeric index: %w", name, err)
	}
	if idx < 0 {
		return 0, fmt.Errorf("frame %q has negative index", name)
	}
	return idx, nil
}

// FrameName formats the canonical filename for frame idx.
func FrameName(idx int) string {
	return fmt.Sprintf("%05d.jpg", idx)
}

// Set is the ordered list of per-frame records for one video.
type Set []Frame

// Sort orders frames by index, stable for equal indices.
func (s Set) Sort() {
	sort.SliceStable(s, func(i, j int) bool { return s[i].Index < s[j].Index })
}

// Sorted reports whether the frames are in non-decreasing index order.
func (s Set) Sorted() bool {
	return sort.SliceIsSorted(s, func(i, j int) bool { return s[i].Index < s[j].Index })
}

// ByIndex maps frame index to position in s.
func (s Set) ByIndex() map[int]int {
	m := make(map[int]int, len(s))
	for i, f := range s {
		if _, dup := m[f.Index]; !dup {
			m[f.Index] = i
		}
	}
	return m
}

// Sample is one frame's worth of a single tracked object.
type Sample struct {
	Frame int  `json:"frame_idx"`
	Box   BBox `json:"bbox"`
}

// Track returns the first box of class c for every frame that has one, in
// frame order. Frames without a detection are gaps and are omitted.
func (s Set) Track(c Class) []Sample {
	ordered := s
	if !s.Sorted() {
		ordered = append(Set(nil), s...)
		ordered.Sort()
	}
	var out []Sample
	for _, f := range ordered {
		if b, ok := f.First(c); ok {
			out = append(out, Sample{Frame: f.Index, Box: b.BBox})
		}
	}
	return out
}
