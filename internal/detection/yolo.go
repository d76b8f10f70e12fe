package detection

import (
	"fmt"
	"sort"
)

// Layout describes how a YOLO output tensor is arranged.
type Layout int

const (
	// LayoutAttributeMajor is the [1, 4+nc, N] head exported by current
	// YOLO releases: rows are attributes, columns candidates, no objectness.
	LayoutAttributeMajor Layout = iota
	// LayoutCandidateMajor is the older [1, N, 5+nc] head with an
	// objectness score in column 4.
	LayoutCandidateMajor
)

// DecodeParams control how raw detector output is turned into boxes.
type DecodeParams struct {
	NumClasses int
	// ScaleX and ScaleY map model-input pixels back to frame pixels.
	ScaleX     float64
	ScaleY     float64
	Confidence float64
}

// DetectLayout picks the tensor layout from its shape.
func DetectLayout(dims []int, numClasses int) (Layout, error) {
	if len(dims) != 3 || dims[0] != 1 {
		return 0, fmt.Errorf("unexpected detector output shape %v", dims)
	}
	switch {
	case dims[1] == 4+numClasses:
		return LayoutAttributeMajor, nil
	case dims[2] == 5+numClasses:
		return LayoutCandidateMajor, nil
	}
	return 0, fmt.Errorf("detector output shape %v does not match %d classes", dims, numClasses)
}

// DecodeYOLO converts a flattened detector output tensor into boxes whose
// score passes p.Confidence. Boxes are returned in candidate order; run
// NMS afterwards.
func DecodeYOLO(data []float32, dims []int, p DecodeParams) ([]Box, error) {
	layout, err := DetectLayout(dims, p.NumClasses)
	if err != nil {
		return nil, err
	}
	if want := dims[0] * dims[1] * dims[2]; len(data) < want {
		return nil, fmt.Errorf("detector output has %d values, shape %v needs %d", len(data), dims, want)
	}

	var (
		n   int
		at  func(cand, attr int) float64
		cls int // first class-score attribute
	)
	switch layout {
	case LayoutAttributeMajor:
		n = dims[2]
		at = func(cand, attr int) float64 { return float64(data[attr*n+cand]) }
		cls = 4
	case LayoutCandidateMajor:
		n = dims[1]
		stride := dims[2]
		at = func(cand, attr int) float64 { return float64(data[cand*stride+attr]) }
		cls = 5
	}

	var out []Box
	for i := 0; i < n; i++ {
		obj := 1.0
		if layout == LayoutCandidateMajor {
			obj = at(i, 4)
			if obj < p.Confidence {
				continue
			}
		}
		best, bestScore := 0, 0.0
		for c := 0; c < p.NumClasses; c++ {
			if s := at(i, cls+c); s > bestScore {
				best, bestScore = c, s
			}
		}
		score := obj * bestScore
		if score < p.Confidence {
			continue
		}
		cx, cy, w, h := at(i, 0), at(i, 1), at(i, 2), at(i, 3)
		out = append(out, Box{
			BBox: BBox{
				(cx - w/2) * p.ScaleX,
				(cy - h/2) * p.ScaleY,
				(cx + w/2) * p.ScaleX,
				(cy + h/2) * p.ScaleY,
			},
			Score: score,
			Class: Class(best),
		})
	}
	return out, nil
}

// NMS performs greedy per-class non-maximum suppression. Boxes overlapping a
// higher-scoring box of the same class by more than threshold IoU are
// dropped. The survivors are returned in descending score order.
func NMS(boxes []Box, threshold float64) []Box {
	if len(boxes) == 0 {
		return nil
	}
	order := make([]Box, len(boxes))
	copy(order, boxes)
	sort.SliceStable(order, func(i, j int) bool { return order[i].Score > order[j].Score })

	kept := make([]Box, 0, len(order))
	for _, b := range order {
		suppressed := false
		for _, k := range kept {
			if k.Class == b.Class && IoU(k.BBox, b.BBox) > threshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, b)
		}
	}
	return kept
}
