package egomotion

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// calibrationDirection returns the unit vector of the mean flow over frame
// pairs 1..calib-1. A zero mean yields the zero vector.
func calibrationDirection(dx, dy []float64, calib int) (ux, uy float64) {
	end := min(calib, len(dx))
	if end <= 1 {
		return 0, 0
	}
	ux = stat.Mean(dx[1:end], nil)
	uy = stat.Mean(dy[1:end], nil)
	norm := math.Hypot(ux, uy) + 1e-8
	return ux / norm, uy / norm
}

// lateral projects (dx, dy) onto the normal of the calibration direction and
// zeroes the calibration span.
func lateral(dx, dy []float64, calib int) []float64 {
	ux, uy := calibrationDirection(dx, dy, calib)
	lx, ly := -uy, ux
	out := make([]float64, len(dx))
	for i := range dx {
		if i < calib {
			continue
		}
		out[i] = dx[i]*lx + dy[i]*ly
	}
	return out
}

// medianFilter applies a centred running median of odd width k with zero
// padding at both ends.
func medianFilter(x []float64, k int) []float64 {
	out := make([]float64, len(x))
	if k <= 1 {
		copy(out, x)
		return out
	}
	half := k / 2
	win := make([]float64, k)
	for i := range x {
		for j := 0; j < k; j++ {
			idx := i - half + j
			if idx < 0 || idx >= len(x) {
				win[j] = 0
			} else {
				win[j] = x[idx]
			}
		}
		sort.Float64s(win)
		out[i] = win[half]
	}
	return out
}

// reflectIndex maps an out-of-range index into [0, n) mirroring about the
// array edges (d c b a | a b c d | d c b a).
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i - 1
	}
	return i
}

// gaussianFilter smooths x with a gaussian of the given sigma truncated at
// four standard deviations, reflecting at the edges.
func gaussianFilter(x []float64, sigma float64) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}
	if sigma <= 0 {
		copy(out, x)
		return out
	}
	radius := int(4*sigma + 0.5)
	weights := make([]float64, 2*radius+1)
	for j := -radius; j <= radius; j++ {
		weights[j+radius] = math.Exp(-0.5 * float64(j*j) / (sigma * sigma))
	}
	floats.Scale(1/floats.Sum(weights), weights)

	for i := range x {
		var acc float64
		for j := -radius; j <= radius; j++ {
			acc += weights[j+radius] * x[reflectIndex(i+j, len(x))]
		}
		out[i] = acc
	}
	return out
}

// movingAverage is a box filter of width w with zero padding and the same
// length as x. Sample i averages x[i-w/2 : i-w/2+w], so even widths lean one
// sample to the left.
func movingAverage(x []float64, w int) []float64 {
	out := make([]float64, len(x))
	if w <= 1 {
		copy(out, x)
		return out
	}
	left := w / 2
	for i := range x {
		var acc float64
		for k := i - left; k < i-left+w; k++ {
			if k >= 0 && k < len(x) {
				acc += x[k]
			}
		}
		out[i] = acc / float64(w)
	}
	return out
}

func cumsum(x []float64) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}
	floats.CumSum(out, x)
	return out
}

// firstAbove returns the first index where x exceeds thr, or 0 when it
// never does.
func firstAbove(x []float64, thr float64) int {
	for i, v := range x {
		if v > thr {
			return i
		}
	}
	return 0
}

// median returns the median of vs, averaging the middle pair for even
// lengths.
func median(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return stat.Mean(sorted[n/2-1:n/2+1], nil)
}
