// Package egomotion estimates the analysis vehicle's lateral motion from
// background optical flow.
//
// Three independent flow methods each yield a per-frame-pair (dx, dy)
// displacement of the static background. Each signal is projected onto the
// axis perpendicular to the dominant motion direction observed during a
// calibration span, denoised with a median filter followed by a gaussian,
// and integrated into a lateral trajectory. A naive collision estimate per
// method is the first frame where the smoothed displacement rate exceeds a
// threshold. The ensemble trajectory is the per-frame median of the three
// trajectories, and the ensemble collision frame the median of the three
// estimates.
package egomotion

import (
	"context"
	"fmt"

	"github.com/banshee-data/accident.report/internal/config"
)

// Method names one optical-flow estimator.
type Method string

const (
	MethodSparseLK       Method = "sparse_lk"
	MethodDenseFarneback Method = "dense_far"
	MethodRANSACAffine   Method = "ransac_affine"
)

// Methods is the fixed ensemble, in output order.
var Methods = []Method{MethodSparseLK, MethodDenseFarneback, MethodRANSACAffine}

// FlowSample is the background displacement between frame i-1 and frame i.
// Index 0 of a flow series is always the zero sample.
type FlowSample struct {
	DX      float64
	DY      float64
	Quality float64
}

// FlowEstimator computes a flow series of len(frames) samples for one method.
// Frames whose flow cannot be estimated must be reported as zero samples,
// not errors.
type FlowEstimator interface {
	EstimateFlow(ctx context.Context, frames []string, method Method) ([]FlowSample, error)
}

// Params are the post-processing constants.
type Params struct {
	CalibrationFrames     int
	MedianKernel          int
	GaussianSigma         float64
	CollisionThreshold    float64
	CollisionSmoothWindow int
}

// ParamsFromConfig reads the post-processing constants from cfg.
func ParamsFromConfig(cfg *config.PipelineConfig) Params {
	return Params{
		CalibrationFrames:     cfg.GetCalibrationFrames(),
		MedianKernel:          cfg.GetMedianKernel(),
		GaussianSigma:         cfg.GetGaussianSigma(),
		CollisionThreshold:    cfg.GetCollisionThreshold(),
		CollisionSmoothWindow: cfg.GetCollisionSmoothWindow(),
	}
}

// Processed holds every intermediate signal of one method.
type Processed struct {
	Method     Method
	Raw        []FlowSample
	Lateral    []float64
	Median     []float64
	Smooth     []float64
	Trajectory []float64
	Collision  int
}

// Process turns one method's flow series into a lateral trajectory and its
// collision estimate.
func Process(method Method, flow []FlowSample, p Params) Processed {
	dx := make([]float64, len(flow))
	dy := make([]float64, len(flow))
	for i, s := range flow {
		dx[i], dy[i] = s.DX, s.DY
	}

	lat := lateral(dx, dy, p.CalibrationFrames)
	med := medianFilter(lat, p.MedianKernel)
	smooth := gaussianFilter(med, p.GaussianSigma)
	traj := cumsum(smooth)

	rate := make([]float64, len(traj))
	for i := 1; i < len(traj); i++ {
		d := traj[i] - traj[i-1]
		if d < 0 {
			d = -d
		}
		rate[i] = d
	}
	rate = movingAverage(rate, p.CollisionSmoothWindow)

	return Processed{
		Method:     method,
		Raw:        flow,
		Lateral:    lat,
		Median:     med,
		Smooth:     smooth,
		Trajectory: traj,
		Collision:  firstAbove(rate, p.CollisionThreshold),
	}
}

// Result is the ensemble output of the estimator.
type Result struct {
	Methods   []Processed
	Ensemble  []float64
	Collision int
}

// Combine takes the per-frame median of the method trajectories and the
// median of their collision estimates. All trajectories must have equal
// length.
func Combine(procs []Processed) (Result, error) {
	res := Result{Methods: procs}
	if len(procs) == 0 {
		return res, nil
	}
	n := len(procs[0].Trajectory)
	for _, p := range procs[1:] {
		if len(p.Trajectory) != n {
			return res, fmt.Errorf("trajectory length mismatch: %s has %d frames, %s has %d",
				procs[0].Method, n, p.Method, len(p.Trajectory))
		}
	}

	res.Ensemble = make([]float64, n)
	col := make([]float64, len(procs))
	for i := 0; i < n; i++ {
		for j, p := range procs {
			col[j] = p.Trajectory[i]
		}
		res.Ensemble[i] = median(col)
	}

	colls := make([]float64, len(procs))
	for j, p := range procs {
		colls[j] = float64(p.Collision)
	}
	res.Collision = int(median(colls))
	return res, nil
}
