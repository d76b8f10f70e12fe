package egomotion

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/accident.report/internal/fsutil"
)

// Estimator runs every flow method over a frame sequence and ensembles the
// results. Artifacts are written under the directory passed to Run.
type Estimator struct {
	flow   FlowEstimator
	fs     fsutil.FileSystem
	params Params
}

// NewEstimator returns an Estimator. A nil fs disables artifact output.
func NewEstimator(flow FlowEstimator, fs fsutil.FileSystem, params Params) *Estimator {
	return &Estimator{flow: flow, fs: fs, params: params}
}

// Run estimates the ensemble trajectory. An empty frame list yields an empty
// trajectory with collision frame 0.
func (e *Estimator) Run(ctx context.Context, frames []string, outDir string) (Result, error) {
	if len(frames) == 0 {
		opsf("no frames to estimate ego motion from; returning empty trajectory")
		return Result{}, nil
	}

	procs := make([]Processed, 0, len(Methods))
	for _, m := range Methods {
		start := time.Now()
		flow, err := e.flow.EstimateFlow(ctx, frames, m)
		if err != nil {
			return Result{}, fmt.Errorf("%s flow: %w", m, err)
		}
		if len(flow) != len(frames) {
			return Result{}, fmt.Errorf("%s flow: got %d samples for %d frames", m, len(flow), len(frames))
		}
		diagf("%s flow over %d frames took %v", m, len(frames), time.Since(start))

		p := Process(m, flow, e.params)
		tracef("%s collision estimate: frame %d", m, p.Collision)
		procs = append(procs, p)

		if e.fs != nil {
			if err := WriteRawCSV(e.fs, outDir, m, flow); err != nil {
				return Result{}, err
			}
			if err := WriteProcessedCSV(e.fs, outDir, p); err != nil {
				return Result{}, err
			}
		}
	}

	res, err := Combine(procs)
	if err != nil {
		return Result{}, err
	}
	diagf("ensemble collision frame %d over %d frames", res.Collision, len(res.Ensemble))

	if e.fs != nil {
		if err := WriteEnsembleCSV(e.fs, outDir, res); err != nil {
			return Result{}, err
		}
		if err := WritePlot(e.fs, outDir, res); err != nil {
			opsf("trajectory plot skipped: %v", err)
		}
	}
	return res, nil
}
