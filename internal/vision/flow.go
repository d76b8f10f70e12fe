package vision

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/banshee-data/accident.report/internal/egomotion"
	"github.com/banshee-data/accident.report/internal/fsutil"
)

// cv::RANSAC
const ransacMethod = 8

// FlowConfig holds optical-flow settings.
type FlowConfig struct {
	GridStep              int
	MOG2                  MOG2Config
	RANSACMinQuality      float64
	RANSACReprojThreshold float64
}

// FlowEstimator measures background displacement between consecutive frames
// with one of the ego-motion methods. Moving objects are masked out with a
// MOG2 subtractor that runs alongside the flow.
type FlowEstimator struct {
	fs  fsutil.FileSystem
	cfg FlowConfig
}

// NewFlowEstimator returns a FlowEstimator reading frames through fs.
func NewFlowEstimator(fs fsutil.FileSystem, cfg FlowConfig) *FlowEstimator {
	if cfg.GridStep <= 0 {
		cfg.GridStep = 15
	}
	return &FlowEstimator{fs: fs, cfg: cfg}
}

// EstimateFlow implements egomotion.FlowEstimator. Each call starts with a
// fresh subtractor so methods do not influence each other.
func (f *FlowEstimator) EstimateFlow(ctx context.Context, frames []string, method egomotion.Method) ([]egomotion.FlowSample, error) {
	out := make([]egomotion.FlowSample, len(frames))
	if len(frames) < 2 {
		return out, nil
	}

	prev, err := readImage(f.fs, frames[0], gocv.IMReadGrayScale)
	if err != nil {
		return nil, err
	}
	defer func() { prev.Close() }()

	w, h := prev.Cols(), prev.Rows()
	grid := egomotion.GridPoints(w, h, f.cfg.GridStep)

	mog := newMOG2(f.cfg.MOG2)
	defer mog.Close()
	var tracker egomotion.ForegroundTracker

	step := max(1, len(frames)/10)
	for i := 1; i < len(frames); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cur, err := readImage(f.fs, frames[i], gocv.IMReadGrayScale)
		if err != nil {
			return nil, err
		}
		if cur.Cols() != w || cur.Rows() != h {
			cur.Close()
			return nil, fmt.Errorf("frame %s is %dx%d, expected %dx%d", frames[i], cur.Cols(), cur.Rows(), w, h)
		}

		raw, err := mog.apply(cur)
		if err != nil {
			cur.Close()
			return nil, fmt.Errorf("%s: %w", frames[i], err)
		}
		masks := tracker.Update(raw)

		s, err := f.sample(method, prev, cur, grid, masks.Background, w)
		if err != nil {
			cur.Close()
			return nil, err
		}
		out[i] = s

		prev.Close()
		prev = cur

		if i%step == 0 {
			tracef("[%s] %d/%d", method, i, len(frames))
		}
	}
	return out, nil
}

func (f *FlowEstimator) sample(method egomotion.Method, prev, cur gocv.Mat, grid []egomotion.Point, background []bool, w int) (egomotion.FlowSample, error) {
	switch method {
	case egomotion.MethodSparseLK:
		pts := egomotion.SelectBackground(grid, background, w)
		if len(pts) == 0 {
			return egomotion.FlowSample{}, nil
		}
		next, ok, err := trackPoints(prev, cur, pts)
		if err != nil {
			return egomotion.FlowSample{}, err
		}
		return egomotion.SparseSample(pts, next, ok), nil

	case egomotion.MethodDenseFarneback:
		flow := gocv.NewMat()
		defer flow.Close()
		if err := gocv.CalcOpticalFlowFarneback(prev, cur, &flow, 0.5, 3, 15, 3, 5, 1.2, 0); err != nil {
			return egomotion.FlowSample{}, fmt.Errorf("dense flow: %w", err)
		}
		data, err := flow.DataPtrFloat32()
		if err != nil {
			return egomotion.FlowSample{}, fmt.Errorf("dense flow: %w", err)
		}
		return egomotion.DenseSample(data, background), nil

	case egomotion.MethodRANSACAffine:
		next, ok, err := trackPoints(prev, cur, grid)
		if err != nil {
			return egomotion.FlowSample{}, err
		}
		return egomotion.RANSACSample(grid, next, ok, f.cfg.RANSACMinQuality, f.fitAffine), nil
	}
	return egomotion.FlowSample{}, fmt.Errorf("unknown flow method %q", method)
}

// trackPoints runs pyramidal Lucas-Kanade from prev to cur. An empty status
// vector is reported as every point lost.
func trackPoints(prev, cur gocv.Mat, pts []egomotion.Point) ([]egomotion.Point, []bool, error) {
	p0 := gocv.NewMatWithSize(len(pts), 1, gocv.MatTypeCV32FC2)
	defer p0.Close()
	buf, err := p0.DataPtrFloat32()
	if err != nil {
		return nil, nil, fmt.Errorf("lk points: %w", err)
	}
	for i, p := range pts {
		buf[2*i] = p.X
		buf[2*i+1] = p.Y
	}

	p1 := gocv.NewMat()
	defer p1.Close()
	status := gocv.NewMat()
	defer status.Close()
	errs := gocv.NewMat()
	defer errs.Close()

	criteria := gocv.NewTermCriteria(gocv.Count|gocv.EPS, 10, 0.03)
	if err := gocv.CalcOpticalFlowPyrLKWithParams(prev, cur, p0, p1, &status, &errs, image.Pt(15, 15), 2, criteria, 0, 1e-4); err != nil {
		return nil, nil, fmt.Errorf("lk: %w", err)
	}

	ok := make([]bool, len(pts))
	if status.Empty() || p1.Empty() {
		return make([]egomotion.Point, len(pts)), ok, nil
	}
	st, err := status.DataPtrUint8()
	if err != nil {
		return nil, nil, fmt.Errorf("lk status: %w", err)
	}
	moved, err := p1.DataPtrFloat32()
	if err != nil {
		return nil, nil, fmt.Errorf("lk result: %w", err)
	}
	next := make([]egomotion.Point, len(pts))
	for i := range pts {
		if i < len(st) && 2*i+1 < len(moved) {
			ok[i] = st[i] == 1
			next[i] = egomotion.Point{X: moved[2*i], Y: moved[2*i+1]}
		}
	}
	return next, ok, nil
}

// fitAffine estimates a RANSAC partial affine transform and returns its
// translation column.
func (f *FlowEstimator) fitAffine(from, to []egomotion.Point) (float64, float64, bool) {
	src := gocv.NewPoint2fVectorFromPoints(toPoint2f(from))
	defer src.Close()
	dst := gocv.NewPoint2fVectorFromPoints(toPoint2f(to))
	defer dst.Close()
	inliers := gocv.NewMat()
	defer inliers.Close()

	m := gocv.EstimateAffinePartial2DWithParams(src, dst, inliers, ransacMethod, f.cfg.RANSACReprojThreshold, 2000, 0.99, 10)
	defer m.Close()
	if m.Empty() {
		return 0, 0, false
	}
	return m.GetDoubleAt(0, 2), m.GetDoubleAt(1, 2), true
}

func toPoint2f(pts []egomotion.Point) []gocv.Point2f {
	out := make([]gocv.Point2f, len(pts))
	for i, p := range pts {
		out[i] = gocv.Point2f{X: p.X, Y: p.Y}
	}
	return out
}
