package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/banshee-data/accident.report/internal/detection"
	"github.com/banshee-data/accident.report/internal/fsutil"
)

// ErrModelMissing is returned when an ONNX model file cannot be loaded.
var ErrModelMissing = errors.New("model not loaded")

// DetectorConfig holds detector settings.
type DetectorConfig struct {
	ModelPath  string
	InputSize  int
	NumClasses int
	Confidence float64
	NMS        float64
	BatchSize  int
	Workers    int
	UseCUDA    bool
}

// Detector runs the YOLO accident detector over extracted frames. One
// Detector is shared by all requests; inference is serialised because a
// gocv Net is not safe for concurrent use.
type Detector struct {
	cfg DetectorConfig
	fs  fsutil.FileSystem

	mu  sync.Mutex
	net gocv.Net
}

// NewDetector loads the detector weights from cfg.ModelPath.
func NewDetector(cfg DetectorConfig, fs fsutil.FileSystem) (*Detector, error) {
	if cfg.NumClasses <= 0 {
		cfg.NumClasses = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 60
	}
	net, err := loadNet(cfg.ModelPath, cfg.UseCUDA)
	if err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg, fs: fs, net: net}, nil
}

// Detect runs the detector over frames, batch by batch, and returns one
// record per decodable frame sorted by frame index. Frames whose names do
// not carry an index are skipped.
func (d *Detector) Detect(ctx context.Context, frames []string) (detection.Set, error) {
	set := make(detection.Set, 0, len(frames))
	for start := 0; start < len(frames); start += d.cfg.BatchSize {
		end := min(start+d.cfg.BatchSize, len(frames))

		t0 := time.Now()
		imgs, err := LoadImages(ctx, d.fs, frames[start:end], d.cfg.Workers, gocv.IMReadColor)
		if err != nil {
			return nil, err
		}
		loaded := time.Since(t0)

		for _, img := range imgs {
			if err := ctx.Err(); err != nil {
				CloseImages(imgs)
				return nil, err
			}
			name := filepath.Base(img.Path)
			idx, err := detection.FrameIndex(name)
			if err != nil {
				diagf("skipping %s: %v", name, err)
				continue
			}
			boxes, err := d.detectOne(img.Mat)
			if err != nil {
				CloseImages(imgs)
				return nil, fmt.Errorf("detect %s: %w", name, err)
			}
			set = append(set, detection.Frame{Name: name, Index: idx, Boxes: boxes})
		}
		CloseImages(imgs)
		diagf("batch %d-%d: load %v, total %v", start, end-1, loaded, time.Since(t0))
	}
	set.Sort()
	opsf("detected objects in %d frames", len(set))
	return set, nil
}

func (d *Detector) detectOne(img gocv.Mat) ([]detection.Box, error) {
	size := d.cfg.InputSize
	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, err
	}
	boxes, err := detection.DecodeYOLO(data, out.Size(), detection.DecodeParams{
		NumClasses: d.cfg.NumClasses,
		ScaleX:     float64(img.Cols()) / float64(size),
		ScaleY:     float64(img.Rows()) / float64(size),
		Confidence: d.cfg.Confidence,
	})
	if err != nil {
		return nil, err
	}
	kept := detection.NMS(boxes, d.cfg.NMS)
	if kept == nil {
		kept = []detection.Box{}
	}
	return kept, nil
}

// Close releases the network.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// loadNet reads an ONNX network and selects the CUDA backend when asked.
func loadNet(path string, useCUDA bool) (gocv.Net, error) {
	if path == "" {
		return gocv.Net{}, fmt.Errorf("%w: empty model path", ErrModelMissing)
	}
	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		return gocv.Net{}, fmt.Errorf("%w: %s", ErrModelMissing, path)
	}
	backend, target := gocv.NetBackendDefault, gocv.NetTargetCPU
	if useCUDA {
		backend, target = gocv.NetBackendCUDA, gocv.NetTargetCUDA
	}
	if err := net.SetPreferableBackend(backend); err != nil {
		net.Close()
		return gocv.Net{}, fmt.Errorf("%s: backend: %w", path, err)
	}
	if err := net.SetPreferableTarget(target); err != nil {
		net.Close()
		return gocv.Net{}, fmt.Errorf("%s: target: %w", path, err)
	}
	opsf("loaded %s (cuda=%t)", path, useCUDA)
	return net, nil
}
