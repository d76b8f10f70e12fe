package vision

import (
	"context"
	"fmt"
	"path/filepath"

	"gocv.io/x/gocv"

	"github.com/banshee-data/accident.report/internal/detection"
	"github.com/banshee-data/accident.report/internal/egomotion"
	"github.com/banshee-data/accident.report/internal/fsutil"
)

// BackgroundSubtractor runs MOG2 over a frame sequence and writes, per frame,
// the foreground mask, the newly appeared foreground and the background-only
// image.
type BackgroundSubtractor struct {
	fs  fsutil.FileSystem
	cfg MOG2Config
}

// NewBackgroundSubtractor returns a subtractor with the given MOG2 settings.
func NewBackgroundSubtractor(fs fsutil.FileSystem, cfg MOG2Config) *BackgroundSubtractor {
	return &BackgroundSubtractor{fs: fs, cfg: cfg}
}

// Run processes frames in order and returns the newly-appeared foreground
// pixel count keyed by frame index. outDir is wiped first.
func (b *BackgroundSubtractor) Run(ctx context.Context, frames []string, outDir string) (map[int]int, error) {
	if err := fsutil.ResetDir(b.fs, outDir); err != nil {
		return nil, err
	}
	counts := make(map[int]int, len(frames))
	if len(frames) == 0 {
		opsf("no frames for background subtraction")
		return counts, nil
	}

	mog := newMOG2(b.cfg)
	defer mog.Close()
	var tracker egomotion.ForegroundTracker

	step := max(1, len(frames)/10)
	for i, path := range frames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx, err := detection.FrameIndex(filepath.Base(path))
		if err != nil {
			diagf("skipping %s: %v", path, err)
			continue
		}
		if err := b.processFrame(mog, &tracker, path, outDir, idx, counts); err != nil {
			return nil, err
		}
		if (i+1)%step == 0 || i+1 == len(frames) {
			diagf("background subtraction %d/%d", i+1, len(frames))
		}
	}
	return counts, nil
}

func (b *BackgroundSubtractor) processFrame(mog *mog2, tracker *egomotion.ForegroundTracker,
	path, outDir string, idx int, counts map[int]int) error {
	frame, err := readImage(b.fs, path, gocv.IMReadColor)
	if err != nil {
		return err
	}
	defer frame.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	if err := gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray); err != nil {
		return fmt.Errorf("%s: grayscale: %w", path, err)
	}
	raw, err := mog.apply(gray)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	masks := tracker.Update(raw)
	counts[idx] = masks.NewCount

	rows, cols := frame.Rows(), frame.Cols()
	name := stem(path)
	for suffix, mask := range map[string][]bool{"_mask.png": masks.Foreground, "_new.png": masks.New} {
		m, err := maskMat(rows, cols, mask)
		if err != nil {
			return fmt.Errorf("%s%s: %w", name, suffix, err)
		}
		err = writePNG(b.fs, filepath.Join(outDir, name+suffix), m)
		m.Close()
		if err != nil {
			return err
		}
	}

	bgMask, err := maskMat(rows, cols, masks.Background)
	if err != nil {
		return fmt.Errorf("%s_bg.png: %w", name, err)
	}
	defer bgMask.Close()
	bgOnly := gocv.NewMat()
	defer bgOnly.Close()
	if err := gocv.BitwiseAndWithMask(frame, frame, &bgOnly, bgMask); err != nil {
		return fmt.Errorf("%s_bg.png: %w", name, err)
	}
	return writePNG(b.fs, filepath.Join(outDir, name+"_bg.png"), bgOnly)
}
