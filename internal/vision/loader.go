package vision

import (
	"context"

	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/accident.report/internal/fsutil"
)

// Image is a decoded frame and the path it came from. Callers own Mat and
// must Close it.
type Image struct {
	Path string
	Mat  gocv.Mat
}

// LoadImages decodes paths concurrently with at most workers decoders in
// flight. Frames that fail to decode are skipped and logged; the rest are
// returned in input order.
func LoadImages(ctx context.Context, fsys fsutil.FileSystem, paths []string, workers int, flags gocv.IMReadFlag) ([]Image, error) {
	if workers <= 0 {
		workers = 1
	}
	slots := make([]*gocv.Mat, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := readImage(fsys, p, flags)
			if err != nil {
				diagf("skipping frame: %v", err)
				return nil
			}
			slots[i] = &img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, m := range slots {
			if m != nil {
				m.Close()
			}
		}
		return nil, err
	}

	out := make([]Image, 0, len(paths))
	for i, m := range slots {
		if m != nil {
			out = append(out, Image{Path: paths[i], Mat: *m})
		}
	}
	tracef("loaded %d/%d frames with %d workers", len(out), len(paths), workers)
	return out, nil
}

// CloseImages releases every Mat in imgs.
func CloseImages(imgs []Image) {
	for _, img := range imgs {
		img.Mat.Close()
	}
}
