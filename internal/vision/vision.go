// Package vision holds the OpenCV-backed adapters used by the analysis
// pipeline: frame loading, the object detector, MOG2 background subtraction,
// optical flow for ego-motion and the ONNX sequence and text models.
//
// Everything here is a thin layer over gocv. The numerical post-processing
// lives in pure-Go packages so it can be tested without OpenCV.
package vision

import (
	"fmt"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"

	"github.com/banshee-data/accident.report/internal/egomotion"
	"github.com/banshee-data/accident.report/internal/fsutil"
)

// readImage decodes an image file read through fsys.
func readImage(fsys fsutil.FileSystem, path string, flags gocv.IMReadFlag) (gocv.Mat, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("read %s: %w", path, err)
	}
	img, err := gocv.IMDecode(data, flags)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if img.Empty() {
		img.Close()
		return gocv.Mat{}, fmt.Errorf("decode %s: empty image", path)
	}
	return img, nil
}

// writePNG encodes img as PNG and writes it through fsys.
func writePNG(fsys fsutil.FileSystem, path string, img gocv.Mat) error {
	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	defer buf.Close()
	if err := fsys.WriteFile(path, buf.GetBytes(), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// maskMat builds an 8-bit single-channel image from a boolean mask.
func maskMat(rows, cols int, mask []bool) (gocv.Mat, error) {
	return gocv.NewMatFromBytes(rows, cols, gocv.MatTypeCV8U, egomotion.MaskBytes(mask))
}

// stem returns the frame file name without directory or extension.
func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
