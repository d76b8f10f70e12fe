// Package frames extracts numbered still images from a video with ffmpeg.
package frames

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/accident.report/internal/detection"
	"github.com/banshee-data/accident.report/internal/fsutil"
)

var (
	// ErrSourceMissing is returned when the input video does not exist.
	ErrSourceMissing = errors.New("source video not found")
	// ErrDecodeFailed is returned when every decoder attempt failed.
	ErrDecodeFailed = errors.New("frame decode failed")
)

// Options control extraction.
type Options struct {
	// FFmpeg is the decoder binary; "ffmpeg" when empty.
	FFmpeg string
	// HardwareDecode tries CUDA decoding before the software decoder.
	HardwareDecode bool
	// MaxFPS caps the output rate. Zero keeps every frame.
	MaxFPS float64
}

// Extractor decodes videos into frame directories.
type Extractor struct {
	run  CommandRunner
	fs   fsutil.FileSystem
	opts Options
}

// NewExtractor returns an Extractor.
func NewExtractor(run CommandRunner, fs fsutil.FileSystem, opts Options) *Extractor {
	if opts.FFmpeg == "" {
		opts.FFmpeg = "ffmpeg"
	}
	return &Extractor{run: run, fs: fs, opts: opts}
}

// Extract decodes videoPath into root/id, wiping any previous contents, and
// returns that directory. Frames are named 00000.jpg, 00001.jpg and so on.
// A hardware decode failure falls back to the software decoder.
func (e *Extractor) Extract(ctx context.Context, videoPath, root, id string) (string, error) {
	if !e.fs.Exists(videoPath) {
		return "", fmt.Errorf("%w: %s", ErrSourceMissing, videoPath)
	}
	dir := filepath.Join(root, id)
	pattern := filepath.Join(dir, "%05d.jpg")

	var attempts [][]string
	if e.opts.HardwareDecode {
		attempts = append(attempts, e.args(videoPath, pattern, true))
	}
	attempts = append(attempts, e.args(videoPath, pattern, false))

	var lastErr error
	for i, args := range attempts {
		if err := fsutil.ResetDir(e.fs, dir); err != nil {
			return "", err
		}
		out, err := e.run.Run(ctx, e.opts.FFmpeg, args...)
		if err == nil {
			n, err := e.count(dir)
			if err != nil {
				diagf("count extracted frames: %v", err)
			}
			opsf("extracted %d frames from %s (hwaccel=%t)", n, filepath.Base(videoPath), e.opts.HardwareDecode && i == 0)
			return dir, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		lastErr = fmt.Errorf("%w: %v: %s", ErrDecodeFailed, err, tail(out, 512))
		diagf("decoder attempt %d failed: %v", i+1, lastErr)
	}
	return "", lastErr
}

func (e *Extractor) args(videoPath, pattern string, hw bool) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y"}
	if hw {
		args = append(args, "-hwaccel", "cuda")
	}
	args = append(args, "-i", videoPath)
	if e.opts.MaxFPS > 0 {
		args = append(args, "-vf", "fps="+strconv.FormatFloat(e.opts.MaxFPS, 'f', -1, 64))
	}
	return append(args, "-start_number", "0", "-q:v", "2", pattern)
}

func (e *Extractor) count(dir string) (int, error) {
	frames, err := List(e.fs, dir)
	return len(frames), err
}

// List returns the full paths of the frame images in dir ordered by the
// frame index encoded in their names. Files that are not numbered jpg or
// png frames are ignored.
func List(fs fsutil.FileSystem, dir string) ([]string, error) {
	names, err := fs.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list frames in %s: %w", dir, err)
	}
	type frame struct {
		idx  int
		path string
	}
	var frames []frame
	for _, name := range names {
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".jpg" && ext != ".png" {
			continue
		}
		idx, err := detection.FrameIndex(name)
		if err != nil {
			continue
		}
		frames = append(frames, frame{idx: idx, path: filepath.Join(dir, name)})
	}
	sort.SliceStable(frames, func(i, j int) bool { return frames[i].idx < frames[j].idx })
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.path
	}
	return out, nil
}

func tail(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}
