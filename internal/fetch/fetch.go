// Package fetch downloads the source video named by an analysis request and
// checks that it decodes before any analysis stage runs.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/banshee-data/accident.report/internal/fsutil"
	"github.com/banshee-data/accident.report/internal/httputil"
	"github.com/banshee-data/accident.report/internal/monitoring"
	"github.com/banshee-data/accident.report/internal/security"
)

var (
	// ErrDownload is returned when the source URL does not yield a video.
	ErrDownload = errors.New("video download failed")
	// ErrInvalidVideo is returned when the downloaded file does not decode
	// or reports no frames.
	ErrInvalidVideo = errors.New("invalid video")
)

// Prober validates a video file. vision.Prober satisfies it through
// ProbeFunc.
type Prober interface {
	Validate(ctx context.Context, path string) (frames int, err error)
}

// ProbeFunc adapts a function to Prober.
type ProbeFunc func(ctx context.Context, path string) (int, error)

// Validate calls f.
func (f ProbeFunc) Validate(ctx context.Context, path string) (int, error) { return f(ctx, path) }

// Downloader fetches videos into a run workspace.
type Downloader struct {
	client httputil.HTTPClient
	fs     fsutil.FileSystem
	probe  Prober
	// MaxBytes bounds the download size. Zero means no limit.
	MaxBytes int64
}

// NewDownloader returns a Downloader.
func NewDownloader(client httputil.HTTPClient, fs fsutil.FileSystem, probe Prober) *Downloader {
	return &Downloader{client: client, fs: fs, probe: probe}
}

// Download fetches url into dir/<videoID>.mp4 and validates it. An invalid
// file is removed before returning ErrInvalidVideo.
func (d *Downloader) Download(ctx context.Context, url, dir, videoID string) (string, error) {
	path := filepath.Join(dir, security.SanitizeFilename(videoID)+".mp4")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownload, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownload, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrDownload, resp.StatusCode)
	}

	if err := d.fs.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	w, err := d.fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	var body io.Reader = resp.Body
	if d.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, d.MaxBytes+1)
	}
	n, copyErr := io.Copy(w, body)
	closeErr := w.Close()
	if copyErr == nil && d.MaxBytes > 0 && n > d.MaxBytes {
		copyErr = fmt.Errorf("video exceeds %d bytes", d.MaxBytes)
	}
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = d.fs.RemoveAll(path)
		return "", fmt.Errorf("%w: %v", ErrDownload, err)
	}
	monitoring.Logf("downloaded %s (%d bytes)", path, n)

	if d.probe == nil {
		return path, nil
	}
	frames, err := d.probe.Validate(ctx, path)
	if err == nil && frames <= 0 {
		err = fmt.Errorf("%d frames", frames)
	}
	if err != nil {
		if rmErr := d.fs.RemoveAll(path); rmErr != nil {
			monitoring.Logf("failed to remove invalid video %s: %v", path, rmErr)
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidVideo, err)
	}
	return path, nil
}
