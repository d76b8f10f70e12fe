package vision

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"
)

// VideoInfo is what the decoder reports about a video file.
type VideoInfo struct {
	Frames int     `json:"frames"`
	FPS    float64 `json:"fps"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
}

// Prober opens video files with OpenCV.
type Prober struct{}

// Probe opens path and reads its stream properties. A file that cannot be
// opened or reports no frames is an error.
func (Prober) Probe(ctx context.Context, path string) (VideoInfo, error) {
	if err := ctx.Err(); err != nil {
		return VideoInfo{}, err
	}
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return VideoInfo{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer vc.Close()
	if !vc.IsOpened() {
		return VideoInfo{}, fmt.Errorf("open %s: decoder refused file", path)
	}
	info := VideoInfo{
		Frames: int(vc.Get(gocv.VideoCaptureFrameCount)),
		FPS:    vc.Get(gocv.VideoCaptureFPS),
		Width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
	}
	if info.Frames <= 0 {
		return info, fmt.Errorf("%s reports %d frames", path, info.Frames)
	}
	tracef("probe %s: %+v", path, info)
	return info, nil
}
