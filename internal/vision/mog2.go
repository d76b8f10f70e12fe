package vision

import (
	"fmt"

	"gocv.io/x/gocv"
)

// MOG2Config holds the Gaussian-mixture background model settings.
type MOG2Config struct {
	History      int
	VarThreshold float64
	// LearningRate is fixed for every frame after the first, which always
	// initialises the model.
	LearningRate float64
}

// mog2 is a background model plus its reusable foreground buffer.
type mog2 struct {
	sub  gocv.BackgroundSubtractorMOG2
	fg   gocv.Mat
	rate float64
}

func newMOG2(cfg MOG2Config) *mog2 {
	return &mog2{
		sub:  gocv.NewBackgroundSubtractorMOG2WithParams(cfg.History, cfg.VarThreshold, false),
		fg:   gocv.NewMat(),
		rate: cfg.LearningRate,
	}
}

// apply feeds gray into the model and returns the foreground mask bytes.
// The slice aliases the internal buffer and is valid until the next call.
func (m *mog2) apply(gray gocv.Mat) ([]byte, error) {
	if err := m.sub.ApplyWithLearningRate(gray, &m.fg, m.rate); err != nil {
		return nil, fmt.Errorf("mog2: %w", err)
	}
	raw, err := m.fg.DataPtrUint8()
	if err != nil {
		return nil, fmt.Errorf("mog2 mask: %w", err)
	}
	return raw, nil
}

func (m *mog2) Close() {
	m.fg.Close()
	m.sub.Close()
}
