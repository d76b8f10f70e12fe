package vision

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/accident.report/internal/config"
	"github.com/banshee-data/accident.report/internal/fsutil"
)

// Models is the set of networks loaded once at start-up and shared by every
// request.
type Models struct {
	Accelerator Accelerator
	Detector    *Detector
	Direction   *SequenceModel
	Type        *TextModel
}

// LoadModels loads every network named in cfg. The detector is required;
// the direction and type networks are optional and reported as not ready
// when absent.
func LoadModels(ctx context.Context, cfg *config.PipelineConfig, fs fsutil.FileSystem) (*Models, error) {
	acc := DetectAccelerator(ctx)
	if err := RequireAccelerator(acc, cfg.GetRequireGPU()); err != nil {
		return nil, err
	}
	useCUDA := acc.Available()
	opsf("accelerator: %d device(s)", len(acc.Devices))

	m := &Models{Accelerator: acc}
	det, err := NewDetector(DetectorConfig{
		ModelPath:  cfg.GetDetectorModelPath(),
		InputSize:  cfg.GetDetectorInputSize(),
		Confidence: cfg.GetConfidenceThreshold(),
		NMS:        cfg.GetNMSThreshold(),
		BatchSize:  cfg.GetDetectorBatchSize(),
		Workers:    cfg.GetLoaderWorkers(),
		UseCUDA:    useCUDA,
	}, fs)
	if err != nil {
		return nil, fmt.Errorf("detector: %w", err)
	}
	m.Detector = det

	if seq, err := LoadSequenceModel(cfg.GetDirectionModelPath(), useCUDA); err == nil {
		m.Direction = seq
	} else {
		opsf("direction model unavailable: %v", err)
	}
	if txt, err := LoadTextModel(cfg.GetTypeModelPath(), useCUDA); err == nil {
		m.Type = txt
	} else {
		opsf("accident type model unavailable: %v", err)
	}
	return m, nil
}

// Ready reports per-model load state for health checks.
func (m *Models) Ready() map[string]bool {
	if m == nil {
		return map[string]bool{"detector": false, "direction": false, "accident_type": false}
	}
	return map[string]bool{
		"detector":      m.Detector != nil,
		"direction":     m.Direction != nil,
		"accident_type": m.Type != nil,
	}
}

// Close releases every loaded network.
func (m *Models) Close() error {
	var errs []error
	if m.Detector != nil {
		errs = append(errs, m.Detector.Close())
	}
	if m.Direction != nil {
		errs = append(errs, m.Direction.Close())
	}
	if m.Type != nil {
		errs = append(errs, m.Type.Close())
	}
	return errors.Join(errs...)
}
