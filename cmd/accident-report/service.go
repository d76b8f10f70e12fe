package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/banshee-data/accident.report/internal/accidenttype"
	"github.com/banshee-data/accident.report/internal/config"
	"github.com/banshee-data/accident.report/internal/egomotion"
	"github.com/banshee-data/accident.report/internal/fault"
	"github.com/banshee-data/accident.report/internal/fetch"
	"github.com/banshee-data/accident.report/internal/frames"
	"github.com/banshee-data/accident.report/internal/fsutil"
	"github.com/banshee-data/accident.report/internal/httputil"
	"github.com/banshee-data/accident.report/internal/pipeline"
	"github.com/banshee-data/accident.report/internal/vision"
)

func configureLogging(diag, trace bool) {
	var diagW, traceW io.Writer
	if diag {
		diagW = os.Stderr
	}
	if trace {
		traceW = os.Stderr
	}
	pipeline.SetLogWriters(os.Stderr, diagW, traceW)
	vision.SetLogWriters(os.Stderr, diagW, traceW)
	frames.SetLogWriters(os.Stderr, diagW, traceW)
	egomotion.SetLogWriters(os.Stderr, diagW, traceW)
}

// service is the process-wide state: models and the reference tables are
// loaded once and shared read-only by every request.
type service struct {
	Models   *vision.Models
	Pipeline *pipeline.Pipeline
}

func (s *service) Close() error {
	return s.Models.Close()
}

func newService(ctx context.Context, cfg *config.PipelineConfig, workdir string) (*service, error) {
	// Device selection must precede any CUDA initialisation.
	if err := vision.ConfigureDevices(cfg.GetCUDAVisibleDevices()); err != nil {
		return nil, fmt.Errorf("configure devices: %w", err)
	}
	fs := fsutil.OSFileSystem{}

	models, err := vision.LoadModels(ctx, cfg, fs)
	if err != nil {
		return nil, err
	}

	mog := vision.MOG2Config{
		History:      cfg.GetMOG2History(),
		VarThreshold: cfg.GetMOG2VarThreshold(),
		LearningRate: cfg.GetMOG2LearningRate(),
	}
	deps := pipeline.Deps{
		Downloader: fetch.NewDownloader(
			httputil.NewStandardClient(&http.Client{Timeout: 10 * time.Minute}),
			fs,
			fetch.ProbeFunc(func(ctx context.Context, path string) (int, error) {
				info, err := vision.Prober{}.Probe(ctx, path)
				return info.Frames, err
			}),
		),
		Extractor: frames.NewExtractor(frames.ExecRunner{}, fs, frames.Options{
			HardwareDecode: cfg.GetHardwareDecode(),
			MaxFPS:         cfg.GetMaxFPS(),
		}),
		Detector:   models.Detector,
		Subtractor: vision.NewBackgroundSubtractor(fs, mog),
		Flow: vision.NewFlowEstimator(fs, vision.FlowConfig{
			GridStep:              cfg.GetFlowGridStep(),
			MOG2:                  mog,
			RANSACMinQuality:      cfg.GetRANSACMinQuality(),
			RANSACReprojThreshold: cfg.GetRANSACReprojThreshold(),
		}),
	}
	// Interface fields stay nil rather than holding typed nil pointers, so
	// the stages report the model as missing.
	if models.Direction != nil {
		deps.Direction = models.Direction
	}
	if clf, err := loadTypeClassifier(cfg, models.Type); err != nil {
		log.Printf("accident type classifier unavailable: %v", err)
	} else {
		deps.Type = clf
	}
	if tbl, err := fault.LoadTable(cfg.GetFaultTablePath()); err != nil {
		log.Printf("fault table unavailable: %v", err)
	} else {
		log.Printf("fault table: %d cases from %s", tbl.Len(), cfg.GetFaultTablePath())
		deps.Fault = tbl
	}

	if err := os.MkdirAll(workdir, 0o755); err != nil {
		models.Close()
		return nil, fmt.Errorf("create workdir: %w", err)
	}
	return &service{
		Models:   models,
		Pipeline: pipeline.New(cfg, fs, workdir, deps),
	}, nil
}

func loadTypeClassifier(cfg *config.PipelineConfig, model *vision.TextModel) (*accidenttype.Classifier, error) {
	if model == nil {
		return nil, accidenttype.ErrModelMissing
	}
	tok, err := accidenttype.LoadTokenizer(cfg.GetTypeVocabPath(), cfg.GetTypeMaxTokens())
	if err != nil {
		return nil, fmt.Errorf("vocab: %w", err)
	}

	lf, err := os.Open(cfg.GetLabelMapPath())
	if err != nil {
		return nil, fmt.Errorf("label map: %w", err)
	}
	defer lf.Close()
	labels, err := accidenttype.ParseLabelMap(lf)
	if err != nil {
		return nil, fmt.Errorf("label map: %w", err)
	}
	return accidenttype.NewClassifier(tok, model, labels, cfg.GetTypeDenylist()), nil
}
