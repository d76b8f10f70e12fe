package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/banshee-data/accident.report/internal/accidenttype"
	"github.com/banshee-data/accident.report/internal/config"
	"github.com/banshee-data/accident.report/internal/detection"
	"github.com/banshee-data/accident.report/internal/direction"
	"github.com/banshee-data/accident.report/internal/egomotion"
	"github.com/banshee-data/accident.report/internal/fault"
	"github.com/banshee-data/accident.report/internal/frames"
	"github.com/banshee-data/accident.report/internal/fsutil"
	"github.com/banshee-data/accident.report/internal/meta"
	"github.com/banshee-data/accident.report/internal/report"
	"github.com/banshee-data/accident.report/internal/timeline"
	"github.com/banshee-data/accident.report/internal/trafficlight"
)

// Downloader fetches the request's video into a directory.
type Downloader interface {
	Download(ctx context.Context, url, dir, videoID string) (string, error)
}

// FrameExtractor decodes a video into a frame directory.
type FrameExtractor interface {
	Extract(ctx context.Context, videoPath, root, id string) (string, error)
}

// ObjectDetector produces per-frame detections.
type ObjectDetector interface {
	Detect(ctx context.Context, frames []string) (detection.Set, error)
}

// BackgroundSubtractor writes foreground masks and returns newly appeared
// foreground counts per frame index.
type BackgroundSubtractor interface {
	Run(ctx context.Context, frames []string, outDir string) (map[int]int, error)
}

// TypeClassifier assigns an accident-type code.
type TypeClassifier interface {
	Classify(ctx context.Context, in accidenttype.Input) (accidenttype.Result, error)
}

// FaultResolver looks up the fault split for a code.
type FaultResolver interface {
	Resolve(code, damage string) fault.Outcome
}

// Deps are the stage implementations. They are shared across runs and must
// be safe for concurrent use.
type Deps struct {
	Downloader Downloader
	Extractor  FrameExtractor
	Detector   ObjectDetector
	Subtractor BackgroundSubtractor
	Flow       egomotion.FlowEstimator
	Direction  direction.SequenceModel
	Type       TypeClassifier
	Fault      FaultResolver
}

// Pipeline runs analyses. It holds no per-run state.
type Pipeline struct {
	cfg     *config.PipelineConfig
	fs      fsutil.FileSystem
	workdir string
	deps    Deps

	ego       egomotion.Params
	timeline  timeline.Params
	meta      meta.Params
	direction *direction.Classifier
}

// New returns a Pipeline rooted at workdir.
func New(cfg *config.PipelineConfig, fs fsutil.FileSystem, workdir string, deps Deps) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		fs:        fs,
		workdir:   workdir,
		deps:      deps,
		ego:       egomotion.ParamsFromConfig(cfg),
		timeline:  timeline.ParamsFromConfig(cfg),
		meta:      meta.ParamsFromConfig(cfg),
		direction: direction.NewClassifier(deps.Direction),
	}
}

// run carries the state of one analysis.
type run struct {
	p   *Pipeline
	req report.Request
	res Result
}

// Run downloads the request's video and analyses it.
func (p *Pipeline) Run(ctx context.Context, req report.Request) (Result, error) {
	r, err := p.start(ctx, req)
	if err != nil {
		return Result{}, err
	}
	src, err := stage(ctx, r, StageDownload, func() (Source, error) {
		path, err := p.deps.Downloader.Download(ctx, req.PresignedURL, r.res.Workspace.Dir, r.videoID())
		return Source{VideoPath: path}, err
	})
	if err != nil {
		return r.res, err
	}
	r.res.Source = src
	return r.analyze(ctx)
}

// RunFile analyses a video already on disk.
func (p *Pipeline) RunFile(ctx context.Context, req report.Request, src Source) (Result, error) {
	r, err := p.start(ctx, req)
	if err != nil {
		return Result{}, err
	}
	r.res.Source = src
	return r.analyze(ctx)
}

func (p *Pipeline) start(ctx context.Context, req report.Request) (*run, error) {
	r := &run{p: p, req: req}
	ws, err := stage(ctx, r, StageWorkspace, func() (Workspace, error) {
		return NewWorkspace(p.fs, p.workdir, req.UserID, req.VideoID)
	})
	if err != nil {
		return nil, err
	}
	r.res.RunID = ws.RunID
	r.res.Workspace = ws
	opsf("run %s: user=%d video=%d file=%q", ws.RunID, req.UserID, req.VideoID, req.FileName)
	return r, nil
}

func (r *run) videoID() string { return strconv.FormatInt(r.req.VideoID, 10) }

// analyze runs every stage after the source video is available.
func (r *run) analyze(ctx context.Context) (Result, error) {
	p := r.p
	ws := r.res.Workspace
	started := time.Now()

	fr, err := stage(ctx, r, StageFrames, func() (Frames, error) {
		dir, err := p.deps.Extractor.Extract(ctx, r.res.Source.VideoPath, ws.FramesRoot, "frames")
		if err != nil {
			return Frames{}, err
		}
		paths, err := frames.List(p.fs, dir)
		return Frames{Dir: dir, Paths: paths}, err
	})
	if err != nil {
		return r.res, err
	}
	r.res.Frames = fr
	if len(fr.Paths) == 0 {
		opsf("run %s: decoder produced no frames; continuing with empty inputs", ws.RunID)
	}

	set, err := stage(ctx, r, StageDetect, func() (detection.Set, error) {
		s, err := p.deps.Detector.Detect(ctx, fr.Paths)
		if err != nil {
			return nil, err
		}
		return s, writeRecord(p.fs, ws, StageDetect, s)
	})
	if err != nil {
		return r.res, err
	}
	r.res.Detections = set

	bg, err := stage(ctx, r, StageBackground, func() (Background, error) {
		if dir := r.res.Source.MaskDir; dir != "" {
			counts, err := timeline.ReadForeground(p.fs, dir)
			if err != nil {
				return Background{}, err
			}
			if counts == nil {
				diagf("run %s: no %s in %s; collision falls back to min area", ws.RunID, timeline.ForegroundFile, dir)
			}
			return Background{Dir: dir, NewForeground: counts}, nil
		}
		counts, err := p.deps.Subtractor.Run(ctx, fr.Paths, ws.BackgroundDir)
		if err != nil {
			return Background{}, err
		}
		return Background{Dir: ws.BackgroundDir, NewForeground: counts}, timeline.WriteForeground(p.fs, ws.BackgroundDir, counts)
	})
	if err != nil {
		return r.res, err
	}
	r.res.Background = bg

	ego, err := stage(ctx, r, StageEgo, func() (egomotion.Result, error) {
		return egomotion.NewEstimator(p.deps.Flow, p.fs, p.ego).Run(ctx, fr.Paths, ws.TrajectoryDir)
	})
	if err != nil {
		return r.res, err
	}
	r.res.Ego = Ego{Ensemble: ego.Ensemble, Collision: ego.Collision}

	dir, err := stage(ctx, r, StageDirection, func() (direction.Result, error) {
		d, err := p.direction.Classify(ctx, set)
		if err != nil {
			return d, err
		}
		return d, writeRecord(p.fs, ws, StageDirection, d)
	})
	if err != nil {
		return r.res, err
	}
	r.res.Direction = dir

	signals, err := stage(ctx, r, StageSignals, func() ([]timeline.Event, error) {
		ev := trafficlight.Events(set)
		return ev, writeRecord(p.fs, ws, StageSignals, ev)
	})
	if err != nil {
		return r.res, err
	}
	r.res.Signals = signals

	tl, err := stage(ctx, r, StageTimeline, func() (timeline.Result, error) {
		t := timeline.Reconstruct(timeline.Input{
			Detections: set,
			Foreground: bg.NewForeground,
			Signals:    signals,
			Direction:  string(dir.Direction),
		}, p.timeline)
		return t, writeRecord(p.fs, ws, StageTimeline, t)
	})
	if err != nil {
		return r.res, err
	}
	r.res.Timeline = tl

	info, err := stage(ctx, r, StageSignalInfo, func() (trafficlight.Info, error) {
		return trafficlight.Summarize(signals, tl.Collision.FrameIdx), nil
	})
	if err != nil {
		return r.res, err
	}
	r.res.SignalInfo = info

	window, err := stage(ctx, r, StageEgoWindow, func() (*egomotion.Window, error) {
		w, ok := egomotion.ExtractWindow(ego.Ensemble, tl.FirstSeen, tl.Collision.FrameIdx)
		if !ok {
			diagf("run %s: no ego window for frames %d-%d over %d samples", ws.RunID, tl.FirstSeen, tl.Collision.FrameIdx, len(ego.Ensemble))
			return nil, nil
		}
		return &w, egomotion.WriteWindowCSV(p.fs, ws.TrajectoryDir, w)
	})
	if err != nil {
		return r.res, err
	}
	r.res.Ego.Window = window

	desc, err := stage(ctx, r, StageMeta, func() (meta.Descriptor, error) {
		return meta.Infer(meta.Input{
			VideoID:   r.videoID(),
			Window:    window,
			Direction: dir.Direction,
			Timeline:  tl,
			Signals:   info,
		}, p.meta), nil
	})
	if err != nil {
		return r.res, err
	}

	typeIn, err := stage(ctx, r, StageTypeInput, func() (accidenttype.Input, error) {
		in := accidenttype.BuildInput(r.videoID(), set.Track(detection.ClassVehicleB), dir.Direction, tl.Collision.FrameIdx)
		return in, accidenttype.WriteInput(p.fs, ws.ModelInputDir, in)
	})
	if err != nil {
		return r.res, err
	}
	r.res.TypeInput = typeIn

	typ, err := stage(ctx, r, StageType, func() (accidenttype.Result, error) {
		if p.deps.Type == nil {
			return accidenttype.Result{}, accidenttype.ErrModelMissing
		}
		return p.deps.Type.Classify(ctx, typeIn)
	})
	if err != nil {
		return r.res, err
	}
	r.res.Type = typ
	desc = desc.WithDamageHint(typ.DamageHint)
	r.res.Descriptor = desc
	if err := writeRecord(p.fs, ws, StageMeta, desc); err != nil {
		return r.res, &StageError{Stage: StageMeta, Kind: KindInfrastructure, Err: err}
	}

	outcome, err := stage(ctx, r, StageFault, func() (fault.Outcome, error) {
		if p.deps.Fault == nil {
			return fault.Outcome{}, errors.New("fault table not loaded")
		}
		o := p.deps.Fault.Resolve(typ.Code, desc.DamageLocation)
		return o, writeRecord(p.fs, ws, StageFault, o)
	})
	if err != nil {
		return r.res, err
	}
	r.res.Fault = outcome

	resp, err := stage(ctx, r, StageReport, func() (report.Response, error) {
		out := report.Assemble(report.Inputs{
			RunID:      ws.RunID,
			Request:    r.req,
			Descriptor: desc,
			Timeline:   tl,
			Type:       typ,
			Fault:      outcome,
		})
		return out, writeRecord(p.fs, ws, StageReport, out)
	})
	if err != nil {
		return r.res, err
	}
	r.res.Report = resp

	opsf("run %s: done in %v (collision frame %d, type %q, fault %d/%d)",
		ws.RunID, time.Since(started), tl.Collision.FrameIdx, resp.AccidentTypeCode, resp.FaultA, resp.FaultB)
	return r.res, nil
}

// stage runs fn as the named stage, recording its duration and converting
// errors and panics into a StageError.
func stage[T any](ctx context.Context, r *run, name Stage, fn func() (T, error)) (out T, err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			diagf("stage %s panicked: %v\n%s", name, rec, debug.Stack())
			var zero T
			out, err = zero, &StageError{Stage: name, Kind: KindUnexpected, Err: fmt.Errorf("panic: %v", rec)}
		}
		d := time.Since(start)
		r.res.Timings = append(r.res.Timings, StageTiming{Stage: name, Duration: d})
		if err != nil {
			opsf("run %s: %v", r.res.RunID, err)
		} else {
			tracef("run %s: stage %s took %v", r.res.RunID, name, d)
		}
	}()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, &StageError{Stage: name, Kind: KindInfrastructure, Err: ctxErr}
	}
	out, err = fn()
	if err != nil {
		err = &StageError{Stage: name, Kind: classify(err), Err: err}
	}
	return out, err
}
