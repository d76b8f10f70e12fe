package pipeline

import (
	"path/filepath"
	"time"

	"github.com/banshee-data/accident.report/internal/accidenttype"
	"github.com/banshee-data/accident.report/internal/detection"
	"github.com/banshee-data/accident.report/internal/direction"
	"github.com/banshee-data/accident.report/internal/egomotion"
	"github.com/banshee-data/accident.report/internal/fault"
	"github.com/banshee-data/accident.report/internal/fsutil"
	"github.com/banshee-data/accident.report/internal/meta"
	"github.com/banshee-data/accident.report/internal/report"
	"github.com/banshee-data/accident.report/internal/timeline"
	"github.com/banshee-data/accident.report/internal/trafficlight"
)

// RecordSchemaVersion is written into every persisted stage record.
const RecordSchemaVersion = 1

// Source is the download stage record.
type Source struct {
	VideoPath string `json:"video_path"`
	// MaskDir, when set, holds the foreground counts of an earlier
	// background subtraction, which is then not rerun.
	MaskDir string `json:"mask_dir,omitempty"`
}

// Frames is the frame extraction record.
type Frames struct {
	Dir   string   `json:"dir"`
	Paths []string `json:"paths"`
}

// Background is the background subtraction record.
type Background struct {
	Dir string `json:"dir"`
	// NewForeground maps frame index to newly appeared foreground pixels.
	NewForeground map[int]int `json:"new_foreground"`
}

// Ego is the ego-trajectory record. Window is nil when the timeline gave no
// usable first-seen to collision span.
type Ego struct {
	Ensemble  []float64         `json:"ensemble"`
	Collision int               `json:"collision_frame"`
	Window    *egomotion.Window `json:"window,omitempty"`
}

// StageTiming is how long one stage took.
type StageTiming struct {
	Stage    Stage         `json:"stage"`
	Duration time.Duration `json:"duration_ns"`
}

// Result holds every stage record of a completed run.
type Result struct {
	RunID      string              `json:"run_id"`
	Workspace  Workspace           `json:"-"`
	Source     Source              `json:"source"`
	Frames     Frames              `json:"frames"`
	Detections detection.Set       `json:"detections"`
	Background Background          `json:"background"`
	Ego        Ego                 `json:"ego"`
	Direction  direction.Result    `json:"direction"`
	Signals    []timeline.Event    `json:"traffic_light_events"`
	Timeline   timeline.Result     `json:"timeline"`
	SignalInfo trafficlight.Info   `json:"traffic_light_info"`
	Descriptor meta.Descriptor     `json:"descriptor"`
	TypeInput  accidenttype.Input  `json:"type_input"`
	Type       accidenttype.Result `json:"accident_type"`
	Fault      fault.Outcome       `json:"fault"`
	Report     report.Response     `json:"report"`
	Timings    []StageTiming       `json:"timings"`
}

// record is the on-disk envelope of a stage record.
type record struct {
	SchemaVersion int    `json:"schema_version"`
	Stage         Stage  `json:"stage"`
	RunID         string `json:"run_id"`
	Record        any    `json:"record"`
}

// writeRecord persists v as <records>/<stage>.json.
func writeRecord(fs fsutil.FileSystem, ws Workspace, stage Stage, v any) error {
	return fsutil.WriteJSON(fs, filepath.Join(ws.RecordsDir, string(stage)+".json"), record{
		SchemaVersion: RecordSchemaVersion,
		Stage:         stage,
		RunID:         ws.RunID,
		Record:        v,
	})
}
