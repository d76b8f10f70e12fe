package pipeline

import (
	"errors"
	"fmt"

	"github.com/banshee-data/accident.report/internal/fetch"
)

// Stage names a pipeline phase. Names appear in error responses, logs and
// the run history.
type Stage string

const (
	StageWorkspace  Stage = "workspace"
	StageDownload   Stage = "download"
	StageFrames     Stage = "extract_frames"
	StageDetect     Stage = "detect_objects"
	StageBackground Stage = "background_subtraction"
	StageEgo        Stage = "ego_trajectory"
	StageDirection  Stage = "vehicle_b_direction"
	StageSignals    Stage = "traffic_light_events"
	StageTimeline   Stage = "timeline"
	StageSignalInfo Stage = "traffic_light_info"
	StageEgoWindow  Stage = "ego_window"
	StageMeta       Stage = "meta"
	StageTypeInput  Stage = "accident_type_input"
	StageType       Stage = "accident_type"
	StageFault      Stage = "fault"
	StageReport     Stage = "report"
)

// Kind classifies a stage failure.
type Kind string

const (
	// KindInvalidInput means the request's video could not be fetched or
	// decoded.
	KindInvalidInput Kind = "invalid_input"
	// KindInfrastructure covers missing models or accelerators, decoder
	// failures, storage errors and cancellation.
	KindInfrastructure Kind = "infrastructure"
	// KindUnexpected is a recovered panic.
	KindUnexpected Kind = "unexpected"
)

// StageError attributes a failure to the stage that raised it.
type StageError struct {
	Stage Stage
	Kind  Kind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// AsStageError extracts the StageError from err, if any.
func AsStageError(err error) (*StageError, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, fetch.ErrDownload), errors.Is(err, fetch.ErrInvalidVideo):
		return KindInvalidInput
	}
	return KindInfrastructure
}
