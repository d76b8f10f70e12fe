package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/accident.report/internal/db"
	"github.com/banshee-data/accident.report/internal/httputil"
	"github.com/banshee-data/accident.report/internal/pipeline"
	"github.com/banshee-data/accident.report/internal/report"
)

// handleAnalyze runs the pipeline synchronously and returns the report.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	if s.analyzer == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "analysis pipeline not configured")
		return
	}

	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	res, err := s.analyzer.Run(ctx, req)
	s.recordRun(req, started, res, err)
	if err != nil {
		status, stage := stageErrorStatus(err)
		log.Printf("analyze user=%d video=%d failed: %v", req.UserID, req.VideoID, err)
		httputil.WriteStageError(w, status, stage, err.Error())
		return
	}
	httputil.WriteJSONOK(w, res.Report)
}

// handleAnalyzeTest validates the request and returns a canned report
// without running the pipeline.
func (s *Server) handleAnalyzeTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, report.Canned(req))
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (report.Request, bool) {
	var req report.Request
	if err := httputil.DecodeJSONBody(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return req, false
	}
	if err := req.Validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return req, false
	}
	return req, true
}

// stageErrorStatus maps a pipeline error onto an HTTP status and the name of
// the failing stage.
func stageErrorStatus(err error) (int, string) {
	se, ok := pipeline.AsStageError(err)
	if !ok {
		return http.StatusInternalServerError, ""
	}
	switch {
	case se.Kind == pipeline.KindInvalidInput:
		return http.StatusBadRequest, string(se.Stage)
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, string(se.Stage)
	}
	return http.StatusInternalServerError, string(se.Stage)
}

// recordRun writes the run to history. History is best effort; the HTTP
// response does not depend on it.
func (s *Server) recordRun(req report.Request, started time.Time, res pipeline.Result, runErr error) {
	if s.runs == nil {
		return
	}
	// The request context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	runID := res.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	run := &db.Run{
		RunID:     runID,
		UserID:    req.UserID,
		VideoID:   req.VideoID,
		FileName:  req.FileName,
		SourceURL: req.PresignedURL,
		StartedAt: started,
	}
	if err := s.runs.StartRun(ctx, run); err != nil {
		log.Printf("run history: %v", err)
		return
	}

	if runErr != nil {
		stage, kind := "", ""
		if se, ok := pipeline.AsStageError(runErr); ok {
			stage, kind = string(se.Stage), string(se.Kind)
		}
		err := s.runs.FailRun(ctx, runID, stage, kind, runErr.Error())
		if err != nil {
			log.Printf("run history: %v", err)
		}
		return
	}

	err := s.runs.CompleteRun(ctx, runID, db.Outcome{
		Response:       res.Report,
		CollisionFrame: res.Timeline.Collision.FrameIdx,
		FirstSeenFrame: res.Timeline.FirstSeen,
		Trajectory:     res.Ego.Ensemble,
		Timings:        res.Timings,
	})
	if err != nil {
		log.Printf("run history: %v", err)
	}
}
