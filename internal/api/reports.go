package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/banshee-data/accident.report/internal/db"
	"github.com/banshee-data/accident.report/internal/httputil"
)

const maxListLimit = 500

// handleListReports lists a user's runs: GET /api/reports?user_id=&limit=
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.runs == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "run history not configured")
		return
	}
	q := r.URL.Query()
	userID, err := strconv.ParseInt(q.Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		httputil.BadRequest(w, "user_id must be a positive integer")
		return
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit <= 0 || limit > maxListLimit {
			httputil.BadRequest(w, "limit must be between 1 and 500")
			return
		}
	}

	runs, err := s.runs.ListRuns(r.Context(), userID, limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, runs)
}

// handleGetReport returns one run: GET /api/reports/{id}
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, run)
}

func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (*db.Run, bool) {
	if s.runs == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "run history not configured")
		return nil, false
	}
	run, err := s.runs.GetRun(r.Context(), r.PathValue("id"))
	if errors.Is(err, db.ErrRunNotFound) {
		httputil.NotFound(w, "run not found")
		return nil, false
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return nil, false
	}
	return run, true
}
