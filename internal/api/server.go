// Package api serves the analysis endpoints, the run history and health
// checks.
package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/accident.report/internal/db"
	"github.com/banshee-data/accident.report/internal/pipeline"
	"github.com/banshee-data/accident.report/internal/report"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Analyzer runs one analysis end to end.
type Analyzer interface {
	Run(ctx context.Context, req report.Request) (pipeline.Result, error)
}

// RunStore persists run history. *db.DB implements it.
type RunStore interface {
	StartRun(ctx context.Context, r *db.Run) error
	CompleteRun(ctx context.Context, runID string, o db.Outcome) error
	FailRun(ctx context.Context, runID, stage, kind, message string) error
	GetRun(ctx context.Context, runID string) (*db.Run, error)
	ListRuns(ctx context.Context, userID int64, limit int) ([]db.Run, error)
}

// Options configure a Server. Runs and Ready may be nil.
type Options struct {
	Analyzer Analyzer
	Runs     RunStore
	// Ready reports per-model load state for /health.
	Ready func() map[string]bool
	// Timeout bounds one /analyze request; zero disables it.
	Timeout time.Duration
}

type Server struct {
	analyzer Analyzer
	runs     RunStore
	ready    func() map[string]bool
	timeout  time.Duration
}

func NewServer(o Options) *Server {
	return &Server{
		analyzer: o.Analyzer,
		runs:     o.Runs,
		ready:    o.Ready,
		timeout:  o.Timeout,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/analyze", s.handleAnalyze)
	mux.HandleFunc("/analyze-test", s.handleAnalyzeTest)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/reports", s.handleListReports)
	mux.HandleFunc("GET /api/reports/{id}", s.handleGetReport)
	mux.HandleFunc("GET /api/reports/{id}/chart", s.handleReportChart)
	return mux
}
