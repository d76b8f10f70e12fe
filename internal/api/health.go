package api

import (
	"fmt"
	"log"
	"net"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/accident.report/internal/httputil"
	"github.com/banshee-data/accident.report/internal/version"
)

// AnalyzerService is the gRPC health service name reported alongside the
// overall ("") status.
const AnalyzerService = "accident.report.Analyzer"

// HealthStatus is the /health response body.
type HealthStatus struct {
	Status  string          `json:"status"`
	Build   version.Info    `json:"build"`
	Models  map[string]bool `json:"models"`
	History bool            `json:"history"`
}

// healthy reports whether the detector, the one model every request needs,
// is loaded.
func healthy(models map[string]bool) bool {
	return models["detector"]
}

func (s *Server) modelState() map[string]bool {
	if s.ready == nil {
		return map[string]bool{}
	}
	return s.ready()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	models := s.modelState()
	st := HealthStatus{
		Status:  "ok",
		Build:   version.Current(),
		Models:  models,
		History: s.runs != nil,
	}
	status := http.StatusOK
	switch {
	case !healthy(models):
		st.Status = "unavailable"
		status = http.StatusServiceUnavailable
	default:
		for _, ok := range models {
			if !ok {
				st.Status = "degraded"
			}
		}
	}
	httputil.WriteJSON(w, status, st)
}

// GRPCHealth serves the standard grpc.health.v1 service for orchestrators
// that probe over gRPC.
type GRPCHealth struct {
	server *grpc.Server
	health *health.Server
}

func NewGRPCHealth() *GRPCHealth {
	g := &GRPCHealth{
		server: grpc.NewServer(),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(g.server, g.health)
	g.SetServing(false)
	return g
}

// SetServing updates the overall and analyzer service status.
func (g *GRPCHealth) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus("", st)
	g.health.SetServingStatus(AnalyzerService, st)
}

// SyncFromModels sets the status from a model readiness map.
func (g *GRPCHealth) SyncFromModels(models map[string]bool) {
	g.SetServing(healthy(models))
}

// Serve blocks serving on lis until Stop is called.
func (g *GRPCHealth) Serve(lis net.Listener) error {
	log.Printf("gRPC health service listening on %s", lis.Addr())
	if err := g.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("grpc health server: %w", err)
	}
	return nil
}

// Stop marks every service not serving and drains connections.
func (g *GRPCHealth) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}
