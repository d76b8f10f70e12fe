package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/accident.report/internal/db"
	"github.com/banshee-data/accident.report/internal/httputil"
)

// handleReportChart renders the run's ensemble trajectory with the
// first-seen and collision frames marked: GET /api/reports/{id}/chart
func (s *Server) handleReportChart(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	if len(run.Trajectory) == 0 {
		httputil.NotFound(w, "run has no trajectory")
		return
	}

	var buf bytes.Buffer
	if err := trajectoryChart(run).Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func trajectoryChart(run *db.Run) *charts.Line {
	x := make([]string, len(run.Trajectory))
	y := make([]opts.LineData, len(run.Trajectory))
	for i, v := range run.Trajectory {
		x[i] = strconv.Itoa(i)
		y[i] = opts.LineData{Value: v}
	}

	var marks []charts.SeriesOpts
	if run.FirstSeenFrame != nil {
		marks = append(marks, charts.WithMarkLineNameXAxisItemOpts(opts.MarkLineNameXAxisItem{
			Name: "vehicle B first seen", XAxis: strconv.Itoa(*run.FirstSeenFrame),
		}))
	}
	if run.CollisionFrame != nil {
		marks = append(marks, charts.WithMarkLineNameXAxisItemOpts(opts.MarkLineNameXAxisItem{
			Name: "collision", XAxis: strconv.Itoa(*run.CollisionFrame),
		}))
	}
	seriesOpts := append([]charts.SeriesOpts{
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	}, marks...)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Ego trajectory " + run.RunID, Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Ego lateral trajectory",
			Subtitle: fmt.Sprintf("run=%s user=%d video=%d frames=%d", run.RunID, run.UserID, run.VideoID, len(run.Trajectory)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "px", NameLocation: "middle", NameGap: 40}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(x).AddSeries("ensemble", y, seriesOpts...)
	return line
}
