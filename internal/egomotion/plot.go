package egomotion

import (
	"fmt"
	"image/color"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/accident.report/internal/fsutil"
)

// WritePlot renders each method trajectory, the ensemble and a vertical
// marker at the collision frame to a PNG.
func WritePlot(fsys fsutil.FileSystem, dir string, r Result) error {
	if len(r.Ensemble) == 0 {
		return nil
	}

	p := plot.New()
	p.Title.Text = "Vehicle A lateral trajectory"
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Lateral displacement (px)"

	lo, hi := r.Ensemble[0], r.Ensemble[0]
	for i, m := range r.Methods {
		pts := make(plotter.XYs, len(m.Trajectory))
		for j, v := range m.Trajectory {
			pts[j] = plotter.XY{X: float64(j), Y: v}
			lo, hi = min(lo, v), max(hi, v)
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to build %s line: %w", m.Method, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(string(m.Method), line)
	}

	ens := make(plotter.XYs, len(r.Ensemble))
	for j, v := range r.Ensemble {
		ens[j] = plotter.XY{X: float64(j), Y: v}
	}
	ensLine, err := plotter.NewLine(ens)
	if err != nil {
		return fmt.Errorf("failed to build ensemble line: %w", err)
	}
	ensLine.Color = color.Black
	ensLine.Width = vg.Points(2)
	p.Add(ensLine)
	p.Legend.Add("ensemble", ensLine)

	marker, err := plotter.NewLine(plotter.XYs{
		{X: float64(r.Collision), Y: lo},
		{X: float64(r.Collision), Y: hi},
	})
	if err != nil {
		return fmt.Errorf("failed to build collision marker: %w", err)
	}
	marker.Color = color.RGBA{R: 220, A: 255}
	marker.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(marker)
	p.Legend.Add("collision", marker)

	wt, err := p.WriterTo(12*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render plot: %w", err)
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := fsys.Create(filepath.Join(dir, PlotPNG))
	if err != nil {
		return err
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write plot: %w", err)
	}
	return f.Close()
}
