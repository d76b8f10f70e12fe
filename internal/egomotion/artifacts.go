package egomotion

import (
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/banshee-data/accident.report/internal/fsutil"
)

// Artifact filenames written under the run's trajectory directory.
const (
	EnsembleCSV = "ensemble_trajectory.csv"
	WindowCSV   = "vehicle_A_trajectory.csv"
	PlotPNG     = "trajectory.png"
)

func rawCSVName(m Method) string       { return string(m) + "_raw_flow.csv" }
func processedCSVName(m Method) string { return string(m) + "_processed.csv" }

func ff(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func writeCSV(fsys fsutil.FileSystem, path string, header []string, rows [][]string) error {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// WriteRawCSV dumps one method's flow series.
func WriteRawCSV(fsys fsutil.FileSystem, dir string, m Method, flow []FlowSample) error {
	name := string(m)
	header := []string{"frame", name + "_dx", name + "_dy", name + "_quality"}
	rows := make([][]string, len(flow))
	for i, s := range flow {
		rows[i] = []string{strconv.Itoa(i), ff(s.DX), ff(s.DY), ff(s.Quality)}
	}
	return writeCSV(fsys, filepath.Join(dir, rawCSVName(m)), header, rows)
}

// WriteProcessedCSV dumps the intermediate signals of one method.
func WriteProcessedCSV(fsys fsutil.FileSystem, dir string, p Processed) error {
	name := string(p.Method)
	header := []string{"frame", name + "_lat_raw", name + "_lat_med", name + "_lat_smooth", name + "_traj"}
	rows := make([][]string, len(p.Trajectory))
	for i := range p.Trajectory {
		rows[i] = []string{strconv.Itoa(i), ff(p.Lateral[i]), ff(p.Median[i]), ff(p.Smooth[i]), ff(p.Trajectory[i])}
	}
	return writeCSV(fsys, filepath.Join(dir, processedCSVName(p.Method)), header, rows)
}

// WriteEnsembleCSV dumps every method trajectory next to the ensemble.
func WriteEnsembleCSV(fsys fsutil.FileSystem, dir string, r Result) error {
	header := []string{"frame"}
	for _, p := range r.Methods {
		header = append(header, string(p.Method)+"_traj")
	}
	header = append(header, "ensemble_traj", "collision_idx")

	coll := strconv.Itoa(r.Collision)
	rows := make([][]string, len(r.Ensemble))
	for i, v := range r.Ensemble {
		row := []string{strconv.Itoa(i)}
		for _, p := range r.Methods {
			row = append(row, ff(p.Trajectory[i]))
		}
		rows[i] = append(row, ff(v), coll)
	}
	return writeCSV(fsys, filepath.Join(dir, EnsembleCSV), header, rows)
}

// WriteWindowCSV dumps the re-based ego position keyed by absolute frame.
func WriteWindowCSV(fsys fsutil.FileSystem, dir string, w Window) error {
	rows := make([][]string, len(w.Position))
	for i, v := range w.Position {
		rows[i] = []string{strconv.Itoa(w.Frame(i)), ff(v)}
	}
	return writeCSV(fsys, filepath.Join(dir, WindowCSV), []string{"frame", "ego_pos"}, rows)
}
