package pipeline

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/banshee-data/accident.report/internal/fsutil"
	"github.com/banshee-data/accident.report/internal/security"
)

// newRunID is swapped in tests.
var newRunID = func() string { return uuid.NewString() }

// Workspace is the directory tree owned by one run:
//
//	<root>/users/<user>/<video>/<run>/
//	    <video>.mp4
//	    frames/00000.jpg ...
//	    bg/00000_mask.png ...
//	    trajectory/*.csv, trajectory.png
//	    model_input/type_input.json
//	    records/*.json
type Workspace struct {
	RunID         string
	Dir           string
	FramesRoot    string
	BackgroundDir string
	TrajectoryDir string
	ModelInputDir string
	RecordsDir    string
}

// NewWorkspace creates a fresh run directory under root. Identifiers are
// sanitised and the result is checked to stay inside root.
func NewWorkspace(fs fsutil.FileSystem, root string, userID, videoID int64) (Workspace, error) {
	runID := newRunID()
	dir, err := security.SafeJoin(root, "users", strconv.FormatInt(userID, 10), strconv.FormatInt(videoID, 10), runID)
	if err != nil {
		return Workspace{}, err
	}
	ws := Workspace{
		RunID:         runID,
		Dir:           dir,
		FramesRoot:    dir,
		BackgroundDir: filepath.Join(dir, "bg"),
		TrajectoryDir: filepath.Join(dir, "trajectory"),
		ModelInputDir: filepath.Join(dir, "model_input"),
		RecordsDir:    filepath.Join(dir, "records"),
	}
	for _, d := range []string{ws.Dir, ws.TrajectoryDir, ws.ModelInputDir, ws.RecordsDir} {
		if err := fs.MkdirAll(d, 0o755); err != nil {
			return Workspace{}, fmt.Errorf("create %s: %w", d, err)
		}
	}
	return ws, nil
}
