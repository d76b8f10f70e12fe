package timeline

import (
	"fmt"
	"path/filepath"

	"github.com/banshee-data/accident.report/internal/fsutil"
)

// ForegroundFile is the per-run record of new-foreground pixel counts,
// written next to the background-subtraction masks.
const ForegroundFile = "foreground_counts.json"

const foregroundSchemaVersion = 1

type foregroundDoc struct {
	SchemaVersion int         `json:"schema_version"`
	Counts        map[int]int `json:"counts"`
}

// WriteForeground persists counts under maskDir.
func WriteForeground(fsys fsutil.FileSystem, maskDir string, counts map[int]int) error {
	return fsutil.WriteJSON(fsys, filepath.Join(maskDir, ForegroundFile), foregroundDoc{
		SchemaVersion: foregroundSchemaVersion,
		Counts:        counts,
	})
}

// ReadForeground loads counts written by WriteForeground. A missing file is
// not an error and yields nil counts, which selects the min-area fallback.
func ReadForeground(fsys fsutil.FileSystem, maskDir string) (map[int]int, error) {
	path := filepath.Join(maskDir, ForegroundFile)
	if !fsys.Exists(path) {
		return nil, nil
	}
	var doc foregroundDoc
	if err := fsutil.ReadJSON(fsys, path, &doc); err != nil {
		return nil, err
	}
	if doc.SchemaVersion != foregroundSchemaVersion {
		return nil, fmt.Errorf("%s: unsupported schema version %d", path, doc.SchemaVersion)
	}
	return doc.Counts, nil
}
