package db

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPragmasApplied(t *testing.T) {
	db := setupTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)

	var tempStore int
	require.NoError(t, db.QueryRow("PRAGMA temp_store").Scan(&tempStore))
	assert.Equal(t, 2, tempStore) // MEMORY
}

func TestEmbeddedMigrations(t *testing.T) {
	migrations, err := getMigrationsFS()
	require.NoError(t, err)

	ups, err := fs.Glob(migrations, "*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrations, "*.down.sql")
	require.NoError(t, err)
	assert.Len(t, downs, len(ups), "every migration needs a down file")

	latest, err := GetLatestMigrationVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(len(ups)), latest)
}

func TestMigrateDownAndUp(t *testing.T) {
	db := setupTestDB(t)
	migrations, err := getMigrationsFS()
	require.NoError(t, err)

	st, err := db.GetMigrationStatus(migrations)
	require.NoError(t, err)
	assert.True(t, st.TableExists)
	assert.False(t, st.Pending())
	assert.False(t, st.Dirty)

	require.NoError(t, db.MigrateDown(migrations))
	v, dirty, err := db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, st.LatestVersion-1, v)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('analysis_runs') WHERE name = 'trajectory_json'`).Scan(&n))
	assert.Zero(t, n)

	require.NoError(t, db.MigrateUp(migrations))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('analysis_runs') WHERE name = 'trajectory_json'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestRunLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	run := &Run{RunID: "run-1", UserID: 7, VideoID: 42, FileName: "crash.mp4", SourceURL: "https://bucket.example/crash.mp4"}
	require.NoError(t, db.StartRun(ctx, run))
	assert.Equal(t, RunRunning, run.Status)

	got, err := db.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunRunning, got.Status)
	assert.Nil(t, got.FinishedAt)
	assert.Nil(t, got.Response)

	require.NoError(t, db.CompleteRun(ctx, "run-1", Outcome{
		Response:       map[string]int{"faultA": 20, "faultB": 80},
		CollisionFrame: 75,
		FirstSeenFrame: 38,
		Trajectory:     []float64{0, 0.5, 1.25},
		Timings:        []string{"download"},
	}))

	got, err = db.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, got.Status)
	require.NotNil(t, got.FinishedAt)
	assert.False(t, got.FinishedAt.Before(got.StartedAt))
	assert.JSONEq(t, `{"faultA":20,"faultB":80}`, string(got.Response))
	assert.Equal(t, []float64{0, 0.5, 1.25}, got.Trajectory)
	require.NotNil(t, got.CollisionFrame)
	assert.Equal(t, 75, *got.CollisionFrame)
	assert.Equal(t, 38, *got.FirstSeenFrame)

	// A finished run cannot be finished again.
	err = db.FailRun(ctx, "run-1", "fault", "infrastructure", "late")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestFailRun(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.StartRun(ctx, &Run{RunID: "run-2", UserID: 1, VideoID: 2, FileName: "a.mp4"}))
	require.NoError(t, db.FailRun(ctx, "run-2", "detect_objects", "infrastructure", "cuda out of memory"))

	got, err := db.GetRun(ctx, "run-2")
	require.NoError(t, err)
	assert.Equal(t, RunFailed, got.Status)
	assert.Equal(t, "detect_objects", got.FailedStage)
	assert.Equal(t, "infrastructure", got.ErrorKind)
	assert.Equal(t, "cuda out of memory", got.ErrorMessage)
	assert.Nil(t, got.Trajectory)
	assert.Nil(t, got.CollisionFrame)
}

func TestGetRun_NotFound(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.GetRun(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrRunNotFound))
	assert.ErrorIs(t, db.FailRun(context.Background(), "nope", "x", "y", "z"), ErrRunNotFound)
}

func TestStartRun_Validation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	assert.Error(t, db.StartRun(ctx, &Run{}))

	require.NoError(t, db.StartRun(ctx, &Run{RunID: "dup", UserID: 1, VideoID: 1, FileName: "f"}))
	assert.Error(t, db.StartRun(ctx, &Run{RunID: "dup", UserID: 1, VideoID: 1, FileName: "f"}))
}

func TestListRuns(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, db.StartRun(ctx, &Run{RunID: id, UserID: 7, VideoID: int64(i), FileName: id + ".mp4", StartedAt: base.Add(time.Duration(i) * time.Minute)}))
	}
	require.NoError(t, db.StartRun(ctx, &Run{RunID: "other", UserID: 8, VideoID: 1, FileName: "x.mp4"}))

	runs, err := db.ListRuns(ctx, 7, 0)
	require.NoError(t, err)
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.RunID)
	}
	assert.Equal(t, []string{"c", "b", "a"}, ids)

	runs, err = db.ListRuns(ctx, 7, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	runs, err = db.ListRuns(ctx, 99, 0)
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestRunStats(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.StartRun(ctx, &Run{RunID: "a", UserID: 1, VideoID: 1, FileName: "f"}))
	require.NoError(t, db.StartRun(ctx, &Run{RunID: "b", UserID: 1, VideoID: 1, FileName: "f"}))
	require.NoError(t, db.FailRun(ctx, "b", "download", "invalid_input", "403"))

	stats, err := db.RunStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[RunStatus]int{RunRunning: 1, RunCompleted: 0, RunFailed: 1}, stats)
}

func TestRunJSONHidesSourceURL(t *testing.T) {
	data, err := json.Marshal(Run{RunID: "a", SourceURL: "https://bucket.example/v?X-Amz-Signature=secret"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")
}

func TestAttachAdminRoutes(t *testing.T) {
	db := setupTestDB(t)
	mux := http.NewServeMux()
	db.AttachAdminRoutes(mux)

	for _, path := range []string{"/debug/tailsql/", "/debug/db-stats", "/debug/backup"} {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			assert.NotEqual(t, http.StatusNotFound, w.Code, "route %s should be registered", path)
		})
	}
}

func TestRunMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.db")

	var out bytes.Buffer
	require.NoError(t, RunMigrateCommand([]string{"up"}, path, &out))
	assert.Contains(t, out.String(), "Migration Status")
	assert.NotContains(t, out.String(), "pending")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"version", "1"}, path, &out))
	assert.Contains(t, out.String(), "Current version: 1")
	assert.Contains(t, out.String(), "pending")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"status"}, path, &out))
	assert.Contains(t, out.String(), "Current version: 1")

	assert.Error(t, RunMigrateCommand([]string{"version"}, path, &out))
	assert.Error(t, RunMigrateCommand([]string{"version", "x"}, path, &out))
	assert.Error(t, RunMigrateCommand([]string{"sideways"}, path, &out))
	assert.Error(t, RunMigrateCommand(nil, path, &out))

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"help"}, path, &out))
	assert.Contains(t, out.String(), "Usage: accident-report migrate")
}
