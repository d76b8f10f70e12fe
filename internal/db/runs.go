package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is one row of analysis_runs.
type Run struct {
	RunID          string          `json:"run_id"`
	UserID         int64           `json:"user_id"`
	VideoID        int64           `json:"video_id"`
	FileName       string          `json:"file_name"`
	SourceURL      string          `json:"-"`
	Status         RunStatus       `json:"status"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
	FailedStage    string          `json:"failed_stage,omitempty"`
	ErrorKind      string          `json:"error_kind,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	Response       json.RawMessage `json:"response,omitempty"`
	CollisionFrame *int            `json:"collision_frame,omitempty"`
	FirstSeenFrame *int            `json:"first_seen_frame,omitempty"`
	Trajectory     []float64       `json:"trajectory,omitempty"`
	Timings        json.RawMessage `json:"timings,omitempty"`
}

// Outcome is what a completed run stores.
type Outcome struct {
	Response       any
	CollisionFrame int
	FirstSeenFrame int
	Trajectory     []float64
	Timings        any
}

// StartRun inserts a running row. The run id must be unique.
func (db *DB) StartRun(ctx context.Context, r *Run) error {
	if r.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	r.Status = RunRunning
	_, err := db.ExecContext(ctx, `
		INSERT INTO analysis_runs (run_id, user_id, video_id, file_name, source_url, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.UserID, r.VideoID, r.FileName, r.SourceURL, string(r.Status), r.StartedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", r.RunID, err)
	}
	return nil
}

// CompleteRun marks a running run completed and stores its outcome.
func (db *DB) CompleteRun(ctx context.Context, runID string, o Outcome) error {
	resp, err := json.Marshal(o.Response)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	traj, err := json.Marshal(o.Trajectory)
	if err != nil {
		return fmt.Errorf("failed to encode trajectory: %w", err)
	}
	timings, err := json.Marshal(o.Timings)
	if err != nil {
		return fmt.Errorf("failed to encode timings: %w", err)
	}
	return db.finish(ctx, runID, `
		UPDATE analysis_runs
		SET status = ?, finished_at = ?, response_json = ?, trajectory_json = ?, timings_json = ?,
		    collision_frame = ?, first_seen_frame = ?
		WHERE run_id = ? AND status = 'running'`,
		string(RunCompleted), time.Now().UnixNano(), string(resp), string(traj), string(timings),
		o.CollisionFrame, o.FirstSeenFrame, runID,
	)
}

// FailRun marks a running run failed at stage.
func (db *DB) FailRun(ctx context.Context, runID, stage, kind, message string) error {
	return db.finish(ctx, runID, `
		UPDATE analysis_runs
		SET status = ?, finished_at = ?, failed_stage = ?, error_kind = ?, error_message = ?
		WHERE run_id = ? AND status = 'running'`,
		string(RunFailed), time.Now().UnixNano(), stage, kind, message, runID,
	)
}

func (db *DB) finish(ctx context.Context, runID, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w or already finished", runID, ErrRunNotFound)
	}
	return nil
}

const runColumns = `run_id, user_id, video_id, file_name, source_url, status, started_at, finished_at,
	failed_stage, error_kind, error_message, response_json, collision_frame, first_seen_frame,
	trajectory_json, timings_json`

// GetRun returns one run by id.
func (db *DB) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM analysis_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return r, err
}

// ListRuns returns a user's runs, newest first. The heavy JSON columns are
// included; limit <= 0 means 50.
func (db *DB) ListRuns(ctx context.Context, userID int64, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `SELECT `+runColumns+`
		FROM analysis_runs WHERE user_id = ? ORDER BY started_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// RunStats counts runs per status.
func (db *DB) RunStats(ctx context.Context) (map[RunStatus]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM analysis_runs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[RunStatus]int{RunRunning: 0, RunCompleted: 0, RunFailed: 0}
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		stats[RunStatus(s)] = n
	}
	return stats, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		r                              Run
		status                         string
		started                        int64
		finished                       sql.NullInt64
		stage, kind, msg               sql.NullString
		resp, traj, timings            sql.NullString
		collisionFrame, firstSeenFrame sql.NullInt64
	)
	if err := s.Scan(&r.RunID, &r.UserID, &r.VideoID, &r.FileName, &r.SourceURL, &status, &started, &finished,
		&stage, &kind, &msg, &resp, &collisionFrame, &firstSeenFrame, &traj, &timings); err != nil {
		return nil, err
	}
	r.Status = RunStatus(status)
	r.StartedAt = time.Unix(0, started)
	if finished.Valid {
		t := time.Unix(0, finished.Int64)
		r.FinishedAt = &t
	}
	r.FailedStage, r.ErrorKind, r.ErrorMessage = stage.String, kind.String, msg.String
	if resp.Valid {
		r.Response = json.RawMessage(resp.String)
	}
	if timings.Valid {
		r.Timings = json.RawMessage(timings.String)
	}
	if collisionFrame.Valid {
		v := int(collisionFrame.Int64)
		r.CollisionFrame = &v
	}
	if firstSeenFrame.Valid {
		v := int(firstSeenFrame.Int64)
		r.FirstSeenFrame = &v
	}
	if traj.Valid && traj.String != "" && traj.String != "null" {
		if err := json.Unmarshal([]byte(traj.String), &r.Trajectory); err != nil {
			return nil, fmt.Errorf("run %s: corrupt trajectory: %w", r.RunID, err)
		}
	}
	return &r, nil
}
