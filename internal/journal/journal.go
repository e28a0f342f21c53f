// Package journal persists runs and their per-scene outcomes in SQLite.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const maxErrorBytes = 64 * 1024

// timeFormat has a fixed-width fraction so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

type Journal struct {
	db *sql.DB
}

func New(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// StartRun inserts a running run and returns its id.
func (j *Journal) StartRun(ctx context.Context, req StartRequest) (string, error) {
	if req.Source == "" {
		return "", fmt.Errorf("source is empty")
	}
	if req.GroupSize == 0 {
		return "", fmt.Errorf("group size is zero")
	}

	var cfg any
	if req.Config != nil {
		b, err := json.Marshal(req.Config)
		if err != nil {
			return "", fmt.Errorf("encode run config: %w", err)
		}
		cfg = string(b)
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(timeFormat)
	_, err := j.db.ExecContext(ctx, `
INSERT INTO runs(id, source, group_size, workers, config, status, started_at)
VALUES(?, ?, ?, ?, ?, ?, ?);
`, id, req.Source, req.GroupSize, req.Workers, cfg, StatusRunning, now)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return id, nil
}

// RecordScene stores the outcome of one scene. Recording the same index
// twice keeps the latest outcome.
func (j *Journal) RecordScene(ctx context.Context, s Scene) error {
	if s.RunID == "" {
		return fmt.Errorf("run id is empty")
	}
	if s.RecordedAt.IsZero() {
		s.RecordedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
INSERT INTO scene_log(run_id, scene, status, input, buffers, bytes, first_pts, last_pts, latency_ms, error, recorded_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id, scene) DO UPDATE SET
  status = excluded.status,
  input = excluded.input,
  buffers = excluded.buffers,
  bytes = excluded.bytes,
  first_pts = excluded.first_pts,
  last_pts = excluded.last_pts,
  latency_ms = excluded.latency_ms,
  error = excluded.error,
  recorded_at = excluded.recorded_at;
`, s.RunID, s.Index, s.Status, nullString(s.Input), s.Buffers, s.Bytes,
		int64(s.FirstPTS), int64(s.LastPTS), s.LatencyMS, nullString(truncate(s.Error)),
		s.RecordedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("record scene %d: %w", s.Index, err)
	}
	return nil
}

// FinishRun marks a run terminal.
func (j *Journal) FinishRun(ctx context.Context, id string, sum Summary) error {
	if id == "" {
		return fmt.Errorf("run id is empty")
	}
	switch sum.Status {
	case StatusSucceeded, StatusFailed, StatusCanceled:
	default:
		return fmt.Errorf("invalid terminal status: %q", sum.Status)
	}

	var lastError any
	if sum.Err != nil {
		lastError = truncate(sum.Err.Error())
	}
	res, err := j.db.ExecContext(ctx, `
UPDATE runs
SET status = ?, finished_at = ?, frames = ?, scenes = ?, skipped = ?, last_error = ?
WHERE id = ?;
`, sum.Status, time.Now().UTC().Format(timeFormat), sum.Frames, sum.Scenes, sum.Skipped, lastError, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

const runColumns = `id, source, group_size, workers, config, status, started_at, finished_at, frames, scenes, skipped, last_error`

// ListRuns returns the newest runs first. limit <= 0 means 50.
func (j *Journal) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT `+runColumns+`
FROM runs
ORDER BY started_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// GetRun returns one run.
func (j *Journal) GetRun(ctx context.Context, id string) (*Run, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?;`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return r, err
}

// Scenes returns the scene log of a run in index order.
func (j *Journal) Scenes(ctx context.Context, runID string) ([]Scene, error) {
	rows, err := j.db.QueryContext(ctx, `
SELECT run_id, scene, status, input, buffers, bytes, first_pts, last_pts, latency_ms, error, recorded_at
FROM scene_log
WHERE run_id = ?
ORDER BY scene ASC;
`, runID)
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}
	defer rows.Close()

	var out []Scene
	for rows.Next() {
		var (
			s          Scene
			status     string
			input      sql.NullString
			firstPTS   sql.NullInt64
			lastPTS    sql.NullInt64
			latency    sql.NullFloat64
			errText    sql.NullString
			recordedAt string
		)
		if err := rows.Scan(&s.RunID, &s.Index, &status, &input, &s.Buffers, &s.Bytes,
			&firstPTS, &lastPTS, &latency, &errText, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan scene: %w", err)
		}
		s.Status = SceneStatus(status)
		s.Input = input.String
		s.FirstPTS = time.Duration(firstPTS.Int64)
		s.LastPTS = time.Duration(lastPTS.Int64)
		s.LatencyMS = latency.Float64
		s.Error = errText.String
		if t, err := time.Parse(time.RFC3339Nano, recordedAt); err == nil {
			s.RecordedAt = t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r          Run
		cfg        sql.NullString
		status     string
		startedAt  string
		finishedAt sql.NullString
		lastError  sql.NullString
	)
	err := sc.Scan(&r.ID, &r.Source, &r.GroupSize, &r.Workers, &cfg, &status, &startedAt,
		&finishedAt, &r.Frames, &r.Scenes, &r.Skipped, &lastError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	r.Status = Status(status)
	if cfg.Valid {
		r.Config = json.RawMessage(cfg.String)
	}
	if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
		r.StartedAt = t
	}
	if finishedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, finishedAt.String); err == nil {
			r.FinishedAt = &t
		}
	}
	if lastError.Valid {
		r.LastError = &lastError.String
	}
	return &r, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func truncate(s string) string {
	if len(s) > maxErrorBytes {
		return s[:maxErrorBytes]
	}
	return s
}
