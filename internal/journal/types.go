package journal

import (
	"encoding/json"
	"errors"
	"time"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// SceneStatus records what happened to one scene index.
type SceneStatus string

const (
	SceneEmitted SceneStatus = "emitted"
	SceneFailed  SceneStatus = "failed"
	SceneSkipped SceneStatus = "skipped"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Run is one execution of the stage.
type Run struct {
	ID         string          `json:"id"`
	Source     string          `json:"source"`
	GroupSize  uint32          `json:"group_size"`
	Workers    int             `json:"workers"`
	Config     json.RawMessage `json:"config,omitempty"`
	Status     Status          `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Frames     uint64          `json:"frames"`
	Scenes     uint64          `json:"scenes"`
	Skipped    uint64          `json:"skipped"`
	LastError  *string         `json:"last_error,omitempty"`
}

// StartRequest describes a run about to begin.
type StartRequest struct {
	Source    string
	GroupSize uint32
	Workers   int
	// Config is stored as JSON for later inspection.
	Config any
}

// Summary closes a run.
type Summary struct {
	Status  Status
	Frames  uint64
	Scenes  uint64
	Skipped uint64
	Err     error
}

// Scene is one row of the scene log.
type Scene struct {
	RunID      string        `json:"run_id"`
	Index      uint32        `json:"scene"`
	Status     SceneStatus   `json:"status"`
	Input      string        `json:"input,omitempty"`
	Buffers    int           `json:"buffers"`
	Bytes      int           `json:"bytes"`
	FirstPTS   time.Duration `json:"first_pts"`
	LastPTS    time.Duration `json:"last_pts"`
	LatencyMS  float64       `json:"latency_ms"`
	Error      string        `json:"error,omitempty"`
	RecordedAt time.Time     `json:"recorded_at"`
}
