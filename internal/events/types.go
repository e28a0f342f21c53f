package events

import "time"

// Event types published by the stage.
const (
	TypeSceneDispatched = "scene.dispatched"
	TypeSceneEmitted    = "scene.emitted"
	TypeSceneSkipped    = "scene.skipped"
	TypeStageState      = "stage.state"
	TypeStreamEOS       = "stream.eos"
	TypeWorkerError     = "worker.error"
)

// SceneDispatched is published when the dispatcher routes a scene.
type SceneDispatched struct {
	Scene     uint32 `json:"scene"`
	GroupSize uint32 `json:"group_size"`
	Output    string `json:"output"`
}

// SceneEmitted is published when the collector sends a scene downstream.
type SceneEmitted struct {
	Scene     uint32        `json:"scene"`
	Input     string        `json:"input"`
	Buffers   int           `json:"buffers"`
	Bytes     int           `json:"bytes"`
	FirstPTS  time.Duration `json:"first_pts"`
	LastPTS   time.Duration `json:"last_pts"`
	LatencyMS float64       `json:"latency_ms"`
	Error     string        `json:"error,omitempty"`
}

// SceneSkipped is published for each index given up at end of stream.
type SceneSkipped struct {
	Scene uint32 `json:"scene"`
}

// StageState is published on every state change.
type StageState struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// StreamEOS is published once the terminal EOS left the stage.
type StreamEOS struct {
	Emitted uint64 `json:"emitted"`
	Skipped uint64 `json:"skipped"`
}

// WorkerError is published when a worker fails on a frame or a flush.
type WorkerError struct {
	Worker string `json:"worker"`
	Error  string `json:"error"`
}
