package journal

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/mattjoyce/hype/internal/events"
)

// Subscriber is the part of events.Hub the recorder needs.
type Subscriber interface {
	Subscribe(buffer int) (<-chan events.Event, func())
}

// recorderBuffer is sized so a scene burst does not overrun the
// subscription while SQLite is busy.
const recorderBuffer = 4096

// Recorder writes scene events from the hub into the scene log of one run.
type Recorder struct {
	journal *Journal
	runID   string
	logger  *slog.Logger

	ch     <-chan events.Event
	cancel func()
	done   chan struct{}

	mu       sync.Mutex
	emitted  uint64
	failed   uint64
	skipped  uint64
	writeErr error
}

// NewRecorder subscribes to hub immediately so nothing published after it
// returns is missed. Call Run to start writing.
func NewRecorder(logger *slog.Logger, j *Journal, runID string, hub Subscriber) *Recorder {
	ch, cancel := hub.Subscribe(recorderBuffer)
	return &Recorder{
		journal: j,
		runID:   runID,
		logger:  logger,
		ch:      ch,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Run writes events until Stop is called. Write failures are logged and
// counted; the loop keeps going.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)
	for ev := range r.ch {
		if err := r.handle(ctx, ev); err != nil {
			r.logger.Error("journal write failed", "event", ev.Type, "error", err)
			r.mu.Lock()
			if r.writeErr == nil {
				r.writeErr = err
			}
			r.mu.Unlock()
		}
	}
}

// Stop unsubscribes, waits for the already delivered events to be written
// and returns the first write error.
func (r *Recorder) Stop() error {
	r.cancel()
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeErr
}

// Counts returns how many emitted, failed and skipped scenes were written.
func (r *Recorder) Counts() (emitted, failed, skipped uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.emitted, r.failed, r.skipped
}

func (r *Recorder) handle(ctx context.Context, ev events.Event) error {
	switch ev.Type {
	case events.TypeSceneEmitted:
		var p events.SceneEmitted
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return err
		}
		s := Scene{
			RunID:      r.runID,
			Index:      p.Scene,
			Status:     SceneEmitted,
			Input:      p.Input,
			Buffers:    p.Buffers,
			Bytes:      p.Bytes,
			FirstPTS:   p.FirstPTS,
			LastPTS:    p.LastPTS,
			LatencyMS:  p.LatencyMS,
			Error:      p.Error,
			RecordedAt: ev.At,
		}
		if p.Error != "" {
			s.Status = SceneFailed
		}
		if err := r.journal.RecordScene(ctx, s); err != nil {
			return err
		}
		r.mu.Lock()
		if s.Status == SceneFailed {
			r.failed++
		} else {
			r.emitted++
		}
		r.mu.Unlock()

	case events.TypeSceneSkipped:
		var p events.SceneSkipped
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return err
		}
		if err := r.journal.RecordScene(ctx, Scene{RunID: r.runID, Index: p.Scene, Status: SceneSkipped, RecordedAt: ev.At}); err != nil {
			return err
		}
		r.mu.Lock()
		r.skipped++
		r.mu.Unlock()
	}
	return nil
}
