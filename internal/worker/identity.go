package worker

import (
	"context"
	"time"

	"github.com/mattjoyce/hype/internal/caps"
	"github.com/mattjoyce/hype/internal/media"
)

// Identity forwards frames unchanged, optionally sleeping before each one to
// simulate encoder latency.
type Identity struct {
	name  string
	delay time.Duration
	caps  caps.Caps
}

// NewIdentity returns an Identity worker. Zero-value caps mean ANY.
func NewIdentity(name string, delay time.Duration, c caps.Caps) *Identity {
	if c.IsEmpty() {
		c = caps.Any()
	}
	return &Identity{name: name, delay: delay, caps: c}
}

func (w *Identity) Name() string          { return w.name }
func (w *Identity) Kind() Kind            { return KindIdentity }
func (w *Identity) OutputCaps() caps.Caps { return w.caps }

// Delay returns the per-frame sleep.
func (w *Identity) Delay() time.Duration { return w.delay }

func (w *Identity) Process(ctx context.Context, buf *media.Buffer, emit Emit) error {
	if w.delay > 0 {
		t := time.NewTimer(w.delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return emit(ctx, buf)
}

func (w *Identity) Flush(context.Context, Emit) error { return nil }
