package collect

import (
	"context"

	"github.com/mattjoyce/hype/internal/media"
	"github.com/mattjoyce/hype/internal/scene"
)

// Pad is one collector input. Its cursor fields are guarded by the owning
// collector's mutex.
type Pad struct {
	c     *Collector
	index int
	name  string

	open   bool
	cursor uint32
	eos    bool
	scenes uint64
}

// Name returns sink_<n>.
func (p *Pad) Name() string { return p.name }

// Index returns the creation position of p.
func (p *Pad) Index() int { return p.index }

// Chain appends buf to the scene open on this input.
func (p *Pad) Chain(ctx context.Context, buf *media.Buffer) error {
	return media.Guard(p.name, func() error {
		return p.c.onData(ctx, p, buf)
	})
}

// ChainList appends every buffer of list to the open scene.
func (p *Pad) ChainList(ctx context.Context, list media.BufferList) error {
	return media.Guard(p.name, func() error {
		return p.c.onData(ctx, p, list...)
	})
}

// Event handles boundaries and end of stream locally and relays the rest.
// Flush failures caused by the event are logged and reported as unhandled.
func (p *Pad) Event(ctx context.Context, ev *media.Event) bool {
	return media.GuardBool(func() bool {
		if b, ok := scene.Parse(ev); ok {
			if err := p.c.onBoundary(ctx, p, b); err != nil {
				p.c.logger.Error("flush after boundary failed", "input", p.name, "error", err)
				return false
			}
			return true
		}
		if ev.Type == media.EventEOS {
			if err := p.c.handleEOS(ctx, p); err != nil {
				p.c.logger.Error("flush after end of stream failed", "input", p.name, "error", err)
				return false
			}
			return true
		}
		return p.c.relay(ctx, p, ev)
	})
}

// Query relays to the collector's downstream.
func (p *Pad) Query(ctx context.Context, q *media.Query) bool {
	return media.GuardBool(func() bool {
		return p.c.Query(ctx, q)
	})
}
