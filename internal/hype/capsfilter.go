package hype

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/mattjoyce/hype/internal/caps"
	"github.com/mattjoyce/hype/internal/media"
)

// capsFilter restricts what leaves the stage to the caps every worker can
// produce.
type capsFilter struct {
	logger *slog.Logger

	mu         sync.RWMutex
	caps       caps.Caps
	downstream media.Sink
}

func newCapsFilter(logger *slog.Logger) *capsFilter {
	return &capsFilter{logger: logger, caps: caps.Any()}
}

func (f *capsFilter) setCaps(c caps.Caps) {
	f.mu.Lock()
	f.caps = c
	f.mu.Unlock()
}

func (f *capsFilter) Caps() caps.Caps {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.caps
}

func (f *capsFilter) link(sink media.Sink) {
	f.mu.Lock()
	f.downstream = sink
	f.mu.Unlock()
}

func (f *capsFilter) peer() media.Sink {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.downstream
}

func (f *capsFilter) Chain(ctx context.Context, buf *media.Buffer) error {
	down := f.peer()
	if down == nil {
		return media.NewFlowError(media.FlowNotLinked, "capsfilter", errors.New("no downstream"))
	}
	return down.Chain(ctx, buf)
}

func (f *capsFilter) ChainList(ctx context.Context, list media.BufferList) error {
	down := f.peer()
	if down == nil {
		return media.NewFlowError(media.FlowNotLinked, "capsfilter", errors.New("no downstream"))
	}
	return down.ChainList(ctx, list)
}

// Event rejects caps the filter does not allow.
func (f *capsFilter) Event(ctx context.Context, ev *media.Event) bool {
	if ev.Type == media.EventCaps {
		allowed := f.Caps()
		if !allowed.CanIntersect(ev.Caps) {
			f.logger.Warn("caps not accepted", "caps", ev.Caps.String(), "allowed", allowed.String())
			return false
		}
	}
	down := f.peer()
	if down == nil {
		return false
	}
	return down.Event(ctx, ev)
}

// Query narrows caps questions by the filter before asking downstream.
func (f *capsFilter) Query(ctx context.Context, q *media.Query) bool {
	down := f.peer()
	allowed := f.Caps()
	switch q.Type {
	case media.QueryCaps:
		filter := allowed
		if !q.Filter.IsEmpty() {
			filter = allowed.Intersect(q.Filter)
		}
		if down == nil {
			q.Result = filter
			return true
		}
		inner := media.NewCapsQuery(filter)
		if !down.Query(ctx, inner) {
			q.Result = filter
			return true
		}
		q.Result = filter.Intersect(inner.Result)
		return true
	case media.QueryAcceptCaps:
		if !allowed.CanIntersect(q.Caps) {
			q.Accepted = false
			return true
		}
	}
	if down == nil {
		return false
	}
	return down.Query(ctx, q)
}
