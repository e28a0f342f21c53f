package main

import (
	"context"
	"io"
	"sync"

	"github.com/mattjoyce/hype/internal/caps"
	"github.com/mattjoyce/hype/internal/media"
)

// outputSink terminates the stage: it writes payloads to w when set and
// counts what arrived. It accepts any caps.
type outputSink struct {
	mu      sync.Mutex
	w       io.Writer
	buffers uint64
	bytes   uint64
	caps    string
	eos     bool
	err     error
}

func newOutputSink(w io.Writer) *outputSink {
	return &outputSink{w: w}
}

func (o *outputSink) Chain(_ context.Context, buf *media.Buffer) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return media.NewFlowError(media.FlowFailed, "output", o.err)
	}
	if o.w != nil {
		if _, err := o.w.Write(buf.Data); err != nil {
			o.err = err
			return media.NewFlowError(media.FlowFailed, "output", err)
		}
	}
	o.buffers++
	o.bytes += uint64(len(buf.Data))
	return nil
}

func (o *outputSink) ChainList(ctx context.Context, list media.BufferList) error {
	for _, b := range list {
		if err := o.Chain(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func (o *outputSink) Event(_ context.Context, ev *media.Event) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch ev.Type {
	case media.EventCaps:
		o.caps = ev.Caps.String()
	case media.EventEOS:
		o.eos = true
	}
	return true
}

func (o *outputSink) Query(_ context.Context, q *media.Query) bool {
	switch q.Type {
	case media.QueryCaps:
		q.Result = q.Filter
		if q.Filter.IsEmpty() {
			q.Result = caps.Any()
		}
		return true
	case media.QueryAcceptCaps:
		q.Accepted = true
		return true
	}
	return false
}

func (o *outputSink) totals() (buffers, bytes uint64, outCaps string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buffers, o.bytes, o.caps
}
