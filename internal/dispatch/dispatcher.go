package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mattjoyce/hype/internal/caps"
	"github.com/mattjoyce/hype/internal/media"
	"github.com/mattjoyce/hype/internal/scene"
)

// Handle identifies an output in the dispatcher's registry.
type Handle int

// NoHandle means no output is selected.
const NoHandle Handle = -1

var errNoOutputs = errors.New("dispatcher has no outputs")

// Output is one worker-facing channel. The worker branch drains it with Pop.
type Output struct {
	handle Handle
	name   string
	queue  *Queue

	scenes  atomic.Uint64
	buffers atomic.Uint64
}

// Handle returns the registry handle of o.
func (o *Output) Handle() Handle { return o.handle }

// Name returns the channel name, src_<n>.
func (o *Output) Name() string { return o.name }

// Pop returns the next buffer or event routed to o.
func (o *Output) Pop(ctx context.Context) (media.Item, error) {
	return o.queue.Pop(ctx)
}

// Queue exposes the bounded queue behind o.
func (o *Output) Queue() *Queue { return o.queue }

// Observer is told about every scene routed by the dispatcher.
type Observer func(b scene.Boundary, out *Output)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithQueueCapacity sets the buffer capacity of outputs created afterwards.
func WithQueueCapacity(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.capacity = n
		}
	}
}

// WithObserver registers fn to be called on every scene switch.
func WithObserver(fn Observer) Option {
	return func(d *Dispatcher) { d.observe = fn }
}

// Dispatcher is the round-robin output selector.
type Dispatcher struct {
	logger   *slog.Logger
	capacity int
	observe  Observer

	mu       sync.Mutex
	registry map[Handle]*Output
	order    []Handle
	next     Handle
	active   Handle
	eos      bool

	boundaries  uint64
	fkuFailures uint64
}

// New creates a Dispatcher with no outputs.
func New(logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger:   logger,
		capacity: DefaultQueueCapacity,
		registry: make(map[Handle]*Output),
		active:   NoHandle,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// AddChannel allocates a new output at the end of the rotation.
func (d *Dispatcher) AddChannel() *Output {
	d.mu.Lock()
	defer d.mu.Unlock()

	h := d.next
	d.next++
	out := &Output{
		handle: h,
		name:   fmt.Sprintf("src_%d", h),
		queue:  NewQueue(d.capacity),
	}
	d.registry[h] = out
	d.order = append(d.order, h)
	d.logger.Debug("output added", "output", out.name, "outputs", len(d.order), "capacity", d.capacity)
	return out
}

// Output looks up an output by handle.
func (d *Dispatcher) Output(h Handle) (*Output, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out, ok := d.registry[h]
	return out, ok
}

// Outputs returns the outputs in rotation order.
func (d *Dispatcher) Outputs() []*Output {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Output, 0, len(d.order))
	for _, h := range d.order {
		out = append(out, d.registry[h])
	}
	return out
}

// Active returns the handle of the selected output.
func (d *Dispatcher) Active() Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Chain forwards buf to the active output, blocking while its queue is full.
// Frames arriving before the first boundary go to the first output.
func (d *Dispatcher) Chain(ctx context.Context, buf *media.Buffer) error {
	d.mu.Lock()
	if d.eos {
		d.mu.Unlock()
		return media.NewFlowError(media.FlowEOS, "", errors.New("buffer after end of stream"))
	}
	out := d.current()
	d.mu.Unlock()

	if out == nil {
		return media.NewFlowError(media.FlowNotLinked, "", errNoOutputs)
	}
	if err := out.queue.PushBuffer(ctx, buf); err != nil {
		var fe *media.FlowError
		if errors.As(err, &fe) && fe.Channel == "" {
			fe.Channel = out.name
		}
		return err
	}
	out.buffers.Add(1)
	return nil
}

// ChainList forwards every buffer of list in order.
func (d *Dispatcher) ChainList(ctx context.Context, list media.BufferList) error {
	for _, b := range list {
		if err := d.Chain(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// Event routes a boundary to the newly selected output and copies every other
// event to all outputs.
func (d *Dispatcher) Event(ctx context.Context, ev *media.Event) bool {
	if b, ok := scene.Parse(ev); ok {
		out := d.onBoundary(b)
		if out == nil {
			d.logger.Warn("scene boundary with no outputs", "scene", b.Index)
			return false
		}
		if err := out.queue.PushEvent(ev); err != nil {
			d.logger.Warn("scene boundary not queued", "scene", b.Index, "output", out.name, "error", err)
			return false
		}
		return true
	}

	outs := d.Outputs()
	if ev.Type == media.EventEOS {
		d.mu.Lock()
		d.eos = true
		d.mu.Unlock()
		d.logger.Debug("end of stream", "outputs", len(outs))
	}
	if len(outs) == 0 {
		return false
	}
	handled := true
	for _, out := range outs {
		if err := out.queue.PushEvent(ev); err != nil {
			d.logger.Warn("event not queued", "event", ev.String(), "output", out.name, "error", err)
			handled = false
		}
	}
	return handled
}

// onBoundary switches the active output to index mod N and asks the output
// that was active before to close its unit.
func (d *Dispatcher) onBoundary(b scene.Boundary) *Output {
	d.mu.Lock()
	if len(d.order) == 0 {
		d.mu.Unlock()
		return nil
	}
	prev := d.registry[d.active]
	selected := d.registry[d.order[int(b.Index)%len(d.order)]]
	d.active = selected.handle
	d.boundaries++
	d.mu.Unlock()

	selected.scenes.Add(1)
	d.logger.Debug("scene routed", "scene", b.Index, "output", selected.name)

	if prev != nil {
		if err := prev.queue.PushEvent(media.NewForceKeyUnit()); err != nil {
			d.mu.Lock()
			d.fkuFailures++
			d.mu.Unlock()
			d.logger.Warn("force key unit not delivered", "output", prev.name, "error", err)
		}
	}
	if d.observe != nil {
		d.observe(b, selected)
	}
	return selected
}

// current returns the output data should go to. Callers hold d.mu.
func (d *Dispatcher) current() *Output {
	if out, ok := d.registry[d.active]; ok {
		return out
	}
	if len(d.order) == 0 {
		return nil
	}
	return d.registry[d.order[0]]
}

// Query answers caps questions for the upstream side. Outputs accept any caps.
func (d *Dispatcher) Query(ctx context.Context, q *media.Query) bool {
	switch q.Type {
	case media.QueryCaps:
		q.Result = caps.Any().Intersect(orAny(q.Filter))
		return true
	case media.QueryAcceptCaps:
		q.Accepted = true
		return true
	}
	return false
}

// Close closes every output queue. Blocked producers return a flushing error.
func (d *Dispatcher) Close() {
	for _, out := range d.Outputs() {
		out.queue.Close()
	}
}

// OutputStats describes one output.
type OutputStats struct {
	Name     string `json:"name"`
	Handle   int    `json:"handle"`
	Queued   int    `json:"queued"`
	Capacity int    `json:"capacity"`
	Scenes   uint64 `json:"scenes"`
	Buffers  uint64 `json:"buffers"`
}

// Stats is a point-in-time view of a Dispatcher.
type Stats struct {
	Active               string        `json:"active,omitempty"`
	Boundaries           uint64        `json:"boundaries"`
	ForceKeyUnitFailures uint64        `json:"force_key_unit_failures"`
	Outputs              []OutputStats `json:"outputs"`
}

// Stats returns a snapshot of routing counters and queue levels.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	st := Stats{Boundaries: d.boundaries, ForceKeyUnitFailures: d.fkuFailures}
	if out, ok := d.registry[d.active]; ok {
		st.Active = out.name
	}
	outs := make([]*Output, 0, len(d.order))
	for _, h := range d.order {
		outs = append(outs, d.registry[h])
	}
	d.mu.Unlock()

	for _, out := range outs {
		st.Outputs = append(st.Outputs, OutputStats{
			Name:     out.name,
			Handle:   int(out.handle),
			Queued:   out.queue.Len(),
			Capacity: out.queue.Cap(),
			Scenes:   out.scenes.Load(),
			Buffers:  out.buffers.Load(),
		})
	}
	return st
}

func orAny(c caps.Caps) caps.Caps {
	if c.IsEmpty() {
		return caps.Any()
	}
	return c
}
