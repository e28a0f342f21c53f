package collect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mattjoyce/hype/internal/caps"
	"github.com/mattjoyce/hype/internal/media"
	"github.com/mattjoyce/hype/internal/scene"
)

var (
	// ErrNoOpenScene rejects a frame that arrives on an input before any
	// boundary.
	ErrNoOpenScene = errors.New("no open scene on input")
	// ErrLateBuffer rejects a frame for a scene that has already been sent.
	ErrLateBuffer = errors.New("scene already emitted")
	// ErrInputEOS rejects data after the input reported end of stream.
	ErrInputEOS = errors.New("input already at end of stream")
)

// Emitted describes one scene pushed downstream.
type Emitted struct {
	Index    uint32
	Input    string
	Buffers  int
	Bytes    int
	FirstPTS time.Duration
	LastPTS  time.Duration
	// Latency is the time from the scene's first frame to its emission.
	Latency time.Duration
	Err     error
}

// Option configures a Collector.
type Option func(*Collector)

// WithEmitObserver registers fn, called for every emitted scene in order.
func WithEmitObserver(fn func(Emitted)) Option {
	return func(c *Collector) { c.onEmit = fn }
}

// WithSkipObserver registers fn, called for each index given up at end of
// stream.
func WithSkipObserver(fn func(index uint32)) Option {
	return func(c *Collector) { c.onSkip = fn }
}

// WithEOSObserver registers fn, called once after the terminal EOS.
func WithEOSObserver(fn func()) Option {
	return func(c *Collector) { c.onEOS = fn }
}

type record struct {
	index   uint32
	buffers media.BufferList
	// openBy holds the inputs whose cursor currently points here.
	openBy    map[*Pad]struct{}
	first     *Pad
	completed bool
	started   time.Time
}

// Collector is the scene reassembler.
type Collector struct {
	downstream media.Sink
	logger     *slog.Logger
	onEmit     func(Emitted)
	onSkip     func(uint32)
	onEOS      func()
	now        func() time.Time

	mu         sync.Mutex
	pads       []*Pad
	scenes     map[uint32]*record
	nextToSend uint64
	eosInputs  int
	eosSent    bool
	lastCaps   *caps.Caps
	started    bool

	emitted    uint64
	skipped    uint64
	lateDrops  uint64
	flowErrors uint64
	failed     uint64

	emitMu sync.Mutex
	done   chan struct{}
}

// New creates a Collector pushing into downstream.
func New(logger *slog.Logger, downstream media.Sink, opts ...Option) *Collector {
	c := &Collector{
		downstream: downstream,
		logger:     logger,
		scenes:     make(map[uint32]*record),
		now:        time.Now,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddInput allocates a new input pad named sink_<n>.
func (c *Collector) AddInput() *Pad {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := &Pad{c: c, index: len(c.pads), name: fmt.Sprintf("sink_%d", len(c.pads))}
	c.pads = append(c.pads, p)
	return p
}

// Inputs returns the input pads in creation order.
func (c *Collector) Inputs() []*Pad {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Pad(nil), c.pads...)
}

// Done is closed once the terminal EOS has been pushed downstream.
func (c *Collector) Done() <-chan struct{} { return c.done }

// Query relays q to downstream and hands the answer back untouched.
func (c *Collector) Query(ctx context.Context, q *media.Query) bool {
	return c.downstream.Query(ctx, q)
}

func (c *Collector) onData(ctx context.Context, p *Pad, bufs ...*media.Buffer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case p.eos:
		c.flowErrors++
		return media.NewFlowError(media.FlowEOS, p.name, ErrInputEOS)
	case !p.open:
		c.flowErrors++
		return media.NewFlowError(media.FlowFailed, p.name, ErrNoOpenScene)
	}
	rec, ok := c.scenes[p.cursor]
	if !ok {
		c.lateDrops += uint64(len(bufs))
		c.flowErrors++
		c.logger.Warn("late frame dropped", "input", p.name, "scene", p.cursor)
		return media.NewFlowError(media.FlowFailed, p.name, fmt.Errorf("%w: scene %d", ErrLateBuffer, p.cursor))
	}
	if len(rec.buffers) == 0 {
		rec.started = c.now()
	}
	rec.buffers = append(rec.buffers, bufs...)
	return nil
}

func (c *Collector) onBoundary(ctx context.Context, p *Pad, b scene.Boundary) error {
	c.mu.Lock()
	if p.eos {
		c.mu.Unlock()
		c.logger.Warn("boundary after end of stream", "input", p.name, "scene", b.Index)
		return nil
	}
	if p.open && p.cursor == b.Index {
		c.mu.Unlock()
		c.logger.Debug("repeated boundary ignored", "input", p.name, "scene", b.Index)
		return nil
	}
	c.supersede(p)

	if uint64(b.Index) < c.nextToSend {
		c.logger.Warn("boundary for scene already emitted", "input", p.name, "scene", b.Index, "next", c.nextToSend)
		// Keep the cursor so the frames that follow are rejected as late.
		p.open, p.cursor = true, b.Index
		return c.flush(ctx, p)
	}

	rec, ok := c.scenes[b.Index]
	if !ok {
		rec = &record{index: b.Index, openBy: make(map[*Pad]struct{}), first: p}
		c.scenes[b.Index] = rec
	}
	rec.openBy[p] = struct{}{}
	p.open, p.cursor = true, b.Index
	p.scenes++
	c.logger.Debug("scene opened", "input", p.name, "scene", b.Index, "shared", len(rec.openBy) > 1)
	return c.flush(ctx, p)
}

func (c *Collector) handleEOS(ctx context.Context, p *Pad) error {
	c.mu.Lock()
	if p.eos {
		c.mu.Unlock()
		return nil
	}
	p.eos = true
	c.eosInputs++
	c.supersede(p)
	p.open = false
	c.logger.Debug("input at end of stream", "input", p.name, "eos_inputs", c.eosInputs, "inputs", len(c.pads))

	if c.eosInputs < len(c.pads) {
		return c.flush(ctx, p)
	}
	return c.finish(ctx, p)
}

// supersede detaches p from the scene it has open. Callers hold c.mu.
func (c *Collector) supersede(p *Pad) {
	if !p.open {
		return
	}
	rec, ok := c.scenes[p.cursor]
	if !ok {
		return
	}
	delete(rec.openBy, p)
	if len(rec.openBy) == 0 && !rec.completed {
		rec.completed = true
		c.logger.Debug("scene completed", "scene", rec.index, "buffers", len(rec.buffers))
	}
}

// takeReady removes the record at next-to-send when it is complete. Callers
// hold c.mu.
func (c *Collector) takeReady() *record {
	if c.nextToSend > uint64(^uint32(0)) {
		return nil
	}
	rec, ok := c.scenes[uint32(c.nextToSend)]
	if !ok || !rec.completed {
		return nil
	}
	delete(c.scenes, rec.index)
	c.nextToSend++
	c.emitted++
	return rec
}

// flush emits completed scenes in order, one per table critical section. It
// is called with c.mu held and returns with it released. The first failure
// stops the flush; later scenes wait for the next trigger.
func (c *Collector) flush(ctx context.Context, p *Pad) error {
	for {
		rec := c.takeReady()
		if rec == nil {
			c.mu.Unlock()
			return nil
		}
		if err := c.emitLocked(ctx, rec); err != nil {
			c.mu.Lock()
			c.flowErrors++
			c.failed++
			c.mu.Unlock()
			return media.NewFlowError(media.FlowCodeOf(err), p.name, fmt.Errorf("emit scene %d: %w", rec.index, err))
		}
		c.mu.Lock()
	}
}

// finish drains the table after the last input reached end of stream and
// pushes the terminal EOS. Called with c.mu held; returns with it released.
func (c *Collector) finish(ctx context.Context, p *Pad) error {
	var firstErr error
	for {
		if c.eosSent {
			c.mu.Unlock()
			return firstErr
		}
		if rec := c.takeReady(); rec != nil {
			err := c.emitLocked(ctx, rec)
			c.mu.Lock()
			if err != nil {
				c.flowErrors++
				c.failed++
				if firstErr == nil {
					firstErr = media.NewFlowError(media.FlowCodeOf(err), p.name, fmt.Errorf("emit scene %d: %w", rec.index, err))
				}
			}
			continue
		}
		if len(c.scenes) > 0 {
			c.skipGap()
			continue
		}

		c.eosSent = true
		emitted, skipped := c.emitted, c.skipped
		c.emitMu.Lock()
		c.mu.Unlock()
		c.pushEOS(ctx, emitted, skipped)
		return firstErr
	}
}

func (c *Collector) pushEOS(ctx context.Context, emitted, skipped uint64) {
	defer c.emitMu.Unlock()
	defer close(c.done)
	if !c.downstream.Event(ctx, media.NewEOS()) {
		c.logger.Warn("downstream refused end of stream")
	}
	c.logger.Info("stream finished", "emitted", emitted, "skipped", skipped)
	if c.onEOS != nil {
		c.onEOS()
	}
}

// emitLocked takes the emit lock, releases the table lock and pushes rec.
// Callers hold c.mu; it is released on return.
func (c *Collector) emitLocked(ctx context.Context, rec *record) error {
	c.emitMu.Lock()
	c.mu.Unlock()
	defer c.emitMu.Unlock()
	return c.emit(ctx, rec)
}

// skipGap advances next-to-send past indices that never arrived up to the
// lowest remaining record. Records still open at this point belong to inputs
// that never completed them and are closed as they are. Callers hold c.mu.
func (c *Collector) skipGap() {
	keys := make([]uint32, 0, len(c.scenes))
	for k, rec := range c.scenes {
		keys = append(keys, k)
		rec.completed = true
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	lowest := uint64(keys[0])
	for ; c.nextToSend < lowest; c.nextToSend++ {
		idx := uint32(c.nextToSend)
		c.skipped++
		c.logger.Warn("scene never arrived, skipping", "scene", idx)
		if c.onSkip != nil {
			c.onSkip(idx)
		}
	}
}

// emit pushes one scene downstream. Callers hold c.emitMu.
func (c *Collector) emit(ctx context.Context, rec *record) error {
	var err error
	if len(rec.buffers) > 0 {
		err = c.downstream.ChainList(ctx, rec.buffers)
	}

	e := Emitted{Index: rec.index, Buffers: len(rec.buffers), Bytes: rec.buffers.Bytes(), Err: err}
	if rec.first != nil {
		e.Input = rec.first.name
	}
	if n := len(rec.buffers); n > 0 {
		e.FirstPTS = rec.buffers[0].PTS
		e.LastPTS = rec.buffers[n-1].PTS
		e.Latency = c.now().Sub(rec.started)
	}
	if err != nil {
		c.logger.Error("scene push failed", "scene", rec.index, "error", err)
	} else {
		c.logger.Debug("scene emitted", "scene", rec.index, "buffers", e.Buffers)
	}
	if c.onEmit != nil {
		c.onEmit(e)
	}
	return err
}

// relay forwards a non-boundary event from an input. Stream start goes out
// once and caps only when they change.
func (c *Collector) relay(ctx context.Context, p *Pad, ev *media.Event) bool {
	c.mu.Lock()
	switch ev.Type {
	case media.EventStreamStart:
		if c.started {
			c.mu.Unlock()
			return true
		}
		c.started = true
	case media.EventCaps:
		if c.lastCaps != nil && c.lastCaps.Equal(ev.Caps) {
			c.mu.Unlock()
			return true
		}
		cp := ev.Caps
		c.lastCaps = &cp
	case media.EventForceKeyUnit:
		c.mu.Unlock()
		return true
	}
	c.emitMu.Lock()
	c.mu.Unlock()
	defer c.emitMu.Unlock()
	ok := c.downstream.Event(ctx, ev)
	if !ok {
		c.logger.Warn("downstream refused event", "input", p.name, "event", ev.String())
	}
	return ok
}

// InputStats describes one input pad.
type InputStats struct {
	Name   string `json:"name"`
	Open   bool   `json:"open"`
	Cursor uint32 `json:"cursor"`
	EOS    bool   `json:"eos"`
	Scenes uint64 `json:"scenes"`
}

// Stats is a point-in-time view of a Collector.
type Stats struct {
	Inputs     []InputStats `json:"inputs"`
	EOSInputs  int          `json:"eos_inputs"`
	NextToSend uint64       `json:"next_to_send"`
	Pending    []uint32     `json:"pending"`
	Emitted    uint64       `json:"emitted"`
	Skipped    uint64       `json:"skipped"`
	LateDrops  uint64       `json:"late_drops"`
	FlowErrors uint64       `json:"flow_errors"`
	// Failed counts scenes whose downstream push was refused.
	Failed     uint64       `json:"failed"`
	Finished   bool         `json:"finished"`
}

// Stats returns a snapshot of the reassembly state.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Stats{
		EOSInputs:  c.eosInputs,
		NextToSend: c.nextToSend,
		Emitted:    c.emitted,
		Skipped:    c.skipped,
		LateDrops:  c.lateDrops,
		FlowErrors: c.flowErrors,
		Failed:     c.failed,
		Finished:   c.eosSent,
	}
	for _, p := range c.pads {
		st.Inputs = append(st.Inputs, InputStats{Name: p.name, Open: p.open, Cursor: p.cursor, EOS: p.eos, Scenes: p.scenes})
	}
	for k := range c.scenes {
		st.Pending = append(st.Pending, k)
	}
	sort.Slice(st.Pending, func(i, j int) bool { return st.Pending[i] < st.Pending[j] })
	return st
}
