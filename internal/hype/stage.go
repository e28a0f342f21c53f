package hype

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mattjoyce/hype/internal/caps"
	"github.com/mattjoyce/hype/internal/collect"
	"github.com/mattjoyce/hype/internal/dispatch"
	"github.com/mattjoyce/hype/internal/events"
	"github.com/mattjoyce/hype/internal/media"
	"github.com/mattjoyce/hype/internal/scene"
	"github.com/mattjoyce/hype/internal/segment"
	"github.com/mattjoyce/hype/internal/worker"
)

// DefaultMaxWorkers is the number of encoder slots.
const DefaultMaxWorkers = 5

// State is the stage lifecycle state.
type State int

const (
	StateNull State = iota
	StateReady
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "null"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ParseState maps a state name back to a State.
func ParseState(s string) (State, error) {
	switch s {
	case "null":
		return StateNull, nil
	case "ready":
		return StateReady, nil
	case "playing":
		return StatePlaying, nil
	}
	return 0, fmt.Errorf("unknown state %q", s)
}

var errNotPlaying = errors.New("stage is not playing")

// Option configures a Stage.
type Option func(*Stage)

// WithMaxWorkers sets the number of encoder slots.
func WithMaxWorkers(n int) Option {
	return func(s *Stage) {
		if n > 0 {
			s.maxWorkers = n
		}
	}
}

// WithGroupSize sets the initial group size.
func WithGroupSize(n uint32) Option {
	return func(s *Stage) { s.groupSize = n }
}

// WithQueueCapacity sets the buffer capacity of every dispatcher output.
func WithQueueCapacity(n int) Option {
	return func(s *Stage) { s.queueCapacity = n }
}

// WithLenientBoundaries tolerates undelivered boundaries.
func WithLenientBoundaries() Option {
	return func(s *Stage) { s.lenient = true }
}

// WithOutputCaps further restricts the caps leaving the stage.
func WithOutputCaps(c caps.Caps) Option {
	return func(s *Stage) { s.outputCaps = c }
}

// WithPublisher reports stage activity to p.
func WithPublisher(p events.Publisher) Option {
	return func(s *Stage) {
		if p != nil {
			s.publisher = p
		}
	}
}

// Stage is the hype bin.
type Stage struct {
	logger        *slog.Logger
	publisher     events.Publisher
	maxWorkers    int
	groupSize     uint32
	queueCapacity int
	lenient       bool
	outputCaps    caps.Caps

	mu         sync.Mutex
	state      State
	slots      []worker.Worker
	downstream media.Sink

	segmenter  *segment.Segmenter
	dispatcher *dispatch.Dispatcher
	collector  *collect.Collector
	capsfilter *capsFilter
	branches   []*worker.Branch

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a stage in the Null state.
func New(logger *slog.Logger, opts ...Option) *Stage {
	s := &Stage{
		logger:     logger,
		publisher:  events.Discard,
		maxWorkers: DefaultMaxWorkers,
		groupSize:  segment.DefaultGroupSize,
		outputCaps: caps.Any(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.groupSize == 0 {
		s.groupSize = segment.DefaultGroupSize
	}
	s.slots = make([]worker.Worker, s.maxWorkers)
	s.build()
	return s
}

// build creates fresh internal elements. Callers hold s.mu or own s.
func (s *Stage) build() {
	s.capsfilter = newCapsFilter(s.logger.With("element", "capsfilter"))
	s.capsfilter.link(s.downstream)

	s.collector = collect.New(s.logger.With("element", "scenecollector"), s.capsfilter,
		collect.WithEmitObserver(s.onEmitted),
		collect.WithSkipObserver(func(idx uint32) {
			s.publisher.Publish(events.TypeSceneSkipped, events.SceneSkipped{Scene: idx})
		}),
	)

	s.dispatcher = dispatch.New(s.logger.With("element", "outputselector"),
		dispatch.WithQueueCapacity(s.queueCapacity),
		dispatch.WithObserver(func(b scene.Boundary, out *dispatch.Output) {
			s.publisher.Publish(events.TypeSceneDispatched, events.SceneDispatched{
				Scene: b.Index, GroupSize: b.GroupSize, Output: out.Name(),
			})
		}),
	)

	groupSize := s.groupSize
	if s.segmenter != nil {
		groupSize = s.segmenter.GroupSize()
	}
	segOpts := []segment.Option{segment.WithGroupSize(groupSize)}
	if s.lenient {
		segOpts = append(segOpts, segment.WithLenientBoundaries())
	}
	s.segmenter = segment.New(s.logger.With("element", "scenedetector"), s.dispatcher, segOpts...)
	s.branches = nil
}

func (s *Stage) onEmitted(e collect.Emitted) {
	ev := events.SceneEmitted{
		Scene:     e.Index,
		Input:     e.Input,
		Buffers:   e.Buffers,
		Bytes:     e.Bytes,
		FirstPTS:  e.FirstPTS,
		LastPTS:   e.LastPTS,
		LatencyMS: float64(e.Latency.Microseconds()) / 1000,
	}
	if e.Err != nil {
		ev.Error = e.Err.Error()
	}
	s.publisher.Publish(events.TypeSceneEmitted, ev)
}

// Link sets the sink scenes are delivered to.
func (s *Stage) Link(sink media.Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downstream = sink
	s.capsfilter.link(sink)
}

// SetGroupSize changes the scene length; it applies from the next frame.
func (s *Stage) SetGroupSize(n uint32) error {
	s.mu.Lock()
	seg := s.segmenter
	s.mu.Unlock()
	if err := seg.SetGroupSize(n); err != nil {
		return &ConfigurationError{Property: "group-size", Reason: err.Error()}
	}
	return nil
}

// GroupSize returns the current scene length.
func (s *Stage) GroupSize() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.segmenter.GroupSize()
}

// MaxWorkers returns the number of slots.
func (s *Stage) MaxWorkers() int { return s.maxWorkers }

// SetWorker binds w to slot encoder-<slot>. Binding an occupied slot keeps
// the existing worker and only logs a warning. Workers that are neither
// encoders nor identity elements are refused.
func (s *Stage) SetWorker(slot int, w worker.Worker) error {
	prop := slotName(slot)
	if slot < 0 || slot >= s.maxWorkers {
		return &ConfigurationError{Property: prop, Reason: fmt.Sprintf("slot out of range [0, %d)", s.maxWorkers)}
	}
	if w == nil {
		return &ConfigurationError{Property: prop, Reason: "worker is nil"}
	}
	if k := w.Kind(); k != worker.KindVideoEncoder && k != worker.KindIdentity {
		return &ConfigurationError{Property: prop, Reason: fmt.Sprintf("%s is a %s, not a video encoder", w.Name(), k)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateNull {
		return &ConfigurationError{Property: prop, Reason: "slots can only be bound in the null state"}
	}
	if s.slots[slot] != nil {
		s.logger.Warn("encoder slot already bound, not replacing", "slot", prop, "bound", s.slots[slot].Name(), "rejected", w.Name())
		return nil
	}
	s.slots[slot] = w
	s.logger.Debug("encoder bound", "slot", prop, "worker", w.Name(), "kind", w.Kind().String())
	return nil
}

// Worker returns the worker bound to slot, if any.
func (s *Stage) Worker(slot int) (worker.Worker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot < 0 || slot >= len(s.slots) || s.slots[slot] == nil {
		return nil, false
	}
	return s.slots[slot], true
}

// State returns the current state.
func (s *Stage) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState walks the stage to target one transition at a time.
func (s *Stage) SetState(ctx context.Context, target State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.state != target {
		var err error
		from := s.state
		switch {
		case s.state == StateNull && target > StateNull:
			err = s.nullToReady()
		case s.state == StateReady && target == StatePlaying:
			s.readyToPlaying(ctx)
		case s.state == StatePlaying:
			// Queues are closed on stop, so Ready gets a fresh wiring.
			s.stopBranches()
			s.build()
			s.state = StateNull
			err = s.nullToReady()
		case s.state == StateReady && target == StateNull:
			s.build()
			s.state = StateNull
		}
		if err != nil {
			return err
		}
		s.logger.Info("state changed", "from", from.String(), "to", s.state.String())
		s.publisher.Publish(events.TypeStageState, events.StageState{From: from.String(), To: s.state.String()})
	}
	return nil
}

// nullToReady wires every bound slot in order and computes the output caps.
func (s *Stage) nullToReady() error {
	if s.downstream == nil {
		return &SetupError{Reason: "stage output is not linked"}
	}

	intersected := s.outputCaps
	var bound []int
	for i, w := range s.slots {
		if w == nil {
			continue
		}
		bound = append(bound, i)
		intersected = intersected.Intersect(w.OutputCaps())
	}
	if len(bound) == 0 {
		return &SetupError{Reason: "no encoder bound"}
	}
	if intersected.IsEmpty() {
		s.logger.Error("intersected caps are empty")
		return &SetupError{Reason: "worker output caps do not intersect", Err: fmt.Errorf("%d workers", len(bound))}
	}

	for _, i := range bound {
		w := s.slots[i]
		out := s.dispatcher.AddChannel()
		pad := s.collector.AddInput()
		br := worker.NewBranch(s.logger.With("slot", slotName(i), "output", out.Name(), "input", pad.Name()), w, out, pad, s.onWorkerError)
		s.branches = append(s.branches, br)
	}
	s.capsfilter.setCaps(intersected)
	s.logger.Debug("stage wired", "workers", len(bound), "caps", intersected.String())
	s.state = StateReady
	return nil
}

func (s *Stage) onWorkerError(name string, err error) {
	s.publisher.Publish(events.TypeWorkerError, events.WorkerError{Worker: name, Error: err.Error()})
}

func (s *Stage) readyToPlaying(ctx context.Context) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	for _, br := range s.branches {
		s.wg.Add(1)
		go func(br *worker.Branch) {
			defer s.wg.Done()
			if err := br.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("branch stopped", "worker", br.Worker().Name(), "error", err)
			}
		}(br)
	}

	coll := s.collector
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-coll.Done():
		case <-runCtx.Done():
			// A stop racing a finished stream still reports it.
			select {
			case <-coll.Done():
			default:
				return
			}
		}
		st := coll.Stats()
		s.publisher.Publish(events.TypeStreamEOS, events.StreamEOS{Emitted: st.Emitted, Skipped: st.Skipped})
	}()
	s.state = StatePlaying
}

// stopBranches unblocks and waits for every branch goroutine.
func (s *Stage) stopBranches() {
	s.dispatcher.Close()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.wg.Wait()
}

// Chain pushes a frame into the stage. It blocks while the selected worker's
// queue is full.
func (s *Stage) Chain(ctx context.Context, buf *media.Buffer) error {
	seg, err := s.input()
	if err != nil {
		return err
	}
	return seg.Chain(ctx, buf)
}

// ChainList pushes frames in order.
func (s *Stage) ChainList(ctx context.Context, list media.BufferList) error {
	seg, err := s.input()
	if err != nil {
		return err
	}
	return seg.ChainList(ctx, list)
}

// Event pushes a serialized event into the stage.
func (s *Stage) Event(ctx context.Context, ev *media.Event) bool {
	seg, err := s.input()
	if err != nil {
		return false
	}
	return seg.Event(ctx, ev)
}

// Query answers from the output side: the capsfilter and what is linked
// behind it.
func (s *Stage) Query(ctx context.Context, q *media.Query) bool {
	s.mu.Lock()
	cf := s.capsfilter
	s.mu.Unlock()
	return cf.Query(ctx, q)
}

func (s *Stage) input() (*segment.Segmenter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePlaying {
		return nil, media.NewFlowError(media.FlowFlushing, "sink", errNotPlaying)
	}
	return s.segmenter, nil
}

// Done is closed when the terminal EOS has left the stage. It belongs to the
// current wiring and is replaced after a return to Null.
func (s *Stage) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collector.Done()
}

// Wait blocks until Done or ctx ends.
func (s *Stage) Wait(ctx context.Context) error {
	select {
	case <-s.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OutputCaps returns the caps configured on the capsfilter.
func (s *Stage) OutputCaps() caps.Caps {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capsfilter.Caps()
}

func slotName(i int) string { return fmt.Sprintf("encoder-%d", i) }
