// Package segment splits an ordered frame stream into fixed-size scenes by
// inserting a scene boundary event in front of every group-aligned frame.
package segment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mattjoyce/hype/internal/media"
	"github.com/mattjoyce/hype/internal/scene"
)

// DefaultGroupSize is the number of frames per scene until configured.
const DefaultGroupSize uint32 = 10

var (
	// ErrBoundaryNotDelivered is returned from Chain when downstream refused a
	// boundary event. The frame is not forwarded.
	ErrBoundaryNotDelivered = errors.New("scene boundary not delivered")

	// ErrInvalidGroupSize rejects a zero group size.
	ErrInvalidGroupSize = errors.New("group size must be at least 1")
)

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithGroupSize sets the initial group size. Zero is ignored.
func WithGroupSize(n uint32) Option {
	return func(s *Segmenter) {
		if n > 0 {
			s.groupSize.Store(n)
		}
	}
}

// WithLenientBoundaries makes an undelivered boundary a logged warning
// instead of a failure of the frame that triggered it.
func WithLenientBoundaries() Option {
	return func(s *Segmenter) { s.lenient = true }
}

// WithObserver registers a callback invoked after each boundary is delivered.
func WithObserver(fn func(scene.Boundary)) Option {
	return func(s *Segmenter) { s.observe = fn }
}

// Segmenter is a single-input single-output element.
type Segmenter struct {
	downstream media.Sink
	logger     *slog.Logger
	lenient    bool
	observe    func(scene.Boundary)

	groupSize atomic.Uint32

	mu         sync.Mutex
	boundaries uint64
	frames     uint64
	lastIndex  int64
}

// New creates a Segmenter pushing into downstream.
func New(logger *slog.Logger, downstream media.Sink, opts ...Option) *Segmenter {
	s := &Segmenter{
		downstream: downstream,
		logger:     logger,
		lastIndex:  -1,
	}
	s.groupSize.Store(DefaultGroupSize)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetGroupSize changes the group size; the change applies from the next frame
// examined.
func (s *Segmenter) SetGroupSize(n uint32) error {
	if n == 0 {
		return ErrInvalidGroupSize
	}
	old := s.groupSize.Swap(n)
	if old != n {
		s.logger.Info("group size changed", "from", old, "to", n)
	}
	return nil
}

// GroupSize returns the current group size.
func (s *Segmenter) GroupSize() uint32 {
	return s.groupSize.Load()
}

// Chain examines buf's offset and, on a group-aligned frame, announces a new
// scene before forwarding the frame.
func (s *Segmenter) Chain(ctx context.Context, buf *media.Buffer) error {
	g := uint64(s.groupSize.Load())

	s.mu.Lock()
	s.frames++
	s.mu.Unlock()

	if buf.Offset != media.OffsetNone && buf.Offset%g == 0 {
		b := scene.Boundary{Index: uint32(buf.Offset / g), GroupSize: uint32(g)}
		if !s.downstream.Event(ctx, scene.NewEvent(b)) {
			if !s.lenient {
				return fmt.Errorf("%w: %s at offset %d", ErrBoundaryNotDelivered, b, buf.Offset)
			}
			s.logger.Warn("scene boundary not delivered", "scene", b.Index, "offset", buf.Offset)
		} else {
			s.mu.Lock()
			s.boundaries++
			s.lastIndex = int64(b.Index)
			s.mu.Unlock()
			s.logger.Debug("scene boundary", "scene", b.Index, "group_size", b.GroupSize, "offset", buf.Offset)
			if s.observe != nil {
				s.observe(b)
			}
		}
	}

	return s.downstream.Chain(ctx, buf)
}

// ChainList segments each buffer in turn.
func (s *Segmenter) ChainList(ctx context.Context, list media.BufferList) error {
	for _, b := range list {
		if err := s.Chain(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// Event forwards every event unchanged.
func (s *Segmenter) Event(ctx context.Context, ev *media.Event) bool {
	return s.downstream.Event(ctx, ev)
}

// Query relays to downstream.
func (s *Segmenter) Query(ctx context.Context, q *media.Query) bool {
	return s.downstream.Query(ctx, q)
}

// Stats is a point-in-time view of a Segmenter.
type Stats struct {
	GroupSize  uint32 `json:"group_size"`
	Frames     uint64 `json:"frames"`
	Boundaries uint64 `json:"boundaries"`
	// LastScene is -1 before the first boundary.
	LastScene int64 `json:"last_scene"`
}

// Stats returns a snapshot of the segmenter counters.
func (s *Segmenter) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		GroupSize:  s.groupSize.Load(),
		Frames:     s.frames,
		Boundaries: s.boundaries,
		LastScene:  s.lastIndex,
	}
}
