package media

import (
	"context"
	"sync"

	"github.com/mattjoyce/hype/internal/caps"
)

// CollectSink is a terminal Sink that keeps everything it receives. It backs
// the CLI's output stage and the tests.
type CollectSink struct {
	mu      sync.Mutex
	buffers []*Buffer
	lists   int
	events  []*Event
	accept  caps.Caps

	eos     chan struct{}
	eosOnce sync.Once
	eosSeen int

	// OnBuffer, when set, is invoked for every received buffer after it has
	// been recorded. Returning an error refuses the push.
	OnBuffer func(*Buffer) error
}

// NewCollectSink returns a sink that accepts any caps.
func NewCollectSink() *CollectSink {
	return &CollectSink{accept: caps.Any(), eos: make(chan struct{})}
}

// SetAcceptCaps restricts the caps answered to caps queries.
func (s *CollectSink) SetAcceptCaps(c caps.Caps) {
	s.mu.Lock()
	s.accept = c
	s.mu.Unlock()
}

func (s *CollectSink) Chain(ctx context.Context, buf *Buffer) error {
	s.mu.Lock()
	s.buffers = append(s.buffers, buf)
	cb := s.OnBuffer
	s.mu.Unlock()
	if cb != nil {
		return cb(buf)
	}
	return nil
}

func (s *CollectSink) ChainList(ctx context.Context, list BufferList) error {
	s.mu.Lock()
	s.lists++
	s.mu.Unlock()
	for _, b := range list {
		if err := s.Chain(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func (s *CollectSink) Event(ctx context.Context, ev *Event) bool {
	s.mu.Lock()
	s.events = append(s.events, ev)
	if ev.Type == EventEOS {
		s.eosSeen++
	}
	s.mu.Unlock()
	if ev.Type == EventEOS {
		s.eosOnce.Do(func() { close(s.eos) })
	}
	return true
}

func (s *CollectSink) Query(ctx context.Context, q *Query) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch q.Type {
	case QueryCaps:
		q.Result = s.accept.Intersect(orAny(q.Filter))
		return true
	case QueryAcceptCaps:
		q.Accepted = s.accept.CanIntersect(q.Caps)
		return true
	}
	return false
}

// Buffers returns a snapshot of received buffers in arrival order.
func (s *CollectSink) Buffers() []*Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Buffer(nil), s.buffers...)
}

// Events returns a snapshot of received events in arrival order.
func (s *CollectSink) Events() []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Event(nil), s.events...)
}

// Lists returns how many buffer lists were pushed.
func (s *CollectSink) Lists() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists
}

// EOSCount returns how many EOS events arrived.
func (s *CollectSink) EOSCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eosSeen
}

// WaitEOS blocks until the first EOS arrives or ctx is done.
func (s *CollectSink) WaitEOS(ctx context.Context) error {
	select {
	case <-s.eos:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func orAny(c caps.Caps) caps.Caps {
	if c.IsEmpty() {
		return caps.Any()
	}
	return c
}
