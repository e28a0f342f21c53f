package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/mattjoyce/hype/internal/dispatch"
	"github.com/mattjoyce/hype/internal/media"
	"github.com/mattjoyce/hype/internal/scene"
)

// Source is where a branch reads its items from. *dispatch.Output
// implements it.
type Source interface {
	Pop(ctx context.Context) (media.Item, error)
}

// ErrorHandler is told about every worker failure. Failures never stop the
// branch.
type ErrorHandler func(worker string, err error)

// Branch drives one worker between a source and a sink.
type Branch struct {
	worker  Worker
	in      Source
	out     media.Sink
	logger  *slog.Logger
	onError ErrorHandler

	processed atomic.Uint64
	emitted   atomic.Uint64
	dropped   atomic.Uint64
	failures  atomic.Uint64
	scenes    atomic.Uint64
}

// NewBranch wires w between in and out.
func NewBranch(logger *slog.Logger, w Worker, in Source, out media.Sink, onError ErrorHandler) *Branch {
	return &Branch{
		worker:  w,
		in:      in,
		out:     out,
		logger:  logger.With("worker", w.Name()),
		onError: onError,
	}
}

// Worker returns the driven worker.
func (b *Branch) Worker() Worker { return b.worker }

// Run processes items until end of stream, a closed source, or ctx ends.
// Frames go through Process; a force-key-unit flushes; a boundary flushes and
// is then forwarded; EOS flushes, is forwarded and ends the loop. Other events
// pass through.
func (b *Branch) Run(ctx context.Context) error {
	b.logger.Debug("branch started")
	defer b.logger.Debug("branch stopped")

	emit := func(ctx context.Context, buf *media.Buffer) error {
		if err := b.out.Chain(ctx, buf); err != nil {
			return err
		}
		b.emitted.Add(1)
		return nil
	}

	for {
		it, err := b.in.Pop(ctx)
		if err != nil {
			if errors.Is(err, dispatch.ErrQueueClosed) {
				return nil
			}
			return err
		}

		if it.Buffer != nil {
			b.processed.Add(1)
			if err := b.worker.Process(ctx, it.Buffer, emit); err != nil {
				b.dropped.Add(1)
				b.fail(err)
			}
			continue
		}

		ev := it.Event
		switch {
		case ev.Type == media.EventForceKeyUnit:
			b.flush(ctx, emit)
		case ev.Type == media.EventEOS:
			b.flush(ctx, emit)
			b.out.Event(ctx, ev)
			return nil
		default:
			if bd, ok := scene.Parse(ev); ok {
				b.flush(ctx, emit)
				if sa, ok := b.worker.(SceneAware); ok {
					sa.BeginScene(bd)
				}
				b.scenes.Add(1)
			}
			if !b.out.Event(ctx, ev) {
				b.logger.Warn("event not accepted downstream", "event", ev.String())
			}
		}
	}
}

func (b *Branch) flush(ctx context.Context, emit Emit) {
	if err := b.worker.Flush(ctx, emit); err != nil {
		b.fail(err)
	}
}

func (b *Branch) fail(err error) {
	b.failures.Add(1)
	b.logger.Error("worker failed", "error", err)
	if b.onError != nil {
		b.onError(b.worker.Name(), err)
	}
}

// BranchStats describes one branch.
type BranchStats struct {
	Worker    string `json:"worker"`
	Kind      string `json:"kind"`
	Scenes    uint64 `json:"scenes"`
	Processed uint64 `json:"processed"`
	Emitted   uint64 `json:"emitted"`
	Dropped   uint64 `json:"dropped"`
	Failures  uint64 `json:"failures"`
}

// Stats returns the branch counters.
func (b *Branch) Stats() BranchStats {
	return BranchStats{
		Worker:    b.worker.Name(),
		Kind:      b.worker.Kind().String(),
		Scenes:    b.scenes.Load(),
		Processed: b.processed.Load(),
		Emitted:   b.emitted.Load(),
		Dropped:   b.dropped.Load(),
		Failures:  b.failures.Load(),
	}
}
