// Package source produces the raw frames `hype run` pushes into the stage.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattjoyce/hype/internal/config"
	"github.com/mattjoyce/hype/internal/media"
)

// ErrGstUnavailable is returned for gst sources in binaries built without
// the gst tag.
var ErrGstUnavailable = errors.New("built without gstreamer support (rebuild with -tags gst)")

// Source pushes a stream into sink: caps, frames with consecutive offsets,
// then one EOS. Run returns after EOS was pushed or on the first refusal.
type Source interface {
	Name() string
	Run(ctx context.Context, sink media.Sink) (Result, error)
}

// Result summarises a finished Run.
type Result struct {
	Frames uint64
	Bytes  uint64
}

// FromConfig builds the source described by sc.
func FromConfig(logger *slog.Logger, sc config.SourceConfig) (Source, error) {
	switch sc.Kind {
	case config.SourceSynthetic, "":
		return NewSynthetic(SyntheticConfig{
			Frames:    sc.Frames,
			FrameSize: sc.FrameSize,
			FrameRate: sc.FrameRate,
			Interval:  sc.Interval,
			Caps:      sc.Caps,
		})
	case config.SourceGst:
		return newGst(logger, sc)
	}
	return nil, fmt.Errorf("unknown source kind %q", sc.Kind)
}

// push hands one buffer to sink and wraps refusals with the frame offset.
func push(ctx context.Context, sink media.Sink, buf *media.Buffer) error {
	if err := sink.Chain(ctx, buf); err != nil {
		return fmt.Errorf("frame %d refused: %w", buf.Offset, err)
	}
	return nil
}

func pushEOS(ctx context.Context, sink media.Sink) error {
	if !sink.Event(ctx, media.NewEOS()) {
		return errors.New("eos refused")
	}
	return nil
}
