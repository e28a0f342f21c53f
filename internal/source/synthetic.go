package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/hype/internal/caps"
	"github.com/mattjoyce/hype/internal/media"
)

// SyntheticConfig describes a generated stream.
type SyntheticConfig struct {
	Frames    int
	FrameSize int
	FrameRate int
	// Interval paces pushes in wall time; zero pushes as fast as the stage
	// accepts.
	Interval time.Duration
	Caps     string
}

// Synthetic generates frames filled with a per-frame byte pattern.
type Synthetic struct {
	cfg  SyntheticConfig
	caps caps.Caps
}

func NewSynthetic(cfg SyntheticConfig) (*Synthetic, error) {
	if cfg.Frames < 0 {
		return nil, fmt.Errorf("synthetic frames must be >= 0, got %d", cfg.Frames)
	}
	if cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("synthetic frame_size must be > 0, got %d", cfg.FrameSize)
	}
	if cfg.FrameRate <= 0 {
		return nil, fmt.Errorf("synthetic frame_rate must be > 0, got %d", cfg.FrameRate)
	}
	desc := cfg.Caps
	if desc == "" {
		desc = fmt.Sprintf("video/x-raw, format=RGB, framerate=%d/1", cfg.FrameRate)
	}
	c, err := caps.Parse(desc)
	if err != nil {
		return nil, fmt.Errorf("synthetic caps: %w", err)
	}
	return &Synthetic{cfg: cfg, caps: c}, nil
}

func (s *Synthetic) Name() string { return "synthetic" }

// Caps returns the caps announced before the first frame.
func (s *Synthetic) Caps() caps.Caps { return s.caps }

func (s *Synthetic) Run(ctx context.Context, sink media.Sink) (Result, error) {
	var res Result
	if !sink.Event(ctx, &media.Event{Type: media.EventStreamStart}) {
		return res, errors.New("stream-start refused")
	}
	if !sink.Event(ctx, media.NewCaps(s.caps)) {
		return res, fmt.Errorf("caps %s refused", s.caps)
	}

	var tick <-chan time.Time
	if s.cfg.Interval > 0 {
		t := time.NewTicker(s.cfg.Interval)
		defer t.Stop()
		tick = t.C
	}

	frameDur := time.Second / time.Duration(s.cfg.FrameRate)
	for i := 0; i < s.cfg.Frames; i++ {
		if tick != nil {
			select {
			case <-tick:
			case <-ctx.Done():
				return res, ctx.Err()
			}
		} else if err := ctx.Err(); err != nil {
			return res, err
		}

		buf := &media.Buffer{
			Offset:   uint64(i),
			PTS:      time.Duration(i) * frameDur,
			Duration: frameDur,
			Data:     pattern(i, s.cfg.FrameSize),
		}
		if err := push(ctx, sink, buf); err != nil {
			return res, err
		}
		res.Frames++
		res.Bytes += uint64(len(buf.Data))
	}
	return res, pushEOS(ctx, sink)
}

func pattern(i, size int) []byte {
	b := make([]byte, size)
	for j := range b {
		b[j] = byte(i + j)
	}
	return b
}
