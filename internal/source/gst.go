//go:build gst

package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/mattjoyce/hype/internal/caps"
	"github.com/mattjoyce/hype/internal/config"
	"github.com/mattjoyce/hype/internal/media"
)

const appSinkName = "hypesink"

// GstAvailable reports whether gst sources can be built.
const GstAvailable = true

// Gst pulls raw frames from a gst-launch style pipeline through an appsink.
type Gst struct {
	logger   *slog.Logger
	pipeline string
	caps     caps.Caps
}

func newGst(logger *slog.Logger, sc config.SourceConfig) (Source, error) {
	if sc.Pipeline == "" {
		return nil, errors.New("gst source needs a pipeline")
	}
	c := caps.Any()
	if sc.Caps != "" {
		var err error
		if c, err = caps.Parse(sc.Caps); err != nil {
			return nil, fmt.Errorf("gst caps: %w", err)
		}
	}
	return &Gst{logger: logger, pipeline: sc.Pipeline, caps: c}, nil
}

func (g *Gst) Name() string { return "gst" }

func (g *Gst) Run(ctx context.Context, sink media.Sink) (Result, error) {
	var res Result
	gst.Init(nil)

	launch := fmt.Sprintf("%s ! appsink name=%s sync=false", g.pipeline, appSinkName)
	pipeline, err := gst.NewPipelineFromString(launch)
	if err != nil {
		return res, fmt.Errorf("create pipeline: %w", err)
	}
	defer func() {
		if err := pipeline.SetState(gst.StateNull); err != nil {
			g.logger.Warn("pipeline teardown failed", "error", err)
		}
	}()

	elem, err := pipeline.GetElementByName(appSinkName)
	if err != nil {
		return res, fmt.Errorf("find appsink: %w", err)
	}
	appsink := app.SinkFromElement(elem)

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return res, fmt.Errorf("start pipeline: %w", err)
	}

	if !sink.Event(ctx, &media.Event{Type: media.EventStreamStart}) {
		return res, errors.New("stream-start refused")
	}
	announced := false

	bus := pipeline.GetPipelineBus()
	var offset uint64
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if msg := bus.Pop(); msg != nil && msg.Type() == gst.MessageError {
			gerr := msg.ParseError()
			g.logger.Error("pipeline error", "error", gerr.Error(), "debug", gerr.DebugString())
			return res, fmt.Errorf("pipeline error: %s", gerr.Error())
		}

		sample := appsink.TryPullSample(100 * time.Millisecond)
		if sample == nil {
			if appsink.IsEOS() {
				break
			}
			continue
		}

		if !announced {
			c := g.caps
			if sc := sample.GetCaps(); sc != nil {
				if parsed, err := caps.Parse(sc.String()); err == nil {
					c = c.Intersect(parsed)
				}
			}
			if !sink.Event(ctx, media.NewCaps(c)) {
				return res, fmt.Errorf("caps %s refused", c)
			}
			announced = true
		}

		buffer := sample.GetBuffer()
		if buffer == nil {
			continue
		}
		mapInfo := buffer.Map(gst.MapRead)
		data := make([]byte, len(mapInfo.Bytes()))
		copy(data, mapInfo.Bytes())
		buffer.Unmap()

		buf := &media.Buffer{
			Offset:   offset,
			PTS:      buffer.PresentationTimestamp(),
			Duration: buffer.Duration(),
			Data:     data,
		}
		if err := push(ctx, sink, buf); err != nil {
			return res, err
		}
		offset++
		res.Frames++
		res.Bytes += uint64(len(data))
	}

	g.logger.Info("gst source finished", "frames", res.Frames)
	return res, pushEOS(ctx, sink)
}
