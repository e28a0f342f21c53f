package hype

import (
	"fmt"
	"log/slog"

	"github.com/mattjoyce/hype/internal/caps"
	"github.com/mattjoyce/hype/internal/config"
	"github.com/mattjoyce/hype/internal/worker"
)

// NewFromConfig builds a stage from the stage section of the configuration
// and binds its workers to consecutive slots.
func NewFromConfig(logger *slog.Logger, sc config.StageConfig, opts ...Option) (*Stage, error) {
	base := []Option{
		WithMaxWorkers(sc.MaxWorkers),
		WithGroupSize(sc.GroupSize),
		WithQueueCapacity(sc.QueueCapacity),
	}
	if sc.LenientBoundaries {
		base = append(base, WithLenientBoundaries())
	}
	if sc.OutputCaps != "" {
		c, err := caps.Parse(sc.OutputCaps)
		if err != nil {
			return nil, fmt.Errorf("stage output caps: %w", err)
		}
		base = append(base, WithOutputCaps(c))
	}

	s := New(logger, append(base, opts...)...)
	for i, wc := range sc.Workers {
		w, err := worker.FromConfig(wc)
		if err != nil {
			return nil, err
		}
		if err := s.SetWorker(i, w); err != nil {
			return nil, err
		}
	}
	return s, nil
}
