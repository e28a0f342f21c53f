// Package worker holds the per-scene processors plugged into the stage's
// encoder slots, and the loop that drives one of them between a dispatcher
// output and a collector input.
package worker

import (
	"context"
	"fmt"

	"github.com/mattjoyce/hype/internal/caps"
	"github.com/mattjoyce/hype/internal/config"
	"github.com/mattjoyce/hype/internal/media"
	"github.com/mattjoyce/hype/internal/scene"
)

// Kind is the element class a worker declares.
type Kind int

const (
	KindVideoEncoder Kind = iota
	KindIdentity
	KindFilter
)

func (k Kind) String() string {
	switch k {
	case KindVideoEncoder:
		return "encoder"
	case KindIdentity:
		return "identity"
	case KindFilter:
		return "filter"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a config class name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "encoder":
		return KindVideoEncoder, nil
	case "identity":
		return KindIdentity, nil
	case "filter":
		return KindFilter, nil
	}
	return 0, fmt.Errorf("unknown worker class %q", s)
}

// Emit hands one output buffer downstream.
type Emit func(ctx context.Context, buf *media.Buffer) error

// Worker turns the frames of a scene into output buffers. A worker is used
// by a single branch goroutine at a time.
type Worker interface {
	Name() string
	Kind() Kind
	// OutputCaps is what the worker produces; ANY when unconstrained.
	OutputCaps() caps.Caps
	// Process consumes one frame and may emit output immediately.
	Process(ctx context.Context, buf *media.Buffer, emit Emit) error
	// Flush completes the current unit: everything consumed so far must be
	// emitted before Flush returns, and the next output starts a key unit.
	Flush(ctx context.Context, emit Emit) error
}

// SceneAware workers are told which scene they are about to process.
type SceneAware interface {
	BeginScene(b scene.Boundary)
}

// FromConfig builds the worker described by wc.
func FromConfig(wc config.WorkerConfig) (Worker, error) {
	var (
		w   Worker
		err error
	)
	outCaps := caps.Any()
	if wc.Caps != "" {
		if outCaps, err = caps.Parse(wc.Caps); err != nil {
			return nil, fmt.Errorf("worker %s: %w", wc.Name, err)
		}
	}

	switch wc.Type {
	case config.WorkerIdentity:
		w = NewIdentity(wc.Name, wc.Delay, outCaps)
	case config.WorkerExec:
		w = NewExec(ExecConfig{
			Name:    wc.Name,
			Command: wc.Command,
			Args:    wc.Args,
			Env:     wc.Env,
			Timeout: wc.Timeout,
			Caps:    outCaps,
		})
	default:
		return nil, fmt.Errorf("worker %s: unknown type %q", wc.Name, wc.Type)
	}

	if wc.Class != "" {
		k, err := ParseKind(wc.Class)
		if err != nil {
			return nil, fmt.Errorf("worker %s: %w", wc.Name, err)
		}
		w = withKind{Worker: w, kind: k}
	}
	return w, nil
}

type withKind struct {
	Worker
	kind Kind
}

func (w withKind) Kind() Kind { return w.kind }

func (w withKind) BeginScene(b scene.Boundary) {
	if sa, ok := w.Worker.(SceneAware); ok {
		sa.BeginScene(b)
	}
}
