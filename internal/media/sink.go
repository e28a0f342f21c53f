package media

import (
	"context"
	"errors"
	"fmt"
)

//go:generate mockgen -destination=mocks/mock_sink.go -package=mocks github.com/mattjoyce/hype/internal/media Sink

// Sink is the input side of an element. Implementations must be safe for
// concurrent use when the element has several inputs.
type Sink interface {
	// Chain pushes one buffer. A non-nil error is a flow failure.
	Chain(ctx context.Context, buf *Buffer) error
	// ChainList pushes a group of buffers as one unit.
	ChainList(ctx context.Context, list BufferList) error
	// Event pushes a serialized control event and reports whether it was handled.
	Event(ctx context.Context, ev *Event) bool
	// Query asks the element a question; the answer is written into q.
	Query(ctx context.Context, q *Query) bool
}

// FlowCode classifies a flow failure.
type FlowCode int

const (
	FlowOK FlowCode = iota
	FlowNotLinked
	FlowFlushing
	FlowEOS
	FlowNotNegotiated
	FlowFailed
)

func (c FlowCode) String() string {
	switch c {
	case FlowOK:
		return "ok"
	case FlowNotLinked:
		return "not-linked"
	case FlowFlushing:
		return "flushing"
	case FlowEOS:
		return "eos"
	case FlowNotNegotiated:
		return "not-negotiated"
	case FlowFailed:
		return "error"
	default:
		return fmt.Sprintf("flow(%d)", int(c))
	}
}

// FlowError is the runtime flow failure returned by Chain and ChainList. It
// names the channel (pad) it was raised on so a failure stays local to it.
type FlowError struct {
	Code    FlowCode
	Channel string
	Err     error
}

func (e *FlowError) Error() string {
	if e.Channel == "" {
		return fmt.Sprintf("flow %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("flow %s on %s: %v", e.Code, e.Channel, e.Err)
}

func (e *FlowError) Unwrap() error { return e.Err }

// NewFlowError builds a FlowError.
func NewFlowError(code FlowCode, channel string, err error) *FlowError {
	return &FlowError{Code: code, Channel: channel, Err: err}
}

// FlowCodeOf extracts the flow code from err. nil maps to FlowOK and errors
// that are not FlowErrors map to FlowFailed.
func FlowCodeOf(err error) FlowCode {
	if err == nil {
		return FlowOK
	}
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return FlowFailed
}

// Guard runs fn and converts a panic into a FlowError on channel. It is the
// fault boundary around every per-channel handler.
func Guard(channel string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewFlowError(FlowFailed, channel, fmt.Errorf("internal fault: %v", r))
		}
	}()
	return fn()
}

// GuardBool is Guard for handlers that report handled/not handled.
func GuardBool(fn func() bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	return fn()
}
