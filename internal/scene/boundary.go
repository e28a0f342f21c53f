// Package scene defines the scene boundary announcement that travels in-band
// with the frames: "the frames that follow belong to scene Index, and a scene
// spans GroupSize frames".
package scene

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mattjoyce/hype/internal/media"
)

// EventName identifies a boundary among custom downstream events.
const EventName = "scene-new-hype-event"

const (
	fieldIndex     = "gop_index"
	fieldGroupSize = "gop_size"
)

// ErrNotBoundary is returned by Decode for a well-formed envelope with a
// different name.
var ErrNotBoundary = errors.New("not a scene boundary")

// Boundary announces the start of a scene.
type Boundary struct {
	Index     uint32 `json:"gop_index"`
	GroupSize uint32 `json:"gop_size"`
}

func (b Boundary) String() string {
	return fmt.Sprintf("scene %d (group %d)", b.Index, b.GroupSize)
}

// NewEvent wraps b in a custom downstream event.
func NewEvent(b Boundary) *media.Event {
	s := media.NewStructure(EventName).
		Set(fieldIndex, b.Index).
		Set(fieldGroupSize, b.GroupSize)
	return media.NewCustom(s)
}

// Parse recognises a boundary event. Events of another type or name, and
// boundaries with missing or mistyped fields, report false.
func Parse(ev *media.Event) (Boundary, bool) {
	if ev == nil || ev.Type != media.EventCustomDownstream || ev.Structure == nil {
		return Boundary{}, false
	}
	if ev.Structure.Name != EventName {
		return Boundary{}, false
	}
	idx, err := ev.Structure.Uint32(fieldIndex)
	if err != nil {
		return Boundary{}, false
	}
	size, err := ev.Structure.Uint32(fieldGroupSize)
	if err != nil {
		return Boundary{}, false
	}
	return Boundary{Index: idx, GroupSize: size}, true
}

// IsBoundary reports whether ev is a scene boundary.
func IsBoundary(ev *media.Event) bool {
	_, ok := Parse(ev)
	return ok
}

type envelope struct {
	Name      string  `json:"name"`
	Index     *uint32 `json:"gop_index,omitempty"`
	GroupSize *uint32 `json:"gop_size,omitempty"`
}

// Encode writes the JSON wire form of b.
func Encode(b Boundary) ([]byte, error) {
	return json.Marshal(envelope{Name: EventName, Index: &b.Index, GroupSize: &b.GroupSize})
}

// Decode parses the JSON wire form. Unknown fields, trailing data and
// out-of-range values are errors; a different name yields ErrNotBoundary.
func Decode(data []byte) (Boundary, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return Boundary{}, fmt.Errorf("decode boundary: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Boundary{}, errors.New("decode boundary: trailing data")
	}
	if env.Name != EventName {
		return Boundary{}, ErrNotBoundary
	}
	if env.Index == nil || env.GroupSize == nil {
		return Boundary{}, fmt.Errorf("decode boundary: %s and %s are required", fieldIndex, fieldGroupSize)
	}
	return Boundary{Index: *env.Index, GroupSize: *env.GroupSize}, nil
}
