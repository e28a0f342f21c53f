// Package media is the host contract the scene stage is embedded in: data
// buffers, serialized control events, queries, and the Sink interface every
// element input implements.
//
// It is deliberately small. Elements push buffers and events downstream by
// calling the next element's Sink methods; the return values carry flow
// control back upstream.
package media

import (
	"fmt"
	"math"
	"time"

	"github.com/mattjoyce/hype/internal/caps"
)

// OffsetNone marks a buffer without a source offset.
const OffsetNone uint64 = math.MaxUint64

// Buffer is an opaque payload with timing metadata. A buffer is owned by
// whoever holds it; pushing it downstream hands ownership over.
type Buffer struct {
	Offset   uint64
	PTS      time.Duration
	Duration time.Duration
	Data     []byte
	// KeyUnit is set on buffers that start an independently decodable unit.
	KeyUnit bool
}

// Size returns the payload length.
func (b *Buffer) Size() int { return len(b.Data) }

func (b *Buffer) String() string {
	if b.Offset == OffsetNone {
		return fmt.Sprintf("buffer(pts=%s, size=%d)", b.PTS, len(b.Data))
	}
	return fmt.Sprintf("buffer(offset=%d, pts=%s, size=%d)", b.Offset, b.PTS, len(b.Data))
}

// BufferList is an ordered group of buffers pushed as one unit.
type BufferList []*Buffer

// Duration sums the durations of all buffers in the list.
func (l BufferList) Duration() time.Duration {
	var d time.Duration
	for _, b := range l {
		d += b.Duration
	}
	return d
}

// Bytes returns the total payload size.
func (l BufferList) Bytes() int {
	n := 0
	for _, b := range l {
		n += len(b.Data)
	}
	return n
}

// EventType identifies a control event.
type EventType int

const (
	EventStreamStart EventType = iota
	EventCaps
	EventCustomDownstream
	EventForceKeyUnit
	EventEOS
)

func (t EventType) String() string {
	switch t {
	case EventStreamStart:
		return "stream-start"
	case EventCaps:
		return "caps"
	case EventCustomDownstream:
		return "custom-downstream"
	case EventForceKeyUnit:
		return "force-key-unit"
	case EventEOS:
		return "eos"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is a control message serialized with the data flow.
type Event struct {
	Type EventType
	// Caps is set on EventCaps.
	Caps caps.Caps
	// Structure carries application data on EventCustomDownstream.
	Structure *Structure
}

func (e *Event) String() string {
	switch {
	case e.Type == EventCaps:
		return fmt.Sprintf("caps(%s)", e.Caps)
	case e.Structure != nil:
		return fmt.Sprintf("%s(%s)", e.Type, e.Structure.Name)
	default:
		return e.Type.String()
	}
}

// NewEOS returns an end-of-stream event.
func NewEOS() *Event { return &Event{Type: EventEOS} }

// NewCaps returns a caps event.
func NewCaps(c caps.Caps) *Event { return &Event{Type: EventCaps, Caps: c} }

// NewForceKeyUnit asks the element downstream to start its next output with
// an independently decodable unit.
func NewForceKeyUnit() *Event { return &Event{Type: EventForceKeyUnit} }

// NewCustom wraps a structure in a custom downstream event.
func NewCustom(s *Structure) *Event {
	return &Event{Type: EventCustomDownstream, Structure: s}
}

// Structure is a named bag of typed fields.
type Structure struct {
	Name   string
	Fields map[string]any
}

// NewStructure creates an empty structure.
func NewStructure(name string) *Structure {
	return &Structure{Name: name, Fields: make(map[string]any)}
}

// Set stores a field and returns the structure for chaining.
func (s *Structure) Set(field string, v any) *Structure {
	if s.Fields == nil {
		s.Fields = make(map[string]any)
	}
	s.Fields[field] = v
	return s
}

// Uint32 reads a uint32 field. Fields of other types are an error rather
// than a conversion.
func (s *Structure) Uint32(field string) (uint32, error) {
	v, ok := s.Fields[field]
	if !ok {
		return 0, fmt.Errorf("structure %q: field %q missing", s.Name, field)
	}
	u, ok := v.(uint32)
	if !ok {
		return 0, fmt.Errorf("structure %q: field %q is %T, not uint32", s.Name, field, v)
	}
	return u, nil
}

// QueryType identifies a query.
type QueryType int

const (
	QueryCaps QueryType = iota
	QueryAcceptCaps
	QueryLatency
)

// Query travels upstream-to-downstream and is answered in place.
type Query struct {
	Type QueryType
	// Filter restricts the answer of a caps query; Caps is the candidate for
	// an accept-caps query.
	Filter caps.Caps
	Caps   caps.Caps
	// Result holds the answer of a caps query.
	Result caps.Caps
	// Accepted holds the answer of an accept-caps query.
	Accepted bool
	// Latency holds the answer of a latency query.
	Live       bool
	MinLatency time.Duration
}

// NewCapsQuery returns a caps query restricted by filter.
func NewCapsQuery(filter caps.Caps) *Query {
	return &Query{Type: QueryCaps, Filter: filter}
}

// Item is either a buffer or an event, in queue order.
type Item struct {
	Buffer *Buffer
	Event  *Event
}

func (i Item) String() string {
	if i.Event != nil {
		return i.Event.String()
	}
	if i.Buffer != nil {
		return i.Buffer.String()
	}
	return "item(nil)"
}
