package scene

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hype/internal/caps"
	"github.com/mattjoyce/hype/internal/media"
)

func TestEventRoundTrip(t *testing.T) {
	for _, b := range []Boundary{
		{Index: 0, GroupSize: 1},
		{Index: 3, GroupSize: 10},
		{Index: math.MaxUint32, GroupSize: math.MaxUint32},
	} {
		got, ok := Parse(NewEvent(b))
		require.True(t, ok)
		assert.Equal(t, b, got)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		ev   *media.Event
	}{
		{name: "nil", ev: nil},
		{name: "eos", ev: media.NewEOS()},
		{name: "caps", ev: media.NewCaps(caps.Any())},
		{name: "other name", ev: media.NewCustom(media.NewStructure("something-else").Set(fieldIndex, uint32(1)).Set(fieldGroupSize, uint32(2)))},
		{name: "missing size", ev: media.NewCustom(media.NewStructure(EventName).Set(fieldIndex, uint32(1)))},
		{name: "wrong type", ev: media.NewCustom(media.NewStructure(EventName).Set(fieldIndex, 1).Set(fieldGroupSize, uint32(2)))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Parse(tt.ev)
			assert.False(t, ok)
			assert.False(t, IsBoundary(tt.ev))
		})
	}
}

func TestWireFormat(t *testing.T) {
	data, err := Encode(Boundary{Index: 4, GroupSize: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"scene-new-hype-event","gop_index":4,"gop_size":2}`, string(data))

	b, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, Boundary{Index: 4, GroupSize: 2}, b)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		notScen bool
	}{
		{name: "other name", in: `{"name":"eos"}`, notScen: true},
		{name: "unknown field", in: `{"name":"scene-new-hype-event","gop_index":1,"gop_size":2,"x":1}`},
		{name: "negative", in: `{"name":"scene-new-hype-event","gop_index":-1,"gop_size":2}`},
		{name: "overflow", in: `{"name":"scene-new-hype-event","gop_index":4294967296,"gop_size":2}`},
		{name: "missing index", in: `{"name":"scene-new-hype-event","gop_size":2}`},
		{name: "trailing", in: `{"name":"scene-new-hype-event","gop_index":1,"gop_size":2} {}`},
		{name: "garbage", in: `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.in))
			require.Error(t, err)
			if tt.notScen {
				assert.ErrorIs(t, err, ErrNotBoundary)
			} else {
				assert.NotErrorIs(t, err, ErrNotBoundary)
			}
		})
	}
}
