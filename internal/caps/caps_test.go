package caps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "any", in: "ANY", want: "ANY"},
		{name: "empty string", in: "", want: "EMPTY"},
		{name: "single", in: "video/x-h264", want: "video/x-h264"},
		{name: "fields sorted", in: "video/x-raw, width=1, format=RGB", want: "video/x-raw, format=RGB, width=1"},
		{name: "alternatives", in: "video/x-h264; video/x-h265", want: "video/x-h264; video/x-h265"},
		{name: "bad field", in: "video/x-raw, width", wantErr: true},
		{name: "missing name", in: "width=1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.String())
		})
	}
}

func TestIntersect(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want string
	}{
		{name: "any with caps", a: "ANY", b: "video/x-h264", want: "video/x-h264"},
		{name: "caps with any", a: "video/x-h264", b: "ANY", want: "video/x-h264"},
		{name: "different encoders", a: "video/x-h264", b: "video/x-h265", want: "EMPTY"},
		{name: "field merge", a: "video/x-h264, profile=main", b: "video/x-h264, stream-format=avc", want: "video/x-h264, profile=main, stream-format=avc"},
		{name: "field conflict", a: "video/x-h264, profile=main", b: "video/x-h264, profile=high", want: "EMPTY"},
		{name: "pick common alternative", a: "video/x-h264; video/x-raw", b: "video/x-raw; audio/x-raw", want: "video/x-raw"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MustParse(tt.a).Intersect(MustParse(tt.b))
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestEmptyAndAny(t *testing.T) {
	assert.True(t, Empty().IsEmpty())
	assert.False(t, Any().IsEmpty())
	assert.True(t, Any().IsAny())
	assert.False(t, Any().Intersect(Empty()).IsAny())
	assert.True(t, Any().Intersect(Empty()).IsEmpty())
	assert.True(t, MustParse("video/x-raw").CanIntersect(Any()))
}

func TestTextRoundTrip(t *testing.T) {
	in := MustParse("video/x-raw, format=RGB; video/x-h264")
	b, err := in.MarshalText()
	require.NoError(t, err)

	var out Caps
	require.NoError(t, out.UnmarshalText(b))
	assert.True(t, in.Equal(out))
}

func TestStructuresAreCopies(t *testing.T) {
	c := MustParse("video/x-raw, format=RGB")
	st := c.Structures()
	st[0].Fields["format"] = "NV12"
	assert.Equal(t, "video/x-raw, format=RGB", c.String())
}
