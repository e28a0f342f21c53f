package segment

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hype/internal/log"
	"github.com/mattjoyce/hype/internal/media"
	"github.com/mattjoyce/hype/internal/media/mocks"
	"github.com/mattjoyce/hype/internal/scene"
)

func boundaries(events []*media.Event) []scene.Boundary {
	var out []scene.Boundary
	for _, ev := range events {
		if b, ok := scene.Parse(ev); ok {
			out = append(out, b)
		}
	}
	return out
}

func push(t *testing.T, s *Segmenter, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, s.Chain(context.Background(), &media.Buffer{Offset: uint64(i)}))
	}
}

func TestBoundariesEveryGroup(t *testing.T) {
	tests := []struct {
		name  string
		group uint32
		n     int
		want  []scene.Boundary
	}{
		{name: "g2", group: 2, n: 6, want: []scene.Boundary{{Index: 0, GroupSize: 2}, {Index: 1, GroupSize: 2}, {Index: 2, GroupSize: 2}}},
		{name: "g5", group: 5, n: 11, want: []scene.Boundary{{Index: 0, GroupSize: 5}, {Index: 1, GroupSize: 5}, {Index: 2, GroupSize: 5}}},
		{name: "g1", group: 1, n: 3, want: []scene.Boundary{{Index: 0, GroupSize: 1}, {Index: 1, GroupSize: 1}, {Index: 2, GroupSize: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := media.NewCollectSink()
			s := New(log.Discard(), sink, WithGroupSize(tt.group))
			push(t, s, tt.n)

			assert.Equal(t, tt.want, boundaries(sink.Events()))
			assert.Len(t, sink.Buffers(), tt.n)
			assert.Equal(t, uint64(len(tt.want)), s.Stats().Boundaries)
		})
	}
}

func TestBoundaryPrecedesFrame(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)
	s := New(log.Discard(), sink, WithGroupSize(2))

	gomock.InOrder(
		sink.EXPECT().Event(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, ev *media.Event) bool {
			b, ok := scene.Parse(ev)
			assert.True(t, ok)
			assert.Equal(t, scene.Boundary{Index: 2, GroupSize: 2}, b)
			return true
		}),
		sink.EXPECT().Chain(gomock.Any(), gomock.Any()).Return(nil),
		sink.EXPECT().Chain(gomock.Any(), gomock.Any()).Return(nil),
	)

	require.NoError(t, s.Chain(context.Background(), &media.Buffer{Offset: 4}))
	require.NoError(t, s.Chain(context.Background(), &media.Buffer{Offset: 5}))
}

func TestOffsetNonePassesThrough(t *testing.T) {
	sink := media.NewCollectSink()
	s := New(log.Discard(), sink, WithGroupSize(2))
	require.NoError(t, s.Chain(context.Background(), &media.Buffer{Offset: media.OffsetNone}))
	assert.Empty(t, sink.Events())
	assert.Len(t, sink.Buffers(), 1)
}

func TestSetGroupSize(t *testing.T) {
	sink := media.NewCollectSink()
	s := New(log.Discard(), sink)
	assert.Equal(t, DefaultGroupSize, s.GroupSize())
	assert.ErrorIs(t, s.SetGroupSize(0), ErrInvalidGroupSize)
	assert.Equal(t, DefaultGroupSize, s.GroupSize())

	push(t, s, 3)
	require.NoError(t, s.SetGroupSize(3))
	for i := 3; i < 7; i++ {
		require.NoError(t, s.Chain(context.Background(), &media.Buffer{Offset: uint64(i)}))
	}
	// offset 0 under g=10, then 3 and 6 under g=3.
	assert.Equal(t, []scene.Boundary{{Index: 0, GroupSize: 10}, {Index: 1, GroupSize: 3}, {Index: 2, GroupSize: 3}}, boundaries(sink.Events()))
}

func TestBoundaryRefused(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)
	sink.EXPECT().Event(gomock.Any(), gomock.Any()).Return(false)

	s := New(log.Discard(), sink)
	err := s.Chain(context.Background(), &media.Buffer{Offset: 0})
	assert.ErrorIs(t, err, ErrBoundaryNotDelivered)
}

func TestBoundaryRefusedLenient(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)
	sink.EXPECT().Event(gomock.Any(), gomock.Any()).Return(false)
	sink.EXPECT().Chain(gomock.Any(), gomock.Any()).Return(nil)

	var seen []scene.Boundary
	s := New(log.Discard(), sink, WithLenientBoundaries(), WithObserver(func(b scene.Boundary) { seen = append(seen, b) }))
	assert.NoError(t, s.Chain(context.Background(), &media.Buffer{Offset: 0}))
	assert.Empty(t, seen)
	assert.Equal(t, int64(-1), s.Stats().LastScene)
}

func TestEventsAndQueriesPassThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)
	eos := media.NewEOS()
	q := &media.Query{Type: media.QueryLatency}
	sink.EXPECT().Event(gomock.Any(), eos).Return(true)
	sink.EXPECT().Query(gomock.Any(), q).Return(true)

	s := New(log.Discard(), sink)
	assert.True(t, s.Event(context.Background(), eos))
	assert.True(t, s.Query(context.Background(), q))
}
