package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hype/internal/caps"
)

func TestFlowCodeOf(t *testing.T) {
	assert.Equal(t, FlowOK, FlowCodeOf(nil))
	assert.Equal(t, FlowFailed, FlowCodeOf(errors.New("boom")))
	assert.Equal(t, FlowNotLinked, FlowCodeOf(NewFlowError(FlowNotLinked, "src_0", errors.New("x"))))

	wrapped := errors.Join(errors.New("outer"), NewFlowError(FlowEOS, "sink_1", errors.New("done")))
	assert.Equal(t, FlowEOS, FlowCodeOf(wrapped))
}

func TestFlowErrorMessage(t *testing.T) {
	err := NewFlowError(FlowFailed, "sink_0", errors.New("late buffer"))
	assert.Equal(t, "flow error on sink_0: late buffer", err.Error())
	assert.Equal(t, "flow not-linked: no outputs", NewFlowError(FlowNotLinked, "", errors.New("no outputs")).Error())
}

func TestGuard(t *testing.T) {
	err := Guard("sink_3", func() error { panic("bad state") })
	require.Error(t, err)

	var fe *FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, FlowFailed, fe.Code)
	assert.Equal(t, "sink_3", fe.Channel)

	assert.NoError(t, Guard("sink_3", func() error { return nil }))
	assert.False(t, GuardBool(func() bool { panic("x") }))
	assert.True(t, GuardBool(func() bool { return true }))
}

func TestStructureUint32IsStrict(t *testing.T) {
	s := NewStructure("x").Set("a", uint32(7)).Set("b", 7)

	v, err := s.Uint32("a")
	require.NoError(t, err)
	assert.Equal(t, uint32(7), v)

	_, err = s.Uint32("b")
	assert.Error(t, err)
	_, err = s.Uint32("missing")
	assert.Error(t, err)
}

func TestBufferList(t *testing.T) {
	l := BufferList{
		{Offset: 0, Duration: time.Millisecond, Data: []byte("ab")},
		{Offset: 1, Duration: 2 * time.Millisecond, Data: []byte("c")},
	}
	assert.Equal(t, 3*time.Millisecond, l.Duration())
	assert.Equal(t, 3, l.Bytes())
	assert.Equal(t, "buffer(pts=0s, size=0)", (&Buffer{Offset: OffsetNone}).String())
}

func TestCollectSink(t *testing.T) {
	ctx := context.Background()
	s := NewCollectSink()

	require.NoError(t, s.ChainList(ctx, BufferList{{Offset: 0}, {Offset: 1}}))
	require.NoError(t, s.Chain(ctx, &Buffer{Offset: 2}))
	assert.Len(t, s.Buffers(), 3)
	assert.Equal(t, 1, s.Lists())

	s.SetAcceptCaps(caps.MustParse("video/x-h264"))
	q := NewCapsQuery(caps.Empty())
	require.True(t, s.Query(ctx, q))
	assert.Equal(t, "video/x-h264", q.Result.String())

	accept := &Query{Type: QueryAcceptCaps, Caps: caps.MustParse("video/x-h265")}
	require.True(t, s.Query(ctx, accept))
	assert.False(t, accept.Accepted)

	assert.True(t, s.Event(ctx, NewEOS()))
	assert.True(t, s.Event(ctx, NewEOS()))
	assert.Equal(t, 2, s.EOSCount())

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	assert.NoError(t, s.WaitEOS(waitCtx))
}

func TestCollectSinkRefusal(t *testing.T) {
	s := NewCollectSink()
	s.OnBuffer = func(*Buffer) error { return NewFlowError(FlowFlushing, "", errors.New("stopping")) }
	err := s.Chain(context.Background(), &Buffer{})
	assert.Equal(t, FlowFlushing, FlowCodeOf(err))
}
