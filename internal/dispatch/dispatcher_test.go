package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hype/internal/caps"
	"github.com/mattjoyce/hype/internal/log"
	"github.com/mattjoyce/hype/internal/media"
	"github.com/mattjoyce/hype/internal/scene"
)

// drain pops everything currently queued on out.
func drain(t *testing.T, out *Output) []media.Item {
	t.Helper()
	var items []media.Item
	for out.Queue().Len() > 0 || pending(out) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		it, err := out.Pop(ctx)
		cancel()
		if err != nil {
			break
		}
		items = append(items, it)
	}
	return items
}

func pending(out *Output) bool {
	out.queue.mu.Lock()
	defer out.queue.mu.Unlock()
	return len(out.queue.items) > 0
}

// feed pushes n frames through d with a boundary every g frames.
func feed(t *testing.T, d *Dispatcher, n, g int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		if i%g == 0 {
			require.True(t, d.Event(ctx, scene.NewEvent(scene.Boundary{Index: uint32(i / g), GroupSize: uint32(g)})))
		}
		require.NoError(t, d.Chain(ctx, &media.Buffer{Offset: uint64(i)}))
	}
}

func offsets(items []media.Item) []uint64 {
	var out []uint64
	for _, it := range items {
		if it.Buffer != nil {
			out = append(out, it.Buffer.Offset)
		}
	}
	return out
}

func TestRoundRobin(t *testing.T) {
	d := New(log.Discard())
	a, b := d.AddChannel(), d.AddChannel()
	assert.Equal(t, "src_0", a.Name())
	assert.Equal(t, "src_1", b.Name())

	feed(t, d, 8, 2)

	assert.Equal(t, []uint64{0, 1, 4, 5}, offsets(drain(t, a)))
	assert.Equal(t, []uint64{2, 3, 6, 7}, offsets(drain(t, b)))

	st := d.Stats()
	assert.Equal(t, uint64(4), st.Boundaries)
	assert.Equal(t, "src_1", st.Active)
	assert.Equal(t, uint64(2), st.Outputs[0].Scenes)
	assert.Equal(t, uint64(4), st.Outputs[1].Buffers)
}

func TestForceKeyUnitOnPreviousOutput(t *testing.T) {
	d := New(log.Discard())
	a, b := d.AddChannel(), d.AddChannel()
	feed(t, d, 4, 2)

	// a: boundary 0, frames 0 1, force-key-unit, boundary 2 would follow later.
	var kinds []string
	for _, it := range drain(t, a) {
		kinds = append(kinds, it.String())
	}
	assert.Equal(t, []string{
		"custom-downstream(scene-new-hype-event)",
		"buffer(offset=0, pts=0s, size=0)",
		"buffer(offset=1, pts=0s, size=0)",
		"force-key-unit",
	}, kinds)

	// The first scene has no predecessor, so b never got one.
	for _, it := range drain(t, b) {
		if it.Event != nil {
			assert.NotEqual(t, media.EventForceKeyUnit, it.Event.Type)
		}
	}
}

func TestSelectionIsDeterministic(t *testing.T) {
	route := func() []string {
		var seen []string
		d := New(log.Discard(), WithObserver(func(_ scene.Boundary, out *Output) { seen = append(seen, out.Name()) }))
		for i := 0; i < 3; i++ {
			d.AddChannel()
		}
		feed(t, d, 14, 2)
		return seen
	}
	first := route()
	assert.Equal(t, []string{"src_0", "src_1", "src_2", "src_0", "src_1", "src_2", "src_0"}, first)
	assert.Equal(t, first, route())
}

func TestOutputCountChange(t *testing.T) {
	var seen []string
	d := New(log.Discard(), WithObserver(func(_ scene.Boundary, out *Output) { seen = append(seen, out.Name()) }))
	d.AddChannel()
	d.AddChannel()
	feed(t, d, 4, 2) // scenes 0, 1

	d.AddChannel()
	ctx := context.Background()
	for idx := uint32(2); idx < 6; idx++ {
		require.True(t, d.Event(ctx, scene.NewEvent(scene.Boundary{Index: idx, GroupSize: 2})))
	}
	assert.Equal(t, []string{"src_0", "src_1", "src_2", "src_0", "src_1", "src_2"}, seen)
}

func TestBackpressure(t *testing.T) {
	d := New(log.Discard(), WithQueueCapacity(2))
	out := d.AddChannel()
	ctx := context.Background()
	require.True(t, d.Event(ctx, scene.NewEvent(scene.Boundary{Index: 0, GroupSize: 10})))
	require.NoError(t, d.Chain(ctx, &media.Buffer{Offset: 0}))
	require.NoError(t, d.Chain(ctx, &media.Buffer{Offset: 1}))

	done := make(chan error, 1)
	go func() { done <- d.Chain(ctx, &media.Buffer{Offset: 2}) }()

	select {
	case <-done:
		t.Fatal("chain returned while queue was full")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 2, d.Stats().Outputs[0].Queued)

	_, err := out.Pop(ctx) // boundary
	require.NoError(t, err)
	_, err = out.Pop(ctx) // frame 0
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("chain still blocked")
	}
}

func TestChainCancelled(t *testing.T) {
	d := New(log.Discard(), WithQueueCapacity(1))
	d.AddChannel()
	require.NoError(t, d.Chain(context.Background(), &media.Buffer{}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	assert.ErrorIs(t, d.Chain(ctx, &media.Buffer{}), context.Canceled)
}

func TestCloseUnblocksProducer(t *testing.T) {
	d := New(log.Discard(), WithQueueCapacity(1))
	d.AddChannel()
	require.NoError(t, d.Chain(context.Background(), &media.Buffer{}))

	done := make(chan error, 1)
	go func() { done <- d.Chain(context.Background(), &media.Buffer{}) }()
	time.Sleep(20 * time.Millisecond)
	d.Close()

	select {
	case err := <-done:
		var fe *media.FlowError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, media.FlowFlushing, fe.Code)
		assert.Equal(t, "src_0", fe.Channel)
	case <-time.After(time.Second):
		t.Fatal("close did not unblock chain")
	}
}

func TestNoOutputs(t *testing.T) {
	d := New(log.Discard())
	err := d.Chain(context.Background(), &media.Buffer{})
	assert.Equal(t, media.FlowNotLinked, media.FlowCodeOf(err))
	assert.False(t, d.Event(context.Background(), scene.NewEvent(scene.Boundary{Index: 0, GroupSize: 1})))
}

func TestEOSGoesToEveryOutput(t *testing.T) {
	d := New(log.Discard())
	a, b := d.AddChannel(), d.AddChannel()
	ctx := context.Background()
	require.True(t, d.Event(ctx, media.NewCaps(caps.MustParse("video/x-raw"))))
	require.True(t, d.Event(ctx, media.NewEOS()))

	for _, out := range []*Output{a, b} {
		items := drain(t, out)
		require.Len(t, items, 2)
		assert.Equal(t, media.EventCaps, items[0].Event.Type)
		assert.Equal(t, media.EventEOS, items[1].Event.Type)
	}
	assert.Equal(t, media.FlowEOS, media.FlowCodeOf(d.Chain(ctx, &media.Buffer{})))
}

func TestRegistryLookup(t *testing.T) {
	d := New(log.Discard())
	a := d.AddChannel()
	got, ok := d.Output(a.Handle())
	require.True(t, ok)
	assert.Same(t, a, got)
	_, ok = d.Output(Handle(42))
	assert.False(t, ok)
	assert.Equal(t, NoHandle, d.Active())
}

func TestQueryAcceptsAnything(t *testing.T) {
	d := New(log.Discard())
	q := media.NewCapsQuery(caps.MustParse("video/x-raw"))
	require.True(t, d.Query(context.Background(), q))
	assert.Equal(t, "video/x-raw", q.Result.String())
	assert.False(t, d.Query(context.Background(), &media.Query{Type: media.QueryLatency}))
}
