package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hype/internal/media"
)

func TestQueueFIFO(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(4)

	require.NoError(t, q.PushBuffer(ctx, &media.Buffer{Offset: 0}))
	require.NoError(t, q.PushEvent(media.NewForceKeyUnit()))
	require.NoError(t, q.PushBuffer(ctx, &media.Buffer{Offset: 1}))
	assert.Equal(t, 2, q.Len())

	it, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), it.Buffer.Offset)
	it, err = q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, media.EventForceKeyUnit, it.Event.Type)
	it, err = q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), it.Buffer.Offset)
	assert.Equal(t, 0, q.Len())
}

func TestQueueBlocksWhenFull(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(1)
	require.NoError(t, q.PushBuffer(ctx, &media.Buffer{Offset: 0}))

	// Events are not limited by capacity.
	require.NoError(t, q.PushEvent(media.NewEOS()))

	pushed := make(chan error, 1)
	go func() { pushed <- q.PushBuffer(ctx, &media.Buffer{Offset: 1}) }()

	select {
	case <-pushed:
		t.Fatal("push on full queue returned early")
	case <-time.After(50 * time.Millisecond):
	}

	_, err := q.Pop(ctx)
	require.NoError(t, err)

	select {
	case err := <-pushed:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("push did not resume after pop")
	}
}

func TestQueuePushHonoursContext(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.PushBuffer(context.Background(), &media.Buffer{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.PushBuffer(ctx, &media.Buffer{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueClose(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(1)
	require.NoError(t, q.PushBuffer(ctx, &media.Buffer{Offset: 7}))

	blocked := make(chan error, 1)
	go func() { blocked <- q.PushBuffer(ctx, &media.Buffer{}) }()
	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-blocked:
		assert.Equal(t, media.FlowFlushing, media.FlowCodeOf(err))
	case <-time.After(time.Second):
		t.Fatal("close did not wake producer")
	}

	// Remaining items stay readable.
	it, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), it.Buffer.Offset)

	_, err = q.Pop(ctx)
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.Error(t, q.PushEvent(media.NewEOS()))
}

func TestQueueDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultQueueCapacity, NewQueue(0).Cap())
	assert.Equal(t, 40, DefaultQueueCapacity)
}
