package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/mattjoyce/hype/internal/media"
)

// SceneBufferSize is the expected number of frames per scene used to size
// output queues.
const SceneBufferSize = 20

// DefaultQueueCapacity holds two scenes.
const DefaultQueueCapacity = SceneBufferSize * 2

// ErrQueueClosed is returned by Pop once a closed queue is drained.
var ErrQueueClosed = errors.New("queue closed")

// Queue is a FIFO of buffers and events. Only buffers count towards the
// capacity; events are never blocked so control always gets through.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []media.Item
	buffers  int
	capacity int
	closed   bool
}

// NewQueue creates a queue holding at most capacity buffers. capacity < 1
// selects DefaultQueueCapacity.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = DefaultQueueCapacity
	}
	q := &Queue{capacity: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// PushBuffer appends buf, waiting while the queue is full. It fails with a
// flushing FlowError once the queue is closed and with ctx's error when ctx
// ends first.
func (q *Queue) PushBuffer(ctx context.Context, buf *media.Buffer) error {
	stop := context.AfterFunc(ctx, q.wake)
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.buffers >= q.capacity && !q.closed && ctx.Err() == nil {
		q.cond.Wait()
	}
	if q.closed {
		return media.NewFlowError(media.FlowFlushing, "", ErrQueueClosed)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	q.items = append(q.items, media.Item{Buffer: buf})
	q.buffers++
	q.cond.Broadcast()
	return nil
}

// PushEvent appends ev without waiting.
func (q *Queue) PushEvent(ev *media.Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return media.NewFlowError(media.FlowFlushing, "", ErrQueueClosed)
	}
	q.items = append(q.items, media.Item{Event: ev})
	q.cond.Broadcast()
	return nil
}

// Pop removes the oldest item, waiting until one is available. A closed queue
// still yields what it holds before returning ErrQueueClosed.
func (q *Queue) Pop(ctx context.Context) (media.Item, error) {
	stop := context.AfterFunc(ctx, q.wake)
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed && ctx.Err() == nil {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		if q.closed {
			return media.Item{}, ErrQueueClosed
		}
		return media.Item{}, ctx.Err()
	}
	it := q.items[0]
	q.items[0] = media.Item{}
	q.items = q.items[1:]
	if it.Buffer != nil {
		q.buffers--
	}
	q.cond.Broadcast()
	return it, nil
}

// Close rejects further pushes and wakes every waiter.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Len returns the number of queued buffers.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buffers
}

// Cap returns the buffer capacity.
func (q *Queue) Cap() int { return q.capacity }

func (q *Queue) wake() {
	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
}
