package events

import (
	"context"
	"errors"
	"sync"

	"github.com/gammazero/deque"
)

// ErrQueueClosed is returned by Wait once the queue is closed and drained.
var ErrQueueClosed = errors.New("events: queue closed")

// Queue is an ordered event queue in which urgent events overtake the
// events already waiting. Safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	items  *deque.Deque[Event]
	notify chan struct{}
	closed bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		items:  deque.New[Event](),
		notify: make(chan struct{}, 1),
	}
}

// Enqueue adds e at the back, or at the front when its kind is urgent.
func (q *Queue) Enqueue(e Event) {
	if e.Kind.IsUrgent() {
		q.PushNext(e)
		return
	}
	q.Push(e)
}

// Push appends e.
func (q *Queue) Push(e Event) {
	q.mu.Lock()
	q.items.PushBack(e)
	q.mu.Unlock()
	q.signal()
}

// PushNext inserts e ahead of every waiting event.
func (q *Queue) PushNext(e Event) {
	q.mu.Lock()
	q.items.PushFront(e)
	q.mu.Unlock()
	q.signal()
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes the first event. It returns false when the queue is empty.
func (q *Queue) Pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		return Event{}, false
	}
	return q.items.PopFront(), true
}

// Wait blocks until an event is available, ctx is done or the queue is
// closed and empty.
func (q *Queue) Wait(ctx context.Context) (Event, error) {
	for {
		if e, ok := q.Pop(); ok {
			return e, nil
		}

		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return Event{}, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// Len returns the number of waiting events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Drain removes and returns all waiting events.
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Event, 0, q.items.Len())
	for q.items.Len() > 0 {
		out = append(out, q.items.PopFront())
	}
	return out
}

// Close wakes up waiters. Events already queued can still be popped.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}
