package rules

import (
	"sync"

	"github.com/roach88/haggle/internal/notify"
)

// inbox is a thread-safe FIFO of notifications feeding the Engine loop.
//
// Subscription goroutines enqueue; only the Run loop dequeues. The queue is
// unbounded so a slow decision never blocks the bus. The signal channel
// enables context-aware waiting in the Run loop.
type inbox struct {
	mu     sync.Mutex
	items  []notify.Notification
	closed bool
	signal chan struct{} // buffered, size 1
}

func newInbox() *inbox {
	return &inbox{
		items:  make([]notify.Notification, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds n to the back of the queue. Returns false once closed.
func (q *inbox) Enqueue(n notify.Notification) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, n)

	// Non-blocking - buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front notification without blocking.
func (q *inbox) TryDequeue() (notify.Notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	n := q.items[0]
	q.items[0] = nil
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return n, true
}

// Wait returns a channel that signals when items may be available.
func (q *inbox) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *inbox) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops further enqueues and wakes any waiter.
func (q *inbox) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
