package tracking

import "sync"

// observerQueue delivers snapshots to one observer on its own goroutine. Only
// the latest undelivered snapshot is kept, so a slow observer skips
// intermediate states but never sees them out of order.
type observerQueue struct {
	fn Observer

	mu     sync.Mutex
	latest *Snapshot
	closed bool

	wake chan struct{}
	done chan struct{}
}

func newObserverQueue(fn Observer) *observerQueue {
	q := &observerQueue{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *observerQueue) offer(snap Snapshot) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.latest = &snap
	q.mu.Unlock()
	q.signal()
}

// close delivers the pending snapshot, if any, then stops the queue.
func (q *observerQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *observerQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *observerQueue) run() {
	defer close(q.done)
	for range q.wake {
		q.mu.Lock()
		snap := q.latest
		q.latest = nil
		closed := q.closed
		q.mu.Unlock()

		if snap != nil {
			q.fn(*snap)
		}
		if closed {
			return
		}
	}
}
