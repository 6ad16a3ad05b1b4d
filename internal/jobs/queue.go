package jobs

import (
	"context"
	"sync"
	"time"
)

// fifo is an unbounded queue of job ids. Push never blocks; Pop waits a bounded time.
type fifo struct {
	mu     sync.Mutex
	items  []string
	notify chan struct{}
}

func newFIFO() *fifo {
	return &fifo{notify: make(chan struct{}, 1)}
}

func (q *fifo) Push(id string) {
	q.mu.Lock()
	q.items = append(q.items, id)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop returns the oldest id, waiting at most wait for one to arrive.
func (q *fifo) Pop(ctx context.Context, wait time.Duration) (string, bool) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		if id, ok := q.tryPop(); ok {
			return id, true
		}
		select {
		case <-q.notify:
		case <-timer.C:
			return "", false
		case <-ctx.Done():
			return "", false
		}
	}
}

func (q *fifo) tryPop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	id := q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]
	return id, true
}

// Drain removes and returns everything still queued.
func (q *fifo) Drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

func (q *fifo) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
