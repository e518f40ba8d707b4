package bg

import (
	"sync"
)

// Queue is a Runner that only collects functions; they run when Drain is called.
// It makes settle ordering fully deterministic in tests.
type Queue struct {
	mu    sync.Mutex
	queue []func()
}

// Do enqueues the function.
func (q *Queue) Do(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.queue = append(q.queue, fn)
}

// Len returns the number of queued functions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.queue)
}

// Step executes the oldest queued function and reports whether there was one.
func (q *Queue) Step() bool {
	q.mu.Lock()
	if len(q.queue) == 0 {
		q.mu.Unlock()
		return false
	}
	fn := q.queue[0]
	q.queue = q.queue[1:]
	q.mu.Unlock()

	fn()

	return true
}

// Drain executes queued functions (including the ones enqueued while draining) until the queue is empty.
// Returns the number of executed functions.
func (q *Queue) Drain() int {
	n := 0
	for q.Step() {
		n++
	}

	return n
}
