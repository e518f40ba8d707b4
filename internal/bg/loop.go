package bg

import (
	"sync"
)

// Loop is a Runner that executes functions one at a time, in submission order, on a single goroutine.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wakeCh  chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped bool
}

// Do enqueues the function. Functions submitted after Stop are dropped.
func (l *Loop) Do(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wakeCh <- struct{}{}:
	default:
	}
}

// Run enqueues the function and blocks until the loop executed it.
// Must not be called from the loop itself.
func (l *Loop) Run(fn func()) {
	done := make(chan struct{})
	l.Do(func() {
		defer close(done)
		fn()
	})

	select {
	case <-done:
	case <-l.doneCh:
	}
}

// Stop stops the loop once the functions queued so far were executed.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.mu.Unlock()

	close(l.stopCh)
	<-l.doneCh
}

// worker does the actual job.
func (l *Loop) worker() {
	defer close(l.doneCh)

	for {
		for {
			fn := l.pop()
			if fn == nil {
				break
			}
			fn()
		}

		select {
		case <-l.wakeCh:
		case <-l.stopCh:
			for fn := l.pop(); fn != nil; fn = l.pop() {
				fn()
			}
			return
		}
	}
}

func (l *Loop) pop() func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]

	return fn
}

// NewLoop creates and starts a new Loop.
func NewLoop() *Loop {
	l := &Loop{
		wakeCh: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go l.worker()

	return l
}
