// Package request wraps a single asynchronous server call into a Pending/Loaded/Failed state machine.
//
// The call itself runs on the Calls runner of a bg.Env. Its settlement is posted to the Settle runner,
// where the settle handler (cache update) and every registered callback run in one step,
// so observers never see a half-applied response.
package request

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/itiky/resource-sync/internal/bg"
)

// State is a Request state.
type State int

const (
	Pending State = iota
	Loaded
	Failed
)

// String implements the stringer interface.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	}

	return fmt.Sprintf("state(%d)", int(s))
}

type (
	// Status is the read-only view of a request state.
	Status interface {
		State() State
		IsPending() bool
		IsLoaded() bool
		IsFailed() bool
		Err() error
	}

	// Request tracks one server call. It is never reused or restarted.
	Request[T any] struct {
		mu        sync.Mutex
		state     State
		err       error
		data      func() T
		onSuccess []func(T)
		onFailure []func(error)
		doneCh    chan struct{}
	}
)

// State returns the current request state.
func (r *Request[T]) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state
}

// IsPending checks if the call has not settled yet.
func (r *Request[T]) IsPending() bool {
	return r.State() == Pending
}

// IsLoaded checks if the call succeeded.
func (r *Request[T]) IsLoaded() bool {
	return r.State() == Loaded
}

// IsFailed checks if the call failed.
func (r *Request[T]) IsFailed() bool {
	return r.State() == Failed
}

// Err returns the call error (nil unless Failed).
func (r *Request[T]) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.err
}

// Data returns the live data the request is bound to (the current cache state, not a response copy).
func (r *Request[T]) Data() T {
	if r.data == nil {
		var empty T
		return empty
	}

	return r.data()
}

// OnSuccess registers a callback invoked with the live data once the request is Loaded.
// If the request is already Loaded, the callback is invoked immediately.
func (r *Request[T]) OnSuccess(fn func(data T)) *Request[T] {
	r.mu.Lock()
	switch r.state {
	case Pending:
		r.onSuccess = append(r.onSuccess, fn)
		r.mu.Unlock()
	case Loaded:
		r.mu.Unlock()
		fn(r.Data())
	default:
		r.mu.Unlock()
	}

	return r
}

// OnFailure registers a callback invoked with the error once the request is Failed.
// If the request is already Failed, the callback is invoked immediately.
func (r *Request[T]) OnFailure(fn func(err error)) *Request[T] {
	r.mu.Lock()
	switch r.state {
	case Pending:
		r.onFailure = append(r.onFailure, fn)
		r.mu.Unlock()
	case Failed:
		err := r.err
		r.mu.Unlock()
		fn(err)
	default:
		r.mu.Unlock()
	}

	return r
}

// Done returns a channel closed after the request settled and its callbacks were flushed.
func (r *Request[T]) Done() <-chan struct{} {
	return r.doneCh
}

// Wait blocks until the request settled or the context is done.
// Returns the request error or the context error.
// Must not be called from the Settle runner goroutine.
func (r *Request[T]) Wait(ctx context.Context) error {
	select {
	case <-r.doneCh:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finish moves the request to the terminal state and flushes the callbacks in registration order.
func (r *Request[T]) finish(err error) {
	r.mu.Lock()
	if r.state != Pending {
		r.mu.Unlock()
		glog.Warningf("request: settled twice (state %s)", r.state)
		return
	}

	var (
		onSuccess = r.onSuccess
		onFailure = r.onFailure
	)
	r.onSuccess, r.onFailure = nil, nil
	if err != nil {
		r.state, r.err = Failed, err
	} else {
		r.state = Loaded
	}
	r.mu.Unlock()

	if err != nil {
		for _, fn := range onFailure {
			fn(err)
		}
	} else {
		data := r.Data()
		for _, fn := range onSuccess {
			fn(data)
		}
	}

	close(r.doneCh)
}

// New starts the op call and returns the pending Request.
// data is the live getter backing Request.Data.
// settle is invoked exactly once on the Settle runner with the call result, right before the callbacks flush.
// A panic inside op is recovered and reported as the request error.
func New[R, T any](ctx context.Context, env bg.Env, op func(ctx context.Context) (R, error), data func() T, settle func(res R, err error)) *Request[T] {
	r := &Request[T]{
		data:   data,
		doneCh: make(chan struct{}),
	}

	env.Calls.Do(func() {
		res, err := safeCall(ctx, op)
		env.Settle.Do(func() {
			if settle != nil {
				settle(res, err)
			}
			r.finish(err)
		})
	})

	return r
}

// Settled returns an already settled Request (Failed if err is not nil).
func Settled[T any](data func() T, err error) *Request[T] {
	r := &Request[T]{
		data:   data,
		doneCh: make(chan struct{}),
	}
	r.finish(err)

	return r
}

// safeCall calls op recovering a panic into an error.
func safeCall[R any](ctx context.Context, op func(ctx context.Context) (R, error)) (res R, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("request: call panicked: %v", p)
		}
	}()

	return op(ctx)
}
