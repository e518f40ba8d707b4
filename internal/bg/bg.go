// Package bg provides the runners the cache engine uses to execute network calls
// and to serialize their settlement onto a single logical thread.
package bg

// Runner executes functions, either synchronously or asynchronously.
type Runner interface {
	Do(fn func())
}

// Env pairs the runner that executes network calls with the runner that owns the cache state.
// Every settle step is posted to Settle, so cache mutations never interleave.
type Env struct {
	Calls  Runner
	Settle Runner
}

// Validate checks that both runners are set.
func (e Env) Validate() error {
	if e.Calls == nil {
		return errNilRunner("Calls")
	}
	if e.Settle == nil {
		return errNilRunner("Settle")
	}

	return nil
}

// Sync is a Runner that executes functions inline.
type Sync struct{}

// Do executes the function immediately in the current goroutine.
func (Sync) Do(fn func()) {
	fn()
}

// Async is a Runner that executes every function in a new goroutine.
type Async struct{}

// Do executes the function in a new goroutine.
func (Async) Do(fn func()) {
	go fn()
}

type errNilRunner string

func (e errNilRunner) Error() string {
	return string(e) + ": runner is nil"
}
