// Package scope holds the "currently selected" value (account, app, team) a cache is scoped to.
// Changing the value bumps the generation and synchronously notifies every subscriber.
package scope

import (
	"sync"
)

type (
	// Scope keeps the current scope value alongside its generation.
	Scope struct {
		mu         sync.Mutex
		value      interface{}
		generation uint64
		subs       map[uint64]func(old, new interface{})
		nextSubId  uint64
	}
)

// Value returns the current scope value.
func (s *Scope) Value() interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.value
}

// Generation returns the current generation. It changes every time the value changes.
func (s *Scope) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.generation
}

// Set updates the scope value. Setting an equal value is a no-op.
// Subscribers are invoked in the caller goroutine, in subscription order, before Set returns.
func (s *Scope) Set(value interface{}) {
	s.mu.Lock()
	if s.value == value {
		s.mu.Unlock()
		return
	}
	old := s.value
	s.value = value
	s.generation++

	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sortIds(ids)
	fns := make([]func(old, new interface{}), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(old, value)
	}
}

// Subscribe registers a change handler and returns the cancel func.
func (s *Scope) Subscribe(fn func(old, new interface{})) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubId
	s.nextSubId++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		delete(s.subs, id)
	}
}

// NewScope creates a new Scope object with the initial value (generation 0).
func NewScope(value interface{}) *Scope {
	return &Scope{
		value: value,
		subs:  make(map[uint64]func(old, new interface{})),
	}
}
