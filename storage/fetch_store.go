package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/itiky/resource-sync/internal/bg"
	"github.com/itiky/resource-sync/request"
	"github.com/itiky/resource-sync/scope"
)

const opFetch = "fetch"

type (
	// Fetcher fetches a single value.
	Fetcher[S, P any] interface {
		Fetch(ctx context.Context, params P) (S, error)
	}

	// FetchStoreConfig describes the necessary fields for NewFetchStore.
	FetchStoreConfig[S, P, T any] struct {
		Name string
		Env  bg.Env
		// Deserialize returns false if the value should not exist client-side
		Deserialize func(res S, params P) (T, bool)
		Scope       *scope.Scope
		Monitor     *Monitor
	}

	// FetchStore is a single slot cache: one fetched value and the request that produced it.
	FetchStore[S, P, T any] struct {
		name        string
		env         bg.Env
		deserialize func(res S, params P) (T, bool)
		monitor     *Monitor
		cancelScope func()
		// State
		mu         sync.RWMutex
		value      T
		hasValue   bool
		req        *request.Request[T]
		generation uint64
	}
)

// Validate ensures all the necessary values are specified.
func (c FetchStoreConfig[S, P, T]) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%s: empty", "Name")
	}
	if err := c.Env.Validate(); err != nil {
		return fmt.Errorf("%s: %w", "Env", err)
	}
	if c.Deserialize == nil {
		return fmt.Errorf("%s: nil", "Deserialize")
	}

	return nil
}

// Value returns the cached value.
func (s *FetchStore[S, P, T]) Value() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.value, s.hasValue
}

// Request returns the latest fetch request (nil if none).
func (s *FetchStore[S, P, T]) Request() *request.Request[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.req
}

// IsPending checks if the latest fetch is pending.
func (s *FetchStore[S, P, T]) IsPending() bool {
	r := s.Request()
	return r != nil && r.IsPending()
}

// IsLoaded checks if the latest fetch is loaded.
func (s *FetchStore[S, P, T]) IsLoaded() bool {
	r := s.Request()
	return r != nil && r.IsLoaded()
}

// IsFailed checks if the latest fetch failed.
func (s *FetchStore[S, P, T]) IsFailed() bool {
	r := s.Request()
	return r != nil && r.IsFailed()
}

// Err returns the latest fetch error.
func (s *FetchStore[S, P, T]) Err() error {
	if r := s.Request(); r != nil {
		return r.Err()
	}

	return nil
}

// Fetch fetches the value.
// Non-optimistic: the current value is cleared before the call (consumers see "empty" during the refetch).
// Optimistic: the stale value stays visible until the response lands.
// A failed fetch leaves the slot as it was when the call was issued.
func (s *FetchStore[S, P, T]) Fetch(ctx context.Context, api Fetcher[S, P], params P, optimistic bool) *request.Request[T] {
	s.mu.Lock()
	gen, start := s.generation, time.Now()
	if !optimistic {
		s.clearLocked()
	}
	s.mu.Unlock()

	r := request.New(ctx, s.env,
		func(ctx context.Context) (S, error) {
			return api.Fetch(ctx, params)
		},
		func() T {
			v, _ := s.Value()
			return v
		},
		func(res S, err error) {
			dur := time.Since(start)
			if s.monitor != nil {
				s.monitor.RequestServed(s.name, opFetch, dur, err)
			}
			if err != nil {
				glog.V(1).Infof("[%s] %s: failed within %v: %v", s.name, opFetch, dur, err)
				return
			}

			s.mu.Lock()
			defer s.mu.Unlock()

			if gen != s.generation {
				glog.Warningf("[%s] %s: settled after invalidation: dropped", s.name, opFetch)
				return
			}

			value, ok := s.deserialize(res, params)
			if !ok {
				s.clearLocked()
				return
			}
			s.value, s.hasValue = value, true
		},
	)

	s.mu.Lock()
	if gen == s.generation {
		s.req = r
	}
	s.mu.Unlock()

	return r
}

// Invalidate clears the value and the request.
func (s *FetchStore[S, P, T]) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearLocked()
	s.req = nil
	s.generation++
}

// Close stops watching the scope.
func (s *FetchStore[S, P, T]) Close() {
	if s.cancelScope != nil {
		s.cancelScope()
	}
}

func (s *FetchStore[S, P, T]) clearLocked() {
	var empty T
	s.value, s.hasValue = empty, false
}

// NewFetchStore creates a new FetchStore object.
func NewFetchStore[S, P, T any](cfg FetchStoreConfig[S, P, T]) (*FetchStore[S, P, T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &FetchStore[S, P, T]{
		name:        cfg.Name,
		env:         cfg.Env,
		deserialize: cfg.Deserialize,
		monitor:     cfg.Monitor,
	}

	if cfg.Scope != nil {
		s.cancelScope = cfg.Scope.Subscribe(func(old, new interface{}) {
			glog.V(1).Infof("[%s] scope changed: %v -> %v", s.name, old, new)
			s.Invalidate()
		})
	}

	return s, nil
}
