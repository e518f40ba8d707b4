package request

import (
	"context"
)

// Group aggregates the state of N requests.
type Group[T any] struct {
	reqs []*Request[T]
}

// All creates a Group over the requests.
func All[T any](reqs ...*Request[T]) *Group[T] {
	return &Group[T]{reqs: reqs}
}

// State returns Failed if any request failed, Pending if any request is pending, Loaded otherwise.
func (g *Group[T]) State() State {
	pending := false
	for _, r := range g.reqs {
		switch r.State() {
		case Failed:
			return Failed
		case Pending:
			pending = true
		}
	}
	if pending {
		return Pending
	}

	return Loaded
}

// IsPending checks if any request is pending (and none failed).
func (g *Group[T]) IsPending() bool {
	return g.State() == Pending
}

// IsLoaded checks if every request is loaded.
func (g *Group[T]) IsLoaded() bool {
	return g.State() == Loaded
}

// IsFailed checks if any request failed.
func (g *Group[T]) IsFailed() bool {
	return g.State() == Failed
}

// Err returns the first request error in the group order.
func (g *Group[T]) Err() error {
	for _, r := range g.reqs {
		if err := r.Err(); err != nil {
			return err
		}
	}

	return nil
}

// Data returns the live data of every request in the group order.
func (g *Group[T]) Data() []T {
	data := make([]T, 0, len(g.reqs))
	for _, r := range g.reqs {
		data = append(data, r.Data())
	}

	return data
}

// Wait blocks until every request settled or the context is done.
func (g *Group[T]) Wait(ctx context.Context) error {
	for _, r := range g.reqs {
		select {
		case <-r.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return g.Err()
}
