package request

import (
	"sync"
)

// Map is a keyed request registry: it lets any caller query the status of an operation
// by key without holding the original Request.
// Setting a key replaces the tracked request (no coalescing).
type Map[K comparable] struct {
	mu   sync.RWMutex
	reqs map[K]Status
}

// Get returns the request tracked for the key.
func (m *Map[K]) Get(key K) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, found := m.reqs[key]

	return r, found
}

// Set tracks the request under the key.
func (m *Map[K]) Set(key K, r Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.reqs == nil {
		m.reqs = make(map[K]Status)
	}
	m.reqs[key] = r
}

// Delete stops tracking the key.
func (m *Map[K]) Delete(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.reqs, key)
}

// Clear drops every tracked request.
func (m *Map[K]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reqs = make(map[K]Status)
}

// Len returns the number of tracked requests.
func (m *Map[K]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.reqs)
}

// IsPending checks if the request tracked for the key is pending.
func (m *Map[K]) IsPending(key K) bool {
	r, found := m.Get(key)
	return found && r.IsPending()
}

// IsLoaded checks if the request tracked for the key is loaded.
func (m *Map[K]) IsLoaded(key K) bool {
	r, found := m.Get(key)
	return found && r.IsLoaded()
}

// IsFailed checks if the request tracked for the key failed.
func (m *Map[K]) IsFailed(key K) bool {
	r, found := m.Get(key)
	return found && r.IsFailed()
}

// Err returns the error of the request tracked for the key.
func (m *Map[K]) Err(key K) error {
	r, found := m.Get(key)
	if !found {
		return nil
	}

	return r.Err()
}
