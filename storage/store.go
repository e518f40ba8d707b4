package storage

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/itiky/resource-sync/internal/assert"
	"github.com/itiky/resource-sync/internal/bg"
	"github.com/itiky/resource-sync/request"
	"github.com/itiky/resource-sync/scope"
)

type (
	// StoreConfig describes the necessary fields for NewStore.
	StoreConfig[S, Q any] struct {
		// Name is used for logs and monitor reports
		Name       string
		Env        bg.Env
		Serializer Serializer[S, Q]
		// Optional: every change of the scope value clears the Store
		Scope *scope.Scope
		// Optional
		Monitor *Monitor
	}

	// Store is a per resource type cache keyed by identity.
	// It keeps Model objects in insertion order alongside the clientId and the server id indexes.
	// The cache state is owned by the Env.Settle runner: mutating operations must be called from it,
	// reads are safe from any goroutine.
	Store[S, Q any] struct {
		name        string
		env         bg.Env
		serializer  Serializer[S, Q]
		monitor     *Monitor
		cancelScope func()
		// State
		mu              sync.RWMutex
		list            []*Model
		clientIdMatch   map[ClientId]*Model
		idClientIdMatch map[string]ClientId
		generation      uint64
		//
		requests map[OpKind]*request.Map[string]
	}
)

// Validate ensures all the necessary values are specified.
func (c StoreConfig[S, Q]) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%s: empty", "Name")
	}
	if err := c.Env.Validate(); err != nil {
		return fmt.Errorf("%s: %w", "Env", err)
	}
	if c.Serializer == nil {
		return fmt.Errorf("%s: nil", "Serializer")
	}

	return nil
}

// String implements the stringer interface.
func (s *Store[S, Q]) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	str := strings.Builder{}
	str.WriteString(fmt.Sprintf("%s (%d):\n", s.name, len(s.list)))
	for i, m := range s.list {
		str.WriteString(fmt.Sprintf("- [%d] %s (%s)\n", i, m.Id(), m.ClientId()))
	}

	return str.String()
}

// Name returns the Store name.
func (s *Store[S, Q]) Name() string {
	return s.name
}

// Get returns the Model for the server id.
func (s *Store[S, Q]) Get(id string) (*Model, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := s.lookupLocked(id)

	return m, m != nil
}

// Has checks if a Model with the server id is cached.
func (s *Store[S, Q]) Has(id string) bool {
	_, found := s.Get(id)
	return found
}

// GetByClientId returns the Model for the local identity.
func (s *Store[S, Q]) GetByClientId(clientId ClientId) (*Model, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, found := s.clientIdMatch[clientId]

	return m, found
}

// Contains checks if this exact Model instance is cached.
func (s *Store[S, Q]) Contains(m *Model) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.trackedLocked(m)
}

// Resources returns the cached Models in insertion order.
func (s *Store[S, Q]) Resources() []*Model {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*Model, len(s.list))
	copy(list, s.list)

	return list
}

// Filter returns the cached Models matching the predicate in insertion order.
func (s *Store[S, Q]) Filter(pred func(m *Model) bool) []*Model {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*Model, 0)
	for _, m := range s.list {
		if pred(m) {
			list = append(list, m)
		}
	}

	return list
}

// Len returns the number of cached Models.
func (s *Store[S, Q]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.list)
}

// Add inserts the Model without any server call.
func (s *Store[S, Q]) Add(m *Model) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.addLocked(m)
}

// Request returns the request tracked for the operation kind and key.
// Keys are server ids, except for OpCreate (ClientId) and collection / relationship fetches (see KeyOf).
func (s *Store[S, Q]) Request(kind OpKind, key string) (request.Status, bool) {
	return s.requests[kind].Get(key)
}

// IsPending checks if the operation tracked for the key is pending.
func (s *Store[S, Q]) IsPending(kind OpKind, key string) bool {
	return s.requests[kind].IsPending(key)
}

// IsLoaded checks if the operation tracked for the key is loaded.
func (s *Store[S, Q]) IsLoaded(kind OpKind, key string) bool {
	return s.requests[kind].IsLoaded(key)
}

// IsFailed checks if the operation tracked for the key failed.
func (s *Store[S, Q]) IsFailed(kind OpKind, key string) bool {
	return s.requests[kind].IsFailed(key)
}

// Err returns the error of the operation tracked for the key.
func (s *Store[S, Q]) Err(kind OpKind, key string) error {
	return s.requests[kind].Err(key)
}

// KeyOf returns the request registry key of the Model for the operation kind.
func (s *Store[S, Q]) KeyOf(kind OpKind, m *Model) string {
	if kind == OpCreate {
		return m.ClientId().String()
	}
	if id := m.Id(); id != "" {
		return id
	}

	return m.ClientId().String()
}

// Invalidate clears every Model, both indexes and every request registry.
// Requests in flight keep running, but their settlement is not applied to the cache anymore.
func (s *Store[S, Q]) Invalidate() {
	s.mu.Lock()
	s.list = make([]*Model, 0)
	s.clientIdMatch = make(map[ClientId]*Model)
	s.idClientIdMatch = make(map[string]ClientId)
	s.generation++
	s.mu.Unlock()

	for _, kind := range OpKinds {
		s.requests[kind].Clear()
	}

	glog.V(1).Infof("[%s] invalidated", s.name)
}

// Close stops watching the scope.
func (s *Store[S, Q]) Close() {
	if s.cancelScope != nil {
		s.cancelScope()
	}
}

// issue captures the generation a request is issued under.
func (s *Store[S, Q]) issue() (uint64, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.generation, time.Now()
}

// currentLocked checks that the cache was not invalidated since the request was issued.
func (s *Store[S, Q]) currentLocked(gen uint64, kind OpKind, key string) bool {
	if gen != s.generation {
		glog.Warningf("[%s] %s (%s): settled after invalidation: dropped", s.name, kind, key)
		return false
	}

	return true
}

// track registers the request unless the cache was invalidated meanwhile.
func (s *Store[S, Q]) track(kind OpKind, key string, gen uint64, r request.Status) {
	s.mu.RLock()
	current := gen == s.generation
	s.mu.RUnlock()

	if current {
		s.requests[kind].Set(key, r)
	}
}

// served reports the settlement to logs and to the monitor.
func (s *Store[S, Q]) served(kind OpKind, key string, start time.Time, err error) {
	dur := time.Since(start)
	if err != nil {
		glog.V(1).Infof("[%s] %s (%s): failed within %v: %v", s.name, kind, key, dur, err)
	} else if glog.V(2) {
		glog.Infof("[%s] %s (%s): loaded within %v", s.name, kind, key, dur)
	}

	if s.monitor != nil {
		s.monitor.RequestServed(s.name, string(kind), dur, err)
	}
}

// lookupLocked resolves the server id through the id -> clientId index.
func (s *Store[S, Q]) lookupLocked(id string) *Model {
	if id == "" {
		return nil
	}

	if clientId, found := s.idClientIdMatch[id]; found {
		if m := s.clientIdMatch[clientId]; m != nil && m.Id() == id {
			return m
		}
	}

	// The id was changed outside of the Store
	for _, m := range s.list {
		if m.Id() == id {
			return m
		}
	}

	return nil
}

func (s *Store[S, Q]) trackedLocked(m *Model) bool {
	if m == nil {
		return false
	}

	return s.clientIdMatch[m.clientId] == m
}

// addLocked appends the Model and indexes it.
func (s *Store[S, Q]) addLocked(m *Model) {
	s.insertAtLocked(m, len(s.list))
}

// insertAtLocked inserts the Model at the list position (clamped) and indexes it.
func (s *Store[S, Q]) insertAtLocked(m *Model, idx int) {
	if s.trackedLocked(m) {
		assert.Invariant(false, "%s: model %s: already cached", s.name, m.ClientId())
		return
	}

	m.mu.Lock()
	m.idFn = s.serializer.IdFromFields
	m.mu.Unlock()

	if idx < 0 || idx > len(s.list) {
		idx = len(s.list)
	}
	s.list = append(s.list, nil)
	copy(s.list[idx+1:], s.list[idx:])
	s.list[idx] = m
	s.clientIdMatch[m.clientId] = m

	s.indexLocked(m)
}

// indexLocked maps the Model server id to its clientId.
// Another Model holding the same id is a duplicate and gets dropped.
func (s *Store[S, Q]) indexLocked(m *Model) {
	id := m.Id()
	if id == "" {
		return
	}

	if otherClientId, found := s.idClientIdMatch[id]; found && otherClientId != m.clientId {
		if other := s.clientIdMatch[otherClientId]; other != nil && other.Id() == id {
			glog.V(1).Infof("[%s] id %s: model %s replaced by %s", s.name, id, otherClientId, m.clientId)
			s.removeLocked(other)
		}
	}
	s.idClientIdMatch[id] = m.clientId
}

// removeLocked drops the Model and returns its former list position (-1 if not cached).
func (s *Store[S, Q]) removeLocked(m *Model) int {
	if !s.trackedLocked(m) {
		return -1
	}

	delete(s.clientIdMatch, m.clientId)
	if id := m.Id(); id != "" && s.idClientIdMatch[id] == m.clientId {
		delete(s.idClientIdMatch, id)
	}

	for i, item := range s.list {
		if item == m {
			s.list = append(s.list[:i], s.list[i+1:]...)
			return i
		}
	}

	return -1
}

// patchLocked applies the changes keeping the id index in sync.
func (s *Store[S, Q]) patchLocked(m *Model, changes Fields) {
	oldId := m.Id()
	m.applyChanges(changes)
	s.reindexLocked(m, oldId)
}

// reindexLocked updates the id index after a Model id change.
func (s *Store[S, Q]) reindexLocked(m *Model, oldId string) {
	if !s.trackedLocked(m) || m.Id() == oldId {
		return
	}

	if oldId != "" && s.idClientIdMatch[oldId] == m.clientId {
		delete(s.idClientIdMatch, oldId)
	}
	s.indexLocked(m)
}

// mergeLocked patches the Model with the same id in place or inserts a new one.
func (s *Store[S, Q]) mergeLocked(fields Fields) *Model {
	if m := s.lookupLocked(s.serializer.IdFromFields(fields)); m != nil {
		s.patchLocked(m, fields)
		return m
	}

	m := &Model{
		clientId: NewClientId(),
		fields:   fields.Clone(),
	}
	s.addLocked(m)

	return m
}

// modelsLocked resolves the clientIds of the Models still cached.
func (s *Store[S, Q]) modelsLocked(clientIds []ClientId) []*Model {
	list := make([]*Model, 0, len(clientIds))
	for _, clientId := range clientIds {
		if m, found := s.clientIdMatch[clientId]; found {
			list = append(list, m)
		}
	}

	return list
}

// NewStore creates a new Store object.
func NewStore[S, Q any](cfg StoreConfig[S, Q]) (*Store[S, Q], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Store[S, Q]{
		name:            cfg.Name,
		env:             cfg.Env,
		serializer:      cfg.Serializer,
		monitor:         cfg.Monitor,
		list:            make([]*Model, 0),
		clientIdMatch:   make(map[ClientId]*Model),
		idClientIdMatch: make(map[string]ClientId),
		requests:        make(map[OpKind]*request.Map[string], len(OpKinds)),
	}
	for _, kind := range OpKinds {
		s.requests[kind] = &request.Map[string]{}
	}

	if cfg.Scope != nil {
		s.cancelScope = cfg.Scope.Subscribe(func(old, new interface{}) {
			glog.V(1).Infof("[%s] scope changed: %v -> %v", s.name, old, new)
			s.Invalidate()
		})
	}

	return s, nil
}
