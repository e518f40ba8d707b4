package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/itiky/resource-sync/internal/assert"
	"github.com/itiky/resource-sync/internal/bg"
	"github.com/itiky/resource-sync/request"
	"github.com/itiky/resource-sync/scope"
)

// AssociationOpKind is an AssociationStore operation kind.
type AssociationOpKind string

const (
	OpAssociate         AssociationOpKind = "associate"
	OpDisassociate      AssociationOpKind = "disassociate"
	OpUpdateAssociation AssociationOpKind = "updateAssociation"
)

// AssociationOpKinds lists every AssociationOpKind.
var AssociationOpKinds = []AssociationOpKind{OpAssociate, OpDisassociate, OpUpdateAssociation}

type (
	// AssociationKey identifies an edge between a left and a right resource.
	AssociationKey struct {
		Left  string
		Right string
	}

	// Association is a cached edge with optional metadata (e.g. a permission role).
	Association struct {
		mu       sync.RWMutex
		key      AssociationKey
		metadata Fields
	}

	// Associator creates edges. The response carries the edges metadata in the keys order.
	Associator interface {
		AssociateResources(ctx context.Context, keys []AssociationKey) ([]Fields, error)
	}

	// Disassociator deletes edges.
	Disassociator interface {
		DisassociateResources(ctx context.Context, keys []AssociationKey) error
	}

	// AssociationPatcher patches the edge metadata. The response carries the resulting metadata.
	AssociationPatcher interface {
		PatchAssociation(ctx context.Context, key AssociationKey, changes Fields) (Fields, error)
	}

	// AssociationStoreConfig describes the necessary fields for NewAssociationStore.
	AssociationStoreConfig struct {
		Name    string
		Env     bg.Env
		Scope   *scope.Scope
		Monitor *Monitor
	}

	// AssociationStore caches the edges between two resource types (many-to-many relations).
	// Edges are kept in a two-level map: left key -> right key -> Association.
	AssociationStore struct {
		name        string
		env         bg.Env
		monitor     *Monitor
		cancelScope func()
		// State
		mu         sync.RWMutex
		edges      map[string]map[string]*Association
		rightLeft  map[string]map[string]struct{}
		generation uint64
		//
		requests map[AssociationOpKind]*request.Map[AssociationKey]
	}
)

// String implements the stringer interface.
func (k AssociationKey) String() string {
	return fmt.Sprintf("%s/%s", k.Left, k.Right)
}

// Key returns the edge key.
func (a *Association) Key() AssociationKey {
	return a.key
}

// Get returns a metadata value.
func (a *Association) Get(key string) (interface{}, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	v, found := a.metadata[key]

	return v, found
}

// Metadata returns a copy of the edge metadata.
func (a *Association) Metadata() Fields {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.metadata.Clone()
}

func (a *Association) applyChanges(changes Fields) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for k, v := range changes {
		a.metadata[k] = v
	}
}

func (a *Association) revertChanges(preImage, applied Fields) {
	a.mu.Lock()
	defer a.mu.Unlock()

	revertFields(a.metadata, preImage, applied)
}

// Validate ensures all the necessary values are specified.
func (c AssociationStoreConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%s: empty", "Name")
	}
	if err := c.Env.Validate(); err != nil {
		return fmt.Errorf("%s: %w", "Env", err)
	}

	return nil
}

// Contains checks if the edge is cached.
func (s *AssociationStore) Contains(left, right string) bool {
	_, found := s.Get(left, right)
	return found
}

// Get returns the cached edge.
func (s *AssociationStore) Get(left, right string) (*Association, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, found := s.edges[left][right]

	return a, found
}

// GetAllAssociationsForLeftKey returns the edges of the left key ordered by right key.
func (s *AssociationStore) GetAllAssociationsForLeftKey(left string) []*Association {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rights := maps.Keys(s.edges[left])
	slices.Sort(rights)

	list := make([]*Association, 0, len(rights))
	for _, right := range rights {
		list = append(list, s.edges[left][right])
	}

	return list
}

// GetAllAssociationsForRightKey returns the edges of the right key ordered by left key.
func (s *AssociationStore) GetAllAssociationsForRightKey(right string) []*Association {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lefts := maps.Keys(s.rightLeft[right])
	slices.Sort(lefts)

	list := make([]*Association, 0, len(lefts))
	for _, left := range lefts {
		list = append(list, s.edges[left][right])
	}

	return list
}

// RightKeys implements the Edges interface.
func (s *AssociationStore) RightKeys(left string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rights := maps.Keys(s.edges[left])
	slices.Sort(rights)

	return rights
}

// Keys returns every cached edge key ordered by left, then right key.
func (s *AssociationStore) Keys() []AssociationKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]AssociationKey, 0)
	for left, rights := range s.edges {
		for right := range rights {
			keys = append(keys, AssociationKey{Left: left, Right: right})
		}
	}
	slices.SortFunc(keys, compareKeys)

	return keys
}

// Len returns the number of cached edges.
func (s *AssociationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rights := range s.edges {
		n += len(rights)
	}

	return n
}

// Add caches the edge without any server call. An existing edge gets the metadata merged.
func (s *AssociationStore) Add(left, right string, metadata Fields) *Association {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, _ := s.addLocked(AssociationKey{Left: left, Right: right})
	a.applyChanges(metadata)

	return a
}

// Remove drops the edge without any server call.
func (s *AssociationStore) Remove(left, right string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(AssociationKey{Left: left, Right: right})
}

// Link implements the Edges interface.
func (s *AssociationStore) Link(left, right string) {
	s.Add(left, right, nil)
}

// Unlink implements the Edges interface.
func (s *AssociationStore) Unlink(left, right string) {
	s.Remove(left, right)
}

// IsPending checks if the operation tracked for the edge is pending.
func (s *AssociationStore) IsPending(kind AssociationOpKind, left, right string) bool {
	return s.requests[kind].IsPending(AssociationKey{Left: left, Right: right})
}

// IsLoaded checks if the operation tracked for the edge is loaded.
func (s *AssociationStore) IsLoaded(kind AssociationOpKind, left, right string) bool {
	return s.requests[kind].IsLoaded(AssociationKey{Left: left, Right: right})
}

// IsFailed checks if the operation tracked for the edge failed.
func (s *AssociationStore) IsFailed(kind AssociationOpKind, left, right string) bool {
	return s.requests[kind].IsFailed(AssociationKey{Left: left, Right: right})
}

// Err returns the error of the operation tracked for the edge.
func (s *AssociationStore) Err(kind AssociationOpKind, left, right string) error {
	return s.requests[kind].Err(AssociationKey{Left: left, Right: right})
}

// Associate creates an edge. See AssociateMany.
func (s *AssociationStore) Associate(ctx context.Context, api Associator, left, right string, optimistic bool) *request.Request[[]*Association] {
	return s.AssociateMany(ctx, api, []AssociationKey{{Left: left, Right: right}}, optimistic)
}

// AssociateMany creates edges in one call.
// Optimistic: the edges are cached immediately and removed if the call fails (edges cached before the call stay).
// Pessimistic: the edges are cached on success only.
// On success the response metadata is set on the edges.
func (s *AssociationStore) AssociateMany(ctx context.Context, api Associator, keys []AssociationKey, optimistic bool) *request.Request[[]*Association] {
	gen, start := s.issue()

	added := make(map[AssociationKey]bool, len(keys))
	if optimistic {
		s.mu.Lock()
		for _, key := range keys {
			if _, created := s.addLocked(key); created {
				added[key] = true
			}
		}
		s.mu.Unlock()
	}

	r := request.New(ctx, s.env,
		func(ctx context.Context) ([]Fields, error) {
			return api.AssociateResources(ctx, keys)
		},
		s.liveEdges(keys),
		func(res []Fields, err error) {
			s.served(OpAssociate, keys, start, err)

			s.mu.Lock()
			defer s.mu.Unlock()

			if !s.currentLocked(gen, OpAssociate, keys) {
				return
			}
			if err != nil {
				for key := range added {
					s.removeLocked(key)
				}
				return
			}
			for i, key := range keys {
				a, _ := s.addLocked(key)
				if i < len(res) {
					a.applyChanges(res[i])
				}
			}
		},
	)
	s.track(OpAssociate, keys, gen, r)

	return r
}

// Disassociate deletes an edge. See DisassociateMany.
func (s *AssociationStore) Disassociate(ctx context.Context, api Disassociator, left, right string, optimistic bool) *request.Request[[]*Association] {
	return s.DisassociateMany(ctx, api, []AssociationKey{{Left: left, Right: right}}, optimistic)
}

// DisassociateMany deletes edges in one call.
// Optimistic: the edges are removed immediately and reinstated (with their metadata) if the call fails.
// Pessimistic: the edges are removed on success only.
func (s *AssociationStore) DisassociateMany(ctx context.Context, api Disassociator, keys []AssociationKey, optimistic bool) *request.Request[[]*Association] {
	gen, start := s.issue()

	removed := make([]*Association, 0, len(keys))
	if optimistic {
		s.mu.Lock()
		for _, key := range keys {
			if a := s.removeLocked(key); a != nil {
				removed = append(removed, a)
			}
		}
		s.mu.Unlock()
	}

	r := request.New(ctx, s.env,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, api.DisassociateResources(ctx, keys)
		},
		s.liveEdges(keys),
		func(_ struct{}, err error) {
			s.served(OpDisassociate, keys, start, err)

			s.mu.Lock()
			defer s.mu.Unlock()

			if !s.currentLocked(gen, OpDisassociate, keys) {
				return
			}
			if err != nil {
				for _, a := range removed {
					s.reinstateLocked(a)
				}
				return
			}
			for _, key := range keys {
				s.removeLocked(key)
			}
		},
	)
	s.track(OpDisassociate, keys, gen, r)

	return r
}

// UpdateAssociation patches the edge metadata.
// Optimistic: changes are applied immediately and reverted if the call fails.
// Pessimistic: changes are applied on success only.
func (s *AssociationStore) UpdateAssociation(ctx context.Context, api AssociationPatcher, left, right string, changes Fields, optimistic bool) *request.Request[[]*Association] {
	gen, start := s.issue()
	key := AssociationKey{Left: left, Right: right}
	keys := []AssociationKey{key}

	a, found := s.Get(left, right)
	if !found {
		assert.Invariant(false, "%s: updateAssociation: edge %s is not cached", s.name, key)
		r := request.Settled(s.liveEdges(keys), fmt.Errorf("updateAssociation (%s): %w", key, ErrNotTracked))
		s.track(OpUpdateAssociation, keys, gen, r)
		return r
	}

	changes = changes.Clone()
	preImage := a.Metadata()
	if optimistic {
		a.applyChanges(changes)
	}

	r := request.New(ctx, s.env,
		func(ctx context.Context) (Fields, error) {
			return api.PatchAssociation(ctx, key, changes.Clone())
		},
		s.liveEdges(keys),
		func(res Fields, err error) {
			s.served(OpUpdateAssociation, keys, start, err)

			s.mu.Lock()
			defer s.mu.Unlock()

			if !s.currentLocked(gen, OpUpdateAssociation, keys) {
				return
			}
			if err != nil {
				if optimistic {
					a.revertChanges(preImage, changes)
				}
				return
			}
			if !optimistic {
				a.applyChanges(changes)
			}
			a.applyChanges(res)
		},
	)
	s.track(OpUpdateAssociation, keys, gen, r)

	return r
}

// Invalidate clears every edge and every request registry.
func (s *AssociationStore) Invalidate() {
	s.mu.Lock()
	s.edges = make(map[string]map[string]*Association)
	s.rightLeft = make(map[string]map[string]struct{})
	s.generation++
	s.mu.Unlock()

	for _, kind := range AssociationOpKinds {
		s.requests[kind].Clear()
	}

	glog.V(1).Infof("[%s] invalidated", s.name)
}

// Close stops watching the scope.
func (s *AssociationStore) Close() {
	if s.cancelScope != nil {
		s.cancelScope()
	}
}

func (s *AssociationStore) issue() (uint64, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.generation, time.Now()
}

func (s *AssociationStore) currentLocked(gen uint64, kind AssociationOpKind, keys []AssociationKey) bool {
	if gen != s.generation {
		glog.Warningf("[%s] %s (%v): settled after invalidation: dropped", s.name, kind, keys)
		return false
	}

	return true
}

func (s *AssociationStore) track(kind AssociationOpKind, keys []AssociationKey, gen uint64, r request.Status) {
	s.mu.RLock()
	current := gen == s.generation
	s.mu.RUnlock()

	if !current {
		return
	}
	for _, key := range keys {
		s.requests[kind].Set(key, r)
	}
}

func (s *AssociationStore) served(kind AssociationOpKind, keys []AssociationKey, start time.Time, err error) {
	dur := time.Since(start)
	if err != nil {
		glog.V(1).Infof("[%s] %s (%v): failed within %v: %v", s.name, kind, keys, dur, err)
	} else if glog.V(2) {
		glog.Infof("[%s] %s (%v): loaded within %v", s.name, kind, keys, dur)
	}

	if s.monitor != nil {
		s.monitor.RequestServed(s.name, string(kind), dur, err)
	}
}

// addLocked returns the edge, creating it if needed.
func (s *AssociationStore) addLocked(key AssociationKey) (*Association, bool) {
	if a, found := s.edges[key.Left][key.Right]; found {
		return a, false
	}

	a := &Association{
		key:      key,
		metadata: Fields{},
	}
	s.insertLocked(a)

	return a, true
}

func (s *AssociationStore) insertLocked(a *Association) {
	rights, found := s.edges[a.key.Left]
	if !found {
		rights = make(map[string]*Association)
		s.edges[a.key.Left] = rights
	}
	rights[a.key.Right] = a

	lefts, found := s.rightLeft[a.key.Right]
	if !found {
		lefts = make(map[string]struct{})
		s.rightLeft[a.key.Right] = lefts
	}
	lefts[a.key.Left] = struct{}{}
}

// removeLocked drops the edge and returns it (nil if not cached).
func (s *AssociationStore) removeLocked(key AssociationKey) *Association {
	a, found := s.edges[key.Left][key.Right]
	if !found {
		return nil
	}

	delete(s.edges[key.Left], key.Right)
	if len(s.edges[key.Left]) == 0 {
		delete(s.edges, key.Left)
	}
	delete(s.rightLeft[key.Right], key.Left)
	if len(s.rightLeft[key.Right]) == 0 {
		delete(s.rightLeft, key.Right)
	}

	return a
}

// reinstateLocked puts back a removed edge unless it got cached again meanwhile.
func (s *AssociationStore) reinstateLocked(a *Association) {
	if _, found := s.edges[a.key.Left][a.key.Right]; found {
		return
	}
	s.insertLocked(a)
}

// liveEdges returns the request data getter: the edges still cached.
func (s *AssociationStore) liveEdges(keys []AssociationKey) func() []*Association {
	return func() []*Association {
		s.mu.RLock()
		defer s.mu.RUnlock()

		list := make([]*Association, 0, len(keys))
		for _, key := range keys {
			if a, found := s.edges[key.Left][key.Right]; found {
				list = append(list, a)
			}
		}
		return list
	}
}

func compareKeys(a, b AssociationKey) int {
	switch {
	case a.Left < b.Left:
		return -1
	case a.Left > b.Left:
		return 1
	case a.Right < b.Right:
		return -1
	case a.Right > b.Right:
		return 1
	}

	return 0
}

// NewAssociationStore creates a new AssociationStore object.
func NewAssociationStore(cfg AssociationStoreConfig) (*AssociationStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &AssociationStore{
		name:      cfg.Name,
		env:       cfg.Env,
		monitor:   cfg.Monitor,
		edges:     make(map[string]map[string]*Association),
		rightLeft: make(map[string]map[string]struct{}),
		requests:  make(map[AssociationOpKind]*request.Map[AssociationKey], len(AssociationOpKinds)),
	}
	for _, kind := range AssociationOpKinds {
		s.requests[kind] = &request.Map[AssociationKey]{}
	}

	if cfg.Scope != nil {
		s.cancelScope = cfg.Scope.Subscribe(func(old, new interface{}) {
			glog.V(1).Infof("[%s] scope changed: %v -> %v", s.name, old, new)
			s.Invalidate()
		})
	}

	return s, nil
}
