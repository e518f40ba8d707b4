package storage

import (
	"context"
	"fmt"

	"github.com/itiky/resource-sync/internal/assert"
	"github.com/itiky/resource-sync/request"
)

// Create posts a new resource.
// Optimistic: the Model is cached immediately and removed if the call fails.
// Pessimistic: the Model is cached on success only.
// On success the deserialized response is merged onto the same Model instance.
// The request is tracked under the Model ClientId.
func (s *Store[S, Q]) Create(ctx context.Context, api Poster[S], m *Model, optimistic bool, query Q) *request.Request[*Model] {
	gen, start := s.issue()
	key := m.ClientId().String()
	payload := m.Snapshot()

	if optimistic {
		s.Add(m)
	}

	r := request.New(ctx, s.env,
		func(ctx context.Context) (S, error) {
			return api.PostResource(ctx, payload)
		},
		s.liveModel(m),
		func(res S, err error) {
			s.served(OpCreate, key, start, err)

			s.mu.Lock()
			defer s.mu.Unlock()

			if !s.currentLocked(gen, OpCreate, key) {
				return
			}
			if err != nil {
				if optimistic {
					s.removeLocked(m)
				}
				return
			}
			s.adoptLocked(m, res, query)
		},
	)
	s.track(OpCreate, key, gen, r)

	return r
}

// CreateMany posts new resources in one call. See Create.
// Responses are matched to the Models by position.
func (s *Store[S, Q]) CreateMany(ctx context.Context, api BatchPoster[S], ms []*Model, optimistic bool, query Q) *request.Request[[]*Model] {
	gen, start := s.issue()
	payload := make([]Fields, 0, len(ms))
	for _, m := range ms {
		payload = append(payload, m.Snapshot())
	}

	if optimistic {
		s.addAll(ms)
	}

	r := request.New(ctx, s.env,
		func(ctx context.Context) ([]S, error) {
			return api.PostResources(ctx, payload)
		},
		s.liveModels(ms),
		func(res []S, err error) {
			s.served(OpCreate, fmt.Sprintf("%d models", len(ms)), start, err)

			s.mu.Lock()
			defer s.mu.Unlock()

			if !s.currentLocked(gen, OpCreate, "batch") {
				return
			}
			for i, m := range ms {
				switch {
				case err != nil:
					if optimistic {
						s.removeLocked(m)
					}
				case i < len(res):
					s.adoptLocked(m, res[i], query)
				default:
					// No response for the Model: the server did not create it
					s.removeLocked(m)
				}
			}
		},
	)
	for _, m := range ms {
		s.track(OpCreate, m.ClientId().String(), gen, r)
	}

	return r
}

// Update patches a cached resource.
// Optimistic: changes are applied immediately and reverted to the pre-call fields if the call fails.
// Pessimistic: changes are applied on success only.
// While the call is in flight the Model must not be written by anything but the Store.
// The request is tracked under KeyOf(OpUpdate, m).
func (s *Store[S, Q]) Update(ctx context.Context, api Patcher[S], m *Model, changes Fields, optimistic bool, query Q) *request.Request[*Model] {
	gen, start := s.issue()
	key := s.KeyOf(OpUpdate, m)

	if !s.Contains(m) {
		assert.Invariant(false, "%s: update: model %s is not cached", s.name, key)
		r := request.Settled(s.liveModel(m), fmt.Errorf("update (%s): %w", key, ErrNotTracked))
		s.track(OpUpdate, key, gen, r)
		return r
	}

	id := m.Id()
	changes = changes.Clone()
	preImage := m.Snapshot()
	m.freeze()
	if optimistic {
		s.mu.Lock()
		s.patchLocked(m, changes)
		s.mu.Unlock()
	}

	r := request.New(ctx, s.env,
		func(ctx context.Context) (S, error) {
			return api.PatchResource(ctx, id, changes.Clone())
		},
		s.liveModel(m),
		func(res S, err error) {
			m.unfreeze()
			s.served(OpUpdate, key, start, err)

			s.mu.Lock()
			defer s.mu.Unlock()

			if !s.currentLocked(gen, OpUpdate, key) {
				return
			}
			if err != nil {
				if optimistic {
					oldId := m.Id()
					m.revertChanges(preImage, changes)
					s.reindexLocked(m, oldId)
				}
				return
			}
			if !optimistic {
				s.patchLocked(m, changes)
			}
			s.refreshLocked(m, res, query)
		},
	)
	s.track(OpUpdate, key, gen, r)

	return r
}

// UpdateMany patches several cached resources with the same changes in one call. See Update.
// Responses are matched to the Models by server id. Models the Store does not cache are skipped.
func (s *Store[S, Q]) UpdateMany(ctx context.Context, api BatchPatcher[S], ms []*Model, changes Fields, optimistic bool, query Q) *request.Request[[]*Model] {
	gen, start := s.issue()
	changes = changes.Clone()

	tracked := make([]*Model, 0, len(ms))
	for _, m := range ms {
		if !s.Contains(m) {
			assert.Invariant(false, "%s: update: model %s is not cached", s.name, s.KeyOf(OpUpdate, m))
			continue
		}
		tracked = append(tracked, m)
	}
	if len(tracked) == 0 {
		return request.Settled(s.liveModels(ms), fmt.Errorf("update: %w", ErrNotTracked))
	}

	ids := make([]string, 0, len(tracked))
	preImages := make([]Fields, 0, len(tracked))
	s.mu.Lock()
	for _, m := range tracked {
		ids = append(ids, m.Id())
		preImages = append(preImages, m.Snapshot())
		m.freeze()
		if optimistic {
			s.patchLocked(m, changes)
		}
	}
	s.mu.Unlock()

	r := request.New(ctx, s.env,
		func(ctx context.Context) ([]S, error) {
			return api.PatchResources(ctx, ids, changes.Clone())
		},
		s.liveModels(tracked),
		func(res []S, err error) {
			for _, m := range tracked {
				m.unfreeze()
			}
			s.served(OpUpdate, fmt.Sprintf("%d models", len(tracked)), start, err)

			s.mu.Lock()
			defer s.mu.Unlock()

			if !s.currentLocked(gen, OpUpdate, "batch") {
				return
			}
			if err != nil {
				if optimistic {
					for i, m := range tracked {
						oldId := m.Id()
						m.revertChanges(preImages[i], changes)
						s.reindexLocked(m, oldId)
					}
				}
				return
			}

			resById := make(map[string]S, len(res))
			for _, item := range res {
				resById[s.serializer.IdFromResponse(item)] = item
			}
			for i, m := range tracked {
				if !optimistic {
					s.patchLocked(m, changes)
				}
				if item, found := resById[ids[i]]; found {
					s.refreshLocked(m, item, query)
				}
			}
		},
	)
	for _, m := range tracked {
		s.track(OpUpdate, s.KeyOf(OpUpdate, m), gen, r)
	}

	return r
}

// Delete deletes a cached resource.
// Optimistic: the Model is removed immediately and reinstated at its former position if the call fails.
// Pessimistic: the Model is removed on success only.
// The request is tracked under the id.
func (s *Store[S, Q]) Delete(ctx context.Context, api Deleter, id string, optimistic bool) *request.Request[*Model] {
	gen, start := s.issue()

	s.mu.Lock()
	m := s.lookupLocked(id)
	if m == nil {
		s.mu.Unlock()
		assert.Invariant(false, "%s: delete: id %s is not cached", s.name, id)
		r := request.Settled[*Model](nil, fmt.Errorf("delete (%s): %w", id, ErrNotTracked))
		s.track(OpDelete, id, gen, r)
		return r
	}
	idx := -1
	if optimistic {
		idx = s.removeLocked(m)
	}
	s.mu.Unlock()

	r := request.New(ctx, s.env,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, api.DeleteResource(ctx, id)
		},
		func() *Model { return m },
		func(_ struct{}, err error) {
			s.served(OpDelete, id, start, err)

			s.mu.Lock()
			defer s.mu.Unlock()

			if !s.currentLocked(gen, OpDelete, id) {
				return
			}
			if err != nil {
				if optimistic {
					s.reinstateLocked(m, idx)
				}
				return
			}
			s.removeLocked(m)
		},
	)
	s.track(OpDelete, id, gen, r)

	return r
}

// DeleteMany deletes several cached resources in one call. See Delete.
// Ids the Store does not cache are skipped.
func (s *Store[S, Q]) DeleteMany(ctx context.Context, api BatchDeleter, ids []string, optimistic bool) *request.Request[[]*Model] {
	gen, start := s.issue()

	s.mu.Lock()
	var (
		trackedIds = make([]string, 0, len(ids))
		missingIds = make([]string, 0)
		ms         = make([]*Model, 0, len(ids))
		idxs       = make([]int, 0, len(ids))
	)
	for _, id := range ids {
		m := s.lookupLocked(id)
		if m == nil {
			missingIds = append(missingIds, id)
			continue
		}
		trackedIds = append(trackedIds, id)
		ms = append(ms, m)
	}
	if optimistic {
		for _, m := range ms {
			idxs = append(idxs, s.removeLocked(m))
		}
	}
	s.mu.Unlock()

	assert.Invariant(len(missingIds) == 0, "%s: delete: ids %v are not cached", s.name, missingIds)

	if len(ms) == 0 {
		return request.Settled[[]*Model](nil, fmt.Errorf("delete: %w", ErrNotTracked))
	}

	r := request.New(ctx, s.env,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, api.DeleteResources(ctx, trackedIds)
		},
		func() []*Model { return ms },
		func(_ struct{}, err error) {
			s.served(OpDelete, fmt.Sprintf("%d models", len(ms)), start, err)

			s.mu.Lock()
			defer s.mu.Unlock()

			if !s.currentLocked(gen, OpDelete, "batch") {
				return
			}
			if err != nil {
				if optimistic {
					// Reverse removal order restores the former positions
					for i := len(ms) - 1; i >= 0; i-- {
						s.reinstateLocked(ms[i], idxs[i])
					}
				}
				return
			}
			for _, m := range ms {
				s.removeLocked(m)
			}
		},
	)
	for _, id := range trackedIds {
		s.track(OpDelete, id, gen, r)
	}

	return r
}

// addAll caches the Models.
func (s *Store[S, Q]) addAll(ms []*Model) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range ms {
		s.addLocked(m)
	}
}

// adoptLocked merges a create response onto the Model and caches it if needed.
func (s *Store[S, Q]) adoptLocked(m *Model, res S, query Q) {
	fields, ok := s.serializer.Deserialize(res, query, "", "")
	if !ok {
		s.removeLocked(m)
		return
	}

	if s.trackedLocked(m) {
		s.patchLocked(m, fields)
		return
	}
	m.applyChanges(fields)
	s.addLocked(m)
}

// refreshLocked merges an update response onto the Model.
func (s *Store[S, Q]) refreshLocked(m *Model, res S, query Q) {
	fields, ok := s.serializer.Deserialize(res, query, "", "")
	if !ok {
		s.removeLocked(m)
		return
	}
	s.patchLocked(m, fields)
}

// reinstateLocked puts back an optimistically removed Model unless its id got cached meanwhile.
func (s *Store[S, Q]) reinstateLocked(m *Model, idx int) {
	if s.trackedLocked(m) || s.lookupLocked(m.Id()) != nil {
		return
	}
	s.insertAtLocked(m, idx)
}

// liveModel returns the request data getter of a single Model: nil once the Model left the cache.
func (s *Store[S, Q]) liveModel(m *Model) func() *Model {
	return func() *Model {
		if !s.Contains(m) {
			return nil
		}
		return m
	}
}

// liveModels returns the request data getter of a Model set: the ones still cached.
func (s *Store[S, Q]) liveModels(ms []*Model) func() []*Model {
	return func() []*Model {
		s.mu.RLock()
		defer s.mu.RUnlock()

		list := make([]*Model, 0, len(ms))
		for _, m := range ms {
			if s.trackedLocked(m) {
				list = append(list, m)
			}
		}
		return list
	}
}
