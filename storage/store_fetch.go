package storage

import (
	"context"
	"fmt"

	"github.com/itiky/resource-sync/request"
)

// FetchOne fetches a single resource.
// An already cached Model is patched in place, so every holder of the *Model observes the update.
// A resource the deserializer drops is removed from the cache.
func (s *Store[S, Q]) FetchOne(ctx context.Context, api Getter[S, Q], id string, query Q) *request.Request[*Model] {
	gen, start := s.issue()

	r := request.New(ctx, s.env,
		func(ctx context.Context) (S, error) {
			return api.GetResource(ctx, id, query)
		},
		func() *Model {
			m, _ := s.Get(id)
			return m
		},
		func(res S, err error) {
			s.served(OpFetchOne, id, start, err)
			if err != nil {
				return
			}

			s.mu.Lock()
			defer s.mu.Unlock()

			if !s.currentLocked(gen, OpFetchOne, id) {
				return
			}

			fields, ok := s.serializer.Deserialize(res, query, "", "")
			if !ok {
				if m := s.lookupLocked(id); m != nil {
					s.removeLocked(m)
				}
				return
			}
			s.mergeLocked(fields)
		},
	)
	s.track(OpFetchOne, id, gen, r)

	return r
}

// FetchCollection fetches a resource collection and reconciles it with the cache using opts.Mode.
// The request is tracked under CollectionKey(query).
func (s *Store[S, Q]) FetchCollection(ctx context.Context, api CollectionGetter[S, Q], query Q, opts FetchOptions) *request.Request[[]*Model] {
	gen, start := s.issue()
	key := CollectionKey(query)

	var clientIds []ClientId
	r := request.New(ctx, s.env,
		func(ctx context.Context) ([]S, error) {
			return api.GetCollection(ctx, query)
		},
		func() []*Model {
			s.mu.RLock()
			defer s.mu.RUnlock()

			return s.modelsLocked(clientIds)
		},
		func(res []S, err error) {
			s.served(OpFetchCollection, key, start, err)
			if err != nil {
				return
			}

			s.mu.Lock()
			defer s.mu.Unlock()

			if !s.currentLocked(gen, OpFetchCollection, key) {
				return
			}

			incoming := make([]Fields, 0, len(res))
			for _, item := range res {
				if fields, ok := s.serializer.Deserialize(item, query, "", ""); ok {
					incoming = append(incoming, fields)
				}
			}
			clientIds = s.reconcileLocked(incoming, opts)
		},
	)
	s.track(OpFetchCollection, key, gen, r)

	return r
}

// FetchForRelationship fetches the resources whose foreignKey field equals foreignKeyValue (one-to-many).
// Incoming resources are patched or inserted with the foreign key set,
// cached resources of the relationship absent from the response get the foreign key field cleared.
// The request is tracked under foreignKeyValue.
func (s *Store[S, Q]) FetchForRelationship(ctx context.Context, api RelationshipGetter[S, Q], foreignKey, foreignKeyValue string, query Q) *request.Request[[]*Model] {
	gen, start := s.issue()
	inRelationship := func(m *Model) bool {
		v, found := m.Get(foreignKey)
		return found && v != nil && fmt.Sprint(v) == foreignKeyValue
	}

	r := request.New(ctx, s.env,
		func(ctx context.Context) ([]S, error) {
			return api.GetRelated(ctx, foreignKey, foreignKeyValue, query)
		},
		func() []*Model {
			return s.Filter(inRelationship)
		},
		func(res []S, err error) {
			s.served(OpFetchRelationship, foreignKeyValue, start, err)
			if err != nil {
				return
			}

			s.mu.Lock()
			defer s.mu.Unlock()

			if !s.currentLocked(gen, OpFetchRelationship, foreignKeyValue) {
				return
			}

			seen := make(map[ClientId]bool, len(res))
			for _, item := range res {
				fields, ok := s.serializer.Deserialize(item, query, foreignKey, foreignKeyValue)
				if !ok {
					continue
				}
				fields[foreignKey] = foreignKeyValue
				seen[s.mergeLocked(fields).clientId] = true
			}

			for _, m := range s.list {
				if !seen[m.clientId] && m.Id() != "" && inRelationship(m) {
					m.clearField(foreignKey)
				}
			}
		},
	)
	s.track(OpFetchRelationship, foreignKeyValue, gen, r)

	return r
}

// FetchForManyToMany fetches the resources associated with leftKey.
// Incoming resources are patched or inserted, the edges set is reconciled to exactly the response:
// missing edges are linked, edges to resources absent from the response are unlinked.
// The request is tracked under leftKey.
func (s *Store[S, Q]) FetchForManyToMany(ctx context.Context, api AssociatedGetter[S, Q], edges Edges, leftKey string, query Q) *request.Request[[]*Model] {
	gen, start := s.issue()

	r := request.New(ctx, s.env,
		func(ctx context.Context) ([]S, error) {
			return api.GetAssociated(ctx, leftKey, query)
		},
		func() []*Model {
			list := make([]*Model, 0)
			for _, rightKey := range edges.RightKeys(leftKey) {
				if m, found := s.Get(rightKey); found {
					list = append(list, m)
				}
			}
			return list
		},
		func(res []S, err error) {
			s.served(OpFetchRelationship, leftKey, start, err)
			if err != nil {
				return
			}

			s.mu.Lock()
			if !s.currentLocked(gen, OpFetchRelationship, leftKey) {
				s.mu.Unlock()
				return
			}
			seen := make(map[string]bool, len(res))
			for _, item := range res {
				fields, ok := s.serializer.Deserialize(item, query, "", "")
				if !ok {
					continue
				}
				if id := s.mergeLocked(fields).Id(); id != "" {
					seen[id] = true
				}
			}
			s.mu.Unlock()

			for rightKey := range seen {
				if !edges.Contains(leftKey, rightKey) {
					edges.Link(leftKey, rightKey)
				}
			}
			for _, rightKey := range edges.RightKeys(leftKey) {
				if !seen[rightKey] {
					edges.Unlink(leftKey, rightKey)
				}
			}
		},
	)
	s.track(OpFetchRelationship, leftKey, gen, r)

	return r
}

// CollectionKey returns the request registry key of a collection query.
func CollectionKey(query interface{}) string {
	if k, ok := query.(fmt.Stringer); ok {
		return k.String()
	}

	return fmt.Sprintf("%+v", query)
}
