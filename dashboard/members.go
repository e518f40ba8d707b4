package dashboard

import (
	"context"
	"fmt"
	"sync"

	"github.com/itiky/resource-sync/model"
	"github.com/itiky/resource-sync/request"
	"github.com/itiky/resource-sync/scope"
	"github.com/itiky/resource-sync/storage"
)

type (
	// Members keeps the selected app members: user profiles alongside the app-user edges with the role metadata.
	Members struct {
		app   *scope.Scope
		api   MembersApi
		users *storage.Store[model.Member, model.AppQuery]
		edges *storage.AssociationStore
	}

	// roleRecorder collects member roles of a fetch response (edges are linked without metadata).
	roleRecorder struct {
		api   MembersApi
		mu    sync.Mutex
		roles map[string]model.Role
	}
)

// Users returns the user profiles cache.
func (m *Members) Users() *storage.Store[model.Member, model.AppQuery] {
	return m.users
}

// Edges returns the memberships cache.
func (m *Members) Edges() *storage.AssociationStore {
	return m.edges
}

// List returns cached members of the selected app.
func (m *Members) List() []*storage.Model {
	app := currentApp(m.app)

	list := make([]*storage.Model, 0)
	for _, user := range m.edges.RightKeys(app) {
		if u, found := m.users.Get(user); found {
			list = append(list, u)
		}
	}

	return list
}

// Role returns the user role within the selected app.
func (m *Members) Role(user string) (model.Role, bool) {
	a, found := m.edges.Get(currentApp(m.app), user)
	if !found {
		return "", false
	}
	role, _ := a.Get(FieldRole)
	str, _ := role.(string)

	return model.Role(str), true
}

// Fetch fetches the selected app members.
func (m *Members) Fetch(ctx context.Context) *request.Request[[]*storage.Model] {
	app := currentApp(m.app)
	rec := &roleRecorder{api: m.api, roles: make(map[string]model.Role)}

	r := m.users.FetchForManyToMany(ctx, rec, m.edges, app, model.AppQuery{App: app})
	r.OnSuccess(func([]*storage.Model) {
		for user, role := range rec.snapshot() {
			if m.edges.Contains(app, user) {
				m.edges.Add(app, user, storage.Fields{FieldRole: string(role)})
			}
		}
	})

	return r
}

// Invite adds users to the selected app optimistically (the server grants the default role).
func (m *Members) Invite(ctx context.Context, users ...string) *request.Request[[]*storage.Association] {
	return m.edges.AssociateMany(ctx, m.api, m.keys(users), true)
}

// Remove removes users from the selected app optimistically.
func (m *Members) Remove(ctx context.Context, users ...string) *request.Request[[]*storage.Association] {
	return m.edges.DisassociateMany(ctx, m.api, m.keys(users), true)
}

// ChangeRole updates the user role optimistically.
func (m *Members) ChangeRole(ctx context.Context, user string, role model.Role) *request.Request[[]*storage.Association] {
	if _, err := model.ParseRole(string(role)); err != nil {
		return request.Settled(func() []*storage.Association { return nil }, err)
	}

	app := currentApp(m.app)
	if !m.edges.Contains(app, user) {
		return request.Settled(func() []*storage.Association { return nil }, fmt.Errorf("member (%s): %w", user, storage.ErrNotTracked))
	}

	return m.edges.UpdateAssociation(ctx, m.api, app, user, storage.Fields{FieldRole: string(role)}, true)
}

func (m *Members) keys(users []string) []storage.AssociationKey {
	app := currentApp(m.app)

	keys := make([]storage.AssociationKey, 0, len(users))
	for _, user := range users {
		keys = append(keys, storage.AssociationKey{Left: app, Right: user})
	}

	return keys
}

// GetAssociated implements the storage.AssociatedGetter interface.
func (r *roleRecorder) GetAssociated(ctx context.Context, app string, query model.AppQuery) ([]model.Member, error) {
	list, err := r.api.GetAssociated(ctx, app, query)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, member := range list {
		r.roles[member.UserId] = member.Role
	}

	return list, nil
}

func (r *roleRecorder) snapshot() map[string]model.Role {
	r.mu.Lock()
	defer r.mu.Unlock()

	roles := make(map[string]model.Role, len(r.roles))
	for user, role := range r.roles {
		roles[user] = role
	}

	return roles
}

func newMembers(cfg Config) (*Members, error) {
	users, err := storage.NewStore(storage.StoreConfig[model.Member, model.AppQuery]{
		Name:       "users",
		Env:        cfg.Env,
		Serializer: memberSerializer{},
		Scope:      cfg.App,
		Monitor:    cfg.Monitor,
	})
	if err != nil {
		return nil, err
	}

	edges, err := storage.NewAssociationStore(storage.AssociationStoreConfig{
		Name:    "members",
		Env:     cfg.Env,
		Scope:   cfg.App,
		Monitor: cfg.Monitor,
	})
	if err != nil {
		return nil, err
	}

	return &Members{
		app:   cfg.App,
		api:   cfg.Api.Members,
		users: users,
		edges: edges,
	}, nil
}
