package dashboard

import (
	"context"
	"fmt"
	"sort"

	"github.com/itiky/resource-sync/model"
	"github.com/itiky/resource-sync/request"
	"github.com/itiky/resource-sync/scope"
	"github.com/itiky/resource-sync/storage"
)

// Builds keeps the selected app builds.
type Builds struct {
	app   *scope.Scope
	api   BuildsApi
	store *storage.Store[model.Build, model.BuildQuery]
}

// Store returns the underlying cache.
func (b *Builds) Store() *storage.Store[model.Build, model.BuildQuery] {
	return b.store
}

// Get returns a cached build.
func (b *Builds) Get(id string) (*storage.Model, bool) {
	return b.store.Get(id)
}

// List returns cached builds sorted by number (latest first), optionally limited to a branch.
func (b *Builds) List(branch string) []*storage.Model {
	list := b.store.Filter(branchFilter(branch))
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Int(FieldNumber) > list[j].Int(FieldNumber)
	})

	return list
}

// Running returns cached builds which are not final yet.
func (b *Builds) Running() []*storage.Model {
	return b.store.Filter(func(m *storage.Model) bool {
		return !model.BuildStatus(m.String(FieldStatus)).IsFinal()
	})
}

// FetchBuild fetches a single build.
func (b *Builds) FetchBuild(ctx context.Context, id string) *request.Request[*storage.Model] {
	return b.store.FetchOne(ctx, b.api, id, b.query())
}

// FetchBuilds fetches the build list.
// Reconciliation is limited to the query branch: other branches builds stay cached.
func (b *Builds) FetchBuilds(ctx context.Context, query model.BuildQuery, mode storage.FetchMode) *request.Request[[]*storage.Model] {
	query.App = currentApp(b.app)

	return b.store.FetchCollection(ctx, b.api, query, storage.FetchOptions{
		Mode:          mode,
		SegmentFilter: querySegment(query),
	})
}

// FetchBranchBuilds fetches every build of the branch (one-to-many through the "branch" field).
func (b *Builds) FetchBranchBuilds(ctx context.Context, branch string) *request.Request[[]*storage.Model] {
	return b.store.FetchForRelationship(ctx, b.api, FieldBranch, branch, b.query())
}

// Trigger queues a new build optimistically.
func (b *Builds) Trigger(ctx context.Context, branch, commitMessage string) *request.Request[*storage.Model] {
	return b.store.Create(ctx, b.api, newBuildModel(currentApp(b.app), branch, commitMessage), true, b.query())
}

// TriggerMany queues builds of several branches in one call.
func (b *Builds) TriggerMany(ctx context.Context, commitMessage string, branches ...string) *request.Request[[]*storage.Model] {
	app := currentApp(b.app)
	ms := make([]*storage.Model, 0, len(branches))
	for _, branch := range branches {
		ms = append(ms, newBuildModel(app, branch, commitMessage))
	}

	return b.store.CreateMany(ctx, b.api, ms, true, b.query())
}

// Abort aborts a running build optimistically.
func (b *Builds) Abort(ctx context.Context, id string) *request.Request[*storage.Model] {
	m, found := b.store.Get(id)
	if !found {
		return request.Settled(func() *storage.Model { return nil }, fmt.Errorf("build (%s): %w", id, storage.ErrNotTracked))
	}
	if status := model.BuildStatus(m.String(FieldStatus)); status.IsFinal() {
		return request.Settled(func() *storage.Model { return m }, fmt.Errorf("build (%s): status (%s): final", id, status))
	}

	return b.store.Update(ctx, b.api, m, storage.Fields{FieldStatus: string(model.BuildAborted)}, true, b.query())
}

// AbortBranch aborts every running build of the branch.
func (b *Builds) AbortBranch(ctx context.Context, branch string) *request.Request[[]*storage.Model] {
	filter := branchFilter(branch)
	ms := b.store.Filter(func(m *storage.Model) bool {
		return filter(m) && !model.BuildStatus(m.String(FieldStatus)).IsFinal()
	})

	return b.store.UpdateMany(ctx, b.api, ms, storage.Fields{FieldStatus: string(model.BuildAborted)}, true, b.query())
}

// Delete deletes a build optimistically.
func (b *Builds) Delete(ctx context.Context, id string) *request.Request[*storage.Model] {
	if !b.store.Has(id) {
		return request.Settled(func() *storage.Model { return nil }, fmt.Errorf("build (%s): %w", id, storage.ErrNotTracked))
	}

	return b.store.Delete(ctx, b.api, id, true)
}

// DeleteFinished deletes every final build of the branch.
func (b *Builds) DeleteFinished(ctx context.Context, branch string) *request.Request[[]*storage.Model] {
	filter := branchFilter(branch)
	ids := make([]string, 0)
	for _, m := range b.store.Filter(filter) {
		if model.BuildStatus(m.String(FieldStatus)).IsFinal() {
			ids = append(ids, m.Id())
		}
	}

	return b.store.DeleteMany(ctx, b.api, ids, true)
}

func (b *Builds) query() model.BuildQuery {
	return model.BuildQuery{App: currentApp(b.app)}
}

func newBuildModel(app, branch, commitMessage string) *storage.Model {
	return storage.NewModel(storage.Fields{
		FieldAppId:         app,
		FieldBranch:        branch,
		FieldStatus:        string(model.BuildQueued),
		FieldCommitMessage: commitMessage,
	})
}

func branchFilter(branch string) func(m *storage.Model) bool {
	return func(m *storage.Model) bool {
		return branch == "" || m.String(FieldBranch) == branch
	}
}

// querySegment returns the SegmentFilter for a collection query (nil: the whole Store).
func querySegment(query model.BuildQuery) func(m *storage.Model) bool {
	if query.Branch == "" && query.Status == "" {
		return nil
	}

	return func(m *storage.Model) bool {
		if query.Branch != "" && m.String(FieldBranch) != query.Branch {
			return false
		}
		if query.Status != "" && m.String(FieldStatus) != string(query.Status) {
			return false
		}
		return true
	}
}

func newBuilds(cfg Config) (*Builds, error) {
	store, err := storage.NewStore(storage.StoreConfig[model.Build, model.BuildQuery]{
		Name:       "builds",
		Env:        cfg.Env,
		Serializer: buildSerializer{},
		Scope:      cfg.App,
		Monitor:    cfg.Monitor,
	})
	if err != nil {
		return nil, err
	}

	return &Builds{
		app:   cfg.App,
		api:   cfg.Api.Builds,
		store: store,
	}, nil
}
