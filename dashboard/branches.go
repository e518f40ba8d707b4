package dashboard

import (
	"context"

	"github.com/itiky/resource-sync/model"
	"github.com/itiky/resource-sync/request"
	"github.com/itiky/resource-sync/scope"
	"github.com/itiky/resource-sync/storage"
)

// Branches keeps the selected app branches (the branch name is the id).
type Branches struct {
	app   *scope.Scope
	api   BranchesApi
	store *storage.Store[model.Branch, model.AppQuery]
}

// Store returns the underlying cache.
func (b *Branches) Store() *storage.Store[model.Branch, model.AppQuery] {
	return b.store
}

// Names returns cached branch names in the server order.
func (b *Branches) Names() []string {
	list := b.store.Resources()
	names := make([]string, 0, len(list))
	for _, m := range list {
		names = append(names, m.Id())
	}

	return names
}

// FetchBranches fetches the branch list replacing the cached one.
func (b *Branches) FetchBranches(ctx context.Context) *request.Request[[]*storage.Model] {
	return b.store.FetchCollection(ctx, b.api, model.AppQuery{App: currentApp(b.app)}, storage.FetchOptions{
		Mode: storage.PreserveReplace,
	})
}

func newBranches(cfg Config) (*Branches, error) {
	store, err := storage.NewStore(storage.StoreConfig[model.Branch, model.AppQuery]{
		Name:       "branches",
		Env:        cfg.Env,
		Serializer: branchSerializer{},
		Scope:      cfg.App,
		Monitor:    cfg.Monitor,
	})
	if err != nil {
		return nil, err
	}

	return &Branches{
		app:   cfg.App,
		api:   cfg.Api.Branches,
		store: store,
	}, nil
}
