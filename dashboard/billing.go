package dashboard

import (
	"context"

	"github.com/itiky/resource-sync/model"
	"github.com/itiky/resource-sync/request"
	"github.com/itiky/resource-sync/scope"
	"github.com/itiky/resource-sync/storage"
)

// Billing keeps the selected app plan.
type Billing struct {
	app   *scope.Scope
	api   PlansApi
	store *storage.FetchStore[model.Plan, string, model.Plan]
}

// Plan returns the cached plan.
func (b *Billing) Plan() (model.Plan, bool) {
	return b.store.Value()
}

// Store returns the underlying cache.
func (b *Billing) Store() *storage.FetchStore[model.Plan, string, model.Plan] {
	return b.store
}

// FetchPlan fetches the selected app plan.
// Optimistic keeps the stale plan visible during the refetch.
func (b *Billing) FetchPlan(ctx context.Context, optimistic bool) *request.Request[model.Plan] {
	return b.store.Fetch(ctx, b.api, currentApp(b.app), optimistic)
}

func newBilling(cfg Config) (*Billing, error) {
	store, err := storage.NewFetchStore(storage.FetchStoreConfig[model.Plan, string, model.Plan]{
		Name: "plan",
		Env:  cfg.Env,
		// Apps without a plan have nothing to show
		Deserialize: func(res model.Plan, app string) (model.Plan, bool) {
			return res, res.Name != ""
		},
		Scope:   cfg.App,
		Monitor: cfg.Monitor,
	})
	if err != nil {
		return nil, err
	}

	return &Billing{
		app:   cfg.App,
		api:   cfg.Api.Plans,
		store: store,
	}, nil
}
