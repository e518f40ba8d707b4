package dashboard

import (
	"context"
	"fmt"

	"github.com/golang/glog"

	"github.com/itiky/resource-sync/internal/bg"
	"github.com/itiky/resource-sync/model"
	"github.com/itiky/resource-sync/request"
	"github.com/itiky/resource-sync/scope"
	"github.com/itiky/resource-sync/storage"
)

type (
	// BuildsApi is the builds network layer.
	BuildsApi interface {
		storage.Getter[model.Build, model.BuildQuery]
		storage.CollectionGetter[model.Build, model.BuildQuery]
		storage.RelationshipGetter[model.Build, model.BuildQuery]
		storage.Poster[model.Build]
		storage.BatchPoster[model.Build]
		storage.Patcher[model.Build]
		storage.BatchPatcher[model.Build]
		storage.Deleter
		storage.BatchDeleter
	}

	// BranchesApi is the branches network layer.
	BranchesApi interface {
		storage.CollectionGetter[model.Branch, model.AppQuery]
	}

	// MembersApi is the app memberships network layer (left key: app id, right key: user id).
	MembersApi interface {
		storage.AssociatedGetter[model.Member, model.AppQuery]
		storage.Associator
		storage.Disassociator
		storage.AssociationPatcher
	}

	// PlansApi is the billing network layer.
	PlansApi interface {
		storage.Fetcher[model.Plan, string]
	}

	// Api bundles the network layers.
	Api struct {
		Builds   BuildsApi
		Branches BranchesApi
		Members  MembersApi
		Plans    PlansApi
	}

	// Config describes the necessary fields for New.
	Config struct {
		Env bg.Env
		// Selected app id
		App *scope.Scope
		Api Api
		// Optional
		Monitor *storage.Monitor
	}

	// Dashboard is the CI dashboard client state: every store is scoped to the selected app.
	Dashboard struct {
		app *scope.Scope
		//
		Builds   *Builds
		Branches *Branches
		Members  *Members
		Billing  *Billing
	}
)

// Validate ensures all the necessary values are specified.
func (c Config) Validate() error {
	if err := c.Env.Validate(); err != nil {
		return fmt.Errorf("%s: %w", "Env", err)
	}
	if c.App == nil {
		return fmt.Errorf("%s: nil", "App")
	}
	if _, ok := c.App.Value().(string); !ok {
		return fmt.Errorf("%s: value must be a string", "App")
	}
	if c.Api.Builds == nil {
		return fmt.Errorf("%s: nil", "Api.Builds")
	}
	if c.Api.Branches == nil {
		return fmt.Errorf("%s: nil", "Api.Branches")
	}
	if c.Api.Members == nil {
		return fmt.Errorf("%s: nil", "Api.Members")
	}
	if c.Api.Plans == nil {
		return fmt.Errorf("%s: nil", "Api.Plans")
	}

	return nil
}

// App returns the selected app id.
func (d *Dashboard) App() string {
	return currentApp(d.app)
}

// SelectApp switches the dashboard to another app clearing every store.
func (d *Dashboard) SelectApp(app string) {
	glog.Infof("Dashboard: app selected: %s", app)
	d.app.Set(app)
}

// Refresh reloads builds and branches of the selected app.
func (d *Dashboard) Refresh(ctx context.Context, mode storage.FetchMode) *request.Group[[]*storage.Model] {
	return request.All(
		d.Builds.FetchBuilds(ctx, model.BuildQuery{}, mode),
		d.Branches.FetchBranches(ctx),
		d.Members.Fetch(ctx),
	)
}

// Close detaches every store from the app scope.
func (d *Dashboard) Close() {
	d.Builds.store.Close()
	d.Branches.store.Close()
	d.Members.users.Close()
	d.Members.edges.Close()
	d.Billing.store.Close()
}

// New creates a new Dashboard object.
func New(cfg Config) (*Dashboard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	builds, err := newBuilds(cfg)
	if err != nil {
		return nil, fmt.Errorf("builds: %w", err)
	}
	branches, err := newBranches(cfg)
	if err != nil {
		return nil, fmt.Errorf("branches: %w", err)
	}
	members, err := newMembers(cfg)
	if err != nil {
		return nil, fmt.Errorf("members: %w", err)
	}
	billing, err := newBilling(cfg)
	if err != nil {
		return nil, fmt.Errorf("billing: %w", err)
	}

	return &Dashboard{
		app:      cfg.App,
		Builds:   builds,
		Branches: branches,
		Members:  members,
		Billing:  billing,
	}, nil
}

func currentApp(sc *scope.Scope) string {
	app, _ := sc.Value().(string)
	return app
}
