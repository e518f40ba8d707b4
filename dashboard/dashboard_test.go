package dashboard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/itiky/resource-sync/internal/bg"
	"github.com/itiky/resource-sync/model"
	"github.com/itiky/resource-sync/scope"
	"github.com/itiky/resource-sync/storage"
)

func buildIds(list []*storage.Model) []string {
	ids := make([]string, 0, len(list))
	for _, m := range list {
		ids = append(ids, m.Id())
	}

	return ids
}

func Test_Dashboard_Config(t *testing.T) {
	ci := newFakeCI()
	env := bg.Env{Calls: bg.Sync{}, Settle: &bg.Queue{}}

	_, err := New(Config{Env: env, Api: ci.api()})
	require.Error(t, err)

	_, err = New(Config{Env: env, App: scope.NewScope(1), Api: ci.api()})
	require.Error(t, err)

	api := ci.api()
	api.Plans = nil
	_, err = New(Config{Env: env, App: scope.NewScope("web"), Api: api})
	require.Error(t, err)

	_, err = New(Config{App: scope.NewScope("web"), Api: ci.api()})
	require.Error(t, err)

	d, err := New(Config{Env: env, App: scope.NewScope("web"), Api: ci.api()})
	require.NoError(t, err)
	require.Equal(t, "web", d.App())
}

func Test_Builds_FetchBuilds(t *testing.T) {
	d := newTestDashboard(t)
	ctx := context.Background()
	main1 := d.ci.addBuild("web", "main", model.BuildSucceeded)
	main2 := d.ci.addBuild("web", "main", model.BuildBuilding)
	dev1 := d.ci.addBuild("web", "dev", model.BuildQueued)
	d.ci.addBuild("api", "main", model.BuildQueued)

	r := d.Builds.FetchBuilds(ctx, model.BuildQuery{}, storage.PreserveReplace)
	d.queue.Drain()
	require.True(t, r.IsLoaded())
	require.Equal(t, []string{main1.Id, main2.Id, dev1.Id}, buildIds(r.Data()))
	require.Equal(t, []string{main2.Id, main1.Id}, buildIds(d.Builds.List("main")))
	require.Len(t, d.Builds.Running(), 2)

	held, _ := d.Builds.Get(main2.Id)

	// A main-only refetch prunes within the main segment only
	delete(d.ci.builds, main1.Id)
	delete(d.ci.builds, dev1.Id)
	main2.Status = model.BuildSucceeded
	d.ci.builds[main2.Id] = main2

	d.Builds.FetchBuilds(ctx, model.BuildQuery{Branch: "main"}, storage.PreserveReplace)
	d.queue.Drain()
	require.Equal(t, []string{main2.Id, dev1.Id}, buildIds(d.Builds.Store().Resources()))
	require.Equal(t, string(model.BuildSucceeded), held.String(FieldStatus))
	require.True(t, d.Builds.Store().IsLoaded(storage.OpFetchCollection, "web?branch=main"))
}

func Test_Builds_FetchBuild(t *testing.T) {
	d := newTestDashboard(t)
	ctx := context.Background()
	b := d.ci.addBuild("web", "main", model.BuildQueued)

	r := d.Builds.FetchBuild(ctx, b.Id)
	require.Nil(t, r.Data())
	d.queue.Drain()
	require.Equal(t, b.Id, r.Data().Id())
	require.EqualValues(t, b.Number, r.Data().Int(FieldNumber))

	// Archived builds disappear client-side
	b.Archived = true
	d.ci.builds[b.Id] = b
	d.Builds.FetchBuild(ctx, b.Id)
	d.queue.Drain()
	_, found := d.Builds.Get(b.Id)
	require.False(t, found)

	r = d.Builds.FetchBuild(ctx, "unknown")
	d.queue.Drain()
	require.True(t, r.IsFailed())
}

func Test_Builds_FetchBranchBuilds(t *testing.T) {
	d := newTestDashboard(t)
	ctx := context.Background()
	b1 := d.ci.addBuild("web", "main", model.BuildSucceeded)
	b2 := d.ci.addBuild("web", "main", model.BuildQueued)
	d.ci.addBuild("web", "dev", model.BuildQueued)

	r := d.Builds.FetchBranchBuilds(ctx, "main")
	d.queue.Drain()
	require.ElementsMatch(t, []string{b1.Id, b2.Id}, buildIds(r.Data()))
	require.Equal(t, 2, d.Builds.Store().Len())
	require.True(t, d.Builds.Store().IsLoaded(storage.OpFetchRelationship, "main"))
}

func Test_Builds_Trigger(t *testing.T) {
	d := newTestDashboard(t)
	ctx := context.Background()

	r := d.Builds.Trigger(ctx, "main", "fix: flaky test")
	m := r.Data()
	require.NotNil(t, m)
	require.Empty(t, m.Id())
	require.Equal(t, 1, d.Builds.Store().Len())
	require.True(t, d.Builds.Store().IsPending(storage.OpCreate, m.ClientId().String()))

	d.queue.Drain()
	require.True(t, r.IsLoaded())
	require.NotEmpty(t, m.Id())
	held, found := d.Builds.Get(m.Id())
	require.True(t, found)
	require.Same(t, m, held)
	require.Equal(t, "fix: flaky test", m.String(FieldCommitMessage))

	// Failed optimistic trigger rolls back
	d.ci.err = errUnavailable
	r = d.Builds.Trigger(ctx, "dev", "wip")
	require.Equal(t, 2, d.Builds.Store().Len())
	d.queue.Drain()
	require.True(t, r.IsFailed())
	require.Equal(t, 1, d.Builds.Store().Len())

	d.ci.err = nil
	rm := d.Builds.TriggerMany(ctx, "release", "main", "dev")
	d.queue.Drain()
	require.True(t, rm.IsLoaded())
	require.Len(t, rm.Data(), 2)
	require.Equal(t, 3, d.Builds.Store().Len())
}

func Test_Builds_Abort(t *testing.T) {
	d := newTestDashboard(t)
	ctx := context.Background()
	running := d.ci.addBuild("web", "main", model.BuildBuilding)
	done := d.ci.addBuild("web", "main", model.BuildSucceeded)
	d.Builds.FetchBuilds(ctx, model.BuildQuery{}, storage.PreserveReplace)
	d.queue.Drain()

	m, _ := d.Builds.Get(running.Id)

	// Rolled back on failure
	d.ci.err = errUnavailable
	r := d.Builds.Abort(ctx, running.Id)
	require.Equal(t, string(model.BuildAborted), m.String(FieldStatus))
	d.queue.Drain()
	require.True(t, r.IsFailed())
	require.Equal(t, string(model.BuildBuilding), m.String(FieldStatus))

	d.ci.err = nil
	r = d.Builds.Abort(ctx, running.Id)
	d.queue.Drain()
	require.True(t, r.IsLoaded())
	require.Equal(t, string(model.BuildAborted), m.String(FieldStatus))
	require.NotEmpty(t, m.String(FieldFinishedAt))

	r = d.Builds.Abort(ctx, done.Id)
	require.True(t, r.IsFailed())

	r = d.Builds.Abort(ctx, "unknown")
	require.True(t, r.IsFailed())
	require.ErrorIs(t, r.Err(), storage.ErrNotTracked)
}

func Test_Builds_BranchBatches(t *testing.T) {
	d := newTestDashboard(t)
	ctx := context.Background()
	b1 := d.ci.addBuild("web", "main", model.BuildQueued)
	b2 := d.ci.addBuild("web", "main", model.BuildBuilding)
	b3 := d.ci.addBuild("web", "dev", model.BuildBuilding)
	d.Builds.FetchBuilds(ctx, model.BuildQuery{}, storage.PreserveReplace)
	d.queue.Drain()

	r := d.Builds.AbortBranch(ctx, "main")
	d.queue.Drain()
	require.True(t, r.IsLoaded())
	require.Len(t, r.Data(), 2)
	require.Equal(t, model.BuildAborted, d.ci.builds[b1.Id].Status)
	require.Equal(t, model.BuildAborted, d.ci.builds[b2.Id].Status)
	require.Equal(t, model.BuildBuilding, d.ci.builds[b3.Id].Status)

	r = d.Builds.DeleteFinished(ctx, "main")
	require.Equal(t, []string{b3.Id}, buildIds(d.Builds.Store().Resources()))
	d.queue.Drain()
	require.True(t, r.IsLoaded())
	require.Len(t, d.ci.builds, 1)

	rd := d.Builds.Delete(ctx, b1.Id)
	require.ErrorIs(t, rd.Err(), storage.ErrNotTracked)

	d.ci.err = errUnavailable
	rd = d.Builds.Delete(ctx, b3.Id)
	require.Equal(t, 0, d.Builds.Store().Len())
	d.queue.Drain()
	require.True(t, rd.IsFailed())
	require.True(t, d.Builds.Store().Has(b3.Id))
}

func Test_Branches_Fetch(t *testing.T) {
	d := newTestDashboard(t)
	ctx := context.Background()
	d.ci.addBuild("web", "main", model.BuildSucceeded)
	d.ci.addBuild("web", "dev", model.BuildSucceeded)
	last := d.ci.addBuild("web", "main", model.BuildFailed)

	d.Branches.FetchBranches(ctx)
	d.queue.Drain()
	require.Equal(t, []string{"main", "dev"}, d.Branches.Names())
	m, _ := d.Branches.Store().Get("main")
	require.EqualValues(t, 2, m.Int(FieldBuilds))
	require.Equal(t, last.Id, m.String(FieldLastBuildId))
	require.Equal(t, string(model.BuildFailed), m.String(FieldLastStatus))
}

func Test_Members(t *testing.T) {
	d := newTestDashboard(t)
	ctx := context.Background()
	d.ci.addMember("web", "alice", model.RoleOwner)
	d.ci.addMember("web", "bob", model.RoleAdmin)
	d.ci.addMember("api", "carol", model.RoleOwner)

	r := d.Members.Fetch(ctx)
	d.queue.Drain()
	require.True(t, r.IsLoaded())
	require.Equal(t, []string{"alice", "bob"}, buildIds(d.Members.List()))
	role, found := d.Members.Role("alice")
	require.True(t, found)
	require.Equal(t, model.RoleOwner, role)

	// Invite
	ri := d.Members.Invite(ctx, "dave")
	require.True(t, d.Members.Edges().Contains("web", "dave"))
	d.queue.Drain()
	require.True(t, ri.IsLoaded())
	role, _ = d.Members.Role("dave")
	require.Equal(t, model.DefaultRole, role)

	// ChangeRole
	rc := d.Members.ChangeRole(ctx, "bob", "root")
	require.True(t, rc.IsFailed())
	rc = d.Members.ChangeRole(ctx, "zed", model.RoleAdmin)
	require.ErrorIs(t, rc.Err(), storage.ErrNotTracked)

	d.ci.err = errUnavailable
	d.Members.ChangeRole(ctx, "bob", model.RoleDeveloper)
	role, _ = d.Members.Role("bob")
	require.Equal(t, model.RoleDeveloper, role)
	d.queue.Drain()
	role, _ = d.Members.Role("bob")
	require.Equal(t, model.RoleAdmin, role)

	d.ci.err = nil
	d.Members.ChangeRole(ctx, "bob", model.RoleDeveloper)
	d.queue.Drain()
	require.Equal(t, model.RoleDeveloper, d.ci.members["web"]["bob"].Role)

	// Remove
	rr := d.Members.Remove(ctx, "alice")
	require.False(t, d.Members.Edges().Contains("web", "alice"))
	d.queue.Drain()
	require.True(t, rr.IsLoaded())
	_, found = d.ci.members["web"]["alice"]
	require.False(t, found)

	// A refetch reconciles the edges
	d.ci.addMember("web", "erin", model.RoleDeveloper)
	delete(d.ci.members["web"], "dave")
	d.Members.Fetch(ctx)
	d.queue.Drain()
	require.Equal(t, []string{"bob", "erin"}, d.Members.Edges().RightKeys("web"))
}

func Test_Billing(t *testing.T) {
	d := newTestDashboard(t)
	ctx := context.Background()
	d.ci.plans["web"] = model.Plan{AppId: "web", Name: "pro", BuildMinutes: 1000, UsedMinutes: 100}

	r := d.Billing.FetchPlan(ctx, false)
	d.queue.Drain()
	require.True(t, r.IsLoaded())
	plan, found := d.Billing.Plan()
	require.True(t, found)
	require.Equal(t, 900, plan.MinutesLeft())

	// No plan for the app
	d.SelectApp("api")
	d.Billing.FetchPlan(ctx, true)
	d.queue.Drain()
	_, found = d.Billing.Plan()
	require.False(t, found)
	require.True(t, d.Billing.Store().IsLoaded())
}

func Test_Dashboard_SelectApp(t *testing.T) {
	d := newTestDashboard(t)
	ctx := context.Background()
	d.ci.addBuild("web", "main", model.BuildQueued)
	d.ci.addBuild("api", "main", model.BuildQueued)
	d.ci.addMember("web", "alice", model.RoleOwner)

	g := d.Refresh(ctx, storage.PreserveReplace)
	require.True(t, g.IsPending())
	d.queue.Drain()
	require.True(t, g.IsLoaded())
	require.Equal(t, 1, d.Builds.Store().Len())
	require.Equal(t, 1, d.Branches.Store().Len())
	require.Len(t, d.Members.List(), 1)

	// In-flight requests of the previous app are dropped
	d.Refresh(ctx, storage.PreserveReplace)
	d.SelectApp("api")
	require.Equal(t, "api", d.App())
	require.Equal(t, 0, d.Builds.Store().Len())
	require.Equal(t, 0, d.Members.Edges().Len())
	d.queue.Drain()
	require.Equal(t, 0, d.Builds.Store().Len())

	d.Refresh(ctx, storage.PreserveReplace)
	d.queue.Drain()
	require.Equal(t, 1, d.Builds.Store().Len())
	require.Empty(t, d.Members.List())
}
