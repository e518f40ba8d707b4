package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/itiky/resource-sync/internal/bg"
	"github.com/itiky/resource-sync/model"
	"github.com/itiky/resource-sync/scope"
	"github.com/itiky/resource-sync/storage"
)

var errUnavailable = errors.New("503 service unavailable")

// fakeCI is an in-memory CI backend implementing every dashboard Api.
type fakeCI struct {
	err     error
	builds  map[string]model.Build
	members map[string]map[string]model.Member
	plans   map[string]model.Plan
	nextNum int
}

func newFakeCI() *fakeCI {
	return &fakeCI{
		builds:  make(map[string]model.Build),
		members: make(map[string]map[string]model.Member),
		plans:   make(map[string]model.Plan),
	}
}

func (f *fakeCI) api() Api {
	return Api{Builds: f, Branches: branchesApi{f}, Members: f, Plans: f}
}

func (f *fakeCI) addBuild(app, branch string, status model.BuildStatus) model.Build {
	f.nextNum++
	b := model.Build{
		Id:          fmt.Sprintf("%s-%d", app, f.nextNum),
		Number:      f.nextNum,
		AppId:       app,
		Branch:      branch,
		Status:      status,
		TriggeredAt: time.Date(2026, 1, 1, 0, 0, f.nextNum, 0, time.UTC),
	}
	f.builds[b.Id] = b

	return b
}

func (f *fakeCI) addMember(app, user string, role model.Role) {
	if f.members[app] == nil {
		f.members[app] = make(map[string]model.Member)
	}
	f.members[app][user] = model.Member{UserId: user, Name: user, Email: user + "@example.com", Role: role}
}

func (f *fakeCI) list(query model.BuildQuery) []model.Build {
	list := make([]model.Build, 0)
	for _, b := range f.builds {
		if query.Match(b) {
			list = append(list, b)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Number < list[j].Number })

	return list
}

func (f *fakeCI) GetResource(ctx context.Context, id string, query model.BuildQuery) (model.Build, error) {
	if f.err != nil {
		return model.Build{}, f.err
	}
	b, found := f.builds[id]
	if !found {
		return model.Build{}, errors.New("404 not found")
	}

	return b, nil
}

func (f *fakeCI) GetCollection(ctx context.Context, query model.BuildQuery) ([]model.Build, error) {
	if f.err != nil {
		return nil, f.err
	}

	return f.list(query), nil
}

func (f *fakeCI) GetRelated(ctx context.Context, foreignKey, foreignKeyValue string, query model.BuildQuery) ([]model.Build, error) {
	if f.err != nil {
		return nil, f.err
	}
	query.Branch = foreignKeyValue

	return f.list(query), nil
}

func (f *fakeCI) PostResource(ctx context.Context, fields storage.Fields) (model.Build, error) {
	if f.err != nil {
		return model.Build{}, f.err
	}

	app, _ := fields[FieldAppId].(string)
	branch, _ := fields[FieldBranch].(string)
	b := f.addBuild(app, branch, model.BuildQueued)
	b.CommitMessage, _ = fields[FieldCommitMessage].(string)
	f.builds[b.Id] = b

	return b, nil
}

func (f *fakeCI) PostResources(ctx context.Context, fields []storage.Fields) ([]model.Build, error) {
	list := make([]model.Build, 0, len(fields))
	for _, fs := range fields {
		b, err := f.PostResource(ctx, fs)
		if err != nil {
			return nil, err
		}
		list = append(list, b)
	}

	return list, nil
}

func (f *fakeCI) PatchResource(ctx context.Context, id string, changes storage.Fields) (model.Build, error) {
	if f.err != nil {
		return model.Build{}, f.err
	}
	b, found := f.builds[id]
	if !found {
		return model.Build{}, errors.New("404 not found")
	}
	status, _ := changes[FieldStatus].(string)
	if err := b.SetStatus(model.BuildStatus(status), time.Now()); err != nil {
		return model.Build{}, err
	}
	f.builds[id] = b

	return b, nil
}

func (f *fakeCI) PatchResources(ctx context.Context, ids []string, changes storage.Fields) ([]model.Build, error) {
	list := make([]model.Build, 0, len(ids))
	for _, id := range ids {
		b, err := f.PatchResource(ctx, id, changes)
		if err != nil {
			return nil, err
		}
		list = append(list, b)
	}

	return list, nil
}

func (f *fakeCI) DeleteResource(ctx context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	delete(f.builds, id)

	return nil
}

func (f *fakeCI) DeleteResources(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := f.DeleteResource(ctx, id); err != nil {
			return err
		}
	}

	return nil
}

func (f *fakeCI) branches(query model.AppQuery) []model.Branch {
	idx := make(map[string]int)
	list := make([]model.Branch, 0)
	for _, b := range f.list(model.BuildQuery{App: query.App}) {
		i, found := idx[b.Branch]
		if !found {
			i = len(list)
			idx[b.Branch] = i
			list = append(list, model.Branch{Name: b.Branch, AppId: b.AppId})
		}
		list[i].Builds++
		list[i].LastBuildId, list[i].LastStatus = b.Id, b.Status
	}

	return list
}

func (f *fakeCI) GetAssociated(ctx context.Context, app string, query model.AppQuery) ([]model.Member, error) {
	if f.err != nil {
		return nil, f.err
	}

	list := make([]model.Member, 0)
	for _, m := range f.members[app] {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UserId < list[j].UserId })

	return list, nil
}

func (f *fakeCI) AssociateResources(ctx context.Context, keys []storage.AssociationKey) ([]storage.Fields, error) {
	if f.err != nil {
		return nil, f.err
	}

	res := make([]storage.Fields, 0, len(keys))
	for _, key := range keys {
		f.addMember(key.Left, key.Right, model.DefaultRole)
		res = append(res, storage.Fields{FieldRole: string(model.DefaultRole)})
	}

	return res, nil
}

func (f *fakeCI) DisassociateResources(ctx context.Context, keys []storage.AssociationKey) error {
	if f.err != nil {
		return f.err
	}
	for _, key := range keys {
		delete(f.members[key.Left], key.Right)
	}

	return nil
}

func (f *fakeCI) PatchAssociation(ctx context.Context, key storage.AssociationKey, changes storage.Fields) (storage.Fields, error) {
	if f.err != nil {
		return nil, f.err
	}
	m, found := f.members[key.Left][key.Right]
	if !found {
		return nil, errors.New("404 not found")
	}
	role, _ := changes[FieldRole].(string)
	m.Role = model.Role(role)
	f.members[key.Left][key.Right] = m

	return storage.Fields{FieldRole: role}, nil
}

func (f *fakeCI) Fetch(ctx context.Context, app string) (model.Plan, error) {
	if f.err != nil {
		return model.Plan{}, f.err
	}

	return f.plans[app], nil
}

type testDashboard struct {
	*Dashboard
	ci    *fakeCI
	queue *bg.Queue
	app   *scope.Scope
}

func newTestDashboard(t *testing.T) testDashboard {
	ci := newFakeCI()
	q := &bg.Queue{}
	app := scope.NewScope("web")

	d, err := New(Config{
		Env: bg.Env{Calls: bg.Sync{}, Settle: q},
		App: app,
		Api: ci.api(),
	})
	require.NoError(t, err)
	t.Cleanup(d.Close)

	return testDashboard{Dashboard: d, ci: ci, queue: q, app: app}
}

// branchesApi resolves the GetCollection name clash with the builds Api.
type branchesApi struct {
	ci *fakeCI
}

func (a branchesApi) GetCollection(ctx context.Context, query model.AppQuery) ([]model.Branch, error) {
	if a.ci.err != nil {
		return nil, a.ci.err
	}

	return a.ci.branches(query), nil
}
