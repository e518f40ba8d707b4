package storage

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/itiky/resource-sync/internal/bg"
	"github.com/itiky/resource-sync/scope"
)

var errServer = errors.New("500 internal server error")

type (
	buildRes struct {
		Id     int
		Status string
		Branch string
		Hidden bool
	}

	buildSerializer struct{}

	// fakeApi is an in-memory server implementing every network capability.
	fakeApi struct {
		err        error
		server     map[string]buildRes
		collection []buildRes
		associated map[string][]buildRes
		nextId     int
		calls      int
	}
)

func (buildSerializer) Deserialize(res buildRes, query string, foreignKey, foreignKeyValue string) (Fields, bool) {
	if res.Hidden {
		return nil, false
	}

	f := Fields{
		"id":     strconv.Itoa(res.Id),
		"status": res.Status,
	}
	if res.Branch != "" {
		f["branch"] = res.Branch
	}

	return f, true
}

func (buildSerializer) IdFromResponse(res buildRes) string {
	return strconv.Itoa(res.Id)
}

func (buildSerializer) IdFromFields(fields Fields) string {
	return IdFromKey("id")(fields)
}

func newFakeApi() *fakeApi {
	return &fakeApi{
		server:     make(map[string]buildRes),
		associated: make(map[string][]buildRes),
	}
}

func (a *fakeApi) GetResource(ctx context.Context, id string, query string) (buildRes, error) {
	a.calls++
	if a.err != nil {
		return buildRes{}, a.err
	}
	res, found := a.server[id]
	if !found {
		return buildRes{}, errors.New("404 not found")
	}

	return res, nil
}

func (a *fakeApi) GetCollection(ctx context.Context, query string) ([]buildRes, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}

	return a.collection, nil
}

func (a *fakeApi) PostResource(ctx context.Context, fields Fields) (buildRes, error) {
	a.calls++
	if a.err != nil {
		return buildRes{}, a.err
	}

	a.nextId++
	res := buildRes{Id: a.nextId}
	res.Status, _ = fields["status"].(string)
	res.Branch, _ = fields["branch"].(string)
	a.server[strconv.Itoa(res.Id)] = res

	return res, nil
}

func (a *fakeApi) PostResources(ctx context.Context, fields []Fields) ([]buildRes, error) {
	list := make([]buildRes, 0, len(fields))
	for _, f := range fields {
		res, err := a.PostResource(ctx, f)
		if err != nil {
			return nil, err
		}
		list = append(list, res)
	}

	return list, nil
}

func (a *fakeApi) PatchResource(ctx context.Context, id string, changes Fields) (buildRes, error) {
	a.calls++
	if a.err != nil {
		return buildRes{}, a.err
	}

	res := a.server[id]
	if status, ok := changes["status"].(string); ok {
		res.Status = status
	}
	a.server[id] = res

	return res, nil
}

func (a *fakeApi) PatchResources(ctx context.Context, ids []string, changes Fields) ([]buildRes, error) {
	list := make([]buildRes, 0, len(ids))
	for _, id := range ids {
		res, err := a.PatchResource(ctx, id, changes)
		if err != nil {
			return nil, err
		}
		list = append(list, res)
	}

	return list, nil
}

func (a *fakeApi) DeleteResource(ctx context.Context, id string) error {
	a.calls++
	if a.err != nil {
		return a.err
	}
	delete(a.server, id)

	return nil
}

func (a *fakeApi) DeleteResources(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := a.DeleteResource(ctx, id); err != nil {
			return err
		}
	}

	return nil
}

func (a *fakeApi) GetRelated(ctx context.Context, foreignKey, foreignKeyValue string, query string) ([]buildRes, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}

	list := make([]buildRes, 0)
	for _, res := range a.server {
		if foreignKey == "branch" && res.Branch == foreignKeyValue {
			list = append(list, res)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Id < list[j].Id })

	return list, nil
}

func (a *fakeApi) GetAssociated(ctx context.Context, leftKey string, query string) ([]buildRes, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}

	return a.associated[leftKey], nil
}

// newTestEnv returns an Env executing calls inline and queueing their settlement.
func newTestEnv() (bg.Env, *bg.Queue) {
	q := &bg.Queue{}
	return bg.Env{Calls: bg.Sync{}, Settle: q}, q
}

func newTestStore(t *testing.T, sc *scope.Scope) (*Store[buildRes, string], *bg.Queue) {
	env, q := newTestEnv()
	s, err := NewStore(StoreConfig[buildRes, string]{
		Name:       "builds",
		Env:        env,
		Serializer: buildSerializer{},
		Scope:      sc,
	})
	require.NoError(t, err)

	return s, q
}

// seed adds Models with the given ids (and optional "status").
func seed(s *Store[buildRes, string], status string, ids ...string) []*Model {
	list := make([]*Model, 0, len(ids))
	for _, id := range ids {
		m := NewModel(Fields{"id": id, "status": status})
		s.Add(m)
		list = append(list, m)
	}

	return list
}

func modelIds(list []*Model) []string {
	ids := make([]string, 0, len(list))
	for _, m := range list {
		ids = append(ids, m.Id())
	}

	return ids
}
