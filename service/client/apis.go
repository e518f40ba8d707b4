package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/itiky/resource-sync/dashboard"
	"github.com/itiky/resource-sync/model"
	"github.com/itiky/resource-sync/storage"
)

type (
	// BuildsApi implements the dashboard.BuildsApi interface.
	BuildsApi struct {
		c *Client
	}

	// BranchesApi implements the dashboard.BranchesApi interface.
	BranchesApi struct {
		c *Client
	}

	// MembersApi implements the dashboard.MembersApi interface.
	MembersApi struct {
		c *Client
	}

	// PlansApi implements the dashboard.PlansApi interface.
	PlansApi struct {
		c *Client
	}
)

var (
	_ dashboard.BuildsApi   = (*BuildsApi)(nil)
	_ dashboard.BranchesApi = (*BranchesApi)(nil)
	_ dashboard.MembersApi  = (*MembersApi)(nil)
	_ dashboard.PlansApi    = (*PlansApi)(nil)
)

func (a *BuildsApi) GetResource(ctx context.Context, id string, query model.BuildQuery) (model.Build, error) {
	var b model.Build
	err := a.c.do(ctx, http.MethodGet, "/builds/"+url.PathEscape(id), nil, nil, &b)

	return b, err
}

func (a *BuildsApi) GetCollection(ctx context.Context, query model.BuildQuery) ([]model.Build, error) {
	var list []model.Build
	err := a.c.do(ctx, http.MethodGet, appPath(query.App, "builds"), query.Values(), nil, &list)

	return list, err
}

// GetRelated lists the branch builds (the only supported foreign key).
func (a *BuildsApi) GetRelated(ctx context.Context, foreignKey, foreignKeyValue string, query model.BuildQuery) ([]model.Build, error) {
	if foreignKey != dashboard.FieldBranch {
		return nil, fmt.Errorf("foreignKey (%s): unsupported", foreignKey)
	}
	query.Branch = ""

	var list []model.Build
	err := a.c.do(ctx, http.MethodGet, appPath(query.App, "branches", url.PathEscape(foreignKeyValue), "builds"), query.Values(), nil, &list)

	return list, err
}

func (a *BuildsApi) PostResource(ctx context.Context, fields storage.Fields) (model.Build, error) {
	app, req := triggerRequest(fields)

	var b model.Build
	err := a.c.do(ctx, http.MethodPost, appPath(app, "builds"), nil, req, &b)

	return b, err
}

// PostResources triggers builds of a single app.
func (a *BuildsApi) PostResources(ctx context.Context, fields []storage.Fields) ([]model.Build, error) {
	if len(fields) == 0 {
		return nil, nil
	}

	app := ""
	req := model.TriggerBuildsRequest{}
	for i, f := range fields {
		fApp, fReq := triggerRequest(f)
		if i > 0 && fApp != app {
			return nil, fmt.Errorf("fields[%d]: app (%s): must match (%s)", i, fApp, app)
		}
		app = fApp
		req.Builds = append(req.Builds, fReq)
	}

	var list []model.Build
	err := a.c.do(ctx, http.MethodPost, appPath(app, "builds", "batch"), nil, req, &list)

	return list, err
}

func (a *BuildsApi) PatchResource(ctx context.Context, id string, changes storage.Fields) (model.Build, error) {
	status, _ := changes[dashboard.FieldStatus].(string)

	var b model.Build
	err := a.c.do(ctx, http.MethodPatch, "/builds/"+url.PathEscape(id), nil, model.PatchBuildRequest{Status: model.BuildStatus(status)}, &b)

	return b, err
}

func (a *BuildsApi) PatchResources(ctx context.Context, ids []string, changes storage.Fields) ([]model.Build, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	status, _ := changes[dashboard.FieldStatus].(string)

	var list []model.Build
	req := model.PatchBuildsRequest{Ids: ids, Status: model.BuildStatus(status)}
	err := a.c.do(ctx, http.MethodPatch, "/builds", nil, req, &list)

	return list, err
}

func (a *BuildsApi) DeleteResource(ctx context.Context, id string) error {
	return a.c.do(ctx, http.MethodDelete, "/builds/"+url.PathEscape(id), nil, nil, nil)
}

func (a *BuildsApi) DeleteResources(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	return a.c.do(ctx, http.MethodDelete, "/builds", url.Values{"id": ids}, nil, nil)
}

func (a *BranchesApi) GetCollection(ctx context.Context, query model.AppQuery) ([]model.Branch, error) {
	var list []model.Branch
	err := a.c.do(ctx, http.MethodGet, appPath(query.App, "branches"), nil, nil, &list)

	return list, err
}

func (a *MembersApi) GetAssociated(ctx context.Context, app string, query model.AppQuery) ([]model.Member, error) {
	var list []model.Member
	err := a.c.do(ctx, http.MethodGet, appPath(app, "members"), nil, nil, &list)

	return list, err
}

// AssociateResources adds members one by one, stopping on the first failure.
func (a *MembersApi) AssociateResources(ctx context.Context, keys []storage.AssociationKey) ([]storage.Fields, error) {
	res := make([]storage.Fields, 0, len(keys))
	for _, key := range keys {
		var member model.MemberResponse
		if err := a.c.do(ctx, http.MethodPut, memberPath(key), nil, nil, &member); err != nil {
			return nil, fmt.Errorf("member (%s): %w", key, err)
		}
		res = append(res, storage.Fields{dashboard.FieldRole: string(member.Role)})
	}

	return res, nil
}

func (a *MembersApi) DisassociateResources(ctx context.Context, keys []storage.AssociationKey) error {
	for _, key := range keys {
		if err := a.c.do(ctx, http.MethodDelete, memberPath(key), nil, nil, nil); err != nil {
			return fmt.Errorf("member (%s): %w", key, err)
		}
	}

	return nil
}

func (a *MembersApi) PatchAssociation(ctx context.Context, key storage.AssociationKey, changes storage.Fields) (storage.Fields, error) {
	role, _ := changes[dashboard.FieldRole].(string)

	var member model.MemberResponse
	if err := a.c.do(ctx, http.MethodPatch, memberPath(key), nil, model.MemberRequest{Role: model.Role(role)}, &member); err != nil {
		return nil, err
	}

	return storage.Fields{dashboard.FieldRole: string(member.Role)}, nil
}

func (a *PlansApi) Fetch(ctx context.Context, app string) (model.Plan, error) {
	var plan model.Plan
	err := a.c.do(ctx, http.MethodGet, appPath(app, "plan"), nil, nil, &plan)

	return plan, err
}

func appPath(app string, elems ...string) string {
	path := "/apps/" + url.PathEscape(app)
	for _, elem := range elems {
		path += "/" + elem
	}

	return path
}

func memberPath(key storage.AssociationKey) string {
	return appPath(key.Left, "members", url.PathEscape(key.Right))
}

func triggerRequest(fields storage.Fields) (string, model.TriggerBuildRequest) {
	app, _ := fields[dashboard.FieldAppId].(string)
	branch, _ := fields[dashboard.FieldBranch].(string)
	msg, _ := fields[dashboard.FieldCommitMessage].(string)

	return app, model.TriggerBuildRequest{Branch: branch, CommitMessage: msg}
}
