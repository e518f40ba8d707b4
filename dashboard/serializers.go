package dashboard

import (
	"time"

	"github.com/itiky/resource-sync/model"
	"github.com/itiky/resource-sync/storage"
)

// Model field keys.
const (
	FieldId            = "id"
	FieldNumber        = "number"
	FieldAppId         = "app_id"
	FieldBranch        = "branch"
	FieldStatus        = "status"
	FieldCommitMessage = "commit_message"
	FieldTriggeredAt   = "triggered_at"
	FieldFinishedAt    = "finished_at"
	FieldLastBuildId   = "last_build_id"
	FieldLastStatus    = "last_status"
	FieldBuilds        = "builds"
	FieldName          = "name"
	FieldEmail         = "email"
	FieldRole          = "role"
)

var idFromFields = storage.IdFromKey(FieldId)

type (
	buildSerializer  struct{}
	branchSerializer struct{}
	memberSerializer struct{}
)

// Deserialize implements the storage.Serializer interface.
// Archived builds don't exist client-side.
func (buildSerializer) Deserialize(res model.Build, query model.BuildQuery, foreignKey, foreignKeyValue string) (storage.Fields, bool) {
	if res.Archived {
		return nil, false
	}

	f := storage.Fields{
		FieldId:            res.Id,
		FieldNumber:        res.Number,
		FieldAppId:         res.AppId,
		FieldBranch:        res.Branch,
		FieldStatus:        string(res.Status),
		FieldCommitMessage: res.CommitMessage,
		FieldTriggeredAt:   res.TriggeredAt.UTC().Format(time.RFC3339),
	}
	if res.FinishedAt != nil {
		f[FieldFinishedAt] = res.FinishedAt.UTC().Format(time.RFC3339)
	}

	return f, true
}

func (buildSerializer) IdFromResponse(res model.Build) string {
	return res.Id
}

func (buildSerializer) IdFromFields(fields storage.Fields) string {
	return idFromFields(fields)
}

// Deserialize implements the storage.Serializer interface.
// Branch name is the Model id.
func (branchSerializer) Deserialize(res model.Branch, query model.AppQuery, foreignKey, foreignKeyValue string) (storage.Fields, bool) {
	return storage.Fields{
		FieldId:          res.Name,
		FieldAppId:       res.AppId,
		FieldLastBuildId: res.LastBuildId,
		FieldLastStatus:  string(res.LastStatus),
		FieldBuilds:      res.Builds,
	}, true
}

func (branchSerializer) IdFromResponse(res model.Branch) string {
	return res.Name
}

func (branchSerializer) IdFromFields(fields storage.Fields) string {
	return idFromFields(fields)
}

// Deserialize implements the storage.Serializer interface.
// The role is kept on the membership edge, not on the user Model.
func (memberSerializer) Deserialize(res model.Member, query model.AppQuery, foreignKey, foreignKeyValue string) (storage.Fields, bool) {
	if res.UserId == "" {
		return nil, false
	}

	return storage.Fields{
		FieldId:    res.UserId,
		FieldName:  res.Name,
		FieldEmail: res.Email,
	}, true
}

func (memberSerializer) IdFromResponse(res model.Member) string {
	return res.UserId
}

func (memberSerializer) IdFromFields(fields storage.Fields) string {
	return idFromFields(fields)
}
