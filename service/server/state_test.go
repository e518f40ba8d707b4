package server

import (
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/itiky/resource-sync/model"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestFixture() Fixture {
	return Fixture{
		Users: []UserFixture{
			{Id: "alice", Name: "Alice", Email: "alice@example.com"},
			{Id: "bob", Name: "Bob", Email: "bob@example.com"},
			{Id: "carol", Name: "Carol", Email: "carol@example.com"},
		},
		Apps: []AppFixture{
			{
				Id:      "web",
				Name:    "Web",
				Team:    "core",
				Plan:    &model.Plan{Name: "pro", BuildMinutes: 1000},
				Members: map[string]string{"alice": "owner", "bob": "developer"},
				Builds: []BuildFixture{
					{Branch: "main", Status: "succeeded", CommitMessage: "init", TriggeredAt: testNow.Add(-3 * time.Hour), DurationMin: 5},
					{Branch: "dev", Status: "failed", CommitMessage: "wip", TriggeredAt: testNow.Add(-2 * time.Hour), DurationMin: 3},
					{Branch: "main", Status: "building", CommitMessage: "feat", TriggeredAt: testNow.Add(-time.Hour)},
					{Branch: "main", Status: "succeeded", CommitMessage: "old", TriggeredAt: testNow.Add(-time.Hour), Archived: true},
				},
			},
			{Id: "api", Name: "API", Team: "core"},
		},
	}
}

func newTestState(t *testing.T) *State {
	s, err := NewState(newTestFixture())
	require.NoError(t, err)

	return s
}

func Test_State_Fixture(t *testing.T) {
	s := newTestState(t)

	apps := s.Apps()
	require.Len(t, apps, 2)
	require.Equal(t, "api", apps[0].Id)

	builds, err := s.Builds(model.BuildQuery{App: "web"})
	require.NoError(t, err)
	require.Len(t, builds, 4)
	require.Equal(t, 4, builds[0].Number)
	require.True(t, builds[0].Archived)
	require.NotNil(t, builds[3].FinishedAt)

	_, err = s.Builds(model.BuildQuery{App: "unknown"})
	require.ErrorIs(t, err, ErrNotFound)

	f := newTestFixture()
	f.Apps[0].Members["zed"] = "owner"
	_, err = NewState(f)
	require.ErrorIs(t, err, ErrNotFound)

	f = newTestFixture()
	f.Apps[0].Builds[0].Status = "done"
	_, err = NewState(f)
	require.Error(t, err)

	f = newTestFixture()
	f.Apps[1].Id = "web"
	_, err = NewState(f)
	require.Error(t, err)
}

func Test_State_Builds(t *testing.T) {
	s := newTestState(t)

	list, err := s.Builds(model.BuildQuery{App: "web", Branch: "main", Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, 4, list[0].Number)
	require.Equal(t, 3, list[1].Number)

	v := s.Version()
	b, err := s.TriggerBuild("web", model.TriggerBuildRequest{Branch: "dev", CommitMessage: "fix"}, testNow)
	require.NoError(t, err)
	require.Equal(t, 5, b.Number)
	require.Equal(t, model.BuildQueued, b.Status)
	require.Len(t, b.Id, 26)
	require.Equal(t, v+1, s.Version())

	_, err = s.TriggerBuild("web", model.TriggerBuildRequest{}, testNow)
	require.ErrorIs(t, err, ErrInvalid)

	// All or nothing
	_, err = s.TriggerBuilds("web", []model.TriggerBuildRequest{{Branch: "a"}, {}}, testNow)
	require.ErrorIs(t, err, ErrInvalid)
	list, err = s.TriggerBuilds("web", []model.TriggerBuildRequest{{Branch: "a"}, {Branch: "b"}}, testNow)
	require.NoError(t, err)
	require.Equal(t, []int{6, 7}, []int{list[0].Number, list[1].Number})

	_, err = s.SetBuildsStatus([]string{b.Id, list[0].Id, "unknown"}, model.BuildAborted, testNow)
	require.ErrorIs(t, err, ErrNotFound)
	stored, _ := s.Build(b.Id)
	require.Equal(t, model.BuildQueued, stored.Status)

	updated, err := s.SetBuildsStatus([]string{b.Id}, model.BuildAborted, testNow)
	require.NoError(t, err)
	require.Equal(t, model.BuildAborted, updated[0].Status)
	_, err = s.SetBuildsStatus([]string{b.Id}, model.BuildAborted, testNow)
	require.NoError(t, err)
	_, err = s.SetBuildsStatus([]string{list[0].Id}, model.BuildSucceeded, testNow)
	require.ErrorIs(t, err, ErrInvalid)

	require.ErrorIs(t, s.DeleteBuilds(b.Id, "unknown"), ErrNotFound)
	require.NoError(t, s.DeleteBuilds(b.Id))
	_, err = s.Build(b.Id)
	require.ErrorIs(t, err, ErrNotFound)
}

func Test_State_Branches(t *testing.T) {
	s := newTestState(t)

	list, err := s.Branches("web")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "dev", list[0].Name)
	require.Equal(t, 1, list[0].Builds)
	require.Equal(t, model.BuildFailed, list[0].LastStatus)
	require.Equal(t, "main", list[1].Name)
	require.Equal(t, 3, list[1].Builds)

	list, err = s.Branches("api")
	require.NoError(t, err)
	require.Empty(t, list)
}

func Test_State_Members(t *testing.T) {
	s := newTestState(t)

	list, err := s.Members("web")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "alice", list[0].UserId)
	require.Equal(t, model.RoleOwner, list[0].Role)
	require.Equal(t, "Alice", list[0].Name)

	res, err := s.SetMember("web", "carol", "", false)
	require.NoError(t, err)
	require.Equal(t, model.DefaultRole, res.Role)

	_, err = s.SetMember("web", "zed", "", false)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.SetMember("api", "carol", model.RoleAdmin, true)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.SetMember("web", "carol", "root", true)
	require.ErrorIs(t, err, ErrInvalid)

	res, err = s.SetMember("web", "carol", model.RoleAdmin, true)
	require.NoError(t, err)
	require.Equal(t, model.RoleAdmin, res.Role)
	// Re-adding keeps the role
	res, err = s.SetMember("web", "carol", "", false)
	require.NoError(t, err)
	require.Equal(t, model.RoleAdmin, res.Role)

	require.NoError(t, s.RemoveMember("web", "carol"))
	require.ErrorIs(t, s.RemoveMember("web", "carol"), ErrNotFound)
}

func Test_State_Advance(t *testing.T) {
	s := newTestState(t)
	rnd := rand.New(rand.NewSource(1))
	b, err := s.TriggerBuild("web", model.TriggerBuildRequest{Branch: "main"}, testNow)
	require.NoError(t, err)

	// queued -> building, building -> failed (fail rate 1)
	require.Equal(t, 2, s.Advance(testNow, 1, rnd))
	stored, _ := s.Build(b.Id)
	require.Equal(t, model.BuildBuilding, stored.Status)

	// The fixture build is final already
	require.Equal(t, 1, s.Advance(testNow.Add(90*time.Second), 0, rnd))
	stored, _ = s.Build(b.Id)
	require.Equal(t, model.BuildSucceeded, stored.Status)
	require.NotNil(t, stored.FinishedAt)

	plan, err := s.Plan("web")
	require.NoError(t, err)
	require.Equal(t, "web", plan.AppId)
	require.Greater(t, plan.UsedMinutes, 0)

	v := s.Version()
	require.Equal(t, 0, s.Advance(testNow, 0, rnd))
	require.Equal(t, v, s.Version())
}

func Test_Fixture_GenAndLoad(t *testing.T) {
	_, err := GenFixture(0, 1, rand.New(rand.NewSource(1)), testNow)
	require.Error(t, err)

	filePath := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, GenAndSaveFixture(filePath, 3, 10, 42))

	f, err := LoadFixture(filePath)
	require.NoError(t, err)
	require.Len(t, f.Apps, 3)
	require.Len(t, f.Users, 6)
	require.Len(t, f.Apps[0].Builds, 10)
	require.NotNil(t, f.Apps[0].Plan)

	s, err := NewState(f)
	require.NoError(t, err)
	running, err := s.Builds(model.BuildQuery{App: "app-1", Status: model.BuildQueued})
	require.NoError(t, err)
	require.Len(t, running, 2)

	_, err = LoadFixture(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
