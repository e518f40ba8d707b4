package model

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Build_Advance(t *testing.T) {
	now := time.Now().UTC()
	b := Build{Id: "b1", Status: BuildQueued}

	require.NoError(t, b.Advance(false, now))
	require.Equal(t, BuildBuilding, b.Status)
	require.Nil(t, b.FinishedAt)

	require.NoError(t, b.Advance(true, now))
	require.Equal(t, BuildFailed, b.Status)
	require.NotNil(t, b.FinishedAt)

	require.Error(t, b.Advance(false, now))
}

func Test_Build_SetStatus(t *testing.T) {
	now := time.Now().UTC()
	b := Build{Id: "b1", Status: BuildBuilding}

	require.Error(t, b.SetStatus("unknown", now))
	require.Error(t, b.SetStatus(BuildSucceeded, now))
	require.NoError(t, b.SetStatus(BuildBuilding, now))

	require.NoError(t, b.SetStatus(BuildAborted, now))
	require.Equal(t, BuildAborted, b.Status)
	require.True(t, b.Status.IsFinal())

	b.Status = BuildSucceeded
	require.Error(t, b.SetStatus(BuildAborted, now))
}

func Test_BuildQuery_Values(t *testing.T) {
	q := BuildQuery{App: "web", Branch: "main", Status: BuildQueued, Limit: 5}
	require.Equal(t, "web?branch=main&limit=5&status=queued", q.String())
	require.Equal(t, "web", BuildQuery{App: "web"}.String())

	parsed, err := ParseBuildQuery("web", q.Values())
	require.NoError(t, err)
	require.Equal(t, q, parsed)

	_, err = ParseBuildQuery("web", url.Values{"limit": {"-1"}})
	require.Error(t, err)
	_, err = ParseBuildQuery("web", url.Values{"status": {"done"}})
	require.Error(t, err)

	require.True(t, q.Match(Build{AppId: "web", Branch: "main", Status: BuildQueued}))
	require.False(t, q.Match(Build{AppId: "web", Branch: "dev", Status: BuildQueued}))
}

func Test_Role_Parse(t *testing.T) {
	r, err := ParseRole("admin")
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, r)

	_, err = ParseRole("root")
	require.Error(t, err)
}

func Test_Plan_MinutesLeft(t *testing.T) {
	require.Equal(t, 90, Plan{BuildMinutes: 100, UsedMinutes: 10}.MinutesLeft())
	require.Equal(t, 0, Plan{BuildMinutes: 100, UsedMinutes: 120}.MinutesLeft())
}
