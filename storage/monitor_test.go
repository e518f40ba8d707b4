package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Monitor_Report(t *testing.T) {
	_, err := NewMonitor(0)
	require.Error(t, err)

	m, err := NewMonitor(time.Second)
	require.NoError(t, err)

	m.RequestServed("builds", "fetchOne", 2*time.Millisecond, nil)
	m.RequestServed("builds", "fetchOne", 4*time.Millisecond, errors.New("404"))
	m.RequestServed("members", "associate", time.Millisecond, nil)

	report := m.Report()
	require.Len(t, report, 2)
	require.Equal(t, 2, report["builds.fetchOne"].Served)
	require.Equal(t, 1, report["builds.fetchOne"].Failed)
	require.InDelta(t, 3.0, report["builds.fetchOne"].AvgDurMs, 0.001)
	require.Equal(t, 1, report["members.associate"].Served)

	m.reset()
	require.Equal(t, 0, m.Report()["builds.fetchOne"].Served)

	m.Start()
	m.Start()
	m.Stop()
}

// Test checks that Store requests are reported.
func Test_Monitor_Store(t *testing.T) {
	m, err := NewMonitor(time.Minute)
	require.NoError(t, err)

	env, q := newTestEnv()
	s, err := NewStore(StoreConfig[buildRes, string]{
		Name:       "builds",
		Env:        env,
		Serializer: buildSerializer{},
		Monitor:    m,
	})
	require.NoError(t, err)

	api := newFakeApi()
	api.server["1"] = buildRes{Id: 1}
	s.FetchOne(context.Background(), api, "1", "")
	s.FetchOne(context.Background(), api, "2", "")
	q.Drain()

	report := m.Report()
	require.Equal(t, 2, report["builds.fetchOne"].Served)
	require.Equal(t, 1, report["builds.fetchOne"].Failed)
}
