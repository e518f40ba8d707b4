//go:build !production

package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// Test checks that writes bypassing the Store during an in-flight update fail fast.
func Test_Store_Invariant_FrozenModel(t *testing.T) {
	s, q := newTestStore(t, nil)
	api := newFakeApi()
	m := seed(s, "building", "1")[0]
	api.server["1"] = buildRes{Id: 1, Status: "building"}

	s.Update(context.Background(), api, m, Fields{"status": "aborted"}, true, "")
	require.Panics(t, func() { m.Set("status", "queued") })
	require.Panics(t, func() { m.RevertChanges(Fields{}, Fields{}) })

	q.Drain()
	require.NotPanics(t, func() { m.Set("status", "queued") })
}

func Test_Store_Invariant_Untracked(t *testing.T) {
	s, _ := newTestStore(t, nil)
	api := newFakeApi()
	ctx := context.Background()

	require.Panics(t, func() { s.Delete(ctx, api, "404", true) })
	require.Panics(t, func() { s.DeleteMany(ctx, api, []string{"404"}, true) })
	require.Panics(t, func() { s.Update(ctx, api, NewModel(Fields{"id": "1"}), Fields{}, true, "") })

	m := seed(s, "", "1")[0]
	require.Panics(t, func() { s.Add(m) })
}

func Test_Store_Invariant_Append(t *testing.T) {
	s, q := newTestStore(t, nil)
	api := newFakeApi()
	seed(s, "", "1")

	api.collection = []buildRes{{Id: 1}}
	s.FetchCollection(context.Background(), api, "", FetchOptions{Mode: Append})
	require.Panics(t, func() { q.Drain() })
}

func Test_AssociationStore_Invariant_Untracked(t *testing.T) {
	s, _ := newTestAssociationStore(t, nil)

	require.Panics(t, func() {
		s.UpdateAssociation(context.Background(), newFakeEdgeApi(), "app", "user", Fields{"role": "admin"}, true)
	})
}
