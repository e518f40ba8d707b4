package scope

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Scope_Set(t *testing.T) {
	s := NewScope("app-1")
	require.Equal(t, "app-1", s.Value())
	require.Equal(t, uint64(0), s.Generation())

	var calls []string
	cancel1 := s.Subscribe(func(old, new interface{}) {
		calls = append(calls, "1:"+old.(string)+"->"+new.(string))
	})
	s.Subscribe(func(old, new interface{}) {
		calls = append(calls, "2:"+old.(string)+"->"+new.(string))
	})

	// Same value
	s.Set("app-1")
	require.Empty(t, calls)
	require.Equal(t, uint64(0), s.Generation())

	s.Set("app-2")
	require.Equal(t, []string{"1:app-1->app-2", "2:app-1->app-2"}, calls)
	require.Equal(t, uint64(1), s.Generation())

	cancel1()
	s.Set("app-3")
	require.Equal(t, []string{"1:app-1->app-2", "2:app-1->app-2", "2:app-2->app-3"}, calls)
	require.Equal(t, uint64(2), s.Generation())
	require.Equal(t, "app-3", s.Value())
}

func Test_Scope_SubscribeFromHandler(t *testing.T) {
	s := NewScope(1)

	nested := 0
	s.Subscribe(func(old, new interface{}) {
		s.Subscribe(func(old, new interface{}) { nested++ })
	})

	s.Set(2)
	require.Equal(t, 0, nested)
	s.Set(3)
	require.Equal(t, 1, nested)
}
