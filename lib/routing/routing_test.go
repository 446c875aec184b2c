package routing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry("https://bank.example")
	require.NoError(t, r.Register("list", `/accounts$`))
	require.NoError(t, r.Register("detail", `/accounts/(?P<id>\d+)$`))
	require.NoError(t, r.Register("history", `/accounts/(?P<id>\d+)/history$`, `/history\?account=(?P<id>\d+)$`))
	r.Freeze()
	return r
}

func TestMatchOrderAndParams(t *testing.T) {
	r := newTestRegistry(t)

	route, loc, ok := r.Match("https://bank.example/accounts/42")
	require.True(t, ok)
	require.Equal(t, "detail", route.HandlerType())
	require.Equal(t, map[string]string{"id": "42"}, loc.Params())

	route, _, ok = r.Match("https://bank.example/accounts")
	require.True(t, ok)
	require.Equal(t, "list", route.HandlerType())

	_, _, ok = r.Match("https://bank.example/profile")
	require.False(t, ok)
}

func TestMatchIsDeterministic(t *testing.T) {
	// overlapping patterns: registration order breaks the tie
	r := NewRegistry("https://site.example")
	require.NoError(t, r.Register("first", `/page/(?P<id>\w+)`))
	require.NoError(t, r.Register("second", `/page/special`))
	r.Freeze()

	for range 10 {
		route, _, ok := r.Match("https://site.example/page/special")
		require.True(t, ok)
		require.Equal(t, "first", route.HandlerType())
	}
}

func TestResolve(t *testing.T) {
	r := newTestRegistry(t)

	loc, err := r.Resolve("detail", map[string]string{"id": "42"})
	require.NoError(t, err)
	require.Equal(t, "https://bank.example/accounts/42", loc.URL())

	loc, err = r.Resolve("list", nil)
	require.NoError(t, err)
	require.Equal(t, "https://bank.example/accounts", loc.URL())

	_, err = r.Resolve("detail", nil)
	require.ErrorIs(t, err, ErrMissingParameter)

	_, err = r.Resolve("unknown", nil)
	require.ErrorIs(t, err, ErrNoMatchingPattern)

	// both history templates take the same params: ambiguous
	_, err = r.Resolve("history", map[string]string{"id": "42"})
	require.ErrorIs(t, err, ErrAmbiguousPattern)

	// unused params never silently disappear
	_, err = r.Resolve("list", map[string]string{"page": "2"})
	require.ErrorIs(t, err, ErrNoMatchingPattern)
}

func TestRegisterRules(t *testing.T) {
	r := NewRegistry("https://site.example")
	require.NoError(t, r.Register("a", `/a$`))
	require.Error(t, r.Register("a", `/b$`))
	require.Error(t, r.Register("", `/c$`))
	require.Error(t, r.Register("bad", `/(unclosed`))

	r.Freeze()
	require.ErrorIs(t, r.Register("late", `/late$`), ErrFrozen)
}

func TestLocationImmutable(t *testing.T) {
	loc := NewLocation("https://x", map[string]string{"id": "1"})
	params := loc.Params()
	params["id"] = "2"
	v, _ := loc.Param("id")
	require.Equal(t, "1", v)
}
