package backendcfg

import (
	"context"
	"testing"
	"time"

	"pagekit/lib/telemetry"

	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:backendcfg")
	defer cleanup()

	store, err := Open(":memory:")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	_, err = store.Get(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)

	name, err := InstanceName("demobank")
	require.NoError(t, err)
	require.Contains(t, name, "demobank_")

	err = store.Save(ctx, Backend{
		Name:   name,
		Module: "demobank",
		Params: map[string]string{
			"username": "alice",
			"password": "hunter2",
		},
	})
	require.NoError(t, err)

	backend, err := store.Get(ctx, name)
	require.NoError(t, err)
	require.Equal(t, "demobank", backend.Module)
	require.Equal(t, "alice", backend.Params["username"])
	require.Equal(t, "hunter2", backend.Params["password"])

	// params are replaced wholesale on save
	err = store.Save(ctx, Backend{
		Name:   name,
		Module: "demobank",
		Params: map[string]string{"username": "bob"},
	})
	require.NoError(t, err)

	backend, err = store.Get(ctx, name)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"username": "bob"}, backend.Params)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, name, all[0].Name)

	err = store.Delete(ctx, name)
	require.NoError(t, err)

	all, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 0)
}
