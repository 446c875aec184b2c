package objects

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresID(t *testing.T) {
	_, err := New("account", "")
	require.Error(t, err)
}

func TestFieldStates(t *testing.T) {
	obj, err := New("account", "42", "label", "balance")
	require.NoError(t, err)

	require.Equal(t, NotLoaded, obj.State("label"))

	require.NoError(t, obj.Set("label", "Checking"))
	require.Equal(t, Loaded, obj.State("label"))
	require.Equal(t, "Checking", obj.GetString("label"))

	require.NoError(t, obj.MarkNotAvailable("balance", "site has no balances"))
	require.Equal(t, NotAvailable, obj.State("balance"))
	require.Equal(t, "site has no balances", obj.Reason("balance"))

	require.Error(t, obj.Set("nope", 1))
}

func TestLoadedNeverReverts(t *testing.T) {
	obj, err := New("account", "42", "balance")
	require.NoError(t, err)

	require.NoError(t, obj.Set("balance", 10.0))
	// a fresher loaded value wins
	require.NoError(t, obj.Set("balance", 20.0))
	v, ok := obj.Get("balance")
	require.True(t, ok)
	require.Equal(t, 20.0, v)

	// not-available never downgrades a loaded field
	require.NoError(t, obj.MarkNotAvailable("balance", "expired"))
	require.Equal(t, Loaded, obj.State("balance"))
}

func TestMissing(t *testing.T) {
	obj, err := New("account", "42", "label", "balance", "iban")
	require.NoError(t, err)
	require.NoError(t, obj.Set("label", "x"))

	require.Equal(t, []string{"balance", "iban"}, obj.Missing([]string{"label", "balance", "iban", "unknown"}))
	require.False(t, obj.Complete())
}
