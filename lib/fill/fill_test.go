package fill

import (
	"context"
	"testing"

	"pagekit/lib/objects"

	"github.com/stretchr/testify/require"
)

func newAccount(t *testing.T) *objects.Object {
	t.Helper()
	obj, err := objects.New("account", "42", "label", "balance", "iban")
	require.NoError(t, err)
	require.NoError(t, obj.Set("label", "Checking"))
	return obj
}

func TestFillDispatchesMissingOnly(t *testing.T) {
	obj := newAccount(t)
	c := NewCoordinator()

	var got []string
	require.NoError(t, c.Register("account", func(ctx context.Context, o *objects.Object, missing []string) error {
		got = missing
		for _, f := range missing {
			require.NoError(t, o.Set(f, "filled"))
		}
		return nil
	}))
	c.Freeze()

	require.NoError(t, c.Fill(context.Background(), obj, "label", "balance", "iban"))
	require.Equal(t, []string{"balance", "iban"}, got)
	require.Equal(t, "filled", obj.GetString("balance"))
}

func TestFillIsIdempotent(t *testing.T) {
	obj := newAccount(t)
	c := NewCoordinator()

	calls := 0
	require.NoError(t, c.Register("account", func(ctx context.Context, o *objects.Object, missing []string) error {
		calls++
		for _, f := range missing {
			require.NoError(t, o.Set(f, 1.0))
		}
		return nil
	}))

	ctx := context.Background()
	require.NoError(t, c.Fill(ctx, obj, "balance"))
	require.NoError(t, c.Fill(ctx, obj, "balance"))
	require.Equal(t, 1, calls)

	// nothing requested is missing: the routine is never called
	require.NoError(t, c.Fill(ctx, obj, "label"))
	require.Equal(t, 1, calls)
}

func TestFillUnsupportedType(t *testing.T) {
	obj := newAccount(t)
	c := NewCoordinator()
	err := c.Fill(context.Background(), obj, "balance")
	require.ErrorIs(t, err, ErrUnsupportedObjectType)
}

func TestFillMarksUnprovidedNotAvailable(t *testing.T) {
	obj := newAccount(t)
	c := NewCoordinator()
	require.NoError(t, c.Register("account", func(ctx context.Context, o *objects.Object, missing []string) error {
		// the routine only knows about balances
		return o.Set("balance", 10.0)
	}))

	require.NoError(t, c.Fill(context.Background(), obj, "balance", "iban"))
	require.Equal(t, objects.Loaded, obj.State("balance"))
	require.Equal(t, objects.NotAvailable, obj.State("iban"))

	// monotone across calls: nothing regresses
	require.NoError(t, c.Fill(context.Background(), obj, "balance", "iban"))
	require.Equal(t, objects.Loaded, obj.State("balance"))
	require.Equal(t, objects.NotAvailable, obj.State("iban"))
}
