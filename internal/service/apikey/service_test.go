package apikey

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/netledger/netledger/internal/errs"
	"github.com/netledger/netledger/internal/ledger"
	"github.com/netledger/netledger/internal/storage/memory"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func setup(t *testing.T) (*memory.Store, *Service) {
	t.Helper()
	store := memory.New()
	return store, New(store, fixedClock{t: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)})
}

func TestCreateAndAuthenticate(t *testing.T) {
	_, svc := setup(t)
	ctx := context.Background()

	k, err := svc.Create(ctx, "ci", false)
	require.NoError(t, err)
	require.Len(t, k.Key, 64)
	require.True(t, k.Active)
	require.False(t, k.IsAdmin)

	got, err := svc.Authenticate(ctx, k.Key)
	require.NoError(t, err)
	require.Equal(t, k.GUID, got.GUID)

	_, err = svc.Authenticate(ctx, "nope")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = svc.Authenticate(ctx, "")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestAuthenticateInactiveKey(t *testing.T) {
	store, svc := setup(t)
	ctx := context.Background()

	k := ledger.APIKey{GUID: uuid.New(), Name: "revoked", Key: "deadbeef", Active: false, CreatedUtc: time.Now().UTC()}
	store.SeedAPIKey(k)

	_, err := svc.Authenticate(ctx, k.Key)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestCreateRejectsEmptyName(t *testing.T) {
	_, svc := setup(t)
	_, err := svc.Create(context.Background(), "  ", false)
	require.ErrorIs(t, err, errs.ErrInvalid)
}

func TestBootstrapIdempotent(t *testing.T) {
	_, svc := setup(t)
	ctx := context.Background()

	first, err := svc.Bootstrap(ctx, "admin-secret")
	require.NoError(t, err)
	require.True(t, first.IsAdmin)

	second, err := svc.Bootstrap(ctx, "admin-secret")
	require.NoError(t, err)
	require.Equal(t, first.GUID, second.GUID)

	keys, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
}

func TestDelete(t *testing.T) {
	_, svc := setup(t)
	ctx := context.Background()

	k, err := svc.Create(ctx, "temp", true)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, k.GUID))

	_, err = svc.ByGUID(ctx, k.GUID)
	require.ErrorIs(t, err, errs.ErrNotFound)
	_, err = svc.Authenticate(ctx, k.Key)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}
