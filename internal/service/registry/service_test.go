package registry

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"log/slog"

	"github.com/netledger/netledger/internal/errs"
	"github.com/netledger/netledger/internal/events"
	"github.com/netledger/netledger/internal/ledger"
	"github.com/netledger/netledger/internal/lock"
	"github.com/netledger/netledger/internal/storage/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Microsecond)
	return c.t
}

func setup(t *testing.T) (*memory.Store, *Service) {
	t.Helper()
	store := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := &fakeClock{t: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)}
	svc := New(store, lock.NewKeyed(), events.NewNotifier(logger), clock)
	return store, svc
}

func TestCreateAndLookup(t *testing.T) {
	_, svc := setup(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, "  Savings  ", "rainy day")
	require.NoError(t, err)
	require.Equal(t, "Savings", a.Name)
	require.NotEqual(t, uuid.Nil, a.GUID)

	byGUID, err := svc.ByGUID(ctx, a.GUID)
	require.NoError(t, err)
	require.Equal(t, a.GUID, byGUID.GUID)

	byName, err := svc.ByName(ctx, "Savings")
	require.NoError(t, err)
	require.Equal(t, a.GUID, byName.GUID)

	_, err = svc.ByName(ctx, "Checking")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCreateRejectsDuplicatesAndEmptyNames(t *testing.T) {
	_, svc := setup(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "Savings", "")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "Savings", "")
	require.ErrorIs(t, err, errs.ErrConflict)
	_, err = svc.Create(ctx, "   ", "")
	require.ErrorIs(t, err, errs.ErrInvalid)
}

func TestUpdate(t *testing.T) {
	_, svc := setup(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, "Savings", "old notes")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "Checking", "")
	require.NoError(t, err)

	newName := "Emergency Fund"
	newNotes := "new notes"
	updated, err := svc.Update(ctx, a.GUID, &newName, &newNotes)
	require.NoError(t, err)
	require.Equal(t, "Emergency Fund", updated.Name)
	require.Equal(t, "new notes", updated.Notes)

	// Renaming onto an existing name conflicts.
	taken := "Checking"
	_, err = svc.Update(ctx, a.GUID, &taken, nil)
	require.ErrorIs(t, err, errs.ErrConflict)

	// Nil fields leave values unchanged.
	same, err := svc.Update(ctx, a.GUID, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "Emergency Fund", same.Name)
}

func TestDeleteCascades(t *testing.T) {
	store, svc := setup(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, "Savings", "")
	require.NoError(t, err)
	store.SeedEntry(ledger.Entry{
		GUID:        uuid.New(),
		AccountGUID: a.GUID,
		Type:        ledger.EntryTypeCredit,
		Amount:      decimal.RequireFromString("5"),
		CreatedUtc:  time.Now().UTC(),
	})

	require.NoError(t, svc.Delete(ctx, a.GUID))
	require.Zero(t, store.EntryCount(a.GUID))
	_, err = svc.ByGUID(ctx, a.GUID)
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.ErrorIs(t, svc.Delete(ctx, a.GUID), errs.ErrNotFound)
}

func TestEnumerate(t *testing.T) {
	_, svc := setup(t)
	ctx := context.Background()

	for _, name := range []string{"Savings", "Checking", "Savings Backup"} {
		_, err := svc.Create(ctx, name, "")
		require.NoError(t, err)
	}

	all, err := svc.Enumerate(ctx, ledger.AccountQuery{Ordering: ledger.OrderCreatedAscending})
	require.NoError(t, err)
	require.Equal(t, 3, all.TotalRecords)
	require.Equal(t, "Savings", all.Objects[0].Name)
	require.True(t, all.EndOfResults)

	search, err := svc.Enumerate(ctx, ledger.AccountQuery{SearchTerm: "savings"})
	require.NoError(t, err)
	require.Equal(t, 2, search.TotalRecords)

	paged, err := svc.Enumerate(ctx, ledger.AccountQuery{MaxResults: 2, Ordering: ledger.OrderCreatedAscending})
	require.NoError(t, err)
	require.Len(t, paged.Objects, 2)
	require.Equal(t, 1, paged.RecordsRemaining)
	require.NotNil(t, paged.ContinuationToken)

	rest, err := svc.Enumerate(ctx, ledger.AccountQuery{
		ContinuationToken: paged.ContinuationToken,
		Ordering:          ledger.OrderCreatedAscending,
	})
	require.NoError(t, err)
	require.Len(t, rest.Objects, 1)
	require.Equal(t, "Savings Backup", rest.Objects[0].Name)
}

func TestEnumerateBalanceFilter(t *testing.T) {
	store, svc := setup(t)
	ctx := context.Background()

	rich, err := svc.Create(ctx, "Rich", "")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "Poor", "")
	require.NoError(t, err)

	now := time.Now().UTC()
	store.SeedEntry(ledger.Entry{
		GUID:         uuid.New(),
		AccountGUID:  rich.GUID,
		Type:         ledger.EntryTypeBalance,
		Amount:       decimal.RequireFromString("500"),
		IsCommitted:  true,
		CommittedUtc: &now,
		CreatedUtc:   now,
	})

	min := decimal.RequireFromString("100")
	page, err := svc.Enumerate(ctx, ledger.AccountQuery{BalanceMin: &min})
	require.NoError(t, err)
	require.Equal(t, 1, page.TotalRecords)
	require.Equal(t, "Rich", page.Objects[0].Name)

	max := decimal.RequireFromString("100")
	page, err = svc.Enumerate(ctx, ledger.AccountQuery{BalanceMax: &max})
	require.NoError(t, err)
	require.Equal(t, 1, page.TotalRecords)
	require.Equal(t, "Poor", page.Objects[0].Name)
}

func TestCount(t *testing.T) {
	_, svc := setup(t)
	ctx := context.Background()

	n, err := svc.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = svc.Create(ctx, "Savings", "")
	require.NoError(t, err)
	n, err = svc.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
