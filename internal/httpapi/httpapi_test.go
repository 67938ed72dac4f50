package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"log/slog"

	"github.com/netledger/netledger/internal/events"
	"github.com/netledger/netledger/internal/ledger"
	"github.com/netledger/netledger/internal/lock"
	"github.com/netledger/netledger/internal/service/apikey"
	"github.com/netledger/netledger/internal/service/ledgercore"
	"github.com/netledger/netledger/internal/service/registry"
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

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

const adminKey = "test-admin-key"
const userKey = "test-user-key"

func setup(t *testing.T) (*memory.Store, http.Handler) {
	t.Helper()
	store := memory.New()
	clock := &fakeClock{t: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)}
	locks := lock.NewKeyed()
	notifier := events.NewNotifier(testLogger())

	store.SeedAPIKey(ledger.APIKey{GUID: uuid.New(), Name: "admin", Key: adminKey, Active: true, IsAdmin: true, CreatedUtc: clock.Now()})
	store.SeedAPIKey(ledger.APIKey{GUID: uuid.New(), Name: "user", Key: userKey, Active: true, CreatedUtc: clock.Now()})

	srv := New(
		registry.New(store, locks, notifier, clock),
		ledgercore.New(store, locks, notifier, clock),
		apikey.New(store, clock),
		store,
		testLogger(),
	)
	return store, srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if key != "" {
		req.Header.Set("x-api-key", key)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func createAccount(t *testing.T, h http.Handler, name string) accountResponse {
	t.Helper()
	rec := do(t, h, http.MethodPut, "/v1/accounts", userKey, map[string]any{"Name": name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[accountResponse](t, rec)
}

func TestAuthRequired(t *testing.T) {
	_, h := setup(t)

	rec := do(t, h, http.MethodPut, "/v1/accounts", "", map[string]any{"Name": "X"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPut, "/v1/accounts", "wrong-key", map[string]any{"Name": "X"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Health stays open.
	rec = do(t, h, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAccountLifecycle(t *testing.T) {
	_, h := setup(t)

	a := createAccount(t, h, "Savings")
	require.Equal(t, "Savings", a.Name)
	require.NotEqual(t, uuid.Nil, a.GUID)

	// Duplicate name conflicts.
	rec := do(t, h, http.MethodPut, "/v1/accounts", userKey, map[string]any{"Name": "Savings"})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/accounts/"+a.GUID.String(), userKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/accounts?name=Savings", userKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, a.GUID, decodeBody[accountResponse](t, rec).GUID)

	rec = do(t, h, http.MethodPatch, "/v1/accounts/"+a.GUID.String(), userKey, map[string]any{"Notes": "updated"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "updated", decodeBody[accountResponse](t, rec).Notes)

	rec = do(t, h, http.MethodDelete, "/v1/accounts/"+a.GUID.String(), userKey, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/accounts/"+a.GUID.String(), userKey, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreditCommitBalanceFlow(t *testing.T) {
	_, h := setup(t)
	a := createAccount(t, h, "Flow")
	base := "/v1/accounts/" + a.GUID.String()

	rec := do(t, h, http.MethodPut, base+"/credits", userKey, map[string]any{"Amount": "25.00", "Description": "deposit"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	credit := decodeBody[entryResponse](t, rec)
	require.Equal(t, "Credit", credit.Type)
	require.False(t, credit.IsCommitted)

	rec = do(t, h, http.MethodPut, base+"/debits", userKey, map[string]any{"Amount": "5.00"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodGet, base+"/credits/pending", userKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody[[]entryResponse](t, rec), 1)

	rec = do(t, h, http.MethodPost, base+"/commit", userKey, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decodeBody[balanceResponse](t, rec)
	require.True(t, view.CommittedBalance.Equal(dec("20.00")), "got %s", view.CommittedBalance)
	require.Len(t, view.CommittedEntryGUIDs, 2)

	rec = do(t, h, http.MethodGet, base+"/balance", userKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view = decodeBody[balanceResponse](t, rec)
	require.True(t, view.PendingBalance.Equal(dec("20.00")))

	rec = do(t, h, http.MethodGet, base+"/verify", userKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decodeBody[verifyResponse](t, rec).Valid)
}

func TestBatchAndSelectiveCommit(t *testing.T) {
	_, h := setup(t)
	a := createAccount(t, h, "Batch")
	base := "/v1/accounts/" + a.GUID.String()

	rec := do(t, h, http.MethodPut, base+"/credits/batch", userKey, map[string]any{
		"Entries": []map[string]any{{"Amount": "10"}, {"Amount": "20"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entries := decodeBody[[]entryResponse](t, rec)
	require.Len(t, entries, 2)

	rec = do(t, h, http.MethodPost, base+"/commit", userKey, map[string]any{
		"EntryGUIDs": []string{entries[0].GUID.String()},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeBody[balanceResponse](t, rec)
	require.True(t, view.CommittedBalance.Equal(dec("10")))
	require.Equal(t, 1, view.PendingCreditCount)

	// Committing an already committed entry conflicts.
	rec = do(t, h, http.MethodPost, base+"/commit", userKey, map[string]any{
		"EntryGUIDs": []string{entries[0].GUID.String()},
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestAlreadyCommittedEntry(t *testing.T) {
	_, h := setup(t)
	a := createAccount(t, h, "Immediate")
	base := "/v1/accounts/" + a.GUID.String()

	rec := do(t, h, http.MethodPut, base+"/credits", userKey, map[string]any{"Amount": "40", "AlreadyCommitted": true})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	e := decodeBody[entryResponse](t, rec)
	require.True(t, e.IsCommitted)
	require.NotNil(t, e.CommittedByGUID)

	rec = do(t, h, http.MethodGet, base+"/balance", userKey, nil)
	view := decodeBody[balanceResponse](t, rec)
	require.True(t, view.CommittedBalance.Equal(dec("40")))
}

func TestCancelPendingEntry(t *testing.T) {
	_, h := setup(t)
	a := createAccount(t, h, "Cancel")
	base := "/v1/accounts/" + a.GUID.String()

	rec := do(t, h, http.MethodPut, base+"/debits", userKey, map[string]any{"Amount": "9"})
	e := decodeBody[entryResponse](t, rec)

	rec = do(t, h, http.MethodDelete, base+"/entries/"+e.GUID.String(), userKey, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, base+"/entries/"+e.GUID.String(), userKey, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBalanceAsOfEndpoint(t *testing.T) {
	_, h := setup(t)
	a := createAccount(t, h, "AsOf")
	base := "/v1/accounts/" + a.GUID.String()

	do(t, h, http.MethodPut, base+"/credits", userKey, map[string]any{"Amount": "25"})
	rec := do(t, h, http.MethodPost, base+"/commit", userKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, base+"/balance/asof?timestamp=2026-08-24T11:00:00.000000Z", userKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decodeBody[balanceAsOfResponse](t, rec).Balance.Equal(dec("0")))

	rec = do(t, h, http.MethodGet, base+"/balance/asof?timestamp=2026-08-24T13:00:00.000000Z", userKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decodeBody[balanceAsOfResponse](t, rec).Balance.Equal(dec("25")))

	rec = do(t, h, http.MethodGet, base+"/balance/asof?timestamp=not-a-time", userKey, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, base+"/balance/asof", userKey, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnumerateEntriesEndpoint(t *testing.T) {
	_, h := setup(t)
	a := createAccount(t, h, "Enum")
	base := "/v1/accounts/" + a.GUID.String()

	for i := 0; i < 3; i++ {
		do(t, h, http.MethodPut, base+"/credits", userKey, map[string]any{"Amount": "10"})
	}

	rec := do(t, h, http.MethodPost, base+"/entries/enumerate", userKey, map[string]any{"MaxResults": 2, "Ordering": "CreatedAscending"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decodeBody[enumerationResponse[entryResponse]](t, rec)
	require.Equal(t, 3, page.TotalRecords)
	require.Len(t, page.Objects, 2)
	require.False(t, page.EndOfResults)
	require.NotNil(t, page.ContinuationToken)

	rec = do(t, h, http.MethodPost, base+"/entries/enumerate", userKey, map[string]any{
		"ContinuationToken": page.ContinuationToken.String(),
		"Ordering":          "CreatedAscending",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	page2 := decodeBody[enumerationResponse[entryResponse]](t, rec)
	require.Len(t, page2.Objects, 1)
	require.True(t, page2.EndOfResults)

	// Explicit zero page size is rejected.
	rec = do(t, h, http.MethodPost, base+"/entries/enumerate", userKey, map[string]any{"MaxResults": 0})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnumerateAccountsEndpoint(t *testing.T) {
	_, h := setup(t)
	createAccount(t, h, "Savings")
	createAccount(t, h, "Checking")

	rec := do(t, h, http.MethodPost, "/v1/accounts/enumerate", userKey, map[string]any{"SearchTerm": "sav"})
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[enumerationResponse[accountResponse]](t, rec)
	require.Equal(t, 1, page.TotalRecords)
	require.Equal(t, "Savings", page.Objects[0].Name)
}

func TestAPIKeyAdminGate(t *testing.T) {
	_, h := setup(t)

	// Non-admin keys cannot manage credentials.
	rec := do(t, h, http.MethodPost, "/v1/apikeys", userKey, map[string]any{"Name": "new"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/apikeys", adminKey, map[string]any{"Name": "new", "IsAdmin": false})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[apiKeyResponse](t, rec)
	require.NotEmpty(t, created.Key)

	// The fresh key authenticates.
	rec = do(t, h, http.MethodGet, "/v1/accounts?name=missing", created.Key, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	// Listings omit key material.
	rec = do(t, h, http.MethodGet, "/v1/apikeys", adminKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	keys := decodeBody[[]apiKeyResponse](t, rec)
	require.Len(t, keys, 3)
	for _, k := range keys {
		require.Empty(t, k.Key)
	}

	rec = do(t, h, http.MethodDelete, "/v1/apikeys/"+created.GUID.String(), adminKey, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/accounts?name=missing", created.Key, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestValidationErrors(t *testing.T) {
	_, h := setup(t)
	a := createAccount(t, h, "Validation")
	base := "/v1/accounts/" + a.GUID.String()

	rec := do(t, h, http.MethodPut, base+"/credits", userKey, map[string]any{"Amount": "-1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/v1/accounts/not-a-guid/credits", userKey, map[string]any{"Amount": "1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, base+"/credits", userKey, map[string]any{"Amount": "1", "Unknown": true})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, base+"/credits/batch", userKey, map[string]any{"Entries": []map[string]any{}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
