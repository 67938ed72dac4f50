// Package storage defines the narrow persistence contract the ledger core
// consumes. Two implementations exist: an in-memory store for development
// and tests, and a pgx-backed Postgres store. Any relational engine
// satisfying this contract is acceptable.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/netledger/netledger/internal/ledger"
)

// AccountStore provides CRUD and lookups over accounts. Absent rows surface
// as errs.ErrNotFound.
type AccountStore interface {
	CreateAccount(ctx context.Context, a ledger.Account) error
	AccountByGUID(ctx context.Context, guid uuid.UUID) (ledger.Account, error)
	AccountByName(ctx context.Context, name string) (ledger.Account, error)
	// Accounts returns every account ordered by (created_utc, guid) ascending.
	Accounts(ctx context.Context) ([]ledger.Account, error)
	// SearchAccountsByName returns accounts whose name contains term,
	// case-insensitively, in the same deterministic order as Accounts.
	SearchAccountsByName(ctx context.Context, term string) ([]ledger.Account, error)
	UpdateAccount(ctx context.Context, a ledger.Account) error
	AccountExistsByGUID(ctx context.Context, guid uuid.UUID) (bool, error)
	AccountExistsByName(ctx context.Context, name string) (bool, error)
	CountAccounts(ctx context.Context) (int, error)
}

// EntryStore provides CRUD and the typed aggregations the commit and balance
// paths need.
type EntryStore interface {
	CreateEntry(ctx context.Context, e ledger.Entry) error
	EntryByGUID(ctx context.Context, accountGUID, entryGUID uuid.UUID) (ledger.Entry, error)
	// EntriesByAccount returns the account's entries matching the filter,
	// ordered by (created_utc, guid) ascending.
	EntriesByAccount(ctx context.Context, accountGUID uuid.UUID, f ledger.EntryFilter) ([]ledger.Entry, error)
	// EnumerateEntries returns one page of the account's entries under the
	// enumeration contract. The query must be normalized.
	EnumerateEntries(ctx context.Context, accountGUID uuid.UUID, q ledger.EnumerationQuery) (ledger.EnumerationResult[ledger.Entry], error)
	// SumByType returns the decimal sum of amounts for entries of the given
	// type and committed state.
	SumByType(ctx context.Context, accountGUID uuid.UUID, typ ledger.EntryType, committed bool) (decimal.Decimal, error)
	// LatestBalance returns the Balance entry with the greatest created_utc,
	// tiebroken by guid; nil when the account has never committed.
	LatestBalance(ctx context.Context, accountGUID uuid.UUID) (*ledger.Entry, error)
	// EntriesCommittedBy returns the credits and debits tagged with the
	// given Balance entry, ordered by (created_utc, guid) ascending.
	EntriesCommittedBy(ctx context.Context, accountGUID, balanceGUID uuid.UUID) ([]ledger.Entry, error)
	DeleteEntry(ctx context.Context, accountGUID, entryGUID uuid.UUID) error
}

// APIKeyStore persists the authentication collaborator's credentials.
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, k ledger.APIKey) error
	APIKeyByGUID(ctx context.Context, guid uuid.UUID) (ledger.APIKey, error)
	// APIKeyByKey looks a credential up by its opaque key material.
	APIKeyByKey(ctx context.Context, key string) (ledger.APIKey, error)
	APIKeys(ctx context.Context) ([]ledger.APIKey, error)
	UpdateAPIKey(ctx context.Context, k ledger.APIKey) error
	DeleteAPIKey(ctx context.Context, guid uuid.UUID) error
}

// Tx scopes the mutations that must land atomically: the commit path's
// balance insert plus entry tagging, and the account cascade delete.
type Tx interface {
	CreateEntry(ctx context.Context, e ledger.Entry) error
	// MarkCommitted tags each listed entry with the balance that committed
	// it. The whole batch fails with errs.ErrConflict unless every entry
	// exists, belongs to the account, is a credit or debit, and is pending.
	MarkCommitted(ctx context.Context, accountGUID uuid.UUID, entryGUIDs []uuid.UUID, balanceGUID uuid.UUID, committedUtc time.Time) error
	DeleteEntriesByAccount(ctx context.Context, accountGUID uuid.UUID) error
	DeleteAccount(ctx context.Context, guid uuid.UUID) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is the full adapter surface the services compose.
type Store interface {
	AccountStore
	EntryStore
	APIKeyStore
	BeginTx(ctx context.Context) (Tx, error)
}
