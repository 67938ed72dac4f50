package postgres

// Package postgres provides a pgx-backed implementation of the persistence
// contract. It is intentionally small and explicit: the schema lives under
// db/migrations, and this package focuses on mapping entities to rows and
// running the necessary statements and transactions.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/netledger/netledger/internal/errs"
	"github.com/netledger/netledger/internal/ledger"
	"github.com/netledger/netledger/internal/storage"
)

// Store holds a pgx connection pool and implements storage.Store. All
// methods are safe for concurrent use; the pool bounds connections per its
// configuration.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// Open establishes a pgx pool using the provided connection string.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

const accountCols = `guid, name, notes, created_utc`

func scanAccount(row pgx.Row) (ledger.Account, error) {
	var a ledger.Account
	var created string
	if err := row.Scan(&a.GUID, &a.Name, &a.Notes, &created); err != nil {
		return ledger.Account{}, err
	}
	t, err := ledger.ParseTime(created)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("parse created_utc: %w", err)
	}
	a.CreatedUtc = t
	return a, nil
}

// --- Accounts ---

func (s *Store) CreateAccount(ctx context.Context, a ledger.Account) error {
	_, err := s.pool.Exec(ctx, `
		insert into accounts (guid, name, notes, created_utc)
		values ($1,$2,$3,$4)
	`, a.GUID, a.Name, a.Notes, ledger.FormatTime(a.CreatedUtc))
	return err
}

func (s *Store) AccountByGUID(ctx context.Context, guid uuid.UUID) (ledger.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx, `
		select `+accountCols+` from accounts where guid = $1
	`, guid))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, err
}

func (s *Store) AccountByName(ctx context.Context, name string) (ledger.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx, `
		select `+accountCols+` from accounts where name = $1
	`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, err
}

func (s *Store) Accounts(ctx context.Context) ([]ledger.Account, error) {
	return s.queryAccounts(ctx, `
		select `+accountCols+` from accounts order by created_utc asc, guid asc
	`)
}

func (s *Store) SearchAccountsByName(ctx context.Context, term string) ([]ledger.Account, error) {
	return s.queryAccounts(ctx, `
		select `+accountCols+` from accounts
		where name ilike '%' || $1 || '%'
		order by created_utc asc, guid asc
	`, term)
}

func (s *Store) queryAccounts(ctx context.Context, sql string, args ...any) ([]ledger.Account, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) UpdateAccount(ctx context.Context, a ledger.Account) error {
	ct, err := s.pool.Exec(ctx, `
		update accounts set name=$1, notes=$2 where guid=$3
	`, a.Name, a.Notes, a.GUID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Store) AccountExistsByGUID(ctx context.Context, guid uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `select exists(select 1 from accounts where guid=$1)`, guid).Scan(&exists)
	return exists, err
}

func (s *Store) AccountExistsByName(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `select exists(select 1 from accounts where name=$1)`, name).Scan(&exists)
	return exists, err
}

func (s *Store) CountAccounts(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `select count(*) from accounts`).Scan(&n)
	return n, err
}

// --- Entries ---

const entryCols = `guid, account_guid, type, amount::text, description, replaces, is_committed, committed_by_guid, committed_utc, created_utc`

func scanEntry(row pgx.Row) (ledger.Entry, error) {
	var (
		e            ledger.Entry
		amount       string
		committedUtc *string
		created      string
	)
	if err := row.Scan(&e.GUID, &e.AccountGUID, &e.Type, &amount, &e.Description, &e.Replaces, &e.IsCommitted, &e.CommittedByGUID, &committedUtc, &created); err != nil {
		return ledger.Entry{}, err
	}
	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return ledger.Entry{}, fmt.Errorf("parse amount: %w", err)
	}
	if e.CreatedUtc, err = ledger.ParseTime(created); err != nil {
		return ledger.Entry{}, fmt.Errorf("parse created_utc: %w", err)
	}
	if committedUtc != nil {
		t, err := ledger.ParseTime(*committedUtc)
		if err != nil {
			return ledger.Entry{}, fmt.Errorf("parse committed_utc: %w", err)
		}
		e.CommittedUtc = &t
	}
	return e, nil
}

func insertEntry(ctx context.Context, ex executor, e ledger.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	var committedUtc *string
	if e.CommittedUtc != nil {
		s := ledger.FormatTime(*e.CommittedUtc)
		committedUtc = &s
	}
	_, err := ex.Exec(ctx, `
		insert into entries (guid, account_guid, type, amount, description, replaces, is_committed, committed_by_guid, committed_utc, created_utc)
		values ($1,$2,$3,$4::numeric,$5,$6,$7,$8,$9,$10)
	`, e.GUID, e.AccountGUID, string(e.Type), e.Amount.StringFixed(8), e.Description, e.Replaces, e.IsCommitted, e.CommittedByGUID, committedUtc, ledger.FormatTime(e.CreatedUtc))
	return err
}

// executor abstracts pool vs transaction execution. Both *pgxpool.Pool and
// pgx.Tx satisfy it.
type executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *Store) CreateEntry(ctx context.Context, e ledger.Entry) error {
	return insertEntry(ctx, s.pool, e)
}

func (s *Store) EntryByGUID(ctx context.Context, accountGUID, entryGUID uuid.UUID) (ledger.Entry, error) {
	e, err := scanEntry(s.pool.QueryRow(ctx, `
		select `+entryCols+` from entries where guid = $1 and account_guid = $2
	`, entryGUID, accountGUID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Entry{}, errs.ErrNotFound
	}
	return e, err
}

// filterClauses renders the optional entry-filter dimensions as SQL
// predicates starting at the given placeholder index.
func filterClauses(f ledger.EntryFilter, args []any) (string, []any) {
	sql := ""
	add := func(clause string, v any) {
		args = append(args, v)
		sql += fmt.Sprintf(" and "+clause, len(args))
	}
	if f.CreatedAfter != nil {
		add("created_utc > $%d", ledger.FormatTime(*f.CreatedAfter))
	}
	if f.CreatedBefore != nil {
		add("created_utc < $%d", ledger.FormatTime(*f.CreatedBefore))
	}
	if f.MinAmount != nil {
		add("amount >= $%d::numeric", f.MinAmount.StringFixed(8))
	}
	if f.MaxAmount != nil {
		add("amount <= $%d::numeric", f.MaxAmount.StringFixed(8))
	}
	if f.Type != nil {
		add("type = $%d", string(*f.Type))
	}
	if f.IsCommitted != nil {
		add("is_committed = $%d", *f.IsCommitted)
	}
	return sql, args
}

func (s *Store) EntriesByAccount(ctx context.Context, accountGUID uuid.UUID, f ledger.EntryFilter) ([]ledger.Entry, error) {
	args := []any{accountGUID}
	where, args := filterClauses(f, args)
	return s.queryEntries(ctx, `
		select `+entryCols+` from entries
		where account_guid = $1`+where+`
		order by created_utc asc, guid asc
	`, args...)
}

func (s *Store) queryEntries(ctx context.Context, sql string, args ...any) ([]ledger.Entry, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EnumerateEntries fetches the full ordered match set and slices the page in
// memory; total_records requires the full count either way.
func (s *Store) EnumerateEntries(ctx context.Context, accountGUID uuid.UUID, q ledger.EnumerationQuery) (ledger.EnumerationResult[ledger.Entry], error) {
	var zero ledger.EnumerationResult[ledger.Entry]
	matched, err := s.EntriesByAccount(ctx, accountGUID, q.Filter())
	if err != nil {
		return zero, err
	}
	ledger.SortEntries(matched, q.Ordering)
	return ledger.Paginate(matched, func(e ledger.Entry) uuid.UUID { return e.GUID }, q.ContinuationToken, q.Skip, q.MaxResults), nil
}

func (s *Store) SumByType(ctx context.Context, accountGUID uuid.UUID, typ ledger.EntryType, committed bool) (decimal.Decimal, error) {
	var sum string
	err := s.pool.QueryRow(ctx, `
		select coalesce(sum(amount), 0)::text from entries
		where account_guid = $1 and type = $2 and is_committed = $3
	`, accountGUID, string(typ), committed).Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(sum)
}

func (s *Store) LatestBalance(ctx context.Context, accountGUID uuid.UUID) (*ledger.Entry, error) {
	e, err := scanEntry(s.pool.QueryRow(ctx, `
		select `+entryCols+` from entries
		where account_guid = $1 and type = 'Balance'
		order by created_utc desc, guid desc
		limit 1
	`, accountGUID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) EntriesCommittedBy(ctx context.Context, accountGUID, balanceGUID uuid.UUID) ([]ledger.Entry, error) {
	return s.queryEntries(ctx, `
		select `+entryCols+` from entries
		where account_guid = $1 and committed_by_guid = $2
		order by created_utc asc, guid asc
	`, accountGUID, balanceGUID)
}

func (s *Store) DeleteEntry(ctx context.Context, accountGUID, entryGUID uuid.UUID) error {
	ct, err := s.pool.Exec(ctx, `
		delete from entries where guid = $1 and account_guid = $2
	`, entryGUID, accountGUID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// --- API keys ---

const apikeyCols = `guid, name, apikey, active, is_admin, created_utc`

func scanAPIKey(row pgx.Row) (ledger.APIKey, error) {
	var k ledger.APIKey
	var created string
	if err := row.Scan(&k.GUID, &k.Name, &k.Key, &k.Active, &k.IsAdmin, &created); err != nil {
		return ledger.APIKey{}, err
	}
	t, err := ledger.ParseTime(created)
	if err != nil {
		return ledger.APIKey{}, fmt.Errorf("parse created_utc: %w", err)
	}
	k.CreatedUtc = t
	return k, nil
}

func (s *Store) CreateAPIKey(ctx context.Context, k ledger.APIKey) error {
	_, err := s.pool.Exec(ctx, `
		insert into apikeys (guid, name, apikey, active, is_admin, created_utc)
		values ($1,$2,$3,$4,$5,$6)
	`, k.GUID, k.Name, k.Key, k.Active, k.IsAdmin, ledger.FormatTime(k.CreatedUtc))
	return err
}

func (s *Store) APIKeyByGUID(ctx context.Context, guid uuid.UUID) (ledger.APIKey, error) {
	k, err := scanAPIKey(s.pool.QueryRow(ctx, `
		select `+apikeyCols+` from apikeys where guid = $1
	`, guid))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.APIKey{}, errs.ErrNotFound
	}
	return k, err
}

func (s *Store) APIKeyByKey(ctx context.Context, key string) (ledger.APIKey, error) {
	k, err := scanAPIKey(s.pool.QueryRow(ctx, `
		select `+apikeyCols+` from apikeys where apikey = $1
	`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.APIKey{}, errs.ErrNotFound
	}
	return k, err
}

func (s *Store) APIKeys(ctx context.Context) ([]ledger.APIKey, error) {
	rows, err := s.pool.Query(ctx, `
		select `+apikeyCols+` from apikeys order by created_utc asc, guid asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.APIKey, 0)
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) UpdateAPIKey(ctx context.Context, k ledger.APIKey) error {
	ct, err := s.pool.Exec(ctx, `
		update apikeys set name=$1, active=$2, is_admin=$3 where guid=$4
	`, k.Name, k.Active, k.IsAdmin, k.GUID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAPIKey(ctx context.Context, guid uuid.UUID) error {
	ct, err := s.pool.Exec(ctx, `delete from apikeys where guid = $1`, guid)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// --- Transactions ---

// BeginTx starts a database transaction implementing storage.Tx.
func (s *Store) BeginTx(ctx context.Context) (storage.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// Tx wraps a pgx.Tx with the contract's transactional operations.
type Tx struct{ tx pgx.Tx }

func (t *Tx) CreateEntry(ctx context.Context, e ledger.Entry) error {
	return insertEntry(ctx, t.tx, e)
}

// MarkCommitted tags each entry, requiring every one to be a pending credit
// or debit on the account; any miss fails the batch with errs.ErrConflict
// and the caller rolls the transaction back.
func (t *Tx) MarkCommitted(ctx context.Context, accountGUID uuid.UUID, entryGUIDs []uuid.UUID, balanceGUID uuid.UUID, committedUtc time.Time) error {
	stamp := ledger.FormatTime(committedUtc)
	for _, guid := range entryGUIDs {
		ct, err := t.tx.Exec(ctx, `
			update entries
			set is_committed = true, committed_by_guid = $1, committed_utc = $2
			where guid = $3 and account_guid = $4
			  and type in ('Credit','Debit') and is_committed = false
		`, balanceGUID, stamp, guid, accountGUID)
		if err != nil {
			return err
		}
		if ct.RowsAffected() != 1 {
			return errs.ErrConflict
		}
	}
	return nil
}

func (t *Tx) DeleteEntriesByAccount(ctx context.Context, accountGUID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `delete from entries where account_guid = $1`, accountGUID)
	return err
}

func (t *Tx) DeleteAccount(ctx context.Context, guid uuid.UUID) error {
	ct, err := t.tx.Exec(ctx, `delete from accounts where guid = $1`, guid)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (t *Tx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *Tx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }
