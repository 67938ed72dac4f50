// Package memory provides an in-memory implementation of the persistence
// contract used for development and tests. It keeps code paths easy to
// follow while allowing a real database to be plugged in unchanged.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/netledger/netledger/internal/errs"
	"github.com/netledger/netledger/internal/ledger"
	"github.com/netledger/netledger/internal/storage"
)

// Store is an in-memory implementation of storage.Store guarded by an
// RWMutex for concurrent reads and writes.
type Store struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]ledger.Account
	entries  map[uuid.UUID]ledger.Entry
	apikeys  map[uuid.UUID]ledger.APIKey
}

var _ storage.Store = (*Store)(nil)

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		accounts: make(map[uuid.UUID]ledger.Account),
		entries:  make(map[uuid.UUID]ledger.Entry),
		apikeys:  make(map[uuid.UUID]ledger.APIKey),
	}
}

// Reset drops all state. Test helper.
func (s *Store) Reset() {
	s.mu.Lock()
	s.accounts = map[uuid.UUID]ledger.Account{}
	s.entries = map[uuid.UUID]ledger.Entry{}
	s.apikeys = map[uuid.UUID]ledger.APIKey{}
	s.mu.Unlock()
}

// Ready reports readiness; the in-memory store always is.
func (s *Store) Ready(ctx context.Context) error { return ctx.Err() }

// --- Accounts ---

func (s *Store) CreateAccount(_ context.Context, a ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.GUID]; ok {
		return errs.ErrConflict
	}
	s.accounts[a.GUID] = a
	return nil
}

func (s *Store) AccountByGUID(_ context.Context, guid uuid.UUID) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[guid]
	if !ok {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, nil
}

func (s *Store) AccountByName(_ context.Context, name string) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if a.Name == name {
			return a, nil
		}
	}
	return ledger.Account{}, errs.ErrNotFound
}

func (s *Store) Accounts(_ context.Context) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accountsLocked(""), nil
}

func (s *Store) SearchAccountsByName(_ context.Context, term string) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accountsLocked(term), nil
}

// accountsLocked returns accounts matching the optional name substring in
// (created_utc, guid) ascending order.
func (s *Store) accountsLocked(term string) []ledger.Account {
	term = strings.ToLower(term)
	out := make([]ledger.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		if term != "" && !strings.Contains(strings.ToLower(a.Name), term) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedUtc.Equal(out[j].CreatedUtc) {
			return out[i].CreatedUtc.Before(out[j].CreatedUtc)
		}
		return ledger.CompareGUID(out[i].GUID, out[j].GUID) < 0
	})
	return out
}

func (s *Store) UpdateAccount(_ context.Context, a ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.GUID]; !ok {
		return errs.ErrNotFound
	}
	s.accounts[a.GUID] = a
	return nil
}

func (s *Store) AccountExistsByGUID(_ context.Context, guid uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[guid]
	return ok, nil
}

func (s *Store) AccountExistsByName(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if a.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CountAccounts(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts), nil
}

// --- Entries ---

func (s *Store) CreateEntry(_ context.Context, e ledger.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createEntryLocked(e)
}

func (s *Store) createEntryLocked(e ledger.Entry) error {
	if _, ok := s.entries[e.GUID]; ok {
		return errs.ErrConflict
	}
	s.entries[e.GUID] = e
	return nil
}

func (s *Store) EntryByGUID(_ context.Context, accountGUID, entryGUID uuid.UUID) (ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[entryGUID]
	if !ok || e.AccountGUID != accountGUID {
		return ledger.Entry{}, errs.ErrNotFound
	}
	return e, nil
}

func (s *Store) EntriesByAccount(_ context.Context, accountGUID uuid.UUID, f ledger.EntryFilter) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entriesLocked(accountGUID, f), nil
}

func (s *Store) entriesLocked(accountGUID uuid.UUID, f ledger.EntryFilter) []ledger.Entry {
	out := make([]ledger.Entry, 0)
	for _, e := range s.entries {
		if e.AccountGUID != accountGUID || !f.Matches(e) {
			continue
		}
		out = append(out, e)
	}
	ledger.SortEntries(out, ledger.OrderCreatedAscending)
	return out
}

func (s *Store) EnumerateEntries(_ context.Context, accountGUID uuid.UUID, q ledger.EnumerationQuery) (ledger.EnumerationResult[ledger.Entry], error) {
	s.mu.RLock()
	matched := s.entriesLocked(accountGUID, q.Filter())
	s.mu.RUnlock()
	ledger.SortEntries(matched, q.Ordering)
	return ledger.Paginate(matched, func(e ledger.Entry) uuid.UUID { return e.GUID }, q.ContinuationToken, q.Skip, q.MaxResults), nil
}

func (s *Store) SumByType(_ context.Context, accountGUID uuid.UUID, typ ledger.EntryType, committed bool) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := decimal.Zero
	for _, e := range s.entries {
		if e.AccountGUID == accountGUID && e.Type == typ && e.IsCommitted == committed {
			sum = sum.Add(e.Amount)
		}
	}
	return sum, nil
}

func (s *Store) LatestBalance(_ context.Context, accountGUID uuid.UUID) (*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestBalanceLocked(accountGUID), nil
}

func (s *Store) latestBalanceLocked(accountGUID uuid.UUID) *ledger.Entry {
	var latest *ledger.Entry
	for guid := range s.entries {
		e := s.entries[guid]
		if e.AccountGUID != accountGUID || e.Type != ledger.EntryTypeBalance {
			continue
		}
		if latest == nil ||
			e.CreatedUtc.After(latest.CreatedUtc) ||
			(e.CreatedUtc.Equal(latest.CreatedUtc) && ledger.CompareGUID(e.GUID, latest.GUID) > 0) {
			copied := e
			latest = &copied
		}
	}
	return latest
}

func (s *Store) EntriesCommittedBy(_ context.Context, accountGUID, balanceGUID uuid.UUID) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Entry, 0)
	for _, e := range s.entries {
		if e.AccountGUID != accountGUID || e.CommittedByGUID == nil || *e.CommittedByGUID != balanceGUID {
			continue
		}
		out = append(out, e)
	}
	ledger.SortEntries(out, ledger.OrderCreatedAscending)
	return out, nil
}

func (s *Store) DeleteEntry(_ context.Context, accountGUID, entryGUID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryGUID]
	if !ok || e.AccountGUID != accountGUID {
		return errs.ErrNotFound
	}
	delete(s.entries, entryGUID)
	return nil
}

// --- API keys ---

func (s *Store) CreateAPIKey(_ context.Context, k ledger.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apikeys[k.GUID]; ok {
		return errs.ErrConflict
	}
	for _, other := range s.apikeys {
		if other.Key == k.Key {
			return errs.ErrConflict
		}
	}
	s.apikeys[k.GUID] = k
	return nil
}

func (s *Store) APIKeyByGUID(_ context.Context, guid uuid.UUID) (ledger.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.apikeys[guid]
	if !ok {
		return ledger.APIKey{}, errs.ErrNotFound
	}
	return k, nil
}

func (s *Store) APIKeyByKey(_ context.Context, key string) (ledger.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range s.apikeys {
		if k.Key == key {
			return k, nil
		}
	}
	return ledger.APIKey{}, errs.ErrNotFound
}

func (s *Store) APIKeys(_ context.Context) ([]ledger.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.APIKey, 0, len(s.apikeys))
	for _, k := range s.apikeys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedUtc.Equal(out[j].CreatedUtc) {
			return out[i].CreatedUtc.Before(out[j].CreatedUtc)
		}
		return ledger.CompareGUID(out[i].GUID, out[j].GUID) < 0
	})
	return out, nil
}

func (s *Store) UpdateAPIKey(_ context.Context, k ledger.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apikeys[k.GUID]; !ok {
		return errs.ErrNotFound
	}
	s.apikeys[k.GUID] = k
	return nil
}

func (s *Store) DeleteAPIKey(_ context.Context, guid uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apikeys[guid]; !ok {
		return errs.ErrNotFound
	}
	delete(s.apikeys, guid)
	return nil
}

// --- Transactions ---

// BeginTx returns a transaction that buffers mutations and applies them
// atomically on Commit under the write lock.
func (s *Store) BeginTx(_ context.Context) (storage.Tx, error) {
	return &tx{s: s}, nil
}

type markOp struct {
	accountGUID  uuid.UUID
	entryGUIDs   []uuid.UUID
	balanceGUID  uuid.UUID
	committedUtc time.Time
}

type tx struct {
	s           *Store
	creates     []ledger.Entry
	marks       []markOp
	delEntries  []uuid.UUID
	delAccounts []uuid.UUID
	done        bool
}

func (t *tx) CreateEntry(_ context.Context, e ledger.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	t.creates = append(t.creates, e)
	return nil
}

func (t *tx) MarkCommitted(_ context.Context, accountGUID uuid.UUID, entryGUIDs []uuid.UUID, balanceGUID uuid.UUID, committedUtc time.Time) error {
	t.marks = append(t.marks, markOp{accountGUID: accountGUID, entryGUIDs: entryGUIDs, balanceGUID: balanceGUID, committedUtc: committedUtc})
	return nil
}

func (t *tx) DeleteEntriesByAccount(_ context.Context, accountGUID uuid.UUID) error {
	t.delEntries = append(t.delEntries, accountGUID)
	return nil
}

func (t *tx) DeleteAccount(_ context.Context, guid uuid.UUID) error {
	t.delAccounts = append(t.delAccounts, guid)
	return nil
}

// Commit validates the buffered operations against current state and applies
// them all or none.
func (t *tx) Commit(_ context.Context) error {
	if t.done {
		return errs.ErrInternal
	}
	t.done = true
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	// Validate before mutating anything. Marks may target entries created
	// earlier in this same transaction.
	created := make(map[uuid.UUID]ledger.Entry, len(t.creates))
	for _, e := range t.creates {
		if _, ok := t.s.entries[e.GUID]; ok {
			return errs.ErrConflict
		}
		created[e.GUID] = e
	}
	for _, m := range t.marks {
		for _, guid := range m.entryGUIDs {
			e, ok := t.s.entries[guid]
			if !ok {
				e, ok = created[guid]
			}
			if !ok || e.AccountGUID != m.accountGUID || !e.IsPending() {
				return errs.ErrConflict
			}
		}
	}
	for _, guid := range t.delAccounts {
		if _, ok := t.s.accounts[guid]; !ok {
			return errs.ErrNotFound
		}
	}

	for _, e := range t.creates {
		t.s.entries[e.GUID] = e
	}
	for _, m := range t.marks {
		for _, guid := range m.entryGUIDs {
			e := t.s.entries[guid]
			e.IsCommitted = true
			by := m.balanceGUID
			at := m.committedUtc
			e.CommittedByGUID = &by
			e.CommittedUtc = &at
			t.s.entries[guid] = e
		}
	}
	for _, accountGUID := range t.delEntries {
		for guid, e := range t.s.entries {
			if e.AccountGUID == accountGUID {
				delete(t.s.entries, guid)
			}
		}
	}
	for _, guid := range t.delAccounts {
		delete(t.s.accounts, guid)
	}
	return nil
}

func (t *tx) Rollback(_ context.Context) error {
	t.done = true
	t.creates, t.marks, t.delEntries, t.delAccounts = nil, nil, nil, nil
	return nil
}
