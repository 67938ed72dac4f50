package memory

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/netledger/netledger/internal/ledger"
)

// Seed helpers for local dev and tests. They bypass validation on purpose so
// tests can construct arbitrary states.

// SeedAccount inserts an account directly.
func (s *Store) SeedAccount(a ledger.Account) {
	s.mu.Lock()
	s.accounts[a.GUID] = a
	s.mu.Unlock()
}

// SeedEntry inserts an entry directly.
func (s *Store) SeedEntry(e ledger.Entry) {
	s.mu.Lock()
	s.entries[e.GUID] = e
	s.mu.Unlock()
}

// SeedAPIKey inserts an api key directly.
func (s *Store) SeedAPIKey(k ledger.APIKey) {
	s.mu.Lock()
	s.apikeys[k.GUID] = k
	s.mu.Unlock()
}

// TamperEntryAmount overwrites a stored entry's amount, bypassing all
// invariants. Used by verification tests to simulate corruption.
func (s *Store) TamperEntryAmount(guid uuid.UUID, amount decimal.Decimal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[guid]
	if !ok {
		return false
	}
	e.Amount = amount
	s.entries[guid] = e
	return true
}

// EntryCount reports the number of stored entries for an account.
func (s *Store) EntryCount(accountGUID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if e.AccountGUID == accountGUID {
			n++
		}
	}
	return n
}
