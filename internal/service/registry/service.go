// Package registry implements account lifecycle: creation under name
// uniqueness, lookup, enumeration with the balance-range filter, notes
// updates, and the cascading delete that removes an account together with
// every entry it owns.
package registry

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/netledger/netledger/internal/errs"
	"github.com/netledger/netledger/internal/events"
	"github.com/netledger/netledger/internal/ledger"
	"github.com/netledger/netledger/internal/lock"
	"github.com/netledger/netledger/internal/storage"
)

// Store defines the persistence operations the registry needs. The entry
// side is used for the balance filter and the cascade delete.
type Store interface {
	storage.AccountStore
	LatestBalance(ctx context.Context, accountGUID uuid.UUID) (*ledger.Entry, error)
	BeginTx(ctx context.Context) (storage.Tx, error)
}

// Service is the account registry. Construct with New.
type Service struct {
	store    Store
	locks    *lock.Keyed
	notifier *events.Notifier
	clock    ledger.Clock
}

// New constructs the registry sharing the ledger core's lock table.
func New(store Store, locks *lock.Keyed, notifier *events.Notifier, clock ledger.Clock) *Service {
	return &Service{store: store, locks: locks, notifier: notifier, clock: clock}
}

// Create registers a new account. Names are unique across the registry;
// a duplicate fails with errs.ErrConflict.
func (s *Service) Create(ctx context.Context, name, notes string) (ledger.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ledger.Account{}, errs.ErrInvalid
	}
	exists, err := s.store.AccountExistsByName(ctx, name)
	if err != nil {
		return ledger.Account{}, err
	}
	if exists {
		return ledger.Account{}, errs.ErrConflict
	}
	a := ledger.Account{
		GUID:       uuid.New(),
		Name:       name,
		Notes:      notes,
		CreatedUtc: s.clock.Now(),
	}
	if err := s.store.CreateAccount(ctx, a); err != nil {
		return ledger.Account{}, err
	}
	s.notifier.Emit(events.Event{Type: events.AccountCreated, AccountGUID: a.GUID})
	return a, nil
}

// ByGUID fetches an account by guid.
func (s *Service) ByGUID(ctx context.Context, guid uuid.UUID) (ledger.Account, error) {
	if guid == uuid.Nil {
		return ledger.Account{}, errs.ErrInvalid
	}
	return s.store.AccountByGUID(ctx, guid)
}

// ByName fetches an account by exact name.
func (s *Service) ByName(ctx context.Context, name string) (ledger.Account, error) {
	if name == "" {
		return ledger.Account{}, errs.ErrInvalid
	}
	return s.store.AccountByName(ctx, name)
}

// Update applies name and/or notes changes. A nil field is left unchanged;
// a renamed account keeps the uniqueness rule.
func (s *Service) Update(ctx context.Context, guid uuid.UUID, name, notes *string) (ledger.Account, error) {
	if guid == uuid.Nil {
		return ledger.Account{}, errs.ErrInvalid
	}
	a, err := s.store.AccountByGUID(ctx, guid)
	if err != nil {
		return ledger.Account{}, err
	}
	if name != nil {
		newName := strings.TrimSpace(*name)
		if newName == "" {
			return ledger.Account{}, errs.ErrInvalid
		}
		if newName != a.Name {
			exists, err := s.store.AccountExistsByName(ctx, newName)
			if err != nil {
				return ledger.Account{}, err
			}
			if exists {
				return ledger.Account{}, errs.ErrConflict
			}
			a.Name = newName
		}
	}
	if notes != nil {
		a.Notes = *notes
	}
	if err := s.store.UpdateAccount(ctx, a); err != nil {
		return ledger.Account{}, err
	}
	return a, nil
}

// Enumerate returns one page of accounts. The optional balance range filter
// requires computing each candidate's committed balance, so all matches are
// fetched in deterministic order, the predicate applied in memory, and the
// page sliced afterwards.
func (s *Service) Enumerate(ctx context.Context, q ledger.AccountQuery) (ledger.EnumerationResult[ledger.Account], error) {
	var zero ledger.EnumerationResult[ledger.Account]
	if err := q.Normalize(); err != nil {
		return zero, err
	}
	var (
		candidates []ledger.Account
		err        error
	)
	if q.SearchTerm != "" {
		candidates, err = s.store.SearchAccountsByName(ctx, q.SearchTerm)
	} else {
		candidates, err = s.store.Accounts(ctx)
	}
	if err != nil {
		return zero, err
	}
	if q.BalanceMin != nil || q.BalanceMax != nil {
		filtered := candidates[:0]
		for _, a := range candidates {
			latest, err := s.store.LatestBalance(ctx, a.GUID)
			if err != nil {
				return zero, err
			}
			balance := decimalOrZero(latest)
			if q.BalanceMin != nil && balance.LessThan(*q.BalanceMin) {
				continue
			}
			if q.BalanceMax != nil && balance.GreaterThan(*q.BalanceMax) {
				continue
			}
			filtered = append(filtered, a)
		}
		candidates = filtered
	}
	ledger.SortAccounts(candidates, q.Ordering)
	return ledger.Paginate(candidates, func(a ledger.Account) uuid.UUID { return a.GUID }, q.ContinuationToken, q.Skip, q.MaxResults), nil
}

// Delete removes the account and every entry it owns in a single
// persistence transaction, under the account's exclusive lock.
func (s *Service) Delete(ctx context.Context, guid uuid.UUID) error {
	if guid == uuid.Nil {
		return errs.ErrInvalid
	}
	if err := s.locks.Acquire(ctx, guid); err != nil {
		return err
	}
	defer s.locks.Release(guid)

	if _, err := s.store.AccountByGUID(ctx, guid); err != nil {
		return err
	}
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := tx.DeleteEntriesByAccount(ctx, guid); err != nil {
		return err
	}
	if err := tx.DeleteAccount(ctx, guid); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.notifier.Emit(events.Event{Type: events.AccountDeleted, AccountGUID: guid})
	return nil
}

// Count reports the number of registered accounts.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.CountAccounts(ctx)
}

func decimalOrZero(latest *ledger.Entry) decimal.Decimal {
	if latest != nil {
		return latest.Amount
	}
	return decimal.Zero
}
