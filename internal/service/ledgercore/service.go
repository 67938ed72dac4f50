// Package ledgercore implements the ledger engine: credit/debit addition,
// the commit algorithm that extends the per-account balance chain, pending
// cancellation, historical balances, and chain verification. All mutation
// paths run under a per-account exclusive lock; reads observe whatever
// committed state the store exposes.
package ledgercore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/netledger/netledger/internal/errs"
	"github.com/netledger/netledger/internal/events"
	"github.com/netledger/netledger/internal/ledger"
	"github.com/netledger/netledger/internal/lock"
	"github.com/netledger/netledger/internal/storage"
)

// Store defines the persistence operations the core needs.
type Store interface {
	storage.EntryStore
	AccountExistsByGUID(ctx context.Context, guid uuid.UUID) (bool, error)
	BeginTx(ctx context.Context) (storage.Tx, error)
}

// EntryInput describes one credit or debit to add.
type EntryInput struct {
	Amount      decimal.Decimal
	Description string
}

// Service is the ledger core. Construct with New.
type Service struct {
	store    Store
	locks    *lock.Keyed
	notifier *events.Notifier
	clock    ledger.Clock
}

// New constructs the core over a store, a shared per-account lock table, an
// event notifier, and a clock.
func New(store Store, locks *lock.Keyed, notifier *events.Notifier, clock ledger.Clock) *Service {
	return &Service{store: store, locks: locks, notifier: notifier, clock: clock}
}

// withLock runs fn while holding the account's exclusive lock. Acquisition
// respects ctx cancellation.
func (s *Service) withLock(ctx context.Context, accountGUID uuid.UUID, fn func() error) error {
	if err := s.locks.Acquire(ctx, accountGUID); err != nil {
		return err
	}
	defer s.locks.Release(accountGUID)
	return fn()
}

// AddCredit records a credit on the account. With alreadyCommitted the entry
// is committed immediately through a synthesized single-entry commit.
func (s *Service) AddCredit(ctx context.Context, accountGUID uuid.UUID, in EntryInput, alreadyCommitted bool) (ledger.Entry, error) {
	return s.addOne(ctx, accountGUID, ledger.EntryTypeCredit, in, alreadyCommitted)
}

// AddDebit records a debit on the account, symmetric to AddCredit.
func (s *Service) AddDebit(ctx context.Context, accountGUID uuid.UUID, in EntryInput, alreadyCommitted bool) (ledger.Entry, error) {
	return s.addOne(ctx, accountGUID, ledger.EntryTypeDebit, in, alreadyCommitted)
}

func (s *Service) addOne(ctx context.Context, accountGUID uuid.UUID, typ ledger.EntryType, in EntryInput, alreadyCommitted bool) (ledger.Entry, error) {
	entries, err := s.addBatch(ctx, accountGUID, typ, []EntryInput{in}, alreadyCommitted)
	if err != nil {
		return ledger.Entry{}, err
	}
	return entries[0], nil
}

// AddCredits records a batch of credits under a single lock acquisition so
// the observable order matches the input order.
func (s *Service) AddCredits(ctx context.Context, accountGUID uuid.UUID, items []EntryInput, alreadyCommitted bool) ([]ledger.Entry, error) {
	return s.addBatch(ctx, accountGUID, ledger.EntryTypeCredit, items, alreadyCommitted)
}

// AddDebits records a batch of debits, symmetric to AddCredits.
func (s *Service) AddDebits(ctx context.Context, accountGUID uuid.UUID, items []EntryInput, alreadyCommitted bool) ([]ledger.Entry, error) {
	return s.addBatch(ctx, accountGUID, ledger.EntryTypeDebit, items, alreadyCommitted)
}

func (s *Service) addBatch(ctx context.Context, accountGUID uuid.UUID, typ ledger.EntryType, items []EntryInput, alreadyCommitted bool) ([]ledger.Entry, error) {
	if accountGUID == uuid.Nil || len(items) == 0 {
		return nil, errs.ErrInvalid
	}
	for _, in := range items {
		if !in.Amount.IsPositive() {
			return nil, errs.ErrInvalid
		}
	}
	var out []ledger.Entry
	var synthesized []events.Event
	err := s.withLock(ctx, accountGUID, func() error {
		if err := s.requireAccount(ctx, accountGUID); err != nil {
			return err
		}
		for _, in := range items {
			e := ledger.Entry{
				GUID:        uuid.New(),
				AccountGUID: accountGUID,
				Type:        typ,
				Amount:      in.Amount,
				Description: in.Description,
				CreatedUtc:  s.clock.Now(),
			}
			if alreadyCommitted {
				// Synthesize a full commit containing only this entry so the
				// balance chain stays intact; afterwards the state is
				// indistinguishable from add-then-commit.
				balanceGUID, err := s.commitLocked(ctx, accountGUID, []ledger.Entry{e}, &e)
				if err != nil {
					return err
				}
				committed, err := s.store.EntryByGUID(ctx, accountGUID, e.GUID)
				if err != nil {
					return err
				}
				e = committed
				balance, err := s.store.EntryByGUID(ctx, accountGUID, balanceGUID)
				if err != nil {
					return err
				}
				synthesized = append(synthesized, events.Event{
					Type:             events.EntriesCommitted,
					AccountGUID:      accountGUID,
					BalanceGUID:      balanceGUID,
					EntryGUIDs:       []uuid.UUID{e.GUID},
					CommittedBalance: balance.Amount,
				})
			} else {
				if err := s.store.CreateEntry(ctx, e); err != nil {
					return err
				}
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	evType := events.CreditAdded
	if typ == ledger.EntryTypeDebit {
		evType = events.DebitAdded
	}
	for _, e := range out {
		s.notifier.Emit(events.Event{Type: evType, AccountGUID: accountGUID, EntryGUID: e.GUID})
	}
	for _, ev := range synthesized {
		s.notifier.Emit(ev)
	}
	return out, nil
}

// Commit atomically converts pending entries into committed state and
// appends a new Balance entry to the account's chain. With no explicit guids
// every pending entry is selected; an empty candidate set is a no-op that
// returns the current balance view.
func (s *Service) Commit(ctx context.Context, accountGUID uuid.UUID, entryGUIDs []uuid.UUID) (ledger.Balance, error) {
	if accountGUID == uuid.Nil {
		return ledger.Balance{}, errs.ErrInvalid
	}
	var view ledger.Balance
	err := s.withLock(ctx, accountGUID, func() error {
		if err := s.requireAccount(ctx, accountGUID); err != nil {
			return err
		}
		candidates, err := s.selectCandidates(ctx, accountGUID, entryGUIDs)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			view, err = s.balanceView(ctx, accountGUID)
			return err
		}
		balanceGUID, err := s.commitLocked(ctx, accountGUID, candidates, nil)
		if err != nil {
			return err
		}
		view, err = s.balanceView(ctx, accountGUID)
		if err != nil {
			return err
		}
		committed := make([]uuid.UUID, 0, len(candidates))
		for _, c := range candidates {
			committed = append(committed, c.GUID)
		}
		s.notifier.Emit(events.Event{
			Type:             events.EntriesCommitted,
			AccountGUID:      accountGUID,
			BalanceGUID:      balanceGUID,
			EntryGUIDs:       committed,
			CommittedBalance: view.CommittedBalance,
		})
		return nil
	})
	return view, err
}

// selectCandidates resolves the commit set. Explicit guids are deduplicated
// and every one must name a pending credit or debit on the account.
func (s *Service) selectCandidates(ctx context.Context, accountGUID uuid.UUID, entryGUIDs []uuid.UUID) ([]ledger.Entry, error) {
	if len(entryGUIDs) == 0 {
		pending := false
		return s.store.EntriesByAccount(ctx, accountGUID, ledger.EntryFilter{IsCommitted: &pending})
	}
	seen := make(map[uuid.UUID]struct{}, len(entryGUIDs))
	out := make([]ledger.Entry, 0, len(entryGUIDs))
	for _, guid := range entryGUIDs {
		if _, dup := seen[guid]; dup {
			continue
		}
		seen[guid] = struct{}{}
		e, err := s.store.EntryByGUID(ctx, accountGUID, guid)
		if err != nil {
			return nil, errs.ErrConflict
		}
		if !e.IsPending() {
			return nil, errs.ErrConflict
		}
		out = append(out, e)
	}
	return out, nil
}

// commitLocked runs the transactional commit over an already-validated
// candidate set. When insert is non-nil the candidate is not yet persisted
// and is created inside the same transaction (the already-committed path).
// Returns the new Balance entry's guid. Caller holds the account lock.
func (s *Service) commitLocked(ctx context.Context, accountGUID uuid.UUID, candidates []ledger.Entry, insert *ledger.Entry) (uuid.UUID, error) {
	prev, err := s.store.LatestBalance(ctx, accountGUID)
	if err != nil {
		return uuid.Nil, err
	}
	prevAmount := decimal.Zero
	var replaces *uuid.UUID
	if prev != nil {
		prevAmount = prev.Amount
		g := prev.GUID
		replaces = &g
	}
	delta := decimal.Zero
	for _, c := range candidates {
		delta = delta.Add(c.SignedAmount())
	}
	now := s.clock.Now()
	balance := ledger.Entry{
		GUID:         uuid.New(),
		AccountGUID:  accountGUID,
		Type:         ledger.EntryTypeBalance,
		Amount:       prevAmount.Add(delta),
		Replaces:     replaces,
		IsCommitted:  true,
		CommittedUtc: &now,
		CreatedUtc:   now,
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if insert != nil {
		if err := tx.CreateEntry(ctx, *insert); err != nil {
			return uuid.Nil, err
		}
	}
	if err := tx.CreateEntry(ctx, balance); err != nil {
		return uuid.Nil, err
	}
	guids := make([]uuid.UUID, 0, len(candidates))
	for _, c := range candidates {
		guids = append(guids, c.GUID)
	}
	if err := tx.MarkCommitted(ctx, accountGUID, guids, balance.GUID, now); err != nil {
		return uuid.Nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, err
	}
	return balance.GUID, nil
}

// CancelPending deletes a pending credit or debit. Committed entries and
// Balance entries cannot be canceled.
func (s *Service) CancelPending(ctx context.Context, accountGUID, entryGUID uuid.UUID) error {
	if accountGUID == uuid.Nil || entryGUID == uuid.Nil {
		return errs.ErrInvalid
	}
	err := s.withLock(ctx, accountGUID, func() error {
		e, err := s.store.EntryByGUID(ctx, accountGUID, entryGUID)
		if err != nil {
			return err
		}
		if !e.IsPending() {
			return errs.ErrConflict
		}
		return s.store.DeleteEntry(ctx, accountGUID, entryGUID)
	})
	if err != nil {
		return err
	}
	s.notifier.Emit(events.Event{Type: events.EntryCanceled, AccountGUID: accountGUID, EntryGUID: entryGUID})
	return nil
}

// GetBalance computes the derived balance view. Read-only; takes no lock.
func (s *Service) GetBalance(ctx context.Context, accountGUID uuid.UUID) (ledger.Balance, error) {
	if accountGUID == uuid.Nil {
		return ledger.Balance{}, errs.ErrInvalid
	}
	if err := s.requireAccount(ctx, accountGUID); err != nil {
		return ledger.Balance{}, err
	}
	return s.balanceView(ctx, accountGUID)
}

func (s *Service) balanceView(ctx context.Context, accountGUID uuid.UUID) (ledger.Balance, error) {
	view := ledger.Balance{AccountGUID: accountGUID, CommittedBalance: decimal.Zero}
	latest, err := s.store.LatestBalance(ctx, accountGUID)
	if err != nil {
		return ledger.Balance{}, err
	}
	if latest != nil {
		view.CommittedBalance = latest.Amount
		g := latest.GUID
		view.EntryGUID = &g
		members, err := s.store.EntriesCommittedBy(ctx, accountGUID, latest.GUID)
		if err != nil {
			return ledger.Balance{}, err
		}
		view.CommittedEntryGUIDs = make([]uuid.UUID, 0, len(members))
		for _, m := range members {
			view.CommittedEntryGUIDs = append(view.CommittedEntryGUIDs, m.GUID)
		}
	}
	pendingCredits, err := s.store.SumByType(ctx, accountGUID, ledger.EntryTypeCredit, false)
	if err != nil {
		return ledger.Balance{}, err
	}
	pendingDebits, err := s.store.SumByType(ctx, accountGUID, ledger.EntryTypeDebit, false)
	if err != nil {
		return ledger.Balance{}, err
	}
	view.PendingBalance = view.CommittedBalance.Add(pendingCredits).Sub(pendingDebits)

	pending := false
	pendingEntries, err := s.store.EntriesByAccount(ctx, accountGUID, ledger.EntryFilter{IsCommitted: &pending})
	if err != nil {
		return ledger.Balance{}, err
	}
	for _, e := range pendingEntries {
		switch e.Type {
		case ledger.EntryTypeCredit:
			view.PendingCreditCount++
		case ledger.EntryTypeDebit:
			view.PendingDebitCount++
		}
	}
	return view, nil
}

// BalanceAsOf returns the committed balance observed at instant t: the
// amount of the Balance entry with the greatest created_utc <= t, or zero.
// Pending entries never contribute. Read-only; takes no lock.
func (s *Service) BalanceAsOf(ctx context.Context, accountGUID uuid.UUID, t time.Time) (decimal.Decimal, error) {
	if accountGUID == uuid.Nil {
		return decimal.Zero, errs.ErrInvalid
	}
	if err := s.requireAccount(ctx, accountGUID); err != nil {
		return decimal.Zero, err
	}
	typ := ledger.EntryTypeBalance
	balances, err := s.store.EntriesByAccount(ctx, accountGUID, ledger.EntryFilter{Type: &typ})
	if err != nil {
		return decimal.Zero, err
	}
	// Ordered (created_utc, guid) ascending: the last entry at or before t
	// is the observed balance.
	amount := decimal.Zero
	for _, b := range balances {
		if b.CreatedUtc.After(t) {
			break
		}
		amount = b.Amount
	}
	return amount, nil
}

// VerifyBalanceChain walks the account's Balance chain from genesis forward
// and checks every link and every arithmetic step. Takes the account lock to
// obtain a consistent snapshot. Returns false on any broken link, branching,
// or amount mismatch.
func (s *Service) VerifyBalanceChain(ctx context.Context, accountGUID uuid.UUID) (bool, error) {
	if accountGUID == uuid.Nil {
		return false, errs.ErrInvalid
	}
	ok := false
	err := s.withLock(ctx, accountGUID, func() error {
		if err := s.requireAccount(ctx, accountGUID); err != nil {
			return err
		}
		var err error
		ok, err = s.verifyLocked(ctx, accountGUID)
		return err
	})
	return ok, err
}

func (s *Service) verifyLocked(ctx context.Context, accountGUID uuid.UUID) (bool, error) {
	typ := ledger.EntryTypeBalance
	balances, err := s.store.EntriesByAccount(ctx, accountGUID, ledger.EntryFilter{Type: &typ})
	if err != nil {
		return false, err
	}
	if len(balances) == 0 {
		return true, nil
	}
	// Exactly one genesis, and every replaces link must resolve to exactly
	// one successor.
	byReplaces := make(map[uuid.UUID]*ledger.Entry, len(balances))
	var genesis *ledger.Entry
	for i := range balances {
		b := &balances[i]
		if b.Replaces == nil {
			if genesis != nil {
				return false, nil
			}
			genesis = b
			continue
		}
		if _, dup := byReplaces[*b.Replaces]; dup {
			return false, nil
		}
		byReplaces[*b.Replaces] = b
	}
	if genesis == nil {
		return false, nil
	}
	prevAmount := decimal.Zero
	cur := genesis
	visited := 0
	for cur != nil {
		visited++
		if visited > len(balances) {
			return false, nil
		}
		members, err := s.store.EntriesCommittedBy(ctx, accountGUID, cur.GUID)
		if err != nil {
			return false, err
		}
		sum := decimal.Zero
		for _, m := range members {
			sum = sum.Add(m.SignedAmount())
		}
		if !cur.Amount.Equal(prevAmount.Add(sum)) {
			return false, nil
		}
		prevAmount = cur.Amount
		cur = byReplaces[cur.GUID]
	}
	return visited == len(balances), nil
}

// GetEntry fetches a single entry. Read-only; takes no lock.
func (s *Service) GetEntry(ctx context.Context, accountGUID, entryGUID uuid.UUID) (ledger.Entry, error) {
	if accountGUID == uuid.Nil || entryGUID == uuid.Nil {
		return ledger.Entry{}, errs.ErrInvalid
	}
	return s.store.EntryByGUID(ctx, accountGUID, entryGUID)
}

// PendingEntries lists the account's pending entries of the given type in
// creation order. Read-only; takes no lock.
func (s *Service) PendingEntries(ctx context.Context, accountGUID uuid.UUID, typ ledger.EntryType) ([]ledger.Entry, error) {
	if accountGUID == uuid.Nil {
		return nil, errs.ErrInvalid
	}
	if typ != ledger.EntryTypeCredit && typ != ledger.EntryTypeDebit {
		return nil, errs.ErrInvalid
	}
	if err := s.requireAccount(ctx, accountGUID); err != nil {
		return nil, err
	}
	pending := false
	return s.store.EntriesByAccount(ctx, accountGUID, ledger.EntryFilter{Type: &typ, IsCommitted: &pending})
}

// Enumerate returns one page of the account's entries. Read-only; takes no
// lock.
func (s *Service) Enumerate(ctx context.Context, accountGUID uuid.UUID, q ledger.EnumerationQuery) (ledger.EnumerationResult[ledger.Entry], error) {
	var zero ledger.EnumerationResult[ledger.Entry]
	if accountGUID == uuid.Nil {
		return zero, errs.ErrInvalid
	}
	if err := q.Normalize(); err != nil {
		return zero, err
	}
	if err := s.requireAccount(ctx, accountGUID); err != nil {
		return zero, err
	}
	return s.store.EnumerateEntries(ctx, accountGUID, q)
}

func (s *Service) requireAccount(ctx context.Context, accountGUID uuid.UUID) error {
	ok, err := s.store.AccountExistsByGUID(ctx, accountGUID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrNotFound
	}
	return nil
}
