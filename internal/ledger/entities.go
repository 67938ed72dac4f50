package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/netledger/netledger/internal/errs"
)

// EntryType discriminates the three kinds of ledger records.
type EntryType string

const (
	// EntryTypeCredit increases an account's balance when committed.
	EntryTypeCredit EntryType = "Credit"
	// EntryTypeDebit decreases an account's balance when committed.
	EntryTypeDebit EntryType = "Debit"
	// EntryTypeBalance summarizes the committed balance after folding in a
	// set of credits and debits. Balance entries form a per-account chain
	// linked by Replaces.
	EntryTypeBalance EntryType = "Balance"
)

// Account is a named container of entries.
type Account struct {
	GUID       uuid.UUID
	Name       string
	Notes      string
	CreatedUtc time.Time
}

// Entry is the atomic ledger record: a credit, debit, or balance row.
// Entries are immutable after creation except for the three fields set at
// commit time (IsCommitted, CommittedByGUID, CommittedUtc).
type Entry struct {
	GUID        uuid.UUID
	AccountGUID uuid.UUID
	Type        EntryType
	Amount      decimal.Decimal
	Description string
	// Replaces points at the prior Balance entry this one supersedes.
	// Only Balance entries may set it; nil marks the genesis balance.
	Replaces        *uuid.UUID
	IsCommitted     bool
	CommittedByGUID *uuid.UUID
	CommittedUtc    *time.Time
	CreatedUtc      time.Time
}

// Validate enforces the insert-time invariants on an entry.
func (e *Entry) Validate() error {
	if e.GUID == uuid.Nil || e.AccountGUID == uuid.Nil {
		return errs.ErrInvalid
	}
	if e.Amount.IsNegative() {
		return errs.ErrInvalid
	}
	switch e.Type {
	case EntryTypeBalance:
		if !e.IsCommitted || e.CommittedByGUID != nil {
			return errs.ErrInvalid
		}
	case EntryTypeCredit, EntryTypeDebit:
		if e.Replaces != nil {
			return errs.ErrInvalid
		}
		if e.IsCommitted {
			if e.CommittedByGUID == nil || e.CommittedUtc == nil {
				return errs.ErrInvalid
			}
		} else if e.CommittedByGUID != nil || e.CommittedUtc != nil {
			return errs.ErrInvalid
		}
	default:
		return errs.ErrInvalid
	}
	return nil
}

// IsPending reports whether the entry is a credit or debit not yet folded
// into any balance.
func (e *Entry) IsPending() bool {
	return !e.IsCommitted && (e.Type == EntryTypeCredit || e.Type == EntryTypeDebit)
}

// SignedAmount returns the amount with the sign used in balance arithmetic:
// credits positive, debits negative.
func (e *Entry) SignedAmount() decimal.Decimal {
	if e.Type == EntryTypeDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// Balance is the derived per-account view computed on request; it is never
// persisted.
type Balance struct {
	AccountGUID        uuid.UUID
	CommittedBalance   decimal.Decimal
	PendingBalance     decimal.Decimal
	PendingCreditCount int
	PendingDebitCount  int
	// EntryGUID is the guid of the latest Balance entry, nil when the
	// account has never committed.
	EntryGUID *uuid.UUID
	// CommittedEntryGUIDs lists the entries the latest Balance committed.
	CommittedEntryGUIDs []uuid.UUID
}

// APIKey is an opaque credential with a display name and admin flag. It is
// not part of ledger semantics; the same persistence adapter stores it.
type APIKey struct {
	GUID       uuid.UUID
	Name       string
	Key        string
	Active     bool
	IsAdmin    bool
	CreatedUtc time.Time
}

// EntryFilter narrows entry listings. All dimensions are optional and
// AND-composed.
type EntryFilter struct {
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	MinAmount     *decimal.Decimal
	MaxAmount     *decimal.Decimal
	Type          *EntryType
	IsCommitted   *bool
}

// Matches reports whether the entry satisfies every set dimension.
func (f EntryFilter) Matches(e Entry) bool {
	if f.CreatedAfter != nil && !e.CreatedUtc.After(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && !e.CreatedUtc.Before(*f.CreatedBefore) {
		return false
	}
	if f.MinAmount != nil && e.Amount.LessThan(*f.MinAmount) {
		return false
	}
	if f.MaxAmount != nil && e.Amount.GreaterThan(*f.MaxAmount) {
		return false
	}
	if f.Type != nil && e.Type != *f.Type {
		return false
	}
	if f.IsCommitted != nil && e.IsCommitted != *f.IsCommitted {
		return false
	}
	return true
}
