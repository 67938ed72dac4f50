package ledger

import (
	"bytes"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/netledger/netledger/internal/errs"
)

// Ordering selects the sort key for enumeration. Ties in the chosen key are
// broken by guid ascending so every order is total and pagination is stable.
type Ordering string

const (
	OrderCreatedAscending  Ordering = "CreatedAscending"
	OrderCreatedDescending Ordering = "CreatedDescending"
	OrderAmountAscending   Ordering = "AmountAscending"
	OrderAmountDescending  Ordering = "AmountDescending"
)

const (
	// DefaultMaxResults is the page size used when the caller leaves
	// max_results unset.
	DefaultMaxResults = 100
	// MaxMaxResults caps max_results; larger values are clamped.
	MaxMaxResults = 1000
)

// EnumerationQuery parameterizes paginated entry listings.
type EnumerationQuery struct {
	MaxResults        int
	Skip              int
	ContinuationToken *uuid.UUID
	CreatedAfter      *time.Time
	CreatedBefore     *time.Time
	AmountMin         *decimal.Decimal
	AmountMax         *decimal.Decimal
	Ordering          Ordering
}

// Normalize applies defaults and clamps the page size. Zero MaxResults means
// unset; explicit non-positive values are rejected at the handler boundary.
func (q *EnumerationQuery) Normalize() error {
	if q.MaxResults < 0 || q.Skip < 0 {
		return errs.ErrInvalid
	}
	if q.MaxResults == 0 {
		q.MaxResults = DefaultMaxResults
	}
	if q.MaxResults > MaxMaxResults {
		q.MaxResults = MaxMaxResults
	}
	if q.Ordering == "" {
		q.Ordering = OrderCreatedDescending
	}
	switch q.Ordering {
	case OrderCreatedAscending, OrderCreatedDescending, OrderAmountAscending, OrderAmountDescending:
		return nil
	default:
		return errs.ErrInvalid
	}
}

// Filter reduces the query to its entry-filter dimensions.
func (q EnumerationQuery) Filter() EntryFilter {
	return EntryFilter{
		CreatedAfter:  q.CreatedAfter,
		CreatedBefore: q.CreatedBefore,
		MinAmount:     q.AmountMin,
		MaxAmount:     q.AmountMax,
	}
}

// AccountQuery parameterizes paginated account listings. The balance range
// filter is applied in-memory against each candidate's committed balance.
type AccountQuery struct {
	MaxResults        int
	Skip              int
	ContinuationToken *uuid.UUID
	SearchTerm        string
	BalanceMin        *decimal.Decimal
	BalanceMax        *decimal.Decimal
	Ordering          Ordering
}

// Normalize applies defaults and clamps the page size. Accounts sort on
// creation time only; amount orderings are rejected.
func (q *AccountQuery) Normalize() error {
	if q.MaxResults < 0 || q.Skip < 0 {
		return errs.ErrInvalid
	}
	if q.MaxResults == 0 {
		q.MaxResults = DefaultMaxResults
	}
	if q.MaxResults > MaxMaxResults {
		q.MaxResults = MaxMaxResults
	}
	if q.Ordering == "" {
		q.Ordering = OrderCreatedDescending
	}
	switch q.Ordering {
	case OrderCreatedAscending, OrderCreatedDescending:
		return nil
	default:
		return errs.ErrInvalid
	}
}

// EnumerationResult is one page of an enumeration plus the bookkeeping the
// contract promises: total matches ignoring pagination, records remaining
// after this page, and a continuation token when more pages exist.
type EnumerationResult[T any] struct {
	TotalRecords      int
	Objects           []T
	RecordsRemaining  int
	EndOfResults      bool
	ContinuationToken *uuid.UUID
}

// Paginate slices one page out of the full ordered match set. A continuation
// token resumes after the object with that guid; skip then applies on top.
func Paginate[T any](sorted []T, guidOf func(T) uuid.UUID, token *uuid.UUID, skip, max int) EnumerationResult[T] {
	total := len(sorted)
	start := 0
	if token != nil {
		for i := range sorted {
			if guidOf(sorted[i]) == *token {
				start = i + 1
				break
			}
		}
	}
	start += skip
	if start > total {
		start = total
	}
	end := start + max
	if end > total {
		end = total
	}
	objects := append([]T(nil), sorted[start:end]...)
	remaining := total - start - len(objects)
	if remaining < 0 {
		remaining = 0
	}
	res := EnumerationResult[T]{
		TotalRecords:     total,
		Objects:          objects,
		RecordsRemaining: remaining,
		EndOfResults:     remaining == 0,
	}
	if !res.EndOfResults && len(objects) > 0 {
		last := guidOf(objects[len(objects)-1])
		res.ContinuationToken = &last
	}
	return res
}

// CompareGUID orders guids ascending by their canonical string form.
func CompareGUID(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}

// SortEntries orders entries by the given ordering with the guid tiebreak.
func SortEntries(entries []Entry, ordering Ordering) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch ordering {
		case OrderCreatedAscending:
			if !a.CreatedUtc.Equal(b.CreatedUtc) {
				return a.CreatedUtc.Before(b.CreatedUtc)
			}
		case OrderCreatedDescending:
			if !a.CreatedUtc.Equal(b.CreatedUtc) {
				return a.CreatedUtc.After(b.CreatedUtc)
			}
		case OrderAmountAscending:
			if !a.Amount.Equal(b.Amount) {
				return a.Amount.LessThan(b.Amount)
			}
		case OrderAmountDescending:
			if !a.Amount.Equal(b.Amount) {
				return a.Amount.GreaterThan(b.Amount)
			}
		}
		return CompareGUID(a.GUID, b.GUID) < 0
	})
}

// SortAccounts orders accounts by creation time with the guid tiebreak.
func SortAccounts(accounts []Account, ordering Ordering) {
	sort.SliceStable(accounts, func(i, j int) bool {
		a, b := accounts[i], accounts[j]
		if !a.CreatedUtc.Equal(b.CreatedUtc) {
			if ordering == OrderCreatedAscending {
				return a.CreatedUtc.Before(b.CreatedUtc)
			}
			return a.CreatedUtc.After(b.CreatedUtc)
		}
		return CompareGUID(a.GUID, b.GUID) < 0
	})
}
