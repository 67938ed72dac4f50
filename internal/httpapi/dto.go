package httpapi

// DTOs for the HTTP API. Wire names are PascalCase; amounts travel as
// decimal strings and timestamps as fixed-width ISO-8601 UTC text.

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/netledger/netledger/internal/ledger"
	"github.com/netledger/netledger/internal/service/ledgercore"
)

type createAccountRequest struct {
	Name  string `json:"Name"`
	Notes string `json:"Notes,omitempty"`
}

type updateAccountRequest struct {
	Name  *string `json:"Name,omitempty"`
	Notes *string `json:"Notes,omitempty"`
}

type accountResponse struct {
	GUID       uuid.UUID `json:"GUID"`
	Name       string    `json:"Name"`
	Notes      string    `json:"Notes,omitempty"`
	CreatedUtc string    `json:"CreatedUtc"`
}

func toAccountResponse(a ledger.Account) accountResponse {
	return accountResponse{
		GUID:       a.GUID,
		Name:       a.Name,
		Notes:      a.Notes,
		CreatedUtc: ledger.FormatTime(a.CreatedUtc),
	}
}

type entryRequest struct {
	Amount           decimal.Decimal `json:"Amount"`
	Description      string          `json:"Description,omitempty"`
	AlreadyCommitted bool            `json:"AlreadyCommitted,omitempty"`
}

type entryBatchRequest struct {
	Entries          []entryItem `json:"Entries"`
	AlreadyCommitted bool        `json:"AlreadyCommitted,omitempty"`
}

type entryItem struct {
	Amount      decimal.Decimal `json:"Amount"`
	Description string          `json:"Description,omitempty"`
}

func toEntryInputs(items []entryItem) []ledgercore.EntryInput {
	out := make([]ledgercore.EntryInput, 0, len(items))
	for _, it := range items {
		out = append(out, ledgercore.EntryInput{Amount: it.Amount, Description: it.Description})
	}
	return out
}

type entryResponse struct {
	GUID            uuid.UUID       `json:"GUID"`
	AccountGUID     uuid.UUID       `json:"AccountGUID"`
	Type            string          `json:"Type"`
	Amount          decimal.Decimal `json:"Amount"`
	Description     string          `json:"Description,omitempty"`
	Replaces        *uuid.UUID      `json:"Replaces,omitempty"`
	IsCommitted     bool            `json:"IsCommitted"`
	CommittedByGUID *uuid.UUID      `json:"CommittedByGUID,omitempty"`
	CommittedUtc    *string         `json:"CommittedUtc,omitempty"`
	CreatedUtc      string          `json:"CreatedUtc"`
}

func toEntryResponse(e ledger.Entry) entryResponse {
	out := entryResponse{
		GUID:            e.GUID,
		AccountGUID:     e.AccountGUID,
		Type:            string(e.Type),
		Amount:          e.Amount,
		Description:     e.Description,
		Replaces:        e.Replaces,
		IsCommitted:     e.IsCommitted,
		CommittedByGUID: e.CommittedByGUID,
		CreatedUtc:      ledger.FormatTime(e.CreatedUtc),
	}
	if e.CommittedUtc != nil {
		s := ledger.FormatTime(*e.CommittedUtc)
		out.CommittedUtc = &s
	}
	return out
}

func toEntryResponses(entries []ledger.Entry) []entryResponse {
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	return out
}

type commitRequest struct {
	EntryGUIDs []uuid.UUID `json:"EntryGUIDs,omitempty"`
}

type balanceResponse struct {
	AccountGUID         uuid.UUID       `json:"AccountGUID"`
	CommittedBalance    decimal.Decimal `json:"CommittedBalance"`
	PendingBalance      decimal.Decimal `json:"PendingBalance"`
	PendingCreditCount  int             `json:"PendingCreditCount"`
	PendingDebitCount   int             `json:"PendingDebitCount"`
	BalanceEntryGUID    *uuid.UUID      `json:"BalanceEntryGUID,omitempty"`
	CommittedEntryGUIDs []uuid.UUID     `json:"CommittedEntryGUIDs,omitempty"`
}

func toBalanceResponse(b ledger.Balance) balanceResponse {
	return balanceResponse{
		AccountGUID:         b.AccountGUID,
		CommittedBalance:    b.CommittedBalance,
		PendingBalance:      b.PendingBalance,
		PendingCreditCount:  b.PendingCreditCount,
		PendingDebitCount:   b.PendingDebitCount,
		BalanceEntryGUID:    b.EntryGUID,
		CommittedEntryGUIDs: b.CommittedEntryGUIDs,
	}
}

type balanceAsOfResponse struct {
	Balance decimal.Decimal `json:"Balance"`
}

type verifyResponse struct {
	Valid bool `json:"Valid"`
}

// enumerateEntriesRequest carries entry pagination. MaxResults distinguishes
// absent (nil, use the default) from an explicit zero, which is rejected.
type enumerateEntriesRequest struct {
	MaxResults        *int             `json:"MaxResults,omitempty"`
	Skip              int              `json:"Skip,omitempty"`
	ContinuationToken *uuid.UUID       `json:"ContinuationToken,omitempty"`
	CreatedAfter      *string          `json:"CreatedAfter,omitempty"`
	CreatedBefore     *string          `json:"CreatedBefore,omitempty"`
	AmountMin         *decimal.Decimal `json:"AmountMin,omitempty"`
	AmountMax         *decimal.Decimal `json:"AmountMax,omitempty"`
	Ordering          string           `json:"Ordering,omitempty"`
}

type enumerateAccountsRequest struct {
	MaxResults        *int             `json:"MaxResults,omitempty"`
	Skip              int              `json:"Skip,omitempty"`
	ContinuationToken *uuid.UUID       `json:"ContinuationToken,omitempty"`
	SearchTerm        string           `json:"SearchTerm,omitempty"`
	BalanceMin        *decimal.Decimal `json:"BalanceMin,omitempty"`
	BalanceMax        *decimal.Decimal `json:"BalanceMax,omitempty"`
	Ordering          string           `json:"Ordering,omitempty"`
}

type enumerationResponse[T any] struct {
	TotalRecords      int        `json:"TotalRecords"`
	Objects           []T        `json:"Objects"`
	RecordsRemaining  int        `json:"RecordsRemaining"`
	EndOfResults      bool       `json:"EndOfResults"`
	ContinuationToken *uuid.UUID `json:"ContinuationToken,omitempty"`
}

type createAPIKeyRequest struct {
	Name    string `json:"Name"`
	IsAdmin bool   `json:"IsAdmin,omitempty"`
}

type apiKeyResponse struct {
	GUID       uuid.UUID `json:"GUID"`
	Name       string    `json:"Name"`
	Key        string    `json:"Key,omitempty"`
	Active     bool      `json:"Active"`
	IsAdmin    bool      `json:"IsAdmin"`
	CreatedUtc string    `json:"CreatedUtc"`
}

// toAPIKeyResponse renders a credential. Key material is included only at
// creation time; listings pass includeKey=false.
func toAPIKeyResponse(k ledger.APIKey, includeKey bool) apiKeyResponse {
	out := apiKeyResponse{
		GUID:       k.GUID,
		Name:       k.Name,
		Active:     k.Active,
		IsAdmin:    k.IsAdmin,
		CreatedUtc: ledger.FormatTime(k.CreatedUtc),
	}
	if includeKey {
		out.Key = k.Key
	}
	return out
}
