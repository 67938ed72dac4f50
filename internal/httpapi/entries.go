package httpapi

import (
	"net/http"

	"github.com/netledger/netledger/internal/ledger"
	"github.com/netledger/netledger/internal/service/ledgercore"
)

func (s *Server) addCredit(w http.ResponseWriter, r *http.Request) {
	s.addEntry(w, r, ledger.EntryTypeCredit)
}

func (s *Server) addDebit(w http.ResponseWriter, r *http.Request) {
	s.addEntry(w, r, ledger.EntryTypeDebit)
}

func (s *Server) addEntry(w http.ResponseWriter, r *http.Request, typ ledger.EntryType) {
	guid, ok := parseGUID(r, "id")
	if !ok {
		badRequest(w, "invalid account guid")
		return
	}
	var req entryRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	in := ledgercore.EntryInput{Amount: req.Amount, Description: req.Description}
	var (
		e   ledger.Entry
		err error
	)
	if typ == ledger.EntryTypeCredit {
		e, err = s.core.AddCredit(r.Context(), guid, in, req.AlreadyCommitted)
	} else {
		e, err = s.core.AddDebit(r.Context(), guid, in, req.AlreadyCommitted)
	}
	if err != nil {
		serviceError(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toEntryResponse(e))
}

func (s *Server) addCreditsBatch(w http.ResponseWriter, r *http.Request) {
	s.addEntriesBatch(w, r, ledger.EntryTypeCredit)
}

func (s *Server) addDebitsBatch(w http.ResponseWriter, r *http.Request) {
	s.addEntriesBatch(w, r, ledger.EntryTypeDebit)
}

func (s *Server) addEntriesBatch(w http.ResponseWriter, r *http.Request, typ ledger.EntryType) {
	guid, ok := parseGUID(r, "id")
	if !ok {
		badRequest(w, "invalid account guid")
		return
	}
	var req entryBatchRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	if len(req.Entries) == 0 {
		badRequest(w, "Entries must not be empty")
		return
	}
	items := toEntryInputs(req.Entries)
	var (
		entries []ledger.Entry
		err     error
	)
	if typ == ledger.EntryTypeCredit {
		entries, err = s.core.AddCredits(r.Context(), guid, items, req.AlreadyCommitted)
	} else {
		entries, err = s.core.AddDebits(r.Context(), guid, items, req.AlreadyCommitted)
	}
	if err != nil {
		serviceError(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toEntryResponses(entries))
}

func (s *Server) pendingCredits(w http.ResponseWriter, r *http.Request) {
	s.pendingEntries(w, r, ledger.EntryTypeCredit)
}

func (s *Server) pendingDebits(w http.ResponseWriter, r *http.Request) {
	s.pendingEntries(w, r, ledger.EntryTypeDebit)
}

func (s *Server) pendingEntries(w http.ResponseWriter, r *http.Request, typ ledger.EntryType) {
	guid, ok := parseGUID(r, "id")
	if !ok {
		badRequest(w, "invalid account guid")
		return
	}
	entries, err := s.core.PendingEntries(r.Context(), guid, typ)
	if err != nil {
		serviceError(w, err)
		return
	}
	toJSON(w, http.StatusOK, toEntryResponses(entries))
}

func (s *Server) commit(w http.ResponseWriter, r *http.Request) {
	guid, ok := parseGUID(r, "id")
	if !ok {
		badRequest(w, "invalid account guid")
		return
	}
	var req commitRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			badRequest(w, "invalid JSON: "+err.Error())
			return
		}
	}
	view, err := s.core.Commit(r.Context(), guid, req.EntryGUIDs)
	if err != nil {
		serviceError(w, err)
		return
	}
	commitsTotal.Inc()
	toJSON(w, http.StatusOK, toBalanceResponse(view))
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	guid, ok := parseGUID(r, "id")
	if !ok {
		badRequest(w, "invalid account guid")
		return
	}
	view, err := s.core.GetBalance(r.Context(), guid)
	if err != nil {
		serviceError(w, err)
		return
	}
	toJSON(w, http.StatusOK, toBalanceResponse(view))
}

func (s *Server) getBalanceAsOf(w http.ResponseWriter, r *http.Request) {
	guid, ok := parseGUID(r, "id")
	if !ok {
		badRequest(w, "invalid account guid")
		return
	}
	raw := r.URL.Query().Get("timestamp")
	if raw == "" {
		badRequest(w, "timestamp is required")
		return
	}
	t, err := ledger.ParseTime(raw)
	if err != nil {
		badRequest(w, "invalid timestamp")
		return
	}
	amount, err := s.core.BalanceAsOf(r.Context(), guid, t)
	if err != nil {
		serviceError(w, err)
		return
	}
	toJSON(w, http.StatusOK, balanceAsOfResponse{Balance: amount})
}

func (s *Server) verifyChain(w http.ResponseWriter, r *http.Request) {
	guid, ok := parseGUID(r, "id")
	if !ok {
		badRequest(w, "invalid account guid")
		return
	}
	valid, err := s.core.VerifyBalanceChain(r.Context(), guid)
	if err != nil {
		serviceError(w, err)
		return
	}
	toJSON(w, http.StatusOK, verifyResponse{Valid: valid})
}

func (s *Server) enumerateEntries(w http.ResponseWriter, r *http.Request) {
	guid, ok := parseGUID(r, "id")
	if !ok {
		badRequest(w, "invalid account guid")
		return
	}
	var req enumerateEntriesRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	q := ledger.EnumerationQuery{
		Skip:              req.Skip,
		ContinuationToken: req.ContinuationToken,
		AmountMin:         req.AmountMin,
		AmountMax:         req.AmountMax,
		Ordering:          ledger.Ordering(req.Ordering),
	}
	if req.MaxResults != nil {
		if *req.MaxResults <= 0 {
			badRequest(w, "MaxResults must be positive")
			return
		}
		q.MaxResults = *req.MaxResults
	}
	if req.CreatedAfter != nil {
		t, err := ledger.ParseTime(*req.CreatedAfter)
		if err != nil {
			badRequest(w, "invalid CreatedAfter")
			return
		}
		q.CreatedAfter = &t
	}
	if req.CreatedBefore != nil {
		t, err := ledger.ParseTime(*req.CreatedBefore)
		if err != nil {
			badRequest(w, "invalid CreatedBefore")
			return
		}
		q.CreatedBefore = &t
	}
	page, err := s.core.Enumerate(r.Context(), guid, q)
	if err != nil {
		serviceError(w, err)
		return
	}
	toJSON(w, http.StatusOK, enumerationResponse[entryResponse]{
		TotalRecords:      page.TotalRecords,
		Objects:           toEntryResponses(page.Objects),
		RecordsRemaining:  page.RecordsRemaining,
		EndOfResults:      page.EndOfResults,
		ContinuationToken: page.ContinuationToken,
	})
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	guid, ok := parseGUID(r, "id")
	if !ok {
		badRequest(w, "invalid account guid")
		return
	}
	entryGUID, ok := parseGUID(r, "entryID")
	if !ok {
		badRequest(w, "invalid entry guid")
		return
	}
	e, err := s.core.GetEntry(r.Context(), guid, entryGUID)
	if err != nil {
		serviceError(w, err)
		return
	}
	toJSON(w, http.StatusOK, toEntryResponse(e))
}

func (s *Server) cancelEntry(w http.ResponseWriter, r *http.Request) {
	guid, ok := parseGUID(r, "id")
	if !ok {
		badRequest(w, "invalid account guid")
		return
	}
	entryGUID, ok := parseGUID(r, "entryID")
	if !ok {
		badRequest(w, "invalid entry guid")
		return
	}
	if err := s.core.CancelPending(r.Context(), guid, entryGUID); err != nil {
		serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
