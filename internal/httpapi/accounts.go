package httpapi

import (
	"net/http"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/netledger/netledger/internal/ledger"
)

// parseGUID resolves the {id} path parameter.
func parseGUID(r *http.Request, param string) (uuid.UUID, bool) {
	guid, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		return uuid.Nil, false
	}
	return guid, true
}

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	a, err := s.registry.Create(r.Context(), req.Name, req.Notes)
	if err != nil {
		serviceError(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toAccountResponse(a))
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	guid, ok := parseGUID(r, "id")
	if !ok {
		badRequest(w, "invalid account guid")
		return
	}
	a, err := s.registry.ByGUID(r.Context(), guid)
	if err != nil {
		serviceError(w, err)
		return
	}
	toJSON(w, http.StatusOK, toAccountResponse(a))
}

// getAccountByName resolves ?name= to a single account.
func (s *Server) getAccountByName(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		badRequest(w, "name is required")
		return
	}
	a, err := s.registry.ByName(r.Context(), name)
	if err != nil {
		serviceError(w, err)
		return
	}
	toJSON(w, http.StatusOK, toAccountResponse(a))
}

func (s *Server) updateAccount(w http.ResponseWriter, r *http.Request) {
	guid, ok := parseGUID(r, "id")
	if !ok {
		badRequest(w, "invalid account guid")
		return
	}
	var req updateAccountRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	a, err := s.registry.Update(r.Context(), guid, req.Name, req.Notes)
	if err != nil {
		serviceError(w, err)
		return
	}
	toJSON(w, http.StatusOK, toAccountResponse(a))
}

func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	guid, ok := parseGUID(r, "id")
	if !ok {
		badRequest(w, "invalid account guid")
		return
	}
	if err := s.registry.Delete(r.Context(), guid); err != nil {
		serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) enumerateAccounts(w http.ResponseWriter, r *http.Request) {
	var req enumerateAccountsRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	q := ledger.AccountQuery{
		Skip:              req.Skip,
		ContinuationToken: req.ContinuationToken,
		SearchTerm:        req.SearchTerm,
		BalanceMin:        req.BalanceMin,
		BalanceMax:        req.BalanceMax,
		Ordering:          ledger.Ordering(req.Ordering),
	}
	if req.MaxResults != nil {
		if *req.MaxResults <= 0 {
			badRequest(w, "MaxResults must be positive")
			return
		}
		q.MaxResults = *req.MaxResults
	}
	page, err := s.registry.Enumerate(r.Context(), q)
	if err != nil {
		serviceError(w, err)
		return
	}
	objects := make([]accountResponse, 0, len(page.Objects))
	for _, a := range page.Objects {
		objects = append(objects, toAccountResponse(a))
	}
	toJSON(w, http.StatusOK, enumerationResponse[accountResponse]{
		TotalRecords:      page.TotalRecords,
		Objects:           objects,
		RecordsRemaining:  page.RecordsRemaining,
		EndOfResults:      page.EndOfResults,
		ContinuationToken: page.ContinuationToken,
	})
}
