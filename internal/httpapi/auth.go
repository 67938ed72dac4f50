package httpapi

import (
	"context"
	"net/http"

	"github.com/netledger/netledger/internal/ledger"
)

type ctxKey string

const ctxKeyAPIKey ctxKey = "apikey"

// authAPIKey enforces the x-api-key header, resolving it through the key
// service and stashing the credential in the request context.
func (s *Server) authAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		k, err := s.keys.Authenticate(r.Context(), r.Header.Get("x-api-key"))
		if err != nil {
			serviceError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyAPIKey, k)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin gates credential management behind admin keys.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		k, ok := r.Context().Value(ctxKeyAPIKey).(ledger.APIKey)
		if !ok || !k.IsAdmin {
			unauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
