// Package httpapi wires the HTTP surface of the service. Handlers stay thin
// and delegate business rules to the service layer.
package httpapi

import (
	"context"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"log/slog"

	"github.com/netledger/netledger/internal/service/apikey"
	"github.com/netledger/netledger/internal/service/ledgercore"
	"github.com/netledger/netledger/internal/service/registry"
)

// Server composes the services behind chi routing and middleware.
type Server struct {
	registry *registry.Service
	core     *ledgercore.Service
	keys     *apikey.Service
	ready    ReadyChecker
	log      *slog.Logger
	rt       *chi.Mux
}

// ReadyChecker reports whether the backing store can serve traffic.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

// New constructs the HTTP server with routes and middleware.
func New(reg *registry.Service, core *ledgercore.Service, keys *apikey.Service, ready ReadyChecker, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "PUT", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "x-api-key"},
	}))

	s := &Server{
		registry: reg,
		core:     core,
		keys:     keys,
		ready:    ready,
		rt:       r,
		log:      logger,
	}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

// routes declares the public HTTP API endpoints and attaches any per-route
// middleware.
func (s *Server) routes() {
	s.rt.Group(func(r chi.Router) {
		r.Use(s.authAPIKey)

		// Accounts
		r.Put("/v1/accounts", s.createAccount)
		r.Get("/v1/accounts", s.getAccountByName)
		r.Post("/v1/accounts/enumerate", s.enumerateAccounts)
		r.Get("/v1/accounts/{id}", s.getAccount)
		r.Patch("/v1/accounts/{id}", s.updateAccount)
		r.Delete("/v1/accounts/{id}", s.deleteAccount)

		// Credits and debits
		r.Put("/v1/accounts/{id}/credits", s.addCredit)
		r.Put("/v1/accounts/{id}/credits/batch", s.addCreditsBatch)
		r.Get("/v1/accounts/{id}/credits/pending", s.pendingCredits)
		r.Put("/v1/accounts/{id}/debits", s.addDebit)
		r.Put("/v1/accounts/{id}/debits/batch", s.addDebitsBatch)
		r.Get("/v1/accounts/{id}/debits/pending", s.pendingDebits)

		// Commit and balances
		r.Post("/v1/accounts/{id}/commit", s.commit)
		r.Get("/v1/accounts/{id}/balance", s.getBalance)
		r.Get("/v1/accounts/{id}/balance/asof", s.getBalanceAsOf)
		r.Get("/v1/accounts/{id}/verify", s.verifyChain)

		// Entries
		r.Post("/v1/accounts/{id}/entries/enumerate", s.enumerateEntries)
		r.Get("/v1/accounts/{id}/entries/{entryID}", s.getEntry)
		r.Delete("/v1/accounts/{id}/entries/{entryID}", s.cancelEntry)

		// Credential management (admin only)
		r.Group(func(admin chi.Router) {
			admin.Use(s.requireAdmin)
			admin.Post("/v1/apikeys", s.createAPIKey)
			admin.Get("/v1/apikeys", s.listAPIKeys)
			admin.Get("/v1/apikeys/{id}", s.getAPIKey)
			admin.Delete("/v1/apikeys/{id}", s.deleteAPIKey)
		})
	})

	// Health and metrics (unauthenticated)
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Method(http.MethodGet, "/metrics", metricsHandler())
}
