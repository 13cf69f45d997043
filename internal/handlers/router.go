package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	mW "github.com/ruralpay/collections/internal/middleware"
)

// RouterConfig collects what the HTTP surface needs.
type RouterConfig struct {
	JWTSecret    string
	Sessions     mW.SessionChecker
	StatusCache  mW.StatusCache
	StatusSource mW.StatusSource

	Auth          *AuthHandler
	Collections   *CollectionHandler
	Summaries     *SummaryHandler
	Accounts      *AccountHandler
	Subscriptions *SubscriptionHandler
}

// NewRouter mounts the API under /api/v1. Tenant data routes sit behind the
// subscription gate; platform and subscription routes do not, so a suspended
// company's admin can still see why.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", cfg.Auth.Login)

		r.Group(func(r chi.Router) {
			r.Use(mW.Authenticate(cfg.JWTSecret, cfg.Sessions))

			r.Post("/auth/logout", cfg.Auth.Logout)

			r.Post("/subscriptions", cfg.Subscriptions.Activate)
			r.Post("/subscriptions/sweep", cfg.Subscriptions.Sweep)
			r.Post("/subscriptions/{id}/cancel", cfg.Subscriptions.Cancel)
			r.Post("/companies/{id}/suspend", cfg.Subscriptions.Suspend)
			r.Post("/companies/{id}/reactivate", cfg.Subscriptions.Reactivate)
			r.Get("/companies/{id}/subscription", cfg.Subscriptions.Current)
			r.Get("/companies/{id}/subscriptions", cfg.Subscriptions.History)

			r.Group(func(r chi.Router) {
				r.Use(mW.SubscriptionGate(cfg.StatusCache, cfg.StatusSource))

				r.Post("/collections", cfg.Collections.Create)
				r.Get("/collections", cfg.Collections.List)
				r.Get("/collections/stats", cfg.Collections.Stats)
				r.Get("/collections/{id}", cfg.Collections.Get)
				r.Patch("/collections/{id}", cfg.Collections.Update)
				r.Delete("/collections/{id}", cfg.Collections.Delete)

				r.Post("/summaries", cfg.Summaries.Generate)
				r.Get("/summaries", cfg.Summaries.List)
				r.Get("/summaries/{id}", cfg.Summaries.Get)
				r.Patch("/summaries/{id}", cfg.Summaries.Update)
				r.Post("/summaries/{id}/lock", cfg.Summaries.Lock)
				r.Post("/summaries/{id}/unlock", cfg.Summaries.Unlock)

				r.Get("/accounts/{id}/entries", cfg.Accounts.Entries)
				r.Get("/accounts/{id}/qr", cfg.Accounts.Card)
				r.Post("/accounts/{id}/deposits", cfg.Accounts.Deposit)
				r.Post("/accounts/{id}/withdrawals", cfg.Accounts.Withdraw)
			})
		})
	})

	return r
}
