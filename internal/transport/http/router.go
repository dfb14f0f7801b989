package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-accounts-nosql/internal/config"
	"github.com/go-accounts-nosql/internal/observability"
	"github.com/go-accounts-nosql/internal/transport/http/handler"
	appmiddleware "github.com/go-accounts-nosql/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(appmiddleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	// Hashing can take seconds under the sensitive profile.
	r.Use(chimiddleware.Timeout(30 * time.Second))

	errs := handler.ErrorWriter{Detailed: cfg.DetailedAuthErrors}
	healthH := handler.NewHealthHandler()
	accountH := handler.NewAccountHandler(deps.Accounts, deps.Notifier, errs)
	resetH := handler.NewPasswordResetHandler(deps.Accounts, deps.Notifier, errs)

	if deps.Registry != nil {
		r.Handle("/metrics", observability.Handler(deps.Registry))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)
		r.Get("/accounts/activate/{code}", accountH.ActivateLink)
		if cfg.DetailedAuthErrors {
			// Reveals whether an email is registered.
			r.Get("/accounts/status", accountH.Status)
		}

		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.RequireJSON)

			r.Post("/accounts", accountH.Signup)
			r.Post("/accounts/login", accountH.Login)
			r.Post("/accounts/activate", accountH.Activate)
			r.Post("/accounts/activation/resend", accountH.ResendActivation)
			r.Post("/password-reset/request", resetH.Request)
			r.Post("/password-reset/complete", resetH.Complete)
			r.Post("/password-reset/change", resetH.Change)
		})
	})

	return r
}
