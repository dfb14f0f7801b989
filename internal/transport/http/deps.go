package http

import (
	"log/slog"

	"github.com/go-accounts-nosql/internal/application/account"
	"github.com/go-accounts-nosql/internal/application/notification"
	"github.com/prometheus/client_golang/prometheus"
)

// Deps holds the services the router exposes.
type Deps struct {
	Accounts account.Service
	Notifier notification.Service
	// Registry is served on /metrics when non-nil.
	Registry *prometheus.Registry
	Logger   *slog.Logger
}
