package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-accounts-nosql/internal/domain"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// msgAuthFailed replaces the individual login failure reasons unless detailed
// errors are enabled.
const msgAuthFailed = "invalid email or password"

// ErrorWriter maps service errors to HTTP responses.
type ErrorWriter struct {
	// Detailed exposes "not found", "not activated" and "wrong password" as
	// distinct responses. Off by default so callers cannot enumerate accounts.
	Detailed bool
}

func (ew ErrorWriter) Write(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := ew.classify(err)
	attrs := []any{"method", r.Method, "path", r.URL.Path, "status", status, "err", err}
	if id := chimiddleware.GetReqID(r.Context()); id != "" {
		attrs = append(attrs, "request_id", id)
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", attrs...)
	} else {
		slog.Info("request rejected", attrs...)
	}
	writeError(w, status, msg)
}

func (ew ErrorWriter) classify(err error) (int, string) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, ve.Reason
	case errors.Is(err, domain.ErrAccountNotFound):
		if ew.Detailed {
			return http.StatusNotFound, "account not found"
		}
		return http.StatusUnauthorized, msgAuthFailed
	case errors.Is(err, domain.ErrAccountNotActivated):
		if ew.Detailed {
			return http.StatusForbidden, "account not activated"
		}
		return http.StatusUnauthorized, msgAuthFailed
	case errors.Is(err, domain.ErrInvalidCredentials):
		if ew.Detailed {
			return http.StatusUnauthorized, "invalid credentials"
		}
		return http.StatusUnauthorized, msgAuthFailed
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, "account already exists"
	case errors.Is(err, domain.ErrAlreadyActivated):
		return http.StatusConflict, "account already activated"
	case errors.Is(err, domain.ErrInvalidActivationCode):
		return http.StatusBadRequest, "invalid activation code"
	case errors.Is(err, domain.ErrInvalidResetCode):
		return http.StatusBadRequest, "invalid reset code"
	case errors.Is(err, domain.ErrHashingResource), errors.Is(err, domain.ErrStorageTimeout):
		return http.StatusServiceUnavailable, "service busy, retry later"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
