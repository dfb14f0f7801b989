package handler

import (
	"errors"
	"net/http"

	"github.com/go-accounts-nosql/internal/application/account"
	"github.com/go-accounts-nosql/internal/application/notification"
	"github.com/go-accounts-nosql/internal/domain"
)

type PasswordResetRequest struct {
	Email string `json:"email" validate:"required"`
}

type PasswordResetCompleteRequest struct {
	Email       string `json:"email" validate:"required"`
	Code        string `json:"code" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

type ChangePasswordRequest struct {
	Email       string `json:"email" validate:"required"`
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,nefield=OldPassword"`
}

const msgResetSent = "if the account exists, a password reset code has been sent"

// PasswordResetHandler handles the password reset flow endpoints.
type PasswordResetHandler struct {
	svc      account.Service
	notifier notification.Service
	errs     ErrorWriter
}

func NewPasswordResetHandler(svc account.Service, notifier notification.Service, errs ErrorWriter) *PasswordResetHandler {
	return &PasswordResetHandler{svc: svc, notifier: notifier, errs: errs}
}

// Request issues a reset code and emails it. Unknown emails get the same
// response as known ones.
func (h *PasswordResetHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if !decode(w, r, &req) {
		return
	}
	if _, err := h.svc.GetUser(r.Context(), req.Email); err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) && !h.errs.Detailed {
			writeJSON(w, http.StatusAccepted, MessageEnvelope{Message: msgResetSent})
			return
		}
		h.errs.Write(w, r, err)
		return
	}
	code, err := h.svc.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	if err := h.notifier.SendPasswordReset(r.Context(), req.Email, code); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, MessageEnvelope{Message: msgResetSent})
}

// Complete sets a new password using a reset code.
func (h *PasswordResetHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetCompleteRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Email, req.NewPassword, req.Code, false); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password updated"})
}

// Change sets a new password using the current one.
func (h *PasswordResetHandler) Change(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Email, req.NewPassword, req.OldPassword, true); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password updated"})
}
