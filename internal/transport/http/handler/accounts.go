package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-accounts-nosql/internal/application/account"
	"github.com/go-accounts-nosql/internal/application/notification"
	"github.com/go-accounts-nosql/internal/domain"
	"github.com/go-accounts-nosql/internal/pkg/validate"
	"github.com/go-chi/chi/v5"
)

type SignupRequest struct {
	Email    string            `json:"email" validate:"required"`
	Password string            `json:"password" validate:"required"`
	Profile  map[string]string `json:"profile" validate:"omitempty,max=16,dive,keys,max=64,endkeys,max=256"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type ActivateRequest struct {
	Code string `json:"code" validate:"required"`
}

type ResendActivationRequest struct {
	Email string `json:"email" validate:"required"`
}

type statusQuery struct {
	Email string `validate:"required,account_email"`
}

const msgActivationSent = "if the account exists and is awaiting activation, an activation email has been sent"

// AccountHandler handles registration, activation and login endpoints.
type AccountHandler struct {
	svc      account.Service
	notifier notification.Service
	errs     ErrorWriter
}

func NewAccountHandler(svc account.Service, notifier notification.Service, errs ErrorWriter) *AccountHandler {
	return &AccountHandler{svc: svc, notifier: notifier, errs: errs}
}

func (h *AccountHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !decode(w, r, &req) {
		return
	}
	code, err := h.svc.Signup(r.Context(), req.Email, req.Password, req.Profile)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	msg := "account created, check your email to activate it"
	if err := h.notifier.SendActivation(r.Context(), req.Email, code); err != nil {
		msg = "account created, but the activation email could not be sent; request a new one"
	}
	writeJSON(w, http.StatusCreated, AccountEnvelope{Email: req.Email, Status: domain.UserStatusPending, Message: msg})
}

func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}
	userID, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountEnvelope{UserID: userID, Message: "credentials verified"})
}

// Activate accepts the code in a JSON body.
func (h *AccountHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if !decode(w, r, &req) {
		return
	}
	h.activate(w, r, req.Code)
}

// ActivateLink serves the link sent in activation emails.
func (h *AccountHandler) ActivateLink(w http.ResponseWriter, r *http.Request) {
	h.activate(w, r, chi.URLParam(r, "code"))
}

func (h *AccountHandler) activate(w http.ResponseWriter, r *http.Request, code string) {
	email, err := h.svc.Activate(r.Context(), code)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountEnvelope{Email: email, Status: domain.UserStatusActive, Message: "account activated"})
}

// ResendActivation emails the outstanding activation code, or a fresh one when
// the old code expired. The response does not reveal whether the account exists.
func (h *AccountHandler) ResendActivation(w http.ResponseWriter, r *http.Request) {
	var req ResendActivationRequest
	if !decode(w, r, &req) {
		return
	}
	code, err := h.svc.GetActivationCode(r.Context(), req.Email)
	switch {
	case err == nil:
		if err := h.notifier.SendActivation(r.Context(), req.Email, code); err != nil {
			h.errs.Write(w, r, err)
			return
		}
	case errors.Is(err, domain.ErrAccountNotFound), errors.Is(err, domain.ErrInvalidActivationCode):
		if h.errs.Detailed {
			h.errs.Write(w, r, err)
			return
		}
	default:
		h.errs.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, MessageEnvelope{Message: msgActivationSent})
}

// Status reports the activation state of an account.
func (h *AccountHandler) Status(w http.ResponseWriter, r *http.Request) {
	q := statusQuery{Email: r.URL.Query().Get("email")}
	if err := validate.Struct(&q); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	u, err := h.svc.GetUser(r.Context(), q.Email)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	env := AccountEnvelope{UserID: u.UserID, Email: u.Email, Status: u.Status}
	if u.ActivatedAt != nil {
		env.ActivatedAt = u.ActivatedAt.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, env)
}
