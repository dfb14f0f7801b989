package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-accounts-nosql/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestPasswordResetRequest_KnownAccount(t *testing.T) {
	svc, n := &mockAccountSvc{}, &mockNotifier{}
	svc.On("GetUser", mock.Anything, "a@b.com").Return(&domain.User{Email: "a@b.com"}, nil)
	svc.On("RequestPasswordReset", mock.Anything, "a@b.com").Return("reset-code", nil)
	n.On("SendPasswordReset", mock.Anything, "a@b.com", "reset-code").Return(nil)

	rr := httptest.NewRecorder()
	NewPasswordResetHandler(svc, n, ErrorWriter{}).Request(rr, jsonReq(t, http.MethodPost, "/v1/password-reset/request",
		PasswordResetRequest{Email: "a@b.com"}))

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.NotContains(t, rr.Body.String(), "reset-code")
	svc.AssertExpectations(t)
	n.AssertExpectations(t)
}

func TestPasswordResetRequest_UnknownAccountSameResponse(t *testing.T) {
	svc, n := &mockAccountSvc{}, &mockNotifier{}
	svc.On("GetUser", mock.Anything, "x@b.com").Return(nil, domain.ErrAccountNotFound)

	rr := httptest.NewRecorder()
	NewPasswordResetHandler(svc, n, ErrorWriter{}).Request(rr, jsonReq(t, http.MethodPost, "/v1/password-reset/request",
		PasswordResetRequest{Email: "x@b.com"}))

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, msgResetSent, decodeBody[MessageEnvelope](t, rr).Message)
	svc.AssertNotCalled(t, "RequestPasswordReset", mock.Anything, mock.Anything)
}

func TestPasswordResetComplete(t *testing.T) {
	svc := &mockAccountSvc{}
	svc.On("ResetPassword", mock.Anything, "a@b.com", "N3w&better", "code", false).Return(nil)

	rr := httptest.NewRecorder()
	NewPasswordResetHandler(svc, &mockNotifier{}, ErrorWriter{}).Complete(rr, jsonReq(t, http.MethodPost, "/v1/password-reset/complete",
		PasswordResetCompleteRequest{Email: "a@b.com", Code: "code", NewPassword: "N3w&better"}))

	assert.Equal(t, http.StatusOK, rr.Code)
	svc.AssertExpectations(t)
}

func TestPasswordResetComplete_InvalidCode(t *testing.T) {
	svc := &mockAccountSvc{}
	svc.On("ResetPassword", mock.Anything, mock.Anything, mock.Anything, mock.Anything, false).Return(domain.ErrInvalidResetCode)

	rr := httptest.NewRecorder()
	NewPasswordResetHandler(svc, &mockNotifier{}, ErrorWriter{}).Complete(rr, jsonReq(t, http.MethodPost, "/v1/password-reset/complete",
		PasswordResetCompleteRequest{Email: "a@b.com", Code: "stale", NewPassword: "N3w&better"}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestChangePassword(t *testing.T) {
	svc := &mockAccountSvc{}
	svc.On("ResetPassword", mock.Anything, "a@b.com", "N3w&better", "Old!pass1", true).Return(domain.ErrInvalidCredentials)

	rr := httptest.NewRecorder()
	NewPasswordResetHandler(svc, &mockNotifier{}, ErrorWriter{}).Change(rr, jsonReq(t, http.MethodPost, "/v1/password-reset/change",
		ChangePasswordRequest{Email: "a@b.com", OldPassword: "Old!pass1", NewPassword: "N3w&better"}))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestChangePassword_SamePasswordRejected(t *testing.T) {
	rr := httptest.NewRecorder()
	NewPasswordResetHandler(&mockAccountSvc{}, &mockNotifier{}, ErrorWriter{}).Change(rr, jsonReq(t, http.MethodPost, "/v1/password-reset/change",
		ChangePasswordRequest{Email: "a@b.com", OldPassword: "Same!pass1", NewPassword: "Same!pass1"}))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}
