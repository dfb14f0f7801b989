// Package account implements the account credential lifecycle: signup,
// activation, login verification and password reset.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-accounts-nosql/internal/domain"
	"github.com/go-accounts-nosql/internal/observability"
	"github.com/go-accounts-nosql/internal/pkg/id"
	"github.com/go-accounts-nosql/internal/pkg/token"
	"github.com/go-accounts-nosql/internal/pkg/validate"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultActivationTTL = 7 * 24 * time.Hour
	DefaultResetTTL      = time.Hour
	DefaultStoreTimeout  = 5 * time.Second
)

type Service interface {
	Signup(ctx context.Context, email, password string, extraFields map[string]string) (activationCode string, err error)
	Login(ctx context.Context, email, password string) (userID string, err error)
	Activate(ctx context.Context, activationCode string) (email string, err error)
	RequestPasswordReset(ctx context.Context, email string) (resetCode string, err error)
	ResetPassword(ctx context.Context, email, newPassword, proof string, proofIsOldPassword bool) error
	GetActivationCode(ctx context.Context, email string) (string, error)
	GetUser(ctx context.Context, email string) (*domain.User, error)
}

type userStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdatePasswordHash(ctx context.Context, email, hash string, at time.Time) error
}

type activationStore interface {
	CreateWithUser(ctx context.Context, u *domain.User, a *domain.ActivationRequest) error
	GetByCode(ctx context.Context, code string) (*domain.ActivationRequest, error)
	GetByEmail(ctx context.Context, email string) (*domain.ActivationRequest, error)
	Consume(ctx context.Context, a *domain.ActivationRequest, at time.Time) error
	Reissue(ctx context.Context, prev, next *domain.ActivationRequest) error
}

type resetStore interface {
	Put(ctx context.Context, r *domain.PasswordResetRequest) error
	GetByCode(ctx context.Context, code string) (*domain.PasswordResetRequest, error)
	Redeem(ctx context.Context, r *domain.PasswordResetRequest, passwordHash string, at time.Time) error
}

type hasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, encoded, password string) (bool, error)
}

type service struct {
	users         userStore
	activations   activationStore
	resets        resetStore
	hasher        hasher
	policy        validate.PasswordPolicy
	now           func() time.Time
	newCode       func(seed string) (string, error)
	activationTTL time.Duration
	resetTTL      time.Duration
	storeTimeout  time.Duration
	metrics       *observability.Metrics
}

// ServiceDeps holds the collaborators of the account service. Zero durations,
// a nil Now and a nil NewCode fall back to defaults.
type ServiceDeps struct {
	UserRepo       userStore
	ActivationRepo activationStore
	ResetRepo      resetStore
	Hasher         hasher
	Policy         validate.PasswordPolicy
	Now            func() time.Time
	NewCode        func(seed string) (string, error)
	ActivationTTL  time.Duration
	ResetTTL       time.Duration
	StoreTimeout   time.Duration
	Metrics        *observability.Metrics
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		users:         deps.UserRepo,
		activations:   deps.ActivationRepo,
		resets:        deps.ResetRepo,
		hasher:        deps.Hasher,
		policy:        deps.Policy,
		now:           deps.Now,
		newCode:       deps.NewCode,
		activationTTL: deps.ActivationTTL,
		resetTTL:      deps.ResetTTL,
		storeTimeout:  deps.StoreTimeout,
		metrics:       deps.Metrics,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newCode == nil {
		s.newCode = token.Generate
	}
	if s.activationTTL <= 0 {
		s.activationTTL = DefaultActivationTTL
	}
	if s.resetTTL <= 0 {
		s.resetTTL = DefaultResetTTL
	}
	if s.storeTimeout <= 0 {
		s.storeTimeout = DefaultStoreTimeout
	}
	return s
}

func (s *service) Signup(ctx context.Context, email, password string, extraFields map[string]string) (code string, err error) {
	defer func() { s.metrics.RecordOperation("signup", outcome(err)) }()

	email = normalizeEmail(email)
	if err := s.checkEmail(email); err != nil {
		return "", err
	}
	if err := s.checkPassword(password); err != nil {
		return "", err
	}
	hash, err := s.hash(ctx, password)
	if err != nil {
		return "", err
	}
	code, err = s.newCode(email)
	if err != nil {
		return "", fmt.Errorf("generate activation code: %w", err)
	}

	now := s.now().UTC()
	u := &domain.User{
		UserID:       id.NewAt(now),
		Email:        email,
		PasswordHash: hash,
		Status:       domain.UserStatusPending,
		Profile:      copyFields(extraFields),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	a := &domain.ActivationRequest{
		Code:      code,
		Email:     email,
		UserID:    u.UserID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.activationTTL).Unix(),
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.activations.CreateWithUser(sctx, u, a); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return "", fmt.Errorf("signup %s: %w", email, domain.ErrAlreadyExists)
		}
		return "", s.storeErr("signup", err)
	}
	return code, nil
}

func (s *service) Login(ctx context.Context, email, password string) (userID string, err error) {
	defer func() { s.metrics.RecordOperation("login", outcome(err)) }()

	email = normalizeEmail(email)
	if err := s.checkEmail(email); err != nil {
		return "", err
	}
	if err := s.checkPassword(password); err != nil {
		return "", err
	}
	u, err := s.getUser(ctx, "login", email)
	if err != nil {
		return "", err
	}
	if !u.IsActive() {
		return "", fmt.Errorf("login %s: %w", email, domain.ErrAccountNotActivated)
	}
	ok, err := s.verify(ctx, u.PasswordHash, password)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("login %s: %w", email, domain.ErrInvalidCredentials)
	}
	return u.UserID, nil
}

func (s *service) Activate(ctx context.Context, activationCode string) (email string, err error) {
	defer func() { s.metrics.RecordOperation("activate", outcome(err)) }()

	if activationCode == "" {
		return "", domain.ErrInvalidActivationCode
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	a, err := s.activations.GetByCode(sctx, activationCode)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.ErrInvalidActivationCode
		}
		return "", s.storeErr("activate", err)
	}
	now := s.now()
	if !a.Usable(now) {
		return "", domain.ErrInvalidActivationCode
	}

	cctx, ccancel := s.storeCtx(ctx)
	defer ccancel()
	if err := s.activations.Consume(cctx, a, now); err != nil {
		switch {
		case errors.Is(err, domain.ErrConflict):
			return "", fmt.Errorf("activate %s: %w", a.Email, domain.ErrAlreadyActivated)
		case errors.Is(err, domain.ErrNotFound):
			return "", domain.ErrInvalidActivationCode
		}
		return "", s.storeErr("activate", err)
	}
	return a.Email, nil
}

// RequestPasswordReset stores a new reset code for email. It does not check that
// the account exists; delivery of the code is the caller's concern.
func (s *service) RequestPasswordReset(ctx context.Context, email string) (code string, err error) {
	defer func() { s.metrics.RecordOperation("request_password_reset", outcome(err)) }()

	email = normalizeEmail(email)
	if err := s.checkEmail(email); err != nil {
		return "", err
	}

	// A colliding code is regenerated once.
	backoff := retry.WithMaxRetries(1, retry.NewConstant(10*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, err := s.newCode(email)
		if err != nil {
			return fmt.Errorf("generate reset code: %w", err)
		}
		now := s.now().UTC()
		req := &domain.PasswordResetRequest{
			Code:      c,
			Email:     email,
			CreatedAt: now,
			ExpiresAt: now.Add(s.resetTTL).Unix(),
		}
		sctx, cancel := s.storeCtx(ctx)
		defer cancel()
		if err := s.resets.Put(sctx, req); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				return retry.RetryableError(err)
			}
			return err
		}
		code = c
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return "", fmt.Errorf("request password reset: %w", domain.ErrAlreadyExists)
		}
		return "", s.storeErr("request_password_reset", err)
	}
	return code, nil
}

// ResetPassword sets a new password for email. proof is either the current
// password (proofIsOldPassword) or a reset code issued for the same email.
func (s *service) ResetPassword(ctx context.Context, email, newPassword, proof string, proofIsOldPassword bool) (err error) {
	op := "reset_password_code"
	if proofIsOldPassword {
		op = "reset_password_old"
	}
	defer func() { s.metrics.RecordOperation(op, outcome(err)) }()

	email = normalizeEmail(email)
	if err := s.checkEmail(email); err != nil {
		return err
	}
	if proofIsOldPassword {
		return s.changePassword(ctx, email, proof, newPassword)
	}
	return s.redeemReset(ctx, email, proof, newPassword)
}

func (s *service) changePassword(ctx context.Context, email, oldPassword, newPassword string) error {
	if err := s.checkPassword(oldPassword); err != nil {
		return err
	}
	u, err := s.getUser(ctx, "reset_password", email)
	if err != nil {
		return err
	}
	ok, err := s.verify(ctx, u.PasswordHash, oldPassword)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("reset password %s: %w", email, domain.ErrInvalidCredentials)
	}
	if err := s.checkPassword(newPassword); err != nil {
		return err
	}
	hash, err := s.hash(ctx, newPassword)
	if err != nil {
		return err
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.users.UpdatePasswordHash(sctx, email, hash, s.now()); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("reset password %s: %w", email, domain.ErrAccountNotFound)
		}
		return s.storeErr("reset_password", err)
	}
	return nil
}

func (s *service) redeemReset(ctx context.Context, email, code, newPassword string) error {
	if code == "" {
		return domain.ErrInvalidResetCode
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	req, err := s.resets.GetByCode(sctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrInvalidResetCode
		}
		return s.storeErr("reset_password", err)
	}
	if req.Email != email || !req.Usable(s.now()) {
		return domain.ErrInvalidResetCode
	}
	if err := s.checkPassword(newPassword); err != nil {
		return err
	}
	hash, err := s.hash(ctx, newPassword)
	if err != nil {
		return err
	}

	rctx, rcancel := s.storeCtx(ctx)
	defer rcancel()
	if err := s.resets.Redeem(rctx, req, hash, s.now()); err != nil {
		switch {
		case errors.Is(err, domain.ErrConflict):
			return domain.ErrInvalidResetCode
		case errors.Is(err, domain.ErrNotFound):
			return fmt.Errorf("reset password %s: %w", email, domain.ErrAccountNotFound)
		}
		return s.storeErr("reset_password", err)
	}
	return nil
}

// GetActivationCode returns the outstanding activation code for email, for
// resending it to the address owner. A pending account whose code expired, or
// whose request was swept by TTL, is issued a fresh code.
func (s *service) GetActivationCode(ctx context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	if err := s.checkEmail(email); err != nil {
		return "", err
	}
	a, err := s.activationByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if a != nil {
		if a.Usable(s.now()) {
			return a.Code, nil
		}
		if a.ConsumedAt != nil {
			return "", domain.ErrInvalidActivationCode
		}
	}
	u, err := s.getUser(ctx, "get_activation_code", email)
	if err != nil {
		return "", err
	}
	if u.Status != domain.UserStatusPending {
		return "", domain.ErrInvalidActivationCode
	}
	return s.reissueActivation(ctx, u, a)
}

// activationByEmail returns nil when email has no activation request.
func (s *service) activationByEmail(ctx context.Context, email string) (*domain.ActivationRequest, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	a, err := s.activations.GetByEmail(sctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, s.storeErr("get_activation_code", err)
	}
	return a, nil
}

// reissueActivation replaces prev (nil when swept) with a fresh request for
// the pending user u. Losing a race to a concurrent reissue returns the
// winner's code.
func (s *service) reissueActivation(ctx context.Context, u *domain.User, prev *domain.ActivationRequest) (code string, err error) {
	defer func() { s.metrics.RecordOperation("reissue_activation", outcome(err)) }()

	backoff := retry.WithMaxRetries(1, retry.NewConstant(10*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, err := s.newCode(u.Email)
		if err != nil {
			return fmt.Errorf("generate activation code: %w", err)
		}
		now := s.now().UTC()
		next := &domain.ActivationRequest{
			Code:      c,
			Email:     u.Email,
			UserID:    u.UserID,
			CreatedAt: now,
			ExpiresAt: now.Add(s.activationTTL).Unix(),
		}
		sctx, cancel := s.storeCtx(ctx)
		defer cancel()
		if err := s.activations.Reissue(sctx, prev, next); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				return retry.RetryableError(err)
			}
			return err
		}
		code = c
		return nil
	})
	switch {
	case err == nil:
		return code, nil
	case errors.Is(err, domain.ErrConflict):
		a, rerr := s.activationByEmail(ctx, u.Email)
		if rerr != nil {
			return "", rerr
		}
		if a != nil && a.Usable(s.now()) {
			return a.Code, nil
		}
		return "", domain.ErrInvalidActivationCode
	case errors.Is(err, domain.ErrAlreadyExists):
		return "", fmt.Errorf("reissue activation %s: %w", u.Email, domain.ErrAlreadyExists)
	}
	return "", s.storeErr("reissue_activation", err)
}

func (s *service) GetUser(ctx context.Context, email string) (*domain.User, error) {
	email = normalizeEmail(email)
	if err := s.checkEmail(email); err != nil {
		return nil, err
	}
	return s.getUser(ctx, "get_user", email)
}

// --- helpers ---

func (s *service) getUser(ctx context.Context, op, email string) (*domain.User, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	u, err := s.users.GetByEmail(sctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%s %s: %w", op, email, domain.ErrAccountNotFound)
		}
		return nil, s.storeErr(op, err)
	}
	return u, nil
}

func (s *service) checkEmail(email string) error {
	if !validate.Email(email) {
		return domain.NewValidationError("Ill-formed email address")
	}
	return nil
}

func (s *service) checkPassword(password string) error {
	if err := validate.Password(password, s.policy); err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			return domain.NewValidationError("Ill-formed password:" + ve.Reason)
		}
		return err
	}
	return nil
}

func (s *service) hash(ctx context.Context, password string) (string, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveHash("hash", time.Since(start)) }()
	return s.hasher.Hash(ctx, password)
}

func (s *service) verify(ctx context.Context, encoded, password string) (bool, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveHash("verify", time.Since(start)) }()
	return s.hasher.Verify(ctx, encoded, password)
}

func (s *service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

// storeErr converts an unexpected store failure into ErrStorageTimeout or
// ErrStorage. The underlying cause is logged, not returned.
func (s *service) storeErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		slog.Warn("store call timed out", "op", op, "err", err)
		return fmt.Errorf("%s: %w", op, domain.ErrStorageTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, context.Canceled)
	}
	slog.Error("store call failed", "op", op, "err", err)
	return fmt.Errorf("%s: %w", op, domain.ErrStorage)
}

func normalizeEmail(email string) string {
	return strings.ToLower(email)
}

func copyFields(fields map[string]string) map[string]string {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// outcome is the metrics label for an operation result.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, domain.ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, domain.ErrAccountNotActivated):
		return "not_activated"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, domain.ErrInvalidActivationCode):
		return "invalid_activation_code"
	case errors.Is(err, domain.ErrInvalidResetCode):
		return "invalid_reset_code"
	case errors.Is(err, domain.ErrAlreadyActivated):
		return "already_activated"
	case errors.Is(err, domain.ErrHashingResource):
		return "hashing_resource"
	case errors.Is(err, domain.ErrStorageTimeout):
		return "storage_timeout"
	default:
		return "storage"
	}
}
