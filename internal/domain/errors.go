package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrValidation            = errors.New("validation failed")
	ErrAlreadyExists         = errors.New("already exists")
	ErrAccountNotFound       = errors.New("account not found")
	ErrAccountNotActivated   = errors.New("account not activated")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrInvalidActivationCode = errors.New("invalid activation code")
	ErrInvalidResetCode      = errors.New("invalid reset code")
	ErrAlreadyActivated      = errors.New("account already activated")
	ErrHashingResource       = errors.New("password hashing resources unavailable")
	ErrStorage               = errors.New("storage failure")
	ErrStorageTimeout        = errors.New("storage timeout")
)

// Store-level conditions reported by repositories. The account service translates
// them into one of the errors above.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// ValidationError carries the human-readable reason an email or password was rejected.
// The reason is safe to show to the caller verbatim.
type ValidationError struct {
	Reason string
}

func NewValidationError(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

func (e *ValidationError) Error() string { return e.Reason }

func (e *ValidationError) Unwrap() error { return ErrValidation }
