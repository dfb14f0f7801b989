// Package memory is an in-process store with the same uniqueness and
// conditional-update behaviour as the DynamoDB repositories. It backs local
// runs (STORE_DRIVER=memory) and service tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-accounts-nosql/internal/domain"
)

// Store holds all collections under one lock so multi-record writes are atomic.
type Store struct {
	mu          sync.Mutex
	users       map[string]domain.User                 // by email
	activations map[string]domain.ActivationRequest    // by email
	codes       map[string]string                      // activation code -> email
	resets      map[string]domain.PasswordResetRequest // by reset code
}

func New() *Store {
	return &Store{
		users:       make(map[string]domain.User),
		activations: make(map[string]domain.ActivationRequest),
		codes:       make(map[string]string),
		resets:      make(map[string]domain.PasswordResetRequest),
	}
}

// Users, Activations and Resets expose the store through the same method sets
// as the DynamoDB repositories.
func (s *Store) Users() *UserRepo             { return &UserRepo{s} }
func (s *Store) Activations() *ActivationRepo { return &ActivationRepo{s} }
func (s *Store) Resets() *ResetRepo           { return &ResetRepo{s} }

type UserRepo struct{ s *Store }

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[email]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return cloneUser(u), nil
}

func (r *UserRepo) UpdatePasswordHash(ctx context.Context, email, hash string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[email]
	if !ok {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	u.PasswordHash = hash
	u.UpdatedAt = at.UTC()
	r.s.users[email] = u
	return nil
}

type ActivationRepo struct{ s *Store }

func (r *ActivationRepo) CreateWithUser(ctx context.Context, u *domain.User, a *domain.ActivationRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, userTaken := r.s.users[u.Email]
	_, activationTaken := r.s.activations[a.Email]
	_, codeTaken := r.s.codes[a.Code]
	if userTaken || activationTaken || codeTaken {
		return fmt.Errorf("account %s: %w", a.Email, domain.ErrAlreadyExists)
	}
	r.s.users[u.Email] = *cloneUser(*u)
	r.s.activations[a.Email] = *a
	r.s.codes[a.Code] = a.Email
	return nil
}

func (r *ActivationRepo) GetByCode(ctx context.Context, code string) (*domain.ActivationRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	email, ok := r.s.codes[code]
	if !ok {
		return nil, fmt.Errorf("activation request not found: %w", domain.ErrNotFound)
	}
	a, ok := r.s.activations[email]
	if !ok || a.Code != code {
		return nil, fmt.Errorf("activation request not found: %w", domain.ErrNotFound)
	}
	return &a, nil
}

func (r *ActivationRepo) GetByEmail(ctx context.Context, email string) (*domain.ActivationRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.activations[email]
	if !ok {
		return nil, fmt.Errorf("activation request not found: %w", domain.ErrNotFound)
	}
	return &a, nil
}

// Consume follows the DynamoDB transaction: the user check is reported ahead of
// the code check.
func (r *ActivationRepo) Consume(ctx context.Context, a *domain.ActivationRequest, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	at = at.UTC()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[a.Email]
	if !ok || u.Status != domain.UserStatusPending {
		return fmt.Errorf("user %s not pending: %w", a.Email, domain.ErrConflict)
	}
	stored, ok := r.s.activations[a.Email]
	if !ok || stored.Code != a.Code || !stored.Usable(at) {
		return fmt.Errorf("activation code no longer usable: %w", domain.ErrNotFound)
	}
	stored.ConsumedAt = &at
	r.s.activations[a.Email] = stored
	u.Status = domain.UserStatusActive
	u.ActivatedAt = &at
	u.UpdatedAt = at
	r.s.users[a.Email] = u
	return nil
}

// Reissue replaces prev (nil when absent) with next while the user is pending.
func (r *ActivationRepo) Reissue(ctx context.Context, prev, next *domain.ActivationRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[next.Email]
	if !ok || u.Status != domain.UserStatusPending {
		return fmt.Errorf("user %s not pending: %w", next.Email, domain.ErrConflict)
	}
	stored, exists := r.s.activations[next.Email]
	switch {
	case prev == nil && exists,
		prev != nil && (!exists || stored.Code != prev.Code || stored.ConsumedAt != nil):
		return fmt.Errorf("activation request for %s changed: %w", next.Email, domain.ErrConflict)
	}
	if _, taken := r.s.codes[next.Code]; taken {
		return fmt.Errorf("activation code collision: %w", domain.ErrAlreadyExists)
	}
	if exists {
		delete(r.s.codes, stored.Code)
	}
	r.s.activations[next.Email] = *next
	r.s.codes[next.Code] = next.Email
	return nil
}

// Expire drops the activation request for email and its code, the way a TTL
// sweep would.
func (s *Store) Expire(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.activations[email]; ok {
		delete(s.codes, a.Code)
		delete(s.activations, email)
	}
}

type ResetRepo struct{ s *Store }

func (r *ResetRepo) Put(ctx context.Context, req *domain.PasswordResetRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.resets[req.Code]; ok {
		return fmt.Errorf("reset code collision: %w", domain.ErrAlreadyExists)
	}
	r.s.resets[req.Code] = *req
	return nil
}

func (r *ResetRepo) GetByCode(ctx context.Context, code string) (*domain.PasswordResetRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.resets[code]
	if !ok {
		return nil, fmt.Errorf("reset request not found: %w", domain.ErrNotFound)
	}
	return &req, nil
}

func (r *ResetRepo) Redeem(ctx context.Context, req *domain.PasswordResetRequest, passwordHash string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	at = at.UTC()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.resets[req.Code]
	if !ok || stored.Email != req.Email || !stored.Usable(at) {
		return fmt.Errorf("reset code no longer usable: %w", domain.ErrConflict)
	}
	u, ok := r.s.users[req.Email]
	if !ok {
		return fmt.Errorf("user %s not found: %w", req.Email, domain.ErrNotFound)
	}
	stored.ConsumedAt = &at
	r.s.resets[req.Code] = stored
	u.PasswordHash = passwordHash
	u.UpdatedAt = at
	r.s.users[req.Email] = u
	return nil
}

func cloneUser(u domain.User) *domain.User {
	if u.Profile != nil {
		p := make(map[string]string, len(u.Profile))
		for k, v := range u.Profile {
			p[k] = v
		}
		u.Profile = p
	}
	return &u
}
