package domain

import "time"

// UserStatus is the activation state of an account. The only transition is pending -> active.
type UserStatus string

const (
	UserStatusPending UserStatus = "pending"
	UserStatusActive  UserStatus = "active"
)

type User struct {
	UserID       string            `json:"id" dynamodbav:"user_id"`
	Email        string            `json:"email" dynamodbav:"email"`
	PasswordHash string            `json:"-" dynamodbav:"password_hash"`
	Status       UserStatus        `json:"status" dynamodbav:"status"`
	Profile      map[string]string `json:"profile,omitempty" dynamodbav:"profile,omitempty"`
	ActivatedAt  *time.Time        `json:"activated_at,omitempty" dynamodbav:"activated_at,omitempty"`
	CreatedAt    time.Time         `json:"created" dynamodbav:"created_at"`
	UpdatedAt    time.Time         `json:"updated" dynamodbav:"updated_at"`
}

// IsActive reports whether the account may log in.
func (u *User) IsActive() bool { return u.Status == UserStatusActive }
