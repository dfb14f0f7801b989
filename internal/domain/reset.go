package domain

import "time"

// PasswordResetRequest authorizes setting a new password for Email without the old one.
// Reset codes are globally unique.
type PasswordResetRequest struct {
	Code       string     `json:"-" dynamodbav:"reset_code"`
	Email      string     `json:"email" dynamodbav:"email"`
	CreatedAt  time.Time  `json:"created" dynamodbav:"created_at"`
	ExpiresAt  int64      `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix seconds)
	ConsumedAt *time.Time `json:"consumed_at,omitempty" dynamodbav:"consumed_at,omitempty"`
}

// Usable reports whether the code can still be redeemed at now.
func (r *PasswordResetRequest) Usable(now time.Time) bool {
	return r.ConsumedAt == nil && now.Unix() < r.ExpiresAt
}
