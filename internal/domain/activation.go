package domain

import "time"

// ActivationRequest is the one-time proof that the owner of Email registered UserID.
// There is at most one per email and at most one per code.
type ActivationRequest struct {
	Code       string     `json:"-" dynamodbav:"activation_code"`
	Email      string     `json:"email" dynamodbav:"email"`
	UserID     string     `json:"user_id" dynamodbav:"user_id"`
	CreatedAt  time.Time  `json:"created" dynamodbav:"created_at"`
	ExpiresAt  int64      `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix seconds)
	ConsumedAt *time.Time `json:"consumed_at,omitempty" dynamodbav:"consumed_at,omitempty"`
}

// Usable reports whether the code can still be redeemed at now.
func (a *ActivationRequest) Usable(now time.Time) bool {
	return a.ConsumedAt == nil && now.Unix() < a.ExpiresAt
}
