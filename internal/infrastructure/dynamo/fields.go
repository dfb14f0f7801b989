package dynamo

// DynamoDB attribute names used in key, condition and update expressions across all repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldEmail          = "email"
	fieldStatus         = "status"
	fieldPasswordHash   = "password_hash"
	fieldActivatedAt    = "activated_at"
	fieldUpdatedAt      = "updated_at"
	fieldActivationCode = "activation_code"
	fieldResetCode      = "reset_code"
	fieldExpiresAt      = "expires_at"
	fieldConsumedAt     = "consumed_at"
	fieldUniqueKey      = "unique_key"
)

