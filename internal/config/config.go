package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort        string
	AppEnv         string
	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables
	StoreDriver    string // "dynamo" | "memory"
	StoreTimeout   time.Duration
	Hash           HashConfig
	Password       PasswordConfig
	ActivationTTL  time.Duration
	ResetTTL       time.Duration
	NotifyDriver   string // "smtp" | "sns" | "log"
	SMTPHost       string
	SMTPPort       string
	SMTPFrom       string
	SMTPUsername   string
	SMTPPassword   string
	SNSRegion      string
	SNSTopicARN    string
	PublicBaseURL  string
	// DetailedAuthErrors exposes "not found" / "not activated" / "wrong password"
	// separately to HTTP callers instead of a single authentication failure.
	DetailedAuthErrors bool
	AllowedOrigins     []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each collection.
type DynamoTables struct {
	Users              string
	ActivationRequests string
	ResetRequests      string
	UniqueKeys         string
}

// HashConfig selects the argon2id cost profile and the memory the process may
// spend on concurrent hashing.
type HashConfig struct {
	Profile        string // "interactive" | "moderate" | "sensitive"
	MemoryBudgetMB int
}

// PasswordConfig holds the password policy thresholds.
type PasswordConfig struct {
	MinUpper   int
	MinSpecial int
	MinDigit   int
	MinLower   int
	MinLength  int
	MaxLength  int
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:        getEnv("APP_PORT", "3000"),
		AppEnv:         getEnv("APP_ENV", "development"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Users:              getEnv("DYNAMO_TABLE_USERS", "users"),
			ActivationRequests: getEnv("DYNAMO_TABLE_ACTIVATION_REQUESTS", "activation_requests"),
			ResetRequests:      getEnv("DYNAMO_TABLE_RESET_REQUESTS", "password_reset_requests"),
			UniqueKeys:         getEnv("DYNAMO_TABLE_UNIQUE_KEYS", "unique_keys"),
		},
		StoreDriver:  getEnv("STORE_DRIVER", "dynamo"),
		StoreTimeout: getEnvDuration("STORE_TIMEOUT", 5*time.Second),
		Hash: HashConfig{
			Profile:        getEnv("HASH_PROFILE", "sensitive"),
			MemoryBudgetMB: getEnvInt("HASH_MEMORY_BUDGET_MB", 2048),
		},
		Password: PasswordConfig{
			MinUpper:   getEnvInt("PASSWORD_MIN_UPPER", 1),
			MinSpecial: getEnvInt("PASSWORD_MIN_SPECIAL", 1),
			MinDigit:   getEnvInt("PASSWORD_MIN_DIGIT", 1),
			MinLower:   getEnvInt("PASSWORD_MIN_LOWER", 1),
			MinLength:  getEnvInt("PASSWORD_MIN_LENGTH", 8),
			MaxLength:  getEnvInt("PASSWORD_MAX_LENGTH", 64),
		},
		ActivationTTL:      getEnvDuration("ACTIVATION_CODE_TTL", 7*24*time.Hour),
		ResetTTL:           getEnvDuration("RESET_CODE_TTL", time.Hour),
		NotifyDriver:       getEnv("NOTIFY_DRIVER", "log"),
		SMTPHost:           getEnv("SMTP_HOST", "localhost"),
		SMTPPort:           getEnv("SMTP_PORT", "1025"),
		SMTPFrom:           getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername:       getEnv("SMTP_USERNAME", ""),
		SMTPPassword:       getEnv("SMTP_PASSWORD", ""),
		SNSRegion:          getEnv("SNS_REGION", "us-east-1"),
		SNSTopicARN:        getEnv("SNS_TOPIC_ARN", ""),
		PublicBaseURL:      strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
		DetailedAuthErrors: getEnvBool("AUTH_DETAILED_ERRORS", false),
		AllowedOrigins:     strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("90s", "72h").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
