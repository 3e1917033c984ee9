package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	// Remote document store (DynamoDB)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	UsersTable          string
	ProspectsTable      string
	InvitationsTable    string
	WatchInterval       time.Duration

	// Local fallback store
	DataDir string

	// Sessions
	SessionJWTSecret string
	SessionTTL       time.Duration
	RedisAddr        string
	RedisPassword    string
	RedisTLS         bool

	// Remote identity collaborator
	IdentityBaseURL string
	IdentityAPIKey  string

	// AI analysis (Gemini)
	GeminiAPIKey  string
	GeminiModelID string

	// Email dispatch
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		UsersTable:          getEnv("USERS_TABLE", "users"),
		ProspectsTable:      getEnv("PROSPECTS_TABLE", "prospects"),
		InvitationsTable:    getEnv("INVITATIONS_TABLE", "invitations"),
		WatchInterval:       getEnvAsDuration("WATCH_INTERVAL", 5*time.Second),

		DataDir: getEnv("DATA_DIR", "./data"),

		SessionJWTSecret: getEnv("SESSION_JWT_SECRET", ""),
		SessionTTL:       getEnvAsDuration("SESSION_TTL", 12*time.Hour),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisTLS:         getEnvAsBool("REDIS_TLS", false),

		IdentityBaseURL: getEnv("IDENTITY_BASE_URL", ""),
		IdentityAPIKey:  getEnv("IDENTITY_API_KEY", ""),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModelID: getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "auto"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Outreach Team"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),

		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", nil),
	}
}

// RemoteEnabled reports whether remote document-store credentials are
// present. The active backend is fixed from this at startup and never
// switches mid-session.
func (c *Config) RemoteEnabled() bool {
	return c.AWSAccessKeyID != "" && c.AWSSecretAccessKey != ""
}

// Warnings lists degraded-service conditions caused by missing
// configuration. None of these are fatal: the server starts and the
// affected feature falls back or is disabled.
func (c *Config) Warnings() []string {
	var out []string
	if !c.RemoteEnabled() {
		out = append(out, "remote store credentials missing; running on local fallback store")
	}
	if c.IdentityBaseURL == "" {
		out = append(out, "identity service not configured; using local credential verification")
	}
	if c.GeminiAPIKey == "" {
		out = append(out, "gemini api key missing; prospect reviews will use the default assessment")
	}
	if c.SendGridAPIKey == "" && c.SESFromEmail == "" {
		out = append(out, "no email provider configured; invitation emails disabled")
	}
	if c.SessionJWTSecret == "" {
		out = append(out, "session jwt secret missing; a random per-process secret will be generated")
	}
	return out
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
