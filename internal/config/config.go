// Package config provides environment configuration for the relay.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/capitalize-ai/genie-relay/internal/genie"
)

// Binding store kinds.
const (
	StoreMemory   = "memory"
	StoreNATS     = "nats"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Databricks service principal and Genie space
	DatabricksHost         string
	DatabricksClientID     string
	DatabricksClientSecret string
	DatabricksTenantID     string
	GenieSpaceID           string

	// Genie polling
	PollMaxAttempts   int
	PollInterval      time.Duration
	RequestTimeout    time.Duration
	DebugRawResponses bool

	// Bot Framework registration
	MicrosoftAppID       string
	MicrosoftAppPassword string
	MicrosoftAppTenantID string

	// Conversation bindings
	BindingStore    string
	BindingStoreDSN string

	// NATS settings; an empty URL disables NATS
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Inbound auth; empty disables the check
	InboundJWTSecret string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel    string
	Environment string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables. Variables from a .env
// file in the working directory are applied first without overriding the
// process environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8000"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 180*time.Second),

		// Databricks
		DatabricksHost:         strings.TrimRight(getEnv("DATABRICKS_HOST", ""), "/"),
		DatabricksClientID:     getEnv("DATABRICKS_CLIENT_ID", ""),
		DatabricksClientSecret: getEnv("DATABRICKS_CLIENT_SECRET", ""),
		DatabricksTenantID:     getEnv("DATABRICKS_TENANT_ID", ""),
		GenieSpaceID:           getEnv("DATABRICKS_GENIE_SPACE_ID", ""),

		// Genie polling
		PollMaxAttempts:   getIntEnv("GENIE_POLL_MAX_ATTEMPTS", genie.DefaultMaxAttempts),
		PollInterval:      getDurationEnv("GENIE_POLL_INTERVAL", genie.DefaultPollInterval),
		RequestTimeout:    getDurationEnv("GENIE_REQUEST_TIMEOUT", 60*time.Second),
		DebugRawResponses: getBoolEnv("DEBUG_RAW_RESPONSES", false),

		// Bot Framework
		MicrosoftAppID:       getEnv("MICROSOFT_APP_ID", ""),
		MicrosoftAppPassword: getEnv("MICROSOFT_APP_PASSWORD", ""),
		MicrosoftAppTenantID: getEnv("MICROSOFT_APP_TENANT_ID", ""),

		// Bindings
		BindingStore:    strings.ToLower(getEnv("BINDING_STORE", StoreMemory)),
		BindingStoreDSN: getEnv("BINDING_STORE_DSN", ""),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		InboundJWTSecret: getEnv("INBOUND_JWT_SECRET", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Environment: getEnv("ENV", "production"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// ValidateGenie checks the settings needed to talk to Genie.
func (c *Config) ValidateGenie() error {
	missing := missingKeys(map[string]string{
		"DATABRICKS_HOST":           c.DatabricksHost,
		"DATABRICKS_CLIENT_ID":      c.DatabricksClientID,
		"DATABRICKS_CLIENT_SECRET":  c.DatabricksClientSecret,
		"DATABRICKS_TENANT_ID":      c.DatabricksTenantID,
		"DATABRICKS_GENIE_SPACE_ID": c.GenieSpaceID,
	})
	if len(missing) > 0 {
		return &genie.ValidationError{Fields: missing, Reason: "missing required configuration"}
	}
	return nil
}

// Validate checks everything the server needs and reports every missing or
// invalid key at once.
func (c *Config) Validate() error {
	missing := missingKeys(map[string]string{
		"DATABRICKS_HOST":           c.DatabricksHost,
		"DATABRICKS_CLIENT_ID":      c.DatabricksClientID,
		"DATABRICKS_CLIENT_SECRET":  c.DatabricksClientSecret,
		"DATABRICKS_TENANT_ID":      c.DatabricksTenantID,
		"DATABRICKS_GENIE_SPACE_ID": c.GenieSpaceID,
		"MICROSOFT_APP_ID":          c.MicrosoftAppID,
		"MICROSOFT_APP_PASSWORD":    c.MicrosoftAppPassword,
	})
	if len(missing) > 0 {
		return &genie.ValidationError{Fields: missing, Reason: "missing required configuration"}
	}

	switch c.BindingStore {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.BindingStoreDSN == "" {
			return &genie.ValidationError{Fields: []string{"BINDING_STORE_DSN"}, Reason: "postgres binding store needs a DSN"}
		}
	case StoreNATS:
		if c.NATSURL == "" {
			return &genie.ValidationError{Fields: []string{"NATS_URL"}, Reason: "nats binding store needs NATS_URL"}
		}
	default:
		return &genie.ValidationError{Fields: []string{"BINDING_STORE"}, Reason: "unknown binding store " + strconv.Quote(c.BindingStore)}
	}

	if c.PollMaxAttempts < 1 || c.PollInterval <= 0 {
		return &genie.ValidationError{
			Fields: []string{"GENIE_POLL_MAX_ATTEMPTS", "GENIE_POLL_INTERVAL"},
			Reason: "polling budget must be positive",
		}
	}
	return nil
}

// missingKeys returns the keys with empty values in stable order.
func missingKeys(values map[string]string) []string {
	order := []string{
		"DATABRICKS_HOST", "DATABRICKS_CLIENT_ID", "DATABRICKS_CLIENT_SECRET",
		"DATABRICKS_TENANT_ID", "DATABRICKS_GENIE_SPACE_ID",
		"MICROSOFT_APP_ID", "MICROSOFT_APP_PASSWORD",
	}
	var missing []string
	for _, key := range order {
		if v, ok := values[key]; ok && strings.TrimSpace(v) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
