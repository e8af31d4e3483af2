// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port           string
	Env            string // "development", "staging", "production"
	LogLevel       string
	LogFormat      string   // "json" or "text"
	AllowedOrigins []string // CORS origins for the admin console

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Bootstrap: seed an initial super admin on an empty directory
	BootstrapEmail string
	BootstrapName  string

	// Identity policy
	AuthMode        string // "email", "phone", or "both"
	OriginCode      string // fixed infix stamped into every minted identifier
	AdminCapacity   int64
	RequestCapacity int64

	// Audit trail
	AuditQueueSize int

	// Retention sweep
	RetentionWindow time.Duration // 0 disables the sweep
	SweepInterval   time.Duration

	// Observability
	OTLPEndpoint   string // OTLP gRPC endpoint (optional, tracing off if not set)
	TracingEnabled bool
}

// Defaults
const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultAuthMode        = "email"
	DefaultOriginCode      = "10"
	DefaultAdminCapacity   = 9999
	DefaultRequestCapacity = 99999
	DefaultAuditQueueSize  = 1024
	DefaultSweepInterval   = time.Hour
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", DefaultPort),
		Env:             getEnv("ENV", DefaultEnv),
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:       getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:     os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		BootstrapEmail:  os.Getenv("BOOTSTRAP_EMAIL"),
		BootstrapName:   getEnv("BOOTSTRAP_NAME", "System Administrator"),
		AuthMode:        getEnv("AUTH_MODE", DefaultAuthMode),
		OriginCode:      getEnv("ORIGIN_CODE", DefaultOriginCode),
		AdminCapacity:   getEnvInt64("ADMIN_CAPACITY", DefaultAdminCapacity),
		RequestCapacity: getEnvInt64("REQUEST_CAPACITY", DefaultRequestCapacity),
		AuditQueueSize:  int(getEnvInt64("AUDIT_QUEUE_SIZE", DefaultAuditQueueSize)),
		RetentionWindow: getEnvDuration("RETENTION_WINDOW", 0),
		SweepInterval:   getEnvDuration("SWEEP_INTERVAL", DefaultSweepInterval),
		OTLPEndpoint:    os.Getenv("OTLP_ENDPOINT"),
		AllowedOrigins:  splitList(getEnv("ALLOWED_ORIGINS", "*")),
	}
	cfg.TracingEnabled = cfg.OTLPEndpoint != ""

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and sane
func (c *Config) Validate() error {
	switch c.AuthMode {
	case "email", "phone", "both":
	default:
		return fmt.Errorf("AUTH_MODE must be email, phone, or both")
	}
	if c.OriginCode == "" {
		return fmt.Errorf("ORIGIN_CODE is required")
	}
	for _, ch := range c.OriginCode {
		if ch < '0' || ch > '9' {
			return fmt.Errorf("ORIGIN_CODE must be numeric")
		}
	}
	if c.AdminCapacity <= 0 {
		return fmt.Errorf("ADMIN_CAPACITY must be positive")
	}
	if c.RequestCapacity <= 0 {
		return fmt.Errorf("REQUEST_CAPACITY must be positive")
	}
	if c.AuditQueueSize <= 0 {
		return fmt.Errorf("AUDIT_QUEUE_SIZE must be positive")
	}
	if c.RetentionWindow < 0 {
		return fmt.Errorf("RETENTION_WINDOW must not be negative")
	}
	if c.RetentionWindow > 0 && c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive when retention is on")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
