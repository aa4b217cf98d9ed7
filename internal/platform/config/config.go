package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"

	ProviderHTTP    = "http"
	ProviderSandbox = "sandbox"
)

type Config struct {
	Addr                   string
	Environment            string
	DatabaseURL            string
	StorageDriver          string
	MigrationsDir          string
	RunMigrations          bool
	JWTSecret              string
	CORSAllowedOrigins     []string
	MaxBodyBytes           int64
	RateLimitPerMinute     int
	LogLevel               string
	DisbursementProvider   string
	DisbursementBaseURL    string
	DisbursementAPIKey     string
	DisbursementTimeout    time.Duration
	DisbursementConfigFile string
	CalculationSchedule    string
	StatusRefreshSchedule  string
	SchedulerTenants       []string
	StatementsDir          string
	StatementsBucket       string
	AWSRegion              string
	EmailFrom              string
	EmailEnabled           bool
	SMTPHost               string
	SMTPPort               int
	SMTPUser               string
	SMTPPassword           string
	SMTPUseTLS             bool
	NotifyRecipients       []string
	MetricsEnabled         bool
}

// Load reads a .env file when present, then the environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("dotenv load failed", "err", err)
	}
	return Config{
		Addr:                   getEnv("APP_ADDR", ":8080"),
		Environment:            getEnv("APP_ENV", "development"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		StorageDriver:          getEnv("STORAGE_DRIVER", StorageDriverPostgres),
		MigrationsDir:          getEnv("MIGRATIONS_DIR", "migrations"),
		RunMigrations:          getEnvBool("RUN_MIGRATIONS", true),
		JWTSecret:              getEnv("JWT_SECRET", ""),
		CORSAllowedOrigins:     getEnvList("CORS_ALLOWED_ORIGINS", nil),
		MaxBodyBytes:           int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		RateLimitPerMinute:     getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		DisbursementProvider:   getEnv("DISBURSEMENT_PROVIDER", ProviderSandbox),
		DisbursementBaseURL:    getEnv("DISBURSEMENT_BASE_URL", ""),
		DisbursementAPIKey:     getEnv("DISBURSEMENT_API_KEY", ""),
		DisbursementTimeout:    getEnvDuration("DISBURSEMENT_TIMEOUT", 30*time.Second),
		DisbursementConfigFile: getEnv("DISBURSEMENT_CONFIG_FILE", ""),
		CalculationSchedule:    getEnv("CALCULATION_SCHEDULE", ""),
		StatusRefreshSchedule:  getEnv("STATUS_REFRESH_SCHEDULE", ""),
		SchedulerTenants:       getEnvList("SCHEDULER_TENANTS", nil),
		StatementsDir:          getEnv("STATEMENTS_DIR", "storage/statements"),
		StatementsBucket:       getEnv("STATEMENTS_BUCKET", ""),
		AWSRegion:              getEnv("AWS_REGION", ""),
		EmailFrom:              getEnv("EMAIL_FROM", "no-reply@example.com"),
		EmailEnabled:           getEnvBool("EMAIL_ENABLED", false),
		SMTPHost:               getEnv("SMTP_HOST", ""),
		SMTPPort:               getEnvInt("SMTP_PORT", 587),
		SMTPUser:               getEnv("SMTP_USER", ""),
		SMTPPassword:           getEnv("SMTP_PASSWORD", ""),
		SMTPUseTLS:             getEnvBool("SMTP_USE_TLS", true),
		NotifyRecipients:       getEnvList("NOTIFY_RECIPIENTS", nil),
		MetricsEnabled:         getEnvBool("METRICS_ENABLED", true),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SlogLevel maps LOG_LEVEL onto slog levels; unknown values fall back to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case StorageDriverMemory:
		if c.Environment == "production" {
			return fmt.Errorf("STORAGE_DRIVER=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q", StorageDriverPostgres, StorageDriverMemory)
	}
	if c.Environment == "production" {
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
		}
		if c.DisbursementProvider == ProviderSandbox {
			return fmt.Errorf("DISBURSEMENT_PROVIDER=sandbox is not allowed in production")
		}
	}
	switch c.DisbursementProvider {
	case ProviderSandbox:
	case ProviderHTTP:
		if c.DisbursementConfigFile == "" && strings.TrimSpace(c.DisbursementBaseURL) == "" {
			return fmt.Errorf("DISBURSEMENT_BASE_URL is required when DISBURSEMENT_PROVIDER=http")
		}
	default:
		return fmt.Errorf("DISBURSEMENT_PROVIDER must be %q or %q", ProviderHTTP, ProviderSandbox)
	}
	if c.DisbursementTimeout <= 0 {
		return fmt.Errorf("DISBURSEMENT_TIMEOUT must be positive")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.EmailEnabled && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST must be set when EMAIL_ENABLED is true")
	}
	return nil
}
