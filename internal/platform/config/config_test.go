package config

import (
	"log/slog"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		StorageDriver:        StorageDriverMemory,
		Environment:          "development",
		DisbursementProvider: ProviderSandbox,
		DisbursementTimeout:  time.Second,
		MaxBodyBytes:         4096,
		RateLimitPerMinute:   60,
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cases := map[string]func(*Config){
		"postgres without url":   func(c *Config) { c.StorageDriver = StorageDriverPostgres },
		"unknown driver":         func(c *Config) { c.StorageDriver = "sqlite" },
		"memory in production":   func(c *Config) { c.Environment = "production"; c.JWTSecret = "x" },
		"http without base url":  func(c *Config) { c.DisbursementProvider = ProviderHTTP },
		"unknown provider":       func(c *Config) { c.DisbursementProvider = "bank" },
		"small body limit":       func(c *Config) { c.MaxBodyBytes = 10 },
		"zero rate limit":        func(c *Config) { c.RateLimitPerMinute = 0 },
		"email without smtp":     func(c *Config) { c.EmailEnabled = true },
		"zero provider timeout":  func(c *Config) { c.DisbursementTimeout = 0 },
	}
	for name, mutate := range cases {
		cfg := validConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("NOTIFY_RECIPIENTS", " hr@example.com, ,payroll@example.com ")
	got := getEnvList("NOTIFY_RECIPIENTS", nil)
	if len(got) != 2 || got[0] != "hr@example.com" || got[1] != "payroll@example.com" {
		t.Fatalf("unexpected list %v", got)
	}
}

func TestSlogLevel(t *testing.T) {
	if (Config{LogLevel: "DEBUG"}).SlogLevel() != slog.LevelDebug {
		t.Fatalf("expected debug level")
	}
	if (Config{LogLevel: "verbose"}).SlogLevel() != slog.LevelInfo {
		t.Fatalf("expected info fallback")
	}
}
