package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		DB: DBConfig{
			Host: "localhost", Port: 5432, User: "meals",
			Password: "secret", Name: "meals", SSLMode: "disable", MaxConns: 25,
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		NATS:  NATSConfig{URL: "nats://localhost:4222", Enabled: true},
		Session: SessionConfig{
			SigningSecret: "session-secret-that-is-at-least-32-chars",
			DefaultExpiry: 720 * time.Hour,
		},
		Keys: KeysConfig{
			AdminKeyHash:     "$2a$12$abcdefghijklmnopqrstuvabcdefghijklmnopqrstuvabcdefghijk",
			SchedulerKeyHash: "$2a$12$abcdefghijklmnopqrstuvabcdefghijklmnopqrstuvabcdefghijk",
		},
		Meals: MealsConfig{Timezone: "America/Los_Angeles", LockTimeout: 3 * time.Second},
		RateLimit: RateLimitConfig{
			RedemptionMax: 30, RedemptionWindow: time.Minute,
			AuthMax: 100, AuthWindow: time.Minute,
			EdgeMax: 300, EdgeWindowSec: 60,
			Retention: 24 * time.Hour, CleanupInterval: time.Hour,
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidate_SessionSecretTooShort(t *testing.T) {
	cfg := validConfig()
	cfg.Session.SigningSecret = "short"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "SESSION_SIGNING_SECRET") {
		t.Fatalf("expected SESSION_SIGNING_SECRET error, got: %v", err)
	}
}

func TestValidate_SchedulerKeyHashRequired(t *testing.T) {
	cfg := validConfig()
	cfg.Keys.SchedulerKeyHash = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "KEYS_SCHEDULER_HASH is required") {
		t.Fatalf("expected KEYS_SCHEDULER_HASH required error, got: %v", err)
	}
}

func TestValidate_KeyHashMustBeBcrypt(t *testing.T) {
	cfg := validConfig()
	cfg.Keys.AdminKeyHash = "plaintext-key"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "bcrypt") {
		t.Fatalf("expected bcrypt hash error, got: %v", err)
	}
}

func TestValidate_InvalidTimezone(t *testing.T) {
	cfg := validConfig()
	cfg.Meals.Timezone = "Mars/Olympus_Mons"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "MEALS_TIMEZONE") {
		t.Fatalf("expected MEALS_TIMEZONE error, got: %v", err)
	}
}

func TestValidate_DBPasswordRequired(t *testing.T) {
	cfg := validConfig()
	cfg.DB.Password = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_PASSWORD") {
		t.Fatalf("expected DB_PASSWORD error, got: %v", err)
	}
}

func TestValidate_InvalidPorts(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.DB.Port = 99999
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected port validation errors")
	}
	if !strings.Contains(err.Error(), "SERVER_PORT") {
		t.Errorf("expected SERVER_PORT error in: %v", err)
	}
	if !strings.Contains(err.Error(), "DB_PORT") {
		t.Errorf("expected DB_PORT error in: %v", err)
	}
}

func TestValidate_RateLimitsMustBePositive(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.RedemptionMax = 0
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "RATELIMIT_REDEMPTION_MAX") {
		t.Fatalf("expected RATELIMIT_REDEMPTION_MAX error, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := &Config{
		Server:    ServerConfig{Port: 0},
		DB:        DBConfig{Port: 5432},
		Redis:     RedisConfig{Port: 6379},
		Meals:     MealsConfig{Timezone: "UTC"},
		RateLimit: RateLimitConfig{RedemptionMax: 1, AuthMax: 1},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected multiple validation errors")
	}
	errStr := err.Error()
	for _, substr := range []string{"SESSION_SIGNING_SECRET", "KEYS_SCHEDULER_HASH", "KEYS_ADMIN_HASH", "DB_PASSWORD", "SERVER_PORT"} {
		if !strings.Contains(errStr, substr) {
			t.Errorf("expected %q in error: %s", substr, errStr)
		}
	}
}
