package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// Kiosk session signing secret
	if len(c.Session.SigningSecret) < 32 {
		errs = append(errs, "SESSION_SIGNING_SECRET must be at least 32 characters")
	}

	// API key hashes are bcrypt digests ("$2a$..." / "$2b$...")
	if c.Keys.SchedulerKeyHash == "" {
		errs = append(errs, "KEYS_SCHEDULER_HASH is required")
	} else if !strings.HasPrefix(c.Keys.SchedulerKeyHash, "$2") {
		errs = append(errs, "KEYS_SCHEDULER_HASH must be a bcrypt hash")
	}
	if c.Keys.AdminKeyHash == "" {
		errs = append(errs, "KEYS_ADMIN_HASH is required")
	} else if !strings.HasPrefix(c.Keys.AdminKeyHash, "$2") {
		errs = append(errs, "KEYS_ADMIN_HASH must be a bcrypt hash")
	}

	// Operating timezone must resolve
	if _, err := time.LoadLocation(c.Meals.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("MEALS_TIMEZONE %q is not a valid IANA zone", c.Meals.Timezone))
	}

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1-65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1-65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1-65535, got %d", c.Redis.Port))
	}

	// Rate limits
	if c.RateLimit.RedemptionMax < 1 {
		errs = append(errs, "RATELIMIT_REDEMPTION_MAX must be positive")
	}
	if c.RateLimit.AuthMax < 1 {
		errs = append(errs, "RATELIMIT_AUTH_MAX must be positive")
	}

	// NATS disabled: forensic events are dropped, warn only
	if !c.NATS.Enabled {
		slog.Warn("NATS is disabled — forensic events will not reach the audit log")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
