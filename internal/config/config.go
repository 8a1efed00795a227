package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	NATS      NATSConfig
	Session   SessionConfig
	Keys      KeysConfig
	Meals     MealsConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int

	CORSAllowedOrigins []string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL     string
	Enabled bool
}

// SessionConfig covers the kiosk bearer credential layer.
type SessionConfig struct {
	SigningSecret string
	DefaultExpiry time.Duration
}

// KeysConfig holds bcrypt hashes of the machine-to-machine API keys.
// The plaintext keys never appear in config.
type KeysConfig struct {
	AdminKeyHash     string
	SchedulerKeyHash string
}

type MealsConfig struct {
	// Timezone is the operating timezone used for end-of-day token expiry.
	Timezone string
	// LockTimeout bounds row-lock waits inside the redemption transaction.
	LockTimeout time.Duration
}

type RateLimitConfig struct {
	RedemptionMax    int
	RedemptionWindow time.Duration
	AuthMax          int
	AuthWindow       time.Duration
	// EdgeMax/EdgeWindowSec parameterize the Redis edge limiter.
	EdgeMax       int
	EdgeWindowSec int
	// Retention is how long stale window rows are kept before cleanup.
	Retention       time.Duration
	CleanupInterval time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:               k.String("server.host"),
			Port:               k.Int("server.port"),
			CORSAllowedOrigins: k.Strings("server.cors.origins"),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL:     k.String("nats.url"),
			Enabled: k.Bool("nats.enabled"),
		},
		Session: SessionConfig{
			SigningSecret: k.String("session.signing.secret"),
		},
		Keys: KeysConfig{
			AdminKeyHash:     k.String("keys.admin.hash"),
			SchedulerKeyHash: k.String("keys.scheduler.hash"),
		},
		Meals: MealsConfig{
			Timezone: k.String("meals.timezone"),
		},
		RateLimit: RateLimitConfig{
			RedemptionMax: k.Int("ratelimit.redemption.max"),
			AuthMax:       k.Int("ratelimit.auth.max"),
			EdgeMax:       k.Int("ratelimit.edge.max"),
			EdgeWindowSec: k.Int("ratelimit.edge.window.sec"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "meals"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "meals"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.Meals.Timezone == "" {
		cfg.Meals.Timezone = "America/Los_Angeles"
	}
	if cfg.RateLimit.RedemptionMax == 0 {
		cfg.RateLimit.RedemptionMax = 30
	}
	if cfg.RateLimit.AuthMax == 0 {
		cfg.RateLimit.AuthMax = 100
	}
	if cfg.RateLimit.EdgeMax == 0 {
		cfg.RateLimit.EdgeMax = 300
	}
	if cfg.RateLimit.EdgeWindowSec == 0 {
		cfg.RateLimit.EdgeWindowSec = 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	cfg.Session.DefaultExpiry, err = durationOr(k, "session.default.expiry", "720h")
	if err != nil {
		return nil, fmt.Errorf("parsing session default expiry: %w", err)
	}
	cfg.Meals.LockTimeout, err = durationOr(k, "meals.lock.timeout", "3s")
	if err != nil {
		return nil, fmt.Errorf("parsing lock timeout: %w", err)
	}
	cfg.RateLimit.RedemptionWindow, err = durationOr(k, "ratelimit.redemption.window", "1m")
	if err != nil {
		return nil, fmt.Errorf("parsing redemption rate window: %w", err)
	}
	cfg.RateLimit.AuthWindow, err = durationOr(k, "ratelimit.auth.window", "1m")
	if err != nil {
		return nil, fmt.Errorf("parsing auth rate window: %w", err)
	}
	cfg.RateLimit.Retention, err = durationOr(k, "ratelimit.retention", "24h")
	if err != nil {
		return nil, fmt.Errorf("parsing rate limit retention: %w", err)
	}
	cfg.RateLimit.CleanupInterval, err = durationOr(k, "ratelimit.cleanup.interval", "1h")
	if err != nil {
		return nil, fmt.Errorf("parsing rate limit cleanup interval: %w", err)
	}

	return cfg, nil
}

func durationOr(k *koanf.Koanf, key, fallback string) (time.Duration, error) {
	s := k.String(key)
	if s == "" {
		s = fallback
	}
	return time.ParseDuration(s)
}
