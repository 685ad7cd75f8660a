package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Admin     AdminConfig
	Booking   BookingConfig
	Cache     CacheConfig
	MigrateOn bool
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
	MaxConns int32
}

// DSN returns the connection URL of the database.
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     p.Name,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}

	return u.String()
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// AdminConfig describes the admin account created at start-up. It is
// skipped when Username is empty.
type AdminConfig struct {
	Username string
	Email    string
	Password string
}

type BookingConfig struct {
	RateLimit      int
	RateWindow     time.Duration
	IdempotencyTTL time.Duration
}

type CacheConfig struct {
	EventTTL time.Duration
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	var (
		cfg Config
		err error
	)

	cfg.Server.Host = envString("SERVER_HOST", "localhost")
	if cfg.Server.Port, err = envInt("SERVER_PORT", 8080); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Server.ShutdownTimeout, err = envDuration("SERVER_SHUTDOWN_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cfg.Postgres.Host = envString("POSTGRES_HOST", "localhost")
	if cfg.Postgres.Port, err = envInt("POSTGRES_PORT", 5432); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Postgres.User, err = envRequired("POSTGRES_USER"); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Postgres.Password, err = envRequired("POSTGRES_PASSWORD"); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Postgres.Name, err = envRequired("POSTGRES_DB"); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	cfg.Postgres.SSLMode = envString("POSTGRES_SSLMODE", "disable")
	maxConns, err := envInt("POSTGRES_MAX_CONNS", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	cfg.Postgres.MaxConns = int32(maxConns)

	cfg.Redis.Addr = envString("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if cfg.Redis.DB, err = envInt("REDIS_DB", 0); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cfg.Auth.JWTSecret, err = envRequired("JWT_SECRET"); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Auth.TokenTTL, err = envDuration("JWT_TTL", time.Hour); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cfg.Admin = AdminConfig{
		Username: os.Getenv("ADMIN_USERNAME"),
		Email:    os.Getenv("ADMIN_EMAIL"),
		Password: os.Getenv("ADMIN_PASSWORD"),
	}
	if cfg.Admin.Username != "" && cfg.Admin.Password == "" {
		return nil, fmt.Errorf("%s: ADMIN_PASSWORD is required with ADMIN_USERNAME", op)
	}

	if cfg.Booking.RateLimit, err = envInt("BOOKING_RATE_LIMIT", 10); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Booking.RateWindow, err = envDuration("BOOKING_RATE_WINDOW", time.Minute); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Booking.IdempotencyTTL, err = envDuration("IDEMPOTENCY_TTL", 2*time.Hour); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cfg.Cache.EventTTL, err = envDuration("EVENT_CACHE_TTL", 60*time.Second); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cfg.MigrateOn, err = envBool("MIGRATE_ON_START", true); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envRequired(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("missing %s", key)
	}
	return v, nil
}

func envInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}

	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
