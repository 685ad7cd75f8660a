package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()

	t.Setenv("POSTGRES_USER", "tix")
	t.Setenv("POSTGRES_PASSWORD", "p@ss word")
	t.Setenv("POSTGRES_DB", "tixbook")
	t.Setenv("JWT_SECRET", "secret")
}

func TestNew_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "disable", cfg.Postgres.SSLMode)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 10, cfg.Booking.RateLimit)
	assert.Equal(t, time.Minute, cfg.Booking.RateWindow)
	assert.True(t, cfg.MigrateOn)
	assert.Empty(t, cfg.Admin.Username)
}

func TestNew_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("JWT_TTL", "15m")
	t.Setenv("BOOKING_RATE_LIMIT", "0")
	t.Setenv("MIGRATE_ON_START", "false")
	t.Setenv("ADMIN_USERNAME", "root")
	t.Setenv("ADMIN_PASSWORD", "supersecret")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, 0, cfg.Booking.RateLimit)
	assert.False(t, cfg.MigrateOn)
	assert.Equal(t, "root", cfg.Admin.Username)
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing secret", map[string]string{"JWT_SECRET": ""}, "missing JWT_SECRET"},
		{"missing db user", map[string]string{"POSTGRES_USER": ""}, "missing POSTGRES_USER"},
		{"bad port", map[string]string{"SERVER_PORT": "http"}, "invalid SERVER_PORT"},
		{"bad duration", map[string]string{"JWT_TTL": "soon"}, "invalid JWT_TTL"},
		{"admin without password", map[string]string{"ADMIN_USERNAME": "root"}, "ADMIN_PASSWORD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := New()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Contains(t, err.Error(), "config.New")
		})
	}
}

func TestPostgresConfig_DSN(t *testing.T) {
	p := PostgresConfig{
		User: "tix", Password: "p@ss word", Host: "db", Port: 5432,
		Name: "tixbook", SSLMode: "disable",
	}

	assert.Equal(t, "postgres://tix:p%40ss%20word@db:5432/tixbook?sslmode=disable", p.DSN())
}
