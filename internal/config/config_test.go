package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("REFRESH_TOKEN_LIFETIME_HOURS", "168")
	t.Setenv("JWT_EXPIRATION_MINUTES", "15")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenLifetime)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL())
	assert.Contains(t, cfg.Database.DSN, "@tcp(localhost:3306)/")
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoadConfig_Postgres(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("DB_NAME", "clinic")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Contains(t, cfg.Database.DSN, "dbname=clinic")
	assert.Contains(t, cfg.Database.DSN, "port=5433")
}

func TestLoadConfig_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown driver", "DB_DRIVER", "sqlite"},
		{"non numeric lifetime", "REFRESH_TOKEN_LIFETIME_HOURS", "week"},
		{"zero lifetime", "REFRESH_TOKEN_LIFETIME_HOURS", "0"},
		{"non numeric redis db", "REDIS_DB", "one"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
