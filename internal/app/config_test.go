package app

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigRequiresTokenSecret(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "placeholder")
	require.NoError(t, os.Unsetenv("TOKEN_SECRET"))

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOKEN_SECRET")

	t.Setenv("TOKEN_SECRET", "")
	_, err = LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "s3cr3t")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, StorePostgres, cfg.StoreDriver)
	assert.True(t, cfg.PGMigrate)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "s3cr3t")
	t.Setenv("TOKEN_TTL", "15m")
	t.Setenv("STORE_DRIVER", "redis")
	t.Setenv("BCRYPT_COST", "12")
	t.Setenv("APP_ENV", "production")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.TokenTTL)
	assert.Equal(t, StoreRedis, cfg.StoreDriver)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.True(t, cfg.IsProduction())
}

func TestConfigValidate(t *testing.T) {
	base := Config{TokenSecret: "s", TokenTTL: time.Hour, StoreDriver: StoreMemory, LogFormat: "json"}
	require.NoError(t, base.Validate())

	bad := base
	bad.StoreDriver = "mongo"
	assert.ErrorContains(t, bad.Validate(), "unknown store driver")

	bad = base
	bad.TokenTTL = 0
	assert.Error(t, bad.Validate())

	bad = base
	bad.LogFormat = "xml"
	assert.Error(t, bad.Validate())
}

func TestLoggerNeverPrintsSecretFromConfig(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{LogFormat: "json", LogLevel: "debug", TokenSecret: "do-not-print"}
	logger := newLogger(cfg, &buf)

	logger.Debug("config loaded", slog.String("store", cfg.StoreDriver))
	out := buf.String()
	assert.True(t, strings.Contains(out, `"msg":"config loaded"`))
	assert.NotContains(t, out, "do-not-print")
}
