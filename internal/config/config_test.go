package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DB_TYPE", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "mongodb", cfg.Database.Type)
	assert.Equal(t, 30, cfg.Feed.AllowListCap)
	assert.Equal(t, 50, cfg.Feed.Limit)
	assert.Equal(t, 10*time.Second, cfg.AI.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.AI.MaxVideoWait)
	assert.Equal(t, "local", cfg.Storage.Provider)
	assert.False(t, cfg.UsesDevSecret())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "9090")
	t.Setenv("DB_TYPE", "memory")
	t.Setenv("FEED_LIMIT", "20")
	t.Setenv("VIDEO_MAX_WAIT", "90s")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test,http://b.test")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Type)
	assert.Equal(t, 20, cfg.Feed.Limit)
	assert.Equal(t, 90*time.Second, cfg.AI.MaxVideoWait)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
}

func TestLoadConfigRequiresSecretOutsideDebug(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DEBUG", "false")

	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("DEBUG", "true")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.UsesDevSecret())
}

func TestLoadConfigRejectsUnknownBackends(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DB_TYPE", "postgres")
	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("DB_TYPE", "memory")
	t.Setenv("STORAGE_PROVIDER", "s3")
	t.Setenv("S3_BUCKET", "")
	_, err = LoadConfig()
	assert.Error(t, err)
}
