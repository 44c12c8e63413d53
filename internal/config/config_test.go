package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, "fs", cfg.Attachments.Backend)
	assert.Equal(t, int64(16<<20), cfg.Attachments.MaxBytes)
	assert.Equal(t, 30*time.Second, cfg.Attachments.BreakerTimeout)
	assert.False(t, cfg.Aggregation.RemergeDuplicates)
	assert.Equal(t, "task-results.submitted", cfg.Events.SubmittedTopic)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("INDICATORS_DATABASE__PATH", "/tmp/x.db")
	t.Setenv("INDICATORS_AGGREGATION__REMERGE_DUPLICATES", "true")
	t.Setenv("INDICATORS_AGGREGATION__DEFAULT_TIMEZONE", "America/New_York")
	t.Setenv("INDICATORS_ATTACHMENTS__BREAKER_TIMEOUT", "5s")
	t.Setenv("INDICATORS_EVENTS__BACKEND", "nats")

	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/x.db", cfg.Database.Path)
	assert.True(t, cfg.Aggregation.RemergeDuplicates)
	assert.Equal(t, "America/New_York", cfg.Aggregation.DefaultTimeZone)
	assert.Equal(t, 5*time.Second, cfg.Attachments.BreakerTimeout)
	assert.Equal(t, "nats", cfg.Events.Backend)
}

func TestLegacyEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_PATH", "/data/legacy.db")

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Port)
	assert.Equal(t, "/data/legacy.db", cfg.Database.Path)

	// Prefixed variables win over legacy ones.
	t.Setenv("INDICATORS_DATABASE__PATH", "/data/new.db")
	cfg, err = LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, "/data/new.db", cfg.Database.Path)
}

func TestFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: ":7000"
attachments:
  backend: gcs
  bucket: study-uploads
  max_bytes: 1024
logging:
  level: debug
`), 0o644))

	t.Setenv("INDICATORS_LOGGING__LEVEL", "warn")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Port)
	assert.Equal(t, "gcs", cfg.Attachments.Backend)
	assert.Equal(t, "study-uploads", cfg.Attachments.Bucket)
	assert.Equal(t, int64(1024), cfg.Attachments.MaxBytes)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown attachment backend", func(c *Config) { c.Attachments.Backend = "s3" }},
		{"gcs without bucket", func(c *Config) { c.Attachments.Backend = "gcs" }},
		{"zero max bytes", func(c *Config) { c.Attachments.MaxBytes = 0 }},
		{"bad timezone", func(c *Config) { c.Aggregation.DefaultTimeZone = "Mars/Olympus" }},
		{"unknown events backend", func(c *Config) { c.Events.Backend = "kafka" }},
		{"negative rate limit", func(c *Config) { c.Server.RateLimit = -1 }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, defaultConfig().Validate())
}
