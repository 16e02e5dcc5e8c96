package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-orchestrator/internal/pkg/apperrors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: "0.0.0.0"

store:
  backend: postgres
  database_url: "postgres://localhost/outreach?sslmode=disable"

lock:
  backend: dynamodb
  ttl_seconds: 60
  dynamodb_table: "locks"

verification:
  base_url: "https://verify.example.com"
  prefetch_retries: 2

pacing:
  default_min_delay_ms: 1000
  default_max_delay_ms: 5000

unsubscribe:
  base_url: "https://example.com/unsubscribe"
  secret: "s3cret"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "dynamodb", cfg.Lock.Backend)
	assert.Equal(t, "locks", cfg.Lock.DynamoDBTable)
	assert.Equal(t, int64(60), int64(cfg.Lock.TTL().Seconds()))
	assert.Equal(t, 2, cfg.Verification.PrefetchRetries)
	assert.Equal(t, int64(1000), cfg.Pacing.DefaultMinDelayMs)

	// Defaults
	assert.Equal(t, 30, cfg.Lock.RefreshSeconds)
	assert.Equal(t, 3, cfg.Verification.MaxRetries)
	assert.Equal(t, 24, cfg.Verification.MaxAgeHours)
	assert.Equal(t, 10, cfg.Recovery.StaleMinutes)
	assert.Equal(t, "postgres", cfg.Audit.Sink)
	assert.Equal(t, "postgres", cfg.Metrics.Backend)
	assert.Equal(t, "us-west-2", cfg.SES.Region)

	require.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "store:\n  backend: memory\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "memory", cfg.Lock.Backend)
	assert.Equal(t, 120, cfg.Lock.TTLSeconds)
	assert.Equal(t, 1, cfg.Verification.PrefetchRetries)
	assert.Equal(t, int64(30000), cfg.Pacing.DefaultMinDelayMs)
	assert.Equal(t, int64(120000), cfg.Pacing.DefaultMaxDelayMs)
	assert.Equal(t, int32(20), cfg.SQS.WaitTimeSeconds)
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [unclosed"))
	assert.Error(t, err)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	path := writeConfig(t, "store:\n  backend: memory\n")
	t.Setenv("UNSUBSCRIBE_SECRET", "from-env")
	t.Setenv("UNSUBSCRIBE_BASE_URL", "https://env.example.com/u")
	t.Setenv("REDIS_ADDR", "127.0.0.1:6380")
	t.Setenv("RECOVERY_STALE_MINUTES", "15")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Unsubscribe.Secret)
	assert.Equal(t, "127.0.0.1:6380", cfg.Lock.RedisAddr)
	assert.Equal(t, "127.0.0.1:6380", cfg.Metrics.RedisAddr)
	assert.Equal(t, 15, cfg.Recovery.StaleMinutes)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{
			Store:       StoreConfig{Backend: "memory"},
			Unsubscribe: UnsubscribeConfig{BaseURL: "https://x/u", Secret: "k"},
		}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"missing secret", func(c *Config) { c.Unsubscribe.Secret = "" }, false},
		{"postgres without url", func(c *Config) { c.Store.Backend = "postgres" }, false},
		{"redis lock without addr", func(c *Config) { c.Lock.Backend = "redis" }, false},
		{"unknown lock backend", func(c *Config) { c.Lock.Backend = "zookeeper" }, false},
		{"s3 sink without bucket", func(c *Config) { c.Audit.Sink = "s3" }, false},
		{"inverted pacing", func(c *Config) { c.Pacing.DefaultMinDelayMs = 10; c.Pacing.DefaultMaxDelayMs = 5 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.KindConfiguration))
		})
	}
}

func TestLoadFromEnvWithoutFile(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("AWS_SES_REGION", "eu-west-1")

	cfg, err := LoadFromEnv("")
	require.NoError(t, err)

	// derived backends and regions follow the env overrides
	assert.Equal(t, "memory", cfg.Lock.Backend)
	assert.Equal(t, "memory", cfg.Audit.Sink)
	assert.Equal(t, "memory", cfg.Metrics.Backend)
	assert.Equal(t, "eu-west-1", cfg.SQS.Region)
	assert.Equal(t, 8080, cfg.Server.Port)
}
