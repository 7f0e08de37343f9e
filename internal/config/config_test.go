package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/dunamismax/pixelproxy/internal/allowlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.ini")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "[app]\nallowed_domains = example.com,cdn.test\n")

	cfg, err := Load([]string{"--config", path})
	require.NoError(t, err)

	assert.Equal(t, []string{"example.com", "cdn.test"}, cfg.Allowlist.Domains)
	assert.Equal(t, ":5001", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, int64(32<<20), cfg.Fetch.MaxBytes)
	assert.Equal(t, runtime.NumCPU(), cfg.Transform.Concurrency)
	assert.Equal(t, 85, cfg.Transform.Quality)
	assert.Equal(t, 8192, cfg.Transform.MaxDimension)
	assert.Equal(t, 50_000_000, cfg.Transform.MaxSourcePixels)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "none", cfg.Tracing.Exporter)
	assert.Equal(t, allowlist.DefaultRedisKey, cfg.Allowlist.RedisKey)
	assert.False(t, cfg.Allowlist.RedisEnabled())
}

func TestLoadSections(t *testing.T) {
	path := writeConfig(t, `
[app]
allowed_domains = example.com

[server]
addr = 127.0.0.1:9000
write_timeout = 5s

[fetch]
timeout = 2s
max_bytes = 1024
user_agent = test-agent

[transform]
concurrency = 3
quality = 70
max_dimension = 2048
max_source_pixels = 1000000

[allowlist]
redis_addr = localhost:6379
redis_db = 2
redis_key = domains

[log]
level = debug
format = console

[tracing]
exporter = otlp
otlp_endpoint = collector:4318
otlp_insecure = true
`)

	cfg, err := Load([]string{"--config", path})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 2*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, int64(1024), cfg.Fetch.MaxBytes)
	assert.Equal(t, "test-agent", cfg.Fetch.UserAgent)
	assert.Equal(t, 3, cfg.Transform.Concurrency)
	assert.Equal(t, 70, cfg.Transform.Quality)
	assert.Equal(t, 2048, cfg.Transform.MaxDimension)
	assert.Equal(t, 1000000, cfg.Transform.MaxSourcePixels)
	assert.True(t, cfg.Allowlist.RedisEnabled())
	assert.Equal(t, "localhost:6379", cfg.Allowlist.RedisOptions().Addr)
	assert.Equal(t, 2, cfg.Allowlist.RedisOptions().DB)
	assert.Equal(t, "domains", cfg.Allowlist.RedisKey)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "otlp", cfg.Tracing.Exporter)
	assert.Equal(t, "collector:4318", cfg.Tracing.OTLPEndpoint)
	assert.True(t, cfg.Tracing.OTLPInsecure)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "[app]\nallowed_domains = example.com\n\n[transform]\nquality = 70\n")
	t.Setenv("PIXELPROXY_APP_ALLOWED_DOMAINS", "env.test")
	t.Setenv("PIXELPROXY_TRANSFORM_QUALITY", "60")

	cfg, err := Load([]string{"--config", path})
	require.NoError(t, err)

	assert.Equal(t, []string{"env.test"}, cfg.Allowlist.Domains)
	assert.Equal(t, 60, cfg.Transform.Quality)
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	path := writeConfig(t, "[app]\nallowed_domains = example.com\n\n[server]\naddr = :7000\n")
	t.Setenv("PIXELPROXY_SERVER_ADDR", ":8000")

	cfg, err := Load([]string{"--config", path, "--addr", ":9000", "--log-level", "warn"})
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		args func(path string) []string
	}{
		{
			name: "missing file",
			args: func(string) []string { return []string{"--config", filepath.Join(t.TempDir(), "absent.ini")} },
		},
		{
			name: "no allowed domains",
			body: "[app]\nallowed_domains =\n",
		},
		{
			name: "quality out of range",
			body: "[app]\nallowed_domains = example.com\n[transform]\nquality = 101\n",
		},
		{
			name: "non-positive body limit",
			body: "[app]\nallowed_domains = example.com\n[fetch]\nmax_bytes = 0\n",
		},
		{
			name: "unknown flag",
			body: "[app]\nallowed_domains = example.com\n",
			args: func(path string) []string { return []string{"--config", path, "--bogus"} },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.body)
			args := []string{"--config", path}
			if tc.args != nil {
				args = tc.args(path)
			}

			_, err := Load(args)
			require.Error(t, err)
		})
	}
}
