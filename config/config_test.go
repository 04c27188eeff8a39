package config_test

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/qengine/config"
	"github.com/syssam/qengine/schema"
)

func TestRead(t *testing.T) {
	t.Parallel()
	cfg, err := config.Read(strings.NewReader(`
datasource:
  driver: postgres
  dsn: postgres://localhost/app
  relation_mode: emulated
  statement_timeout: 5s
cache:
  enabled: true
  ttl: 30s
log:
  level: debug
  format: json
`))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Datasource.Driver)
	assert.Equal(t, "postgres://localhost/app", cfg.Datasource.DSN)
	assert.Equal(t, 5*time.Second, cfg.Datasource.StatementTimeout)
	assert.Equal(t, 200*time.Millisecond, cfg.Datasource.SlowQueryThreshold)
	mode, err := cfg.Datasource.Mode()
	require.NoError(t, err)
	assert.Equal(t, schema.Emulated, mode)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 4096, cfg.Cache.Size)
	assert.Equal(t, 8, cfg.Request.Concurrency)
	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{name: "unknown_driver", yaml: "datasource: {driver: oracle}", wantErr: "unsupported datasource driver"},
		{name: "empty_dsn", yaml: "datasource: {dsn: ''}", wantErr: "dsn is required"},
		{name: "relation_mode", yaml: "datasource: {relation_mode: native}", wantErr: "unknown relation mode"},
		{name: "log_level", yaml: "log: {level: loud}", wantErr: "log level"},
		{name: "log_format", yaml: "log: {format: xml}", wantErr: "unsupported log format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Read(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("defaults_without_file", func(t *testing.T) {
		t.Chdir(t.TempDir())
		cfg, err := config.Load("")
		require.NoError(t, err)
		assert.Equal(t, "sqlite", cfg.Datasource.Driver)
		assert.Equal(t, ":4466", cfg.Request.Addr)
		assert.False(t, cfg.Cache.Enabled)
	})

	t.Run("missing_explicit_file", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("env_overrides_file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "qengine.yaml")
		require.NoError(t, os.WriteFile(path, []byte("request:\n  concurrency: 2\n"), 0o644))
		t.Setenv("QENGINE_REQUEST_CONCURRENCY", "16")
		t.Setenv("QENGINE_CACHE_ENABLED", "true")
		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, 16, cfg.Request.Concurrency)
		assert.True(t, cfg.Cache.Enabled)
	})
}

func TestLogger(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := config.Log{Level: "warn", Format: "json"}.Logger(&buf)
	logger.Info("dropped")
	logger.Warn("kept", "model", "User")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"model":"User"`)
}
