package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FocuswithJustin/sqlforensic/core/errors"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)
	assert.GreaterOrEqual(t, cfg.Workers, 1)
	assert.Equal(t, 64*1024, cfg.WindowSize)
	assert.Equal(t, int64(16<<20), cfg.CacheBytes)
	assert.Equal(t, 5*time.Millisecond, cfg.PollInterval)
	assert.True(t, cfg.Carve.Enabled)
	assert.True(t, cfg.Logs.WAL)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sqlforensic.yaml")
	yaml := `
workers: 1
deleted_only: true
poll_interval: 20ms
carve:
  unallocated: false
log:
  level: debug
  format: text
output:
  dir: /tmp/out
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Workers)
	assert.True(t, cfg.DeletedOnly)
	assert.Equal(t, 20*time.Millisecond, cfg.PollInterval)
	assert.False(t, cfg.Carve.Unallocated)
	assert.True(t, cfg.Carve.Freelist, "unset keys keep their defaults")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/out", cfg.Output.Dir)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SQLFORENSIC_WORKERS", "3")
	t.Setenv("SQLFORENSIC_LOGS_WAL", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)
	assert.False(t, cfg.Logs.WAL)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 0\n"), 0o600))
	_, err = Load(path)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput), "got %v", err)

	require.NoError(t, os.WriteFile(path, []byte("log:\n  format: xml\n"), 0o600))
	_, err = Load(path)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput), "got %v", err)
}
