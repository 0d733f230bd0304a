package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps a developer's own stickies.yaml out of the lookup path.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", cfg.API.URL)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, 4*time.Minute, cfg.API.RefreshInterval)
	assert.Equal(t, "fs", cfg.Storage.Adapter)
	assert.Equal(t, "keep", cfg.Sync.FailurePolicy)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stickies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  url: https://notes.example.com
  timeout: 3s
storage:
  adapter: sqlite
  dir: /tmp/notes
sync:
  failure_policy: revert
`), 0644))

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "https://notes.example.com", cfg.API.URL)
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)
	assert.Equal(t, "sqlite", cfg.Storage.Adapter)
	assert.Equal(t, "/tmp/notes", cfg.Storage.Dir)
	assert.Equal(t, "revert", cfg.Sync.FailurePolicy)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("STICKIES_API_URL", "http://api.internal:9000")
	t.Setenv("STICKIES_STORAGE_ADAPTER", "memory")

	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, "http://api.internal:9000", cfg.API.URL)
	assert.Equal(t, "memory", cfg.Storage.Adapter)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("STICKIES_SYNC_FAILURE_POLICY=revert\n"), 0644))
	t.Setenv("STICKIES_SYNC_FAILURE_POLICY", "")
	os.Unsetenv("STICKIES_SYNC_FAILURE_POLICY")

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "revert", cfg.Sync.FailurePolicy)

	_, err = Load("", filepath.Join(dir, "missing.env"))
	assert.NoError(t, err, "a missing .env file is ignored")
}

func TestLoad_Invalid(t *testing.T) {
	isolate(t)

	t.Setenv("STICKIES_STORAGE_ADAPTER", "s3")
	_, err := Load("", "")
	assert.ErrorContains(t, err, "unknown storage adapter")

	t.Setenv("STICKIES_STORAGE_ADAPTER", "fs")
	t.Setenv("STICKIES_SYNC_FAILURE_POLICY", "retry")
	_, err = Load("", "")
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	assert.Error(t, err)
}
