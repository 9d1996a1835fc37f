package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME at a fresh directory so no real config file leaks in.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func writeConfig(t *testing.T, home, body string, perm os.FileMode) string {
	t.Helper()
	dir := filepath.Join(home, ".config", "detectd")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("DETECTD_SEARCH_SAT_TIMEOUT", "250ms")
	t.Setenv("DETECTD_SEARCH_MAX_DISTANCE", "7.5")
	t.Setenv("DETECTD_SERVER_HTTP_PORT", "9393")
	t.Setenv("DETECTD_OBSERVABILITY_SERVICE_NAME", "detectd-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Search.SATTimeout)
	assert.Equal(t, 7.5, cfg.Search.MaxDistance)
	assert.Equal(t, 9393, cfg.Server.Port)
	assert.Equal(t, "detectd-test", cfg.Observability.ServiceName)
}

func TestLoad_InvalidEnvFailsValidation(t *testing.T) {
	isolate(t)
	t.Setenv("DETECTD_SERVER_HTTP_PORT", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestLoadWithFile_DefaultLocation(t *testing.T) {
	home := isolate(t)
	writeConfig(t, home, `
search:
  max_distance: 3
  lower_bound: 1
watch:
  output_suffix: .annotated.stim
`, 0o600)

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, 3.0, cfg.Search.MaxDistance)
	assert.Equal(t, 1, cfg.Search.LowerBound)
	assert.Equal(t, ".annotated.stim", cfg.Watch.OutputSuffix)
	// Untouched keys keep their defaults.
	assert.Equal(t, 100*time.Millisecond, cfg.Search.SATTimeout)
}

func TestLoadWithFile_MissingDefaultIsSkipped(t *testing.T) {
	isolate(t)

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadWithFile_EnvBeatsFile(t *testing.T) {
	home := isolate(t)
	path := writeConfig(t, home, "logging:\n  level: warn\n", 0o600)
	t.Setenv("DETECTD_LOGGING_LEVEL", "debug")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadWithFile_ExplicitMissing(t *testing.T) {
	home := isolate(t)

	_, err := LoadWithFile(filepath.Join(home, ".config", "detectd", "nope.yaml"))
	require.Error(t, err)
}

func TestLoadWithFile_OutsideAllowedDirs(t *testing.T) {
	isolate(t)
	other := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(other, []byte("{}"), 0o600))

	_, err := LoadWithFile(other)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config path validation failed")
}

func TestLoadWithFile_WorldWritable(t *testing.T) {
	home := isolate(t)
	path := writeConfig(t, home, "{}", 0o666)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "world-writable")
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "search.max_distance", envKey("DETECTD_SEARCH_MAX_DISTANCE"))
	assert.Equal(t, "server.http_port", envKey("DETECTD_SERVER_HTTP_PORT"))
	assert.Equal(t, "debug", envKey("DETECTD_DEBUG"))
}
