package wconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigFailsValidationWithoutInterface(t *testing.T) {
	require.ErrorIs(t, Validate(DefaultConfig()), ErrEmptyInterface)
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warpcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  interface: eth0
  backend: bypass
  num_bufs: 2048
log:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "eth0", cfg.Engine.Interface)
	require.Equal(t, "bypass", cfg.Engine.Backend)
	require.Equal(t, 2048, cfg.Engine.NumBufs)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "text", cfg.Log.Format) // default preserved
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warpcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  interface: eth0\n"), 0o644))

	t.Setenv("WARPCORE_ENGINE_INTERFACE", "eth1")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "eth1", cfg.Engine.Interface)
}

func TestLoadWithoutFileUsesEnvAndDefaults(t *testing.T) {
	t.Setenv("WARPCORE_ENGINE_INTERFACE", "lo")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "lo", cfg.Engine.Interface)
	require.Equal(t, "ossock", cfg.Engine.Backend)
	require.Equal(t, 1024, cfg.Engine.NumBufs)
}

func TestLoadRejectsInvalidBackend(t *testing.T) {
	t.Setenv("WARPCORE_ENGINE_INTERFACE", "lo")
	t.Setenv("WARPCORE_ENGINE_BACKEND", "carrier-pigeon")
	_, err := Load("")
	require.ErrorIs(t, err, ErrInvalidBackend)
}

func TestLoadMissingFileErrors(t *testing.T) {
	t.Setenv("WARPCORE_ENGINE_INTERFACE", "lo")
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}
