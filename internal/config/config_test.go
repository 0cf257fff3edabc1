package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "pytest-lsp.toml"))
	require.NoError(t, err)
	require.Equal(t, 300*time.Millisecond, cfg.Watch.Debounce)
	require.Empty(t, cfg.Exclude.Globs)
	require.Empty(t, cfg.Root)
}

func TestLoadFullConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pytest-lsp.toml")
	content := `
root = "/ws"
venv = "/ws/.venv"

[exclude]
globs = ["generated/*", "*.tmp.py"]

[watch]
debounce = 500000000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/ws", cfg.Root)
	require.Equal(t, "/ws/.venv", cfg.Venv)
	require.Equal(t, []string{"generated/*", "*.tmp.py"}, cfg.Exclude.Globs)
	require.Equal(t, 500*time.Millisecond, cfg.Watch.Debounce)
}

func TestLoadInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pytest-lsp.toml")
	require.NoError(t, os.WriteFile(path, []byte("root = [unclosed"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
