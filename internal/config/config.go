// Package config loads the optional pytest-lsp.toml workspace
// configuration. Missing files fall back to built-in defaults.
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	// Root overrides the workspace root; empty means the root supplied
	// by the LSP client or the CLI argument.
	Root string `toml:"root"`

	// Venv overrides virtualenv discovery with an explicit path.
	Venv string `toml:"venv"`

	Exclude Exclude `toml:"exclude"`
	Watch   Watch   `toml:"watch"`
}

type Exclude struct {
	// Globs are matched against workspace-relative paths and base names
	// during workspace scans; the file watcher matches base names only.
	Globs []string `toml:"globs"`
}

type Watch struct {
	Debounce time.Duration `toml:"debounce"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Watch: Watch{Debounce: 300 * time.Millisecond},
	}
}

// Load reads a TOML config file. A missing file is not an error; defaults
// are returned.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}

	cfg := Default()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, err
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 300 * time.Millisecond
	}
	return cfg, nil
}
