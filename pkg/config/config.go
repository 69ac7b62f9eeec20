// Package config loads per-project overrides from .rjsrc.toml, the same
// way the ambient tooling reads language manifests: a small, optional TOML
// file that a missing file never turns into an error for.
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"

	rjserrors "github.com/rjspm/rjs/pkg/errors"
)

// FileName is the config file name looked up in a project root.
const FileName = ".rjsrc.toml"

// DefaultRegistry is used when a project carries no .rjsrc.toml, or its
// registry field is empty.
const DefaultRegistry = "https://registry.npmjs.org"

// Config holds the install-time settings a project can override.
type Config struct {
	Registry    string `toml:"registry"`
	Concurrency int    `toml:"concurrency"`
	BatchSize   int    `toml:"batch_size"`
	CacheTTL    string `toml:"cache_ttl"`
}

// Default returns a Config with every field at its built-in default.
func Default() Config {
	return Config{Registry: DefaultRegistry}
}

// Load reads .rjsrc.toml from dir. A missing file is not an error: it
// returns Default() so install can always call Load unconditionally.
func Load(dir string) (Config, error) {
	path := dir + string(os.PathSeparator) + FileName
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, rjserrors.Wrap(rjserrors.ErrCodeIO, err, "read %s", path)
	}

	cfg := Default()
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return Config{}, rjserrors.Wrap(rjserrors.ErrCodeInvalidInput, err, "parse %s", path)
	}
	if cfg.Registry == "" {
		cfg.Registry = DefaultRegistry
	}
	return cfg, nil
}

// CacheTTLDuration parses CacheTTL, falling back to fallback when the
// field is empty or not a valid duration.
func (c Config) CacheTTLDuration(fallback time.Duration) time.Duration {
	if c.CacheTTL == "" {
		return fallback
	}
	d, err := time.ParseDuration(c.CacheTTL)
	if err != nil {
		return fallback
	}
	return d
}
