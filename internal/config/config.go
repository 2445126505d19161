package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	DefaultLineBudget = 200
	DefaultBackend    = "clipboard"
	DefaultWriter     = "disk"
	fileName          = "config.toml"
)

// Config is the project configuration stored in .pfx/config.toml.
type Config struct {
	// LineBudget is the largest change dispatched in one pass.
	LineBudget int    `toml:"line_budget,omitempty"`
	Backend    string `toml:"backend,omitempty"`
	Writer     string `toml:"writer,omitempty"`
	// Extensions limits the source tree to these file types. Empty means all.
	Extensions []string `toml:"extensions,omitempty"`
	// Ignore lists directory names skipped anywhere in the tree.
	Ignore   []string `toml:"ignore,omitempty"`
	LogLevel string   `toml:"log_level,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LineBudget: DefaultLineBudget,
		Backend:    DefaultBackend,
		Writer:     DefaultWriter,
		Ignore:     []string{"node_modules", "Pods", "Carthage", ".build", "DerivedData", "vendor"},
		LogLevel:   "info",
	}
}

// Path returns the config file location for a project state directory.
func Path(stateDir string) string {
	return filepath.Join(stateDir, fileName)
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	d := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return d, nil
	}
	if err != nil {
		return d, fmt.Errorf("reading config: %w", err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return d, fmt.Errorf("parsing config: %w", err)
	}

	merged := Config{
		LineBudget: pickInt(c.LineBudget, d.LineBudget),
		Backend:    pick(c.Backend, d.Backend),
		Writer:     pick(c.Writer, d.Writer),
		Extensions: c.Extensions,
		Ignore:     d.Ignore,
		LogLevel:   pick(c.LogLevel, d.LogLevel),
	}
	if c.Ignore != nil {
		merged.Ignore = c.Ignore
	}
	return merged, merged.Validate()
}

// Save writes cfg to path.
func Save(path string, cfg Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.LineBudget <= 0 {
		return fmt.Errorf("line_budget must be positive, got %d", c.LineBudget)
	}
	switch c.Writer {
	case "disk", "nvim":
	default:
		return fmt.Errorf("writer must be disk or nvim, got %q", c.Writer)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	return nil
}

func pick(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func pickInt(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}
