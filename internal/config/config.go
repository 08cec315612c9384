// Package config handles configuration loading from a TOML file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"github.com/phobologic/rubysense/internal/ranking"
)

// FileName is the configuration file looked up in a project root.
const FileName = ".rubysense.toml"

// EnvLogLevel overrides log_level when set.
const EnvLogLevel = "RUBYSENSE_LOG_LEVEL"

// Config is the root configuration structure.
type Config struct {
	// MaxFileSize skips larger source files during discovery. Zero disables
	// the limit.
	MaxFileSize int64 `toml:"max_file_size"`
	// VisibilityThreshold is the candidate count above which universal
	// methods sink to the end. Negative disables the push-down.
	VisibilityThreshold int `toml:"visibility_threshold"`
	// MaxCandidates truncates completion lists. Zero keeps everything.
	MaxCandidates       int      `toml:"max_candidates"`
	UniversalContainers []string `toml:"universal_containers"`
	Exclude             []string `toml:"exclude"`
	// Builtins loads the embedded core type table.
	Builtins   bool   `toml:"builtins"`
	IndexTests bool   `toml:"index_tests"`
	LogLevel   string `toml:"log_level"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		MaxFileSize:         1 << 20,
		VisibilityThreshold: ranking.DefaultThreshold,
		MaxCandidates:       0,
		UniversalContainers: append([]string(nil), ranking.DefaultUniversal...),
		Builtins:            true,
		IndexTests:          true,
		LogLevel:            "warn",
	}
}

// Load reads configuration from path on top of the defaults and applies
// environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	md, err := toml.DecodeFile(path, cfg)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// defaults
	case err != nil:
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	default:
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDir loads FileName from a project root.
func LoadDir(root string) (*Config, error) {
	return Load(filepath.Join(root, FileName))
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	var errs []error

	if c.MaxFileSize < 0 {
		errs = append(errs, fmt.Errorf("max_file_size=%d must not be negative", c.MaxFileSize))
	}
	if c.MaxCandidates < 0 {
		errs = append(errs, fmt.Errorf("max_candidates=%d must not be negative", c.MaxCandidates))
	}
	for i, name := range c.UniversalContainers {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("universal_containers[%d] is empty", i))
		}
	}
	for _, pattern := range c.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, fmt.Errorf("exclude pattern %q is invalid", pattern))
		}
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level=%q is invalid: %v", c.LogLevel, err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Level returns the configured log level, defaulting to warn.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.WarnLevel
	}
	return lvl
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	for _, setter := range []struct {
		env   string
		apply func(string)
	}{
		{EnvLogLevel, func(v string) {
			if v != "" {
				cfg.LogLevel = v
			}
		}},
	} {
		setter.apply(os.Getenv(setter.env))
	}
}
