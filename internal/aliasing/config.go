// Package aliasing provides environment name aliasing for error ingestion.
//
// Client SDKs report inconsistent environment names for the same deployment
// target ("prod", "production", "PROD"), which fragments issue grouping
// because the environment participates in the event fingerprint. This package
// provides configuration loading and resolution to map reported environment
// names to canonical ones.
package aliasing

import (
	"errors"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/errly-io/errly/internal/config"
)

// Config holds environment alias configuration loaded from .errly.yaml.
type Config struct {
	// EnvironmentAliases maps reported environment names to canonical names.
	// Key is the alias (SDK-reported), value is the canonical environment.
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	EnvironmentAliases map[string]string `yaml:"environment_aliases"`
}

// DefaultConfigPath is the default location for the errly configuration file.
// Uses hidden file format following common tool conventions (.eslintrc, .prettierrc, etc.).
const DefaultConfigPath = ".errly.yaml"

// ConfigPathEnvVar is the environment variable name for custom config path.
const ConfigPathEnvVar = "ERRLY_CONFIG_PATH"

// LoadConfig loads alias configuration from a YAML file at the given path.
//
// Behavior:
//   - Returns empty config (not error) if file doesn't exist - aliases are optional
//   - Returns empty config + logs warning if YAML is invalid (graceful degradation)
//   - Returns populated config on success
//
// This graceful degradation ensures the server can start even without aliases
// configured, as environment aliasing is an optional feature.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		EnvironmentAliases: make(map[string]string),
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Missing file is OK - aliases are optional
			slog.Debug("Config file not found, continuing without aliases",
				slog.String("path", path))

			return cfg, nil
		}

		// Other read errors (permissions, etc.) - log warning and continue
		slog.Warn("Failed to read config file, continuing without aliases",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return cfg, nil
	}

	// Empty file is valid - just no aliases
	if len(data) == 0 {
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		// Invalid YAML - log warning and continue with empty config
		slog.Warn("Failed to parse config file, continuing without aliases",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return &Config{EnvironmentAliases: make(map[string]string)}, nil
	}

	// Ensure map is initialized even if YAML had nil/empty section
	if cfg.EnvironmentAliases == nil {
		cfg.EnvironmentAliases = make(map[string]string)
	}

	return cfg, nil
}

// LoadConfigFromEnv loads config from the path specified in ERRLY_CONFIG_PATH
// environment variable. Falls back to ".errly.yaml" in current directory if not set.
func LoadConfigFromEnv() (*Config, error) {
	path := config.GetEnvStr(ConfigPathEnvVar, DefaultConfigPath)

	return LoadConfig(path)
}
