package aliasing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "errly.yaml")

	content := `
environment_aliases:
  production: prod
  stg: staging
`
	err := os.WriteFile(configPath, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(configPath)

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Len(t, cfg.EnvironmentAliases, 2)
	assert.Equal(t, "prod", cfg.EnvironmentAliases["production"])
	assert.Equal(t, "staging", cfg.EnvironmentAliases["stg"])
}

func TestLoadConfig_EmptyAliasesSection(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "errly.yaml")

	content := `
environment_aliases:
`
	err := os.WriteFile(configPath, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(configPath)

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.EnvironmentAliases)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/errly.yaml")

	// Missing file should return empty config, no error (graceful degradation)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.EnvironmentAliases)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "errly.yaml")

	// Invalid YAML
	content := `
environment_aliases:
  production: [invalid yaml
`
	err := os.WriteFile(configPath, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(configPath)

	// Invalid YAML should return empty config with no error (graceful degradation)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.EnvironmentAliases)
}

func TestLoadConfig_YAMLWithOnlyComments(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "errly.yaml")

	content := `
# This is a comment
# Another comment
`
	err := os.WriteFile(configPath, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(configPath)

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.EnvironmentAliases)
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "errly.yaml")

	err := os.WriteFile(configPath, []byte(""), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(configPath)

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.EnvironmentAliases)
}

func TestLoadConfig_NoAliasesKey(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "errly.yaml")

	// Valid YAML but no environment_aliases key
	content := `
some_other_config:
  key: value
`
	err := os.WriteFile(configPath, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig(configPath)

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.EnvironmentAliases)
}

func TestLoadConfigFromEnv_DefaultPath(t *testing.T) {
	// Unset env var to use default
	os.Unsetenv("ERRLY_CONFIG_PATH")

	// This will try to load from ./.errly.yaml which likely doesn't exist
	cfg, err := LoadConfigFromEnv()

	// Should gracefully return empty config
	require.NoError(t, err)
	require.NotNil(t, cfg)
}

func TestLoadConfigFromEnv_CustomPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "custom-config.yaml")

	content := `
environment_aliases:
  live: production
`
	err := os.WriteFile(configPath, []byte(content), 0644)
	require.NoError(t, err)

	// Set env var to custom path
	t.Setenv("ERRLY_CONFIG_PATH", configPath)

	cfg, err := LoadConfigFromEnv()

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Len(t, cfg.EnvironmentAliases, 1)
	assert.Equal(t, "production", cfg.EnvironmentAliases["live"])
}
