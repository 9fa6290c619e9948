package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.LLM.Backend)
	assert.Equal(t, 5, cfg.Pipeline.PlanningRounds)
	assert.Equal(t, 3, cfg.Pipeline.ModuleAttempts)
	assert.Equal(t, 10*time.Second, cfg.Pipeline.TestTimeout)
	assert.Equal(t, ".factory", cfg.Output.MetadataDir)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  model: codellama:13b
  temperature: 0.7
pipeline:
  workers: 2
  test_timeout: 30s
  strict: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "codellama:13b", cfg.LLM.Model)
	assert.Equal(t, 0.7, cfg.LLM.Temperature)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.TestTimeout)
	assert.True(t, cfg.Pipeline.Strict)
	// Untouched sections keep defaults.
	assert.Equal(t, "ollama", cfg.LLM.Backend)
	assert.Equal(t, 3, cfg.Pipeline.RepairAttempts)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "llm:\n  model: from-file\n")
	t.Setenv("FACTORYD_LLM_MODEL", "from-env")
	t.Setenv("FACTORYD_OUTPUT_DIR", "/tmp/projects")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.LLM.Model)
	assert.Equal(t, "/tmp/projects", cfg.Output.Dir)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := writeConfig(t, "llm: [unclosed\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateBackend(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.LLM.Backend = "anthropic"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.backend")
}

func TestValidateOpenAIRequiresKey(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.LLM.Backend = "openai"
	require.Error(t, cfg.Validate())
	cfg.LLM.APIKey = "sk-test"
	require.NoError(t, cfg.Validate())
}

func TestValidateBudgets(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Pipeline.RepairAttempts = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repair_attempts")

	cfg = NewDefaultConfig()
	cfg.Pipeline.Workers = -1
	assert.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Pipeline.ObserveWindow = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateTemperatureRange(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.LLM.Temperature = 3.5
	assert.Error(t, cfg.Validate())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, "pipeline:\n  planning_rounds: 0\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "planning_rounds")
}
