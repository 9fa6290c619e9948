// Package config provides configuration loading for factoryd.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for a factory run.
type Config struct {
	Output   OutputConfig   `koanf:"output"`
	LLM      LLMConfig      `koanf:"llm"`
	Pipeline PipelineConfig `koanf:"pipeline"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// OutputConfig controls where generated projects land.
type OutputConfig struct {
	// Dir is the root under which each project directory is created.
	Dir string `koanf:"dir"`
	// MetadataDir is the subdirectory for blackboard, metrics and
	// milestone files, relative to the project directory.
	MetadataDir string `koanf:"metadata_dir"`
}

// LLMConfig selects and tunes the model backend.
type LLMConfig struct {
	Backend           string  `koanf:"backend"`
	Model             string  `koanf:"model"`
	BaseURL           string  `koanf:"base_url"`
	APIKey            string  `koanf:"api_key"`
	Temperature       float64 `koanf:"temperature"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// PipelineConfig bounds the generation loops.
type PipelineConfig struct {
	// Workers caps parallel module generation. 0 means min(4, modules).
	Workers int `koanf:"workers"`
	// PlanningRounds bounds the architect/auditor loop.
	PlanningRounds int `koanf:"planning_rounds"`
	// ModuleAttempts bounds the test-fix loop per module.
	ModuleAttempts int `koanf:"module_attempts"`
	// IntegratorAttempts bounds entrypoint generation retries.
	IntegratorAttempts int `koanf:"integrator_attempts"`
	// RepairAttempts bounds the runtime auto-repair loop.
	RepairAttempts int `koanf:"repair_attempts"`
	// TestCommand is the interpreter used to run a module's test
	// artifact; the test filename is appended.
	TestCommand string `koanf:"test_command"`
	// TestTimeout bounds a single test-suite run.
	TestTimeout time.Duration `koanf:"test_timeout"`
	// ObserveWindow is how long a launched program is watched.
	ObserveWindow time.Duration `koanf:"observe_window"`
	// Strict aborts the run on module failures instead of continuing
	// with the modules that succeeded.
	Strict bool `koanf:"strict"`
	// SkipRepair disables the runtime auto-repair stage.
	SkipRepair bool `koanf:"skip_repair"`
}

// LoggingConfig is the logging section of the file; it is translated
// into the logging package's own config by the caller.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// NewDefaultConfig returns config with working defaults for a local
// Ollama backend.
func NewDefaultConfig() *Config {
	return &Config{
		Output: OutputConfig{
			Dir:         "generated_projects",
			MetadataDir: ".factory",
		},
		LLM: LLMConfig{
			Backend:           "ollama",
			Model:             "qwen2.5-coder:14b",
			BaseURL:           "http://localhost:11434",
			Temperature:       0.2,
			RequestsPerSecond: 2,
		},
		Pipeline: PipelineConfig{
			PlanningRounds:     5,
			ModuleAttempts:     3,
			IntegratorAttempts: 3,
			RepairAttempts:     3,
			TestCommand:        "python",
			TestTimeout:        10 * time.Second,
			ObserveWindow:      5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir cannot be empty")
	}
	switch c.LLM.Backend {
	case "ollama", "openai":
	default:
		return fmt.Errorf("llm.backend must be 'ollama' or 'openai', got %q", c.LLM.Backend)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model cannot be empty")
	}
	if c.LLM.Backend == "openai" && c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required for the openai backend")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be in [0, 2], got %v", c.LLM.Temperature)
	}
	if c.LLM.RequestsPerSecond < 0 {
		return fmt.Errorf("llm.requests_per_second must be >= 0, got %v", c.LLM.RequestsPerSecond)
	}
	if c.Pipeline.Workers < 0 {
		return fmt.Errorf("pipeline.workers must be >= 0, got %d", c.Pipeline.Workers)
	}
	for name, v := range map[string]int{
		"pipeline.planning_rounds":     c.Pipeline.PlanningRounds,
		"pipeline.module_attempts":     c.Pipeline.ModuleAttempts,
		"pipeline.integrator_attempts": c.Pipeline.IntegratorAttempts,
		"pipeline.repair_attempts":     c.Pipeline.RepairAttempts,
	} {
		if v < 1 {
			return fmt.Errorf("%s must be >= 1, got %d", name, v)
		}
	}
	if c.Pipeline.TestCommand == "" {
		return fmt.Errorf("pipeline.test_command cannot be empty")
	}
	if c.Pipeline.TestTimeout <= 0 {
		return fmt.Errorf("pipeline.test_timeout must be > 0")
	}
	if c.Pipeline.ObserveWindow <= 0 {
		return fmt.Errorf("pipeline.observe_window must be > 0")
	}
	return nil
}
