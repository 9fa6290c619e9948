// Package main implements the factoryd CLI: it takes an application idea
// and drives the generation pipeline until a project directory exists.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/factoryd/internal/blackboard"
	"github.com/fyrsmithlabs/factoryd/internal/config"
	"github.com/fyrsmithlabs/factoryd/internal/llm"
	"github.com/fyrsmithlabs/factoryd/internal/logging"
	"github.com/fyrsmithlabs/factoryd/internal/milestone"
	"github.com/fyrsmithlabs/factoryd/internal/pipeline"
	"github.com/fyrsmithlabs/factoryd/internal/runner"
)

var (
	// configPath points at the YAML config file; empty uses defaults
	// plus FACTORYD_* environment overrides.
	configPath string
	// strictMode flips the run policy from best-effort to strict.
	strictMode bool
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "factoryd",
	Short: "Multi-agent code generation pipeline",
	Long: `factoryd turns an application idea into a runnable multi-file project:
it plans an architecture, designs and implements each module with tests,
wires the entrypoint, and repairs runtime crashes.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	buildCmd.Flags().BoolVar(&strictMode, "strict", false, "fail the run when a module's tests cannot be made to pass")
	rootCmd.AddCommand(buildCmd)
}

var buildCmd = &cobra.Command{
	Use:   "build <idea...>",
	Short: "Generate a project from an application idea",
	Long: `Generate a complete project from a natural-language idea.

Examples:
  # Build with the default local Ollama backend
  factoryd build "a todo web app with sqlite storage"

  # Fail the run when any module's tests cannot be made to pass
  factoryd build --strict "a csv deduplication tool"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBuild,
}

func runBuild(cmd *cobra.Command, args []string) error {
	idea := strings.Join(args, " ")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if strictMode {
		cfg.Pipeline.Strict = true
	}

	log, err := buildLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	projectDir := filepath.Join(cfg.Output.Dir, projectSlug(idea))
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}
	metaDir := filepath.Join(projectDir, cfg.Output.MetadataDir)

	client, err := llm.NewClient(llm.ClientConfig{
		Backend:           cfg.LLM.Backend,
		Model:             cfg.LLM.Model,
		BaseURL:           cfg.LLM.BaseURL,
		APIKey:            cfg.LLM.APIKey,
		Temperature:       cfg.LLM.Temperature,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
	})
	if err != nil {
		return err
	}

	board, err := blackboard.New(idea, projectDir, metaDir)
	if err != nil {
		return err
	}
	miles, err := milestone.NewManager(projectDir, "")
	if err != nil {
		return err
	}

	orch, err := pipeline.NewOrchestrator(pipeline.Options{
		Config:      cfg.Pipeline,
		Generator:   client,
		Critic:      llm.NewModelCritic(client, llm.AuditorInstructions),
		Analyzer:    pipeline.NewModelAnalyzer(client),
		Frontend:    pipeline.NewModelFrontendBuilder(client),
		Board:       board,
		Milestones:  miles,
		Runner:      runner.New(),
		Logger:      log,
		MetadataDir: metaDir,
	})
	if err != nil {
		return err
	}

	result, err := orch.Run(cmd.Context(), idea)
	if err != nil {
		return err
	}
	printResult(result, miles)
	if result.Aborted {
		return fmt.Errorf("run aborted: %s", result.Reason)
	}
	return nil
}

func buildLogger(lc config.LoggingConfig) (*logging.Logger, error) {
	cfg := logging.NewDefaultConfig()
	if lc.Format != "" {
		cfg.Format = lc.Format
	}
	if lc.Level != "" {
		level, err := logging.LevelFromString(lc.Level)
		if err != nil {
			return nil, fmt.Errorf("logging.level: %w", err)
		}
		cfg.Level = level
	}
	return logging.NewLogger(cfg)
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// projectSlug derives a filesystem-friendly directory name from the idea,
// suffixed with a timestamp so repeated runs never collide.
func projectSlug(idea string) string {
	slug := slugRe.ReplaceAllString(strings.ToLower(idea), "_")
	slug = strings.Trim(slug, "_")
	if len(slug) > 40 {
		slug = slug[:40]
	}
	if slug == "" {
		slug = "project"
	}
	return slug + "_" + time.Now().Format("20060102_150405")
}

func printResult(result *pipeline.RunResult, miles *milestone.Manager) {
	fmt.Printf("Project: %s\n", result.ProjectDir)
	fmt.Printf("Run ID:  %s\n", result.RunID)

	if len(result.Modules) > 0 {
		fmt.Println("Modules:")
		for _, m := range result.Modules {
			switch {
			case m.Err != nil:
				fmt.Printf("  %-20s FAILED: %v\n", m.Name, m.Err)
			case m.TestsPassed:
				fmt.Printf("  %-20s tests passed\n", m.Name)
			default:
				fmt.Printf("  %-20s tests failing (kept)\n", m.Name)
			}
		}
	}

	fmt.Println("Milestones:")
	for _, rec := range miles.History() {
		fmt.Printf("  %-14s %s\n", rec.Stage, rec.Status)
	}

	if result.Aborted {
		fmt.Printf("Aborted at gate: %s\n", result.Reason)
		return
	}
	if result.Entrypoint != "" {
		fmt.Printf("Entrypoint: %s\n", result.Entrypoint)
	}
	if result.Runnable {
		fmt.Println("Launch check: passed")
	} else {
		fmt.Println("Launch check: not verified")
	}
}
