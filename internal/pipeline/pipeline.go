package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/factoryd/internal/blackboard"
	"github.com/fyrsmithlabs/factoryd/internal/blueprint"
	"github.com/fyrsmithlabs/factoryd/internal/config"
	"github.com/fyrsmithlabs/factoryd/internal/llm"
	"github.com/fyrsmithlabs/factoryd/internal/logging"
	"github.com/fyrsmithlabs/factoryd/internal/milestone"
	"github.com/fyrsmithlabs/factoryd/internal/runner"
)

// Options wires the orchestrator's collaborators. Tests substitute mocks
// for the model-backed ones.
type Options struct {
	Config     config.PipelineConfig
	Generator  llm.Generator
	Critic     llm.Critic
	Analyzer   StaticAnalyzer
	Frontend   FrontendBuilder
	Board      *blackboard.Blackboard
	Milestones *milestone.Manager
	Runner     *runner.Runner
	Logger     *logging.Logger
	// MetadataDir is the absolute path of the run's metadata directory
	// (blackboard, metrics, milestones, repair snapshots, report).
	MetadataDir string
}

// Orchestrator is the top-level state machine. A run either completes,
// with milestones recorded regardless of runnability, or aborts at
// exactly one of three gates.
type Orchestrator struct {
	opts Options
	log  *logging.Logger
}

// NewOrchestrator validates the wiring.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Generator == nil:
		return nil, fmt.Errorf("orchestrator: Generator is required")
	case opts.Critic == nil:
		return nil, fmt.Errorf("orchestrator: Critic is required")
	case opts.Analyzer == nil:
		return nil, fmt.Errorf("orchestrator: Analyzer is required")
	case opts.Frontend == nil:
		return nil, fmt.Errorf("orchestrator: Frontend is required")
	case opts.Board == nil:
		return nil, fmt.Errorf("orchestrator: Board is required")
	case opts.Milestones == nil:
		return nil, fmt.Errorf("orchestrator: Milestones is required")
	case opts.Runner == nil:
		return nil, fmt.Errorf("orchestrator: Runner is required")
	case opts.Logger == nil:
		return nil, fmt.Errorf("orchestrator: Logger is required")
	}
	return &Orchestrator{opts: opts, log: opts.Logger}, nil
}

// Run drives the full pipeline for the idea the blackboard was opened
// with. Aborted runs leave blackboard, metrics, and milestone history
// intact and report the gate through RunResult.Reason.
func (o *Orchestrator) Run(ctx context.Context, idea string) (*RunResult, error) {
	result := &RunResult{
		RunID:      uuid.NewString(),
		ProjectDir: o.opts.Board.ProjectDir(),
	}
	ctx = logging.WithRunID(ctx, result.RunID)
	board := o.opts.Board
	cfg := o.opts.Config

	// Planning.
	planner := NewPlanner(o.opts.Generator, o.opts.Critic, cfg.PlanningRounds, board.Metrics(), o.log)
	doc, err := planner.Plan(ctx, idea)
	if err != nil {
		if errors.Is(err, ErrPlanningExhausted) {
			return o.abort(ctx, result, AbortPlanningExhausted, err)
		}
		return result, err
	}

	// Architecture gate.
	if err := board.SetArchitecture(doc); err != nil {
		var schemaErr *blueprint.SchemaError
		if errors.As(err, &schemaErr) || errors.Is(err, blueprint.ErrNotMapping) {
			return o.abort(ctx, result, AbortSchemaValidation, err)
		}
		return result, err
	}
	arch := board.Architecture()
	if passed, details := o.opts.Milestones.CheckArchitecture(arch); !passed {
		return o.abort(ctx, result, AbortSchemaValidation,
			fmt.Errorf("architecture milestone failed: %s", strings.Join(details, "; ")))
	}
	_ = board.SetStatus(blackboard.StatusDeveloping)

	// Module fan-out: all designs complete before any implementation.
	mp := NewModulePipeline(o.opts.Generator, o.opts.Analyzer, o.opts.Runner, board, o.log,
		cfg.ModuleAttempts, cfg.TestCommand, cfg.TestTimeout, cfg.Strict)
	limit := workerLimit(cfg.Workers, len(arch.Modules))
	strategy := buildStrategy(arch)

	o.log.Info(ctx, "design fan-out",
		zap.Int("modules", len(arch.Modules)), zap.Int("workers", limit))
	designFailures := fanOut(ctx, limit, arch.Modules, func(ctx context.Context, mod blueprint.Module) error {
		return mp.Design(ctx, mod, strategy)
	})

	implementable := make([]blueprint.Module, 0, len(arch.Modules))
	for _, mod := range arch.Modules {
		if err, failed := designFailures[mod.Name]; failed {
			o.log.Warn(ctx, "module excluded after design failure",
				zap.String("module", mod.Name), zap.Error(err))
			result.Modules = append(result.Modules, ModuleOutcome{
				Name: mod.Name, Filename: mod.Filename, Err: err,
			})
			continue
		}
		implementable = append(implementable, mod)
	}

	o.log.Info(ctx, "implementation fan-out", zap.Int("modules", len(implementable)))
	var mu sync.Mutex
	fanOut(ctx, limit, implementable, func(ctx context.Context, mod blueprint.Module) error {
		out, err := mp.Implement(ctx, mod)
		mu.Lock()
		result.Modules = append(result.Modules, out)
		mu.Unlock()
		return err
	})
	sort.Slice(result.Modules, func(i, j int) bool { return result.Modules[i].Name < result.Modules[j].Name })

	if cfg.Strict {
		for _, out := range result.Modules {
			if out.Err != nil {
				return result, fmt.Errorf("strict policy: %w", out.Err)
			}
		}
	}

	// Environment manifest.
	manifestPath, err := WriteManifest(ctx, board.ProjectDir(), board.FilesCreated())
	if err != nil {
		o.log.Warn(ctx, "manifest generation failed", zap.Error(err))
	}
	o.opts.Milestones.CheckEnvironment(manifestPath)

	// Development milestone.
	devResults := make([]milestone.ModuleResult, 0, len(result.Modules))
	for _, out := range result.Modules {
		devResults = append(devResults, milestone.ModuleResult{
			Name: out.Name, Filename: out.Filename, TestsPassed: out.TestsPassed,
		})
	}
	o.opts.Milestones.CheckDevelopment(devResults)

	// Frontend pass, web applications only.
	if arch.IsWeb() {
		names := o.buildFrontend(ctx, idea, arch)
		o.opts.Milestones.CheckFrontend(names)
	}

	if err := board.VerifyIntegrity(false); err != nil {
		o.log.Warn(ctx, "integrity check before integration", zap.Error(err))
	}

	// Integration gate.
	integrator := NewIntegrator(o.opts.Generator, board, o.log, cfg.IntegratorAttempts)
	entry, err := integrator.Integrate(ctx)
	if err != nil {
		o.opts.Milestones.CheckIntegration(arch.Entrypoint.File)
		return o.abort(ctx, result, AbortIntegrationFailure, err)
	}
	result.Entrypoint = entry
	if passed, details := o.opts.Milestones.CheckIntegration(entry); !passed {
		return o.abort(ctx, result, AbortIntegrationFailure,
			fmt.Errorf("integration milestone failed: %s", strings.Join(details, "; ")))
	}
	_ = board.SetStatus(blackboard.StatusIntegrated)
	if err := board.VerifyIntegrity(true); err != nil {
		o.log.Warn(ctx, "integrity check after integration", zap.Error(err))
	}

	// Runtime repair, advisory.
	if !cfg.SkipRepair {
		repairer := NewRepairer(o.opts.Generator, o.opts.Runner, board, o.log,
			cfg.RepairAttempts, cfg.ObserveWindow, o.opts.MetadataDir)
		result.Runnable, result.Repairs = repairer.Repair(ctx)
	}

	_ = board.SetStatus(blackboard.StatusComplete)
	o.writeReport(ctx, board)
	o.log.Info(ctx, "run complete",
		zap.Bool("runnable", result.Runnable),
		zap.Int("modules", len(result.Modules)))
	return result, nil
}

// abort records the gate and stops. The blackboard status flips to
// ABORTED; everything already persisted stays on disk.
func (o *Orchestrator) abort(ctx context.Context, result *RunResult, reason AbortReason, cause error) (*RunResult, error) {
	result.Aborted = true
	result.Reason = reason
	_ = o.opts.Board.SetStatus(blackboard.StatusAborted)
	_ = o.opts.Board.Log(fmt.Sprintf("run aborted (%s): %v", reason, cause))
	o.writeReport(ctx, o.opts.Board)
	o.log.Error(ctx, "run aborted",
		zap.String("reason", string(reason)),
		zap.Error(cause))
	return result, nil
}

func (o *Orchestrator) buildFrontend(ctx context.Context, idea string, arch *blueprint.Architecture) []string {
	ctx = logging.WithAgent(ctx, "frontend")
	var names []string
	for _, mod := range arch.Modules {
		if mod.Type != blueprint.ModuleWebInterface {
			continue
		}
		rec, _ := o.opts.Board.Module(mod.Name)
		files, err := o.opts.Frontend.Build(ctx, idea, rec.Spec)
		if err != nil {
			o.log.Warn(ctx, "frontend build failed",
				zap.String("module", mod.Name), zap.Error(err))
			continue
		}
		for name, content := range files {
			path := filepath.Join(o.opts.Board.ProjectDir(), name)
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				o.log.Warn(ctx, "frontend asset write failed",
					zap.String("file", name), zap.Error(err))
				continue
			}
			_ = o.opts.Board.RegisterFile(name)
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (o *Orchestrator) writeReport(ctx context.Context, board *blackboard.Blackboard) {
	path := filepath.Join(o.opts.MetadataDir, "report.md")
	if err := board.WriteDebugReport(path); err != nil {
		o.log.Warn(ctx, "debug report write failed", zap.Error(err))
	}
}

// buildStrategy renders the shared data/UI strategy every module designs
// against, derived from the accepted blueprint.
func buildStrategy(arch *blueprint.Architecture) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "APP TYPE: %s\nRUNTIME: %s %s\n", arch.AppType, arch.Runtime.Language, arch.Runtime.Version)
	if arch.IsWeb() && arch.Runtime.Port != 0 {
		fmt.Fprintf(&sb, "PORT: %d\n", arch.Runtime.Port)
	}
	if len(arch.MainFlow) > 0 {
		sb.WriteString("MAIN FLOW:\n")
		for _, step := range arch.MainFlow {
			sb.WriteString("- " + step + "\n")
		}
	}
	sb.WriteString("MODULES:\n")
	for _, m := range arch.Modules {
		fmt.Fprintf(&sb, "- %s (%s, %s): %s\n", m.Name, m.Filename, m.Type, m.Responsibility)
	}
	return sb.String()
}
