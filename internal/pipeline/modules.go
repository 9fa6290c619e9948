package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/factoryd/internal/blackboard"
	"github.com/fyrsmithlabs/factoryd/internal/blueprint"
	"github.com/fyrsmithlabs/factoryd/internal/inspect"
	"github.com/fyrsmithlabs/factoryd/internal/llm"
	"github.com/fyrsmithlabs/factoryd/internal/logging"
	"github.com/fyrsmithlabs/factoryd/internal/runner"
)

// ModulePipeline carries one module from metadata to tested code. Design
// and implementation run as separate phases so every spec exists before
// any implementation starts.
type ModulePipeline struct {
	gen      llm.Generator
	analyzer StaticAnalyzer
	run      *runner.Runner
	board    *blackboard.Blackboard
	log      *logging.Logger

	attempts    int
	testCommand string
	testTimeout time.Duration
	strict      bool
}

// NewModulePipeline wires the per-module stages.
func NewModulePipeline(gen llm.Generator, analyzer StaticAnalyzer, run *runner.Runner, board *blackboard.Blackboard, log *logging.Logger, attempts int, testCommand string, testTimeout time.Duration, strict bool) *ModulePipeline {
	return &ModulePipeline{
		gen:         gen,
		analyzer:    analyzer,
		run:         run,
		board:       board,
		log:         log,
		attempts:    attempts,
		testCommand: testCommand,
		testTimeout: testTimeout,
		strict:      strict,
	}
}

// Design produces the module specification and registers it on the
// blackboard. FilesCreated is untouched: a spec is not an artifact.
func (mp *ModulePipeline) Design(ctx context.Context, mod blueprint.Module, strategy string) error {
	ctx = logging.WithModule(ctx, mod.Name)
	ctx = logging.WithAgent(ctx, "architect")

	var sb strings.Builder
	fmt.Fprintf(&sb, "MODULE: %s\nFILE: %s\nTYPE: %s\nRESPONSIBILITY: %s\n",
		mod.Name, mod.Filename, mod.Type, mod.Responsibility)
	if len(mod.Requires) > 0 {
		fmt.Fprintf(&sb, "DEPENDS ON: %s\n", strings.Join(mod.Requires, ", "))
	}
	sb.WriteString("\nSHARED STRATEGY:\n" + strategy)

	spec, err := mp.gen.Generate(ctx, llm.Request{
		Role:         "architect",
		Instructions: llm.ArchitectInstructions,
		Context:      sb.String(),
		Shape:        llm.ShapeDoc,
	})
	mp.logAttempt(ctx, "architect", mod.Name, 1, sb.String(), spec, err)
	if err != nil {
		return fmt.Errorf("design %s: %w", mod.Name, err)
	}

	if err := mp.board.RegisterSpec(mod.Name, mod.Filename, spec, mod.Type); err != nil {
		return fmt.Errorf("design %s: %w", mod.Name, err)
	}
	_ = mp.board.RegisterAPI(mod.Name, spec)
	mp.log.Info(ctx, "module designed")
	return nil
}

// Implement runs the test-first loop for one module: write the tests,
// then regenerate the implementation until the tests pass or the attempt
// budget runs out. The final candidate gets exactly one static-analysis
// pass; findings trigger one unconditional corrective regeneration.
func (mp *ModulePipeline) Implement(ctx context.Context, mod blueprint.Module) (ModuleOutcome, error) {
	ctx = logging.WithModule(ctx, mod.Name)
	out := ModuleOutcome{Name: mod.Name, Filename: mod.Filename}

	rec, ok := mp.board.Module(mod.Name)
	if !ok || rec.Spec == "" {
		out.Err = fmt.Errorf("module %s has no registered spec", mod.Name)
		return out, out.Err
	}

	testFile, testSrc, err := mp.writeTests(ctx, mod, rec.Spec)
	if err != nil {
		out.Err = err
		return out, err
	}

	code, passed := mp.implementLoop(ctx, mod, rec.Spec, testFile, testSrc)
	out.TestsPassed = passed
	if code == "" {
		out.Err = fmt.Errorf("module %s produced no implementation", mod.Name)
		return out, out.Err
	}

	code = mp.audit(ctx, mod, code)

	if err := mp.writeModuleFile(mod.Filename, code); err != nil {
		out.Err = err
		return out, err
	}
	if err := mp.board.RegisterCode(mod.Name, mod.Filename); err != nil {
		out.Err = err
		return out, err
	}

	if !passed {
		if mp.strict {
			out.Err = fmt.Errorf("module %s: tests still failing after %d attempts", mod.Name, mp.attempts)
			return out, out.Err
		}
		mp.log.Warn(ctx, "module kept with failing tests", zap.Int("attempts", mp.attempts))
	}
	return out, nil
}

func (mp *ModulePipeline) writeTests(ctx context.Context, mod blueprint.Module, spec string) (string, string, error) {
	ctx = logging.WithAgent(ctx, "test_writer")
	testSrc, err := mp.gen.Generate(ctx, llm.Request{
		Role:         "test_writer",
		Instructions: llm.TestWriterInstructions,
		Context:      fmt.Sprintf("MODULE FILE: %s\n\nSPECIFICATION:\n%s", mod.Filename, spec),
		Shape:        llm.ShapeCode,
	})
	mp.logAttempt(ctx, "test_writer", mod.Name, 1, spec, testSrc, err)
	if err != nil {
		return "", "", fmt.Errorf("tests for %s: %w", mod.Name, err)
	}

	testFile := "test_" + mod.Filename
	if err := mp.writeModuleFile(testFile, testSrc); err != nil {
		return "", "", err
	}
	return testFile, testSrc, nil
}

// implementLoop returns the last candidate and whether the tests passed.
func (mp *ModulePipeline) implementLoop(ctx context.Context, mod blueprint.Module, spec, testFile, testSrc string) (string, bool) {
	ctx = logging.WithAgent(ctx, "developer")
	ins := inspect.New()

	baseCtx := mp.developerContext(mod, spec, testSrc)
	feedback := ""
	var lastCode string

	for attempt := 1; attempt <= mp.attempts; attempt++ {
		reqCtx := baseCtx
		if feedback != "" {
			reqCtx += "\n\nPREVIOUS ATTEMPT FAILED:\n" + feedback
		}

		code, err := mp.gen.Generate(ctx, llm.Request{
			Role:         "developer",
			Instructions: llm.DeveloperInstructions,
			Context:      reqCtx,
			Shape:        llm.ShapeCode,
		})
		mp.logAttempt(ctx, "developer", mod.Name, attempt, feedback, code, err)
		if err != nil {
			feedback = fmt.Sprintf("generation failed: %v", err)
			continue
		}
		lastCode = code

		if err := ins.CheckSyntax(ctx, []byte(code)); err != nil {
			feedback = fmt.Sprintf("syntax check failed: %v", err)
			mp.log.Warn(ctx, "candidate rejected by syntax check", zap.Int("attempt", attempt))
			continue
		}

		if err := mp.writeModuleFile(mod.Filename, code); err != nil {
			feedback = err.Error()
			continue
		}
		res := mp.run.RunTests(ctx, mp.board.ProjectDir(), mp.testCommand+" "+testFile, mp.testTimeout)
		if res.Passed {
			mp.log.Info(ctx, "module tests passed", zap.Int("attempt", attempt))
			return code, true
		}
		if res.TimedOut {
			feedback = "tests timed out"
		} else {
			feedback = "tests failed:\n" + res.Output
		}
		mp.log.Warn(ctx, "module tests failed", zap.Int("attempt", attempt))
	}
	return lastCode, false
}

// audit runs the single static-analysis pass and, when flagged, the single
// corrective regeneration. There is no re-audit of the corrected code.
func (mp *ModulePipeline) audit(ctx context.Context, mod blueprint.Module, code string) string {
	ctx = logging.WithAgent(ctx, "security_auditor")
	report, err := mp.analyzer.Analyze(ctx, code, mod.Type)
	if err != nil {
		mp.log.Warn(ctx, "static analysis unavailable", zap.Error(err))
		_ = mp.board.Metrics().LogQuality(mod.Name, 0, 0, 0)
		return code
	}
	if report.Clean() {
		_ = mp.board.Metrics().LogQuality(mod.Name, report.Score, 0, 0)
		return code
	}

	mp.log.Warn(ctx, "static analysis flagged module",
		zap.Int("score", report.Score),
		zap.Int("issues", len(report.Issues)))

	fixed, err := mp.gen.Generate(ctx, llm.Request{
		Role:         "developer",
		Instructions: llm.DeveloperInstructions,
		Context: fmt.Sprintf("FILE: %s\n\nCURRENT CODE:\n%s\n\nSECURITY FINDINGS (fix all, change nothing else):\n- %s",
			mod.Filename, code, strings.Join(report.Issues, "\n- ")),
		Shape: llm.ShapeCode,
	})
	mp.logAttempt(ctx, "security_fix", mod.Name, 1, strings.Join(report.Issues, "; "), fixed, err)
	if err != nil {
		_ = mp.board.Metrics().LogQuality(mod.Name, report.Score, len(report.Issues), 0)
		return code
	}
	if ins := inspect.New(); ins.CheckSyntax(ctx, []byte(fixed)) != nil {
		// A broken fix is worse than a flagged module.
		_ = mp.board.Metrics().LogQuality(mod.Name, report.Score, len(report.Issues), 0)
		return code
	}
	_ = mp.board.Metrics().LogQuality(mod.Name, report.Score, len(report.Issues), 1)
	return fixed
}

func (mp *ModulePipeline) developerContext(mod blueprint.Module, spec, testSrc string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "FILE TO IMPLEMENT: %s\n\nSPECIFICATION:\n%s\n", mod.Filename, spec)
	for _, dep := range mod.Requires {
		// Requirements name files; the registry is keyed by module name.
		name, depRec, ok := mp.board.ModuleByFilename(dep)
		if !ok {
			if rec, byName := mp.board.Module(dep); byName {
				name, depRec, ok = dep, rec, true
			}
		}
		if ok && depRec.Spec != "" {
			fmt.Fprintf(&sb, "\nDEPENDENCY %s (%s) SPECIFICATION:\n%s\n", name, depRec.Filename, depRec.Spec)
		}
	}
	sb.WriteString("\nTESTS THAT MUST PASS:\n" + testSrc + "\n")
	sb.WriteString("\nSTANDARDS: no invented dependencies, no placeholder bodies, module must import cleanly.\n")
	return sb.String()
}

func (mp *ModulePipeline) writeModuleFile(filename, content string) error {
	path := filepath.Join(mp.board.ProjectDir(), filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}
	return nil
}

func (mp *ModulePipeline) logAttempt(ctx context.Context, agent, module string, attempt int, input, output string, err error) {
	a := blackboard.AgentAttempt{
		Agent:     agent,
		Module:    module,
		Attempt:   attempt,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Input:     input,
		Output:    output,
		Status:    blackboard.AttemptSuccess,
	}
	if err != nil {
		a.Status = blackboard.AttemptFailure
		a.Error = err.Error()
	}
	if logErr := mp.board.Metrics().LogAttempt(a); logErr != nil {
		mp.log.Warn(ctx, "attempt log write failed", zap.Error(logErr))
	}
}
