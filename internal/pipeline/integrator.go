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
	"github.com/fyrsmithlabs/factoryd/internal/inspect"
	"github.com/fyrsmithlabs/factoryd/internal/llm"
	"github.com/fyrsmithlabs/factoryd/internal/logging"
)

// Integrator generates the entrypoint that wires the generated modules
// together, verifying its imports against the code actually on disk
// before accepting it.
type Integrator struct {
	gen      llm.Generator
	board    *blackboard.Blackboard
	log      *logging.Logger
	attempts int
}

// NewIntegrator wires an integrator.
func NewIntegrator(gen llm.Generator, board *blackboard.Blackboard, log *logging.Logger, attempts int) *Integrator {
	return &Integrator{gen: gen, board: board, log: log, attempts: attempts}
}

// Integrate writes the composition artifact at the declared entrypoint
// and returns its filename. Verification failures fold into the next
// attempt's context; exhaustion falls back to a simplified generation
// that is written without further checks.
func (it *Integrator) Integrate(ctx context.Context) (string, error) {
	ctx = logging.WithAgent(ctx, "integrator")
	arch := it.board.Architecture()
	if arch == nil {
		return "", fmt.Errorf("integrate: no architecture on the blackboard")
	}
	entry := arch.Entrypoint.File

	baseCtx := it.integratorContext(arch.Entrypoint.File, arch.Entrypoint.Callable)
	ins := inspect.New()
	feedback := ""

	for attempt := 1; attempt <= it.attempts; attempt++ {
		reqCtx := baseCtx
		if feedback != "" {
			reqCtx += "\n\nPREVIOUS ATTEMPT REJECTED:\n" + feedback
		}
		code, err := it.gen.Generate(ctx, llm.Request{
			Role:         "integrator",
			Instructions: llm.IntegratorInstructions,
			Context:      reqCtx,
			Shape:        llm.ShapeCode,
		})
		it.logAttempt(attempt, feedback, code, err)
		if err != nil {
			feedback = fmt.Sprintf("generation failed: %v", err)
			continue
		}

		if synErr := ins.CheckSyntax(ctx, []byte(code)); synErr != nil {
			// One shot at salvaging a trailing-prose tail before retrying.
			repaired := ins.StripTrailingProse(ctx, code)
			if repaired != code && ins.CheckSyntax(ctx, []byte(repaired)) == nil {
				code = repaired
			} else {
				feedback = fmt.Sprintf("syntax error: %v", synErr)
				it.log.Warn(ctx, "integrator output rejected by syntax check", zap.Int("attempt", attempt))
				continue
			}
		}

		if verr := it.verifyImports(ctx, ins, code); verr != nil {
			feedback = verr.Error()
			it.log.Warn(ctx, "integrator output rejected by import check",
				zap.Int("attempt", attempt), zap.String("detail", verr.Error()))
			continue
		}

		if err := it.writeEntrypoint(entry, code); err != nil {
			return "", err
		}
		it.log.Info(ctx, "integration verified", zap.Int("attempt", attempt))
		return entry, nil
	}

	// Fallback: a simplified prompt and no verification. A present but
	// imperfect entrypoint beats an absent one; the repair loop gets a
	// chance at whatever is wrong.
	it.log.Warn(ctx, "integration attempts exhausted, generating simplified entrypoint")
	code, err := it.gen.Generate(ctx, llm.Request{
		Role:         "integrator",
		Instructions: llm.IntegratorInstructions,
		Context: fmt.Sprintf("Write a minimal %s that imports these modules and calls %s: %s",
			entry, arch.Entrypoint.Callable, strings.Join(arch.ModuleFilenames(), ", ")),
		Shape: llm.ShapeCode,
	})
	it.logAttempt(it.attempts+1, "simplified fallback", code, err)
	if err != nil {
		return "", fmt.Errorf("integrate: fallback generation: %w", err)
	}
	if err := it.writeEntrypoint(entry, code); err != nil {
		return "", err
	}
	return entry, nil
}

// verifyImports checks the artifact against ground truth: every import of
// a generated file must request only symbols that file actually defines.
// The plan is not consulted; only the code on disk counts.
func (it *Integrator) verifyImports(ctx context.Context, ins *inspect.Inspector, code string) error {
	st, err := ins.Inspect(ctx, []byte(code))
	if err != nil {
		return fmt.Errorf("inspect entrypoint: %w", err)
	}

	generated := make(map[string]string) // import name -> filename
	for _, f := range it.board.FilesCreated() {
		generated[strings.TrimSuffix(f, filepath.Ext(f))] = f
	}

	var problems []string
	for _, imp := range st.Imports {
		root := strings.SplitN(imp.Module, ".", 2)[0]
		filename, ok := generated[root]
		if !ok {
			continue // external import, not ours to verify
		}
		src, err := os.ReadFile(filepath.Join(it.board.ProjectDir(), filename))
		if err != nil {
			problems = append(problems, fmt.Sprintf("imports %s but %s is unreadable: %v", imp.Module, filename, err))
			continue
		}
		target, err := ins.Inspect(ctx, src)
		if err != nil {
			problems = append(problems, fmt.Sprintf("imports %s but %s does not parse: %v", imp.Module, filename, err))
			continue
		}
		defined := target.DefinedSymbols()
		for _, sym := range imp.Symbols {
			if !defined[sym] {
				problems = append(problems,
					fmt.Sprintf("imports %s from %s, but %s defines: %s",
						sym, filename, filename, inspect.Summary(target)))
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("import verification failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

func (it *Integrator) integratorContext(entryFile, callable string) string {
	var sb strings.Builder
	sb.WriteString("PROJECT STATE:\n")
	sb.WriteString(it.board.Snapshot())
	sb.WriteString("\n\nMODULES BY TYPE:\n")
	for name, rec := range it.board.Modules() {
		fmt.Fprintf(&sb, "- %s (%s): %s\n", name, rec.Filename, rec.Type)
	}
	fmt.Fprintf(&sb, "\nWrite %s; it must expose/invoke %q per the runtime contract. Import ONLY symbols the modules actually define.\n",
		entryFile, callable)
	return sb.String()
}

func (it *Integrator) writeEntrypoint(entry, code string) error {
	if !strings.HasSuffix(code, "\n") {
		code += "\n"
	}
	path := filepath.Join(it.board.ProjectDir(), entry)
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return fmt.Errorf("write entrypoint: %w", err)
	}
	return it.board.RegisterFile(entry)
}

func (it *Integrator) logAttempt(attempt int, input, output string, err error) {
	a := blackboard.AgentAttempt{
		Agent:     "integrator",
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
	_ = it.board.Metrics().LogAttempt(a)
}
