package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/factoryd/internal/blackboard"
	"github.com/fyrsmithlabs/factoryd/internal/llm"
	"github.com/fyrsmithlabs/factoryd/internal/logging"
	"github.com/fyrsmithlabs/factoryd/internal/runner"
)

var (
	// tracebackFileRe matches the interpreter's own frame references.
	tracebackFileRe = regexp.MustCompile(`File "([^"]+\.py)"`)
	// fileHeaderRe matches explicit FILE: headers in diagnostics and fixes.
	fileHeaderRe = regexp.MustCompile(`(?m)^\s*FILE:\s*(\S+)`)
)

// Repairer drives the runtime repair loop: launch, observe, and when the
// program crashes, request a fix targeted at the single file the
// diagnostic names.
type Repairer struct {
	gen   llm.Generator
	run   *runner.Runner
	board *blackboard.Blackboard
	log   *logging.Logger

	attempts    int
	window      time.Duration
	metadataDir string
}

// NewRepairer wires the repair loop. metadataDir is absolute.
func NewRepairer(gen llm.Generator, run *runner.Runner, board *blackboard.Blackboard, log *logging.Logger, attempts int, window time.Duration, metadataDir string) *Repairer {
	return &Repairer{
		gen:         gen,
		run:         run,
		board:       board,
		log:         log,
		attempts:    attempts,
		window:      window,
		metadataDir: metadataDir,
	}
}

// Repair launches the assembled program up to the attempt budget. It
// returns true when a launch survives the observation window or exits
// cleanly. Budget exhaustion is not an error: runnability is advisory.
func (r *Repairer) Repair(ctx context.Context) (bool, []RepairAttempt) {
	ctx = logging.WithAgent(ctx, "debugger")
	arch := r.board.Architecture()
	if arch == nil || arch.Runtime.Command == "" {
		r.log.Warn(ctx, "no runtime command declared, skipping repair")
		return false, nil
	}

	var history []RepairAttempt
	for attempt := 1; attempt <= r.attempts; attempt++ {
		obs := r.run.Observe(ctx, r.board.ProjectDir(), arch.Runtime.Command, r.window)
		rec := RepairAttempt{Index: attempt, Outcome: obs.Outcome, Diagnostic: obs.Output}

		switch obs.Outcome {
		case runner.OutcomeLongRunning:
			r.log.Info(ctx, "program alive past observation window", zap.Int("attempt", attempt))
			history = append(history, rec)
			return true, history
		case runner.OutcomeCleanExit:
			r.log.Info(ctx, "program exited cleanly", zap.Int("attempt", attempt))
			history = append(history, rec)
			return true, history
		}

		target := extractCrashFile(obs.Output, r.board.FilesCreated())
		rec.AffectedFile = target
		history = append(history, rec)
		if target == "" {
			r.log.Warn(ctx, "crash diagnostic names no project file", zap.Int("attempt", attempt))
			continue
		}
		r.log.Warn(ctx, "program crashed",
			zap.Int("attempt", attempt),
			zap.String("file", target))

		if err := r.fixFile(ctx, attempt, target, obs.Output); err != nil {
			r.log.Warn(ctx, "repair attempt produced no applicable fix",
				zap.Int("attempt", attempt), zap.Error(err))
		}
	}
	return false, history
}

// fixFile snapshots the current content, asks for a corrected version of
// exactly that file, and applies the fix only when the response names a
// file. A response without a FILE header is discarded, never guessed
// onto a target.
func (r *Repairer) fixFile(ctx context.Context, attempt int, target, diagnostic string) error {
	path := filepath.Join(r.board.ProjectDir(), target)
	current, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", target, err)
	}

	snapDir := filepath.Join(r.metadataDir, "repair", fmt.Sprintf("attempt_%d", attempt))
	if err := os.MkdirAll(snapDir, 0o755); err != nil {
		return fmt.Errorf("snapshot dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(snapDir, target), current, 0o644); err != nil {
		return fmt.Errorf("snapshot %s: %w", target, err)
	}

	resp, err := r.gen.Generate(ctx, llm.Request{
		Role:         "debugger",
		Instructions: llm.DebuggerInstructions,
		Context: fmt.Sprintf("ERROR TRACE:\n%s\n\nFAULTY FILE %s:\n%s\n\nReply with FILE: %s and the full corrected content.",
			diagnostic, target, string(current), target),
		Shape: llm.ShapeText,
	})
	r.logAttempt(attempt, target, diagnostic, resp, err)
	if err != nil {
		return fmt.Errorf("fix generation: %w", err)
	}

	named, content, ok := parseFix(resp)
	if !ok {
		return fmt.Errorf("fix response names no file")
	}
	if named != target {
		// The model is only ever asked about one file; a different name
		// means it wandered. Apply to the file it named only if that file
		// was the requested target.
		return fmt.Errorf("fix response names %s, expected %s", named, target)
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("fix response has no content")
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("apply fix to %s: %w", target, err)
	}
	return nil
}

// extractCrashFile pulls the offending project file out of a diagnostic.
// Interpreter frames win over explicit headers; the last project frame in
// a traceback is the closest to the fault.
func extractCrashFile(diagnostic string, projectFiles []string) string {
	known := make(map[string]bool, len(projectFiles))
	for _, f := range projectFiles {
		known[f] = true
	}

	var last string
	for _, m := range tracebackFileRe.FindAllStringSubmatch(diagnostic, -1) {
		base := filepath.Base(m[1])
		if known[base] {
			last = base
		}
	}
	if last != "" {
		return last
	}
	for _, m := range fileHeaderRe.FindAllStringSubmatch(diagnostic, -1) {
		base := filepath.Base(m[1])
		if known[base] {
			return base
		}
	}
	return ""
}

// parseFix splits a debugger response into the named file and its
// corrected content.
func parseFix(resp string) (string, string, bool) {
	loc := fileHeaderRe.FindStringSubmatchIndex(resp)
	if loc == nil {
		return "", "", false
	}
	name := resp[loc[2]:loc[3]]
	rest := resp[loc[1]:]
	rest = strings.TrimLeft(rest, "\r\n")
	return filepath.Base(name), llm.Clean(rest, llm.ShapeCode), true
}

func (r *Repairer) logAttempt(attempt int, target, input, output string, err error) {
	a := blackboard.AgentAttempt{
		Agent:     "debugger",
		Module:    target,
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
	_ = r.board.Metrics().LogAttempt(a)
}
