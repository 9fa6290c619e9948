// Package pipeline drives a factory run end to end: planning, module
// design and implementation fan-out, integration, and runtime repair.
package pipeline

import (
	"context"

	"github.com/fyrsmithlabs/factoryd/internal/blueprint"
	"github.com/fyrsmithlabs/factoryd/internal/runner"
)

// AbortReason identifies the gate a run stopped at. Only three gates
// abort a run; everything else degrades to warnings.
type AbortReason string

const (
	AbortNone               AbortReason = ""
	AbortPlanningExhausted  AbortReason = "planning_exhausted"
	AbortSchemaValidation   AbortReason = "schema_validation"
	AbortIntegrationFailure AbortReason = "integration_failure"
)

// RunResult is the outcome of one orchestrated run. An aborted run still
// leaves the blackboard, metrics, and milestone history on disk.
type RunResult struct {
	RunID      string
	ProjectDir string
	Aborted    bool
	Reason     AbortReason
	Modules    []ModuleOutcome
	Entrypoint string
	// Runnable reports whether the assembled program survived launch
	// observation. Advisory: a non-runnable project still completes.
	Runnable bool
	Repairs  []RepairAttempt
}

// ModuleOutcome summarizes one module's trip through the pipeline.
type ModuleOutcome struct {
	Name        string
	Filename    string
	TestsPassed bool
	Err         error
}

// RepairAttempt records one turn of the auto-repair loop. Not persisted
// beyond the file snapshots it leaves behind.
type RepairAttempt struct {
	Index        int
	Outcome      runner.Outcome
	AffectedFile string
	Diagnostic   string
}

// Report is a static-analysis result for one module.
type Report struct {
	Score   int
	Issues  []string
	Verdict string
}

// Clean reports whether the analysis found nothing to fix.
func (r *Report) Clean() bool {
	return len(r.Issues) == 0
}

// StaticAnalyzer audits finished module code exactly once.
type StaticAnalyzer interface {
	Analyze(ctx context.Context, code string, moduleType blueprint.ModuleType) (*Report, error)
}

// FrontendBuilder produces UI assets for web applications. The returned
// map is filename to content; extraction heuristics live behind it.
type FrontendBuilder interface {
	Build(ctx context.Context, idea, spec string) (map[string]string, error)
}
