package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/factoryd/internal/blackboard"
	"github.com/fyrsmithlabs/factoryd/internal/config"
	"github.com/fyrsmithlabs/factoryd/internal/llm"
	"github.com/fyrsmithlabs/factoryd/internal/milestone"
	"github.com/fyrsmithlabs/factoryd/internal/runner"
)

// scriptedGenerator routes generation requests by agent role, standing in
// for the model across a whole run.
func scriptedGenerator(t *testing.T, blueprintYAML string) genFunc {
	return func(_ context.Context, req llm.Request) (string, error) {
		switch req.Role {
		case "analyst":
			return blueprintYAML, nil
		case "architect":
			return "module_type: service\napi_spec:\n  entry: documented\n", nil
		case "test_writer":
			return "import sys\nsys.exit(0)\n", nil
		case "developer":
			if strings.Contains(req.Context, "FILE TO IMPLEMENT: storage.py") {
				return "def save_record(r):\n    return r\n", nil
			}
			return "def serve():\n    return 'ok'\n", nil
		case "integrator":
			return "from storage import save_record\nfrom api import serve\n\nserve()\n", nil
		case "debugger":
			return "FILE: storage.py\ndef save_record(r):\n    return r\n", nil
		}
		t.Fatalf("unexpected role %q", req.Role)
		return "", nil
	}
}

func approvingCritic() criticFunc {
	return func(_ context.Context, _ string) (llm.Verdict, error) {
		return llm.Verdict{Approved: true}, nil
	}
}

func testPipelineConfig() config.PipelineConfig {
	cfg := config.NewDefaultConfig().Pipeline
	cfg.TestCommand = "true"
	cfg.TestTimeout = 2 * time.Second
	cfg.ObserveWindow = 300 * time.Millisecond
	return cfg
}

type runEnv struct {
	board   *blackboard.Blackboard
	miles   *milestone.Manager
	metaDir string
}

func newRunEnv(t *testing.T) runEnv {
	t.Helper()
	dir := t.TempDir()
	metaDir := filepath.Join(dir, ".factory")
	board, err := blackboard.New("a web notes app", dir, metaDir)
	require.NoError(t, err)
	miles, err := milestone.NewManager(dir, "")
	require.NoError(t, err)
	return runEnv{board: board, miles: miles, metaDir: metaDir}
}

func newOrchestrator(t *testing.T, env runEnv, cfg config.PipelineConfig, gen llm.Generator, critic llm.Critic) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(Options{
		Config:     cfg,
		Generator:  gen,
		Critic:     critic,
		Analyzer:   cleanAnalyzer(),
		Frontend: frontendFunc(func(_ context.Context, _, _ string) (map[string]string, error) {
			return map[string]string{"index.html": "<html></html>\n"}, nil
		}),
		Board:       env.board,
		Milestones:  env.miles,
		Runner:      runner.New(),
		Logger:      testLogger(),
		MetadataDir: env.metaDir,
	})
	require.NoError(t, err)
	return o
}

// frontendFunc adapts a function to FrontendBuilder.
type frontendFunc func(ctx context.Context, idea, spec string) (map[string]string, error)

func (f frontendFunc) Build(ctx context.Context, idea, spec string) (map[string]string, error) {
	return f(ctx, idea, spec)
}

func TestRunHappyPath(t *testing.T) {
	env := newRunEnv(t)
	// "echo ok" as runtime command: launch observation sees a clean exit.
	bp := strings.Replace(validBlueprintYAML, "command: python main.py", "command: echo ok", 1)
	o := newOrchestrator(t, env, testPipelineConfig(), scriptedGenerator(t, bp), approvingCritic())

	result, err := o.Run(context.Background(), "a web notes app")
	require.NoError(t, err)
	require.False(t, result.Aborted)
	assert.Equal(t, AbortNone, result.Reason)
	assert.NotEmpty(t, result.RunID)
	assert.True(t, result.Runnable)
	assert.Equal(t, "main.py", result.Entrypoint)

	require.Len(t, result.Modules, 2)
	for _, m := range result.Modules {
		assert.NoError(t, m.Err)
		assert.True(t, m.TestsPassed, "module %s", m.Name)
	}

	// Artifacts on disk.
	for _, f := range []string{"storage.py", "api.py", "main.py", "index.html", "requirements.txt"} {
		_, err := os.Stat(filepath.Join(env.board.ProjectDir(), f))
		assert.NoError(t, err, f)
	}
	_, err = os.Stat(filepath.Join(env.metaDir, "report.md"))
	assert.NoError(t, err)

	// All five milestones recorded, in order.
	var stages []string
	for _, rec := range env.miles.History() {
		stages = append(stages, rec.Stage)
	}
	assert.Equal(t, []string{
		milestone.StageArchitecture,
		milestone.StageEnvironment,
		milestone.StageDevelopment,
		milestone.StageFrontend,
		milestone.StageIntegration,
	}, stages)

	assert.Contains(t, env.board.Snapshot(), blackboard.StatusComplete)
	assert.NoError(t, env.board.VerifyIntegrity(true))
}

func TestRunAbortsOnPlanningExhaustion(t *testing.T) {
	env := newRunEnv(t)
	cfg := testPipelineConfig()
	cfg.PlanningRounds = 2

	rejecting := criticFunc(func(_ context.Context, _ string) (llm.Verdict, error) {
		return llm.Verdict{Issues: []string{"never good enough"}}, nil
	})
	o := newOrchestrator(t, env, cfg, scriptedGenerator(t, validBlueprintYAML), rejecting)

	result, err := o.Run(context.Background(), "idea")
	require.NoError(t, err, "an abort is a result, not an error")
	assert.True(t, result.Aborted)
	assert.Equal(t, AbortPlanningExhausted, result.Reason)

	// Nothing downstream ran.
	assert.Empty(t, result.Modules)
	assert.Empty(t, env.miles.History())
	assert.Contains(t, env.board.Snapshot(), blackboard.StatusAborted)

	// State survives the abort.
	_, err = os.Stat(filepath.Join(env.metaDir, "blackboard.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(env.metaDir, "report.md"))
	assert.NoError(t, err)
}

func TestRunAbortsOnIntegrationFailure(t *testing.T) {
	env := newRunEnv(t)
	base := scriptedGenerator(t, validBlueprintYAML)
	gen := genFunc(func(ctx context.Context, req llm.Request) (string, error) {
		if req.Role == "integrator" {
			return "", llm.ErrEmptyOutput
		}
		return base(ctx, req)
	})
	o := newOrchestrator(t, env, testPipelineConfig(), gen, approvingCritic())

	result, err := o.Run(context.Background(), "idea")
	require.NoError(t, err)
	assert.True(t, result.Aborted)
	assert.Equal(t, AbortIntegrationFailure, result.Reason)

	// Modules were still produced; the integration milestone is the gate.
	assert.Len(t, result.Modules, 2)
	var last milestone.Record
	history := env.miles.History()
	require.NotEmpty(t, history)
	last = history[len(history)-1]
	assert.Equal(t, milestone.StageIntegration, last.Stage)
	assert.Equal(t, milestone.StatusFailed, last.Status)
}

func TestRunStrictPolicyFailsOnModuleFailure(t *testing.T) {
	env := newRunEnv(t)
	cfg := testPipelineConfig()
	cfg.Strict = true
	cfg.TestCommand = "false" // every module test run fails

	o := newOrchestrator(t, env, cfg, scriptedGenerator(t, validBlueprintYAML), approvingCritic())
	_, err := o.Run(context.Background(), "idea")
	require.Error(t, err)
	assert.ErrorContains(t, err, "strict policy")
}

func TestRunBestEffortKeepsFailingModules(t *testing.T) {
	env := newRunEnv(t)
	cfg := testPipelineConfig()
	cfg.TestCommand = "false"
	cfg.SkipRepair = true

	o := newOrchestrator(t, env, cfg, scriptedGenerator(t, validBlueprintYAML), approvingCritic())
	result, err := o.Run(context.Background(), "idea")
	require.NoError(t, err)
	assert.False(t, result.Aborted)
	require.Len(t, result.Modules, 2)
	for _, m := range result.Modules {
		assert.False(t, m.TestsPassed)
		assert.NoError(t, m.Err, "best effort: failing tests degrade, not fail")
	}

	// Development milestone degraded to warning, not failed.
	for _, rec := range env.miles.History() {
		if rec.Stage == milestone.StageDevelopment {
			assert.Equal(t, milestone.StatusWarning, rec.Status)
		}
	}
}

func TestRunDesignFailureExcludesOnlyThatModule(t *testing.T) {
	env := newRunEnv(t)
	base := scriptedGenerator(t, validBlueprintYAML)
	gen := genFunc(func(ctx context.Context, req llm.Request) (string, error) {
		if req.Role == "architect" && strings.Contains(req.Context, "MODULE: api") {
			return "", llm.ErrEmptyOutput
		}
		return base(ctx, req)
	})
	cfg := testPipelineConfig()
	cfg.SkipRepair = true

	o := newOrchestrator(t, env, cfg, gen, approvingCritic())
	result, err := o.Run(context.Background(), "idea")
	require.NoError(t, err)
	assert.False(t, result.Aborted)

	require.Len(t, result.Modules, 2)
	byName := make(map[string]ModuleOutcome)
	for _, m := range result.Modules {
		byName[m.Name] = m
	}
	assert.Error(t, byName["api"].Err)
	assert.NoError(t, byName["storage"].Err)
	assert.True(t, byName["storage"].TestsPassed)
}
