package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/factoryd/internal/blackboard"
	"github.com/fyrsmithlabs/factoryd/internal/blueprint"
	"github.com/fyrsmithlabs/factoryd/internal/llm"
	"github.com/fyrsmithlabs/factoryd/internal/logging"
)

// genFunc adapts a function to llm.Generator for scripted test flows.
type genFunc func(ctx context.Context, req llm.Request) (string, error)

func (f genFunc) Generate(ctx context.Context, req llm.Request) (string, error) {
	return f(ctx, req)
}

// criticFunc adapts a function to llm.Critic.
type criticFunc func(ctx context.Context, doc string) (llm.Verdict, error)

func (f criticFunc) Critique(ctx context.Context, doc string) (llm.Verdict, error) {
	return f(ctx, doc)
}

// analyzerFunc adapts a function to StaticAnalyzer.
type analyzerFunc func(code string) (*Report, error)

func (f analyzerFunc) Analyze(ctx context.Context, code string, _ blueprint.ModuleType) (*Report, error) {
	return f(code)
}

// cleanAnalyzer approves everything.
func cleanAnalyzer() StaticAnalyzer {
	return analyzerFunc(func(string) (*Report, error) {
		return &Report{Score: 100, Verdict: "CLEAN"}, nil
	})
}

const validBlueprintYAML = `app_type: web application
entrypoint:
  entry_file: main.py
  entry_callable: app
main_flow:
  - load config
  - start server
assembly:
  initialization_order:
    - storage.py
    - api.py
  dependency_graph:
    api.py:
      - storage.py
runtime:
  language: python
  version: "3.11"
  command: python main.py
  port: 5000
modules:
  - name: storage
    filename: storage.py
    type: data
    responsibility: persist records
    requires: []
  - name: api
    filename: api.py
    type: web_interface
    responsibility: serve http
    requires:
      - storage.py
metadata:
  version: 1.0.0
  last_updated_by: analyst
  change_log:
    - initial
`

// newTestBoard opens a blackboard in a temp project directory.
func newTestBoard(t *testing.T) *blackboard.Blackboard {
	t.Helper()
	dir := t.TempDir()
	board, err := blackboard.New("test idea", dir, filepath.Join(dir, ".factory"))
	require.NoError(t, err)
	return board
}

func testLogger() *logging.Logger {
	return logging.NewTestLogger().Logger
}
