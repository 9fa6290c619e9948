package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/factoryd/internal/blackboard"
	"github.com/fyrsmithlabs/factoryd/internal/blueprint"
	"github.com/fyrsmithlabs/factoryd/internal/llm"
)

// integrationBoard sets up a board with an accepted architecture and a
// generated storage.py defining save_record.
func integrationBoard(t *testing.T) *blackboard.Blackboard {
	t.Helper()
	board := newTestBoard(t)

	doc, err := blueprint.ParseDocument(validBlueprintYAML)
	require.NoError(t, err)
	require.NoError(t, board.SetArchitecture(doc))

	src := "def save_record(r):\n    return r\n"
	require.NoError(t, os.WriteFile(filepath.Join(board.ProjectDir(), "storage.py"), []byte(src), 0o644))
	require.NoError(t, board.RegisterCode("storage", "storage.py"))

	api := "def serve():\n    return 'ok'\n"
	require.NoError(t, os.WriteFile(filepath.Join(board.ProjectDir(), "api.py"), []byte(api), 0o644))
	require.NoError(t, board.RegisterCode("api", "api.py"))
	return board
}

func TestIntegrateAcceptsVerifiedEntrypoint(t *testing.T) {
	board := integrationBoard(t)
	gen := genFunc(func(_ context.Context, req llm.Request) (string, error) {
		assert.Equal(t, "integrator", req.Role)
		assert.Contains(t, req.Context, "MODULES BY TYPE")
		return "from storage import save_record\nfrom api import serve\n\nserve()\n", nil
	})

	it := NewIntegrator(gen, board, testLogger(), 3)
	entry, err := it.Integrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "main.py", entry)

	code, err := os.ReadFile(filepath.Join(board.ProjectDir(), "main.py"))
	require.NoError(t, err)
	assert.Contains(t, string(code), "from storage import save_record")
	assert.Contains(t, board.FilesCreated(), "main.py")
}

func TestIntegrateRejectsHallucinatedSymbol(t *testing.T) {
	board := integrationBoard(t)
	calls := 0
	gen := genFunc(func(_ context.Context, req llm.Request) (string, error) {
		calls++
		if calls == 1 {
			// delete_everything is not defined in storage.py.
			return "from storage import delete_everything\ndelete_everything()\n", nil
		}
		// The retry context must carry the ground-truth complaint.
		assert.Contains(t, req.Context, "delete_everything")
		return "from storage import save_record\nsave_record({})\n", nil
	})

	it := NewIntegrator(gen, board, testLogger(), 3)
	entry, err := it.Integrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "main.py", entry)
	assert.Equal(t, 2, calls)
}

func TestIntegrateStripsTrailingProse(t *testing.T) {
	board := integrationBoard(t)
	calls := 0
	gen := genFunc(func(_ context.Context, _ llm.Request) (string, error) {
		calls++
		return "from storage import save_record\nsave_record({})\n\nThis entrypoint wires everything together nicely.\n", nil
	})

	it := NewIntegrator(gen, board, testLogger(), 3)
	entry, err := it.Integrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "tail strip salvages the first attempt")

	code, err := os.ReadFile(filepath.Join(board.ProjectDir(), entry))
	require.NoError(t, err)
	assert.NotContains(t, string(code), "wires everything")
}

func TestIntegrateFallsBackAfterExhaustion(t *testing.T) {
	board := integrationBoard(t)
	calls := 0
	gen := genFunc(func(_ context.Context, req llm.Request) (string, error) {
		calls++
		if calls <= 3 {
			return "from storage import missing_symbol\n", nil
		}
		// Simplified fallback: accepted without verification.
		assert.Contains(t, req.Context, "minimal")
		return "import storage\nprint('up')\n", nil
	})

	it := NewIntegrator(gen, board, testLogger(), 3)
	entry, err := it.Integrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "main.py", entry)
	assert.Equal(t, 4, calls)
}

func TestIntegrateExternalImportsAreNotVerified(t *testing.T) {
	board := integrationBoard(t)
	gen := genFunc(func(_ context.Context, _ llm.Request) (string, error) {
		return "import os\nfrom flask import Flask\nfrom storage import save_record\n\napp = Flask(__name__)\n", nil
	})

	it := NewIntegrator(gen, board, testLogger(), 3)
	_, err := it.Integrate(context.Background())
	require.NoError(t, err, "only generated files are held to ground truth")
}

func TestIntegrateWithoutArchitectureFails(t *testing.T) {
	board := newTestBoard(t)
	it := NewIntegrator(genFunc(func(_ context.Context, _ llm.Request) (string, error) {
		return "", nil
	}), board, testLogger(), 3)
	_, err := it.Integrate(context.Background())
	require.Error(t, err)
}
