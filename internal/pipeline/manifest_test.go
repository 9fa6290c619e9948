package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteManifestCollectsExternalImports(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
	}
	write("storage.py", "import sqlite3\nimport json\n\ndef save(r):\n    return r\n")
	write("api.py", "from flask import Flask\nimport requests\nfrom storage import save\n\napp = Flask(__name__)\n")
	write("main.py", "import api\nimport storage\n")

	path, err := WriteManifest(context.Background(), dir, []string{"storage.py", "api.py", "main.py"})
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	// Third-party only: stdlib and local modules excluded, sorted.
	assert.Equal(t, "flask\nrequests\n", string(content))
}

func TestWriteManifestEmptyWhenNothingExternal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "util.py"), []byte("import os\n"), 0o644))

	path, err := WriteManifest(context.Background(), dir, []string{"util.py"})
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, string(content))
}

func TestWriteManifestSkipsUnreadableAndNonPython(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "api.py"), []byte("import requests\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>"), 0o644))

	path, err := WriteManifest(context.Background(), dir, []string{"api.py", "index.html", "ghost.py"})
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "requests\n", string(content))
}

func TestWriteManifestDottedImportsUseRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "api.py"),
		[]byte("import sqlalchemy.orm\nfrom flask.views import MethodView\n"), 0o644))

	path, err := WriteManifest(context.Background(), dir, []string{"api.py"})
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "flask\nsqlalchemy\n", string(content))
}
