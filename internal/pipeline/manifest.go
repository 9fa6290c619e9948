package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/factoryd/internal/inspect"
)

// pythonStdlib covers the standard-library roots generated code actually
// reaches for; anything here never lands in the manifest.
var pythonStdlib = map[string]bool{
	"abc": true, "argparse": true, "asyncio": true, "base64": true,
	"collections": true, "configparser": true, "contextlib": true,
	"copy": true, "csv": true, "dataclasses": true, "datetime": true,
	"decimal": true, "enum": true, "functools": true, "hashlib": true,
	"heapq": true, "html": true, "http": true, "io": true,
	"itertools": true, "json": true, "logging": true, "math": true,
	"os": true, "pathlib": true, "pickle": true, "queue": true,
	"random": true, "re": true, "secrets": true, "shutil": true,
	"socket": true, "sqlite3": true, "string": true, "subprocess": true,
	"sys": true, "tempfile": true, "threading": true, "time": true,
	"typing": true, "unittest": true, "urllib": true, "uuid": true,
	"xml": true,
}

// WriteManifest scans the generated sources for third-party imports and
// writes requirements.txt in dir. Local modules and standard-library
// roots are excluded. Installation is the user's concern; the manifest
// just names what the project needs.
func WriteManifest(ctx context.Context, dir string, files []string) (string, error) {
	local := make(map[string]bool, len(files))
	for _, f := range files {
		local[strings.TrimSuffix(f, filepath.Ext(f))] = true
	}

	ins := inspect.New()
	external := make(map[string]bool)
	for _, f := range files {
		if filepath.Ext(f) != ".py" {
			continue
		}
		src, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			continue // a missing artifact is the development milestone's problem
		}
		st, err := ins.Inspect(ctx, src)
		if err != nil {
			continue
		}
		for _, imp := range st.Imports {
			root := strings.SplitN(imp.Module, ".", 2)[0]
			if root == "" || local[root] || pythonStdlib[root] {
				continue
			}
			external[root] = true
		}
	}

	deps := make([]string, 0, len(external))
	for d := range external {
		deps = append(deps, d)
	}
	sort.Strings(deps)

	path := filepath.Join(dir, "requirements.txt")
	content := strings.Join(deps, "\n")
	if content != "" {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return path, nil
}
