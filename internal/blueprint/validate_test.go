package blueprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDoc() map[string]any {
	return map[string]any{
		"app_type": "web application",
		"entrypoint": map[string]any{
			"entry_file":     "main.py",
			"entry_callable": "app",
		},
		"main_flow": []any{"load config", "start server"},
		"assembly": map[string]any{
			"initialization_order": []any{"storage.py", "api.py"},
			"dependency_graph":     map[string]any{"api.py": []any{"storage.py"}},
		},
		"runtime": map[string]any{
			"language": "python",
			"version":  "3.11",
			"command":  "python main.py",
			"port":     5000,
		},
		"modules": []any{
			map[string]any{
				"name":           "storage",
				"filename":       "storage.py",
				"type":           "data",
				"responsibility": "persist records",
				"requires":       []any{},
			},
			map[string]any{
				"name":           "api",
				"filename":       "api.py",
				"type":           "web_interface",
				"responsibility": "serve http",
				"requires":       []any{"storage.py"},
			},
		},
		"metadata": map[string]any{
			"version":         "1.0.0",
			"last_updated_by": "analyst",
			"change_log":      []any{"initial"},
		},
	}
}

func TestValidateAcceptsCompleteDocument(t *testing.T) {
	require.NoError(t, Validate(validDoc()))
}

func TestValidateRejectsEachMissingSection(t *testing.T) {
	// Removing any single required section must fail the whole document,
	// naming the section.
	for _, section := range []string{"app_type", "modules", "main_flow", "assembly", "runtime", "metadata"} {
		t.Run(section, func(t *testing.T) {
			doc := validDoc()
			delete(doc, section)
			err := Validate(doc)
			require.Error(t, err)

			var schemaErr *SchemaError
			require.ErrorAs(t, err, &schemaErr)
			assert.True(t, schemaErr.MissingField(section), "expected %q in %v", section, schemaErr.Missing)
		})
	}
}

func TestValidateRejectsMissingAssemblySpecifically(t *testing.T) {
	doc := validDoc()
	delete(doc, "assembly")
	err := Validate(doc)

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Contains(t, schemaErr.Missing, "assembly")
}

func TestValidateRejectsMissingModuleFields(t *testing.T) {
	for _, field := range []string{"name", "filename", "type", "responsibility", "requires"} {
		t.Run(field, func(t *testing.T) {
			doc := validDoc()
			mod := doc["modules"].([]any)[0].(map[string]any)
			delete(mod, field)

			var schemaErr *SchemaError
			require.ErrorAs(t, Validate(doc), &schemaErr)
		})
	}
}

func TestValidateRejectsUnknownModuleType(t *testing.T) {
	doc := validDoc()
	doc["modules"].([]any)[0].(map[string]any)["type"] = "microservice"

	var schemaErr *SchemaError
	require.ErrorAs(t, Validate(doc), &schemaErr)
	assert.True(t, schemaErr.MissingField("modules.storage.type"))
}

func TestValidateRejectsNestedRuntimeAndMetadataFields(t *testing.T) {
	doc := validDoc()
	delete(doc["runtime"].(map[string]any), "command")
	delete(doc["metadata"].(map[string]any), "change_log")

	var schemaErr *SchemaError
	require.ErrorAs(t, Validate(doc), &schemaErr)
	assert.Contains(t, schemaErr.Missing, "runtime.command")
	assert.Contains(t, schemaErr.Missing, "metadata.change_log")
}

func TestValidatePortRequiredOnlyForWebApps(t *testing.T) {
	doc := validDoc()
	delete(doc["runtime"].(map[string]any), "port")

	var schemaErr *SchemaError
	require.ErrorAs(t, Validate(doc), &schemaErr)
	assert.Contains(t, schemaErr.Missing, "runtime.port")

	doc = validDoc()
	doc["app_type"] = "cli tool"
	delete(doc["runtime"].(map[string]any), "port")
	assert.NoError(t, Validate(doc))
}

func TestValidateAcceptsModuleDependenciesAlias(t *testing.T) {
	doc := validDoc()
	delete(doc["assembly"].(map[string]any), "dependency_graph")
	doc["module_dependencies"] = map[string]any{"api.py": []any{"storage.py"}}
	assert.NoError(t, Validate(doc))
}

func TestValidateNilDocument(t *testing.T) {
	assert.ErrorIs(t, Validate(nil), ErrNotMapping)
}

func TestParseDocumentRejectsMalformedYAML(t *testing.T) {
	_, err := ParseDocument("modules:\n  - name: [unclosed")
	require.Error(t, err)
}

func TestDecodeFillsEntrypointDefaults(t *testing.T) {
	doc := validDoc()
	delete(doc, "entrypoint")
	arch, err := Decode(doc)
	require.NoError(t, err)
	assert.Equal(t, "main.py", arch.Entrypoint.File)
	assert.Equal(t, "main", arch.Entrypoint.Callable)
}

func TestDecodeRejectsCircularRequires(t *testing.T) {
	doc := validDoc()
	mods := doc["modules"].([]any)
	mods[0].(map[string]any)["requires"] = []any{"api.py"}

	_, err := Decode(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular")
}

func TestCheckDAGIgnoresExternalRequires(t *testing.T) {
	modules := []Module{
		{Name: "a", Filename: "a.py", Requires: []string{"flask", "b.py"}},
		{Name: "b", Filename: "b.py", Requires: []string{"sqlite3"}},
	}
	assert.NoError(t, CheckDAG(modules))
}

func TestCheckDAGDetectsTransitiveCycle(t *testing.T) {
	modules := []Module{
		{Name: "a", Filename: "a.py", Requires: []string{"b.py"}},
		{Name: "b", Filename: "b.py", Requires: []string{"c.py"}},
		{Name: "c", Filename: "c.py", Requires: []string{"a.py"}},
	}
	assert.Error(t, CheckDAG(modules))
}
