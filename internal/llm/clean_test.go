package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopkg.in/yaml.v3"
)

func TestCleanExtractsFencedCode(t *testing.T) {
	raw := "Here is the implementation you asked for:\n```python\nimport os\n\ndef main():\n    pass\n```\nLet me know if it helps!"
	out := Clean(raw, ShapeCode)
	assert.Equal(t, "import os\n\ndef main():\n    pass", out)
}

func TestCleanJoinsMultipleFences(t *testing.T) {
	raw := "```python\na = 1\n```\nand then\n```python\nb = 2\n```"
	out := Clean(raw, ShapeCode)
	assert.Contains(t, out, "a = 1")
	assert.Contains(t, out, "b = 2")
	assert.NotContains(t, out, "and then")
}

func TestCleanDropsConversationalLines(t *testing.T) {
	raw := "Sure thing!\nimport json\n# here is a comment that stays\nNote: remember to install deps\nx = 1"
	out := Clean(raw, ShapeCode)
	assert.NotContains(t, out, "Sure thing")
	assert.NotContains(t, out, "Note:")
	assert.Contains(t, out, "# here is a comment that stays")
	assert.Contains(t, out, "x = 1")
}

func TestCleanDocumentAnchorsAtRootKey(t *testing.T) {
	raw := "I designed the following architecture.\n\napp_type: web application\nmodules:\n  - name: api\n"
	out := Clean(raw, ShapeDoc)
	assert.True(t, len(out) > 0)
	assert.Equal(t, 0, indexOf(out, "app_type:"))
}

func TestCleanDocumentStripsSQLAndSeparators(t *testing.T) {
	raw := "app_type: web\n---\nCREATE TABLE users (id INT);\nmodules:\n  - name: db\n"
	out := Clean(raw, ShapeDoc)
	assert.NotContains(t, out, "CREATE TABLE")
	assert.NotContains(t, out, "---")
}

func TestCleanDocumentQuotesColonValues(t *testing.T) {
	raw := "app_type: web\nresponsibility: handles auth: tokens and sessions\n"
	out := Clean(raw, ShapeDoc)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "handles auth: tokens and sessions", doc["responsibility"])
}

func TestCleanDocumentDropsOrphanedProse(t *testing.T) {
	raw := "app_type: web\nthis line explains the design in plain words\nmodules:\n  - name: api\n"
	out := Clean(raw, ShapeDoc)
	assert.NotContains(t, out, "plain words")

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
}

func TestCleanDocumentKeepsBlockScalarContinuation(t *testing.T) {
	raw := "app_type: web\ndescription: |\n  free text body\nmodules:\n  - name: api\n"
	out := Clean(raw, ShapeDoc)
	assert.Contains(t, out, "free text body")
}

func TestCleanFreeTextVerbatim(t *testing.T) {
	raw := "  VERDICT: PASSED\nall good  "
	assert.Equal(t, "VERDICT: PASSED\nall good", Clean(raw, ShapeText))
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
