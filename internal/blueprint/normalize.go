package blueprint

import (
	"regexp"
	"strings"
)

var (
	unicodeSpace = regexp.MustCompile(`[\s\x{00A0}\x{200B}]+`)
	nonWord      = regexp.MustCompile(`[^\w\-]`)
)

// NormalizeFilename standardizes a module filename so variations produced by
// the model (non-breaking spaces, mixed case, stray punctuation) all key the
// same record. The extension is preserved; everything else collapses to
// lower-case word characters joined by underscores.
func NormalizeFilename(name string) string {
	clean := unicodeSpace.ReplaceAllString(name, " ")
	clean = strings.ToLower(strings.TrimSpace(clean))

	base, ext := clean, ""
	if i := strings.LastIndex(clean, "."); i > 0 {
		base, ext = clean[:i], clean[i:]
	}
	base = nonWord.ReplaceAllString(base, "_")
	return base + ext
}

// Normalize applies the narrow allow-list of unambiguous, type-safe coercions
// to a parsed document before validation. It never invents missing sections.
//
// Coercions applied:
//   - an outer "blackboard" wrapper is unwrapped
//   - a modules mapping becomes a sequence, mapping keys becoming names
//   - a scalar where a sequence is expected (main_flow, change_log, requires)
//     is wrapped into a one-element sequence
//   - module filenames are normalized (see NormalizeFilename)
func Normalize(doc map[string]any) map[string]any {
	if inner, ok := doc["blackboard"].(map[string]any); ok {
		doc = inner
	}

	if rawModules, ok := doc["modules"].(map[string]any); ok {
		seq := make([]any, 0, len(rawModules))
		for key, val := range rawModules {
			entry, ok := val.(map[string]any)
			if !ok {
				continue
			}
			if _, has := entry["name"]; !has {
				entry["name"] = key
			}
			seq = append(seq, entry)
		}
		doc["modules"] = seq
	}

	coerceSequence(doc, "main_flow")

	if modules, ok := doc["modules"].([]any); ok {
		for _, raw := range modules {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			coerceSequence(m, "requires")
			if fn, ok := m["filename"].(string); ok {
				m["filename"] = NormalizeFilename(fn)
			}
		}
	}

	if meta, ok := doc["metadata"].(map[string]any); ok {
		coerceSequence(meta, "change_log")
	}

	return doc
}

// coerceSequence wraps a scalar value into a one-element sequence. Absent
// keys are left absent — that is the validator's call, not ours.
func coerceSequence(m map[string]any, key string) {
	val, ok := m[key]
	if !ok || val == nil {
		return
	}
	if _, isSeq := val.([]any); isSeq {
		return
	}
	m[key] = []any{val}
}
