package llm

import (
	"regexp"
	"strings"
)

var (
	fencedBlock  = regexp.MustCompile("(?is)```(?:python|py|yaml|yml|json)?\\s*(.*?)\\s*```")
	fenceMarker  = regexp.MustCompile("(?i)```(?:python|py|yaml|yml|json)?")
	sqlComment   = regexp.MustCompile(`(?m)^--.*$`)
	sqlStatement = regexp.MustCompile(`(?ims)^(CREATE|ALTER|DROP|SELECT|INSERT|UPDATE|DELETE|PRAGMA)\s+.*?(?:;|$)`)
	docSeparator = regexp.MustCompile(`(?m)^---\s*$`)
	docRootKey   = regexp.MustCompile(`(?m)^(app_type|blueprint|modules|entrypoint|api_spec|module_type|glossary):`)
	yamlKey      = regexp.MustCompile(`^[\w\s\-]+$`)
)

// junkPrefixes mark conversational lines models wrap around code output.
var junkPrefixes = []string{
	"here is", "sure", "note:", "this script", "i have",
	"however", "please", "the following", "i've added", "corrected version",
}

// Clean repairs raw model output according to the expected shape. It is the
// only place heuristic text repair happens; callers receive either a usable
// value or, upstream, a generation failure when nothing survives cleaning.
func Clean(text string, shape Shape) string {
	if blocks := fencedBlock.FindAllStringSubmatch(text, -1); len(blocks) > 0 {
		parts := make([]string, 0, len(blocks))
		for _, b := range blocks {
			parts = append(parts, b[1])
		}
		text = strings.Join(parts, "\n")
	} else {
		text = fenceMarker.ReplaceAllString(text, "")
	}

	switch shape {
	case ShapeDoc:
		return cleanDocument(text)
	case ShapeCode:
		return cleanCode(text)
	default:
		return strings.TrimSpace(text)
	}
}

// cleanCode drops conversational junk lines while keeping comments intact.
func cleanCode(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		stripped := strings.ToLower(strings.TrimSpace(line))
		junk := false
		if !strings.HasPrefix(strings.TrimSpace(line), "#") {
			for _, prefix := range junkPrefixes {
				if strings.HasPrefix(stripped, prefix) {
					junk = true
					break
				}
			}
		}
		if !junk {
			kept = append(kept, line)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// cleanDocument repairs YAML-ish output: SQL and prose stripped, the
// document anchored at its first root key, orphaned text removed, and
// values with special characters quoted.
func cleanDocument(text string) string {
	text = sqlComment.ReplaceAllString(text, "")
	text = sqlStatement.ReplaceAllString(text, "")
	text = strings.TrimSpace(docSeparator.ReplaceAllString(text, ""))

	if loc := docRootKey.FindStringIndex(text); loc != nil {
		text = text[loc[0]:]
	}

	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for i, line := range lines {
		stripped := strings.TrimSpace(line)
		if stripped == "" || strings.HasPrefix(stripped, "#") {
			kept = append(kept, line)
			continue
		}
		if strings.HasPrefix(stripped, "-") || strings.Contains(stripped, ":") {
			kept = append(kept, line)
			continue
		}
		// Continuation lines after a block scalar or open collection stay.
		if i > 0 {
			prev := strings.TrimSpace(lines[i-1])
			if strings.HasSuffix(prev, "|") || strings.HasSuffix(prev, ">") ||
				strings.HasSuffix(prev, "|-") || strings.HasSuffix(prev, ">-") ||
				strings.HasSuffix(prev, "{") || strings.HasSuffix(prev, "[") {
				kept = append(kept, line)
				continue
			}
		}
		// Orphaned prose: drop.
	}

	return fixYAMLValues(strings.TrimSpace(strings.Join(kept, "\n")))
}

// fixYAMLValues quotes scalar values that would break parsing: embedded
// colons, braces, quotes, or very long unquoted strings.
func fixYAMLValues(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		stripped := strings.TrimSpace(line)
		if stripped == "" || strings.HasPrefix(stripped, "#") || strings.HasPrefix(stripped, "-") {
			continue
		}
		colon := strings.Index(stripped, ":")
		if colon < 0 {
			continue
		}
		key := strings.TrimSpace(stripped[:colon])
		val := strings.TrimSpace(stripped[colon+1:])
		if !yamlKey.MatchString(key) || val == "" {
			continue
		}
		if isQuoted(val) || isYAMLLiteral(val) || isCollectionLiteral(val) {
			continue
		}
		if strings.Contains(val, ":") || strings.Contains(val, "{{") ||
			strings.ContainsAny(val, `"'`) || len(val) > 50 {
			escaped := strings.ReplaceAll(val, `\`, `\\`)
			escaped = strings.ReplaceAll(escaped, `"`, `\"`)
			indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
			lines[i] = indent + key + `: "` + escaped + `"`
		}
	}
	return strings.Join(lines, "\n")
}

func isQuoted(val string) bool {
	return (strings.HasPrefix(val, `"`) && strings.HasSuffix(val, `"`)) ||
		(strings.HasPrefix(val, `'`) && strings.HasSuffix(val, `'`))
}

func isYAMLLiteral(val string) bool {
	switch val {
	case "|", ">", "|-", ">-", "{", "[":
		return true
	}
	switch strings.ToLower(val) {
	case "true", "false", "yes", "no", "null":
		return true
	}
	// Bare numbers stay unquoted.
	trimmed := strings.Replace(val, ".", "", 1)
	if trimmed != "" {
		allDigits := true
		for _, r := range trimmed {
			if r < '0' || r > '9' {
				allDigits = false
				break
			}
		}
		if allDigits {
			return true
		}
	}
	return false
}

func isCollectionLiteral(val string) bool {
	return (strings.HasPrefix(val, "[") && strings.HasSuffix(val, "]")) ||
		(strings.HasPrefix(val, "{") && strings.HasSuffix(val, "}"))
}
