package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/factoryd/internal/blueprint"
)

// approvalMarker is the unconditional-approval signal in critique output.
const approvalMarker = "VERDICT: PASSED"

// maxIssues bounds the structured issue list extracted from free-text
// critique; anything past the cap is noise, not signal.
const maxIssues = 8

// ModelCritic reviews architecture documents through a Generator.
type ModelCritic struct {
	gen          Generator
	instructions string
}

// NewModelCritic builds a critic calling the given generator with the
// auditor instructions.
func NewModelCritic(gen Generator, instructions string) *ModelCritic {
	return &ModelCritic{gen: gen, instructions: instructions}
}

// Critique submits a document for review and parses the response into a
// structured verdict.
func (c *ModelCritic) Critique(ctx context.Context, document string) (Verdict, error) {
	out, err := c.gen.Generate(ctx, Request{
		Role:         "auditor",
		Instructions: c.instructions,
		Context:      "Review this blueprint:\n" + document,
		Shape:        ShapeText,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("critique: %w", err)
	}
	return ParseVerdict(out), nil
}

// ParseVerdict interprets critique text. In precedence order: an approval
// marker approves; an embedded complete, schema-valid replacement document
// is accepted as a rewrite; anything else yields a bounded issue list.
func ParseVerdict(text string) Verdict {
	if strings.Contains(strings.ToUpper(text), approvalMarker) {
		return Verdict{Approved: true}
	}

	if doc := extractReplacement(text); doc != nil {
		return Verdict{Replacement: doc}
	}

	return Verdict{Issues: ExtractIssues(text)}
}

// extractReplacement looks for a complete schema-valid document embedded in
// the critique. Partial or invalid documents are ignored — they flow back
// as issues instead.
func extractReplacement(text string) map[string]any {
	cleaned := Clean(text, ShapeDoc)
	if cleaned == "" {
		return nil
	}
	doc, err := blueprint.ParseDocument(cleaned)
	if err != nil {
		return nil
	}
	doc = blueprint.Normalize(doc)
	if blueprint.Validate(doc) != nil {
		return nil
	}
	return doc
}

// ExtractIssues parses free-text critique into actionable issue lines,
// classified by the failure they describe, deduplicated, and bounded.
func ExtractIssues(text string) []string {
	var issues []string
	seen := make(map[string]bool)

	add := func(issue string) {
		if len(issues) >= maxIssues || seen[issue] {
			return
		}
		seen[issue] = true
		issues = append(issues, issue)
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "VERDICT:") ||
			strings.HasPrefix(line, "---") || strings.HasPrefix(line, "[") {
			continue
		}
		lower := strings.ToLower(line)

		switch {
		case strings.Contains(lower, "circular") && strings.Contains(lower, "dependency"):
			add("ARCHITECTURE: remove circular dependencies - " + truncate(line, 120))
		case strings.Contains(lower, "missing") && strings.Contains(lower, "responsibility"):
			add("COMPLETENESS: add a clear responsibility to every module - " + truncate(line, 80))
		case strings.Contains(lower, "missing") && strings.Contains(lower, "field"):
			add("STRUCTURE: every module needs name, filename, type, responsibility, requires")
		case strings.Contains(lower, "tight coupling"):
			add("COUPLING: reduce dependencies between modules")
		case (strings.Contains(lower, "duplicat") || strings.Contains(lower, "overlapping")) &&
			strings.Contains(lower, "responsibility"):
			add("DESIGN: consolidate modules with overlapping responsibilities")
		case strings.Contains(lower, "unclear"):
			add("CLARITY: make module responsibilities clearer and more specific")
		}
	}

	if len(issues) == 0 && strings.Contains(strings.ToUpper(text), "FAILED") {
		issues = append(issues, "GENERAL: review architecture for separation-of-concerns violations")
	}
	return issues
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
