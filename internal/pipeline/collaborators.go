package pipeline

import (
	"context"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/factoryd/internal/blueprint"
	"github.com/fyrsmithlabs/factoryd/internal/llm"
)

// ModelAnalyzer is the model-backed StaticAnalyzer: one audit request,
// findings parsed out of FLAG: lines.
type ModelAnalyzer struct {
	gen llm.Generator
}

// NewModelAnalyzer wires the analyzer.
func NewModelAnalyzer(gen llm.Generator) *ModelAnalyzer {
	return &ModelAnalyzer{gen: gen}
}

var flagLineRe = regexp.MustCompile(`(?m)^\s*FLAG:\s*(.+)$`)

// Analyze audits module code and scores it: a clean verdict is 100,
// every finding costs 20 points down to a floor of 0.
func (a *ModelAnalyzer) Analyze(ctx context.Context, code string, moduleType blueprint.ModuleType) (*Report, error) {
	resp, err := a.gen.Generate(ctx, llm.Request{
		Role:         "security_auditor",
		Instructions: llm.SecurityAuditorInstructions,
		Context:      "MODULE TYPE: " + string(moduleType) + "\n\nCODE:\n" + code,
		Shape:        llm.ShapeText,
	})
	if err != nil {
		return nil, err
	}

	var issues []string
	for _, m := range flagLineRe.FindAllStringSubmatch(resp, -1) {
		issue := strings.TrimSpace(m[1])
		if issue != "" {
			issues = append(issues, issue)
		}
	}

	score := 100 - 20*len(issues)
	if score < 0 {
		score = 0
	}
	verdict := "CLEAN"
	if len(issues) > 0 {
		verdict = "FLAGGED"
	}
	return &Report{Score: score, Issues: issues, Verdict: verdict}, nil
}

// ModelFrontendBuilder is the model-backed FrontendBuilder: one request,
// assets split on FILE: headers.
type ModelFrontendBuilder struct {
	gen llm.Generator
}

// NewModelFrontendBuilder wires the builder.
func NewModelFrontendBuilder(gen llm.Generator) *ModelFrontendBuilder {
	return &ModelFrontendBuilder{gen: gen}
}

// Build asks for the UI assets and splits the response into files. A
// response with no FILE headers produces no assets, which the frontend
// milestone reports as a warning.
func (b *ModelFrontendBuilder) Build(ctx context.Context, idea, spec string) (map[string]string, error) {
	resp, err := b.gen.Generate(ctx, llm.Request{
		Role:         "frontend",
		Instructions: llm.FrontendInstructions,
		Context:      "APPLICATION IDEA:\n" + idea + "\n\nWEB MODULE SPECIFICATION:\n" + spec,
		Shape:        llm.ShapeText,
	})
	if err != nil {
		return nil, err
	}
	return SplitFileSections(resp), nil
}

// SplitFileSections parses a multi-file response of the form
//
//	FILE: index.html
//	<content>
//	FILE: style.css
//	<content>
//
// into filename -> content. Content before the first header is dropped.
func SplitFileSections(resp string) map[string]string {
	out := make(map[string]string)
	locs := fileHeaderRe.FindAllStringSubmatchIndex(resp, -1)
	for i, loc := range locs {
		name := blueprint.NormalizeFilename(resp[loc[2]:loc[3]])
		end := len(resp)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		content := strings.TrimSpace(resp[loc[1]:end])
		if name != "" && content != "" {
			out[name] = content + "\n"
		}
	}
	return out
}
