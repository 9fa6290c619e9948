package blackboard

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// WriteDebugReport renders a human-readable run report: architecture status,
// artifact verification, and the full attempt history. Everything in it
// comes from persisted state, so an aborted run is diagnosable from the
// report alone.
func (b *Blackboard) WriteDebugReport(path string) error {
	b.mu.Lock()
	state := b.state
	b.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("# Factory Debug Report\n\n")
	sb.WriteString(fmt.Sprintf("**Date:** %s\n", time.Now().Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("**Idea:** %s\n\n", state.ProjectInfo.Idea))

	sb.WriteString("## 1. Architecture Status\n")
	sb.WriteString(fmt.Sprintf("- **Status:** %s\n", state.ProjectInfo.Status))
	if state.Architecture != nil {
		sb.WriteString(fmt.Sprintf("- **App Type:** %s\n", state.Architecture.AppType))
		sb.WriteString(fmt.Sprintf("- **Runtime:** %s %s\n", state.Architecture.Runtime.Language, state.Architecture.Runtime.Version))
	} else {
		sb.WriteString("- **App Type:** N/A\n")
	}

	sb.WriteString("\n## 2. Module Verification\n")
	created := make(map[string]bool, len(state.FilesCreated))
	for _, f := range state.FilesCreated {
		created[f] = true
	}
	var missing []string
	for _, f := range state.RequiredFiles {
		if !created[f] {
			missing = append(missing, f)
		}
	}
	sb.WriteString(fmt.Sprintf("- **Required Files:** %d\n", len(state.RequiredFiles)))
	sb.WriteString(fmt.Sprintf("- **Created Files:** %d\n", len(state.FilesCreated)))
	if len(missing) > 0 {
		sb.WriteString(fmt.Sprintf("- **MISSING FILES:** %s\n", strings.Join(missing, ", ")))
	} else {
		sb.WriteString("- **ALL FILES PRESENT**\n")
	}

	sb.WriteString("\n## 3. Execution Log\n")
	for i, attempt := range b.metrics.Attempts() {
		sb.WriteString(fmt.Sprintf("\n### Step %d: %s -> %s\n", i+1, attempt.Agent, attempt.Module))
		sb.WriteString(fmt.Sprintf("- **Status:** %s\n", attempt.Status))
		if attempt.Error != "" {
			sb.WriteString(fmt.Sprintf("- **Error:** %s\n", attempt.Error))
		}
	}

	summary := b.metrics.Summarize()
	if summary.ModulesReviewed > 0 {
		sb.WriteString("\n## 4. Code Quality\n")
		sb.WriteString(fmt.Sprintf("- **Modules reviewed:** %d\n", summary.ModulesReviewed))
		sb.WriteString(fmt.Sprintf("- **Average score:** %.1f/100\n", summary.AverageScore))
		sb.WriteString(fmt.Sprintf("- **Issues found:** %d\n", summary.TotalIssues))
	}

	return os.WriteFile(path, []byte(sb.String()), 0o644)
}
