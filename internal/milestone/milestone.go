// Package milestone records the five pipeline checkpoints: architecture,
// environment, development, frontend, and integration. Each check evaluates
// accumulated evidence and yields pass/warn/fail with explanations. History
// is append-only and never rolled back — an aborted run keeps every record.
//
// Only architecture and integration failures stop the pipeline. The rest
// downgrade to warnings: a broken module should not block an otherwise
// working application.
package milestone

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/factoryd/internal/blueprint"
)

// Status of a recorded milestone.
type Status string

const (
	StatusPassed  Status = "PASSED"
	StatusWarning Status = "WARNING"
	StatusFailed  Status = "FAILED"
)

// Stage names, in pipeline order.
const (
	StageArchitecture = "Architecture"
	StageEnvironment  = "Environment"
	StageDevelopment  = "Development"
	StageFrontend     = "Frontend"
	StageIntegration  = "Integration"
)

// Record is one appended milestone entry.
type Record struct {
	Stage     string   `json:"stage"`
	Status    Status   `json:"status"`
	Details   []string `json:"details"`
	Timestamp string   `json:"timestamp"`
}

// Manager evaluates milestones for one project run.
type Manager struct {
	projectDir  string
	historyPath string
	history     []Record
}

// NewManager creates a manager persisting history under
// <metadataDir>/.factory/milestones.json.
func NewManager(projectDir, metadataDir string) (*Manager, error) {
	if metadataDir == "" {
		metadataDir = projectDir
	}
	m := &Manager{
		projectDir:  projectDir,
		historyPath: filepath.Join(metadataDir, ".factory", "milestones.json"),
	}
	if raw, err := os.ReadFile(m.historyPath); err == nil {
		// Corrupt history starts fresh; records are advisory evidence,
		// not control state.
		_ = json.Unmarshal(raw, &m.history)
	}
	return m, nil
}

// History returns a copy of all recorded milestones.
func (m *Manager) History() []Record {
	return append([]Record(nil), m.history...)
}

// record appends and persists a milestone entry.
func (m *Manager) record(stage string, status Status, details []string) error {
	m.history = append(m.history, Record{
		Stage:     stage,
		Status:    status,
		Details:   details,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	if err := os.MkdirAll(filepath.Dir(m.historyPath), 0o755); err != nil {
		return fmt.Errorf("create milestone dir: %w", err)
	}
	raw, err := json.MarshalIndent(m.history, "", "  ")
	if err != nil {
		return fmt.Errorf("encode milestones: %w", err)
	}
	return os.WriteFile(m.historyPath, raw, 0o644)
}

// CheckArchitecture verifies the blueprint parsed and declares at least one
// module. Failure here hard-stops the pipeline.
func (m *Manager) CheckArchitecture(arch *blueprint.Architecture) (bool, []string) {
	var details []string
	status := StatusPassed

	if arch == nil {
		details = append(details, "blueprint missing or invalid")
		status = StatusFailed
	} else {
		details = append(details, "blueprint format valid")
		if len(arch.Modules) == 0 {
			details = append(details, "no modules defined in blueprint")
			status = StatusFailed
		} else {
			details = append(details, fmt.Sprintf("%d modules defined", len(arch.Modules)))
		}
	}

	_ = m.record(StageArchitecture, status, details)
	return status != StatusFailed, details
}

// CheckEnvironment verifies the dependency manifest was produced. Absence
// is a warning — installation is out of pipeline scope.
func (m *Manager) CheckEnvironment(manifestPath string) (bool, []string) {
	var details []string
	status := StatusPassed

	if _, err := os.Stat(manifestPath); err == nil {
		details = append(details, "dependency manifest generated")
	} else {
		details = append(details, "dependency manifest missing")
		status = StatusWarning
	}

	_ = m.record(StageEnvironment, status, details)
	return true, details
}

// ModuleResult is the per-module evidence fed to CheckDevelopment.
type ModuleResult struct {
	Name        string
	Filename    string
	TestsPassed bool
}

// CheckDevelopment verifies every implemented module left an artifact on
// disk. Failing tests downgrade to WARNING, not FAILED; missing files fail
// but the caller treats development failure as warning-level.
func (m *Manager) CheckDevelopment(results []ModuleResult) (bool, []string) {
	var details []string
	status := StatusPassed
	passed, failed := 0, 0

	for _, r := range results {
		path := filepath.Join(m.projectDir, r.Filename)
		if _, err := os.Stat(path); err != nil {
			details = append(details, fmt.Sprintf("module %s: code file missing (%s)", r.Name, r.Filename))
			status = StatusFailed
			continue
		}
		if r.TestsPassed {
			details = append(details, fmt.Sprintf("module %s: tests passed", r.Name))
			passed++
		} else {
			details = append(details, fmt.Sprintf("module %s: tests failed", r.Name))
			failed++
		}
	}
	details = append(details, fmt.Sprintf("test summary: %d/%d passed", passed, len(results)))

	if failed > 0 && status == StatusPassed {
		status = StatusWarning
	}

	_ = m.record(StageDevelopment, status, details)
	return status != StatusFailed, details
}

// CheckFrontend verifies frontend assets when a web interface was attempted.
// Nothing produced is a warning, never a stop.
func (m *Manager) CheckFrontend(frontendFiles []string) (bool, []string) {
	var details []string
	status := StatusPassed

	if len(frontendFiles) == 0 {
		details = append(details, "no frontend files produced")
		status = StatusWarning
	} else {
		details = append(details, fmt.Sprintf("%d frontend files generated", len(frontendFiles)))
	}

	_ = m.record(StageFrontend, status, details)
	return true, details
}

// CheckIntegration verifies the composition artifact exists at the declared
// entrypoint. Failure here hard-stops the pipeline.
func (m *Manager) CheckIntegration(entrypoint string) (bool, []string) {
	var details []string
	status := StatusPassed

	path := filepath.Join(m.projectDir, entrypoint)
	if _, err := os.Stat(path); err == nil {
		details = append(details, fmt.Sprintf("%s created", entrypoint))
	} else {
		details = append(details, fmt.Sprintf("%s missing", entrypoint))
		status = StatusFailed
	}

	_ = m.record(StageIntegration, status, details)
	return status != StatusFailed, details
}
