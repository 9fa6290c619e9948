// Package blackboard implements the shared project state store. The
// blackboard is the single source of truth for a run: the accepted
// architecture, the module registry, required and created artifacts, and the
// operational log. It is mutated concurrently by parallel module workers, so
// every mutating call is a serialized critical section and persistence
// happens inside it — readers always see a fully-written state file.
//
// Attempt history and quality metrics are deliberately kept out of the
// blackboard file; see Metrics.
package blackboard

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/factoryd/internal/blueprint"
)

// Project status values recorded in ProjectInfo.
const (
	StatusPlanning    = "PLANNING"
	StatusArchitected = "ARCHITECTED"
	StatusDeveloping  = "DEVELOPING"
	StatusIntegrated  = "INTEGRATED"
	StatusComplete    = "COMPLETE"
	StatusAborted     = "ABORTED"
)

// ProjectInfo describes the run itself.
type ProjectInfo struct {
	Idea      string `json:"idea"`
	CreatedAt string `json:"created_at"`
	Status    string `json:"status"`
}

// ModuleRecord tracks one module through its lifecycle: declared by
// planning, enriched with a spec at design time, marked implemented once
// code is actually written.
type ModuleRecord struct {
	Filename string               `json:"filename"`
	Type     blueprint.ModuleType `json:"type"`
	Spec     string               `json:"spec,omitempty"`
	HasCode  bool                 `json:"has_code"`
}

// Constraints are the global generation rules agents must honor.
type Constraints struct {
	NoInvention    bool `json:"no_invention"`
	BlackboardOnly bool `json:"blackboard_only"`
	FailOnMissing  bool `json:"fail_on_missing"`
}

// State is the persisted blackboard shape.
type State struct {
	ProjectInfo   ProjectInfo             `json:"project_info"`
	Architecture  *blueprint.Architecture `json:"architecture"`
	Modules       map[string]ModuleRecord `json:"modules"`
	APIRegistry   map[string]any          `json:"api_registry"`
	RequiredFiles []string                `json:"required_files"`
	FilesCreated  []string                `json:"files_created"`
	Constraints   Constraints             `json:"constraints"`
	Logs          []string                `json:"logs"`
}

// Blackboard is the concurrency-safe handle to the project state. All
// mutation funnels through its mutex; the reference implementation persisted
// without synchronization, which races under parallel registration.
type Blackboard struct {
	mu         sync.Mutex
	path       string
	projectDir string
	state      State
	metrics    *Metrics
}

// New creates a blackboard rooted at projectDir, persisting state to
// metadataDir (which defaults to projectDir).
func New(idea, projectDir, metadataDir string) (*Blackboard, error) {
	if metadataDir == "" {
		metadataDir = projectDir
	}
	if err := os.MkdirAll(metadataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create metadata dir: %w", err)
	}

	metrics, err := NewMetrics(metadataDir)
	if err != nil {
		return nil, err
	}

	b := &Blackboard{
		path:       filepath.Join(metadataDir, "blackboard.json"),
		projectDir: projectDir,
		metrics:    metrics,
		state: State{
			ProjectInfo: ProjectInfo{
				Idea:      idea,
				CreatedAt: time.Now().Format("2006-01-02 15:04:05"),
				Status:    StatusPlanning,
			},
			Modules:       make(map[string]ModuleRecord),
			APIRegistry:   make(map[string]any),
			RequiredFiles: []string{},
			FilesCreated:  []string{},
			Constraints: Constraints{
				NoInvention:    true,
				BlackboardOnly: true,
				FailOnMissing:  true,
			},
			Logs: []string{},
		},
	}
	if err := b.persistLocked(); err != nil {
		return nil, err
	}
	return b, nil
}

// Metrics returns the attempt/quality log living beside this blackboard.
func (b *Blackboard) Metrics() *Metrics { return b.metrics }

// ProjectDir returns the directory generated project files are written to.
func (b *Blackboard) ProjectDir() string { return b.projectDir }

// SetArchitecture validates a raw architecture document and, on success,
// atomically replaces the stored architecture, recomputes the required file
// set as module filenames plus the entrypoint, and persists. A document
// failing validation leaves the state untouched.
func (b *Blackboard) SetArchitecture(doc map[string]any) error {
	doc = blueprint.Normalize(doc)
	if err := blueprint.Validate(doc); err != nil {
		return err
	}
	arch, err := blueprint.Decode(doc)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	required := arch.ModuleFilenames()
	if !contains(required, arch.Entrypoint.File) {
		required = append(required, arch.Entrypoint.File)
	}

	b.state.Architecture = arch
	b.state.RequiredFiles = required
	b.state.ProjectInfo.Status = StatusArchitected
	return b.persistLocked()
}

// Architecture returns the accepted architecture, or nil before planning
// completes.
func (b *Blackboard) Architecture() *blueprint.Architecture {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Architecture
}

// SetStatus updates the project status.
func (b *Blackboard) SetStatus(status string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.ProjectInfo.Status = status
	return b.persistLocked()
}

// RegisterSpec upserts a module record at design time. The spec and resolved
// type are stored; FilesCreated is untouched because no content exists yet.
func (b *Blackboard) RegisterSpec(name, filename, spec string, typ blueprint.ModuleType) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec := b.state.Modules[name]
	rec.Filename = blueprint.NormalizeFilename(filename)
	rec.Spec = spec
	rec.Type = typ
	b.state.Modules[name] = rec
	return b.persistLocked()
}

// RegisterCode marks a module implemented and records its filename in
// FilesCreated exactly once. Call it only after content has actually been
// written to disk.
func (b *Blackboard) RegisterCode(name, filename string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	filename = blueprint.NormalizeFilename(filename)
	rec := b.state.Modules[name]
	rec.Filename = filename
	rec.HasCode = true
	b.state.Modules[name] = rec

	if !contains(b.state.FilesCreated, filename) {
		b.state.FilesCreated = append(b.state.FilesCreated, filename)
	}
	return b.persistLocked()
}

// RegisterFile records an artifact outside the module registry (the
// entrypoint, frontend assets) in FilesCreated exactly once.
func (b *Blackboard) RegisterFile(filename string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !contains(b.state.FilesCreated, filename) {
		b.state.FilesCreated = append(b.state.FilesCreated, filename)
	}
	return b.persistLocked()
}

// RegisterAPI records the public API contract a module exposes.
func (b *Blackboard) RegisterAPI(name string, spec any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.APIRegistry[name] = spec
	return b.persistLocked()
}

// Module returns a copy of one module record.
func (b *Blackboard) Module(name string) (ModuleRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.state.Modules[name]
	return rec, ok
}

// ModuleByFilename resolves a module record by its filename. Dependency
// lists in the architecture reference filenames, not registry names.
func (b *Blackboard) ModuleByFilename(filename string) (string, ModuleRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for name, rec := range b.state.Modules {
		if rec.Filename == filename {
			return name, rec, true
		}
	}
	return "", ModuleRecord{}, false
}

// Modules returns a copy of the module registry.
func (b *Blackboard) Modules() map[string]ModuleRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]ModuleRecord, len(b.state.Modules))
	for k, v := range b.state.Modules {
		out[k] = v
	}
	return out
}

// FilesCreated returns a copy of the created-file list.
func (b *Blackboard) FilesCreated() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.state.FilesCreated...)
}

// RequiredFiles returns a copy of the required-file list.
func (b *Blackboard) RequiredFiles() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.state.RequiredFiles...)
}

// Log appends an operational log line and persists.
func (b *Blackboard) Log(msg string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Logs = append(b.state.Logs, msg)
	return b.persistLocked()
}

// Snapshot renders the agent-facing context: the full state relevant to
// generation, as indented JSON.
func (b *Blackboard) Snapshot() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	view := map[string]any{
		"project_info":   b.state.ProjectInfo,
		"architecture":   b.state.Architecture,
		"modules":        b.state.Modules,
		"required_files": b.state.RequiredFiles,
		"files_created":  b.state.FilesCreated,
		"api_registry":   b.state.APIRegistry,
		"constraints":    b.state.Constraints,
	}
	raw, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// MissingFilesError reports the exact set of required files that have not
// been created.
type MissingFilesError struct {
	Missing []string
}

func (e *MissingFilesError) Error() string {
	return fmt.Sprintf("integration blocked: missing required files: %s", strings.Join(e.Missing, ", "))
}

// VerifyIntegrity checks that every required file has been created. With
// checkEntrypoint false the entrypoint is excluded — integration has not run
// yet, so its absence is expected. Returns nil when nothing is missing,
// otherwise a *MissingFilesError carrying the precise missing set.
func (b *Blackboard) VerifyIntegrity(checkEntrypoint bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	created := make(map[string]bool, len(b.state.FilesCreated))
	for _, f := range b.state.FilesCreated {
		created[f] = true
	}

	var entrypoint string
	if b.state.Architecture != nil {
		entrypoint = b.state.Architecture.Entrypoint.File
	}

	var missing []string
	for _, f := range b.state.RequiredFiles {
		if created[f] {
			continue
		}
		if !checkEntrypoint && f == entrypoint {
			continue
		}
		missing = append(missing, f)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &MissingFilesError{Missing: missing}
	}
	return nil
}

// persistLocked writes the state file. Callers hold the mutex.
func (b *Blackboard) persistLocked() error {
	raw, err := json.MarshalIndent(b.state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode blackboard: %w", err)
	}
	if err := os.WriteFile(b.path, raw, 0o644); err != nil {
		return fmt.Errorf("persist blackboard: %w", err)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
