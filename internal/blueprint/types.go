// Package blueprint defines the architecture document model and its schema
// validation. A blueprint is the accepted, schema-valid description of the
// application to generate: its modules, flow, assembly rules, runtime
// contract, and metadata. Validation is all-or-nothing — a document missing
// any required section is rejected wholesale with the missing fields named.
package blueprint

import (
	"fmt"
	"strings"
)

// ModuleType classifies a declared module. Unknown values are rejected at
// the validation boundary, never carried downstream.
type ModuleType string

const (
	ModuleWebInterface ModuleType = "web_interface"
	ModuleService      ModuleType = "service"
	ModuleUtility      ModuleType = "utility"
	ModuleData         ModuleType = "data"
)

// ParseModuleType validates a raw type string against the known set.
func ParseModuleType(s string) (ModuleType, error) {
	switch ModuleType(strings.TrimSpace(strings.ToLower(s))) {
	case ModuleWebInterface:
		return ModuleWebInterface, nil
	case ModuleService:
		return ModuleService, nil
	case ModuleUtility:
		return ModuleUtility, nil
	case ModuleData:
		return ModuleData, nil
	}
	return "", fmt.Errorf("unknown module type %q", s)
}

// Module is one declared unit of the target application.
type Module struct {
	Name           string     `json:"name" yaml:"name"`
	Filename       string     `json:"filename" yaml:"filename"`
	Type           ModuleType `json:"type" yaml:"type"`
	Responsibility string     `json:"responsibility" yaml:"responsibility"`
	Requires       []string   `json:"requires" yaml:"requires"`
}

// Entrypoint names the composition artifact and its callable.
type Entrypoint struct {
	File     string `json:"entry_file" yaml:"entry_file"`
	Callable string `json:"entry_callable" yaml:"entry_callable"`
}

// Assembly captures how modules are wired together at startup.
type Assembly struct {
	InitializationOrder []string            `json:"initialization_order" yaml:"initialization_order"`
	DependencyGraph     map[string][]string `json:"dependency_graph" yaml:"dependency_graph"`
}

// Runtime is the contract for launching the assembled application.
type Runtime struct {
	Language string   `json:"language" yaml:"language"`
	Version  string   `json:"version" yaml:"version"`
	Command  string   `json:"command" yaml:"command"`
	EnvVars  []string `json:"env_vars" yaml:"env_vars"`
	Port     int      `json:"port" yaml:"port"`
}

// Metadata tracks blueprint provenance.
type Metadata struct {
	Version       string   `json:"version" yaml:"version"`
	LastUpdatedBy string   `json:"last_updated_by" yaml:"last_updated_by"`
	ChangeLog     []string `json:"change_log" yaml:"change_log"`
}

// Architecture is the full blueprint. Instances only exist after Validate
// has accepted the source document; there is no partially-valid form.
type Architecture struct {
	AppType    string     `json:"app_type" yaml:"app_type"`
	Entrypoint Entrypoint `json:"entrypoint" yaml:"entrypoint"`
	MainFlow   []string   `json:"main_flow" yaml:"main_flow"`
	Assembly   Assembly   `json:"assembly" yaml:"assembly"`
	Runtime    Runtime    `json:"runtime" yaml:"runtime"`
	Modules    []Module   `json:"modules" yaml:"modules"`
	Metadata   Metadata   `json:"metadata" yaml:"metadata"`
}

// IsWeb reports whether the application declares a web-facing type.
func (a *Architecture) IsWeb() bool {
	return strings.Contains(strings.ToLower(a.AppType), "web")
}

// ModuleFilenames returns the declared module filenames in order.
func (a *Architecture) ModuleFilenames() []string {
	names := make([]string, 0, len(a.Modules))
	for _, m := range a.Modules {
		names = append(names, m.Filename)
	}
	return names
}

// FindModule returns the module declaring filename, or nil.
func (a *Architecture) FindModule(filename string) *Module {
	for i := range a.Modules {
		if a.Modules[i].Filename == filename {
			return &a.Modules[i]
		}
	}
	return nil
}

// SchemaError reports every required field found missing from a document.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("architecture document missing required fields: %s", strings.Join(e.Missing, ", "))
}

// MissingField reports whether the error names the given field.
func (e *SchemaError) MissingField(field string) bool {
	for _, m := range e.Missing {
		if m == field {
			return true
		}
	}
	return false
}
