package blueprint

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNotMapping indicates the document root is not a mapping at all.
var ErrNotMapping = errors.New("architecture document is not a mapping")

// ParseDocument parses YAML text into a generic document ready for Normalize
// and Validate. Parse failures are reported distinctly from schema failures
// so the planning loop can feed them back as syntax issues.
func ParseDocument(text string) (map[string]any, error) {
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("parse architecture document: %w", err)
	}
	if doc == nil {
		return nil, ErrNotMapping
	}
	return stringifyKeys(doc), nil
}

// Validate enforces the non-negotiable blueprint requirements on a
// normalized document. It is pure: no side effects, no mutation. On failure
// it returns a *SchemaError naming every missing or invalid field it could
// reach; sections that are structurally absent mask their inner fields.
//
// Check order: mapping → app_type → modules → main_flow → assembly →
// runtime → metadata.
func Validate(doc map[string]any) error {
	if doc == nil {
		return ErrNotMapping
	}

	var missing []string

	if s, ok := doc["app_type"].(string); !ok || strings.TrimSpace(s) == "" {
		missing = append(missing, "app_type")
	}

	modules, ok := doc["modules"].([]any)
	if !ok || len(modules) == 0 {
		missing = append(missing, "modules")
	} else {
		for _, raw := range modules {
			m, ok := raw.(map[string]any)
			if !ok {
				missing = append(missing, "modules[]")
				continue
			}
			name, _ := m["name"].(string)
			if name == "" {
				name = "?"
			}
			for _, field := range []string{"name", "filename", "type", "responsibility", "requires"} {
				if _, has := m[field]; !has {
					missing = append(missing, fmt.Sprintf("modules.%s.%s", name, field))
				}
			}
			if typ, has := m["type"].(string); has {
				if _, err := ParseModuleType(typ); err != nil {
					missing = append(missing, fmt.Sprintf("modules.%s.type", name))
				}
			}
			if resp, has := m["responsibility"].(string); has && strings.TrimSpace(resp) == "" {
				missing = append(missing, fmt.Sprintf("modules.%s.responsibility", name))
			}
		}
	}

	if _, ok := doc["main_flow"].([]any); !ok {
		missing = append(missing, "main_flow")
	}

	assembly, ok := doc["assembly"].(map[string]any)
	if !ok {
		missing = append(missing, "assembly")
	} else {
		if _, has := assembly["initialization_order"]; !has {
			missing = append(missing, "assembly.initialization_order")
		}
		_, hasGraph := assembly["dependency_graph"]
		_, hasAlias := doc["module_dependencies"]
		if !hasGraph && !hasAlias {
			missing = append(missing, "assembly.dependency_graph")
		}
	}

	appType, _ := doc["app_type"].(string)
	runtime, ok := doc["runtime"].(map[string]any)
	if !ok {
		missing = append(missing, "runtime")
	} else {
		for _, field := range []string{"language", "version", "command"} {
			if _, has := runtime[field]; !has {
				missing = append(missing, "runtime."+field)
			}
		}
		if _, has := runtime["port"]; !has {
			if strings.Contains(strings.ToLower(appType), "web") {
				missing = append(missing, "runtime.port")
			}
		}
	}

	metadata, ok := doc["metadata"].(map[string]any)
	if !ok {
		missing = append(missing, "metadata")
	} else {
		for _, field := range []string{"version", "last_updated_by", "change_log"} {
			if _, has := metadata[field]; !has {
				missing = append(missing, "metadata."+field)
			}
		}
	}

	if len(missing) > 0 {
		return &SchemaError{Missing: missing}
	}
	return nil
}

// Decode converts a validated document into a typed Architecture. Callers
// must run Normalize and Validate first; Decode trusts its input shape but
// still surfaces the DAG invariant, which is semantic rather than
// structural.
func Decode(doc map[string]any) (*Architecture, error) {
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("re-encode architecture document: %w", err)
	}
	var arch Architecture
	if err := yaml.Unmarshal(raw, &arch); err != nil {
		return nil, fmt.Errorf("decode architecture document: %w", err)
	}

	if arch.Entrypoint.File == "" {
		arch.Entrypoint.File = "main.py"
	}
	if arch.Entrypoint.Callable == "" {
		if strings.Contains(strings.ToLower(arch.AppType), "flask") {
			arch.Entrypoint.Callable = "app"
		} else {
			arch.Entrypoint.Callable = "main"
		}
	}

	if err := CheckDAG(arch.Modules); err != nil {
		return nil, err
	}
	return &arch, nil
}

// CheckDAG verifies that module requirements, restricted to declared
// modules, form a directed acyclic graph. Requirements naming files outside
// the declared set are ignored — they refer to third-party imports the
// schema does not govern.
func CheckDAG(modules []Module) error {
	declared := make(map[string][]string, len(modules))
	for _, m := range modules {
		declared[m.Filename] = m.Requires
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(declared))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("circular module dependency: %s", strings.Join(append(path, name), " -> "))
		}
		state[name] = visiting
		for _, req := range declared[name] {
			if _, ok := declared[req]; !ok {
				continue
			}
			if err := visit(req, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for _, m := range modules {
		if err := visit(m.Filename, nil); err != nil {
			return err
		}
	}
	return nil
}

// stringifyKeys rewrites map[any]any nodes produced by YAML into
// map[string]any so the validator sees one uniform shape.
func stringifyKeys(v map[string]any) map[string]any {
	for key, val := range v {
		v[key] = stringifyValue(val)
	}
	return v
}

func stringifyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return stringifyKeys(val)
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[fmt.Sprintf("%v", k)] = stringifyValue(inner)
		}
		return out
	case []any:
		for i, item := range val {
			val[i] = stringifyValue(item)
		}
		return val
	default:
		return v
	}
}
