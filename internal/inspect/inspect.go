// Package inspect extracts structure from generated Python source using
// tree-sitter: defined classes and functions, imports with their requested
// symbols, and a syntax verdict. The integrator verifies composition against
// this ground truth rather than against the plan, and the implementation
// loop uses the syntax check as its first gate.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// ErrSyntax indicates the source does not parse.
var ErrSyntax = errors.New("syntax error")

// Import is one import statement with the symbols it requests.
type Import struct {
	// Module is the import target, e.g. "storage" or "os.path".
	Module string

	// Symbols are the names requested via "from X import a, b". Empty for
	// plain "import X" forms.
	Symbols []string
}

// Class is a defined class and its methods.
type Class struct {
	Name    string
	Methods []string
}

// Structure is the extracted shape of one source file.
type Structure struct {
	Classes   []Class
	Functions []string
	Constants []string
	Imports   []Import
}

// DefinedSymbols returns the set of top-level names the file defines.
func (s *Structure) DefinedSymbols() map[string]bool {
	defined := make(map[string]bool)
	for _, c := range s.Classes {
		defined[c.Name] = true
	}
	for _, f := range s.Functions {
		defined[f] = true
	}
	for _, c := range s.Constants {
		defined[c] = true
	}
	return defined
}

// Inspector parses Python source. Not safe for concurrent use; create one
// per goroutine.
type Inspector struct {
	parser *sitter.Parser
}

// New creates a Python inspector.
func New() *Inspector {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &Inspector{parser: p}
}

// CheckSyntax reports whether the source parses cleanly.
func (ins *Inspector) CheckSyntax(ctx context.Context, src []byte) error {
	tree, err := ins.parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return fmt.Errorf("parse source: %w", err)
	}
	defer tree.Close()

	if tree.RootNode().HasError() {
		return fmt.Errorf("%w: %s", ErrSyntax, firstErrorContext(tree.RootNode(), src))
	}
	return nil
}

// Inspect parses the source and extracts its structure. A file with syntax
// errors returns ErrSyntax; partial structure is never reported.
func (ins *Inspector) Inspect(ctx context.Context, src []byte) (*Structure, error) {
	tree, err := ins.parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse source: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("%w: %s", ErrSyntax, firstErrorContext(root, src))
	}

	st := &Structure{}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "class_definition":
			if c := extractClass(node, src); c != nil {
				st.Classes = append(st.Classes, *c)
			}
		case "function_definition":
			if name := fieldText(node, "name", src); name != "" {
				st.Functions = append(st.Functions, name)
			}
		case "decorated_definition":
			if def := definitionIn(node); def != nil {
				switch def.Type() {
				case "class_definition":
					if c := extractClass(def, src); c != nil {
						st.Classes = append(st.Classes, *c)
					}
				case "function_definition":
					if name := fieldText(def, "name", src); name != "" {
						st.Functions = append(st.Functions, name)
					}
				}
			}
		case "expression_statement":
			st.Constants = append(st.Constants, extractAssignments(node, src)...)
		case "import_statement", "import_from_statement":
			st.Imports = append(st.Imports, extractImports(node, src)...)
		}
	}
	return st, nil
}

// Summary renders a structure as prompt-ready feedback text.
func Summary(st *Structure) string {
	var sb strings.Builder
	if len(st.Classes) > 0 {
		sb.WriteString("DEFINED CLASSES:\n")
		for _, c := range st.Classes {
			sb.WriteString(fmt.Sprintf("- class %s: methods [%s]\n", c.Name, strings.Join(c.Methods, ", ")))
		}
	}
	if len(st.Functions) > 0 {
		sb.WriteString("EXPORTED FUNCTIONS: " + strings.Join(st.Functions, ", ") + "\n")
	}
	if len(st.Classes) == 0 && len(st.Functions) == 0 {
		sb.WriteString("WARNING: no classes or functions detected\n")
	}
	return strings.TrimSpace(sb.String())
}

// maxTailStrip bounds how many trailing lines the repair may remove.
const maxTailStrip = 30

// StripTrailingProse removes a non-code tail left by the model after the
// actual code: trailing lines are dropped, one at a time, until the source
// parses or the budget runs out. The original text is returned when nothing
// helps.
func (ins *Inspector) StripTrailingProse(ctx context.Context, src string) string {
	if ins.CheckSyntax(ctx, []byte(src)) == nil {
		return src
	}

	lines := strings.Split(strings.TrimRight(src, "\n"), "\n")
	for i := 0; i < maxTailStrip && len(lines) > 1; i++ {
		lines = lines[:len(lines)-1]
		candidate := strings.Join(lines, "\n") + "\n"
		if strings.TrimSpace(candidate) == "" {
			break
		}
		if ins.CheckSyntax(ctx, []byte(candidate)) == nil {
			return candidate
		}
	}
	return src
}

func extractClass(node *sitter.Node, src []byte) *Class {
	name := fieldText(node, "name", src)
	if name == "" {
		return nil
	}
	c := &Class{Name: name}
	if body := node.ChildByFieldName("body"); body != nil {
		for i := 0; i < int(body.NamedChildCount()); i++ {
			child := body.NamedChild(i)
			if child.Type() == "decorated_definition" {
				child = definitionIn(child)
				if child == nil {
					continue
				}
			}
			if child.Type() == "function_definition" {
				if m := fieldText(child, "name", src); m != "" {
					c.Methods = append(c.Methods, m)
				}
			}
		}
	}
	return c
}

func extractAssignments(node *sitter.Node, src []byte) []string {
	var names []string
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() != "assignment" {
			continue
		}
		left := child.ChildByFieldName("left")
		if left != nil && left.Type() == "identifier" {
			names = append(names, text(left, src))
		}
	}
	return names
}

func extractImports(node *sitter.Node, src []byte) []Import {
	switch node.Type() {
	case "import_statement":
		// import foo, bar as b — each comma target is its own import.
		var imports []Import
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child.Type() == "dotted_name" || child.Type() == "aliased_import" {
				name := text(child, src)
				if idx := strings.Index(name, " as "); idx != -1 {
					name = name[:idx]
				}
				imports = append(imports, Import{Module: strings.TrimSpace(name)})
			}
		}
		return imports

	case "import_from_statement":
		module := fieldText(node, "module_name", src)
		if module == "" {
			return nil
		}
		imp := Import{Module: module}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if text(child, src) == module {
				continue
			}
			switch child.Type() {
			case "dotted_name", "aliased_import":
				name := text(child, src)
				if idx := strings.Index(name, " as "); idx != -1 {
					name = name[:idx]
				}
				imp.Symbols = append(imp.Symbols, strings.TrimSpace(name))
			case "wildcard_import":
				// from X import * requests everything; nothing to verify.
				imp.Symbols = nil
				return []Import{imp}
			}
		}
		return []Import{imp}
	}
	return nil
}

func definitionIn(node *sitter.Node) *sitter.Node {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "class_definition", "function_definition":
			return child
		}
	}
	return nil
}

func fieldText(node *sitter.Node, field string, src []byte) string {
	child := node.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return text(child, src)
}

func text(node *sitter.Node, src []byte) string {
	return string(src[node.StartByte():node.EndByte()])
}

// firstErrorContext returns a short excerpt around the first parse error.
func firstErrorContext(root *sitter.Node, src []byte) string {
	var find func(n *sitter.Node) *sitter.Node
	find = func(n *sitter.Node) *sitter.Node {
		if n.IsError() || n.IsMissing() {
			return n
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			if found := find(n.Child(i)); found != nil {
				return found
			}
		}
		return nil
	}

	node := find(root)
	if node == nil {
		return "unknown location"
	}
	line := int(node.StartPoint().Row) + 1
	excerpt := text(node, src)
	if len(excerpt) > 60 {
		excerpt = excerpt[:60]
	}
	return fmt.Sprintf("line %d near %q", line, strings.TrimSpace(excerpt))
}
