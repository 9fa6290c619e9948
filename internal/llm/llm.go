// Package llm holds the generation and critique collaborators behind narrow
// interfaces. The pipeline submits a role, instructions, and context and
// receives cleaned output of a declared shape — every heuristic that repairs
// malformed model text lives here and never leaks into orchestrator control
// flow, which sees only a valid value or a failure.
package llm

import (
	"context"
	"errors"
)

// Shape declares what the caller expects back from a generation call. The
// cleaner applies shape-specific repairs before the output is returned.
type Shape string

const (
	// ShapeCode expects source code with conversational chatter removed.
	ShapeCode Shape = "code"

	// ShapeDoc expects a structured YAML document.
	ShapeDoc Shape = "structured_doc"

	// ShapeText expects free text and is returned nearly verbatim.
	ShapeText Shape = "free_text"
)

// ErrEmptyOutput signals the model produced nothing usable. Empty output is
// always a failure, never a valid-empty result.
var ErrEmptyOutput = errors.New("generation produced empty output")

// Request is one generation call.
type Request struct {
	// Role identifies the calling agent, for attempt logging.
	Role string

	// Instructions is the system-level behavior description.
	Instructions string

	// Context is the user-level payload: specs, snapshots, feedback.
	Context string

	// Shape declares the expected output form.
	Shape Shape
}

// Generator is the generation collaborator: a synchronous call producing
// cleaned output.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Verdict is the structured result of critiquing a document.
type Verdict struct {
	// Approved is the unconditional-approval signal.
	Approved bool

	// Replacement holds a complete schema-valid document embedded in the
	// critique, when the critic rewrote the plan instead of listing issues.
	Replacement map[string]any

	// Issues is the bounded, deduplicated list of actionable problems.
	Issues []string
}

// Critic reviews an architecture document and returns a verdict.
type Critic interface {
	Critique(ctx context.Context, document string) (Verdict, error)
}
