package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/factoryd/internal/blackboard"
	"github.com/fyrsmithlabs/factoryd/internal/blueprint"
	"github.com/fyrsmithlabs/factoryd/internal/llm"
	"github.com/fyrsmithlabs/factoryd/internal/logging"
)

// ErrPlanningExhausted means the architect/auditor loop ran out of rounds
// without producing an approved blueprint.
var ErrPlanningExhausted = errors.New("planning rounds exhausted without an approved blueprint")

// Planner runs the architect/auditor loop until a blueprint is accepted
// or the round budget runs out.
type Planner struct {
	gen     llm.Generator
	critic  llm.Critic
	rounds  int
	metrics *blackboard.Metrics
	log     *logging.Logger
}

// NewPlanner wires a planner. metrics may be nil in tests.
func NewPlanner(gen llm.Generator, critic llm.Critic, rounds int, metrics *blackboard.Metrics, log *logging.Logger) *Planner {
	return &Planner{gen: gen, critic: critic, rounds: rounds, metrics: metrics, log: log}
}

// Plan produces a schema-valid architecture document for the idea. Each
// round regenerates with the accumulated issue list folded into context;
// schema failures count as issues and re-enter generation. The critic can
// accept outright or hand back a complete replacement, which is accepted
// immediately.
func (p *Planner) Plan(ctx context.Context, idea string) (map[string]any, error) {
	ctx = logging.WithAgent(ctx, "analyst")
	var issues []string

	for round := 1; round <= p.rounds; round++ {
		raw, err := p.gen.Generate(ctx, llm.Request{
			Role:         "analyst",
			Instructions: llm.AnalystInstructions,
			Context:      planContext(idea, issues),
			Shape:        llm.ShapeDoc,
		})
		p.logAttempt("analyst", round, idea, raw, err)
		if err != nil {
			issues = appendIssue(issues, fmt.Sprintf("generation failed: %v", err))
			continue
		}

		doc, err := blueprint.ParseDocument(raw)
		if err != nil {
			issues = appendIssue(issues, fmt.Sprintf("blueprint is not parseable YAML: %v", err))
			continue
		}
		doc = blueprint.Normalize(doc)
		if err := blueprint.Validate(doc); err != nil {
			issues = appendIssue(issues, fmt.Sprintf("blueprint incomplete: %v", err))
			continue
		}

		verdict, err := p.critic.Critique(ctx, raw)
		p.logAttempt("auditor", round, raw, strings.Join(verdict.Issues, "; "), err)
		if err != nil {
			issues = appendIssue(issues, fmt.Sprintf("audit failed: %v", err))
			continue
		}
		if verdict.Approved {
			p.log.Info(ctx, "blueprint approved", zap.Int("round", round))
			return doc, nil
		}
		if verdict.Replacement != nil {
			// The auditor rewrote the plan wholesale; its document already
			// passed schema validation during verdict parsing.
			p.log.Info(ctx, "blueprint replaced by auditor", zap.Int("round", round))
			return verdict.Replacement, nil
		}
		issues = mergeIssues(issues, verdict.Issues)
		p.log.Warn(ctx, "blueprint rejected",
			zap.Int("round", round),
			zap.Int("open_issues", len(issues)))
	}

	return nil, fmt.Errorf("%w after %d rounds: %s", ErrPlanningExhausted, p.rounds, strings.Join(issues, "; "))
}

func planContext(idea string, issues []string) string {
	var sb strings.Builder
	sb.WriteString("APPLICATION IDEA:\n")
	sb.WriteString(idea)
	if len(issues) > 0 {
		sb.WriteString("\n\nPREVIOUS BLUEPRINT WAS REJECTED. Fix every issue below:\n")
		for _, iss := range issues {
			sb.WriteString("- " + iss + "\n")
		}
	}
	return sb.String()
}

func (p *Planner) logAttempt(agent string, round int, input, output string, err error) {
	if p.metrics == nil {
		return
	}
	a := blackboard.AgentAttempt{
		Agent:     agent,
		Attempt:   round,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Input:     input,
		Output:    output,
		Status:    blackboard.AttemptSuccess,
	}
	if err != nil {
		a.Status = blackboard.AttemptFailure
		a.Error = err.Error()
	}
	_ = p.metrics.LogAttempt(a)
}

func appendIssue(issues []string, issue string) []string {
	return mergeIssues(issues, []string{issue})
}

// mergeIssues appends new issues, dropping duplicates so repeated rounds
// do not inflate the feedback prompt.
func mergeIssues(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, iss := range existing {
		seen[iss] = true
	}
	for _, iss := range incoming {
		if iss == "" || seen[iss] {
			continue
		}
		seen[iss] = true
		existing = append(existing, iss)
	}
	return existing
}
