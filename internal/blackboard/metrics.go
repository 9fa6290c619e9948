package blackboard

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AgentAttempt is one immutable generation attempt. The log is append-only;
// entries are never updated or removed.
type AgentAttempt struct {
	Agent     string `json:"agent"`
	Module    string `json:"module"`
	Attempt   int    `json:"attempt"`
	Timestamp string `json:"timestamp"`
	Input     string `json:"input"`
	Output    string `json:"output"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// Attempt status values.
const (
	AttemptSuccess = "success"
	AttemptFailure = "failure"
)

// QualityRecord captures one module's static-analysis outcome.
type QualityRecord struct {
	ReviewerScore int `json:"reviewer_score"`
	IssuesFound   int `json:"issues_found"`
	Optimizations int `json:"optimizations_applied"`
}

// Summary aggregates quality records across a run.
type Summary struct {
	ModulesReviewed int     `json:"modules_reviewed"`
	AverageScore    float64 `json:"average_score"`
	TotalIssues     int     `json:"total_issues"`
	TotalOptimized  int     `json:"total_optimizations"`
}

type metricsState struct {
	Modules       map[string]QualityRecord `json:"modules"`
	AgentAttempts []AgentAttempt           `json:"agent_attempts"`
}

// Metrics is the attempt/quality log, persisted to metrics.json separately
// from the blackboard so history never bloats the agent context.
type Metrics struct {
	mu    sync.Mutex
	path  string
	state metricsState
}

// NewMetrics creates (or reopens) the metrics log in dir.
func NewMetrics(dir string) (*Metrics, error) {
	m := &Metrics{
		path: filepath.Join(dir, "metrics.json"),
		state: metricsState{
			Modules:       make(map[string]QualityRecord),
			AgentAttempts: []AgentAttempt{},
		},
	}
	if raw, err := os.ReadFile(m.path); err == nil {
		// Best effort: a corrupt metrics file starts a fresh log rather
		// than blocking the run.
		var prev metricsState
		if json.Unmarshal(raw, &prev) == nil && prev.Modules != nil {
			m.state = prev
		}
	}
	if err := m.persistLocked(); err != nil {
		return nil, err
	}
	return m, nil
}

// LogAttempt appends one generation attempt.
func (m *Metrics) LogAttempt(a AgentAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.Timestamp == "" {
		a.Timestamp = time.Now().Format("2006-01-02 15:04:05")
	}
	m.state.AgentAttempts = append(m.state.AgentAttempts, a)
	return m.persistLocked()
}

// LogQuality records a module's static-analysis score.
func (m *Metrics) LogQuality(module string, score, issues, optimizations int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Modules[module] = QualityRecord{
		ReviewerScore: score,
		IssuesFound:   issues,
		Optimizations: optimizations,
	}
	return m.persistLocked()
}

// Attempts returns a copy of the attempt history.
func (m *Metrics) Attempts() []AgentAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AgentAttempt(nil), m.state.AgentAttempts...)
}

// Summarize aggregates quality records.
func (m *Metrics) Summarize() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Summary{ModulesReviewed: len(m.state.Modules)}
	if s.ModulesReviewed == 0 {
		return s
	}
	total := 0
	for _, rec := range m.state.Modules {
		total += rec.ReviewerScore
		s.TotalIssues += rec.IssuesFound
		s.TotalOptimized += rec.Optimizations
	}
	s.AverageScore = float64(total) / float64(s.ModulesReviewed)
	return s
}

func (m *Metrics) persistLocked() error {
	raw, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	if err := os.WriteFile(m.path, raw, 0o644); err != nil {
		return fmt.Errorf("persist metrics: %w", err)
	}
	return nil
}
