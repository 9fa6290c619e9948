// internal/logging/context.go
package logging

import (
	"context"

	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 4)

	if runID := RunIDFromContext(ctx); runID != "" {
		fields = append(fields, zap.String("run.id", runID))
	}
	if module := ModuleFromContext(ctx); module != "" {
		fields = append(fields, zap.String("module", module))
	}
	if agent := AgentFromContext(ctx); agent != "" {
		fields = append(fields, zap.String("agent", agent))
	}

	return fields
}

// Context key types
type runCtxKey struct{}
type moduleCtxKey struct{}
type agentCtxKey struct{}

// WithRunID adds a pipeline run ID to context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runCtxKey{}, runID)
}

// RunIDFromContext extracts the run ID from context.
func RunIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(runCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithModule adds the module being processed to context.
func WithModule(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, moduleCtxKey{}, name)
}

// ModuleFromContext extracts the module name from context.
func ModuleFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(moduleCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithAgent adds the active agent role to context.
func WithAgent(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, agentCtxKey{}, role)
}

// AgentFromContext extracts the agent role from context.
func AgentFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(agentCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// loggerCtxKey is the context key for Logger.
type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a default nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}
