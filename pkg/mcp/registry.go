package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Source is one external tool provider. Client implements it.
type Source interface {
	Initialize(ctx context.Context) error
	ListTools(ctx context.Context) ([]ToolSchema, error)
	CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolCallResult, error)
}

// ToolSourceError reports one source failing while the registry continues
// serving the others.
type ToolSourceError struct {
	Source string
	Cause  error
}

func (e *ToolSourceError) Error() string {
	return fmt.Sprintf("tool source %s: %v", e.Source, e.Cause)
}

func (e *ToolSourceError) Unwrap() error { return e.Cause }

// NamespacedTool is a source's tool under its registry-wide name.
type NamespacedTool struct {
	FullName string // source:toolName
	Source   string
	Schema   ToolSchema
}

// Registry aggregates several tool sources. Tool names are namespaced as
// source:toolName; a failing source is skipped, never fatal.
type Registry struct {
	logger *slog.Logger

	mu      sync.Mutex
	sources map[string]Source
}

// NewRegistry creates an empty Registry. logger may be nil.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger, sources: make(map[string]Source)}
}

// AddSource initializes and registers a source under the given name. An
// initialization failure leaves the registry unchanged.
func (r *Registry) AddSource(ctx context.Context, name string, s Source) error {
	if strings.Contains(name, ":") {
		return fmt.Errorf("source name %q must not contain ':'", name)
	}
	if err := s.Initialize(ctx); err != nil {
		return &ToolSourceError{Source: name, Cause: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sources[name]; exists {
		return fmt.Errorf("source %q already registered", name)
	}
	r.sources[name] = s
	return nil
}

// Tools lists every tool across all sources, sorted by full name. A source
// that fails to list is logged and skipped; its tools are simply absent.
func (r *Registry) Tools(ctx context.Context) []NamespacedTool {
	r.mu.Lock()
	sources := make(map[string]Source, len(r.sources))
	for n, s := range r.sources {
		sources[n] = s
	}
	r.mu.Unlock()

	var out []NamespacedTool
	for name, src := range sources {
		schemas, err := src.ListTools(ctx)
		if err != nil {
			r.logger.Warn("tool source unavailable, skipping",
				"source", name, "error", &ToolSourceError{Source: name, Cause: err})
			continue
		}
		for _, schema := range schemas {
			out = append(out, NamespacedTool{
				FullName: name + ":" + schema.Name,
				Source:   name,
				Schema:   schema,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out
}

// Call invokes a tool by its namespaced name.
func (r *Registry) Call(ctx context.Context, fullName string, arguments map[string]any) (*ToolCallResult, error) {
	sourceName, toolName, ok := strings.Cut(fullName, ":")
	if !ok {
		return nil, fmt.Errorf("tool name %q is not namespaced as source:tool", fullName)
	}

	r.mu.Lock()
	src, exists := r.sources[sourceName]
	r.mu.Unlock()
	if !exists {
		return nil, fmt.Errorf("unknown tool source %q", sourceName)
	}

	result, err := src.CallTool(ctx, toolName, arguments)
	if err != nil {
		return nil, &ToolSourceError{Source: sourceName, Cause: err}
	}
	return result, nil
}
