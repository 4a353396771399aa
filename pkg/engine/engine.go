// Package engine drives tool execution from intent to outcome. It validates
// the request, optionally enriches parameters through a model-backed
// strategy, hands the request to an executor, and reduces the resulting
// status stream to a single terminal Outcome. Execute never panics and never
// returns without an Outcome.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"swarm/pkg/tool"
)

// ModelCaller produces a completion for a prompt. Implementations live in
// the anthropic and openai subpackages.
type ModelCaller interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ParameterStrategy turns a tool request into a prompt and folds the model's
// answer back into an enriched request.
type ParameterStrategy interface {
	// BuildPrompt renders the prompt asking the model for parameters.
	BuildPrompt(t tool.Tool, req tool.Request) (string, error)
	// Enrich returns a new request carrying the generated parameters.
	Enrich(req tool.Request, params map[string]string) (tool.Request, error)
}

// Engine executes tools. Zero-value fields degrade gracefully: without a
// model, strategies are skipped; without a remote executor, remote tools
// fail with a clear message.
type Engine struct {
	local  tool.Executor
	remote tool.Executor
	model  ModelCaller
	logger *slog.Logger

	mu         sync.Mutex
	strategies map[string]ParameterStrategy

	nowFunc func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithModel attaches a model caller used by parameter strategies.
func WithModel(m ModelCaller) Option {
	return func(e *Engine) { e.model = m }
}

// WithRemoteExecutor attaches the executor for FamilyRemote tools.
func WithRemoteExecutor(exec tool.Executor) Option {
	return func(e *Engine) { e.remote = exec }
}

// WithLogger attaches a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine executing local tools with the given executor.
func New(local tool.Executor, opts ...Option) *Engine {
	e := &Engine{
		local:      local,
		strategies: make(map[string]ParameterStrategy),
		nowFunc:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// RegisterStrategy installs a parameter strategy for the given tool id,
// replacing any existing one.
func (e *Engine) RegisterStrategy(toolID string, s ParameterStrategy) {
	e.mu.Lock()
	e.strategies[toolID] = s
	e.mu.Unlock()
}

// strategyFor returns the registered strategy for a tool, if any.
func (e *Engine) strategyFor(toolID string) ParameterStrategy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.strategies[toolID]
}

// Execute runs the tool and returns its terminal Outcome. Every failure
// mode, including panics in strategies or executors, is converted into a
// Failure outcome with end >= start.
func (e *Engine) Execute(ctx context.Context, t tool.Tool, req tool.Request) (outcome tool.Outcome) {
	started := e.nowFunc()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("engine execution panicked", "tool", t.ID, "panic", r)
			outcome = e.failure(started, fmt.Sprintf("execution panicked: %v", r), false)
		}
	}()

	if req.Intent == "" {
		return e.failure(started, "request has no intent", false)
	}

	exec := e.local
	if t.Family == tool.FamilyRemote {
		if e.remote == nil {
			return e.failure(started,
				fmt.Sprintf("tool %s requires a remote tool source and none is configured", t.ID), false)
		}
		exec = e.remote
	}
	if exec == nil {
		return e.failure(started, fmt.Sprintf("no executor available for tool %s", t.ID), false)
	}

	if s := e.strategyFor(t.ID); s != nil && e.model != nil {
		enriched, err := e.generateParams(ctx, s, t, req)
		if err != nil {
			return e.failure(started, fmt.Sprintf("parameter generation: %v", err), true)
		}
		req = enriched
	}

	return e.consume(ctx, exec.Execute(ctx, req, t), started)
}

// generateParams runs the strategy round trip: prompt, model, parse, enrich.
func (e *Engine) generateParams(ctx context.Context, s ParameterStrategy, t tool.Tool, req tool.Request) (tool.Request, error) {
	prompt, err := s.BuildPrompt(t, req)
	if err != nil {
		return tool.Request{}, fmt.Errorf("build prompt: %w", err)
	}

	completion, err := e.model.Complete(ctx, prompt)
	if err != nil {
		return tool.Request{}, fmt.Errorf("model call: %w", err)
	}

	params, err := ExtractParams(completion)
	if err != nil {
		return tool.Request{}, fmt.Errorf("parse completion: %w", err)
	}

	enriched, err := s.Enrich(req, params)
	if err != nil {
		return tool.Request{}, fmt.Errorf("enrich request: %w", err)
	}
	return enriched, nil
}

// consume drains the status stream to its terminal entry. A stream that ends
// without a terminal status is an executor bug and becomes a failure.
func (e *Engine) consume(ctx context.Context, stream <-chan tool.Status, started time.Time) tool.Outcome {
	for {
		select {
		case s, ok := <-stream:
			if !ok {
				return e.failure(started, "executor stream ended without a terminal status", true)
			}
			if s.Kind.Terminal() {
				if s.Outcome == nil {
					return e.failure(started, "terminal status carried no outcome", true)
				}
				return *s.Outcome
			}
		case <-ctx.Done():
			return e.failure(started, fmt.Sprintf("execution cancelled: %v", ctx.Err()), false)
		}
	}
}

// failure builds a Failure outcome anchored at started.
func (e *Engine) failure(started time.Time, msg string, retryable bool) tool.Outcome {
	ended := e.nowFunc()
	if ended.Before(started) {
		ended = started
	}
	return tool.Outcome{Failure: &tool.Failure{
		Message:   msg,
		Retryable: retryable,
		Started:   started,
		Ended:     ended,
	}}
}
