package mcp

import (
	"context"
	"fmt"
	"time"

	"swarm/pkg/tool"
)

// Executor adapts a Registry to the tool executor contract, so remote tools
// run through the same engine path as local ones. The tool's ID is its
// namespaced registry name.
type Executor struct {
	registry *Registry
}

// NewExecutor creates an Executor over the given registry.
func NewExecutor(r *Registry) *Executor {
	return &Executor{registry: r}
}

// Execute invokes the namespaced tool with the request's parameters as
// arguments and reduces the protocol result to a status stream.
func (e *Executor) Execute(ctx context.Context, req tool.Request, t tool.Tool) <-chan tool.Status {
	out := make(chan tool.Status, 4)
	started := time.Now()

	go func() {
		defer close(out)
		out <- tool.Status{Kind: tool.StatusStarted, Message: t.Name, At: started}

		arguments := make(map[string]any, len(req.Params))
		for k, v := range req.Params {
			arguments[k] = v
		}

		result, err := e.registry.Call(ctx, t.ID, arguments)
		ended := time.Now()

		if err != nil {
			outcome := &tool.Outcome{Failure: &tool.Failure{
				Message:   err.Error(),
				Retryable: ctx.Err() == nil,
				Started:   started,
				Ended:     ended,
			}}
			out <- tool.Status{Kind: tool.StatusFailed, Message: err.Error(), At: ended, Outcome: outcome}
			return
		}
		if result.IsError {
			msg := result.Text()
			if msg == "" {
				msg = fmt.Sprintf("tool %s reported an error", t.ID)
			}
			outcome := &tool.Outcome{Failure: &tool.Failure{
				Message: msg, Retryable: true, Started: started, Ended: ended,
			}}
			out <- tool.Status{Kind: tool.StatusFailed, Message: msg, At: ended, Outcome: outcome}
			return
		}

		outcome := &tool.Outcome{Success: &tool.Success{
			Summary: result.Text(),
			Started: started,
			Ended:   ended,
		}}
		out <- tool.Status{Kind: tool.StatusCompleted, Message: result.Text(), At: ended, Outcome: outcome}
	}()

	return out
}
