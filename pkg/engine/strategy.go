package engine

import (
	"fmt"
	"sort"
	"strings"

	"swarm/pkg/tool"
)

// JSONParamStrategy is the default parameter strategy: it asks the model for
// a flat JSON object of parameters and merges the answer over the request's
// existing ones. Required lists parameter names the model must produce;
// enrichment fails if any is missing.
type JSONParamStrategy struct {
	Required []string
}

// BuildPrompt renders a prompt describing the tool and the caller's intent.
func (s JSONParamStrategy) BuildPrompt(t tool.Tool, req tool.Request) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "You are generating parameters for the tool %q (%s).\n", t.Name, t.Description)
	fmt.Fprintf(&b, "Intent: %s\n", req.Intent)
	if req.Task != "" {
		fmt.Fprintf(&b, "Task: %s\n", req.Task)
	}
	if req.Instructions != "" {
		fmt.Fprintf(&b, "Instructions: %s\n", req.Instructions)
	}
	if len(req.Params) > 0 {
		keys := make([]string, 0, len(req.Params))
		for k := range req.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("Existing parameters:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %s\n", k, req.Params[k])
		}
	}
	if len(s.Required) > 0 {
		fmt.Fprintf(&b, "The object must include: %s\n", strings.Join(s.Required, ", "))
	}
	b.WriteString("Respond with a single flat JSON object mapping parameter names to string values and nothing else.")
	return b.String(), nil
}

// Enrich merges the generated parameters over the request's existing ones.
func (s JSONParamStrategy) Enrich(req tool.Request, params map[string]string) (tool.Request, error) {
	for _, name := range s.Required {
		if _, ok := params[name]; !ok {
			return tool.Request{}, fmt.Errorf("model omitted required parameter %q", name)
		}
	}
	return req.WithParams(params), nil
}
