package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"swarm/pkg/human"
	"swarm/pkg/knowledge"
	"swarm/pkg/memory"
	"swarm/pkg/tool"
)

// builtinTools returns the local tools every agent carries: knowledge store
// and recall, plus human escalation.
func builtinTools(recall *memory.Service, humans *human.Registry) []tool.Tool {
	return []tool.Tool{
		{
			ID:          "remember",
			Name:        "remember",
			Description: "Store a learning in the knowledge base",
			Autonomy:    tool.AutonomyFull,
			Family:      tool.FamilyLocal,
			Run: func(ctx context.Context, req tool.Request) (string, error) {
				e := knowledge.Entry{
					Type:      knowledge.Type(req.Params["type"]),
					Approach:  req.Params["approach"],
					Learnings: req.Params["learnings"],
					TaskType:  req.Params["task_type"],
					Tags:      splitTags(req.Params["tags"]),
					SourceID:  req.Ticket,
				}
				if e.Type == "" {
					e.Type = knowledge.TypeTask
				}
				id, err := recall.StoreKnowledge(ctx, e)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("stored knowledge entry %d", id), nil
			},
		},
		{
			ID:          "recall",
			Name:        "recall",
			Description: "Retrieve knowledge relevant to the current task",
			Autonomy:    tool.AutonomyFull,
			Family:      tool.FamilyLocal,
			Run: func(ctx context.Context, req tool.Request) (string, error) {
				results, err := recall.RecallRelevantKnowledge(ctx, memory.Context{
					TaskType:    req.Params["task_type"],
					Tags:        splitTags(req.Params["tags"]),
					Description: req.Params["query"],
				}, 5)
				if err != nil {
					return "", err
				}
				if len(results) == 0 {
					return "no relevant knowledge", nil
				}
				var b strings.Builder
				for i, r := range results {
					fmt.Fprintf(&b, "%d. [%s] %s (score %.2f)\n", i+1, r.Entry.Type, r.Entry.Learnings, r.Score)
				}
				return b.String(), nil
			},
		},
		{
			ID:          "ask-human",
			Name:        "ask-human",
			Description: "Escalate a question to a person and wait for the answer",
			Autonomy:    tool.AutonomySupervised,
			Family:      tool.FamilyLocal,
			Run: func(ctx context.Context, req tool.Request) (string, error) {
				question := req.Params["question"]
				if question == "" {
					question = req.Intent
				}
				var timeout time.Duration
				if raw := req.Params["timeout"]; raw != "" {
					d, err := time.ParseDuration(raw)
					if err != nil {
						return "", fmt.Errorf("bad timeout %q: %w", raw, err)
					}
					timeout = d
				}
				return humans.Ask(ctx, req.Ticket, question, timeout)
			},
		},
	}
}

// splitTags parses a comma-separated tag list.
func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
