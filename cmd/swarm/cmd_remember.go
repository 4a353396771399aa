package main

import (
	"context"
	"fmt"
	"strings"

	"swarm/pkg/bus"
	"swarm/pkg/knowledge"
	"swarm/pkg/memory"

	"github.com/spf13/cobra"
)

// parseTypePrefix extracts a knowledge-type hint prefix from the text.
// Returns (type, remaining text); without a prefix the type defaults to task.
func parseTypePrefix(text string) (knowledge.Type, string) {
	prefixes := map[string]knowledge.Type{
		"idea:":       knowledge.TypeIdea,
		"outcome:":    knowledge.TypeOutcome,
		"perception:": knowledge.TypePerception,
		"plan:":       knowledge.TypePlan,
		"task:":       knowledge.TypeTask,
	}
	for prefix, kt := range prefixes {
		if strings.HasPrefix(text, prefix) {
			return kt, strings.TrimSpace(strings.TrimPrefix(text, prefix))
		}
	}
	return knowledge.TypeTask, text
}

// newRememberCmdWithService creates the "swarm remember" subcommand wired to
// a memory service. A nil service opens the store named by --db at run time.
func newRememberCmdWithService(svc *memory.Service) *cobra.Command {
	var (
		dbPath   string
		taskType string
		tags     []string
		approach string
	)

	cmd := &cobra.Command{
		Use:   "remember <text>",
		Short: "Store a learning",
		Long:  "Insert a learning into the knowledge base. Supports type hints via\nprefix (idea:, outcome:, perception:, plan:, task:). Default type: task.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			if svc == nil {
				db, events, learnings, err := openStores(ctx, dbPath)
				if err != nil {
					return fmt.Errorf("remember: %w", err)
				}
				defer func() { _ = db.Close() }()
				b := bus.New(events, nil, nil)
				defer b.Close()
				svc = memory.NewService(learnings, b, "cli", nil)
			}

			text := strings.Join(args, " ")
			kt, learnings := parseTypePrefix(text)

			id, err := svc.StoreKnowledge(ctx, knowledge.Entry{
				Type:      kt,
				Approach:  approach,
				Learnings: learnings,
				TaskType:  taskType,
				Tags:      tags,
			})
			if err != nil {
				return fmt.Errorf("remember: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Remembered (id=%d, type=%s): %s\n", id, kt, learnings)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "swarm.db", "path to the SQLite database")
	cmd.Flags().StringVar(&taskType, "task-type", "", "task type the learning applies to")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag for the learning (repeatable)")
	cmd.Flags().StringVar(&approach, "approach", "", "approach that was taken")
	return cmd
}

// newRememberCmd creates the "swarm remember" subcommand.
func newRememberCmd() *cobra.Command {
	return newRememberCmdWithService(nil)
}
