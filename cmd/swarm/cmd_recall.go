package main

import (
	"context"
	"fmt"
	"strings"

	"swarm/pkg/bus"
	"swarm/pkg/memory"

	"github.com/spf13/cobra"
)

// formatRecallResults formats scored recall results for CLI output.
func formatRecallResults(results []memory.ScoredEntry) string {
	if len(results) == 0 {
		return "No relevant knowledge found.\n"
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, r.Entry.Type, r.Entry.Learnings)
		fmt.Fprintf(&b, "   score: %.4f | task: %s | tags: %s | stored: %s\n",
			r.Score, orDash(r.Entry.TaskType), orDash(strings.Join(r.Entry.Tags, ",")),
			r.Entry.Timestamp.Format("2006-01-02"))
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// newRecallCmdWithService creates the "swarm recall" subcommand wired to a
// memory service. A nil service opens the store named by --db at run time.
func newRecallCmdWithService(svc *memory.Service) *cobra.Command {
	var (
		dbPath   string
		taskType string
		tags     []string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "recall <query>",
		Short: "Retrieve relevant knowledge",
		Long:  "Search the knowledge base by description, task type, and tags.\nResults are ranked by recency, tag overlap, and text relevance.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			if svc == nil {
				db, events, learnings, err := openStores(ctx, dbPath)
				if err != nil {
					return fmt.Errorf("recall: %w", err)
				}
				defer func() { _ = db.Close() }()
				b := bus.New(events, nil, nil)
				defer b.Close()
				svc = memory.NewService(learnings, b, "cli", nil)
			}

			results, err := svc.RecallRelevantKnowledge(ctx, memory.Context{
				TaskType:    taskType,
				Tags:        tags,
				Description: strings.Join(args, " "),
			}, limit)
			if err != nil {
				return fmt.Errorf("recall: %w", err)
			}

			fmt.Fprint(cmd.OutOrStdout(), formatRecallResults(results))
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "swarm.db", "path to the SQLite database")
	cmd.Flags().StringVar(&taskType, "task-type", "", "restrict relevance to a task type")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag to match (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", 5, "maximum results")
	return cmd
}

// newRecallCmd creates the "swarm recall" subcommand.
func newRecallCmd() *cobra.Command {
	return newRecallCmdWithService(nil)
}
