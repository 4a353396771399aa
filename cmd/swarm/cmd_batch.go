package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"swarm/pkg/batch"

	"github.com/spf13/cobra"
)

// planProvider records what a batch run would do without touching any
// tracker. Numbers are assigned sequentially so dependency order is visible
// in the transcript.
type planProvider struct {
	mu   sync.Mutex
	out  io.Writer
	next int
}

func (p *planProvider) CreateIssue(_ context.Context, repo string, node batch.Node, parent *int) (int, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	if parent != nil {
		fmt.Fprintf(p.out, "create #%d %s: %q (parent #%d)\n", p.next, node.LocalID, node.Title, *parent)
	} else {
		fmt.Fprintf(p.out, "create #%d %s: %q\n", p.next, node.LocalID, node.Title)
	}
	return p.next, fmt.Sprintf("%s/issues/%d", repo, p.next), nil
}

func (p *planProvider) LinkDependency(_ context.Context, _ string, from, to int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "link  #%d blocked by #%d\n", from, to)
	return nil
}

func (p *planProvider) SummarizeChildren(_ context.Context, _ string, parent int, children []int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "summarize #%d children %v\n", parent, children)
	return nil
}

// newBatchCmd creates the "swarm batch" subcommand group.
func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Work with batch issue files",
		Long:  "Validate and plan batches of linked issues described in YAML.\nIssues are created parents-first and dependencies-first.",
	}
	cmd.AddCommand(newBatchValidateCmd(), newBatchPlanCmd(), newBatchCreateCmd())
	return cmd
}

// newBatchValidateCmd creates "swarm batch validate".
func newBatchValidateCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a batch file for structural errors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := batch.LoadRequest(file)
			if err != nil {
				return fmt.Errorf("batch validate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: %d issues for %s\n", len(req.Issues), req.Repository)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "batch YAML file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// newBatchPlanCmd creates "swarm batch plan": a dry run that prints the
// creation order, links, and parent summaries the batch would produce.
func newBatchPlanCmd() *cobra.Command {
	return newBatchRunCmd("plan", "Show the creation order for a batch file", nil)
}

// newBatchCreateCmd creates "swarm batch create": the real run, creating
// issues through the gh CLI.
func newBatchCreateCmd() *cobra.Command {
	return newBatchRunCmd("create", "Create the batch's issues via the gh CLI", batch.NewGitHubProvider())
}

// newBatchRunCmd builds a batch subcommand around a provider; a nil provider
// means dry run.
func newBatchRunCmd(use, short string, provider batch.Provider) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := batch.LoadRequest(file)
			if err != nil {
				return fmt.Errorf("batch %s: %w", use, err)
			}

			out := cmd.OutOrStdout()
			p := provider
			if p == nil {
				p = &planProvider{out: out}
			}
			result := batch.NewCreator(p, nil).Create(cmd.Context(), req)

			for _, created := range result.Created {
				if created.URL != "" && provider != nil {
					fmt.Fprintf(out, "created #%d %s %s\n", created.ExternalNumber, created.LocalID, created.URL)
				}
			}
			for _, ie := range result.Errors {
				fmt.Fprintf(out, "error %s: %s\n", ie.LocalID, ie.Message)
			}
			fmt.Fprintf(out, "%d created, %d errors\n", len(result.Created), len(result.Errors))
			if !result.Success {
				return fmt.Errorf("batch %s: %d items failed", use, len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "batch YAML file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
