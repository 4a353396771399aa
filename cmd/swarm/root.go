package main

import (
	"fmt"

	"swarm/internal/version"

	"github.com/spf13/cobra"
)

// newRootCmd creates the root swarm command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "swarm",
		Short:         "Autonomous agent runtime",
		Long:          "swarm is the single entry point for the agent runtime.\nIt manages the work loop, the event log, and the knowledge store.",
		Version:       fmt.Sprintf("swarm %s", version.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.AddCommand(
		newRunCmd(),
		newEventsCmd(),
		newRememberCmd(),
		newRecallCmd(),
		newBatchCmd(),
		newStatusCmd(),
	)

	return cmd
}
