package main

import (
	"context"
	"fmt"
	"time"

	"swarm/pkg/event"
	"swarm/pkg/eventstore"

	"github.com/spf13/cobra"
)

// formatEvents renders events one per line, oldest first.
func formatEvents(events []event.Event) string {
	if len(events) == 0 {
		return "No events.\n"
	}
	out := ""
	for _, e := range events {
		out += fmt.Sprintf("%s  %-22s %-10s %s\n",
			e.Timestamp.Format(time.RFC3339), e.Type, e.Urgency, e.Source)
	}
	return out
}

// newEventsCmdWithStore creates the "swarm events" subcommand wired to an
// event store. A nil store opens the database named by --db at run time.
func newEventsCmdWithStore(store *eventstore.Store) *cobra.Command {
	var (
		dbPath    string
		eventType string
		source    string
		since     time.Duration
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Query the event log",
		Long:  "List recorded events, optionally restricted by type, source,\nand a lookback window.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()

			if store == nil {
				db, events, _, err := openStores(ctx, dbPath)
				if err != nil {
					return fmt.Errorf("events: %w", err)
				}
				defer func() { _ = db.Close() }()
				store = events
			}

			var (
				results []event.Event
				err     error
			)
			if since > 0 {
				var types, sources []string
				if eventType != "" {
					types = []string{eventType}
				}
				if source != "" {
					sources = []string{source}
				}
				now := time.Now().UTC()
				results, err = store.BetweenFiltered(ctx, now.Add(-since), now, types, sources)
			} else if eventType != "" {
				results, err = store.ByType(ctx, eventType, limit)
				reverse(results)
			} else {
				results, err = store.All(ctx, limit)
				reverse(results)
			}
			if err != nil {
				return fmt.Errorf("events: %w", err)
			}

			fmt.Fprint(cmd.OutOrStdout(), formatEvents(results))
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "swarm.db", "path to the SQLite database")
	cmd.Flags().StringVar(&eventType, "type", "", "only events of this type")
	cmd.Flags().StringVar(&source, "source", "", "only events from this source (with --since)")
	cmd.Flags().DurationVar(&since, "since", 0, "lookback window, e.g. 24h")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum events without --since")
	return cmd
}

// reverse flips newest-first listings into display order.
func reverse(events []event.Event) {
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
}

// newEventsCmd creates the "swarm events" subcommand.
func newEventsCmd() *cobra.Command {
	return newEventsCmdWithStore(nil)
}
