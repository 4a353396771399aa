package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// typeCount is one row of the event summary.
type typeCount struct {
	Type  string
	Count int
}

// eventSummary aggregates the event log by type, most frequent first.
func eventSummary(ctx context.Context, db *sql.DB) ([]typeCount, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT event_type, COUNT(*) FROM events
		 GROUP BY event_type ORDER BY COUNT(*) DESC, event_type ASC`)
	if err != nil {
		return nil, fmt.Errorf("summarize events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []typeCount
	for rows.Next() {
		var tc typeCount
		if err := rows.Scan(&tc.Type, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// lastEventTime returns the newest event timestamp, or zero when empty.
func lastEventTime(ctx context.Context, db *sql.DB) (time.Time, error) {
	var millis sql.NullInt64
	err := db.QueryRowContext(ctx, "SELECT MAX(timestamp) FROM events").Scan(&millis)
	if err != nil {
		return time.Time{}, fmt.Errorf("last event: %w", err)
	}
	if !millis.Valid {
		return time.Time{}, nil
	}
	return time.UnixMilli(millis.Int64).UTC(), nil
}

// newStatusCmd creates the "swarm status" subcommand.
func newStatusCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Summarize recorded activity",
		Long:  "Show event counts by type and the time of the last recorded event.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()

			db, _, _, err := openStores(ctx, dbPath)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			defer func() { _ = db.Close() }()

			summary, err := eventSummary(ctx, db)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			last, err := lastEventTime(ctx, db)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}

			var entries int
			if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM knowledge").Scan(&entries); err != nil {
				return fmt.Errorf("status: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(summary) == 0 {
				fmt.Fprintf(out, "No recorded activity. Knowledge entries: %d\n", entries)
				return nil
			}
			total := 0
			for _, tc := range summary {
				fmt.Fprintf(out, "%-22s %d\n", tc.Type, tc.Count)
				total += tc.Count
			}
			fmt.Fprintf(out, "total: %d, last event: %s\n", total, last.Format(time.RFC3339))
			fmt.Fprintf(out, "knowledge entries: %d\n", entries)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "swarm.db", "path to the SQLite database")
	return cmd
}
