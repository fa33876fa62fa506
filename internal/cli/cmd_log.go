package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/trkhq/trk/internal/db"
)

// newLogCmd creates the log command
func newLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log [unit]",
		Short: "Show the audit trail",
		Long: `Show the audit trail of recorded commits, status changes, verifications
and reverts, newest first.

The trail lives in the .trk/trk.db mirror; --rebuild regenerates the commit
events from the JSONL ledgers when the database was lost or diverged.

Examples:
  trk log                      # Everything, newest first
  trk log P1                   # One phase and its tasks
  trk log --type commit_reverted
  trk log --limit 20
  trk log --rebuild`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			types, _ := cmd.Flags().GetStringSlice("type")
			limit, _ := cmd.Flags().GetInt("limit")
			rebuild, _ := cmd.Flags().GetBool("rebuild")

			w, err := openWorkspace()
			if err != nil {
				return err
			}
			audit, err := w.openDB()
			if err != nil {
				return err
			}
			defer audit.Close()

			ctx := cmd.Context()
			if rebuild {
				if err := rebuildAudit(cmd, w, audit); err != nil {
					return err
				}
			}

			opts := db.QueryOptions{EventTypes: types, Limit: limit}
			if len(args) == 1 {
				ref, err := w.resolveRef(args[0])
				if err != nil {
					return err
				}
				opts.UnitPrefix = ref.String()
			}

			events, err := audit.QueryEvents(ctx, opts)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(events)
			}
			if len(events) == 0 {
				fmt.Println("No events.")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tEVENT\tUNIT\tCOMMIT")
			for _, e := range events {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					e.CreatedAt.Format("2006-01-02 15:04:05"),
					e.EventType, e.Unit, shortSHA(e.Commit))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringSlice("type", nil, "Filter by event type")
	cmd.Flags().Int("limit", 50, "Maximum events to show (0 for all)")
	cmd.Flags().Bool("rebuild", false, "Rebuild commit events from the JSONL ledgers first")

	return cmd
}

// rebuildAudit regenerates commit events from the per-track ledgers. Only
// ledger-derived event types are replaced; the ledger is the sole source of
// truth for those.
func rebuildAudit(cmd *cobra.Command, w *workspace, audit *db.DB) error {
	ids, err := w.store.TrackIDs()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	for _, id := range ids {
		entries, err := w.ledger.Entries(id)
		if err != nil {
			return err
		}

		events := make([]db.Event, 0, len(entries))
		for _, e := range entries {
			ev := db.Event{
				Unit:      e.Unit,
				Commit:    e.Commit,
				CreatedAt: e.RecordedAt,
			}
			if e.Reverted {
				ev.EventType = db.EventCommitReverted
				if e.Inverse != "" {
					ev.Data = map[string]any{"inverse": e.Inverse}
				}
			} else {
				ev.EventType = db.EventCommitRecorded
				ev.Data = map[string]any{"seq": e.Seq, "global_seq": e.GlobalSeq}
			}
			events = append(events, ev)
		}

		if err := audit.ReplaceTrackEvents(ctx, id, events); err != nil {
			return err
		}
	}

	if !quiet {
		fmt.Printf("Rebuilt audit trail for %d track(s)\n", len(ids))
	}
	return nil
}
