package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trkhq/trk/internal/db"
	"github.com/trkhq/trk/internal/track"
)

// newSetCmd creates the set command
func newSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <task> <status>",
		Short: "Set a task's status",
		Long: `Set a task's status.

Tasks move forward only: pending, in_progress, done. A task can be skipped
from pending or in_progress. Phase and track statuses are derived and cannot
be set directly; reverted is applied only by trk revert.

Examples:
  trk set P1/T1 in_progress
  trk set P1/T1 done
  trk set P1/T2 skipped`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace()
			if err != nil {
				return err
			}
			release, err := w.lockMutations()
			if err != nil {
				return err
			}
			defer release()

			ref, err := w.resolveRef(args[0])
			if err != nil {
				return err
			}

			next := track.Status(strings.ToLower(args[1]))
			if !track.IsValidStatus(next) {
				return fmt.Errorf("unknown status %q (valid: %s)", args[1], statusList())
			}

			t, err := w.store.Load(ref.Track)
			if err != nil {
				return err
			}
			task, err := track.Transition(t, ref, next)
			if err != nil {
				return err
			}
			if err := w.store.Save(t); err != nil {
				return err
			}

			if audit, err := w.openDB(); err == nil {
				defer audit.Close()
				_ = audit.SaveEvent(context.Background(), &db.Event{
					TrackID: ref.Track, Unit: ref.String(),
					EventType: db.EventStatusChanged,
					Data:      map[string]any{"to": string(next)},
				})
			}

			if jsonOut {
				return printJSON(task)
			}
			if !quiet {
				fmt.Printf("%s %s is now %s\n", statusIcon(next), ref, statusLabel(next))
			}
			return nil
		},
	}

	return cmd
}

func statusList() string {
	var names []string
	for _, s := range track.ValidStatuses() {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}
