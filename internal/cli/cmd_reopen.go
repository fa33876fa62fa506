package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trkhq/trk/internal/db"
	trkerrors "github.com/trkhq/trk/internal/errors"
)

// newReopenCmd creates the reopen command
func newReopenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reopen <unit>",
		Short: "Clear the reverted marker from a phase or track",
		Long: `Clear the reverted marker so work on the unit can resume.

A reverted phase or track stays reverted regardless of its tasks until it is
reopened. Reopening does not touch git history or task statuses; it only
lifts the marker so the derived status follows the tasks again.

Examples:
  trk reopen P1
  trk reopen TRK-001`,
		Args: cobra.ExactArgs(1),
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
			if ref.IsTask() {
				return trkerrors.ErrUnitNotFound(ref.String()).WithCause(
					fmt.Errorf("tasks carry no reverted marker; reopen the phase or track"))
			}

			t, err := w.store.Load(ref.Track)
			if err != nil {
				return err
			}
			phase, _, err := t.Resolve(ref)
			if err != nil {
				return trkerrors.ErrUnitNotFound(ref.String()).WithCause(err)
			}

			switch {
			case phase != nil:
				if !phase.Reverted {
					return fmt.Errorf("phase %s is not reverted", ref)
				}
				phase.Reverted = false
			default:
				if !t.Reverted {
					return fmt.Errorf("track %s is not reverted", ref)
				}
				t.Reverted = false
			}
			if err := w.store.Save(t); err != nil {
				return err
			}

			if audit, err := w.openDB(); err == nil {
				defer audit.Close()
				_ = audit.SaveEvent(context.Background(), &db.Event{
					TrackID: ref.Track, Unit: ref.String(), EventType: db.EventUnitReopened,
				})
			}

			if !quiet {
				status := t.Status
				if phase != nil {
					status = phase.Status
				}
				fmt.Printf("Reopened %s (now %s)\n", ref, statusLabel(status))
			}
			return nil
		},
	}

	return cmd
}
