package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/trkhq/trk/internal/db"
	trkerrors "github.com/trkhq/trk/internal/errors"
)

// newVerifyCmd creates the verify command
func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <phase>",
		Short: "Record manual verification of a phase",
		Long: `Record manual verification of a phase.

A phase that declares verify: true in its plan document does not roll up to
done until it is verified, even when every task is finished. Reverting the
phase clears the verification.

Examples:
  trk verify P1
  trk verify TRK-002/P1`,
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
			if !ref.IsPhase() {
				return trkerrors.ErrUnitNotFound(ref.String()).WithCause(
					fmt.Errorf("verification applies to phases, not to %s", ref))
			}

			t, err := w.store.Load(ref.Track)
			if err != nil {
				return err
			}
			phase, _, err := t.Resolve(ref)
			if err != nil {
				return trkerrors.ErrUnitNotFound(ref.String()).WithCause(err)
			}
			if !phase.VerifyRequired {
				return fmt.Errorf("phase %s does not require verification", ref)
			}

			phase.Verify(time.Now().UTC())
			if err := w.store.Save(t); err != nil {
				return err
			}

			if audit, err := w.openDB(); err == nil {
				defer audit.Close()
				_ = audit.SaveEvent(context.Background(), &db.Event{
					TrackID: ref.Track, Unit: ref.String(), EventType: db.EventPhaseVerified,
				})
			}

			if !quiet {
				fmt.Printf("Verified %s (%s is now %s)\n", ref, ref, statusLabel(phase.Status))
			}
			return nil
		},
	}

	return cmd
}
