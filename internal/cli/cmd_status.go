package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	trkerrors "github.com/trkhq/trk/internal/errors"
	"github.com/trkhq/trk/internal/track"
)

// newStatusCmd creates the status command
func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "status [unit]",
		Aliases: []string{"st"},
		Short:   "Show track status",
		Long: `Show the derived status of a track, phase or task.

Without arguments, shows the active track. Statuses are recomputed from the
document on every read; what you see is always consistent with the tasks.

Examples:
  trk status                # Active track
  trk status TRK-002        # Specific track
  trk status P1             # One phase of the active track`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace()
			if err != nil {
				return err
			}

			var ref track.Ref
			if len(args) == 1 {
				ref, err = w.resolveRef(args[0])
				if err != nil {
					return err
				}
			} else {
				active, err := w.store.Active()
				if err != nil {
					return err
				}
				if active == "" {
					fmt.Println("No active track. Start one with: trk start plan.yaml")
					return nil
				}
				ref = track.Ref{Track: active}
			}

			t, err := w.store.Load(ref.Track)
			if err != nil {
				return err
			}
			phase, task, err := t.Resolve(ref)
			if err != nil {
				return trkerrors.ErrUnitNotFound(ref.String()).WithCause(err)
			}

			if jsonOut {
				switch {
				case task != nil:
					return printJSON(task)
				case phase != nil:
					return printJSON(phase)
				default:
					return printJSON(t)
				}
			}

			switch {
			case task != nil:
				printTask(ref, task)
			case phase != nil:
				printPhase(t.ID, phase)
			default:
				printTrack(t)
			}
			return nil
		},
	}

	return cmd
}

func printTask(ref track.Ref, task *track.Task) {
	fmt.Printf("%s %s  %s  %s\n", statusIcon(task.Status), ref, statusLabel(task.Status), task.Title)
	for _, c := range task.Commits {
		fmt.Printf("    %s\n", styled(dimStyle, shortSHA(c)))
	}
}

func printPhase(trackID string, phase *track.Phase) {
	header := fmt.Sprintf("%s %s/%s  %s  %s",
		statusIcon(phase.Status), trackID, phase.ID, statusLabel(phase.Status), phase.Title)
	fmt.Println(styled(headerStyle, header))
	if phase.VerifyRequired {
		if phase.VerifiedAt != nil {
			fmt.Printf("    verified %s\n", phase.VerifiedAt.Format("2006-01-02 15:04"))
		} else {
			fmt.Println("    verification pending")
		}
	}
	for i := range phase.Tasks {
		task := &phase.Tasks[i]
		fmt.Printf("  %s %s  %s  %s\n",
			statusIcon(task.Status), task.ID, statusLabel(task.Status), truncate(task.Title, 50))
	}
}

func printTrack(t *track.Track) {
	header := fmt.Sprintf("%s %s  %s  %s", statusIcon(t.Status), t.ID, statusLabel(t.Status), t.Title)
	fmt.Println(styled(headerStyle, header))
	for i := range t.Phases {
		fmt.Println()
		printPhase(t.ID, &t.Phases[i])
	}
}
