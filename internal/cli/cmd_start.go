package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/trkhq/trk/internal/db"
	"github.com/trkhq/trk/internal/track"
)

// newStartCmd creates the start command
func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <plan.yaml>",
		Short: "Start a new track from a plan document",
		Long: `Start a new track from a plan document.

The plan document declares the phases and tasks of the track. All units start
pending; the new track becomes the active track unless --no-activate is set.

Example plan document:
  title: Auth rework
  phases:
    - id: P1
      title: Backend
      verify: true
      tasks:
        - id: T1
          title: Session storage

Examples:
  trk start plan.yaml
  trk start plan.yaml --title "Auth rework v2"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title, _ := cmd.Flags().GetString("title")
			noActivate, _ := cmd.Flags().GetBool("no-activate")

			w, err := openWorkspace()
			if err != nil {
				return err
			}
			release, err := w.lockMutations()
			if err != nil {
				return err
			}
			defer release()

			doc, err := track.LoadPlanDoc(args[0])
			if err != nil {
				return err
			}
			if title != "" {
				doc.Title = title
			}

			id, err := w.store.Sequences().NextID()
			if err != nil {
				return fmt.Errorf("allocate track id: %w", err)
			}

			t := doc.Materialize(id, time.Now().UTC())
			if err := w.store.Save(t); err != nil {
				return err
			}
			if !noActivate {
				if err := w.store.SetActive(id); err != nil {
					return err
				}
			}

			if audit, err := w.openDB(); err == nil {
				defer audit.Close()
				_ = audit.SaveEvent(context.Background(), &db.Event{
					TrackID: id, Unit: id, EventType: db.EventTrackCreated,
					Data: map[string]any{"title": t.Title, "phases": len(t.Phases)},
				})
			}

			if jsonOut {
				return printJSON(t.Summarize())
			}
			if !quiet {
				fmt.Printf("Started %s: %s (%d phases)\n", id, t.Title, len(t.Phases))
				if !noActivate {
					fmt.Printf("%s is now the active track\n", id)
				}
			}
			return nil
		},
	}

	cmd.Flags().String("title", "", "Override the plan document title")
	cmd.Flags().Bool("no-activate", false, "Do not make the new track active")

	return cmd
}
