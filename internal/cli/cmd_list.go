package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newListCmd creates the list command
func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tracks",
		Long: `List all tracks in the current project.

Example:
  trk list`,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace()
			if err != nil {
				return err
			}

			tracks, err := w.store.ListTracks()
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(tracks)
			}

			if len(tracks) == 0 {
				fmt.Println("No tracks found. Start one with: trk start plan.yaml")
				return nil
			}

			active, err := w.store.Active()
			if err != nil {
				return err
			}

			// Leave room for the fixed columns; the title takes the rest.
			titleWidth := terminalWidth(100) - 44
			if titleWidth < 20 {
				titleWidth = 20
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tTITLE")
			fmt.Fprintln(tw, "──\t──────\t───────\t─────")
			for _, t := range tracks {
				id := t.ID
				if t.ID == active {
					id += " *"
				}
				fmt.Fprintf(tw, "%s\t%s %s\t%s\t%s\n",
					id, statusIcon(t.Status), t.Status,
					t.CreatedAt.Format("2006-01-02"), truncate(t.Title, titleWidth))
			}
			return tw.Flush()
		},
	}
}
