package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/trkhq/trk/internal/config"
	"github.com/trkhq/trk/internal/db"
	"github.com/trkhq/trk/internal/store"
)

// newInitCmd creates the init command
func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize trk in current directory",
		Long: `Initialize trk in the current directory.

Creates the .trk directory with a default config, an empty track index, and
the audit database.

Examples:
  trk init            # Initialize
  trk init --force    # Reinitialize, keeping existing tracks`,
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")

			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}

			if err := config.Init(cwd, force); err != nil {
				return err
			}

			audit, err := db.Open(filepath.Join(cwd, store.TrkDir, db.FileName))
			if err != nil {
				return err
			}
			defer audit.Close()

			if !quiet {
				fmt.Printf("Initialized trk in %s\n", filepath.Join(cwd, store.TrkDir))
				fmt.Println("\nNext: start a track with: trk start plan.yaml")
			}
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "Reinitialize an existing project")

	return cmd
}
