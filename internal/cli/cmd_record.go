package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trkhq/trk/internal/db"
	trkerrors "github.com/trkhq/trk/internal/errors"
	"github.com/trkhq/trk/internal/track"
)

// newRecordCmd creates the record command
func newRecordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record <task> <commit>",
		Short: "Attribute a commit to a task",
		Long: `Attribute a git commit to a task.

Each commit belongs to exactly one task across all tracks; recording the same
commit twice is rejected and names the owning task. A pending task moves to
in_progress on its first commit.

Examples:
  trk record P1/T1 3f2a91c
  trk record TRK-002/P1/T1 3f2a91c`,
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
			if !ref.IsTask() {
				return trkerrors.ErrUnitNotFound(ref.String()).WithCause(
					fmt.Errorf("commits attach to tasks, not to %s", ref))
			}
			commit := args[1]

			t, err := w.store.Load(ref.Track)
			if err != nil {
				return err
			}
			_, task, err := t.Resolve(ref)
			if err != nil {
				return trkerrors.ErrUnitNotFound(ref.String()).WithCause(err)
			}

			entry, err := w.ledger.Record(ref, commit)
			if err != nil {
				return err
			}

			task.Commits = append(task.Commits, commit)
			if task.Status == track.StatusPending {
				if _, err := track.Transition(t, ref, track.StatusInProgress); err != nil {
					return err
				}
			}
			if err := w.store.Save(t); err != nil {
				return err
			}

			if audit, err := w.openDB(); err == nil {
				defer audit.Close()
				_ = audit.SaveEvent(context.Background(), &db.Event{
					TrackID: ref.Track, Unit: ref.String(),
					EventType: db.EventCommitRecorded, Commit: commit,
					Data: map[string]any{"seq": entry.Seq, "global_seq": entry.GlobalSeq},
				})
			}

			if jsonOut {
				return printJSON(entry)
			}
			if !quiet {
				fmt.Printf("Recorded %s for %s (commit #%d)\n", shortSHA(commit), ref, entry.Seq)
			}
			return nil
		},
	}

	return cmd
}
