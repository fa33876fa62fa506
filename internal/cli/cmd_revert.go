package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/trkhq/trk/internal/db"
	trkerrors "github.com/trkhq/trk/internal/errors"
	"github.com/trkhq/trk/internal/revert"
)

// newRevertCmd creates the revert command
func newRevertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revert <unit>",
		Short: "Revert a unit of work",
		Long: `Revert a task, phase or whole track.

Computes the commits recorded for the unit, checks that no later work outside
the unit touched the same files, then reverts commit by commit, newest first.
Each reverted commit is marked in the ledger before the next one starts, so
an interrupted revert never loses its place. Tasks return to pending; a
reverted phase or track keeps the reverted marker until trk reopen.

Examples:
  trk revert P1/T2             # Revert one task
  trk revert TRK-001/P1        # Revert a whole phase
  trk revert P1 --plan         # Show the plan without executing
  trk revert P1 --force --yes  # Revert through dependent-work conflicts`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			planOnly, _ := cmd.Flags().GetBool("plan")
			force, _ := cmd.Flags().GetBool("force")
			yes, _ := cmd.Flags().GetBool("yes")
			ignore, _ := cmd.Flags().GetStringSlice("ignore")

			w, err := openWorkspace()
			if err != nil {
				return err
			}
			ref, err := w.resolveRef(args[0])
			if err != nil {
				return err
			}
			if !planOnly {
				release, err := w.lockMutations()
				if err != nil {
					return err
				}
				defer release()
			}

			ctx := cmd.Context()
			backend := w.gitBackend()

			ignorePaths := append(ignore, w.cfg.Revert.IgnorePaths...)
			planner := revert.NewPlanner(w.store, w.ledger, backend)
			plan, err := planner.Plan(ctx, ref, revert.Options{Force: force, IgnorePaths: ignorePaths})
			if err != nil {
				return err
			}

			if planOnly {
				if jsonOut {
					return printJSON(plan)
				}
				printPlan(plan)
				return nil
			}

			if len(plan.Commits) == 0 {
				if err := executeAndReset(ctx, w, plan); err != nil {
					return err
				}
				if !quiet {
					fmt.Printf("No commits recorded for %s; reset state only\n", ref)
				}
				return nil
			}

			if w.cfg.Revert.RequireCleanTree {
				clean, err := backend.IsClean(ctx)
				if err != nil {
					return trkerrors.ErrBackendUnavailable("status", err)
				}
				if !clean {
					return trkerrors.ErrBackendUnavailable("revert",
						errors.New("working tree has uncommitted changes"))
				}
			}

			// A forced plan always shows its conflicts before executing.
			if !yes || plan.Forced {
				printPlan(plan)
			}
			if !yes {
				if !confirm(fmt.Sprintf("Revert %d commit(s)?", len(plan.Commits))) {
					fmt.Println("Aborted.")
					return nil
				}
			}

			return executeAndReset(ctx, w, plan)
		},
	}

	cmd.Flags().Bool("plan", false, "Show the plan without executing it")
	cmd.Flags().Bool("force", false, "Plan through dependent-work conflicts")
	cmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	cmd.Flags().StringSlice("ignore", nil, "Extra glob patterns exempt from conflict detection")

	return cmd
}

func executeAndReset(ctx context.Context, w *workspace, plan *revert.Plan) error {
	audit, auditErr := w.openDB()
	if auditErr == nil {
		defer audit.Close()
	}
	logEvent := func(e *db.Event) {
		if auditErr != nil {
			return
		}
		e.TrackID = trackOf(plan.Target)
		_ = audit.SaveEvent(ctx, e)
	}

	logEvent(&db.Event{Unit: plan.Target, EventType: db.EventRevertStarted,
		Data: map[string]any{"plan_id": plan.ID, "commits": len(plan.Commits), "forced": plan.Forced}})

	ex := revert.NewExecutor(w.store, w.ledger, w.gitBackend(), slog.Default())
	res, err := ex.Execute(ctx, plan)
	if res != nil {
		for _, step := range res.Steps {
			logEvent(&db.Event{Unit: plan.Target, EventType: db.EventCommitReverted,
				Commit: step.Commit, Data: map[string]any{"inverse": step.Inverse}})
		}
	}
	if err != nil {
		logEvent(&db.Event{Unit: plan.Target, EventType: db.EventRevertHalted,
			Data: map[string]any{"plan_id": plan.ID, "steps_done": stepsDone(res)}})
		return err
	}

	logEvent(&db.Event{Unit: plan.Target, EventType: db.EventRevertComplete,
		Data: map[string]any{"plan_id": plan.ID, "steps_done": res.StepsDone}})

	if jsonOut {
		return printJSON(res)
	}
	if !quiet {
		fmt.Printf("Reverted %s: %d commit(s) undone, %d unit(s) reset\n",
			plan.Target, res.StepsDone, len(plan.ResetUnits))
	}
	return nil
}

func printPlan(plan *revert.Plan) {
	fmt.Println(styled(headerStyle, fmt.Sprintf("Revert plan for %s", plan.Target)))
	if plan.Forced {
		fmt.Println(styled(revertedStyle, "forced: ignoring dependent-work conflicts"))
	}

	if len(plan.Commits) == 0 {
		fmt.Println("\nNo commits to revert; only plan state resets.")
	} else {
		fmt.Printf("\nCommits to revert (newest first, from head %s):\n", shortSHA(plan.Head))
		for _, c := range plan.Commits {
			fmt.Printf("  %s\n", shortSHA(c))
		}
	}

	fmt.Println("\nUnits reset:")
	for _, u := range plan.ResetUnits {
		fmt.Printf("  %s\n", u)
	}

	if len(plan.Conflicts) > 0 {
		fmt.Println("\nConflicts:")
		for _, c := range plan.Conflicts {
			fmt.Printf("  %s at %s: %v\n", c.Unit, shortSHA(c.Commit), c.Files)
		}
	}
}

func trackOf(target string) string {
	for i := 0; i < len(target); i++ {
		if target[i] == '/' {
			return target[:i]
		}
	}
	return target
}

func stepsDone(res *revert.Result) int {
	if res == nil {
		return 0
	}
	return res.StepsDone
}
