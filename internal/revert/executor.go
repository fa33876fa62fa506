package revert

import (
	"context"
	"errors"
	"log/slog"

	trkerrors "github.com/trkhq/trk/internal/errors"
	"github.com/trkhq/trk/internal/git"
	"github.com/trkhq/trk/internal/ledger"
	"github.com/trkhq/trk/internal/store"
	"github.com/trkhq/trk/internal/track"
)

// Step records one executed revert: the original commit and the inverse
// commit git created for it.
type Step struct {
	Commit  string `json:"commit" yaml:"commit"`
	Inverse string `json:"inverse" yaml:"inverse"`
}

// Result summarizes a completed execution.
type Result struct {
	Target     string `json:"target" yaml:"target"`
	StepsDone  int    `json:"steps_done" yaml:"steps_done"`
	StepsTotal int    `json:"steps_total" yaml:"steps_total"`
	Steps      []Step `json:"steps" yaml:"steps"`
}

// Executor applies revert plans. Execution is strictly sequential: each
// commit is reverted and marked in the ledger before the next one starts, so
// a halt at any step leaves the working tree and the ledger agreeing on
// exactly how far the revert got.
type Executor struct {
	store   *store.Store
	ledger  *ledger.Ledger
	backend git.Backend
	logger  *slog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(s *store.Store, l *ledger.Ledger, b git.Backend, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{store: s, ledger: l, backend: b, logger: logger}
}

// Execute runs the plan. On a conflict or backend failure mid-plan it stops
// immediately and returns a partial-revert error naming the failed commit;
// commits already reverted stay reverted and stay marked in the ledger.
// Cancellation is honored between steps, never in the middle of one.
func (e *Executor) Execute(ctx context.Context, plan *Plan) (*Result, error) {
	target, err := track.ParseRef(plan.Target)
	if err != nil {
		return nil, trkerrors.ErrUnitNotFound(plan.Target).WithCause(err)
	}

	head, err := e.backend.CurrentHead(ctx)
	if err != nil {
		return nil, trkerrors.ErrBackendUnavailable("rev-parse", err)
	}
	if head != plan.Head {
		return nil, trkerrors.ErrBackendUnavailable("revert",
			errStaleHead{planned: plan.Head, actual: head})
	}

	res := &Result{Target: plan.Target, StepsTotal: len(plan.Commits)}
	for _, commit := range plan.Commits {
		select {
		case <-ctx.Done():
			return res, trkerrors.ErrPartialRevert(plan.Target, commit, res.StepsDone, res.StepsTotal).
				WithCause(ctx.Err())
		default:
		}

		e.logger.Info("reverting commit", "target", plan.Target, "commit", commit,
			"step", res.StepsDone+1, "of", res.StepsTotal)

		if err := e.backend.RevertCommit(ctx, commit); err != nil {
			if !errors.Is(err, git.ErrRevertConflict) {
				err = trkerrors.ErrBackendUnavailable("revert", err)
			}
			return res, trkerrors.ErrPartialRevert(plan.Target, commit, res.StepsDone, res.StepsTotal).
				WithCause(err)
		}

		inverse, err := e.backend.CurrentHead(ctx)
		if err != nil {
			// The revert itself landed; record it without the inverse SHA
			// rather than lose the marker.
			e.logger.Warn("could not read inverse commit", "commit", commit, "error", err)
			inverse = ""
		}
		if err := e.ledger.MarkRevertedOne(target.Track, commit, inverse); err != nil {
			return res, trkerrors.ErrPartialRevert(plan.Target, commit, res.StepsDone, res.StepsTotal).
				WithCause(err)
		}

		res.Steps = append(res.Steps, Step{Commit: commit, Inverse: inverse})
		res.StepsDone++
	}

	if err := e.applyResets(target, plan.ResetUnits); err != nil {
		return res, err
	}
	return res, nil
}

// applyResets rolls the plan state back after every commit reverted cleanly:
// descendant tasks return to pending, phases that lost a task lose their
// verification stamp, and a targeted phase or track gets the forced reverted
// marker.
func (e *Executor) applyResets(target track.Ref, units []string) error {
	t, err := e.store.Load(target.Track)
	if err != nil {
		return err
	}

	touchedPhases := make(map[string]bool)
	for _, u := range units {
		ref, err := track.ParseRef(u)
		if err != nil {
			return trkerrors.ErrUnitNotFound(u).WithCause(err)
		}
		phase, task, err := t.Resolve(ref)
		if err != nil {
			return trkerrors.ErrUnitNotFound(u).WithCause(err)
		}
		switch {
		case task != nil:
			task.Status = track.StatusPending
			touchedPhases[phase.ID] = true
		case phase != nil:
			phase.Reverted = true
			touchedPhases[phase.ID] = true
		default:
			t.Reverted = true
		}
	}
	for id := range touchedPhases {
		if p := t.FindPhase(id); p != nil {
			p.VerifiedAt = nil
		}
	}

	track.Recompute(t)
	return e.store.Save(t)
}

type errStaleHead struct {
	planned, actual string
}

func (e errStaleHead) Error() string {
	return "branch head moved since the plan was computed (planned at " +
		e.planned + ", now at " + e.actual + "); re-plan before executing"
}
