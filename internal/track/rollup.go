package track

import (
	trkerrors "github.com/trkhq/trk/internal/errors"
)

// Recompute derives phase and track statuses bottom-up from task statuses.
// Tasks are never touched. The function is deterministic and idempotent:
// calling it twice in a row yields the same tree. Derived statuses are the
// only statuses; there is no cached value that can drift.
func Recompute(t *Track) {
	for i := range t.Phases {
		t.Phases[i].Status = phaseStatus(&t.Phases[i])
	}
	t.Status = trackStatus(t)
}

func phaseStatus(p *Phase) Status {
	if p.Reverted {
		return StatusReverted
	}

	allSettled := len(p.Tasks) > 0
	anyProgress := false
	for i := range p.Tasks {
		switch p.Tasks[i].Status {
		case StatusDone:
			anyProgress = true
		case StatusSkipped:
			// settled but not progress on its own
		case StatusInProgress:
			anyProgress = true
			allSettled = false
		default:
			allSettled = false
		}
	}

	if allSettled && (!p.VerifyRequired || p.VerifiedAt != nil) {
		return StatusDone
	}
	if anyProgress {
		return StatusInProgress
	}
	return StatusPending
}

func trackStatus(t *Track) Status {
	if t.Reverted {
		return StatusReverted
	}

	allDone := len(t.Phases) > 0
	anyProgress := false
	for i := range t.Phases {
		switch t.Phases[i].Status {
		case StatusDone:
			anyProgress = true
		case StatusInProgress:
			anyProgress = true
			allDone = false
		case StatusReverted:
			// a reverted phase keeps the track from completing
			allDone = false
		default:
			allDone = false
		}
	}

	if allDone {
		return StatusDone
	}
	if anyProgress {
		return StatusInProgress
	}
	return StatusPending
}

// Transition applies a forward status change to the task addressed by ref
// and recomputes derived statuses. Legal moves are pending→in_progress→done
// (stepping over in_progress is still forward) and →skipped from pending or
// in_progress. Backward moves are rejected; only the revert executor resets
// statuses. A task under a reverted phase cannot be marked done.
func Transition(t *Track, ref Ref, next Status) (*Task, error) {
	if !ref.IsTask() {
		return nil, trkerrors.ErrUnitNotFound(ref.String()).WithCause(
			errNotATask(ref))
	}
	if !IsValidStatus(next) || next == StatusReverted {
		return nil, trkerrors.ErrIllegalTransition(ref.String(), "", string(next))
	}

	phase, task, err := t.Resolve(ref)
	if err != nil {
		return nil, trkerrors.ErrUnitNotFound(ref.String()).WithCause(err)
	}

	cur := task.Status
	legal := false
	switch next {
	case StatusSkipped:
		legal = cur == StatusPending || cur == StatusInProgress
	default:
		legal = statusRank(cur) >= 0 && statusRank(next) > statusRank(cur)
	}
	if !legal {
		return nil, trkerrors.ErrIllegalTransition(ref.String(), string(cur), string(next))
	}

	if next == StatusDone && phase.Reverted {
		return nil, trkerrors.ErrIllegalTransition(ref.String(), string(cur), string(next))
	}

	task.Status = next
	Recompute(t)
	return task, nil
}

type refError string

func (e refError) Error() string { return string(e) }

func errNotATask(r Ref) error {
	return refError("ref " + r.String() + " does not address a task")
}
