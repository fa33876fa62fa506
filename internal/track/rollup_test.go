package track

import (
	"errors"
	"testing"
	"time"

	trkerrors "github.com/trkhq/trk/internal/errors"
)

func testTrack() *Track {
	return &Track{
		ID:    "TRK-001",
		Title: "auth rework",
		Phases: []Phase{
			{
				ID:    "P1",
				Title: "backend",
				Tasks: []Task{
					{ID: "A", Title: "schema", Status: StatusPending},
					{ID: "B", Title: "handlers", Status: StatusPending},
				},
			},
			{
				ID:    "P2",
				Title: "frontend",
				Tasks: []Task{
					{ID: "A", Title: "forms", Status: StatusPending},
				},
			},
		},
		CreatedAt: time.Now(),
	}
}

func TestRecomputeAllPending(t *testing.T) {
	tr := testTrack()
	Recompute(tr)

	if tr.Phases[0].Status != StatusPending {
		t.Errorf("phase P1 status = %s, want pending", tr.Phases[0].Status)
	}
	if tr.Status != StatusPending {
		t.Errorf("track status = %s, want pending", tr.Status)
	}
}

func TestRecomputePhaseInProgress(t *testing.T) {
	tr := testTrack()
	tr.Phases[0].Tasks[0].Status = StatusInProgress
	Recompute(tr)

	if tr.Phases[0].Status != StatusInProgress {
		t.Errorf("phase P1 status = %s, want in_progress", tr.Phases[0].Status)
	}
	if tr.Status != StatusInProgress {
		t.Errorf("track status = %s, want in_progress", tr.Status)
	}
}

func TestRecomputePhaseDoneWithSkipped(t *testing.T) {
	tr := testTrack()
	tr.Phases[0].Tasks[0].Status = StatusDone
	tr.Phases[0].Tasks[1].Status = StatusSkipped
	Recompute(tr)

	if tr.Phases[0].Status != StatusDone {
		t.Errorf("phase P1 status = %s, want done", tr.Phases[0].Status)
	}
	// P2 still pending, so the track is in progress
	if tr.Status != StatusInProgress {
		t.Errorf("track status = %s, want in_progress", tr.Status)
	}
}

func TestRecomputeTrackDone(t *testing.T) {
	tr := testTrack()
	for i := range tr.Phases {
		for j := range tr.Phases[i].Tasks {
			tr.Phases[i].Tasks[j].Status = StatusDone
		}
	}
	Recompute(tr)

	if tr.Status != StatusDone {
		t.Errorf("track status = %s, want done", tr.Status)
	}
}

func TestRecomputeVerificationHoldsBackDone(t *testing.T) {
	tr := testTrack()
	tr.Phases[0].VerifyRequired = true
	tr.Phases[0].Tasks[0].Status = StatusDone
	tr.Phases[0].Tasks[1].Status = StatusDone
	Recompute(tr)

	if tr.Phases[0].Status != StatusInProgress {
		t.Errorf("unverified phase status = %s, want in_progress", tr.Phases[0].Status)
	}

	now := time.Now()
	tr.Phases[0].Verify(now)
	Recompute(tr)

	if tr.Phases[0].Status != StatusDone {
		t.Errorf("verified phase status = %s, want done", tr.Phases[0].Status)
	}
}

func TestRecomputeRevertedSupersedesRollup(t *testing.T) {
	tr := testTrack()
	tr.Phases[0].Tasks[0].Status = StatusDone
	tr.Phases[0].Tasks[1].Status = StatusDone
	tr.Phases[0].Reverted = true
	Recompute(tr)

	if tr.Phases[0].Status != StatusReverted {
		t.Errorf("reverted phase status = %s, want reverted", tr.Phases[0].Status)
	}
	if tr.Status == StatusDone {
		t.Error("track with reverted phase must not be done")
	}
}

func TestRecomputeIdempotent(t *testing.T) {
	tr := testTrack()
	tr.Phases[0].Tasks[0].Status = StatusDone
	tr.Phases[1].Tasks[0].Status = StatusInProgress

	Recompute(tr)
	first := *tr
	firstPhases := append([]Phase(nil), tr.Phases...)

	Recompute(tr)
	if tr.Status != first.Status {
		t.Errorf("track status drifted: %s != %s", tr.Status, first.Status)
	}
	for i := range tr.Phases {
		if tr.Phases[i].Status != firstPhases[i].Status {
			t.Errorf("phase %s status drifted: %s != %s",
				tr.Phases[i].ID, tr.Phases[i].Status, firstPhases[i].Status)
		}
	}
}

func TestTransitionForward(t *testing.T) {
	tr := testTrack()
	ref := Ref{Track: "TRK-001", Phase: "P1", Task: "A"}

	task, err := Transition(tr, ref, StatusInProgress)
	if err != nil {
		t.Fatalf("Transition() failed: %v", err)
	}
	if task.Status != StatusInProgress {
		t.Errorf("task status = %s, want in_progress", task.Status)
	}

	if _, err := Transition(tr, ref, StatusDone); err != nil {
		t.Fatalf("Transition() to done failed: %v", err)
	}
}

func TestTransitionBackwardRejected(t *testing.T) {
	tr := testTrack()
	ref := Ref{Track: "TRK-001", Phase: "P1", Task: "A"}
	tr.Phases[0].Tasks[0].Status = StatusDone

	_, err := Transition(tr, ref, StatusPending)
	if !errors.Is(err, trkerrors.ErrIllegalTransition("", "", "")) {
		t.Errorf("backward transition error = %v, want ILLEGAL_TRANSITION", err)
	}
}

func TestTransitionSkipRules(t *testing.T) {
	tests := []struct {
		name string
		from Status
		ok   bool
	}{
		{"skip from pending", StatusPending, true},
		{"skip from in_progress", StatusInProgress, true},
		{"skip from done", StatusDone, false},
		{"skip from skipped", StatusSkipped, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := testTrack()
			tr.Phases[0].Tasks[0].Status = tt.from

			_, err := Transition(tr, Ref{Track: "TRK-001", Phase: "P1", Task: "A"}, StatusSkipped)
			if tt.ok && err != nil {
				t.Errorf("Transition() failed: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("Transition() succeeded, want ILLEGAL_TRANSITION")
			}
		})
	}
}

func TestTransitionDoneBlockedUnderRevertedPhase(t *testing.T) {
	tr := testTrack()
	tr.Phases[0].Reverted = true
	tr.Phases[0].Tasks[0].Status = StatusInProgress

	_, err := Transition(tr, Ref{Track: "TRK-001", Phase: "P1", Task: "A"}, StatusDone)
	if !errors.Is(err, trkerrors.ErrIllegalTransition("", "", "")) {
		t.Errorf("done under reverted phase error = %v, want ILLEGAL_TRANSITION", err)
	}
}

func TestTransitionUnknownTask(t *testing.T) {
	tr := testTrack()

	_, err := Transition(tr, Ref{Track: "TRK-001", Phase: "P1", Task: "ZZ"}, StatusInProgress)
	if !errors.Is(err, trkerrors.ErrUnitNotFound("")) {
		t.Errorf("unknown task error = %v, want UNIT_NOT_FOUND", err)
	}
}
