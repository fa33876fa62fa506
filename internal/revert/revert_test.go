package revert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	trkerrors "github.com/trkhq/trk/internal/errors"
	"github.com/trkhq/trk/internal/git"
	"github.com/trkhq/trk/internal/ledger"
	"github.com/trkhq/trk/internal/store"
	"github.com/trkhq/trk/internal/track"
)

// fakeBackend is an in-memory git backend. Reverting a commit advances the
// head to a synthetic inverse commit named r-<original>.
type fakeBackend struct {
	head     string
	history  []git.Commit // oldest first
	conflict map[string]bool
	reverted []string
}

func (f *fakeBackend) Log(ctx context.Context, since string) ([]git.Commit, error) {
	return f.history, nil
}

func (f *fakeBackend) RevertCommit(ctx context.Context, id string) error {
	if f.conflict[id] {
		return fmt.Errorf("revert %s: %w", id, git.ErrRevertConflict)
	}
	f.reverted = append(f.reverted, id)
	f.head = "r-" + id
	return nil
}

func (f *fakeBackend) CurrentHead(ctx context.Context) (string, error) {
	return f.head, nil
}

type fixture struct {
	store   *store.Store
	ledger  *ledger.Ledger
	backend *fakeBackend
}

// newFixture builds TRK-001 with P1{A done, B done} and P2{A pending} plus
// an empty git history at head h0.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	s := store.New(root)

	tr := &track.Track{
		ID:        "TRK-001",
		Title:     "auth rework",
		CreatedAt: time.Now().UTC(),
		Phases: []track.Phase{
			{ID: "P1", Title: "backend", Tasks: []track.Task{
				{ID: "A", Title: "sessions", Status: track.StatusDone},
				{ID: "B", Title: "tokens", Status: track.StatusDone},
			}},
			{ID: "P2", Title: "frontend", Tasks: []track.Task{
				{ID: "A", Title: "login form", Status: track.StatusPending},
			}},
		},
	}
	require.NoError(t, s.Save(tr))

	return &fixture{
		store:   s,
		ledger:  ledger.New(filepath.Join(s.Dir(), store.TracksDir)),
		backend: &fakeBackend{head: "h0", conflict: map[string]bool{}},
	}
}

// commit records a commit for a unit in both the ledger and the fake
// history.
func (f *fixture) commit(t *testing.T, unit track.Ref, id string, files ...string) {
	t.Helper()
	_, err := f.ledger.Record(unit, id)
	require.NoError(t, err)
	f.backend.history = append(f.backend.history, git.Commit{ID: id, Files: files})
	f.backend.head = id
}

// untracked adds a commit to history without a ledger attribution.
func (f *fixture) untracked(id string, files ...string) {
	f.backend.history = append(f.backend.history, git.Commit{ID: id, Files: files})
	f.backend.head = id
}

func ref(s string) track.Ref {
	r, err := track.ParseRef(s)
	if err != nil {
		panic(err)
	}
	return r
}

func TestPlanSimpleTaskRevert(t *testing.T) {
	f := newFixture(t)
	f.commit(t, ref("TRK-001/P1/A"), "c1", "auth/session.go")
	f.commit(t, ref("TRK-001/P1/A"), "c2", "auth/session_test.go")

	p := NewPlanner(f.store, f.ledger, f.backend)
	plan, err := p.Plan(context.Background(), ref("TRK-001/P1/A"), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"c2", "c1"}, plan.Commits, "newest first")
	assert.Equal(t, []string{"TRK-001/P1/A"}, plan.ResetUnits)
	assert.Equal(t, "c2", plan.Head)
	assert.NotEmpty(t, plan.ID)
	assert.False(t, plan.Forced)
	assert.Empty(t, plan.Conflicts)
}

func TestPlanOrdersNewestFirstAcrossInterleaving(t *testing.T) {
	f := newFixture(t)
	a := ref("TRK-001/P1/A")
	b := ref("TRK-001/P1/B")
	f.commit(t, a, "c1", "auth/a.go")
	f.commit(t, b, "c2", "auth/b.go")
	f.commit(t, a, "c3", "auth/a.go")
	f.commit(t, b, "c4", "auth/b.go")
	f.commit(t, a, "c5", "auth/a.go")

	p := NewPlanner(f.store, f.ledger, f.backend)
	plan, err := p.Plan(context.Background(), a, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"c5", "c3", "c1"}, plan.Commits)
}

func TestPlanPhaseCollectsSubtree(t *testing.T) {
	f := newFixture(t)
	f.commit(t, ref("TRK-001/P1/A"), "c1", "auth/a.go")
	f.commit(t, ref("TRK-001/P1/B"), "c2", "auth/b.go")
	f.commit(t, ref("TRK-001/P1/A"), "c3", "auth/a.go")

	p := NewPlanner(f.store, f.ledger, f.backend)
	plan, err := p.Plan(context.Background(), ref("TRK-001/P1"), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"c3", "c2", "c1"}, plan.Commits)
	assert.ElementsMatch(t,
		[]string{"TRK-001/P1", "TRK-001/P1/A", "TRK-001/P1/B"}, plan.ResetUnits)
}

func TestPlanUnknownUnit(t *testing.T) {
	f := newFixture(t)
	p := NewPlanner(f.store, f.ledger, f.backend)

	_, err := p.Plan(context.Background(), ref("TRK-001/P9/Z"), Options{})
	assert.True(t, errors.Is(err, trkerrors.ErrUnitNotFound("")),
		"error = %v, want UNIT_NOT_FOUND", err)

	_, err = p.Plan(context.Background(), ref("TRK-404"), Options{})
	assert.True(t, errors.Is(err, trkerrors.ErrTrackNotFound("")),
		"error = %v, want TRACK_NOT_FOUND", err)
}

func TestPlanDependentWorkBlocks(t *testing.T) {
	f := newFixture(t)
	f.commit(t, ref("TRK-001/P1/A"), "c1", "auth/shared.go")
	f.commit(t, ref("TRK-001/P1/B"), "c2", "auth/shared.go", "auth/b.go")

	p := NewPlanner(f.store, f.ledger, f.backend)
	_, err := p.Plan(context.Background(), ref("TRK-001/P1/A"), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, trkerrors.ErrDependentWork("", nil)))

	trkErr := trkerrors.AsTrkError(err)
	require.NotNil(t, trkErr)
	assert.Contains(t, trkErr.Why, "TRK-001/P1/B", "conflict must name the dependent unit")
}

func TestPlanDependentWorkForced(t *testing.T) {
	f := newFixture(t)
	f.commit(t, ref("TRK-001/P1/A"), "c1", "auth/shared.go")
	f.commit(t, ref("TRK-001/P1/B"), "c2", "auth/shared.go")

	p := NewPlanner(f.store, f.ledger, f.backend)
	plan, err := p.Plan(context.Background(), ref("TRK-001/P1/A"), Options{Force: true})
	require.NoError(t, err)

	assert.True(t, plan.Forced)
	require.Len(t, plan.Conflicts, 1)
	assert.Equal(t, "TRK-001/P1/B", plan.Conflicts[0].Unit)
	assert.Equal(t, "c2", plan.Conflicts[0].Commit)
	assert.Equal(t, []string{"auth/shared.go"}, plan.Conflicts[0].Files)
}

func TestPlanUnattributedCommitConflicts(t *testing.T) {
	f := newFixture(t)
	f.commit(t, ref("TRK-001/P1/A"), "c1", "auth/shared.go")
	f.untracked("c2", "auth/shared.go")

	p := NewPlanner(f.store, f.ledger, f.backend)
	_, err := p.Plan(context.Background(), ref("TRK-001/P1/A"), Options{})
	require.Error(t, err)

	trkErr := trkerrors.AsTrkError(err)
	require.NotNil(t, trkErr)
	assert.Contains(t, trkErr.Why, "(unattributed)")
}

func TestPlanNonOverlappingLaterWorkAllowed(t *testing.T) {
	f := newFixture(t)
	f.commit(t, ref("TRK-001/P1/A"), "c1", "auth/a.go")
	f.commit(t, ref("TRK-001/P1/B"), "c2", "auth/b.go")

	p := NewPlanner(f.store, f.ledger, f.backend)
	plan, err := p.Plan(context.Background(), ref("TRK-001/P1/A"), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, plan.Commits)
}

func TestPlanIgnorePathsExemptOverlap(t *testing.T) {
	f := newFixture(t)
	f.commit(t, ref("TRK-001/P1/A"), "c1", "auth/a.go", "gen/schema.sql")
	f.commit(t, ref("TRK-001/P1/B"), "c2", "gen/schema.sql")

	p := NewPlanner(f.store, f.ledger, f.backend)
	plan, err := p.Plan(context.Background(), ref("TRK-001/P1/A"),
		Options{IgnorePaths: []string{"gen/**"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, plan.Commits)
	assert.Empty(t, plan.Conflicts)
}

func TestPlanEmptySubtree(t *testing.T) {
	f := newFixture(t)
	p := NewPlanner(f.store, f.ledger, f.backend)

	plan, err := p.Plan(context.Background(), ref("TRK-001/P2/A"), Options{})
	require.NoError(t, err)
	assert.Empty(t, plan.Commits)
	assert.Equal(t, []string{"TRK-001/P2/A"}, plan.ResetUnits)
}

func TestExecuteSimpleTaskRevert(t *testing.T) {
	f := newFixture(t)
	target := ref("TRK-001/P1/A")
	f.commit(t, target, "c1", "auth/a.go")
	f.commit(t, target, "c2", "auth/a.go")

	p := NewPlanner(f.store, f.ledger, f.backend)
	plan, err := p.Plan(context.Background(), target, Options{})
	require.NoError(t, err)

	ex := NewExecutor(f.store, f.ledger, f.backend, slog.Default())
	res, err := ex.Execute(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, []string{"c2", "c1"}, f.backend.reverted)
	assert.Equal(t, 2, res.StepsDone)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, "r-c2", res.Steps[0].Inverse)

	// Task A goes back to pending; its history survives in the ledger.
	tr, err := f.store.Load("TRK-001")
	require.NoError(t, err)
	_, task, err := tr.Resolve(target)
	require.NoError(t, err)
	assert.Equal(t, track.StatusPending, task.Status)
	assert.False(t, tr.Phases[0].Reverted, "task revert must not force the phase marker")

	live, err := f.ledger.LiveEntriesForSubtree(target)
	require.NoError(t, err)
	assert.Empty(t, live)
	all, err := f.ledger.EntriesFor(target)
	require.NoError(t, err)
	assert.Len(t, all, 2, "attribution history is never deleted")
}

func TestExecutePhaseRevertForcesMarker(t *testing.T) {
	f := newFixture(t)
	f.commit(t, ref("TRK-001/P1/A"), "c1", "auth/a.go")
	f.commit(t, ref("TRK-001/P1/B"), "c2", "auth/b.go")

	p := NewPlanner(f.store, f.ledger, f.backend)
	plan, err := p.Plan(context.Background(), ref("TRK-001/P1"), Options{})
	require.NoError(t, err)

	ex := NewExecutor(f.store, f.ledger, f.backend, nil)
	_, err = ex.Execute(context.Background(), plan)
	require.NoError(t, err)

	tr, err := f.store.Load("TRK-001")
	require.NoError(t, err)
	phase := tr.FindPhase("P1")
	require.NotNil(t, phase)
	assert.True(t, phase.Reverted)
	assert.Equal(t, track.StatusReverted, phase.Status)
	assert.Equal(t, track.StatusPending, phase.Tasks[0].Status)
	assert.Equal(t, track.StatusPending, phase.Tasks[1].Status)
	assert.Nil(t, phase.VerifiedAt)
}

func TestExecutePartialRevertHaltsAndRecords(t *testing.T) {
	f := newFixture(t)
	target := ref("TRK-001/P1/A")
	f.commit(t, target, "c1", "auth/a.go")
	f.commit(t, target, "c2", "auth/a.go")
	f.commit(t, target, "c3", "auth/a.go")

	p := NewPlanner(f.store, f.ledger, f.backend)
	plan, err := p.Plan(context.Background(), target, Options{})
	require.NoError(t, err)
	require.Equal(t, []string{"c3", "c2", "c1"}, plan.Commits)

	f.backend.conflict["c2"] = true

	ex := NewExecutor(f.store, f.ledger, f.backend, nil)
	res, err := ex.Execute(context.Background(), plan)
	require.Error(t, err)
	assert.True(t, errors.Is(err, trkerrors.ErrPartialRevert("", "", 0, 0)))
	assert.True(t, errors.Is(err, git.ErrRevertConflict), "cause chain keeps the conflict")

	trkErr := trkerrors.AsTrkError(err)
	require.NotNil(t, trkErr)
	assert.Contains(t, trkErr.What, "c2", "error must name the failing commit")

	// Step 1 landed and is recorded; c1 was never attempted.
	assert.Equal(t, 1, res.StepsDone)
	assert.Equal(t, []string{"c3"}, f.backend.reverted)
	live, err := f.ledger.LiveEntriesForSubtree(target)
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, "c1", live[0].Commit)
	assert.Equal(t, "c2", live[1].Commit)

	// Plan state is untouched on a halt.
	tr, err := f.store.Load("TRK-001")
	require.NoError(t, err)
	_, task, err := tr.Resolve(target)
	require.NoError(t, err)
	assert.Equal(t, track.StatusDone, task.Status)
}

func TestExecuteStaleHeadRefused(t *testing.T) {
	f := newFixture(t)
	target := ref("TRK-001/P1/A")
	f.commit(t, target, "c1", "auth/a.go")

	p := NewPlanner(f.store, f.ledger, f.backend)
	plan, err := p.Plan(context.Background(), target, Options{})
	require.NoError(t, err)

	f.untracked("c9", "readme.md")

	ex := NewExecutor(f.store, f.ledger, f.backend, nil)
	_, err = ex.Execute(context.Background(), plan)
	require.Error(t, err)
	assert.True(t, errors.Is(err, trkerrors.ErrBackendUnavailable("", nil)))
	assert.Empty(t, f.backend.reverted)
}

func TestExecuteCancellationBetweenSteps(t *testing.T) {
	f := newFixture(t)
	target := ref("TRK-001/P1/A")
	f.commit(t, target, "c1", "auth/a.go")
	f.commit(t, target, "c2", "auth/a.go")

	p := NewPlanner(f.store, f.ledger, f.backend)
	plan, err := p.Plan(context.Background(), target, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex := NewExecutor(f.store, f.ledger, f.backend, nil)
	res, err := ex.Execute(ctx, plan)
	require.Error(t, err)
	assert.True(t, errors.Is(err, trkerrors.ErrPartialRevert("", "", 0, 0)))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, res.StepsDone)
}

func TestReplanAfterRevertIgnoresInverseCommits(t *testing.T) {
	f := newFixture(t)
	a := ref("TRK-001/P1/A")
	b := ref("TRK-001/P1/B")
	f.commit(t, a, "c1", "auth/shared.go")
	f.commit(t, b, "c2", "auth/b.go")

	p := NewPlanner(f.store, f.ledger, f.backend)
	planA, err := p.Plan(context.Background(), a, Options{})
	require.NoError(t, err)

	ex := NewExecutor(f.store, f.ledger, f.backend, nil)
	_, err = ex.Execute(context.Background(), planA)
	require.NoError(t, err)

	// The inverse commit r-c1 touches shared.go again; it must not count
	// as dependent work when B is reverted next.
	f.backend.history = append(f.backend.history,
		git.Commit{ID: "r-c1", Files: []string{"auth/shared.go"}})
	f.commit(t, b, "c3", "auth/shared.go", "auth/b.go")

	planB, err := p.Plan(context.Background(), b, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"c3", "c2"}, planB.Commits)
	assert.Empty(t, planB.Conflicts)
}
