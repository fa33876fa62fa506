// Package revert computes and executes git-aware revert plans for trk.
//
// The planner turns a target logical unit into the exact newest-first
// sequence of commits to undo plus the units whose status resets, refusing
// (unless forced) when later out-of-subtree work touched the same files. The
// executor applies the plan strictly sequentially against the git backend,
// halting on the first conflict and never silently continuing past it.
package revert

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	trkerrors "github.com/trkhq/trk/internal/errors"
	"github.com/trkhq/trk/internal/git"
	"github.com/trkhq/trk/internal/ledger"
	"github.com/trkhq/trk/internal/store"
	"github.com/trkhq/trk/internal/track"
)

// Conflict describes one later commit that touches files also touched by the
// target's commits and belongs to work outside the target subtree.
type Conflict struct {
	// Unit is the owning unit ref, or "(unattributed)" for commits made
	// outside any tracked task
	Unit string `json:"unit" yaml:"unit"`

	// Commit is the conflicting commit SHA
	Commit string `json:"commit" yaml:"commit"`

	// Files are the overlapping paths
	Files []string `json:"files" yaml:"files"`
}

// Plan is an ordered revert plan for a target unit. It is inert: computing
// a plan has no side effects, and a plan that is never executed leaves no
// trace.
type Plan struct {
	// ID identifies this plan instance
	ID string `json:"id" yaml:"id"`

	// Target is the unit being reverted
	Target string `json:"target" yaml:"target"`

	// Head is the commit the branch tip was at when the plan was computed;
	// execution refuses to run if the head has since moved
	Head string `json:"head" yaml:"head"`

	// Commits to undo, newest-first across the whole project history
	Commits []string `json:"commits" yaml:"commits"`

	// ResetUnits are the units whose status rolls back: task refs reset to
	// pending, the targeted phase/track ref gets the forced reverted marker
	ResetUnits []string `json:"reset_units" yaml:"reset_units"`

	// Conflicts is populated on forced plans so the caller sees exactly
	// which units the revert serializes over
	Conflicts []Conflict `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`

	// Forced records that the caller chose to plan through conflicts
	Forced bool `json:"forced,omitempty" yaml:"forced,omitempty"`

	// CreatedAt is when the plan was computed
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Options adjusts planning behavior.
type Options struct {
	// Force plans through dependent-work conflicts; the conflicts are
	// still reported on the plan
	Force bool

	// IgnorePaths are doublestar globs excluded from conflict detection
	IgnorePaths []string
}

// Planner computes revert plans from the plan store, the commit ledger, and
// git history.
type Planner struct {
	store   *store.Store
	ledger  *ledger.Ledger
	backend git.Backend
}

// NewPlanner creates a planner.
func NewPlanner(s *store.Store, l *ledger.Ledger, b git.Backend) *Planner {
	return &Planner{store: s, ledger: l, backend: b}
}

// Plan computes the revert plan for the target unit.
func (p *Planner) Plan(ctx context.Context, target track.Ref, opts Options) (*Plan, error) {
	t, err := p.store.Load(target.Track)
	if err != nil {
		return nil, err
	}
	if _, _, err := t.Resolve(target); err != nil {
		return nil, trkerrors.ErrUnitNotFound(target.String()).WithCause(err)
	}

	head, err := p.backend.CurrentHead(ctx)
	if err != nil {
		return nil, trkerrors.ErrBackendUnavailable("rev-parse", err)
	}

	entries, err := p.ledger.LiveEntriesForSubtree(target)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		ID:        uuid.NewString(),
		Target:    target.String(),
		Head:      head,
		CreatedAt: time.Now().UTC(),
	}

	if len(entries) > 0 {
		conflicts, err := p.scanConflicts(ctx, target, entries, opts.IgnorePaths)
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 {
			if !opts.Force {
				return nil, trkerrors.ErrDependentWork(target.String(), conflictUnits(conflicts))
			}
			plan.Conflicts = conflicts
			plan.Forced = true
		}

		// Newest-first across the whole track history: the ledger's
		// global sequence matches commit creation order by construction,
		// so reverts apply as a contiguous undo from the tip.
		sorted := append([]ledger.Entry(nil), entries...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].GlobalSeq > sorted[j].GlobalSeq })
		for _, e := range sorted {
			plan.Commits = append(plan.Commits, e.Commit)
		}
	}

	plan.ResetUnits = resetUnits(t, target)
	return plan, nil
}

// scanConflicts finds later out-of-subtree commits whose changed files
// overlap files touched by the target's commits. Detection is file-level.
func (p *Planner) scanConflicts(ctx context.Context, target track.Ref, entries []ledger.Entry, ignoreGlobs []string) ([]Conflict, error) {
	history, err := p.backend.Log(ctx, "")
	if err != nil {
		return nil, trkerrors.ErrBackendUnavailable("log", err)
	}

	inSet := make(map[string]bool, len(entries))
	for _, e := range entries {
		inSet[e.Commit] = true
	}

	// Files touched by the target's commits, net of ignored paths.
	touched := make(map[string]bool)
	earliest := -1
	for i, c := range history {
		if !inSet[c.ID] {
			continue
		}
		if earliest == -1 {
			earliest = i
		}
		for _, f := range c.Files {
			if !matchesAny(ignoreGlobs, f) {
				touched[f] = true
			}
		}
	}
	if earliest == -1 {
		// None of the ledger commits are reachable from the current head.
		return nil, trkerrors.ErrBackendUnavailable("log",
			fmt.Errorf("no commit of %s is reachable from HEAD", target))
	}

	inverses, err := p.ledger.Inverses()
	if err != nil {
		return nil, err
	}

	var conflicts []Conflict
	for _, c := range history[earliest+1:] {
		if inSet[c.ID] || inverses[c.ID] {
			continue
		}

		var overlap []string
		for _, f := range c.Files {
			if touched[f] {
				overlap = append(overlap, f)
			}
		}
		if len(overlap) == 0 {
			continue
		}

		owner, found, err := p.ledger.Owner(c.ID)
		if err != nil {
			return nil, err
		}
		if found && target.Contains(owner) {
			// Same-subtree commits are either being reverted too or were
			// already reverted, not dependent work either way.
			continue
		}

		unit := "(unattributed)"
		if found {
			unit = owner.String()
		}
		conflicts = append(conflicts, Conflict{Unit: unit, Commit: c.ID, Files: overlap})
	}
	return conflicts, nil
}

// resetUnits collects the target unit plus every descendant task that needs
// its status rolled back. Skipped tasks stay skipped unless the caller
// targets them directly.
func resetUnits(t *track.Track, target track.Ref) []string {
	units := []string{target.String()}
	for _, ref := range t.TaskRefs(target) {
		_, task, err := t.Resolve(ref)
		if err != nil || task == nil {
			continue
		}
		if ref == target {
			// Already listed; direct targeting resets even skipped tasks.
			continue
		}
		switch task.Status {
		case track.StatusInProgress, track.StatusDone:
			units = append(units, ref.String())
		}
	}
	return units
}

func conflictUnits(conflicts []Conflict) []string {
	seen := make(map[string]bool, len(conflicts))
	var units []string
	for _, c := range conflicts {
		if !seen[c.Unit] {
			seen[c.Unit] = true
			units = append(units, c.Unit)
		}
	}
	sort.Strings(units)
	return units
}

func matchesAny(globs []string, path string) bool {
	for _, g := range globs {
		if ok, err := doublestar.Match(g, path); err == nil && ok {
			return true
		}
	}
	return false
}
