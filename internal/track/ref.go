package track

import (
	"fmt"
	"strings"
)

// Ref identifies a logical unit: a track, a phase within it, or a task
// within a phase. The textual form is a slash path: TRK-001, TRK-001/P1,
// TRK-001/P1/T2. Refs are what the commit ledger records and what revert
// operations target.
type Ref struct {
	Track string
	Phase string
	Task  string
}

// ParseRef parses a unit reference.
func ParseRef(s string) (Ref, error) {
	parts := strings.Split(s, "/")
	for _, p := range parts {
		if p == "" {
			return Ref{}, fmt.Errorf("malformed unit ref %q", s)
		}
	}
	switch len(parts) {
	case 1:
		return Ref{Track: parts[0]}, nil
	case 2:
		return Ref{Track: parts[0], Phase: parts[1]}, nil
	case 3:
		return Ref{Track: parts[0], Phase: parts[1], Task: parts[2]}, nil
	default:
		return Ref{}, fmt.Errorf("malformed unit ref %q", s)
	}
}

// String returns the slash-path form of the ref.
func (r Ref) String() string {
	switch {
	case r.Task != "":
		return r.Track + "/" + r.Phase + "/" + r.Task
	case r.Phase != "":
		return r.Track + "/" + r.Phase
	default:
		return r.Track
	}
}

// IsTrack reports whether the ref addresses a whole track.
func (r Ref) IsTrack() bool { return r.Phase == "" }

// IsPhase reports whether the ref addresses a phase.
func (r Ref) IsPhase() bool { return r.Phase != "" && r.Task == "" }

// IsTask reports whether the ref addresses a task.
func (r Ref) IsTask() bool { return r.Task != "" }

// Contains reports whether other falls inside r's subtree (inclusive).
func (r Ref) Contains(other Ref) bool {
	if r.Track != other.Track {
		return false
	}
	if r.IsTrack() {
		return true
	}
	if r.Phase != other.Phase {
		return false
	}
	if r.IsPhase() {
		return true
	}
	return r.Task == other.Task
}

// Parent returns the enclosing unit's ref. The parent of a track ref is the
// ref itself.
func (r Ref) Parent() Ref {
	switch {
	case r.Task != "":
		return Ref{Track: r.Track, Phase: r.Phase}
	case r.Phase != "":
		return Ref{Track: r.Track}
	default:
		return r
	}
}

// Resolve checks that the ref exists within the track and returns the phase
// and task it addresses (nil for levels above the ref).
func (t *Track) Resolve(r Ref) (*Phase, *Task, error) {
	if r.Track != t.ID {
		return nil, nil, fmt.Errorf("ref %s does not belong to track %s", r, t.ID)
	}
	if r.IsTrack() {
		return nil, nil, nil
	}
	p := t.FindPhase(r.Phase)
	if p == nil {
		return nil, nil, fmt.Errorf("phase %s not found in track %s", r.Phase, t.ID)
	}
	if r.IsPhase() {
		return p, nil, nil
	}
	task := p.FindTask(r.Task)
	if task == nil {
		return nil, nil, fmt.Errorf("task %s not found in phase %s/%s", r.Task, t.ID, r.Phase)
	}
	return p, task, nil
}

// TaskRefs returns the refs of all tasks in the subtree rooted at r, in
// document order.
func (t *Track) TaskRefs(r Ref) []Ref {
	var refs []Ref
	for i := range t.Phases {
		p := &t.Phases[i]
		if !r.IsTrack() && p.ID != r.Phase {
			continue
		}
		for j := range p.Tasks {
			tr := Ref{Track: t.ID, Phase: p.ID, Task: p.Tasks[j].ID}
			if r.Contains(tr) {
				refs = append(refs, tr)
			}
		}
	}
	return refs
}
