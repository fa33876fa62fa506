// Package track provides the track/phase/task state model for trk.
//
// A Track is the top-level unit of work (a feature or bug fix), divided into
// ordered Phases, each divided into ordered Tasks. Tasks carry the commits
// produced while implementing them. Phase and Track statuses are derived
// from their children by Recompute and are never set directly, except for
// the terminal reverted marker forced by the revert executor.
package track

import (
	"time"
)

// Status represents the state of a unit of work.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusSkipped    Status = "skipped"
	StatusReverted   Status = "reverted" // terminal, forced by the revert executor
)

// ValidStatuses returns all valid status values.
func ValidStatuses() []Status {
	return []Status{StatusPending, StatusInProgress, StatusDone, StatusSkipped, StatusReverted}
}

// IsValidStatus returns true if the status is a valid status value.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusDone, StatusSkipped, StatusReverted:
		return true
	default:
		return false
	}
}

// statusRank orders the forward chain for transition checks.
// Skipped and reverted sit outside the chain.
func statusRank(s Status) int {
	switch s {
	case StatusPending:
		return 0
	case StatusInProgress:
		return 1
	case StatusDone:
		return 2
	default:
		return -1
	}
}

// Task is the smallest unit of work, directly associated with commits.
type Task struct {
	// ID is unique within the enclosing phase (e.g., T1)
	ID string `yaml:"id" json:"id"`

	// Title is a short description of the task
	Title string `yaml:"title" json:"title"`

	// Status is the current state; tasks only move forward except via revert
	Status Status `yaml:"status" json:"status"`

	// Commits lists the SHAs produced implementing this task, oldest first
	Commits []string `yaml:"commits,omitempty" json:"commits,omitempty"`
}

// Phase is an ordered sub-division of a track.
type Phase struct {
	// ID is unique within the enclosing track (e.g., P1)
	ID string `yaml:"id" json:"id"`

	// Title is a short description of the phase
	Title string `yaml:"title" json:"title"`

	// Status is derived from the tasks by Recompute
	Status Status `yaml:"status" json:"status"`

	// Tasks is the ordered sequence of tasks in this phase
	Tasks []Task `yaml:"tasks" json:"tasks"`

	// VerifyRequired means the phase needs manual confirmation before it
	// rolls up to done
	VerifyRequired bool `yaml:"verify_required,omitempty" json:"verify_required,omitempty"`

	// VerifiedAt records when manual verification happened
	VerifiedAt *time.Time `yaml:"verified_at,omitempty" json:"verified_at,omitempty"`

	// Reverted is the forced terminal marker; it supersedes rollup until
	// cleared by reopen
	Reverted bool `yaml:"reverted,omitempty" json:"reverted,omitempty"`
}

// Track is the top-level unit of work.
type Track struct {
	// ID is the stable identifier (e.g., TRK-001)
	ID string `yaml:"id" json:"id"`

	// Title is a short description of the track
	Title string `yaml:"title" json:"title"`

	// Status is derived from the phases by Recompute
	Status Status `yaml:"status" json:"status"`

	// Phases is the ordered sequence of phases
	Phases []Phase `yaml:"phases" json:"phases"`

	// CreatedAt is when the track was started
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`

	// Reverted is the forced terminal marker for whole-track reverts
	Reverted bool `yaml:"reverted,omitempty" json:"reverted,omitempty"`
}

// Summary is the index view of a track.
type Summary struct {
	ID        string    `yaml:"id" json:"id"`
	Title     string    `yaml:"title" json:"title"`
	Status    Status    `yaml:"status" json:"status"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
}

// Summarize returns the index view of the track.
func (t *Track) Summarize() Summary {
	return Summary{
		ID:        t.ID,
		Title:     t.Title,
		Status:    t.Status,
		CreatedAt: t.CreatedAt,
	}
}

// FindPhase returns the phase with the given ID, or nil.
func (t *Track) FindPhase(id string) *Phase {
	for i := range t.Phases {
		if t.Phases[i].ID == id {
			return &t.Phases[i]
		}
	}
	return nil
}

// FindTask returns the task with the given ID within a phase, or nil.
func (p *Phase) FindTask(id string) *Task {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return &p.Tasks[i]
		}
	}
	return nil
}

// Verify records manual verification on the phase. Verification is only
// meaningful when the phase requires it; verifying twice keeps the first
// timestamp.
func (p *Phase) Verify(at time.Time) {
	if p.VerifiedAt == nil {
		p.VerifiedAt = &at
	}
}
