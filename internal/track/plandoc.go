package track

import (
	"fmt"
	"os"
	"time"

	trkerrors "github.com/trkhq/trk/internal/errors"
	"gopkg.in/yaml.v3"
)

// PlanDoc is the authored plan a track is started from. Authoring the
// document is the external agent's job; trk only validates the structure and
// materializes it into a Track. This is the one-time structural write: after
// Materialize, the tree is only mutated by status transitions and commit
// appends, never restructured.
type PlanDoc struct {
	Title  string      `yaml:"title"`
	Phases []PlanPhase `yaml:"phases"`
}

// PlanPhase is a phase entry in an authored plan.
type PlanPhase struct {
	ID     string     `yaml:"id"`
	Title  string     `yaml:"title"`
	Verify bool       `yaml:"verify,omitempty"`
	Tasks  []PlanTask `yaml:"tasks"`
}

// PlanTask is a task entry in an authored plan.
type PlanTask struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
}

// LoadPlanDoc reads and validates an authored plan file.
func LoadPlanDoc(path string) (*PlanDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan %s: %w", path, err)
	}

	var doc PlanDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, trkerrors.ErrPlanInvalid(fmt.Sprintf("parse %s: %v", path, err))
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks structural rules: non-empty title, at least one phase,
// every phase has at least one task, and IDs are unique within their scope
// and free of path separators.
func (d *PlanDoc) Validate() error {
	if d.Title == "" {
		return trkerrors.ErrPlanInvalid("plan has no title")
	}
	if len(d.Phases) == 0 {
		return trkerrors.ErrPlanInvalid("plan has no phases")
	}

	phaseIDs := make(map[string]bool, len(d.Phases))
	for _, p := range d.Phases {
		if err := validateUnitID(p.ID, "phase"); err != nil {
			return err
		}
		if phaseIDs[p.ID] {
			return trkerrors.ErrPlanInvalid(fmt.Sprintf("duplicate phase id %s", p.ID))
		}
		phaseIDs[p.ID] = true

		if len(p.Tasks) == 0 {
			return trkerrors.ErrPlanInvalid(fmt.Sprintf("phase %s has no tasks", p.ID))
		}
		taskIDs := make(map[string]bool, len(p.Tasks))
		for _, task := range p.Tasks {
			if err := validateUnitID(task.ID, "task"); err != nil {
				return err
			}
			if taskIDs[task.ID] {
				return trkerrors.ErrPlanInvalid(fmt.Sprintf("duplicate task id %s in phase %s", task.ID, p.ID))
			}
			taskIDs[task.ID] = true
		}
	}
	return nil
}

func validateUnitID(id, kind string) error {
	if id == "" {
		return trkerrors.ErrPlanInvalid(fmt.Sprintf("%s with empty id", kind))
	}
	for _, r := range id {
		if r == '/' || r == ' ' {
			return trkerrors.ErrPlanInvalid(fmt.Sprintf("%s id %q contains '/' or spaces", kind, id))
		}
	}
	return nil
}

// Materialize builds a Track with the given ID from the plan. All tasks
// start pending; derived statuses are recomputed before returning.
func (d *PlanDoc) Materialize(id string, now time.Time) *Track {
	t := &Track{
		ID:        id,
		Title:     d.Title,
		CreatedAt: now,
		Phases:    make([]Phase, len(d.Phases)),
	}
	for i, p := range d.Phases {
		phase := Phase{
			ID:             p.ID,
			Title:          p.Title,
			VerifyRequired: p.Verify,
			Tasks:          make([]Task, len(p.Tasks)),
		}
		for j, task := range p.Tasks {
			phase.Tasks[j] = Task{
				ID:     task.ID,
				Title:  task.Title,
				Status: StatusPending,
			}
		}
		t.Phases[i] = phase
	}
	Recompute(t)
	return t
}
