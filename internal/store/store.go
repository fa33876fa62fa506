// Package store persists the track/phase/task tree for trk.
//
// Layout under the project root:
//
//	.trk/index.yaml               project index: track summaries + active track
//	.trk/sequences.yaml           track ID sequence
//	.trk/tracks/<id>/track.yaml   one document per track
//	.trk/tracks/<id>/ledger.jsonl commit ledger (owned by package ledger)
//
// All writes go through util.AtomicWriteFile so a concurrent reader never
// observes a partially written document. The design assumes a single active
// writer per project; atomicity is for crash tolerance, not write contention.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	trkerrors "github.com/trkhq/trk/internal/errors"
	"github.com/trkhq/trk/internal/track"
	"github.com/trkhq/trk/internal/util"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

const (
	// TrkDir is the trk state directory
	TrkDir = ".trk"
	// TracksDir is the subdirectory holding per-track documents
	TracksDir = "tracks"
	// TrackFileName is the per-track document name
	TrackFileName = "track.yaml"
	// IndexFileName is the project index document name
	IndexFileName = "index.yaml"
	// SequencesFileName is the track ID sequence file name
	SequencesFileName = "sequences.yaml"
)

// Store reads and writes track documents rooted at a project directory.
type Store struct {
	root string
}

// New creates a store for the project at root (the directory containing .trk).
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the project root directory.
func (s *Store) Root() string {
	return s.root
}

// Dir returns the .trk directory path.
func (s *Store) Dir() string {
	return filepath.Join(s.root, TrkDir)
}

// TrackDir returns the directory holding a track's documents.
func (s *Store) TrackDir(id string) string {
	return filepath.Join(s.Dir(), TracksDir, id)
}

// Sequences returns the track ID sequence store.
func (s *Store) Sequences() *track.SequenceStore {
	return track.NewSequenceStore(filepath.Join(s.Dir(), SequencesFileName))
}

// Load reads a track document.
func (s *Store) Load(id string) (*track.Track, error) {
	path := filepath.Join(s.TrackDir(id), TrackFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, trkerrors.ErrTrackNotFound(id)
		}
		return nil, fmt.Errorf("read track %s: %w", id, err)
	}

	var t track.Track
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse track %s: %w", id, err)
	}

	// Derived statuses are recomputed on read so a hand-edited document
	// can never present a status that diverges from its children.
	track.Recompute(&t)
	return &t, nil
}

// Save validates and persists a track document atomically, then refreshes
// the project index entry for it.
func (s *Store) Save(t *track.Track) error {
	if err := validate(t); err != nil {
		return err
	}
	track.Recompute(t)

	data, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal track %s: %w", t.ID, err)
	}

	path := filepath.Join(s.TrackDir(t.ID), TrackFileName)
	if err := util.AtomicWriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write track %s: %w", t.ID, err)
	}

	return s.updateIndex(t.Summarize())
}

// validate enforces structural invariants the status engine cannot see on
// its own: ID uniqueness within scope and no task marked done under a
// reverted phase. Plan store errors are always surfaced, never corrected.
func validate(t *track.Track) error {
	if t.ID == "" {
		return trkerrors.ErrPlanInvalid("track has no id")
	}

	phaseIDs := make(map[string]bool, len(t.Phases))
	for i := range t.Phases {
		p := &t.Phases[i]
		if phaseIDs[p.ID] {
			return trkerrors.ErrPlanInvalid(fmt.Sprintf("duplicate phase id %s in track %s", p.ID, t.ID))
		}
		phaseIDs[p.ID] = true

		taskIDs := make(map[string]bool, len(p.Tasks))
		for j := range p.Tasks {
			tk := &p.Tasks[j]
			if taskIDs[tk.ID] {
				return trkerrors.ErrPlanInvalid(fmt.Sprintf("duplicate task id %s in phase %s/%s", tk.ID, t.ID, p.ID))
			}
			taskIDs[tk.ID] = true

			if p.Reverted && tk.Status == track.StatusDone {
				ref := track.Ref{Track: t.ID, Phase: p.ID, Task: tk.ID}
				return trkerrors.ErrIllegalTransition(ref.String(), string(track.StatusDone), string(track.StatusDone))
			}
		}
	}
	return nil
}

// ListTracks returns summaries of all tracks ordered by ID. The index
// document is authoritative for the summary list; track documents are loaded
// concurrently only to verify their statuses are current.
func (s *Store) ListTracks() ([]track.Summary, error) {
	idx, err := s.loadIndex()
	if err != nil {
		return nil, err
	}

	summaries := make([]track.Summary, len(idx.Tracks))
	var g errgroup.Group
	for i, entry := range idx.Tracks {
		g.Go(func() error {
			t, err := s.Load(entry.ID)
			if err != nil {
				return err
			}
			summaries[i] = t.Summarize()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries, nil
}

// TrackIDs returns the IDs of all tracks in the index, ordered.
func (s *Store) TrackIDs() ([]string, error) {
	idx, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(idx.Tracks))
	for i, entry := range idx.Tracks {
		ids[i] = entry.ID
	}
	sort.Strings(ids)
	return ids, nil
}
