package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	trkerrors "github.com/trkhq/trk/internal/errors"
	"github.com/trkhq/trk/internal/track"
	"github.com/trkhq/trk/internal/util"
	"gopkg.in/yaml.v3"
)

// Index is the project-level document listing all tracks and the active one.
type Index struct {
	Version int             `yaml:"version"`
	Active  string          `yaml:"active,omitempty"`
	Tracks  []track.Summary `yaml:"tracks"`
}

func (s *Store) indexPath() string {
	return filepath.Join(s.Dir(), IndexFileName)
}

func (s *Store) loadIndex() (*Index, error) {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return &Index{Version: 1}, nil
		}
		return nil, fmt.Errorf("read index: %w", err)
	}

	var idx Index
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}
	return &idx, nil
}

func (s *Store) saveIndex(idx *Index) error {
	sort.Slice(idx.Tracks, func(i, j int) bool { return idx.Tracks[i].ID < idx.Tracks[j].ID })

	data, err := yaml.Marshal(idx)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	if err := util.AtomicWriteFile(s.indexPath(), data, 0644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

// updateIndex upserts the summary entry for a track.
func (s *Store) updateIndex(sum track.Summary) error {
	idx, err := s.loadIndex()
	if err != nil {
		return err
	}

	found := false
	for i := range idx.Tracks {
		if idx.Tracks[i].ID == sum.ID {
			idx.Tracks[i] = sum
			found = true
			break
		}
	}
	if !found {
		idx.Tracks = append(idx.Tracks, sum)
	}
	return s.saveIndex(idx)
}

// Active returns the active track ID, or empty if none.
func (s *Store) Active() (string, error) {
	idx, err := s.loadIndex()
	if err != nil {
		return "", err
	}
	return idx.Active, nil
}

// SetActive records the active track. Passing the empty string clears it.
func (s *Store) SetActive(id string) error {
	idx, err := s.loadIndex()
	if err != nil {
		return err
	}

	if id != "" {
		known := false
		for _, entry := range idx.Tracks {
			if entry.ID == id {
				known = true
				break
			}
		}
		if !known {
			return trkerrors.ErrTrackNotFound(id)
		}
	}

	idx.Active = id
	return s.saveIndex(idx)
}
