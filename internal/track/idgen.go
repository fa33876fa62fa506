package track

import (
	"fmt"
	"os"
	"sync"

	"github.com/trkhq/trk/internal/util"
	"gopkg.in/yaml.v3"
)

// IDPrefix is the prefix for generated track IDs.
const IDPrefix = "TRK"

// SequenceStore hands out monotonically increasing track numbers backed by a
// sequences file, so IDs stay stable across processes.
type SequenceStore struct {
	path string
	mu   sync.Mutex
}

// sequenceData is the sequences.yaml file structure.
type sequenceData struct {
	Next int `yaml:"next"`
}

// NewSequenceStore creates a sequence store at the given path.
func NewSequenceStore(path string) *SequenceStore {
	return &SequenceStore{path: path}
}

// NextID allocates the next track ID (TRK-001, TRK-002, ...).
func (s *SequenceStore) NextID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sd, err := s.load()
	if err != nil {
		return "", err
	}

	if sd.Next < 1 {
		sd.Next = 1
	}
	id := fmt.Sprintf("%s-%03d", IDPrefix, sd.Next)
	sd.Next++

	data, err := yaml.Marshal(sd)
	if err != nil {
		return "", fmt.Errorf("marshal sequences: %w", err)
	}
	if err := util.AtomicWriteFile(s.path, data, 0644); err != nil {
		return "", fmt.Errorf("write sequences: %w", err)
	}
	return id, nil
}

func (s *SequenceStore) load() (*sequenceData, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &sequenceData{Next: 1}, nil
		}
		return nil, fmt.Errorf("read sequences: %w", err)
	}

	var sd sequenceData
	if err := yaml.Unmarshal(data, &sd); err != nil {
		return nil, fmt.Errorf("parse sequences: %w", err)
	}
	return &sd, nil
}
