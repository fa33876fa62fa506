// Package ledger is the append-only commit ledger for trk.
//
// One JSONL file per track (.trk/tracks/<id>/ledger.jsonl) records which
// logical unit each commit belongs to. The file is only ever appended to:
// reverting a commit appends a compensating marker entry rather than
// removing the attribution, so the full history of "was reverted" survives
// for audit. The current view is derived by folding the log.
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	trkerrors "github.com/trkhq/trk/internal/errors"
	"github.com/trkhq/trk/internal/track"
	"github.com/trkhq/trk/internal/util"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

// FileName is the per-track ledger file name.
const FileName = "ledger.jsonl"

// Entry is one ledger record. Attribution entries (Reverted=false) map a
// commit to the unit that produced it; marker entries (Reverted=true)
// compensate an earlier attribution after a successful revert.
type Entry struct {
	// Unit is the owning logical unit ref (always a task for attributions)
	Unit string `json:"unit"`

	// Commit is the version-control commit SHA
	Commit string `json:"commit"`

	// Seq is strictly increasing per unit and matches commit creation order
	Seq int `json:"seq"`

	// GlobalSeq is strictly increasing per track; append order is
	// chronological order, which is what subtree merges sort by
	GlobalSeq int `json:"global_seq"`

	// RecordedAt is when the entry was appended
	RecordedAt time.Time `json:"recorded_at"`

	// Reverted marks a compensating entry
	Reverted bool `json:"reverted,omitempty"`

	// Inverse is the SHA of the inverse commit the revert created, set on
	// compensating entries when known
	Inverse string `json:"inverse,omitempty"`
}

// Ledger reads and appends per-track commit ledgers under a tracks directory.
type Ledger struct {
	tracksDir string
}

// New creates a ledger rooted at the tracks directory
// (typically <root>/.trk/tracks).
func New(tracksDir string) *Ledger {
	return &Ledger{tracksDir: tracksDir}
}

func (l *Ledger) path(trackID string) string {
	return filepath.Join(l.tracksDir, trackID, FileName)
}

// Record appends an attribution entry for a commit produced while working on
// unit. It fails with DuplicateCommit if the commit is already attributed to
// any unit in any track: a commit belongs to exactly one task.
func (l *Ledger) Record(unit track.Ref, commit string) (*Entry, error) {
	if !unit.IsTask() {
		return nil, fmt.Errorf("commits are recorded against tasks, got unit %s", unit)
	}
	if commit == "" {
		return nil, fmt.Errorf("empty commit id for unit %s", unit)
	}

	if owner, found, err := l.Owner(commit); err != nil {
		return nil, err
	} else if found {
		return nil, trkerrors.ErrDuplicateCommit(commit, owner.String())
	}

	entries, err := l.read(unit.Track)
	if err != nil {
		return nil, err
	}

	entry := Entry{
		Unit:       unit.String(),
		Commit:     commit,
		Seq:        nextSeq(entries, unit.String()),
		GlobalSeq:  nextGlobalSeq(entries),
		RecordedAt: time.Now().UTC(),
	}
	if err := l.append(unit.Track, entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// MarkReverted appends compensating marker entries for the given commits, in
// the given order. Attribution entries are never touched.
func (l *Ledger) MarkReverted(trackID string, commits []string) error {
	for _, commit := range commits {
		if err := l.MarkRevertedOne(trackID, commit, ""); err != nil {
			return err
		}
	}
	return nil
}

// MarkRevertedOne appends a compensating marker for a single commit,
// recording the inverse commit the revert created when known. The executor
// calls this after each step so a halted plan still leaves an accurate
// record of how far it got.
func (l *Ledger) MarkRevertedOne(trackID, commit, inverse string) error {
	entries, err := l.read(trackID)
	if err != nil {
		return err
	}

	unit := ""
	for _, e := range entries {
		if !e.Reverted && e.Commit == commit {
			unit = e.Unit
			break
		}
	}
	if unit == "" {
		return fmt.Errorf("commit %s is not recorded in track %s", commit, trackID)
	}

	marker := Entry{
		Unit:       unit,
		Commit:     commit,
		GlobalSeq:  nextGlobalSeq(entries),
		RecordedAt: time.Now().UTC(),
		Reverted:   true,
		Inverse:    inverse,
	}
	return l.append(trackID, marker)
}

// Inverses returns the set of inverse commit SHAs recorded by compensating
// entries across all tracks. The revert planner exempts these from conflict
// detection: an earlier revert's inverse commit is not dependent work.
func (l *Ledger) Inverses() (map[string]bool, error) {
	dirs, err := os.ReadDir(l.tracksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{}, nil
		}
		return nil, fmt.Errorf("scan tracks dir: %w", err)
	}

	inverses := make(map[string]bool)
	var mu sync.Mutex
	var g errgroup.Group
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		path := l.path(d.Name())
		g.Go(func() error {
			f, err := os.Open(path)
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return fmt.Errorf("open ledger %s: %w", path, err)
			}
			defer f.Close()

			scanner := bufio.NewScanner(f)
			for scanner.Scan() {
				line := scanner.Bytes()
				if inv := gjson.GetBytes(line, "inverse").String(); inv != "" {
					mu.Lock()
					inverses[inv] = true
					mu.Unlock()
				}
			}
			return scanner.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return inverses, nil
}

// EntriesFor returns the attribution entries belonging to exactly the given
// unit, in chronological order, including entries later compensated.
func (l *Ledger) EntriesFor(unit track.Ref) ([]Entry, error) {
	entries, err := l.read(unit.Track)
	if err != nil {
		return nil, err
	}

	var out []Entry
	for _, e := range entries {
		if e.Reverted {
			continue
		}
		ref, err := track.ParseRef(e.Unit)
		if err != nil {
			return nil, fmt.Errorf("ledger for %s: %w", unit.Track, err)
		}
		if ref == unit {
			out = append(out, e)
		}
	}
	return out, nil
}

// EntriesForSubtree returns the attribution entries of every unit under root
// (inclusive), merged in global chronological order across units. Commits
// from different tasks interleave in real history; GlobalSeq preserves that
// interleaving.
func (l *Ledger) EntriesForSubtree(root track.Ref) ([]Entry, error) {
	entries, err := l.read(root.Track)
	if err != nil {
		return nil, err
	}

	var out []Entry
	for _, e := range entries {
		if e.Reverted {
			continue
		}
		ref, err := track.ParseRef(e.Unit)
		if err != nil {
			return nil, fmt.Errorf("ledger for %s: %w", root.Track, err)
		}
		if root.Contains(ref) {
			out = append(out, e)
		}
	}
	return out, nil
}

// LiveEntriesForSubtree is EntriesForSubtree minus entries whose commit has
// a later compensating marker. This is the fold the revert planner works
// from: already-reverted commits never reappear in a plan.
func (l *Ledger) LiveEntriesForSubtree(root track.Ref) ([]Entry, error) {
	entries, err := l.read(root.Track)
	if err != nil {
		return nil, err
	}

	reverted := make(map[string]bool)
	for _, e := range entries {
		if e.Reverted {
			reverted[e.Commit] = true
		}
	}

	var out []Entry
	for _, e := range entries {
		if e.Reverted || reverted[e.Commit] {
			continue
		}
		ref, err := track.ParseRef(e.Unit)
		if err != nil {
			return nil, fmt.Errorf("ledger for %s: %w", root.Track, err)
		}
		if root.Contains(ref) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Entries returns every entry of a track's ledger, markers included, in
// append order. Used by the audit mirror.
func (l *Ledger) Entries(trackID string) ([]Entry, error) {
	return l.read(trackID)
}

// Owner reports which unit a commit is attributed to, scanning every track's
// ledger. Ledger files are read concurrently; lines are scanned with gjson
// field picks instead of a full decode since only two fields matter here.
func (l *Ledger) Owner(commit string) (track.Ref, bool, error) {
	dirs, err := os.ReadDir(l.tracksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return track.Ref{}, false, nil
		}
		return track.Ref{}, false, fmt.Errorf("scan tracks dir: %w", err)
	}

	var (
		mu    sync.Mutex
		owner string
	)
	var g errgroup.Group
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		path := l.path(d.Name())
		g.Go(func() error {
			unit, found, err := scanForCommit(path, commit)
			if err != nil {
				return err
			}
			if found {
				mu.Lock()
				owner = unit
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return track.Ref{}, false, err
	}
	if owner == "" {
		return track.Ref{}, false, nil
	}

	ref, err := track.ParseRef(owner)
	if err != nil {
		return track.Ref{}, false, fmt.Errorf("ledger owner for %s: %w", commit, err)
	}
	return ref, true, nil
}

// scanForCommit finds the attribution entry for a commit in one ledger file.
func scanForCommit(path, commit string) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("open ledger %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if gjson.GetBytes(line, "reverted").Bool() {
			continue
		}
		if gjson.GetBytes(line, "commit").String() == commit {
			return gjson.GetBytes(line, "unit").String(), true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", false, fmt.Errorf("scan ledger %s: %w", path, err)
	}
	return "", false, nil
}

func (l *Ledger) read(trackID string) ([]Entry, error) {
	f, err := os.Open(l.path(trackID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ledger for %s: %w", trackID, err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("ledger for %s line %d: %w", trackID, lineNo, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ledger for %s: %w", trackID, err)
	}
	return entries, nil
}

func (l *Ledger) append(trackID string, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}
	if err := util.AppendLine(l.path(trackID), data); err != nil {
		return fmt.Errorf("append ledger for %s: %w", trackID, err)
	}
	return nil
}

func nextSeq(entries []Entry, unit string) int {
	max := 0
	for _, e := range entries {
		if !e.Reverted && e.Unit == unit && e.Seq > max {
			max = e.Seq
		}
	}
	return max + 1
}

func nextGlobalSeq(entries []Entry) int {
	max := 0
	for _, e := range entries {
		if e.GlobalSeq > max {
			max = e.GlobalSeq
		}
	}
	return max + 1
}
