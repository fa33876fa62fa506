package cli

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trkhq/trk/internal/config"
	"github.com/trkhq/trk/internal/ledger"
	"github.com/trkhq/trk/internal/store"
	"github.com/trkhq/trk/internal/track"
)

func testWorkspace(t *testing.T) *workspace {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, config.Init(root, false))
	s := store.New(root)
	return &workspace{
		root:   root,
		cfg:    config.Default(),
		store:  s,
		ledger: ledger.New(filepath.Join(s.Dir(), store.TracksDir)),
	}
}

func seedTrack(t *testing.T, w *workspace, id string) {
	t.Helper()
	tr := &track.Track{
		ID:        id,
		Title:     "seed",
		CreatedAt: time.Now().UTC(),
		Phases: []track.Phase{
			{ID: "P1", Title: "one", Tasks: []track.Task{{ID: "T1", Title: "t", Status: track.StatusPending}}},
		},
	}
	require.NoError(t, w.store.Save(tr))
}

func TestResolveRefAbsolute(t *testing.T) {
	w := testWorkspace(t)
	seedTrack(t, w, "TRK-001")

	ref, err := w.resolveRef("TRK-001/P1/T1")
	require.NoError(t, err)
	assert.Equal(t, track.Ref{Track: "TRK-001", Phase: "P1", Task: "T1"}, ref)
}

func TestResolveRefRelativeToActive(t *testing.T) {
	w := testWorkspace(t)
	seedTrack(t, w, "TRK-001")
	require.NoError(t, w.store.SetActive("TRK-001"))

	ref, err := w.resolveRef("P1/T1")
	require.NoError(t, err)
	assert.Equal(t, "TRK-001/P1/T1", ref.String())

	ref, err = w.resolveRef("P1")
	require.NoError(t, err)
	assert.Equal(t, "TRK-001/P1", ref.String())
}

func TestResolveRefRelativeWithoutActive(t *testing.T) {
	w := testWorkspace(t)
	seedTrack(t, w, "TRK-001")

	_, err := w.resolveRef("P1/T1")
	assert.Error(t, err, "relative refs need an active track")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a very ...", truncate("a very long title", 10))
}

func TestShortSHA(t *testing.T) {
	assert.Equal(t, "3f2a91cd", shortSHA("3f2a91cd00112233"))
	assert.Equal(t, "abc", shortSHA("abc"))
}

func TestTrackOf(t *testing.T) {
	assert.Equal(t, "TRK-001", trackOf("TRK-001/P1/T2"))
	assert.Equal(t, "TRK-001", trackOf("TRK-001"))
}

func TestStatusIconCoversAllStatuses(t *testing.T) {
	for _, s := range track.ValidStatuses() {
		assert.NotEqual(t, "?", statusIcon(s), "status %s has no icon", s)
	}
}
