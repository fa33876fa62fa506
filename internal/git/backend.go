// Package git provides the version-control backend for trk.
//
// The revert engine only needs three primitives from the backend: history
// with changed files, single-commit revert, and the current head. Keeping
// the interface this narrow isolates the revert-ordering logic from backend
// quirks and lets tests run against an in-memory fake.
package git

import (
	"context"
	"errors"
	"time"
)

// Commit is one history record as the revert engine sees it.
type Commit struct {
	// ID is the commit SHA
	ID string

	// Timestamp is the committer time
	Timestamp time.Time

	// Files lists the paths the commit changed
	Files []string
}

// ErrRevertConflict is returned by RevertCommit when the inverse operation
// cannot apply without manual conflict resolution. The working tree is left
// clean (the conflicted revert is aborted); the caller decides what happens
// next.
var ErrRevertConflict = errors.New("revert produced conflicts")

// Backend is the narrow capability interface the revert engine depends on.
// Any backend exposing these primitives is sufficient.
type Backend interface {
	// Log returns commits after `since` (exclusive) up to the current
	// head, oldest first, with the files each commit changed. An empty
	// `since` returns the full history.
	Log(ctx context.Context, since string) ([]Commit, error)

	// RevertCommit creates an inverse commit for the given commit.
	// Returns ErrRevertConflict if the inverse cannot apply cleanly.
	RevertCommit(ctx context.Context, id string) error

	// CurrentHead returns the commit ID at the tip of the current branch.
	CurrentHead(ctx context.Context) (string, error)
}
