package git

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Field separators for parsing git log output. Record separator between
// commits, unit separator between fields inside the header line.
const (
	recordSep = "\x1e"
	fieldSep  = "\x1f"
)

// Git is the CLI-backed Backend for a repository at workDir.
type Git struct {
	workDir string
	runner  CommandRunner
}

// New creates a Git backend for the repository at workDir.
func New(workDir string) *Git {
	return NewWithRunner(workDir, NewExecRunner())
}

// NewWithRunner creates a Git backend with a custom command runner.
func NewWithRunner(workDir string, runner CommandRunner) *Git {
	return &Git{workDir: workDir, runner: runner}
}

// Log returns commits after since (exclusive) up to HEAD, oldest first,
// with changed files. Merge commits report no files and are skipped by the
// conflict scan the same way file-less commits are.
func (g *Git) Log(ctx context.Context, since string) ([]Commit, error) {
	args := []string{
		"log", "--reverse", "--name-only",
		"--pretty=format:" + recordSep + "%H" + fieldSep + "%ct",
	}
	if since != "" {
		args = append(args, since+"..HEAD")
	} else {
		args = append(args, "HEAD")
	}

	out, err := g.runner.Run(ctx, g.workDir, "git", args...)
	if err != nil {
		return nil, fmt.Errorf("git log: %w", err)
	}
	return parseLog(out)
}

// parseLog parses --name-only log output with our separators.
func parseLog(out string) ([]Commit, error) {
	var commits []Commit
	for _, block := range strings.Split(out, recordSep) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}

		lines := strings.Split(block, "\n")
		header := strings.SplitN(lines[0], fieldSep, 2)
		if len(header) != 2 {
			return nil, fmt.Errorf("malformed log record %q", lines[0])
		}

		epoch, err := strconv.ParseInt(strings.TrimSpace(header[1]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed commit time in %q: %w", lines[0], err)
		}

		c := Commit{
			ID:        strings.TrimSpace(header[0]),
			Timestamp: time.Unix(epoch, 0).UTC(),
		}
		for _, line := range lines[1:] {
			line = strings.TrimSpace(line)
			if line != "" {
				c.Files = append(c.Files, line)
			}
		}
		commits = append(commits, c)
	}
	return commits, nil
}

// RevertCommit creates an inverse commit for id. If the revert conflicts it
// is aborted so the working tree stays clean at the stopping point, and
// ErrRevertConflict is returned.
func (g *Git) RevertCommit(ctx context.Context, id string) error {
	out, err := g.runner.Run(ctx, g.workDir, "git", "revert", "--no-edit", id)
	if err == nil {
		return nil
	}

	if strings.Contains(out, "CONFLICT") || strings.Contains(out, "conflict") {
		// Leave the tree where the previous step finished, not mid-revert.
		_, _ = g.runner.Run(ctx, g.workDir, "git", "revert", "--abort")
		return fmt.Errorf("revert %s: %w", id, ErrRevertConflict)
	}
	return fmt.Errorf("revert %s: %w", id, err)
}

// CurrentHead returns the commit ID at the tip of the current branch.
func (g *Git) CurrentHead(ctx context.Context) (string, error) {
	out, err := g.runner.Run(ctx, g.workDir, "git", "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("rev-parse HEAD: %w", err)
	}
	return out, nil
}

// IsClean returns true if the working directory has no uncommitted changes.
// Reverts refuse to start on a dirty tree.
func (g *Git) IsClean(ctx context.Context) (bool, error) {
	out, err := g.runner.Run(ctx, g.workDir, "git", "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("git status: %w", err)
	}
	return out == "", nil
}
