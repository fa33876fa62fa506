package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/trkhq/trk/internal/config"
	"github.com/trkhq/trk/internal/db"
	trkerrors "github.com/trkhq/trk/internal/errors"
	"github.com/trkhq/trk/internal/git"
	"github.com/trkhq/trk/internal/ledger"
	"github.com/trkhq/trk/internal/lock"
	"github.com/trkhq/trk/internal/store"
	"github.com/trkhq/trk/internal/track"
)

// workspace bundles everything a command needs once trk is initialized.
type workspace struct {
	root   string
	cfg    *config.Config
	store  *store.Store
	ledger *ledger.Ledger
}

// openWorkspace locates the project root and wires the store and ledger.
func openWorkspace() (*workspace, error) {
	root, err := config.FindProjectRoot()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	s := store.New(root)
	return &workspace{
		root:   root,
		cfg:    cfg,
		store:  s,
		ledger: ledger.New(filepath.Join(s.Dir(), store.TracksDir)),
	}, nil
}

// openDB opens the audit database for the workspace.
func (w *workspace) openDB() (*db.DB, error) {
	return db.Open(filepath.Join(w.store.Dir(), db.FileName))
}

// lockMutations takes the project write guard. The returned func releases it.
func (w *workspace) lockMutations() (func(), error) {
	guard := lock.NewGuard(w.store.Dir())
	if err := guard.Check(); err != nil {
		return nil, err
	}
	if err := guard.Acquire(); err != nil {
		return nil, err
	}
	return guard.Release, nil
}

// gitBackend returns the git backend rooted at the project directory.
func (w *workspace) gitBackend() *git.Git {
	return git.New(w.root)
}

// resolveRef parses a unit argument. Refs starting with a track ID are
// absolute; anything else (P1, P1/T2) is resolved against the active track.
func (w *workspace) resolveRef(arg string) (track.Ref, error) {
	first := strings.SplitN(arg, "/", 2)[0]
	if !strings.HasPrefix(first, "TRK-") {
		active, err := w.store.Active()
		if err != nil {
			return track.Ref{}, err
		}
		if active == "" {
			return track.Ref{}, trkerrors.ErrUnitNotFound(arg).WithCause(
				fmt.Errorf("relative ref requires an active track"))
		}
		arg = active + "/" + arg
	}
	r, err := track.ParseRef(arg)
	if err != nil {
		return track.Ref{}, trkerrors.ErrUnitNotFound(arg).WithCause(err)
	}
	return r, nil
}

// Styles for human output. Applied only when stdout is a terminal.

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle      = lipgloss.NewStyle().Faint(true)
	doneStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	revertedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func useColor() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}

func styled(style lipgloss.Style, s string) string {
	if !useColor() {
		return s
	}
	return style.Render(s)
}

func statusIcon(status track.Status) string {
	switch status {
	case track.StatusPending:
		return "○"
	case track.StatusInProgress:
		return "◐"
	case track.StatusDone:
		return "●"
	case track.StatusSkipped:
		return "⊘"
	case track.StatusReverted:
		return "↩"
	default:
		return "?"
	}
}

func statusLabel(status track.Status) string {
	s := string(status)
	switch status {
	case track.StatusDone:
		return styled(doneStyle, s)
	case track.StatusInProgress:
		return styled(progressStyle, s)
	case track.StatusReverted:
		return styled(revertedStyle, s)
	default:
		return s
	}
}

// terminalWidth returns the usable stdout width, or fallback when stdout is
// not a terminal.
func terminalWidth(fallback int) int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// confirm asks a yes/no question on the terminal. Non-interactive stdin
// answers no, so scripts must pass --yes explicitly.
func confirm(prompt string) bool {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return false
	}
	fmt.Printf("%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
