// Package errors provides structured error types for trk.
//
// Every failure names the exact track, unit, or commit implicated so the
// caller can form a narrower or corrective next request. Callers match on
// Code via errors.Is with the sentinel constructors below.
package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for trk.
const (
	// Initialization errors
	CodeNotInitialized     Code = "TRK_NOT_INITIALIZED"
	CodeAlreadyInitialized Code = "TRK_ALREADY_INITIALIZED"

	// Plan store errors
	CodeTrackNotFound Code = "TRACK_NOT_FOUND"
	CodeUnitNotFound  Code = "UNIT_NOT_FOUND"
	CodePlanInvalid   Code = "PLAN_INVALID"

	// Status engine errors
	CodeIllegalTransition Code = "ILLEGAL_TRANSITION"

	// Ledger errors
	CodeDuplicateCommit Code = "DUPLICATE_COMMIT"

	// Revert errors
	CodeDependentWork Code = "DEPENDENT_WORK"
	CodePartialRevert Code = "PARTIAL_REVERT"

	// Backend errors
	CodeBackendUnavailable Code = "BACKEND_UNAVAILABLE"

	// Config errors
	CodeConfigInvalid Code = "CONFIG_INVALID"
)

// TrkError is the structured error type for trk.
type TrkError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *TrkError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *TrkError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly message for CLI output.
func (e *TrkError) UserMessage() string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\n\nWhy: ")
		b.WriteString(e.Why)
	}
	if e.Fix != "" {
		b.WriteString("\n\nFix: ")
		b.WriteString(e.Fix)
	}
	return b.String()
}

// MarshalJSON implements json.Marshaler.
func (e *TrkError) MarshalJSON() ([]byte, error) {
	type alias TrkError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is a TrkError with the same code.
func (e *TrkError) Is(target error) bool {
	t, ok := target.(*TrkError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *TrkError) WithCause(err error) *TrkError {
	return &TrkError{
		Code:  e.Code,
		What:  e.What,
		Why:   e.Why,
		Fix:   e.Fix,
		Cause: err,
	}
}

// --- Error constructors ---

// ErrNotInitialized returns an error for an uninitialized trk directory.
func ErrNotInitialized() *TrkError {
	return &TrkError{
		Code: CodeNotInitialized,
		What: "trk is not initialized in this directory",
		Why:  "No .trk/ directory found in the current path or its parents",
		Fix:  "Run 'trk init' to initialize trk in this repository",
	}
}

// ErrAlreadyInitialized returns an error when trk is already initialized.
func ErrAlreadyInitialized(path string) *TrkError {
	return &TrkError{
		Code: CodeAlreadyInitialized,
		What: "trk is already initialized",
		Why:  fmt.Sprintf("Found existing .trk/ directory at %s", path),
		Fix:  "Use 'trk init --force' to reinitialize, or remove .trk/ manually",
	}
}

// ErrTrackNotFound returns an error when a track doesn't exist.
func ErrTrackNotFound(id string) *TrkError {
	return &TrkError{
		Code: CodeTrackNotFound,
		What: fmt.Sprintf("track %s not found", id),
		Why:  "No track with this ID exists in the current project",
		Fix:  "Run 'trk list' to see available tracks, or start one with 'trk start'",
	}
}

// ErrUnitNotFound returns an error when a phase or task ref resolves to nothing.
func ErrUnitNotFound(ref string) *TrkError {
	return &TrkError{
		Code: CodeUnitNotFound,
		What: fmt.Sprintf("unit %s not found", ref),
		Why:  "No track, phase, or task matches this reference",
		Fix:  "Run 'trk status' to see the unit tree; refs look like TRK-001/P1/T2",
	}
}

// ErrPlanInvalid returns an error for a malformed authored plan.
func ErrPlanInvalid(reason string) *TrkError {
	return &TrkError{
		Code: CodePlanInvalid,
		What: "plan document is invalid",
		Why:  reason,
		Fix:  "Fix the plan file and run 'trk start' again",
	}
}

// ErrIllegalTransition returns an error for a status change the state machine forbids.
func ErrIllegalTransition(ref string, from, to string) *TrkError {
	return &TrkError{
		Code: CodeIllegalTransition,
		What: fmt.Sprintf("task %s cannot move from '%s' to '%s'", ref, from, to),
		Why:  "Only forward transitions are legal during implementation; backward moves happen only through revert",
		Fix:  "Use 'trk revert' to roll work back, or pick a legal forward status",
	}
}

// ErrDuplicateCommit returns an error when a commit is already attributed to another unit.
func ErrDuplicateCommit(commit, owner string) *TrkError {
	return &TrkError{
		Code: CodeDuplicateCommit,
		What: fmt.Sprintf("commit %s is already recorded for %s", commit, owner),
		Why:  "A commit belongs to exactly one task; cross-attribution is rejected",
		Fix:  "Record a different commit, or revert the owning unit first",
	}
}

// ErrDependentWork returns an error when later out-of-subtree commits overlap
// files touched by the target's commits.
func ErrDependentWork(target string, conflicts []string) *TrkError {
	return &TrkError{
		Code: CodeDependentWork,
		What: fmt.Sprintf("reverting %s would conflict with later work", target),
		Why:  fmt.Sprintf("Units %s touched the same files after %s's commits", strings.Join(conflicts, ", "), target),
		Fix:  "Revert the conflicting units first, narrow the target, or pass --force to serialize the revert",
	}
}

// ErrPartialRevert returns an error when execution halted mid-plan.
func ErrPartialRevert(target, failedCommit string, done, total int) *TrkError {
	return &TrkError{
		Code: CodePartialRevert,
		What: fmt.Sprintf("revert of %s halted at commit %s", target, failedCommit),
		Why:  fmt.Sprintf("%d of %d commits reverted cleanly before a conflict; nothing past the stopping point was touched", done, total),
		Fix:  "Resolve the conflict in the working tree, then request a fresh plan from the recorded stopping point",
	}
}

// ErrBackendUnavailable returns an error when a git primitive failed for
// reasons outside trk's control.
func ErrBackendUnavailable(op string, cause error) *TrkError {
	return &TrkError{
		Code:  CodeBackendUnavailable,
		What:  fmt.Sprintf("git %s failed", op),
		Why:   "The version-control backend rejected the operation (dirty working tree, missing object, or repo misconfiguration)",
		Fix:   "Check 'git status' and repository health, then retry",
		Cause: cause,
	}
}

// ErrConfigInvalid returns an error for invalid configuration.
func ErrConfigInvalid(field, reason string) *TrkError {
	return &TrkError{
		Code: CodeConfigInvalid,
		What: fmt.Sprintf("invalid configuration: %s", field),
		Why:  reason,
		Fix:  "Check .trk/config.yaml and fix the invalid field",
	}
}

// AsTrkError attempts to convert an error to a TrkError.
// Returns nil if the error is not a TrkError.
func AsTrkError(err error) *TrkError {
	var trkErr *TrkError
	if As(err, &trkErr) {
		return trkErr
	}
	return nil
}

// As is a convenience wrapper for errors.As semantics on TrkError chains.
func As(err error, target any) bool {
	return asError(err, target)
}

func asError(err error, target any) bool {
	if err == nil {
		return false
	}
	if trkErr, ok := err.(*TrkError); ok {
		if t, ok := target.(**TrkError); ok {
			*t = trkErr
			return true
		}
	}
	if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
		return asError(unwrapper.Unwrap(), target)
	}
	return false
}

// Wrap wraps a generic error into a TrkError with unknown code.
func Wrap(err error, what string) *TrkError {
	return &TrkError{
		Code:  Code("UNKNOWN"),
		What:  what,
		Cause: err,
	}
}
