package vcs

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by VCS operations.
//
// These errors can be checked using errors.Is() for proper error handling:
//
//	if errors.Is(err, vcs.ErrNetwork) {
//	    // transient, a later attempt may succeed
//	}
var (
	// ErrNotInVCS is returned when the operation requires being inside
	// a VCS repository but none was found.
	ErrNotInVCS = errors.New("not in a VCS repository")

	// ErrVCSNotAvailable is returned when the required binary (or
	// extension) is not installed or not in PATH.
	ErrVCSNotAvailable = errors.New("VCS binary not available")

	// ErrRefNotFound is returned when attempting to operate on
	// a reference that doesn't exist.
	ErrRefNotFound = errors.New("reference not found")

	// ErrNoRemote is returned when an operation requires a remote
	// but none is configured.
	ErrNoRemote = errors.New("no remote configured")

	// ErrConflicts is returned when a merge stopped on conflicting paths.
	ErrConflicts = errors.New("unresolved conflicts")

	// ErrMergeRequired is returned when local and remote histories have
	// diverged and the requested pull cannot join them.
	ErrMergeRequired = errors.New("merge required")

	// ErrDetached is returned when an operation requires being on
	// a branch but HEAD is detached.
	ErrDetached = errors.New("not on a branch")

	// ErrPushRejected is returned when a push is rejected by the remote,
	// typically due to non-fast-forward updates.
	ErrPushRejected = errors.New("push rejected by remote")

	// ErrNothingToCommit is returned when a commit was requested but
	// nothing was staged.
	ErrNothingToCommit = errors.New("nothing to commit")

	// ErrLocked is returned when the VCS refused to run because another
	// process holds one of its lock files (index.lock and friends).
	ErrLocked = errors.New("repository is locked by another process")

	// ErrNetwork is returned when the remote could not be reached.
	ErrNetwork = errors.New("remote unreachable")

	// ErrAuth is returned when the remote rejected our credentials.
	ErrAuth = errors.New("authentication failed")

	// ErrTimeout is returned when a VCS operation exceeds its timeout.
	ErrTimeout = errors.New("operation timed out")
)

// CommandError describes a failed VCS subprocess.
// It unwraps to both the classified sentinel (Kind) and the process error.
type CommandError struct {
	Args   []string
	Output string
	Kind   error
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("git %s failed: %v", strings.Join(e.Args, " "), e.Err)
	if e.Kind != nil {
		msg = fmt.Sprintf("git %s failed (%v): %v", strings.Join(e.Args, " "), e.Kind, e.Err)
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *CommandError) Unwrap() []error {
	if e.Kind == nil {
		return []error{e.Err}
	}
	return []error{e.Kind, e.Err}
}

// MergeError is returned by Pull when histories could not be joined.
type MergeError struct {
	// Kind is ErrConflicts or ErrMergeRequired
	Kind error

	// Files lists the unmerged paths, if any
	Files []string

	Output string
}

func (e *MergeError) Error() string {
	if len(e.Files) > 0 {
		return fmt.Sprintf("%v: %s", e.Kind, strings.Join(e.Files, ", "))
	}
	return e.Kind.Error()
}

func (e *MergeError) Unwrap() error {
	return e.Kind
}

// outputPatterns maps substrings of VCS output to the sentinel they imply.
// Order matters: the first match wins.
var outputPatterns = []struct {
	needle string
	kind   error
}{
	{".lock': File exists", ErrLocked},
	{"Another git process seems to be running", ErrLocked},
	{"Authentication failed", ErrAuth},
	{"could not read Username", ErrAuth},
	{"Permission denied (publickey", ErrAuth},
	{"The requested URL returned error: 403", ErrAuth},
	{"The requested URL returned error: 401", ErrAuth},
	{"No such remote", ErrNoRemote},
	{"does not appear to be a git repository", ErrNoRemote},
	{"Could not resolve host", ErrNetwork},
	{"Could not resolve hostname", ErrNetwork},
	{"Connection timed out", ErrNetwork},
	{"Connection refused", ErrNetwork},
	{"Connection reset", ErrNetwork},
	{"Network is unreachable", ErrNetwork},
	{"Operation timed out", ErrNetwork},
	{"The remote end hung up unexpectedly", ErrNetwork},
	{"early EOF", ErrNetwork},
	{"unable to access", ErrNetwork},
	{"Could not read from remote repository", ErrNetwork},
	{"couldn't find remote ref", ErrRefNotFound},
	{"unknown revision", ErrRefNotFound},
	{"not a valid object name", ErrRefNotFound},
	{"invalid object name", ErrRefNotFound},
	{"bad revision", ErrRefNotFound},
	{"does not exist in", ErrRefNotFound},
	{"exists on disk, but not in", ErrRefNotFound},
	{"CONFLICT", ErrConflicts},
	{"fix conflicts", ErrConflicts},
	{"unmerged files", ErrConflicts},
	{"Not possible to fast-forward", ErrMergeRequired},
	{"refusing to merge unrelated histories", ErrMergeRequired},
	{"divergent branches", ErrMergeRequired},
	{"[rejected]", ErrPushRejected},
	{"non-fast-forward", ErrPushRejected},
	{"Updates were rejected", ErrPushRejected},
	{"nothing to commit", ErrNothingToCommit},
	{"nothing added to commit", ErrNothingToCommit},
	{"not a git repository", ErrNotInVCS},
}

// ClassifyOutput maps VCS output to a sentinel error, or nil when the
// output matches no known failure.
func ClassifyOutput(output string) error {
	for _, p := range outputPatterns {
		if strings.Contains(output, p.needle) {
			return p.kind
		}
	}
	return nil
}

// IsRetryable returns true if the error is likely to succeed on retry.
// Only transport failures qualify; semantic failures (conflicts,
// authentication, rejected pushes) never do.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrAuth) {
		return false
	}

	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrTimeout)
}

// IsLockError returns true if the error came from a VCS lock file rather
// than from the operation itself.
func IsLockError(err error) bool {
	return err != nil && errors.Is(err, ErrLocked)
}

// IsUserActionRequired returns true if the error requires user intervention
// to resolve (conflicts, divergent history, etc).
func IsUserActionRequired(err error) bool {
	if err == nil {
		return false
	}

	// Conflicts need manual resolution
	if errors.Is(err, ErrConflicts) {
		return true
	}

	// Divergent histories need merge decision
	if errors.Is(err, ErrMergeRequired) {
		return true
	}

	// Push rejected usually means divergent remote
	if errors.Is(err, ErrPushRejected) {
		return true
	}

	return errors.Is(err, ErrAuth)
}

// IsFatal returns true if the error indicates a non-recoverable state
// that requires manual intervention or re-initialization.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	// Not in VCS means we can't do anything
	if errors.Is(err, ErrNotInVCS) {
		return true
	}

	// Binary not available means we can't execute commands
	if errors.Is(err, ErrVCSNotAvailable) {
		return true
	}

	return false
}
