package sync

import (
	"errors"
	"fmt"

	"github.com/framesync/framesync/internal/vcs"
)

// ErrorKind tells a caller what to do about a failed operation
type ErrorKind string

const (
	// KindBusy: another sync holds the lock, try again later
	KindBusy ErrorKind = "busy"

	// KindValidation: newly added files were rejected and rolled back
	KindValidation ErrorKind = "validation"

	// KindNetwork: the remote could not be reached after retrying
	KindNetwork ErrorKind = "network"

	// KindConflict: a conflict could not be resolved
	KindConflict ErrorKind = "conflict"

	KindCommit ErrorKind = "commit"
	KindPull   ErrorKind = "pull"
	KindPush   ErrorKind = "push"

	// KindLock: a lock file blocked the operation and was not stale
	KindLock ErrorKind = "lock"

	// KindConfiguration: the working set is not set up correctly
	KindConfiguration ErrorKind = "configuration"
)

// ErrBusy is returned when another sync holds the lock
var ErrBusy = errors.New("sync already in progress")

// ErrWrongBranch is returned when the checked-out branch is not the
// configured sync branch
var ErrWrongBranch = errors.New("not on the sync branch")

// Error is a failed pipeline step
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind recorded in err, or "" if err is not an *Error
func KindOf(err error) ErrorKind {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Kind
	}
	return ""
}

// fail wraps err with the kind a failure of op implies. Transport and
// lock failures keep their own kind whatever step they happened in.
func fail(kind ErrorKind, op string, err error) error {
	switch {
	case vcs.IsLockError(err):
		kind = KindLock
	case vcs.IsRetryable(err):
		kind = KindNetwork
	case errors.Is(err, vcs.ErrNoRemote), errors.Is(err, vcs.ErrDetached),
		errors.Is(err, vcs.ErrAuth), errors.Is(err, ErrWrongBranch), vcs.IsFatal(err):
		kind = KindConfiguration
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
