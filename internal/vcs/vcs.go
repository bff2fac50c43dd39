// Package vcs defines the narrow version control interface the sync engine
// drives.
//
// The engine never talks to git directly. Everything it needs (status,
// fetch, commit, merge, push, history, diffs and a handful of config
// lookups) goes through the VCS interface, so retry policy and error
// classification live in one place and tests can substitute a fake.
//
// # Usage
//
//	import _ "github.com/framesync/framesync/internal/vcs/git" // registers via init()
//
//	v, err := vcs.Open("/srv/frames", vcs.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	changes, err := v.Status(ctx)
//
// # Implementations
//
//   - internal/vcs/git: shells out to the git binary
package vcs

import (
	"context"
	"time"
)

// Type represents the VCS backend type
type Type string

const (
	// TypeGit indicates a git repository
	TypeGit Type = "git"
)

// String returns the string representation of the VCS type
func (t Type) String() string {
	return string(t)
}

// VCS defines the operations the sync engine performs against the working
// set's repository.
//
// Every call may block on a subprocess or on the network. Network-facing
// calls (Fetch, Pull, Push) retry transient failures internally according
// to the implementation's RetryPolicy and return a non-retryable error
// unchanged.
type VCS interface {
	// ===================
	// Identity
	// ===================

	// Name returns the VCS type
	Name() Type

	// Version returns the VCS binary version string (e.g. "2.43.0")
	Version(ctx context.Context) (string, error)

	// LFSVersion returns the large-file-storage extension version, or
	// ErrVCSNotAvailable when the extension is not installed.
	LFSVersion(ctx context.Context) (string, error)

	// ===================
	// Repository Information
	// ===================

	// RepoRoot returns the working tree root directory path.
	RepoRoot() (string, error)

	// VCSDir returns the VCS metadata directory path (.git).
	VCSDir() (string, error)

	// CurrentRef returns the current branch name.
	// Returns ErrDetached if HEAD is not on a branch.
	CurrentRef(ctx context.Context) (string, error)

	// RevParse resolves a reference to a full commit hash.
	// Returns ErrRefNotFound if the reference does not exist.
	RevParse(ctx context.Context, ref string) (string, error)

	// RemoteURL returns the fetch URL of the named remote.
	// Returns ErrNoRemote if the remote is not configured.
	RemoteURL(ctx context.Context, remote string) (string, error)

	// ConfigGet returns a config value, or "" if unset.
	ConfigGet(ctx context.Context, key string) (string, error)

	// HasDivergence counts commits unique to local and to remote.
	HasDivergence(ctx context.Context, local, remote string) (DivergenceInfo, error)

	// MergeBase returns the best common ancestor of two refs.
	// Returns ErrRefNotFound if they share no history.
	MergeBase(ctx context.Context, a, b string) (string, error)

	// ===================
	// Status Operations
	// ===================

	// Status returns one FileStatus per changed path in the working tree,
	// including untracked files.
	Status(ctx context.Context) ([]FileStatus, error)

	// ChangedFiles returns the files that differ between two refs, with
	// rename detection. An empty base means the empty tree; a base of the
	// form "a...b" with an empty target is passed through as-is.
	ChangedFiles(ctx context.Context, base, target string) ([]FileStatus, error)

	// Diff returns a unified diff of the working tree against HEAD for the
	// given paths with the given number of context lines.
	Diff(ctx context.Context, paths []string, contextLines int) (string, error)

	// ExtractFileFromRef returns a file's content at a specific ref.
	// Returns ErrRefNotFound if the ref or the path does not exist there.
	ExtractFileFromRef(ctx context.Context, ref, path string) ([]byte, error)

	// Log returns up to maxCount commits reachable from revRange
	// (e.g. "HEAD", "abc123..def456"), newest first. Merge commits are
	// skipped.
	Log(ctx context.Context, maxCount int, revRange string) ([]CommitInfo, error)

	// HasConflicts returns true if there are unmerged paths
	HasConflicts(ctx context.Context) (bool, error)

	// GetConflictedFiles returns the list of unmerged paths
	GetConflictedFiles(ctx context.Context) ([]string, error)

	// ===================
	// Working Tree Operations
	// ===================

	// Commit stages and commits changes and returns the new HEAD hash.
	// Returns ErrNothingToCommit if nothing was staged.
	Commit(ctx context.Context, opts CommitOptions) (string, error)

	// Move renames a tracked file.
	Move(ctx context.Context, from, to string) error

	// Unstage removes paths from the index without touching the working
	// tree. Paths that are not staged are ignored.
	Unstage(ctx context.Context, paths ...string) error

	// Reset moves HEAD to ref using the given mode.
	Reset(ctx context.Context, ref string, mode ResetMode) error

	// ===================
	// Remote Operations
	// ===================

	// Fetch fetches ref from remote.
	// Returns ErrRefNotFound if the remote does not have ref yet.
	Fetch(ctx context.Context, remote, ref string) error

	// Pull fetches (unless opts.SkipFetch) and merges the remote tracking
	// branch into the current branch. Divergence that cannot be merged is
	// returned as a *MergeError wrapping ErrConflicts or ErrMergeRequired;
	// the working tree is left as the merge left it.
	Pull(ctx context.Context, opts PullOptions) (PullResult, error)

	// Push pushes the branch to the remote.
	Push(ctx context.Context, opts PushOptions) error
}

// ===================
// Supporting Types
// ===================

// FileStatus represents the status of a file in the working directory
type FileStatus struct {
	// Path is the file path relative to repository root.
	// For renames this is the new path.
	Path string

	// OrigPath is the previous path for renames and copies
	OrigPath string

	// Status is the working directory status
	Status StatusCode

	// StagedCode is the staging area status
	StagedCode StatusCode
}

// Effective collapses the staged and working tree codes into the single
// status that describes what the change does.
func (f FileStatus) Effective() StatusCode {
	has := func(c StatusCode) bool {
		return f.StagedCode == c || f.Status == c
	}

	switch {
	case has(StatusUntracked):
		return StatusUntracked
	case has(StatusConflict):
		return StatusConflict
	case has(StatusRenamed):
		return StatusRenamed
	case has(StatusCopied):
		return StatusCopied
	case has(StatusAdded):
		return StatusAdded
	case has(StatusDeleted):
		return StatusDeleted
	case has(StatusModified):
		return StatusModified
	default:
		return StatusUnmodified
	}
}

// StatusCode represents file status codes
type StatusCode string

const (
	StatusUnmodified StatusCode = " " // No changes
	StatusModified   StatusCode = "M" // Modified
	StatusAdded      StatusCode = "A" // Added/new file
	StatusDeleted    StatusCode = "D" // Deleted
	StatusRenamed    StatusCode = "R" // Renamed
	StatusCopied     StatusCode = "C" // Copied
	StatusUntracked  StatusCode = "?" // Untracked
	StatusIgnored    StatusCode = "!" // Ignored
	StatusConflict   StatusCode = "U" // Unmerged/conflict
)

// ResetMode selects how Reset treats the index and working tree
type ResetMode string

const (
	ResetSoft  ResetMode = "soft"
	ResetMixed ResetMode = "mixed"
	ResetHard  ResetMode = "hard"
)

// CommitOptions configures a commit operation
type CommitOptions struct {
	// Message is the commit message (required)
	Message string

	// Paths specifies files to stage and commit. Empty = stage everything
	// (additions, modifications and deletions) in the working tree.
	Paths []string

	// Author overrides the commit author (optional, format: "Name <email>")
	Author string

	// NoVerify skips pre-commit hooks
	NoVerify bool
}

// PullOptions configures a pull operation
type PullOptions struct {
	// Remote is the remote name. Empty uses "origin".
	Remote string

	// Ref is the branch to merge. Empty uses the current branch.
	Ref string

	// FFOnly refuses anything but a fast-forward; divergence is
	// reported as ErrMergeRequired.
	FFOnly bool

	// SkipFetch merges the already-fetched remote tracking branch.
	SkipFetch bool
}

// PullOutcome describes what a successful pull did
type PullOutcome string

const (
	// PullUpToDate means the remote had nothing new
	PullUpToDate PullOutcome = "up-to-date"

	// PullFastForward means the local branch moved to the remote tip
	PullFastForward PullOutcome = "fast-forward"

	// PullMerged means a merge commit joined local and remote history
	PullMerged PullOutcome = "merged"

	// PullNoRemoteBranch means the remote does not have the branch yet
	PullNoRemoteBranch PullOutcome = "no-remote-branch"
)

// PullResult reports a successful pull
type PullResult struct {
	Outcome PullOutcome

	// Before and After are the HEAD hashes around the merge.
	// Before is empty on an unborn branch.
	Before string
	After  string
}

// Changed reports whether the pull moved HEAD
func (r PullResult) Changed() bool {
	return r.Outcome == PullFastForward || r.Outcome == PullMerged
}

// PushOptions configures a push operation
type PushOptions struct {
	// Remote is the remote name. Empty uses "origin".
	Remote string

	// Ref is the reference to push. Empty uses current branch.
	Ref string

	// SetUpstream configures the upstream tracking reference
	SetUpstream bool
}

// DivergenceInfo describes divergence between local and remote refs
type DivergenceInfo struct {
	// LocalAhead is the number of commits local is ahead of remote
	LocalAhead int

	// RemoteAhead is the number of commits remote is ahead of local
	RemoteAhead int

	// IsDiverged is true if both local and remote have unique commits
	IsDiverged bool
}

// IsBehind is true when the remote has commits and local has none of its own
func (d DivergenceInfo) IsBehind() bool {
	return d.RemoteAhead > 0 && d.LocalAhead == 0
}

// CommitInfo describes a single commit
type CommitInfo struct {
	Hash    string
	Author  string
	Date    time.Time
	Subject string
}

// ShortHash returns the abbreviated commit hash
func (c CommitInfo) ShortHash() string {
	if len(c.Hash) > 7 {
		return c.Hash[:7]
	}
	return c.Hash
}

// ===================
// Constants
// ===================

// DefaultRemote is the remote used when none is configured
const DefaultRemote = "origin"
