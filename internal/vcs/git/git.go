// Package git provides a Git implementation of the VCS interface.
//
// This package wraps git commands to provide the operations the sync engine
// needs: status and history queries, commits, merges of the fetched remote
// branch, and pushes with bounded retry of transient network failures.
package git

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/framesync/framesync/internal/vcs"
)

// DefaultTimeout bounds a single git subprocess.
const DefaultTimeout = 2 * time.Minute

// Git implements the VCS interface for git repositories.
type Git struct {
	// repoRoot is the repository root directory path
	repoRoot string

	// vcsDir is the .git directory path (the private one for worktrees)
	vcsDir string

	// isWorktree indicates if this is a git worktree
	isWorktree bool

	// mainRepoRoot is the main repository root (for worktrees)
	mainRepoRoot string

	retry   vcs.RetryPolicy
	timeout time.Duration
	onRetry func(op string, err error, wait time.Duration)
}

// New creates a new Git VCS instance for the given repository.
// The path should be somewhere within a git repository.
func New(path string, opts vcs.Options) (*Git, error) {
	g := &Git{
		retry:   opts.Retry,
		timeout: opts.Timeout,
		onRetry: opts.OnRetry,
	}
	if g.retry.Attempts == 0 {
		g.retry = vcs.DefaultRetryPolicy()
	}
	if g.timeout == 0 {
		g.timeout = DefaultTimeout
	}

	// Detect repository information
	if err := g.detect(path); err != nil {
		return nil, err
	}

	return g, nil
}

// Name returns the VCS type (git)
func (g *Git) Name() vcs.Type {
	return vcs.TypeGit
}

// Version returns the git version string
func (g *Git) Version(ctx context.Context) (string, error) {
	output, err := g.run(ctx, "--version")
	if err != nil {
		return "", fmt.Errorf("failed to get git version: %w", err)
	}

	// Output format: "git version 2.39.0" (vendor builds append more)
	version := strings.TrimPrefix(vcs.TrimOutput(output), "git version ")
	return vcs.FirstWord([]byte(version)), nil
}

// LFSVersion returns the git-lfs version string
func (g *Git) LFSVersion(ctx context.Context) (string, error) {
	output, err := g.run(ctx, "lfs", "version")
	if err != nil {
		return "", fmt.Errorf("%w: git-lfs: %v", vcs.ErrVCSNotAvailable, err)
	}

	// Output format: "git-lfs/3.4.0 (GitHub; linux amd64; go 1.21.1)"
	return strings.TrimPrefix(vcs.FirstWord(output), "git-lfs/"), nil
}

// RepoRoot returns the repository root directory path
func (g *Git) RepoRoot() (string, error) {
	if g.repoRoot == "" {
		return "", vcs.ErrNotInVCS
	}
	return g.repoRoot, nil
}

// VCSDir returns the .git directory path
func (g *Git) VCSDir() (string, error) {
	if g.vcsDir == "" {
		return "", vcs.ErrNotInVCS
	}
	return g.vcsDir, nil
}

// run executes git in the repository root.
func (g *Git) run(ctx context.Context, args ...string) ([]byte, error) {
	return vcs.ExecContext(ctx, g.timeout, g.repoRoot, "git", args...)
}

// withRetry runs a network-facing operation under the retry policy.
func (g *Git) withRetry(ctx context.Context, op string, fn func() error) error {
	return g.retry.Retry(ctx, fn, func(err error, wait time.Duration) {
		if g.onRetry != nil {
			g.onRetry(op, err, wait)
		}
	})
}
