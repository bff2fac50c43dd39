package git

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/framesync/framesync/internal/vcs"
)

// detect populates git repository information
func (g *Git) detect(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Use git rev-parse to get all info in one call
	output, err := vcs.ExecContext(context.Background(), g.timeout, absPath,
		"git", "rev-parse", "--git-dir", "--git-common-dir", "--show-toplevel")
	if err != nil {
		if errors.Is(err, vcs.ErrVCSNotAvailable) {
			return err
		}
		return vcs.ErrNotInVCS
	}

	lines := vcs.ParseLines(output)
	if len(lines) < 3 {
		return fmt.Errorf("unexpected git rev-parse output: got %d lines, expected 3", len(lines))
	}

	gitDir := lines[0]
	commonDir := lines[1]
	repoRoot := lines[2]

	// Convert to absolute paths
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(absPath, gitDir)
	}
	if !filepath.IsAbs(commonDir) {
		commonDir = filepath.Join(absPath, commonDir)
	}

	g.vcsDir = filepath.Clean(gitDir)
	g.repoRoot = normalizeRepoRoot(repoRoot)

	// Detect worktree by comparing git-dir and common-dir
	g.isWorktree = filepath.Clean(gitDir) != filepath.Clean(commonDir)

	if g.isWorktree {
		g.mainRepoRoot = filepath.Dir(filepath.Clean(commonDir))
	} else {
		g.mainRepoRoot = g.repoRoot
	}

	return nil
}

// normalizeRepoRoot normalizes the repository root path
// Resolves symlinks and canonicalizes case on case-insensitive filesystems
func normalizeRepoRoot(path string) string {
	path = filepath.FromSlash(path)

	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}

	return path
}

// RemoteURL returns the fetch URL of the named remote
func (g *Git) RemoteURL(ctx context.Context, remote string) (string, error) {
	if remote == "" {
		remote = vcs.DefaultRemote
	}

	output, err := g.run(ctx, "remote", "get-url", remote)
	if err != nil {
		return "", fmt.Errorf("%w: %s", vcs.ErrNoRemote, remote)
	}

	return vcs.TrimOutput(output), nil
}

// ConfigGet returns a git config value, or "" if unset
func (g *Git) ConfigGet(ctx context.Context, key string) (string, error) {
	output, err := g.run(ctx, "config", "--get", key)
	if err != nil {
		// Exit status 1 means the key is not set
		if vcs.GetExitCode(err) == 1 {
			return "", nil
		}
		return "", fmt.Errorf("git config %s failed: %w", key, err)
	}

	return vcs.TrimOutput(output), nil
}

// HasConflicts returns true if there are unresolved conflicts
func (g *Git) HasConflicts(ctx context.Context) (bool, error) {
	files, err := g.GetConflictedFiles(ctx)
	if err != nil {
		return false, err
	}
	return len(files) > 0, nil
}

// GetConflictedFiles returns the list of files with conflicts
func (g *Git) GetConflictedFiles(ctx context.Context) ([]string, error) {
	output, err := g.run(ctx, "diff", "--name-only", "--diff-filter=U", "-z")
	if err != nil {
		return nil, fmt.Errorf("git diff failed: %w", err)
	}

	return vcs.ParseNullSeparated(output), nil
}

// hasHead reports whether the current branch has at least one commit.
func (g *Git) hasHead(ctx context.Context) bool {
	_, err := g.RevParse(ctx, "HEAD")
	return err == nil
}

// checkRef keeps user supplied refs from being read as options.
func checkRef(ref string) error {
	if strings.HasPrefix(ref, "-") {
		return fmt.Errorf("invalid ref %q", ref)
	}
	return nil
}
