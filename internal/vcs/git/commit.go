package git

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/framesync/framesync/internal/vcs"
)

// Status returns the status of files in the working directory
func (g *Git) Status(ctx context.Context) ([]vcs.FileStatus, error) {
	output, err := g.run(ctx, "status", "--porcelain=v1", "-z", "--untracked-files=all")
	if err != nil {
		return nil, fmt.Errorf("git status failed: %w", err)
	}

	return parsePorcelain(output), nil
}

// parsePorcelain parses `git status --porcelain=v1 -z` output.
//
// Each entry is "XY path"; renames and copies are followed by a second
// field holding the original path.
func parsePorcelain(output []byte) []vcs.FileStatus {
	fields := vcs.ParseNullSeparated(output)

	var statuses []vcs.FileStatus
	for i := 0; i < len(fields); i++ {
		entry := fields[i]
		if len(entry) < 4 {
			continue
		}

		// X = staged status, Y = unstaged status
		status := vcs.FileStatus{
			Path:       entry[3:],
			StagedCode: parseStatusCode(entry[0:1]),
			Status:     parseStatusCode(entry[1:2]),
		}

		// Unmerged combinations (DD, AU, UD, UA, DU, AA, UU)
		switch entry[:2] {
		case "DD", "AU", "UD", "UA", "DU", "AA", "UU":
			status.StagedCode = vcs.StatusConflict
			status.Status = vcs.StatusConflict
		}

		if (entry[0] == 'R' || entry[0] == 'C') && i+1 < len(fields) {
			i++
			status.OrigPath = fields[i]
		}

		statuses = append(statuses, status)
	}

	return statuses
}

// parseStatusCode converts git status code to vcs.StatusCode
func parseStatusCode(code string) vcs.StatusCode {
	switch code {
	case " ":
		return vcs.StatusUnmodified
	case "M", "T":
		return vcs.StatusModified
	case "A":
		return vcs.StatusAdded
	case "D":
		return vcs.StatusDeleted
	case "R":
		return vcs.StatusRenamed
	case "C":
		return vcs.StatusCopied
	case "?":
		return vcs.StatusUntracked
	case "!":
		return vcs.StatusIgnored
	case "U":
		return vcs.StatusConflict
	default:
		return vcs.StatusUnmodified
	}
}

// ChangedFiles returns the files that differ between base and target
func (g *Git) ChangedFiles(ctx context.Context, base, target string) ([]vcs.FileStatus, error) {
	if base == "" {
		tree, err := g.emptyTree(ctx)
		if err != nil {
			return nil, err
		}
		base = tree
	}
	if err := checkRef(base); err != nil {
		return nil, err
	}

	args := []string{"diff", "--name-status", "-z", "-M", base}
	if target != "" {
		if err := checkRef(target); err != nil {
			return nil, err
		}
		args = append(args, target)
	}
	args = append(args, "--")

	output, err := g.run(ctx, args...)
	if err != nil {
		if errors.Is(err, vcs.ErrRefNotFound) {
			return nil, fmt.Errorf("%w: %s %s", vcs.ErrRefNotFound, base, target)
		}
		return nil, fmt.Errorf("git diff failed: %w", err)
	}

	return parseNameStatus(output), nil
}

// parseNameStatus parses `git diff --name-status -z` output.
//
// Entries are "S\0path\0", or "R<score>\0old\0new\0" for renames and copies.
func parseNameStatus(output []byte) []vcs.FileStatus {
	fields := vcs.ParseNullSeparated(output)

	var statuses []vcs.FileStatus
	for i := 0; i < len(fields); i++ {
		code := fields[i]
		if code == "" || i+1 >= len(fields) {
			break
		}

		status := vcs.FileStatus{
			StagedCode: parseStatusCode(code[:1]),
			Status:     vcs.StatusUnmodified,
		}

		if (code[0] == 'R' || code[0] == 'C') && i+2 < len(fields) {
			status.OrigPath = fields[i+1]
			status.Path = fields[i+2]
			i += 2
		} else {
			status.Path = fields[i+1]
			i++
		}

		statuses = append(statuses, status)
	}

	return statuses
}

// emptyTree returns the id of the empty tree in this repository's hash format.
func (g *Git) emptyTree(ctx context.Context) (string, error) {
	output, err := g.run(ctx, "hash-object", "-t", "tree", "--stdin")
	if err != nil {
		return "", fmt.Errorf("failed to compute empty tree: %w", err)
	}
	return vcs.TrimOutput(output), nil
}

// Diff returns a unified diff of the working tree against HEAD
func (g *Git) Diff(ctx context.Context, paths []string, contextLines int) (string, error) {
	if contextLines < 0 {
		contextLines = 0
	}

	args := []string{"diff", "--no-color", "-U" + strconv.Itoa(contextLines), "HEAD", "--"}
	args = append(args, paths...)

	output, err := g.run(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("git diff failed: %w", err)
	}

	return string(output), nil
}

// Commit stages and commits changes and returns the new HEAD hash
func (g *Git) Commit(ctx context.Context, opts vcs.CommitOptions) (string, error) {
	if opts.Message == "" {
		return "", fmt.Errorf("commit message is required")
	}

	// Stage additions, modifications and deletions
	addArgs := []string{"add", "-A", "--"}
	addArgs = append(addArgs, opts.Paths...)
	if _, err := g.run(ctx, addArgs...); err != nil {
		return "", fmt.Errorf("git add failed: %w", err)
	}

	// diff --cached --quiet exits 0 when nothing is staged
	staged := []string{"diff", "--cached", "--quiet", "--"}
	staged = append(staged, opts.Paths...)
	if _, err := g.run(ctx, staged...); err == nil {
		return "", vcs.ErrNothingToCommit
	} else if vcs.GetExitCode(err) != 1 {
		return "", fmt.Errorf("git diff --cached failed: %w", err)
	}

	args := []string{"commit", "-q", "-m", opts.Message}

	if opts.Author != "" {
		args = append(args, "--author", opts.Author)
	}

	if opts.NoVerify {
		args = append(args, "--no-verify")
	}

	// Add paths with -- to ensure they're treated as paths
	if len(opts.Paths) > 0 {
		args = append(args, "--")
		args = append(args, opts.Paths...)
	}

	if _, err := g.run(ctx, args...); err != nil {
		return "", fmt.Errorf("git commit failed: %w", err)
	}

	return g.RevParse(ctx, "HEAD")
}

// Move renames a tracked file
func (g *Git) Move(ctx context.Context, from, to string) error {
	if _, err := g.run(ctx, "mv", "--", from, to); err != nil {
		return fmt.Errorf("git mv failed: %w", err)
	}
	return nil
}

// Unstage removes paths from the index, keeping the working tree
func (g *Git) Unstage(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}

	var args []string
	if g.hasHead(ctx) {
		args = append([]string{"reset", "-q", "--"}, paths...)
	} else {
		// Unborn branch: nothing to reset to, just drop the index entries
		args = append([]string{"rm", "-r", "-q", "--cached", "--ignore-unmatch", "--"}, paths...)
	}

	if _, err := g.run(ctx, args...); err != nil {
		return fmt.Errorf("git unstage failed: %w", err)
	}
	return nil
}

// Reset moves HEAD to ref
func (g *Git) Reset(ctx context.Context, ref string, mode vcs.ResetMode) error {
	if err := checkRef(ref); err != nil {
		return err
	}
	if mode == "" {
		mode = vcs.ResetMixed
	}

	if _, err := g.run(ctx, "reset", "-q", "--"+string(mode), ref); err != nil {
		return fmt.Errorf("git reset --%s %s failed: %w", mode, ref, err)
	}
	return nil
}
