package git

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/framesync/framesync/internal/vcs"
)

// CurrentRef returns the current branch name.
// Works on an unborn branch; returns ErrDetached in detached HEAD state.
func (g *Git) CurrentRef(ctx context.Context) (string, error) {
	output, err := g.run(ctx, "symbolic-ref", "--short", "HEAD")
	if err != nil {
		var cmdErr *vcs.CommandError
		if errors.As(err, &cmdErr) && strings.Contains(cmdErr.Output, "not a symbolic ref") {
			return "", vcs.ErrDetached
		}
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}

	return vcs.TrimOutput(output), nil
}

// RevParse returns the commit hash for the given reference
func (g *Git) RevParse(ctx context.Context, ref string) (string, error) {
	if err := checkRef(ref); err != nil {
		return "", err
	}

	output, err := g.run(ctx, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	if err != nil {
		if vcs.GetExitCode(err) == 1 {
			return "", fmt.Errorf("%w: %s", vcs.ErrRefNotFound, ref)
		}
		return "", fmt.Errorf("failed to resolve ref %s: %w", ref, err)
	}

	return vcs.TrimOutput(output), nil
}

// HasDivergence checks if local and remote refs have diverged
func (g *Git) HasDivergence(ctx context.Context, local, remote string) (vcs.DivergenceInfo, error) {
	info := vcs.DivergenceInfo{}

	// One call: "<remote-only>\t<local-only>"
	output, err := g.run(ctx, "rev-list", "--left-right", "--count", remote+"..."+local)
	if err != nil {
		return info, fmt.Errorf("failed to count divergent commits: %w", err)
	}

	fields := strings.Fields(vcs.TrimOutput(output))
	if len(fields) != 2 {
		return info, fmt.Errorf("unexpected rev-list output %q", vcs.TrimOutput(output))
	}
	if info.RemoteAhead, err = strconv.Atoi(fields[0]); err != nil {
		return info, fmt.Errorf("failed to parse rev-list output: %w", err)
	}
	if info.LocalAhead, err = strconv.Atoi(fields[1]); err != nil {
		return info, fmt.Errorf("failed to parse rev-list output: %w", err)
	}

	info.IsDiverged = info.LocalAhead > 0 && info.RemoteAhead > 0

	return info, nil
}

// MergeBase returns the best common ancestor of a and b
func (g *Git) MergeBase(ctx context.Context, a, b string) (string, error) {
	if err := checkRef(a); err != nil {
		return "", err
	}
	if err := checkRef(b); err != nil {
		return "", err
	}

	output, err := g.run(ctx, "merge-base", a, b)
	if err != nil {
		if vcs.GetExitCode(err) == 1 {
			return "", fmt.Errorf("%w: no common ancestor of %s and %s", vcs.ErrRefNotFound, a, b)
		}
		return "", fmt.Errorf("failed to find merge base: %w", err)
	}

	return vcs.TrimOutput(output), nil
}

// ExtractFileFromRef extracts a file's content from a specific ref
func (g *Git) ExtractFileFromRef(ctx context.Context, ref, path string) ([]byte, error) {
	if err := checkRef(ref); err != nil {
		return nil, err
	}

	output, err := g.run(ctx, "show", ref+":"+path)
	if err != nil {
		if vcs.GetExitCode(err) == 128 {
			return nil, fmt.Errorf("%w: %s:%s", vcs.ErrRefNotFound, ref, path)
		}
		return nil, fmt.Errorf("failed to extract file from ref: %w", err)
	}

	return output, nil
}

// logFormat separates fields with US and records with RS so subjects may
// contain anything printable.
const logFormat = "--format=%H%x1f%an%x1f%aI%x1f%s%x1e"

// Log returns non-merge commits in revRange, newest first
func (g *Git) Log(ctx context.Context, maxCount int, revRange string) ([]vcs.CommitInfo, error) {
	if revRange == "" {
		revRange = "HEAD"
	}
	if err := checkRef(revRange); err != nil {
		return nil, err
	}

	args := []string{"log", "--no-merges", logFormat}
	if maxCount > 0 {
		args = append(args, "-n", strconv.Itoa(maxCount))
	}
	args = append(args, revRange, "--")

	output, err := g.run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("git log failed: %w", err)
	}

	var commits []vcs.CommitInfo
	for _, record := range strings.Split(string(output), "\x1e") {
		record = strings.TrimSpace(record)
		if record == "" {
			continue
		}

		parts := strings.SplitN(record, "\x1f", 4)
		if len(parts) < 4 {
			continue
		}

		date, _ := time.Parse(time.RFC3339, parts[2])
		commits = append(commits, vcs.CommitInfo{
			Hash:    parts[0],
			Author:  parts[1],
			Date:    date,
			Subject: parts[3],
		})
	}

	return commits, nil
}
