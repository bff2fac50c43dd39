package git

import (
	"context"
	"errors"
	"fmt"

	"github.com/framesync/framesync/internal/vcs"
)

// Fetch fetches ref from remote into its remote-tracking branch.
// If remote is empty, uses the default remote (origin).
func (g *Git) Fetch(ctx context.Context, remote, ref string) error {
	if remote == "" {
		remote = vcs.DefaultRemote
	}

	args := []string{"fetch", "--quiet", "--no-tags", remote}
	if ref != "" {
		if err := checkRef(ref); err != nil {
			return err
		}
		args = append(args, fmt.Sprintf("+refs/heads/%s:refs/remotes/%s/%s", ref, remote, ref))
	}

	err := g.withRetry(ctx, "fetch", func() error {
		_, err := g.run(ctx, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("git fetch %s failed: %w", remote, err)
	}

	return nil
}

// resolveTarget fills in the remote and branch defaults
func (g *Git) resolveTarget(ctx context.Context, remote, ref string) (string, string, error) {
	if remote == "" {
		remote = vcs.DefaultRemote
	}

	if ref == "" {
		branch, err := g.CurrentRef(ctx)
		if err != nil {
			return "", "", err
		}
		ref = branch
	}

	return remote, ref, checkRef(ref)
}

// Pull fetches and merges the remote tracking branch into the current branch
func (g *Git) Pull(ctx context.Context, opts vcs.PullOptions) (vcs.PullResult, error) {
	remote, ref, err := g.resolveTarget(ctx, opts.Remote, opts.Ref)
	if err != nil {
		return vcs.PullResult{}, err
	}

	result := vcs.PullResult{Outcome: vcs.PullUpToDate}
	if head, err := g.RevParse(ctx, "HEAD"); err == nil {
		result.Before = head
	} else if !errors.Is(err, vcs.ErrRefNotFound) {
		return result, err
	}
	result.After = result.Before

	if !opts.SkipFetch {
		if err := g.Fetch(ctx, remote, ref); err != nil {
			if errors.Is(err, vcs.ErrRefNotFound) {
				// Nothing has been pushed to this branch yet
				result.Outcome = vcs.PullNoRemoteBranch
				return result, nil
			}
			return result, err
		}
	}

	tracking := remote + "/" + ref
	remoteHead, err := g.RevParse(ctx, "refs/remotes/"+tracking)
	if err != nil {
		if errors.Is(err, vcs.ErrRefNotFound) {
			result.Outcome = vcs.PullNoRemoteBranch
			return result, nil
		}
		return result, err
	}

	if remoteHead == result.Before {
		return result, nil
	}

	args := []string{"merge", "--no-edit", "--no-stat"}
	if opts.FFOnly {
		args = append(args, "--ff-only")
	}
	args = append(args, tracking)

	output, err := g.run(ctx, args...)
	if err != nil {
		switch {
		case errors.Is(err, vcs.ErrConflicts):
			files, ferr := g.GetConflictedFiles(ctx)
			if ferr != nil {
				return result, errors.Join(err, ferr)
			}
			return result, &vcs.MergeError{Kind: vcs.ErrConflicts, Files: files, Output: string(output)}
		case errors.Is(err, vcs.ErrMergeRequired):
			return result, &vcs.MergeError{Kind: vcs.ErrMergeRequired, Output: string(output)}
		}
		return result, fmt.Errorf("git merge %s failed: %w", tracking, err)
	}

	after, err := g.RevParse(ctx, "HEAD")
	if err != nil {
		return result, err
	}
	result.After = after

	switch after {
	case result.Before:
		result.Outcome = vcs.PullUpToDate
	case remoteHead:
		result.Outcome = vcs.PullFastForward
	default:
		result.Outcome = vcs.PullMerged
	}

	return result, nil
}

// Push pushes the branch to the remote
func (g *Git) Push(ctx context.Context, opts vcs.PushOptions) error {
	remote, ref, err := g.resolveTarget(ctx, opts.Remote, opts.Ref)
	if err != nil {
		return err
	}

	args := []string{"push", "--quiet"}
	if opts.SetUpstream {
		args = append(args, "-u")
	}
	args = append(args, remote, "refs/heads/"+ref+":refs/heads/"+ref)

	err = g.withRetry(ctx, "push", func() error {
		_, err := g.run(ctx, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("git push %s %s failed: %w", remote, ref, err)
	}

	return nil
}
