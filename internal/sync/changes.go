package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/framesync/framesync/internal/classify"
	"github.com/framesync/framesync/internal/commitmsg"
	"github.com/framesync/framesync/internal/vcs"
)

// refs is the state of the local and remote branch tips
type refs struct {
	branch string

	// head and remote are commit hashes, "" when the ref does not exist
	head   string
	remote string
}

func (e *Engine) readRefs(ctx context.Context, branch string) (refs, error) {
	r := refs{branch: branch}

	var err error
	if r.head, err = e.revision(ctx, "HEAD"); err != nil {
		return r, err
	}
	if r.remote, err = e.revision(ctx, "refs/remotes/"+e.tracking(branch)); err != nil {
		return r, err
	}
	return r, nil
}

// classifyWithMetadata classifies descs and drops the metadata document
// when its two versions differ only in formatting or bookkeeping fields.
func (e *Engine) classifyWithMetadata(descs []vcs.FileStatus, before, after []byte) classify.Changes {
	changes := e.classifier.Classify(descs)
	for _, item := range changes.Items {
		if item.Metadata && !commitmsg.MetadataChanged(before, after) {
			return changes.WithoutMetadata()
		}
	}
	return changes
}

// committedChanges lists files changed by local commits the remote does
// not have yet.
func (e *Engine) committedChanges(ctx context.Context, r refs) ([]vcs.FileStatus, error) {
	switch {
	case r.head == "":
		return nil, nil
	case r.remote == "":
		return e.vcs.ChangedFiles(ctx, "", "HEAD")
	}
	return e.vcs.ChangedFiles(ctx, e.tracking(r.branch)+"...HEAD", "")
}

// uploadChanges is everything a sync would publish: unpushed commits plus
// the working tree.
func (e *Engine) uploadChanges(ctx context.Context, r refs) (classify.Changes, error) {
	var base string
	if r.remote != "" {
		base = e.tracking(r.branch)
	}
	local, err := e.localChanges(ctx, r, base)
	return local.changes, err
}

// localSet is the local side of the library with the two metadata
// versions it was classified from
type localSet struct {
	changes        classify.Changes
	metadataBefore []byte
	metadataAfter  []byte
}

// localChanges classifies unpushed commits plus the working tree against
// the metadata document at base, or no document when base is "".
func (e *Engine) localChanges(ctx context.Context, r refs, base string) (localSet, error) {
	committed, err := e.committedChanges(ctx, r)
	if err != nil {
		return localSet{}, fmt.Errorf("list unpushed changes: %w", err)
	}
	working, err := e.vcs.Status(ctx)
	if err != nil {
		return localSet{}, fmt.Errorf("read status: %w", err)
	}

	var set localSet
	if base != "" {
		if set.metadataBefore, err = e.metadataAt(ctx, base); err != nil {
			return localSet{}, err
		}
	}
	if set.metadataAfter, err = e.cfg.Layout.ReadMetadata(); err != nil {
		return localSet{}, err
	}

	set.changes = e.classifyWithMetadata(classify.Combine(committed, working), set.metadataBefore, set.metadataAfter)
	return set, nil
}

// mergeBase returns the common ancestor of the branch tips, "" when either
// is missing or they share no history
func (e *Engine) mergeBase(ctx context.Context, r refs) (string, error) {
	if r.head == "" || r.remote == "" {
		return "", nil
	}
	base, err := e.vcs.MergeBase(ctx, r.head, r.remote)
	if errors.Is(err, vcs.ErrRefNotFound) {
		return "", nil
	}
	return base, err
}

// changedOnBothSides lists the paths both branch tips changed since their
// common ancestor, sorted
func (e *Engine) changedOnBothSides(ctx context.Context, r refs) ([]string, error) {
	local, err := e.committedChanges(ctx, r)
	if err != nil {
		return nil, err
	}
	remote, err := e.vcs.ChangedFiles(ctx, "HEAD..."+e.tracking(r.branch), "")
	if err != nil {
		return nil, err
	}

	touched := map[string]bool{}
	for _, s := range local {
		touched[s.Path] = true
		if s.OrigPath != "" {
			touched[s.OrigPath] = true
		}
	}
	seen := map[string]bool{}
	var both []string
	for _, s := range remote {
		for _, p := range []string{s.Path, s.OrigPath} {
			if p != "" && touched[p] && !seen[p] {
				seen[p] = true
				both = append(both, p)
			}
		}
	}
	sort.Strings(both)
	return both, nil
}

// downloadChanges is everything the fetched remote branch would bring in
func (e *Engine) downloadChanges(ctx context.Context, r refs) (classify.Changes, []string, error) {
	if r.remote == "" || r.remote == r.head {
		return classify.Changes{}, nil, nil
	}

	var (
		descs []vcs.FileStatus
		err   error
	)
	if r.head == "" {
		descs, err = e.vcs.ChangedFiles(ctx, "", e.tracking(r.branch))
	} else {
		descs, err = e.vcs.ChangedFiles(ctx, "HEAD..."+e.tracking(r.branch), "")
	}
	if err != nil {
		return classify.Changes{}, nil, fmt.Errorf("list remote changes: %w", err)
	}

	// Measured from the common ancestor, like the file list, so local
	// metadata edits do not read as remote ones
	var before []byte
	if r.head != "" {
		base, err := e.mergeBase(ctx, r)
		if err != nil {
			return classify.Changes{}, nil, fmt.Errorf("find merge base: %w", err)
		}
		if base == "" {
			base = "HEAD"
		}
		if before, err = e.metadataAt(ctx, base); err != nil {
			return classify.Changes{}, nil, err
		}
	}
	after, err := e.metadataAt(ctx, e.tracking(r.branch))
	if err != nil {
		return classify.Changes{}, nil, err
	}

	changes := e.classifyWithMetadata(descs, before, after)
	summary := commitmsg.Clauses(commitmsg.Input{
		Items:          changes.Items,
		MetadataBefore: before,
		MetadataAfter:  after,
	})
	return changes, summary, nil
}
