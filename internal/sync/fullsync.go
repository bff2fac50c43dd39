package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/framesync/framesync/internal/commitmsg"
	"github.com/framesync/framesync/internal/conflict"
	"github.com/framesync/framesync/internal/synclog"
	"github.com/framesync/framesync/internal/vcs"
)

// PerformFullSync runs commit, pull and push under the sync lock.
//
// The pipeline is detached from ctx cancellation once the lock is taken: a
// sync runs to completion or failure. Every outcome except busy appends
// exactly one entry to the sync log, and the lock is always released.
func (e *Engine) PerformFullSync(ctx context.Context) SyncResult {
	ctx = context.WithoutCancel(ctx)
	start := e.clock.Now()

	ok, err := e.lock.Acquire()
	if err != nil {
		res := failed(newSyncResult(), fail(KindLock, "acquire lock", err))
		e.recordSync(start, res)
		e.notifySync(res)
		return res
	}
	if !ok {
		e.logger.Info("sync rejected, another sync is running")
		res := newSyncResult()
		res.Busy = true
		res.ErrorKind = KindBusy
		res.Error = ErrBusy.Error()
		return res
	}
	defer e.lock.Release()

	e.logger.Info("sync started")
	res, err := e.pipeline(ctx)

	if err != nil && KindOf(err) == KindLock {
		if e.recoverLock(err) {
			first := res
			res, err = e.pipeline(ctx)
			res.Recovered = true
			if first.Committed && !res.Committed {
				res.Committed = true
				res.CommitHash = first.CommitHash
				res.CommitMessage = first.CommitMessage
			}
		} else {
			err = e.describeLock(err)
		}
	}

	if err != nil {
		res = failed(res, err)
		e.logger.Error("sync failed", "kind", res.ErrorKind, "error", err)
	} else {
		e.logger.Info("sync finished",
			"committed", res.Committed,
			"conflict", res.AutoResolvedConflict,
			"remote_changes", len(res.RemoteChangesSummary))
	}

	e.recordSync(start, res)
	e.notifySync(res)
	return res
}

func newSyncResult() SyncResult {
	return SyncResult{
		LostChangesSummary:   []string{},
		RemoteChangesSummary: []string{},
		ConflictedFiles:      []string{},
	}
}

func failed(res SyncResult, err error) SyncResult {
	res.Success = false
	res.Error = err.Error()
	res.ErrorKind = KindOf(err)
	if res.ErrorKind == "" {
		res.ErrorKind = KindCommit
	}
	return res
}

// pipeline is one pass of Committing, Pulling and Pushing. The caller
// holds the lock.
func (e *Engine) pipeline(ctx context.Context) (SyncResult, error) {
	res := newSyncResult()

	branch, err := e.branch(ctx)
	res.Branch = branch
	if err != nil {
		return res, fail(KindConfiguration, "resolve branch", err)
	}

	// Committing
	status, err := e.vcs.Status(ctx)
	if err != nil {
		return res, fail(KindCommit, "read status", err)
	}
	if len(status) > 0 {
		if err := e.commit(ctx, status, &res); err != nil {
			return res, err
		}
	}

	// Pulling
	if err := e.vcs.Fetch(ctx, e.cfg.Remote, branch); err != nil && !errors.Is(err, vcs.ErrRefNotFound) {
		return res, fail(KindPull, "fetch", err)
	}
	r, err := e.readRefs(ctx, branch)
	if err != nil {
		return res, fail(KindPull, "read refs", err)
	}
	if r.remote != "" && r.remote != r.head {
		if err := e.pull(ctx, r, &res); err != nil {
			return res, err
		}
	}

	// Pushing
	if r, err = e.readRefs(ctx, branch); err != nil {
		return res, fail(KindPush, "read refs", err)
	}
	if r.head == "" {
		// Empty library on both sides
		res.Success = true
		return res, nil
	}
	if r.head != r.remote {
		opts := vcs.PushOptions{Remote: e.cfg.Remote, Ref: branch, SetUpstream: r.remote == ""}
		if err := e.vcs.Push(ctx, opts); err != nil {
			return res, fail(KindPush, "push", err)
		}
	}

	res.RemoteCommit = r.head
	res.Success = true
	return res, nil
}

// commit validates new uploads and commits the working tree
func (e *Engine) commit(ctx context.Context, status []vcs.FileStatus, res *SyncResult) error {
	v, err := e.validator.Validate(ctx, status)
	res.ValidationErrors = v.Rejected
	res.CleanedUpImages = v.Cleaned
	if err != nil {
		return fail(KindCommit, "validate uploads", err)
	}
	if !v.OK() {
		reasons := make([]string, 0, len(v.Rejected))
		for _, r := range v.Rejected {
			reasons = append(reasons, fmt.Sprintf("%s (%s)", r.File, r.Reason))
		}
		return &Error{
			Kind: KindValidation,
			Op:   "validate uploads",
			Err:  fmt.Errorf("%d file(s) rejected: %s", len(v.Rejected), strings.Join(reasons, ", ")),
		}
	}

	before, err := e.metadataAt(ctx, "HEAD")
	if err != nil {
		return fail(KindCommit, "read committed metadata", err)
	}
	after, err := e.cfg.Layout.ReadMetadata()
	if err != nil {
		return fail(KindCommit, "read metadata", err)
	}

	changes := e.classifyWithMetadata(status, before, after)
	msg := commitmsg.Compose(commitmsg.Input{
		Items:          changes.Items,
		MetadataBefore: before,
		MetadataAfter:  after,
		FileCount:      len(status),
	})

	hash, err := e.vcs.Commit(ctx, vcs.CommitOptions{Message: msg})
	if errors.Is(err, vcs.ErrNothingToCommit) {
		return nil
	}
	if err != nil {
		return fail(KindCommit, "commit", err)
	}

	res.Committed = true
	res.CommitHash = hash
	res.CommitMessage = msg
	e.logger.Info("committed local changes", "commit", hash, "message", msg)
	return nil
}

// pull merges the fetched remote branch, handing divergence to the
// conflict strategy.
func (e *Engine) pull(ctx context.Context, r refs, res *SyncResult) error {
	// Captured before the merge: a conflicted tree cannot be diffed, and
	// a resolution may discard these changes. Local metadata edits are
	// measured from the common ancestor so they name only what this site
	// changed.
	base, err := e.mergeBase(ctx, r)
	if err != nil {
		return fail(KindPull, "find merge base", err)
	}
	pending, err := e.localChanges(ctx, r, base)
	if err != nil {
		return fail(KindPull, "describe local changes", err)
	}
	_, incoming, err := e.downloadChanges(ctx, r)
	if err != nil {
		return fail(KindPull, "describe remote changes", err)
	}

	pr, err := e.vcs.Pull(ctx, vcs.PullOptions{
		Remote:    e.cfg.Remote,
		Ref:       r.branch,
		FFOnly:    e.cfg.MergeMode == MergeModeFFOnly,
		SkipFetch: true,
	})
	switch {
	case err == nil:
		if pr.Changed() {
			res.RemoteChangesSummary = orEmpty(incoming)
		}
		return nil
	case errors.Is(err, vcs.ErrConflicts), errors.Is(err, vcs.ErrMergeRequired):
	default:
		return fail(KindPull, "pull", err)
	}

	// A refused fast-forward names no files; report the overlap instead
	both, berr := e.changedOnBothSides(ctx, r)
	if berr != nil {
		e.logger.Warn("list paths changed on both sides", "error", berr)
	}
	desc := conflict.Classify(err, both)
	e.logger.Warn("histories diverged", "type", desc.ConflictType, "files", desc.ConflictedFiles)

	resolution, err := e.cfg.Strategy.Resolve(ctx, e.vcs, conflict.Request{
		Remote:         e.cfg.Remote,
		Branch:         r.branch,
		Conflict:       desc,
		Pending:        pending.changes.Items,
		MetadataBefore: pending.metadataBefore,
		MetadataAfter:  pending.metadataAfter,
	})
	if err != nil {
		return fail(KindConflict, "resolve conflict", err)
	}

	res.AutoResolvedConflict = true
	res.ConflictType = desc.ConflictType
	res.ConflictedFiles = orEmpty(desc.ConflictedFiles)
	res.LostChangesSummary = orEmpty(resolution.LostChanges)
	res.RemoteChangesSummary = orEmpty(incoming)
	return nil
}

// recoverLock clears a stale lock file after a lock failure. The sync lock
// stays held throughout, so no other caller can start in between. It
// reports whether the pipeline may be retried.
func (e *Engine) recoverLock(cause error) bool {
	info := e.lock.DetectStale()
	if !info.IsStale {
		return false
	}
	if err := e.lock.ClearStale(info); err != nil {
		e.logger.Error("clear stale lock", "file", info.LockFile, "error", err)
		return false
	}

	msg := fmt.Sprintf("cleared stale lock %s (age %s)", info.LockFile, info.Age.Round(time.Second))
	e.logger.Warn(msg, "cause", cause)
	e.appendEntry(synclog.Entry{
		Operation: OpRecovery,
		Status:    synclog.StatusRecovery,
		Message:   msg,
		Error:     cause.Error(),
		ErrorKind: string(KindLock),
	})
	return true
}

// describeLock adds what is known about the blocking lock file to err
func (e *Engine) describeLock(err error) error {
	info := e.lock.DetectStale()
	if info.LockFile == "" {
		return err
	}
	return &Error{
		Kind: KindLock,
		Op:   "lock",
		Err:  fmt.Errorf("%w (%s held for %s)", err, info.LockFile, info.Age.Round(time.Second)),
	}
}

func (e *Engine) recordSync(start time.Time, res SyncResult) {
	entry := synclog.Entry{
		Operation:       OpFullSync,
		Status:          synclog.StatusSuccess,
		Message:         syncMessage(res),
		Error:           res.Error,
		ErrorKind:       string(res.ErrorKind),
		HasConflicts:    res.AutoResolvedConflict,
		ConflictType:    string(res.ConflictType),
		ConflictedFiles: res.ConflictedFiles,
		LostChanges:     res.LostChangesSummary,
		RemoteChanges:   res.RemoteChangesSummary,
		Branch:          res.Branch,
		RemoteCommit:    res.RemoteCommit,
		Committed:       res.Committed,
		DurationMs:      e.clock.Since(start).Milliseconds(),
	}
	switch {
	case !res.Success:
		entry.Status = synclog.StatusFailure
	case res.Warning():
		entry.Status = synclog.StatusWarning
	}
	e.appendEntry(entry)
}

func syncMessage(res SyncResult) string {
	switch {
	case res.ErrorKind == KindValidation:
		return fmt.Sprintf("upload rejected, cleaned up %s", strings.Join(res.CleanedUpImages, ", "))
	case !res.Success:
		return fmt.Sprintf("sync failed (%s)", res.ErrorKind)
	}

	var parts []string
	if res.Committed {
		parts = append(parts, "committed "+res.CommitMessage)
	}
	if res.AutoResolvedConflict {
		parts = append(parts, fmt.Sprintf("%s resolved in favour of the remote, %d local change(s) discarded",
			res.ConflictType, len(res.LostChangesSummary)))
	}
	if n := len(res.RemoteChangesSummary); n > 0 {
		parts = append(parts, fmt.Sprintf("received %d remote change(s)", n))
	}
	if len(parts) == 0 {
		return "already in sync"
	}
	return strings.Join(parts, "; ")
}

// appendEntry writes to the sync log. A log failure never fails the
// operation being logged.
func (e *Engine) appendEntry(entry synclog.Entry) {
	if e.history == nil {
		return
	}
	if _, err := e.history.Append(entry); err != nil {
		e.logger.Error("append sync log", "error", err)
	}
}

func (e *Engine) notifySync(res SyncResult) {
	if e.cfg.Notifier != nil {
		e.cfg.Notifier.SyncCompleted(res)
	}
}
