package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/framesync/framesync/internal/synclog"
	"github.com/framesync/framesync/internal/vcs"
)

// Skip reasons reported by CheckAndPullIfBehind
const (
	ReasonSyncInProgress   = "sync in progress"
	ReasonNoRemoteBranch   = "remote branch does not exist yet"
	ReasonUpToDate         = "already up to date"
	ReasonLocalCommits     = "local commits not yet pushed"
	ReasonUncommittedFiles = "uncommitted local changes"
)

// CheckAndPullIfBehind fetches and fast-forwards when the local branch is
// strictly behind the remote and nothing local could be lost. Every other
// situation is a successful skip with a reason.
//
// Only pulls and failures are written to the sync log; a background caller
// polling an up-to-date library leaves no trace.
func (e *Engine) CheckAndPullIfBehind(ctx context.Context) PullReport {
	ctx = context.WithoutCancel(ctx)
	start := e.clock.Now()

	ok, err := e.lock.Acquire()
	if err != nil {
		rep := PullReport{Error: err.Error(), ErrorKind: KindLock}
		e.recordPull(start, "", rep)
		e.notifyPull(rep)
		return rep
	}
	if !ok {
		return PullReport{Success: true, Skipped: true, Reason: ReasonSyncInProgress}
	}
	defer e.lock.Release()

	branch, rep, err := e.pullIfBehind(ctx)
	if err != nil {
		rep.Success = false
		rep.Error = err.Error()
		rep.ErrorKind = KindOf(err)
		e.logger.Error("background pull failed", "kind", rep.ErrorKind, "error", err)
	}

	if err != nil || rep.PulledChanges {
		e.recordPull(start, branch, rep)
	}
	e.notifyPull(rep)
	return rep
}

func (e *Engine) pullIfBehind(ctx context.Context) (string, PullReport, error) {
	var rep PullReport

	branch, err := e.branch(ctx)
	if err != nil {
		return branch, rep, fail(KindConfiguration, "resolve branch", err)
	}

	if err := e.vcs.Fetch(ctx, e.cfg.Remote, branch); err != nil {
		if errors.Is(err, vcs.ErrRefNotFound) {
			return branch, skipped(ReasonNoRemoteBranch), nil
		}
		return branch, rep, fail(KindPull, "fetch", err)
	}

	r, err := e.readRefs(ctx, branch)
	if err != nil {
		return branch, rep, fail(KindPull, "read refs", err)
	}
	if r.remote == "" {
		return branch, skipped(ReasonNoRemoteBranch), nil
	}

	behind := 0
	if r.head != "" {
		div, err := e.vcs.HasDivergence(ctx, "HEAD", e.tracking(branch))
		if err != nil {
			return branch, rep, fail(KindPull, "compare with remote", err)
		}
		if div.RemoteAhead == 0 {
			rep = skipped(ReasonUpToDate)
			rep.Synced = div.LocalAhead == 0
			return branch, rep, nil
		}
		if !div.IsBehind() {
			return branch, skipped(ReasonLocalCommits), nil
		}
		behind = div.RemoteAhead
	}

	status, err := e.vcs.Status(ctx)
	if err != nil {
		return branch, rep, fail(KindPull, "read status", err)
	}
	if len(status) > 0 {
		rep = skipped(ReasonUncommittedFiles)
		for _, s := range status {
			rep.UncommittedFiles = append(rep.UncommittedFiles, s.Path)
		}
		e.logger.Info("background pull skipped", "reason", rep.Reason, "files", len(status))
		return branch, rep, nil
	}

	_, incoming, err := e.downloadChanges(ctx, r)
	if err != nil {
		return branch, rep, fail(KindPull, "describe remote changes", err)
	}

	if _, err := e.vcs.Pull(ctx, vcs.PullOptions{
		Remote:    e.cfg.Remote,
		Ref:       branch,
		FFOnly:    true,
		SkipFetch: true,
	}); err != nil {
		return branch, rep, fail(KindPull, "pull", err)
	}

	if behind == 0 {
		// Unborn local branch: everything on the remote is new
		if commits, err := e.vcs.Log(ctx, 0, "HEAD"); err == nil {
			behind = len(commits)
		}
	}

	rep = PullReport{
		Success:         true,
		Synced:          true,
		PulledChanges:   true,
		CommitsReceived: behind,
		Message:         fmt.Sprintf("pulled %d commit(s)", behind),
		RemoteChanges:   incoming,
	}
	e.logger.Info("background pull finished", "commits", behind)
	return branch, rep, nil
}

func skipped(reason string) PullReport {
	return PullReport{Success: true, Skipped: true, Reason: reason, Message: reason}
}

func (e *Engine) recordPull(start time.Time, branch string, rep PullReport) {
	entry := synclog.Entry{
		Operation:     OpPull,
		Status:        synclog.StatusSuccess,
		Message:       rep.Message,
		Error:         rep.Error,
		ErrorKind:     string(rep.ErrorKind),
		Branch:        branch,
		RemoteChanges: rep.RemoteChanges,
		DurationMs:    e.clock.Since(start).Milliseconds(),
	}
	if !rep.Success {
		entry.Status = synclog.StatusFailure
		entry.Message = "background pull failed"
	}
	e.appendEntry(entry)
}

func (e *Engine) notifyPull(rep PullReport) {
	if e.cfg.Notifier != nil {
		e.cfg.Notifier.PullCompleted(rep)
	}
}
