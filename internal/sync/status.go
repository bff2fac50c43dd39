package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/framesync/framesync/internal/conflict"
	"github.com/framesync/framesync/internal/vcs"
)

// GetStatus reports the pending upload and download sets.
//
// It takes no lock. When no sync is running, in this process or another
// one sharing the working set, it fetches first so the download side is
// current; a failed fetch is not an error, the report then reflects the
// last fetched state.
func (e *Engine) GetStatus(ctx context.Context) (StatusReport, error) {
	rep := StatusReport{
		Conflict:       conflict.None(),
		SyncInProgress: e.lock.Locked(),
	}

	branch, err := e.vcs.CurrentRef(ctx)
	switch {
	case errors.Is(err, vcs.ErrDetached):
		// reported as an empty branch
	case err != nil:
		return rep, fmt.Errorf("read branch: %w", err)
	}
	rep.Branch = branch
	rep.IsMainBranch = branch != "" && branch == e.cfg.MainBranch

	rep.LastSyncTimestamp = e.lastSync()

	if branch == "" {
		return rep, nil
	}

	if !rep.SyncInProgress {
		if err := e.vcs.Fetch(ctx, e.cfg.Remote, branch); err != nil && !errors.Is(err, vcs.ErrRefNotFound) {
			e.logger.Debug("status fetch failed", "error", err)
		}
	}

	r, err := e.readRefs(ctx, branch)
	if err != nil {
		return rep, fmt.Errorf("read refs: %w", err)
	}

	upload, err := e.uploadChanges(ctx, r)
	if err != nil {
		return rep, err
	}
	download, _, err := e.downloadChanges(ctx, r)
	if err != nil {
		return rep, err
	}

	rep.Upload = upload.Bucket()
	rep.Download = download.Bucket()
	rep.UploadItems = upload.Items
	rep.DownloadItems = download.Items
	rep.HasChanges = rep.Upload.Count > 0 || rep.Download.Count > 0

	unmerged, err := e.vcs.GetConflictedFiles(ctx)
	if err != nil {
		return rep, fmt.Errorf("list conflicted files: %w", err)
	}
	var div vcs.DivergenceInfo
	if r.head != "" && r.remote != "" {
		if div, err = e.vcs.HasDivergence(ctx, "HEAD", e.tracking(branch)); err != nil {
			return rep, fmt.Errorf("compare with remote: %w", err)
		}
	}
	rep.Conflict = conflict.FromState(div, unmerged)

	return rep, nil
}

// lastSync returns the time of the newest completed sync, "" if none
func (e *Engine) lastSync() string {
	if e.history == nil {
		return ""
	}
	last, err := e.history.LastSuccess()
	if err != nil {
		e.logger.Warn("read sync log", "error", err)
		return ""
	}
	if last == nil {
		return ""
	}
	return last.Timestamp.Format(time.RFC3339)
}
