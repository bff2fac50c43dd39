package sync

import (
	"context"

	"github.com/framesync/framesync/internal/synclog"
)

// Service is the set of operations the transports (CLI, HTTP dashboard,
// background daemon) call. They contain no sync logic of their own.
type Service interface {
	// GetStatus reports what would be uploaded and downloaded by a sync.
	// It takes no lock and may observe a sync in flight.
	GetStatus(ctx context.Context) (StatusReport, error)

	// PerformFullSync commits local changes, pulls, resolves divergence
	// and pushes. A busy lock is reported in the result, not as a
	// failure, and is the only outcome that is not logged.
	PerformFullSync(ctx context.Context) SyncResult

	// CheckAndPullIfBehind pulls only when the local branch is strictly
	// behind the remote and the working tree is clean.
	CheckAndPullIfBehind(ctx context.Context) PullReport

	// VerifyConfiguration checks the remote, branch, git and git-lfs
	// setup without changing anything.
	VerifyConfiguration(ctx context.Context) ConfigReport

	// GetSyncLogs returns the sync history, newest first
	GetSyncLogs() ([]synclog.Entry, error)

	// ClearSyncLogs empties the sync history
	ClearSyncLogs() error

	// RenameImage renames an image together with its thumbnail and
	// metadata entry. The rename is committed by the next sync.
	RenameImage(ctx context.Context, from, to string) error
}

// Notifier is told about every completed operation
type Notifier interface {
	SyncCompleted(result SyncResult)
	PullCompleted(report PullReport)
}

var _ Service = (*Engine)(nil)
