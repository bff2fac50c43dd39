package sync

import (
	"errors"

	"github.com/framesync/framesync/internal/synclog"
)

// ErrNoHistory is returned by the log operations of an Engine built
// without a sync log
var ErrNoHistory = errors.New("sync log not configured")

// GetSyncLogs returns the sync history, newest first
func (e *Engine) GetSyncLogs() ([]synclog.Entry, error) {
	if e.history == nil {
		return nil, ErrNoHistory
	}
	return e.history.Entries()
}

// ClearSyncLogs empties the sync history
func (e *Engine) ClearSyncLogs() error {
	if e.history == nil {
		return ErrNoHistory
	}
	if err := e.history.Clear(); err != nil {
		return err
	}
	e.logger.Info("sync log cleared")
	return nil
}
