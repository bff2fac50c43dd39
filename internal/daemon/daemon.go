package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/framesync/framesync/internal/library"
	engine "github.com/framesync/framesync/internal/sync"
)

// Engine is the part of the sync engine the daemon drives.
type Engine interface {
	PerformFullSync(ctx context.Context) engine.SyncResult
	CheckAndPullIfBehind(ctx context.Context) engine.PullReport
}

// Config holds configuration for the daemon.
type Config struct {
	// PollInterval is how often the remote is checked for new commits
	PollInterval time.Duration

	// Debounce is how long the working set must be quiet before local
	// changes are synced. Only used with AutoSync.
	Debounce time.Duration

	// AutoSync watches the working set and syncs local changes
	AutoSync bool

	// QuietPeriod is how long file events are ignored after the daemon
	// itself changed the working set
	QuietPeriod time.Duration

	Clock  clockwork.Clock
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Minute,
		Debounce:     30 * time.Second,
		QuietPeriod:  2 * time.Second,
	}
}

// Daemon polls the remote and, with AutoSync, syncs local changes once the
// working set has been quiet for the debounce interval.
type Daemon struct {
	engine Engine
	layout library.Layout
	config Config
	clock  clockwork.Clock
	logger *slog.Logger

	watcher *FileWatcher

	changeQueue   map[string]time.Time // rel path -> last event
	changeQueueMu sync.Mutex
	selfWrites    int
	suppressUntil time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a daemon for the working set described by layout.
// Zero durations in config take their DefaultConfig values.
func New(e Engine, layout library.Layout, config Config) (*Daemon, error) {
	if e == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if layout.Root == "" {
		return nil, fmt.Errorf("layout root cannot be empty")
	}

	defaults := DefaultConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.Debounce <= 0 {
		config.Debounce = defaults.Debounce
	}
	if config.QuietPeriod <= 0 {
		config.QuietPeriod = defaults.QuietPeriod
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	d := &Daemon{
		engine:      e,
		layout:      layout,
		config:      config,
		clock:       config.Clock,
		logger:      config.Logger.With("component", "daemon"),
		changeQueue: make(map[string]time.Time),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	if config.AutoSync {
		w, err := NewFileWatcher(layout)
		if err != nil {
			return nil, err
		}
		d.watcher = w
	}

	return d, nil
}

// Start checks the remote once, then polls it and, with AutoSync, watches
// the working set. It blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.logger.Info("starting daemon",
		"root", d.layout.Root,
		"poll_interval", d.config.PollInterval,
		"auto_sync", d.config.AutoSync)

	d.pollOnce()

	if d.watcher != nil {
		if err := d.watcher.Start(); err != nil {
			d.Stop()
			return err
		}
		d.wg.Add(2)
		go d.watchFileEvents()
		go d.processChangeQueue()
	}

	d.wg.Add(1)
	go d.pollRemote()

	select {
	case <-ctx.Done():
		d.logger.Info("shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop shuts the daemon down and waits for in-flight work. It is safe to
// call more than once.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.logger.Info("stopping daemon")
		d.cancel()

		if d.watcher != nil {
			if err := d.watcher.Stop(); err != nil {
				d.logger.Warn("error closing watcher", "error", err)
			}
		}

		d.wg.Wait()
		d.logger.Info("daemon stopped")
	})
	return nil
}

// pollRemote checks the remote every PollInterval.
func (d *Daemon) pollRemote() {
	defer d.wg.Done()

	ticker := d.clock.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.Chan():
			d.pollOnce()
		}
	}
}

// pollOnce pulls if the local branch is behind the remote. Changes seen
// while a pull rewrote the working set are its own and are forgotten; a
// poll that pulled nothing keeps them queued.
func (d *Daemon) pollOnce() engine.PullReport {
	start := d.clock.Now()
	rep := d.engine.CheckAndPullIfBehind(d.ctx)
	if rep.PulledChanges {
		d.forgetChangesSince(start)
	}

	switch {
	case !rep.Success:
		d.logger.Warn("background pull failed", "error", rep.Error, "kind", rep.ErrorKind)
	case rep.PulledChanges:
		d.logger.Info("pulled remote changes", "commits", rep.CommitsReceived, "changes", len(rep.RemoteChanges))
	case rep.Skipped:
		d.logger.Debug("background pull skipped", "reason", rep.Reason)
	}
	return rep
}

// watchFileEvents queues changes reported by the watcher.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			if d.queueChange(event.Rel) {
				d.logger.Debug("file event", "op", event.Op, "type", event.Type, "path", event.Rel)
			}

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.logger.Warn("watcher error", "error", err)
		}
	}
}

// queueChange records a change unless it was caused by the daemon's own
// pull or sync. It reports whether the change was queued.
func (d *Daemon) queueChange(rel string) bool {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	now := d.clock.Now()
	if d.selfWrites > 0 || now.Before(d.suppressUntil) {
		return false
	}
	d.changeQueue[rel] = now
	return true
}

// processChangeQueue syncs queued changes with debouncing.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := d.clock.NewTicker(d.config.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.Chan():
			d.processPendingChanges()
		}
	}
}

// processPendingChanges runs a full sync once the most recent queued
// change is at least Debounce old. A busy engine leaves the queue for the
// next tick. It reports whether a sync ran.
func (d *Daemon) processPendingChanges() bool {
	d.changeQueueMu.Lock()
	if len(d.changeQueue) == 0 {
		d.changeQueueMu.Unlock()
		return false
	}

	now := d.clock.Now()
	var latest time.Time
	for _, queuedAt := range d.changeQueue {
		if queuedAt.After(latest) {
			latest = queuedAt
		}
	}
	if now.Sub(latest) < d.config.Debounce {
		d.changeQueueMu.Unlock()
		return false
	}

	paths := make([]string, 0, len(d.changeQueue))
	for path := range d.changeQueue {
		paths = append(paths, path)
	}
	d.changeQueue = make(map[string]time.Time)
	d.selfWrites++
	d.changeQueueMu.Unlock()

	d.logger.Info("syncing local changes", "files", len(paths))
	res := d.engine.PerformFullSync(d.ctx)
	d.endSelfWrite(true)

	switch {
	case res.Busy:
		d.logger.Debug("sync busy, will retry")
		d.changeQueueMu.Lock()
		for _, path := range paths {
			if _, ok := d.changeQueue[path]; !ok {
				d.changeQueue[path] = latest
			}
		}
		d.changeQueueMu.Unlock()
	case !res.Success:
		d.logger.Warn("auto-sync failed", "error", res.Error, "kind", res.ErrorKind)
	case res.Warning():
		d.logger.Warn("auto-sync discarded local changes", "lost", res.LostChangesSummary)
	default:
		d.logger.Info("auto-sync complete", "committed", res.Committed)
	}
	return true
}

// PendingChanges returns the number of queued paths
func (d *Daemon) PendingChanges() int {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()
	return len(d.changeQueue)
}

// forgetChangesSince drops changes queued at or after since and starts the
// quiet period for events still in flight
func (d *Daemon) forgetChangesSince(since time.Time) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()
	for path, queuedAt := range d.changeQueue {
		if !queuedAt.Before(since) {
			delete(d.changeQueue, path)
		}
	}
	d.suppressUntil = d.clock.Now().Add(d.config.QuietPeriod)
}

// endSelfWrite closes a sync started in processPendingChanges; changed
// starts the quiet period
func (d *Daemon) endSelfWrite(changed bool) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()
	d.selfWrites--
	if changed {
		d.suppressUntil = d.clock.Now().Add(d.config.QuietPeriod)
	}
}
