// Package daemon keeps a working set in step with its remote in the
// background.
//
// # Architecture
//
// The daemon consists of two components:
//
//   - FileWatcher: fsnotify-based monitoring of the content directory and
//     the metadata document
//   - Daemon: polls the remote, and optionally debounces local changes into
//     full syncs
//
// # Polling
//
// Every PollInterval the daemon calls CheckAndPullIfBehind. That only
// fast-forwards a clean working set that is strictly behind, so polling
// never creates commits or discards work:
//
//	d, err := daemon.New(eng, layout, daemon.Config{PollInterval: time.Minute})
//	if err != nil {
//	    return err
//	}
//	go d.Start(ctx)
//
// # Auto-Sync
//
// With AutoSync set the daemon also watches the working set. Each image or
// metadata event is queued; once no new event has arrived for Debounce, a
// single PerformFullSync commits and pushes the whole batch. Events that
// arrive while the daemon's own sync runs, or during a poll that pulled
// changes, or within QuietPeriod after either, are dropped so the daemon
// does not react to its own writes. A poll that pulls nothing leaves the
// queue alone. A sync that finds the engine busy is retried on the next
// debounce tick.
//
// # File Watching
//
// FileWatcher can be used on its own:
//
//	fw, err := daemon.NewFileWatcher(library.DefaultLayout("/srv/frames"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer fw.Stop()
//
//	if err := fw.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
//	for event := range fw.Events() {
//	    fmt.Printf("%s %s (%s)\n", event.Op, event.Rel, event.Type)
//	}
//
// The watcher:
//   - Watches the content directory recursively, including directories
//     created after Start
//   - Skips the thumbnail directory and dotfiles
//   - Watches the working set root only for the metadata document
//
// fsnotify operations map as follows:
//   - fsnotify.Create → OpCreate
//   - fsnotify.Write → OpModify
//   - fsnotify.Remove → OpDelete
//   - fsnotify.Rename → OpDelete (the new name triggers a separate Create)
//
// # Graceful Shutdown
//
// Cancelling the context passed to Start, or calling Stop, cancels any
// in-flight engine call, closes the watcher and waits for the background
// goroutines. Stop closes the Events() and Errors() channels of the
// watcher.
package daemon
