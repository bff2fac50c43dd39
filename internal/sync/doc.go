// Package sync runs the sync pipeline for one working set.
//
// Overview
//
// An Engine moves a working set through a fixed sequence of states:
//
//	Idle → Locking → Committing → Pulling → Pushing → Logging → Idle
//	          │           │           │          │
//	          └ Busy      └───────────┴──────────┴─→ Error
//
// Locking takes the lock manager's lock without waiting; a caller that
// loses the race gets a busy result and nothing is logged. Committing
// validates newly added images, rolling back any that are empty or git-lfs
// pointers, then commits everything with a message describing the images
// and metadata that changed. Pulling fetches and merges the remote branch;
// divergence that cannot be merged is handed to a conflict.Strategy (remote
// wins by default) and the sync continues as a success with a warning.
// Pushing publishes the branch. Every attempt except a busy one appends
// exactly one entry to the sync log.
//
// Usage
//
//	v, err := vcs.Open(root, vcs.Options{Retry: vcs.DefaultRetryPolicy()})
//	if err != nil {
//	    return err
//	}
//	stateDir := filepath.Join(vcsDir, "framesync")
//	engine := sync.New(v,
//	    lock.New(lock.Config{StateDir: stateDir, VCSDir: vcsDir}),
//	    synclog.New(synclog.Config{Dir: stateDir}),
//	    sync.Config{Layout: library.DefaultLayout(root)})
//
//	res := engine.PerformFullSync(ctx)
//	switch {
//	case res.Busy:
//	    // try again later
//	case !res.Success:
//	    // res.ErrorKind says what went wrong
//	case res.AutoResolvedConflict:
//	    // res.LostChangesSummary lists what was discarded
//	}
//
// Lock Recovery
//
// A step that fails because a lock file is in the way (the VCS's own
// index.lock, typically left by a crashed process) triggers one recovery
// attempt: if the lock manager reports the file stale it is removed, a
// recovery entry is logged and the whole pipeline runs once more. The sync
// lock is held throughout, so no other caller can slip in between the two
// runs. A lock that is not stale is reported with its age.
//
// Background Pulls
//
// CheckAndPullIfBehind is meant for polling. It fast-forwards only when
// the local branch is strictly behind and the working tree is clean, and
// otherwise reports why it skipped. Skips are successes.
//
// Concurrency
//
// Engine methods are safe for concurrent use. Operations that change the
// working set serialise on the lock; GetStatus takes no lock and may see a
// sync in flight.
package sync
