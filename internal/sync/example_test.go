package sync_test

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/framesync/framesync/internal/library"
	"github.com/framesync/framesync/internal/lock"
	"github.com/framesync/framesync/internal/sync"
	"github.com/framesync/framesync/internal/synclog"
	"github.com/framesync/framesync/internal/vcs"
	_ "github.com/framesync/framesync/internal/vcs/git"
)

// This example demonstrates a full sync of a working set.
// Note: This is for documentation only and won't run as a test.
func ExampleEngine_PerformFullSync() {
	root := "/srv/frames"

	v, err := vcs.Open(root, vcs.Options{Retry: vcs.DefaultRetryPolicy()})
	if err != nil {
		log.Fatal(err)
	}
	vcsDir, err := v.VCSDir()
	if err != nil {
		log.Fatal(err)
	}

	stateDir := filepath.Join(vcsDir, "framesync")
	engine := sync.New(v,
		lock.New(lock.Config{StateDir: stateDir, VCSDir: vcsDir}),
		synclog.New(synclog.Config{Dir: stateDir}),
		sync.Config{Layout: library.DefaultLayout(root)})

	res := engine.PerformFullSync(context.Background())
	switch {
	case res.Busy:
		fmt.Println("another sync is running")
	case !res.Success:
		fmt.Printf("sync failed (%s): %s\n", res.ErrorKind, res.Error)
	case res.AutoResolvedConflict:
		fmt.Printf("synced, discarded %v\n", res.LostChangesSummary)
	default:
		fmt.Println("synced")
	}
}

// This example demonstrates polling for remote changes.
func ExampleEngine_CheckAndPullIfBehind() {
	v, err := vcs.Open("/srv/frames", vcs.Options{})
	if err != nil {
		log.Fatal(err)
	}

	engine := sync.New(v, lock.NewMemory(), nil, sync.Config{Layout: library.DefaultLayout("/srv/frames")})

	rep := engine.CheckAndPullIfBehind(context.Background())
	if rep.Skipped {
		fmt.Println("skipped:", rep.Reason)
		return
	}
	fmt.Printf("received %d commit(s)\n", rep.CommitsReceived)
}
