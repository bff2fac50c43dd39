package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/framesync/framesync/internal/conflict"
	"github.com/framesync/framesync/internal/library"
	"github.com/framesync/framesync/internal/lock"
	engine "github.com/framesync/framesync/internal/sync"
	"github.com/framesync/framesync/internal/synclog"
	"github.com/framesync/framesync/internal/vcs"
	_ "github.com/framesync/framesync/internal/vcs/git"
)

// stateDirName holds the lock marker and sync log inside .git
const stateDirName = "framesync"

// openEngine builds the sync engine for the configured working set
func openEngine() (*engine.Engine, library.Layout, error) {
	root, err := cfg.RepoRoot()
	if err != nil {
		return nil, library.Layout{}, &exitError{code: exitConfig, err: err}
	}

	opts := cfg.VCSOptions()
	opts.OnRetry = func(op string, err error, wait time.Duration) {
		logger.Warn("retrying git command", "op", op, "wait", wait, "error", err)
	}
	v, err := vcs.Open(root, opts)
	if err != nil {
		return nil, library.Layout{}, &exitError{code: exitConfig, err: fmt.Errorf("open working set %s: %w", root, err)}
	}

	// The repository root may be above the configured path
	repoRoot, err := v.RepoRoot()
	if err != nil {
		return nil, library.Layout{}, err
	}
	vcsDir, err := v.VCSDir()
	if err != nil {
		return nil, library.Layout{}, err
	}
	stateDir := filepath.Join(vcsDir, stateDirName)

	strategy, err := conflict.ParseStrategy(cfg.Sync.ConflictStrategy, logger)
	if err != nil {
		return nil, library.Layout{}, &exitError{code: exitConfig, err: err}
	}

	layout := cfg.Layout(repoRoot)
	eng := engine.New(v,
		lock.New(lock.Config{
			StateDir:   stateDir,
			VCSDir:     vcsDir,
			StaleAfter: cfg.Sync.StaleLockAfter,
			Logger:     logger,
		}),
		synclog.New(synclog.Config{
			Dir:    stateDir,
			Limit:  cfg.Sync.LogLimit,
			Logger: logger,
		}),
		engine.Config{
			Remote:        cfg.Repo.Remote,
			Branch:        cfg.Repo.Branch,
			MainBranch:    cfg.Repo.MainBranch,
			Layout:        layout,
			MergeMode:     engine.MergeMode(cfg.Sync.MergeMode),
			Strategy:      strategy,
			MinGitVersion: cfg.Sync.MinGitVersion,
			Logger:        logger,
		},
	)
	return eng, layout, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
