package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/framesync/framesync/internal/library"
	"github.com/framesync/framesync/internal/synclog"
	"github.com/framesync/framesync/internal/vcs"
)

// ErrImageNotFound is returned when renaming an image that does not exist
var ErrImageNotFound = errors.New("image not found")

// ErrImageExists is returned when the rename target is taken
var ErrImageExists = errors.New("image already exists")

// ErrInvalidName is returned for names that are empty, hidden or escape
// the content directory
var ErrInvalidName = errors.New("invalid image name")

// RenameImage renames an image, its thumbnail and its metadata entry under
// the sync lock. Tracked files are renamed through the VCS so the next
// sync records one rename rather than a deletion and an addition.
func (e *Engine) RenameImage(ctx context.Context, from, to string) error {
	if err := checkImageName(from); err != nil {
		return err
	}
	if err := checkImageName(to); err != nil {
		return err
	}
	if from == to {
		return nil
	}

	ok, err := e.lock.Acquire()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrBusy
	}
	defer e.lock.Release()

	layout := e.cfg.Layout
	if !exists(layout.Abs(layout.ContentPath(from))) {
		return fmt.Errorf("%w: %s", ErrImageNotFound, from)
	}
	if exists(layout.Abs(layout.ContentPath(to))) {
		return fmt.Errorf("%w: %s", ErrImageExists, to)
	}

	status, err := e.vcs.Status(ctx)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	untracked := map[string]bool{}
	for _, s := range status {
		if s.Effective() == vcs.StatusUntracked {
			untracked[s.Path] = true
		}
	}

	moves := [][2]string{{layout.ContentPath(from), layout.ContentPath(to)}}
	if exists(layout.Abs(layout.ThumbnailPath(from))) {
		moves = append(moves, [2]string{layout.ThumbnailPath(from), layout.ThumbnailPath(to)})
	}
	var done [][2]string
	undo := func() {
		for i := len(done) - 1; i >= 0; i-- {
			m := done[i]
			if err := e.move(ctx, m[1], m[0], untracked[m[0]]); err != nil {
				e.logger.Error("undo rename", "from", m[1], "to", m[0], "error", err)
			}
		}
	}
	for _, m := range moves {
		if err := e.move(ctx, m[0], m[1], untracked[m[0]]); err != nil {
			undo()
			return err
		}
		done = append(done, m)
	}

	if err := e.renameEntry(from, to); err != nil {
		undo()
		return err
	}

	msg := fmt.Sprintf("renamed %s → %s", from, to)
	e.logger.Info(msg)
	e.appendEntry(synclog.Entry{Operation: OpRename, Status: synclog.StatusInfo, Message: msg})
	return nil
}

// renameEntry moves the metadata entry of from to to, leaving the document
// untouched when there is nothing to rename
func (e *Engine) renameEntry(from, to string) error {
	layout := e.cfg.Layout
	doc, err := layout.ReadMetadata()
	if err != nil || doc == nil {
		return err
	}
	out, err := library.RenameEntry(doc, from, to)
	if err != nil {
		return err
	}
	if bytes.Equal(out, doc) {
		return nil
	}
	return layout.WriteMetadata(out)
}

func (e *Engine) move(ctx context.Context, from, to string, untracked bool) error {
	layout := e.cfg.Layout
	if err := os.MkdirAll(filepath.Dir(layout.Abs(to)), 0o755); err != nil {
		return fmt.Errorf("rename %s: %w", from, err)
	}
	if untracked {
		if err := os.Rename(layout.Abs(from), layout.Abs(to)); err != nil {
			return fmt.Errorf("rename %s: %w", from, err)
		}
		return nil
	}
	return e.vcs.Move(ctx, from, to)
}

func checkImageName(name string) error {
	clean := path.Clean(filepath.ToSlash(name))
	if name == "" || clean != filepath.ToSlash(name) || path.IsAbs(clean) ||
		clean == ".." || strings.HasPrefix(clean, "../") || strings.HasPrefix(path.Base(clean), ".") {
		return fmt.Errorf("%w %q", ErrInvalidName, name)
	}
	return nil
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return !errors.Is(err, fs.ErrNotExist)
}
