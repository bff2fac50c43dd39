// Package validate rejects newly added images that are not real image
// content yet, and rolls back everything that was added alongside them.
package validate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/framesync/framesync/internal/library"
	"github.com/framesync/framesync/internal/vcs"
)

// LFSPointerPrefix starts every git-lfs pointer file
const LFSPointerPrefix = "version https://git-lfs.github.com/spec/"

// Rejection reasons
const (
	ReasonEmpty      = "empty file"
	ReasonLFSPointer = "git-lfs pointer, content not downloaded"
)

// Rejection is one file that failed validation
type Rejection struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// Result reports a validation pass
type Result struct {
	// Checked is the number of candidate files inspected
	Checked int

	Rejected []Rejection

	// Cleaned lists the image names whose file, thumbnail and metadata
	// entry were removed
	Cleaned []string
}

// OK reports whether the batch may be committed
func (r Result) OK() bool {
	return len(r.Rejected) == 0
}

// Unstager is the part of the VCS the validator needs for rollback
type Unstager interface {
	Unstage(ctx context.Context, paths ...string) error
}

// Validator checks one working set
type Validator struct {
	layout library.Layout
	vcs    Unstager
	logger *slog.Logger
}

// New creates a Validator. logger may be nil.
func New(layout library.Layout, v Unstager, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Validator{layout: layout, vcs: v, logger: logger}
}

// Candidates returns the content paths in status that were newly added in
// this batch, in status order.
func (v *Validator) Candidates(status []vcs.FileStatus) []string {
	var out []string
	for _, s := range status {
		switch s.Effective() {
		case vcs.StatusAdded, vcs.StatusUntracked:
		default:
			continue
		}
		if v.layout.IsContent(s.Path) {
			out = append(out, s.Path)
		}
	}
	return out
}

// Inspect checks a single repository-relative path. It returns "" when the
// file is acceptable or no longer exists.
func (v *Validator) Inspect(rel string) (string, error) {
	f, err := os.Open(v.layout.Abs(rel))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("inspect %s: %w", rel, err)
	}
	defer f.Close()

	head := make([]byte, len(LFSPointerPrefix))
	n, err := io.ReadFull(f, head)
	switch {
	case n == 0 && errors.Is(err, io.EOF):
		return ReasonEmpty, nil
	case err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF):
		return "", fmt.Errorf("inspect %s: %w", rel, err)
	}

	if bytes.Equal(head[:n], []byte(LFSPointerPrefix)) {
		return ReasonLFSPointer, nil
	}
	return "", nil
}

// Validate inspects every candidate in status and rolls back the rejected
// ones. With no candidates it does nothing.
func (v *Validator) Validate(ctx context.Context, status []vcs.FileStatus) (Result, error) {
	var res Result
	for _, rel := range v.Candidates(status) {
		res.Checked++
		reason, err := v.Inspect(rel)
		if err != nil {
			return res, err
		}
		if reason != "" {
			res.Rejected = append(res.Rejected, Rejection{File: rel, Reason: reason})
		}
	}
	if res.OK() {
		return res, nil
	}

	cleaned, err := v.Rollback(ctx, res.Rejected, stagedPaths(status))
	res.Cleaned = cleaned
	return res, err
}

// Rollback removes each rejected file together with its thumbnail and its
// metadata entry, and unstages whichever of those paths were staged.
// It returns the names of the images that were cleaned up.
func (v *Validator) Rollback(ctx context.Context, rejected []Rejection, staged map[string]bool) ([]string, error) {
	var (
		names    []string
		unstage  []string
		firstErr error
	)
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, r := range rejected {
		name := v.layout.Name(r.File)
		thumb := v.layout.ThumbnailPath(name)

		for _, rel := range []string{r.File, thumb} {
			if err := os.Remove(v.layout.Abs(rel)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				keep(fmt.Errorf("remove %s: %w", rel, err))
			}
			if staged[rel] {
				unstage = append(unstage, rel)
			}
		}

		v.logger.Warn("rejected upload", "file", r.File, "reason", r.Reason)
		names = append(names, name)
	}

	keep(v.dropEntries(names))

	if len(unstage) > 0 {
		if err := v.vcs.Unstage(ctx, unstage...); err != nil {
			keep(fmt.Errorf("unstage rejected files: %w", err))
		}
	}
	return names, firstErr
}

// dropEntries deletes the metadata entries of names in one write
func (v *Validator) dropEntries(names []string) error {
	doc, err := v.layout.ReadMetadata()
	if err != nil || doc == nil {
		return err
	}

	out := doc
	for _, name := range names {
		if out, err = library.DeleteEntry(out, name); err != nil {
			return err
		}
	}
	if bytes.Equal(out, doc) {
		return nil
	}
	return v.layout.WriteMetadata(out)
}

func stagedPaths(status []vcs.FileStatus) map[string]bool {
	out := map[string]bool{}
	for _, s := range status {
		if s.StagedCode != vcs.StatusUnmodified && s.StagedCode != vcs.StatusUntracked && s.StagedCode != "" {
			out[s.Path] = true
		}
	}
	return out
}
