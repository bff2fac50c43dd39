// Package conflict describes divergence between the local and remote
// library and resolves it with a pluggable Strategy.
package conflict

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/framesync/framesync/internal/classify"
	"github.com/framesync/framesync/internal/commitmsg"
	"github.com/framesync/framesync/internal/vcs"
)

// Type names the kind of conflict
type Type string

const (
	TypeNone            Type = "none"
	TypeDivergedHistory Type = "diverged-history"
	TypeMergeConflict   Type = "merge-conflict"
)

// Descriptor is a point-in-time view of a conflict
type Descriptor struct {
	HasConflicts    bool     `json:"hasConflicts"`
	ConflictType    Type     `json:"conflictType"`
	ConflictedFiles []string `json:"conflictedFiles"`
}

// None is the descriptor of a clean state
func None() Descriptor {
	return Descriptor{ConflictType: TypeNone, ConflictedFiles: []string{}}
}

// Classify turns a pull error into a descriptor. files is used when the
// error does not carry the unmerged paths itself. Errors that are not
// about divergence yield None.
func Classify(err error, files []string) Descriptor {
	var merr *vcs.MergeError
	if errors.As(err, &merr) && len(merr.Files) > 0 {
		files = merr.Files
	}
	if files == nil {
		files = []string{}
	}

	switch {
	case errors.Is(err, vcs.ErrConflicts):
		return Descriptor{HasConflicts: true, ConflictType: TypeMergeConflict, ConflictedFiles: files}
	case errors.Is(err, vcs.ErrMergeRequired):
		return Descriptor{HasConflicts: true, ConflictType: TypeDivergedHistory, ConflictedFiles: files}
	}
	return None()
}

// FromState describes the repository as it stands: unmerged paths left by
// an interrupted merge win over plain divergence.
func FromState(div vcs.DivergenceInfo, unmerged []string) Descriptor {
	switch {
	case len(unmerged) > 0:
		return Descriptor{HasConflicts: true, ConflictType: TypeMergeConflict, ConflictedFiles: unmerged}
	case div.IsDiverged:
		return Descriptor{HasConflicts: true, ConflictType: TypeDivergedHistory, ConflictedFiles: []string{}}
	}
	return None()
}

// Request is what a Strategy needs to resolve one conflict
type Request struct {
	Remote string
	Branch string

	Conflict Descriptor

	// Pending are the local changes that had not reached the remote
	// before the pull, captured before anything was discarded
	Pending []classify.Item

	// MetadataBefore and MetadataAfter are the metadata document at the
	// common ancestor and in the local working set. Either may be nil.
	MetadataBefore []byte
	MetadataAfter  []byte
}

// Target is the remote tracking ref the request refers to
func (r Request) Target() string {
	return r.Remote + "/" + r.Branch
}

// Resolution reports what a Strategy did
type Resolution struct {
	Descriptor

	Strategy string `json:"strategy"`

	// LostChanges describes each local change that was discarded
	LostChanges []string `json:"lostChanges"`
}

// Resetter is the part of the VCS a Strategy may drive
type Resetter interface {
	Reset(ctx context.Context, ref string, mode vcs.ResetMode) error
}

// Strategy resolves a conflict
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, v Resetter, req Request) (Resolution, error)
}

// StrategyRemoteWins is the configuration name of RemoteWins
const StrategyRemoteWins = "remote-wins"

// ParseStrategy returns the strategy registered under name
func ParseStrategy(name string, logger *slog.Logger) (Strategy, error) {
	switch name {
	case "", StrategyRemoteWins:
		return NewRemoteWins(logger), nil
	}
	return nil, fmt.Errorf("unknown conflict strategy %q (want %s)", name, StrategyRemoteWins)
}

// RemoteWins discards local divergent history and working changes in
// favour of the remote branch tip.
type RemoteWins struct {
	logger *slog.Logger
}

// NewRemoteWins creates the remote-wins strategy. logger may be nil.
func NewRemoteWins(logger *slog.Logger) *RemoteWins {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &RemoteWins{logger: logger}
}

func (s *RemoteWins) Name() string {
	return StrategyRemoteWins
}

// Resolve hard-resets the working set to the remote tracking branch. The
// lost-changes summary comes from req.Pending and the metadata versions, so
// it is available even though the conflicted tree cannot be diffed.
func (s *RemoteWins) Resolve(ctx context.Context, v Resetter, req Request) (Resolution, error) {
	res := Resolution{
		Descriptor:  req.Conflict,
		Strategy:    s.Name(),
		LostChanges: LostChanges(req),
	}

	if err := v.Reset(ctx, req.Target(), vcs.ResetHard); err != nil {
		return res, fmt.Errorf("reset to %s: %w", req.Target(), err)
	}

	s.logger.Warn("conflict resolved, local changes discarded",
		"type", req.Conflict.ConflictType,
		"target", req.Target(),
		"lost", len(res.LostChanges))
	return res, nil
}

// LostChanges describes the pending local changes of req one clause each:
// file operations first, then per-image metadata edits. A metadata
// document that changed in no describable way is named as a file.
func LostChanges(req Request) []string {
	in := commitmsg.Input{
		Items:          req.Pending,
		MetadataBefore: req.MetadataBefore,
		MetadataAfter:  req.MetadataAfter,
	}
	files := commitmsg.Describe(req.Pending)
	lost := commitmsg.Clauses(in)
	if len(lost) == len(files) {
		for _, item := range req.Pending {
			if item.Metadata {
				lost = append(lost, "modified: "+item.Name)
			}
		}
	}
	if lost == nil {
		lost = []string{}
	}
	return lost
}
