package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/framesync/framesync/internal/classify"
	"github.com/framesync/framesync/internal/conflict"
	"github.com/framesync/framesync/internal/library"
	"github.com/framesync/framesync/internal/lock"
	"github.com/framesync/framesync/internal/synclog"
	"github.com/framesync/framesync/internal/validate"
	"github.com/framesync/framesync/internal/vcs"
)

// MergeMode selects how a pull joins diverged histories
type MergeMode string

const (
	// MergeModeMerge merges non-overlapping divergence; only textual
	// conflicts and unrelated histories reach the conflict strategy
	MergeModeMerge MergeMode = "merge"

	// MergeModeFFOnly hands any divergence to the conflict strategy
	MergeModeFFOnly MergeMode = "ff-only"
)

// Operation names recorded in the sync log
const (
	OpFullSync = "full-sync"
	OpPull     = "pull"
	OpRecovery = "lock-recovery"
	OpRename   = "rename"
)

// DefaultMinGitVersion is the oldest git VerifyConfiguration accepts
const DefaultMinGitVersion = "2.30.0"

// Config configures an Engine
type Config struct {
	// Remote defaults to vcs.DefaultRemote
	Remote string

	// Branch is the sync branch. When set, syncs refuse to run on any
	// other branch; when empty the current branch is synced.
	Branch string

	// MainBranch is reported through StatusReport.IsMainBranch
	MainBranch string

	Layout library.Layout

	// MergeMode defaults to MergeModeMerge
	MergeMode MergeMode

	// Strategy defaults to remote-wins
	Strategy conflict.Strategy

	// MinGitVersion defaults to DefaultMinGitVersion
	MinGitVersion string

	// Notifier is optional
	Notifier Notifier

	Clock  clockwork.Clock
	Logger *slog.Logger
}

// Engine runs sync operations against one working set
type Engine struct {
	cfg Config

	vcs        vcs.VCS
	lock       lock.Locker
	history    *synclog.Store
	classifier *classify.Classifier
	validator  *validate.Validator
	clock      clockwork.Clock
	logger     *slog.Logger
}

// New creates an Engine
func New(v vcs.VCS, l lock.Locker, history *synclog.Store, cfg Config) *Engine {
	if cfg.Remote == "" {
		cfg.Remote = vcs.DefaultRemote
	}
	if cfg.MainBranch == "" {
		cfg.MainBranch = "main"
	}
	if cfg.MergeMode == "" {
		cfg.MergeMode = MergeModeMerge
	}
	if cfg.MinGitVersion == "" {
		cfg.MinGitVersion = DefaultMinGitVersion
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Strategy == nil {
		cfg.Strategy = conflict.NewRemoteWins(cfg.Logger)
	}

	return &Engine{
		cfg:        cfg,
		vcs:        v,
		lock:       l,
		history:    history,
		classifier: classify.New(cfg.Layout),
		validator:  validate.New(cfg.Layout, v, cfg.Logger),
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}
}

// SetNotifier replaces the notifier; nil disables notifications
func (e *Engine) SetNotifier(n Notifier) {
	e.cfg.Notifier = n
}

// SyncResult is the outcome of PerformFullSync
type SyncResult struct {
	Success bool `json:"success"`
	Busy    bool `json:"busy,omitempty"`

	Committed     bool   `json:"committed"`
	CommitHash    string `json:"commitHash,omitempty"`
	CommitMessage string `json:"commitMessage,omitempty"`

	AutoResolvedConflict bool          `json:"autoResolvedConflict"`
	LostChangesSummary   []string      `json:"lostChangesSummary"`
	RemoteChangesSummary []string      `json:"remoteChangesSummary"`
	ConflictType         conflict.Type `json:"conflictType,omitempty"`
	ConflictedFiles      []string      `json:"conflictedFiles"`

	// Recovered is set when a stale lock was cleared and the sync retried
	Recovered bool `json:"recovered,omitempty"`

	Error            string               `json:"error,omitempty"`
	ErrorKind        ErrorKind            `json:"errorKind,omitempty"`
	ValidationErrors []validate.Rejection `json:"validationErrors,omitempty"`
	CleanedUpImages  []string             `json:"cleanedUpImages,omitempty"`

	// Branch and RemoteCommit describe where the sync ended
	Branch       string `json:"branch,omitempty"`
	RemoteCommit string `json:"remoteCommit,omitempty"`
}

// Warning reports whether the sync succeeded but discarded local changes
func (r SyncResult) Warning() bool {
	return r.Success && r.AutoResolvedConflict
}

// PullReport is the outcome of CheckAndPullIfBehind
type PullReport struct {
	Success          bool      `json:"success"`
	Synced           bool      `json:"synced"`
	PulledChanges    bool      `json:"pulledChanges"`
	Skipped          bool      `json:"skipped"`
	Reason           string    `json:"reason,omitempty"`
	UncommittedFiles []string  `json:"uncommittedFiles,omitempty"`
	CommitsReceived  int       `json:"commitsReceived,omitempty"`
	RemoteChanges    []string  `json:"remoteChanges,omitempty"`
	Message          string    `json:"message,omitempty"`
	Error            string    `json:"error,omitempty"`
	ErrorKind        ErrorKind `json:"errorKind,omitempty"`
}

// StatusReport is the outcome of GetStatus
type StatusReport struct {
	Upload            classify.Bucket     `json:"upload"`
	Download          classify.Bucket     `json:"download"`
	HasChanges        bool                `json:"hasChanges"`
	Branch            string              `json:"branch"`
	IsMainBranch      bool                `json:"isMainBranch"`
	LastSyncTimestamp string              `json:"lastSyncTimestamp,omitempty"`
	Conflict          conflict.Descriptor `json:"conflict"`
	SyncInProgress    bool                `json:"syncInProgress"`

	// UploadItems and DownloadItems name the changes behind the buckets
	UploadItems   []classify.Item `json:"uploadItems,omitempty"`
	DownloadItems []classify.Item `json:"downloadItems,omitempty"`
}

// ConfigChecks are the individual facts VerifyConfiguration looked at
type ConfigChecks struct {
	RemoteURL      string `json:"remoteUrl"`
	CurrentBranch  string `json:"currentBranch"`
	ExpectedBranch string `json:"expectedBranch"`
	GitVersion     string `json:"gitVersion"`
	LFSVersion     string `json:"lfsVersion"`
	LFSTracked     bool   `json:"lfsTracked"`
	UserConfigured bool   `json:"userConfigured"`
	MetadataValid  bool   `json:"metadataValid"`
}

// ConfigReport is the outcome of VerifyConfiguration
type ConfigReport struct {
	IsValid bool         `json:"isValid"`
	Checks  ConfigChecks `json:"checks"`
	Errors  []string     `json:"errors,omitempty"`
}

// tracking returns the remote tracking ref of branch
func (e *Engine) tracking(branch string) string {
	return e.cfg.Remote + "/" + branch
}

// branch returns the branch to sync, enforcing the configured one
func (e *Engine) branch(ctx context.Context) (string, error) {
	current, err := e.vcs.CurrentRef(ctx)
	if err != nil {
		return "", err
	}
	if e.cfg.Branch != "" && current != e.cfg.Branch {
		return current, fmt.Errorf("%w: on %q, expected %q", ErrWrongBranch, current, e.cfg.Branch)
	}
	return current, nil
}

// revision resolves ref, returning "" when it does not exist
func (e *Engine) revision(ctx context.Context, ref string) (string, error) {
	hash, err := e.vcs.RevParse(ctx, ref)
	if errors.Is(err, vcs.ErrRefNotFound) {
		return "", nil
	}
	return hash, err
}

// metadataAt returns the metadata document at ref, nil if absent there
func (e *Engine) metadataAt(ctx context.Context, ref string) ([]byte, error) {
	doc, err := e.vcs.ExtractFileFromRef(ctx, ref, e.cfg.Layout.MetadataFile)
	if errors.Is(err, vcs.ErrRefNotFound) {
		return nil, nil
	}
	return doc, err
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
