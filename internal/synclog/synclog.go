// Package synclog keeps the bounded history of sync attempts.
//
// The log is a single JSON array, newest entry first, capped at a fixed
// number of entries. It is the record of what happened to a working set;
// diagnostic logging goes through slog instead.
//
// Writers may run in different processes (the CLI and a long-running
// server, say), so every read-modify-write holds a file lock next to the
// log in addition to the in-process mutex.
package synclog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// FileName is the log file inside the state directory
const FileName = "sync-log.json"

// DefaultLimit is the number of entries kept
const DefaultLimit = 200

// Status is the outcome recorded by an entry
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailure  Status = "failure"
	StatusWarning  Status = "warning"
	StatusRecovery Status = "recovery"
	StatusInfo     Status = "info"
)

// Succeeded reports whether the status counts as a completed sync
func (s Status) Succeeded() bool {
	return s == StatusSuccess || s == StatusWarning
}

// Entry is one record in the log. Entries are never changed once appended.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	Error     string    `json:"error,omitempty"`
	ErrorKind string    `json:"errorKind,omitempty"`

	HasConflicts    bool     `json:"hasConflicts"`
	ConflictType    string   `json:"conflictType,omitempty"`
	ConflictedFiles []string `json:"conflictedFiles"`
	LostChanges     []string `json:"lostChanges"`
	RemoteChanges   []string `json:"remoteChanges"`

	Branch       string `json:"branch"`
	RemoteCommit string `json:"remoteCommit,omitempty"`
	Committed    bool   `json:"committed"`
	DurationMs   int64  `json:"durationMs"`
}

// ErrCorrupt is returned when the log file is not a JSON array of entries
var ErrCorrupt = errors.New("sync log is corrupt")

// Config configures a Store
type Config struct {
	// Dir holds the log file and its lock
	Dir string

	// Limit caps the number of entries; zero means DefaultLimit
	Limit int

	Clock  clockwork.Clock
	Logger *slog.Logger
}

// Store reads and appends to one log file
type Store struct {
	path   string
	limit  int
	clock  clockwork.Clock
	logger *slog.Logger

	mu    sync.Mutex
	flock *flock.Flock
}

// New creates a Store. The directory is created on first write.
func New(cfg Config) *Store {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	path := filepath.Join(cfg.Dir, FileName)
	return &Store{
		path:   path,
		limit:  cfg.Limit,
		clock:  cfg.Clock,
		logger: cfg.Logger,
		flock:  flock.New(path + ".lock"),
	}
}

// Path returns the log file path
func (s *Store) Path() string {
	return s.path
}

// Entries returns every entry, newest first. A missing log is empty.
func (s *Store) Entries() ([]Entry, error) {
	var entries []Entry
	err := s.locked(func() error {
		var err error
		entries, err = s.read()
		return err
	})
	return entries, err
}

// Append stamps e with a fresh id and, if unset, the current time, then
// adds it to the front of the log, dropping the oldest entries past the
// limit. A corrupt log is replaced rather than blocking new entries.
func (s *Store) Append(e Entry) (Entry, error) {
	e.ID = uuid.NewString()
	if e.Timestamp.IsZero() {
		e.Timestamp = s.clock.Now().UTC()
	}
	normalize(&e)

	err := s.locked(func() error {
		entries, err := s.read()
		if errors.Is(err, ErrCorrupt) {
			s.logger.Warn("discarding corrupt sync log", "path", s.path, "error", err)
			entries = nil
		} else if err != nil {
			return err
		}

		entries = append([]Entry{e}, entries...)
		if len(entries) > s.limit {
			entries = entries[:s.limit]
		}
		return s.write(entries)
	})
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Clear removes every entry
func (s *Store) Clear() error {
	return s.locked(func() error {
		return s.write([]Entry{})
	})
}

// LastSuccess returns the newest entry whose status counts as a completed
// sync, or nil if there is none.
func (s *Store) LastSuccess() (*Entry, error) {
	entries, err := s.Entries()
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].Status.Succeeded() {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// Since returns the entries recorded at or after t, newest first
func (s *Store) Since(t time.Time) ([]Entry, error) {
	entries, err := s.Entries()
	if err != nil {
		return nil, err
	}
	return Filter(entries, t, 0), nil
}

// Filter keeps the entries at or after since (unless zero), then the first
// limit of them (unless zero). entries must be newest first.
func Filter(entries []Entry, since time.Time, limit int) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !since.IsZero() && e.Timestamp.Before(since) {
			// newest first, so everything after this is older still
			break
		}
		out = append(out, e)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) locked(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create sync log dir: %w", err)
	}
	if err := s.flock.Lock(); err != nil {
		return fmt.Errorf("lock sync log: %w", err)
	}
	defer func() { _ = s.flock.Unlock() }()

	return fn()
}

func (s *Store) read() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sync log: %w", err)
	}
	if len(data) == 0 {
		return []Entry{}, nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

func (s *Store) write(entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sync log: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".sync-log-*.tmp")
	if err != nil {
		return fmt.Errorf("write sync log: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write sync log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write sync log: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write sync log: %w", err)
	}
	return nil
}

// normalize replaces nil lists so the file always carries arrays
func normalize(e *Entry) {
	if e.ConflictedFiles == nil {
		e.ConflictedFiles = []string{}
	}
	if e.LostChanges == nil {
		e.LostChanges = []string{}
	}
	if e.RemoteChanges == nil {
		e.RemoteChanges = []string{}
	}
}
