// Package lock guarantees a single sync pipeline per working set.
//
// The lock is two-layered: an in-process held flag so concurrent callers in
// one process are rejected without touching the disk, and an on-disk marker
// so a second process against the same clone is rejected too. A marker left
// behind by a crashed process is detected as stale and removed before the
// next acquire: immediately when its owner on this host is gone, and in any
// case once it is older than the staleness threshold, since a pid recorded
// before a crash may belong to an unrelated process by now.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// MarkerName is the engine's lock file inside the state directory.
const MarkerName = "sync.lock"

// DefaultStaleAfter is how old an unattributable lock must be before it is
// considered abandoned.
const DefaultStaleAfter = 2 * time.Minute

// ErrNotStale is returned by ClearStale for a lock that is still valid.
var ErrNotStale = errors.New("lock is not stale")

// Locker is the lock manager contract the sync engine depends on.
type Locker interface {
	// Acquire takes the lock without blocking. It returns false when another
	// caller holds it; the error is reserved for I/O failures.
	Acquire() (bool, error)

	// Release gives the lock up. It is a no-op when not held.
	Release()

	// Held reports whether this process currently holds the lock.
	Held() bool

	// Locked reports whether anyone holds a valid lock: this process, or
	// another one through a marker that is not stale.
	Locked() bool

	// DetectStale inspects the on-disk markers, independent of in-process
	// ownership.
	DetectStale() StaleInfo

	// ClearStale removes a marker DetectStale reported as stale.
	ClearStale(info StaleInfo) error
}

// StaleInfo describes the most relevant lock file found on disk
type StaleInfo struct {
	// IsStale is true if LockFile is safe to remove
	IsStale bool `json:"isStale"`

	// LockFile is the path of the inspected marker, empty if none exists
	LockFile string `json:"lockFile,omitempty"`

	// Age is how long the marker has existed
	Age time.Duration `json:"age"`

	// Holder is the recorded owner, when the marker is the engine's own
	Holder *Holder `json:"holder,omitempty"`
}

// Holder is the content of the engine's marker file
type Holder struct {
	PID        int       `json:"pid"`
	Host       string    `json:"host"`
	AcquiredAt time.Time `json:"acquiredAt"`
}

// Config configures a FileLock
type Config struct {
	// StateDir holds the engine marker
	StateDir string

	// VCSDir is inspected for the VCS's own index.lock; optional
	VCSDir string

	// StaleAfter defaults to DefaultStaleAfter
	StaleAfter time.Duration

	// Clock defaults to the real clock
	Clock clockwork.Clock

	// Logger defaults to slog.Default()
	Logger *slog.Logger
}

// FileLock is the on-disk Locker
type FileLock struct {
	cfg    Config
	marker string
	host   string
	pid    int

	held atomic.Bool

	// mu serialises marker file manipulation
	mu sync.Mutex

	// since is the AcquiredAt of the marker this instance wrote, zero
	// when it owns none
	since time.Time
}

// New creates a FileLock; nothing touches the disk until Acquire
func New(cfg Config) *FileLock {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	host, _ := os.Hostname()

	return &FileLock{
		cfg:    cfg,
		marker: filepath.Join(cfg.StateDir, MarkerName),
		host:   host,
		pid:    os.Getpid(),
	}
}

// Marker returns the path of the engine's marker file
func (l *FileLock) Marker() string {
	return l.marker
}

// Acquire takes the lock if nobody holds it
func (l *FileLock) Acquire() (bool, error) {
	if !l.held.CompareAndSwap(false, true) {
		return false, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ok, err := l.createMarker()
	if err != nil || !ok {
		l.held.Store(false)
		return false, err
	}

	return true, nil
}

// createMarker writes the marker exclusively, removing a stale one first.
func (l *FileLock) createMarker() (bool, error) {
	if err := os.MkdirAll(l.cfg.StateDir, 0o755); err != nil {
		return false, fmt.Errorf("create lock dir: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.marker, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			holder := Holder{PID: l.pid, Host: l.host, AcquiredAt: l.cfg.Clock.Now().Round(0).UTC()}
			werr := json.NewEncoder(f).Encode(holder)
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(l.marker)
				return false, fmt.Errorf("write lock marker: %w", errors.Join(werr, cerr))
			}
			l.since = holder.AcquiredAt
			return true, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return false, fmt.Errorf("create lock marker: %w", err)
		}

		info := l.inspectMarker()
		if !info.IsStale {
			return false, nil
		}

		l.cfg.Logger.Warn("removing stale sync lock",
			"file", info.LockFile, "age", info.Age.Round(time.Second))
		if err := os.Remove(l.marker); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("remove stale lock marker: %w", err)
		}
	}

	return false, nil
}

// Release removes the marker if this process holds the lock
func (l *FileLock) Release() {
	if !l.held.Load() {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if h, err := readHolder(l.marker); err == nil && l.owns(h) {
		if err := os.Remove(l.marker); err != nil && !errors.Is(err, fs.ErrNotExist) {
			l.cfg.Logger.Error("failed to remove sync lock", "file", l.marker, "error", err)
		}
	}

	l.since = time.Time{}
	l.held.Store(false)
}

// Held reports whether this process holds the lock
func (l *FileLock) Held() bool {
	return l.held.Load()
}

// Locked reports whether this instance holds the lock or another holder's
// marker is still valid
func (l *FileLock) Locked() bool {
	if l.held.Load() {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	info := l.inspectMarker()
	return info.LockFile != "" && !info.IsStale
}

// owns reports whether h is the marker this instance wrote. The caller
// holds mu.
func (l *FileLock) owns(h Holder) bool {
	return !l.since.IsZero() && h.PID == l.pid && h.Host == l.host && h.AcquiredAt.Equal(l.since)
}

// DetectStale reports the VCS index lock or the engine marker, preferring
// whichever is stale.
func (l *FileLock) DetectStale() StaleInfo {
	l.mu.Lock()
	defer l.mu.Unlock()

	var found []StaleInfo

	if l.cfg.VCSDir != "" {
		if info, ok := l.inspectIndexLock(); ok {
			found = append(found, info)
		}
	}
	if info := l.inspectMarker(); info.LockFile != "" {
		found = append(found, info)
	}

	for _, info := range found {
		if info.IsStale {
			return info
		}
	}
	if len(found) > 0 {
		return found[0]
	}
	return StaleInfo{}
}

// ClearStale removes a lock file reported stale by DetectStale
func (l *FileLock) ClearStale(info StaleInfo) error {
	if !info.IsStale || info.LockFile == "" {
		return ErrNotStale
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if info.LockFile == l.marker {
		if h, err := readHolder(l.marker); err == nil && l.owns(h) {
			return ErrNotStale
		}
	}

	if err := os.Remove(info.LockFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", info.LockFile, err)
	}

	l.cfg.Logger.Info("cleared stale lock", "file", info.LockFile, "age", info.Age.Round(time.Second))
	return nil
}

// inspectMarker reads the engine marker. The caller holds mu.
//
// The marker this instance wrote is never stale. Any other marker is stale
// once older than StaleAfter, or earlier when its holder on this host is no
// longer running.
func (l *FileLock) inspectMarker() StaleInfo {
	st, err := os.Stat(l.marker)
	if err != nil {
		return StaleInfo{}
	}

	info := StaleInfo{LockFile: l.marker}
	acquired := st.ModTime()

	holder, err := readHolder(l.marker)
	if err == nil {
		info.Holder = &holder
		if !holder.AcquiredAt.IsZero() {
			acquired = holder.AcquiredAt
		}
	}
	info.Age = l.age(acquired)

	switch {
	case info.Holder != nil && l.owns(holder):
		info.IsStale = false
	case info.Age > l.cfg.StaleAfter:
		info.IsStale = true
	case canProbe && info.Holder != nil && holder.Host == l.host && holder.PID > 0:
		info.IsStale = !processAlive(holder.PID)
	}
	return info
}

// inspectIndexLock reports the VCS index.lock, which carries no owner.
func (l *FileLock) inspectIndexLock() (StaleInfo, bool) {
	path := filepath.Join(l.cfg.VCSDir, "index.lock")
	st, err := os.Stat(path)
	if err != nil {
		return StaleInfo{}, false
	}

	age := l.age(st.ModTime())
	return StaleInfo{
		IsStale:  age > l.cfg.StaleAfter,
		LockFile: path,
		Age:      age,
	}, true
}

func (l *FileLock) age(since time.Time) time.Duration {
	age := l.cfg.Clock.Since(since)
	if age < 0 {
		return 0
	}
	return age
}

func readHolder(path string) (Holder, error) {
	var h Holder
	data, err := os.ReadFile(path)
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(data, &h); err != nil {
		return h, fmt.Errorf("parse lock marker: %w", err)
	}
	return h, nil
}
