package lock

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTestLock(t *testing.T) (*FileLock, clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Now())
	root := t.TempDir()
	vcsDir := filepath.Join(root, ".git")
	if err := os.MkdirAll(vcsDir, 0o755); err != nil {
		t.Fatal(err)
	}

	return New(Config{
		StateDir: filepath.Join(vcsDir, "framesync"),
		VCSDir:   vcsDir,
		Clock:    clock,
	}), clock
}

func writeMarker(t *testing.T, path string, h Holder) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(h)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestAcquireRelease(t *testing.T) {
	l, _ := newTestLock(t)

	ok, err := l.Acquire()
	if err != nil || !ok {
		t.Fatalf("Acquire() = %v, %v; want true", ok, err)
	}
	if !l.Held() {
		t.Error("Held() = false after Acquire")
	}

	h, err := readHolder(l.Marker())
	if err != nil {
		t.Fatalf("marker unreadable: %v", err)
	}
	if h.PID != os.Getpid() {
		t.Errorf("marker pid = %d, want %d", h.PID, os.Getpid())
	}

	if ok, _ := l.Acquire(); ok {
		t.Error("second Acquire() = true while held")
	}

	l.Release()
	if l.Held() {
		t.Error("Held() = true after Release")
	}
	if _, err := os.Stat(l.Marker()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("marker still present after Release: %v", err)
	}

	// Release is a no-op when not held
	l.Release()

	if ok, _ := l.Acquire(); !ok {
		t.Error("Acquire() after Release = false")
	}
	l.Release()
}

func TestAcquireConcurrent(t *testing.T) {
	l, _ := newTestLock(t)

	var wg sync.WaitGroup
	var winners atomic.Int32
	start := make(chan struct{})

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if ok, err := l.Acquire(); err == nil && ok {
				winners.Add(1)
			}
		}()
	}

	close(start)
	wg.Wait()

	if got := winners.Load(); got != 1 {
		t.Errorf("%d callers acquired the lock, want exactly 1", got)
	}
}

func TestAcquireAcrossInstances(t *testing.T) {
	a, clock := newTestLock(t)
	b := New(Config{StateDir: a.cfg.StateDir, Clock: clock})

	if ok, _ := a.Acquire(); !ok {
		t.Fatal("first instance could not acquire")
	}
	if ok, _ := b.Acquire(); ok {
		t.Fatal("second instance acquired a held lock")
	}
	if b.Held() {
		t.Error("failed Acquire left the held flag set")
	}

	// b never held it, so its Release must not remove a's marker
	b.Release()
	if _, err := os.Stat(a.Marker()); err != nil {
		t.Errorf("marker removed by non-holder: %v", err)
	}

	a.Release()
	if ok, _ := b.Acquire(); !ok {
		t.Error("second instance could not acquire after release")
	}
}

func TestLockedAcrossInstances(t *testing.T) {
	a, clock := newTestLock(t)
	b := New(Config{StateDir: a.cfg.StateDir, Clock: clock})

	if a.Locked() || b.Locked() {
		t.Fatal("Locked() = true before any Acquire")
	}
	if ok, _ := a.Acquire(); !ok {
		t.Fatal("first instance could not acquire")
	}
	if !b.Locked() {
		t.Error("Locked() = false while another instance holds the marker")
	}
	if b.Held() {
		t.Error("Held() = true for the instance that does not own the lock")
	}

	a.Release()
	if b.Locked() {
		t.Error("Locked() = true after release")
	}
}

func TestStaleMarkerByAge(t *testing.T) {
	l, clock := newTestLock(t)

	writeMarker(t, l.Marker(), Holder{
		PID:        4242,
		Host:       "kitchen-frame",
		AcquiredAt: clock.Now().Add(-time.Minute),
	})

	info := l.DetectStale()
	if info.IsStale {
		t.Fatalf("DetectStale() = %+v, want fresh", info)
	}
	if info.LockFile != l.Marker() || info.Age != time.Minute {
		t.Errorf("DetectStale() = %+v, want marker aged 1m", info)
	}
	if ok, _ := l.Acquire(); ok {
		t.Fatal("Acquire() succeeded over a fresh foreign marker")
	}

	clock.Advance(2 * time.Minute)

	info = l.DetectStale()
	if !info.IsStale || info.Age != 3*time.Minute {
		t.Fatalf("DetectStale() = %+v, want stale at 3m", info)
	}
	if info.Holder == nil || info.Holder.Host != "kitchen-frame" {
		t.Errorf("Holder = %+v, want the recorded owner", info.Holder)
	}

	ok, err := l.Acquire()
	if err != nil || !ok {
		t.Fatalf("Acquire() over stale marker = %v, %v", ok, err)
	}
	l.Release()
}

func TestIndexLockDetection(t *testing.T) {
	l, clock := newTestLock(t)
	indexLock := filepath.Join(l.cfg.VCSDir, "index.lock")

	if info := l.DetectStale(); info.LockFile != "" {
		t.Fatalf("DetectStale() with no locks = %+v", info)
	}

	if err := os.WriteFile(indexLock, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(indexLock, clock.Now(), clock.Now()); err != nil {
		t.Fatal(err)
	}

	info := l.DetectStale()
	if info.IsStale || info.LockFile != indexLock {
		t.Fatalf("DetectStale() = %+v, want fresh index.lock", info)
	}
	if err := l.ClearStale(info); !errors.Is(err, ErrNotStale) {
		t.Errorf("ClearStale(fresh) = %v, want ErrNotStale", err)
	}

	clock.Advance(5 * time.Minute)

	info = l.DetectStale()
	if !info.IsStale || info.LockFile != indexLock || info.Age != 5*time.Minute {
		t.Fatalf("DetectStale() = %+v, want stale index.lock", info)
	}

	if err := l.ClearStale(info); err != nil {
		t.Fatalf("ClearStale() failed: %v", err)
	}
	if _, err := os.Stat(indexLock); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("index.lock still present: %v", err)
	}
}

func TestDetectStalePrefersStaleFile(t *testing.T) {
	l, clock := newTestLock(t)

	// Fresh foreign marker, ancient index.lock
	writeMarker(t, l.Marker(), Holder{PID: 1, Host: "elsewhere", AcquiredAt: clock.Now()})
	indexLock := filepath.Join(l.cfg.VCSDir, "index.lock")
	if err := os.WriteFile(indexLock, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	old := clock.Now().Add(-time.Hour)
	if err := os.Chtimes(indexLock, old, old); err != nil {
		t.Fatal(err)
	}

	info := l.DetectStale()
	if !info.IsStale || info.LockFile != indexLock {
		t.Errorf("DetectStale() = %+v, want the stale index.lock", info)
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory()

	if ok, _ := m.Acquire(); !ok {
		t.Fatal("Acquire() = false on fresh lock")
	}
	if ok, _ := m.Acquire(); ok {
		t.Fatal("Acquire() = true while held")
	}
	m.Release()
	if m.Held() {
		t.Error("Held() after Release")
	}

	if err := m.ClearStale(m.DetectStale()); !errors.Is(err, ErrNotStale) {
		t.Errorf("ClearStale(nothing) = %v, want ErrNotStale", err)
	}

	m.SetStale(StaleInfo{IsStale: true, LockFile: "index.lock", Age: time.Hour})
	if err := m.ClearStale(m.DetectStale()); err != nil {
		t.Fatalf("ClearStale() failed: %v", err)
	}
	if m.Cleared != 1 || m.DetectStale().IsStale {
		t.Errorf("Memory after clear = %+v", m.DetectStale())
	}
}
