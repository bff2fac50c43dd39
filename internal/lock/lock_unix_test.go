//go:build unix

package lock

import (
	"os"
	"os/exec"
	"testing"
	"time"
)

// deadPID returns the pid of a process that has already exited
func deadPID(t *testing.T) int {
	t.Helper()

	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Fatalf("run true: %v", err)
	}
	return cmd.Process.Pid
}

func TestStaleMarkerDeadHolder(t *testing.T) {
	l, clock := newTestLock(t)

	// Brand new, but its owner on this host is gone
	writeMarker(t, l.Marker(), Holder{PID: deadPID(t), Host: l.host, AcquiredAt: clock.Now()})

	info := l.DetectStale()
	if !info.IsStale {
		t.Fatalf("DetectStale() = %+v, want stale (dead holder)", info)
	}

	if ok, err := l.Acquire(); err != nil || !ok {
		t.Fatalf("Acquire() over dead holder = %v, %v", ok, err)
	}
	l.Release()
}

func TestStaleMarkerReusedPID(t *testing.T) {
	l, clock := newTestLock(t)

	// Left by a crash before a reboot; the pid now names a live process
	writeMarker(t, l.Marker(), Holder{PID: os.Getpid(), Host: l.host, AcquiredAt: clock.Now().Add(-6 * time.Hour)})

	info := l.DetectStale()
	if !info.IsStale || info.Age != 6*time.Hour {
		t.Fatalf("DetectStale() = %+v, want stale at 6h", info)
	}
	if l.Locked() {
		t.Error("Locked() = true for an abandoned marker")
	}

	ok, err := l.Acquire()
	if err != nil || !ok {
		t.Fatalf("Acquire() over abandoned marker = %v, %v", ok, err)
	}
	l.Release()
}

func TestFreshMarkerLiveHolder(t *testing.T) {
	l, clock := newTestLock(t)

	writeMarker(t, l.Marker(), Holder{PID: os.Getpid(), Host: l.host, AcquiredAt: clock.Now().Add(-time.Minute)})

	if info := l.DetectStale(); info.IsStale {
		t.Fatalf("DetectStale() = %+v, want fresh", info)
	}
	if ok, _ := l.Acquire(); ok {
		t.Fatal("Acquire() succeeded over a live holder")
	}
	if !l.Locked() {
		t.Error("Locked() = false with a live holder")
	}
}

func TestOwnMarkerNeverStale(t *testing.T) {
	l, clock := newTestLock(t)

	if ok, _ := l.Acquire(); !ok {
		t.Fatal("Acquire() failed")
	}
	defer l.Release()

	// A long push must not make our own lock look abandoned
	clock.Advance(time.Hour)

	info := l.DetectStale()
	if info.IsStale {
		t.Errorf("DetectStale() = %+v, own live marker reported stale", info)
	}
	if info.Holder == nil || info.Holder.PID != os.Getpid() {
		t.Errorf("Holder = %+v, want this process", info.Holder)
	}

	forced := StaleInfo{IsStale: true, LockFile: l.Marker()}
	if err := l.ClearStale(forced); err != ErrNotStale {
		t.Errorf("ClearStale(own marker) = %v, want ErrNotStale", err)
	}
	if _, err := os.Stat(l.Marker()); err != nil {
		t.Errorf("own marker removed: %v", err)
	}
}

func TestProcessAlive(t *testing.T) {
	if !processAlive(os.Getpid()) {
		t.Error("processAlive(self) = false")
	}
	if processAlive(0) || processAlive(-1) {
		t.Error("processAlive accepted a non-positive pid")
	}
}
