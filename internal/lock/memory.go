package lock

import (
	"sync"
	"sync/atomic"
)

// Memory is an in-process Locker with no disk state
type Memory struct {
	held atomic.Bool

	mu    sync.Mutex
	stale StaleInfo

	// Cleared counts successful ClearStale calls
	Cleared int
}

// NewMemory returns an unheld in-memory lock
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Acquire() (bool, error) {
	return m.held.CompareAndSwap(false, true), nil
}

func (m *Memory) Release() {
	m.held.Store(false)
}

func (m *Memory) Held() bool {
	return m.held.Load()
}

// Locked is Held; a Memory lock has no other holders
func (m *Memory) Locked() bool {
	return m.held.Load()
}

// SetStale makes DetectStale report info until it is cleared
func (m *Memory) SetStale(info StaleInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stale = info
}

func (m *Memory) DetectStale() StaleInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stale
}

func (m *Memory) ClearStale(info StaleInfo) error {
	if !info.IsStale {
		return ErrNotStale
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stale = StaleInfo{}
	m.Cleared++
	return nil
}
