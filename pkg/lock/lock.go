package lock

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrTimeout is returned when a caller's wait on an operation exceeds its
// timeout. The operation itself keeps running and releases the lock when it
// finishes, so a retry after ErrTimeout will normally find the key free.
var ErrTimeout = errors.New("lock: operation timed out")

const (
	// DefaultTimeout bounds how long Acquire waits for a result
	DefaultTimeout = 30 * time.Second
	// expiryGrace is added on top of the timeout before a lock is considered
	// abandoned and swept
	expiryGrace = 30 * time.Second
)

// entry is one in-flight operation. All coalesced callers wait on done and
// read the same result/err pair.
type entry struct {
	acquiredAt time.Time
	timeout    time.Duration
	done       chan struct{}
	result     any
	err        error
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.acquiredAt) > e.timeout+expiryGrace
}

// Manager serializes operations per key. A second Acquire on a held key does
// not queue a duplicate execution; it joins the in-flight one and observes
// its single outcome (request coalescing). Constructed explicitly and
// injected from the composition root.
type Manager struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// NewManager creates a new lock manager.
func NewManager() *Manager {
	return &Manager{
		locks: make(map[string]*entry),
	}
}

// Acquire runs op under key, or joins the operation already holding key.
// The caller waits at most timeout for the outcome; on timeout it receives
// ErrTimeout while the operation continues in the background and releases
// the lock on its own completion.
func (m *Manager) Acquire(key string, timeout time.Duration, op func() (any, error)) (any, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	m.mu.Lock()
	m.sweepLocked()

	if e, ok := m.locks[key]; ok {
		m.mu.Unlock()
		log.Printf("[Lock] Key %s already held, joining in-flight operation", key)
		return m.wait(e, timeout)
	}

	e := &entry{
		acquiredAt: time.Now(),
		timeout:    timeout,
		done:       make(chan struct{}),
	}
	m.locks[key] = e
	m.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.err = fmt.Errorf("lock: operation panicked: %v", r)
				m.release(key, e)
			}
		}()
		e.result, e.err = op()
		m.release(key, e)
	}()

	return m.wait(e, timeout)
}

// HasLock reports whether a live (non-expired) lock holds key.
func (m *Manager) HasLock(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	_, ok := m.locks[key]
	return ok
}

// ForceRelease drops the lock for key without waiting for its operation.
// Returns true if a lock was present. Administrative escape hatch only.
func (m *Manager) ForceRelease(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.locks[key]; !ok {
		return false
	}
	delete(m.locks, key)
	log.Printf("[Lock] Force released key %s", key)
	return true
}

func (m *Manager) wait(e *entry, timeout time.Duration) (any, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-e.done:
		return e.result, e.err
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// release publishes the result and frees the key. The entry may already have
// been force-released or swept; only remove the map slot if it is still ours.
func (m *Manager) release(key string, e *entry) {
	m.mu.Lock()
	if cur, ok := m.locks[key]; ok && cur == e {
		delete(m.locks, key)
	}
	m.mu.Unlock()
	close(e.done)
}

// sweepLocked purges expired entries. Callers hold m.mu.
func (m *Manager) sweepLocked() {
	now := time.Now()
	for key, e := range m.locks {
		if e.expired(now) {
			log.Printf("[Lock] Sweeping expired lock %s (held %s)", key, now.Sub(e.acquiredAt))
			delete(m.locks, key)
		}
	}
}
