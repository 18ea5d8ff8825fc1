package replay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/and161185/course-stream/internal/clock"
)

// Memory is a process-local guard. Reserve holds the lock for the whole test-and-set.
type Memory struct {
	mu      sync.Mutex
	entries map[string]time.Time
	clock   clock.Clock
}

// NewMemory constructs an in-memory guard.
func NewMemory(c clock.Clock) *Memory {
	if c == nil {
		c = clock.Real()
	}
	return &Memory{entries: make(map[string]time.Time), clock: c}
}

// Reserve implements Guard.
func (m *Memory) Reserve(_ context.Context, jti string, ttl time.Duration) (bool, error) {
	if jti == "" {
		return false, errors.New("empty jti")
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if exp, ok := m.entries[jti]; ok && exp.After(now) {
		return false, nil
	}
	m.entries[jti] = now.Add(ttl)
	return true, nil
}

// Has implements Guard.
func (m *Memory) Has(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.entries[jti]
	return ok && exp.After(m.clock.Now()), nil
}

// Sweep removes expired entries.
func (m *Memory) Sweep(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	var n int64
	for jti, exp := range m.entries {
		if !exp.After(now) {
			delete(m.entries, jti)
			n++
		}
	}
	return n, nil
}
