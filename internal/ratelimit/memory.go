package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory is the in-process fallback backend. It is a last resort: the
// map is local to one worker process, so enforcement does not
// coordinate across separate processes.
type Memory struct {
	mu       sync.Mutex
	counters map[string]*counter
}

// NewMemory creates the in-process backend
func NewMemory() *Memory {
	return &Memory{counters: make(map[string]*counter)}
}

// Allow applies the fixed-window rule under the local mutex
func (m *Memory) Allow(ctx context.Context, key string, maxAttempts int, window time.Duration) bool {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneLocked(now)

	c, ok := m.counters[key]
	if !ok {
		c = &counter{}
		m.counters[key] = c
	}
	return c.apply(now, maxAttempts, window)
}

// Reset drops the counter for key
func (m *Memory) Reset(ctx context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.counters, key)
}

// pruneLocked drops expired counters. Caller holds the mutex.
func (m *Memory) pruneLocked(now time.Time) {
	for k, c := range m.counters {
		if c.expired(now) {
			delete(m.counters, k)
		}
	}
}
