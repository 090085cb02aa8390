// Package sessionstore provides the TTL-aware key-value capability the
// MFA services use for pending state: a half-finished TOTP enrollment,
// a pending-MFA login, an open WebAuthn challenge. Expiry is enforced
// lazily at read time; there is no background sweep, so an
// expired-but-unread entry simply behaves as absent.
package sessionstore

import (
	"encoding/json"
	"sync"
	"time"
)

// Store is the injected ephemeral state capability. Take removes the
// entry as it reads it, so exactly one of two racing consumers obtains
// a pending record.
type Store interface {
	Get(key string) ([]byte, bool)
	Take(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is the in-process Store used per worker. The pending records
// it holds are scoped to the caller's session, never shared state.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewMemory creates an empty store
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry)}
}

// Get returns the value for key if it exists and has not expired.
// Expired entries are removed on read.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Take removes key and returns its value if it existed and had not
// expired. Removal and read happen under one lock, so a second
// concurrent Take for the same key comes back empty.
func (m *Memory) Take(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	delete(m.entries, key)
	if time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Set stores value under key for ttl
func (m *Memory) Set(key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
}

// Delete removes key
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// GetJSON decodes the stored value for key into out
func GetJSON(s Store, key string, out any) bool {
	data, ok := s.Get(key)
	if !ok {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

// TakeJSON atomically removes the stored value for key and decodes it
// into out
func TakeJSON(s Store, key string, out any) bool {
	data, ok := s.Take(key)
	if !ok {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

// SetJSON encodes v and stores it under key for ttl
func SetJSON(s Store, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.Set(key, data, ttl)
	return nil
}
