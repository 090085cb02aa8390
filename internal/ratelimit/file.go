package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
)

const defaultMaxKeys = 4096

// File keeps all counters in a single JSON document guarded by an
// exclusive advisory lock, so separate worker processes on one host
// see the same state. Each call loads the map, prunes expired entries,
// applies the counter rule, evicts the oldest entries past MaxKeys and
// writes the document back atomically under the same lock.
type File struct {
	path    string
	lock    *flock.Flock
	maxKeys int
	logger  *slog.Logger
}

// NewFile creates the file-backed backend, verifying the directory is
// writable up front so limiter construction can degrade early.
func NewFile(path string, maxKeys int, logger *slog.Logger) (*File, error) {
	if maxKeys <= 0 {
		maxKeys = defaultMaxKeys
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create rate limit directory: %w", err)
	}
	probe, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("rate limit file not writable: %w", err)
	}
	probe.Close()

	return &File{
		path:    path,
		lock:    flock.New(path + ".lock"),
		maxKeys: maxKeys,
		logger:  logger,
	}, nil
}

// Allow applies the fixed-window rule under the advisory lock. On any
// I/O failure the attempt is allowed and the failure logged; abuse
// control degrades rather than taking down verification.
func (f *File) Allow(ctx context.Context, key string, maxAttempts int, window time.Duration) bool {
	allowed := true
	err := f.withLock(func() error {
		counters, err := f.load()
		if err != nil {
			return err
		}

		now := time.Now()
		for k, c := range counters {
			if c.expired(now) {
				delete(counters, k)
			}
		}

		c, ok := counters[key]
		if !ok {
			c = &counter{}
			counters[key] = c
		}
		allowed = c.apply(now, maxAttempts, window)

		f.evict(counters, key)
		return f.store(counters)
	})
	if err != nil {
		f.logger.Error("file rate limiter failed, allowing attempt",
			slog.String("key", key), slog.Any("error", err))
		return true
	}
	return allowed
}

// Reset drops the counter for key
func (f *File) Reset(ctx context.Context, key string) {
	err := f.withLock(func() error {
		counters, err := f.load()
		if err != nil {
			return err
		}
		delete(counters, key)
		return f.store(counters)
	})
	if err != nil {
		f.logger.Error("file rate limiter reset failed",
			slog.String("key", key), slog.Any("error", err))
	}
}

func (f *File) withLock(fn func() error) error {
	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire rate limit lock: %w", err)
	}
	defer f.lock.Unlock()
	return fn()
}

func (f *File) load() (map[string]*counter, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]*counter), nil
		}
		return nil, fmt.Errorf("failed to read rate limit file: %w", err)
	}
	counters := make(map[string]*counter)
	if len(data) == 0 {
		return counters, nil
	}
	if err := json.Unmarshal(data, &counters); err != nil {
		// A corrupt document is discarded rather than wedging every
		// verification path behind a parse error.
		f.logger.Warn("discarding corrupt rate limit file", slog.String("path", f.path))
		return make(map[string]*counter), nil
	}
	return counters, nil
}

// store writes the document to a temp file and renames it into place
// so readers never observe a partial write.
func (f *File) store(counters map[string]*counter) error {
	data, err := json.Marshal(counters)
	if err != nil {
		return fmt.Errorf("failed to encode rate limit state: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write rate limit state: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace rate limit state: %w", err)
	}
	return nil
}

// evict removes the oldest windows until the map fits maxKeys. The key
// touched by the current call is never evicted.
func (f *File) evict(counters map[string]*counter, keep string) {
	if len(counters) <= f.maxKeys {
		return
	}
	type entry struct {
		key   string
		start int64
	}
	entries := make([]entry, 0, len(counters))
	for k, c := range counters {
		if k == keep {
			continue
		}
		entries = append(entries, entry{key: k, start: c.WindowStart})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].start < entries[j].start })

	excess := len(counters) - f.maxKeys
	for i := 0; i < excess && i < len(entries); i++ {
		delete(counters, entries[i].key)
	}
}
