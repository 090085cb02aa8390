package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Limiter is a fixed-window counter per key. Allow starts a new window
// when none exists or the current one has elapsed, otherwise increments
// while count < maxAttempts. It never returns an error: a backend that
// cannot answer degrades to its fallback rather than failing open or
// closed unpredictably.
type Limiter interface {
	Allow(ctx context.Context, key string, maxAttempts int, window time.Duration) bool
	Reset(ctx context.Context, key string)
}

// Backend names for configuration-driven selection
const (
	BackendRedis  = "redis"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// Config selects and parameterizes the limiter backend
type Config struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	FilePath      string
	MaxKeys       int
}

// counter is the shared fixed-window state for one key
type counter struct {
	WindowStart int64 `json:"window_start"` // unix seconds
	Count       int   `json:"count"`
	TTLSeconds  int64 `json:"ttl"`
}

// apply runs the fixed-window rule against c at time now and reports
// whether the attempt is allowed. c is mutated in place.
func (c *counter) apply(now time.Time, maxAttempts int, window time.Duration) bool {
	windowSeconds := int64(window / time.Second)
	if windowSeconds < 1 {
		windowSeconds = 1
	}
	if c.WindowStart == 0 || now.Unix()-c.WindowStart >= windowSeconds {
		c.WindowStart = now.Unix()
		c.Count = 1
		c.TTLSeconds = windowSeconds
		return true
	}
	if c.Count < maxAttempts {
		c.Count++
		return true
	}
	return false
}

func (c *counter) expired(now time.Time) bool {
	return c.WindowStart == 0 || now.Unix()-c.WindowStart >= c.TTLSeconds
}

// New builds a limiter from config, degrading along the documented
// chain redis -> file -> memory. The selected backend is logged so the
// fallback is observable rather than silent.
func New(cfg Config, logger *slog.Logger) Limiter {
	switch cfg.Backend {
	case BackendRedis:
		if cfg.RedisAddr != "" {
			fallback := newFileOrMemory(cfg, logger)
			logger.Info("rate limiter backend selected", slog.String("backend", BackendRedis))
			return NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, fallback, logger)
		}
		logger.Warn("redis rate limiter requested without address, degrading",
			slog.String("fallback", BackendFile))
		return newFileOrMemory(cfg, logger)
	case BackendFile:
		return newFileOrMemory(cfg, logger)
	default:
		logger.Info("rate limiter backend selected", slog.String("backend", BackendMemory))
		return NewMemory()
	}
}

func newFileOrMemory(cfg Config, logger *slog.Logger) Limiter {
	if cfg.FilePath != "" {
		f, err := NewFile(cfg.FilePath, cfg.MaxKeys, logger)
		if err == nil {
			logger.Info("rate limiter backend selected", slog.String("backend", BackendFile))
			return f
		}
		logger.Warn("file rate limiter unavailable, degrading to memory",
			slog.String("path", cfg.FilePath), slog.Any("error", err))
	}
	logger.Info("rate limiter backend selected", slog.String("backend", BackendMemory))
	return NewMemory()
}
