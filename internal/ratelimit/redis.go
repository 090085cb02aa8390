package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// casRetries bounds the optimistic-transaction loop. On exhaustion the
// call is handed to the fallback backend rather than spuriously denied.
const casRetries = 5

var errLimitExceeded = errors.New("rate limit window exhausted")

// Redis is the shared atomic-store backend. The counter update runs as
// a WATCH/MULTI optimistic transaction: concurrent writers conflict at
// EXEC and retry, so the read-modify-write is never unguarded.
type Redis struct {
	client   *redis.Client
	fallback Limiter
	logger   *slog.Logger
}

// NewRedis creates the redis-backed limiter. fallback handles CAS
// exhaustion and connectivity failures.
func NewRedis(addr, password string, db int, fallback Limiter, logger *slog.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Redis{client: client, fallback: fallback, logger: logger}
}

// Allow applies the fixed-window rule with bounded CAS retries
func (r *Redis) Allow(ctx context.Context, key string, maxAttempts int, window time.Duration) bool {
	rkey := "ratelimit:" + key

	for attempt := 0; attempt < casRetries; attempt++ {
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			var c counter
			raw, err := tx.Get(ctx, rkey).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if err == nil {
				if jsonErr := json.Unmarshal(raw, &c); jsonErr != nil {
					c = counter{}
				}
			}

			if !c.apply(time.Now(), maxAttempts, window) {
				return errLimitExceeded
			}

			encoded, err := json.Marshal(&c)
			if err != nil {
				return err
			}
			ttl := time.Duration(c.TTLSeconds) * time.Second
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, rkey, encoded, ttl)
				return nil
			})
			return err
		}, rkey)

		switch {
		case err == nil:
			return true
		case errors.Is(err, errLimitExceeded):
			return false
		case errors.Is(err, redis.TxFailedErr):
			continue // lost the race, retry
		default:
			r.logger.Warn("redis rate limiter unavailable, using fallback",
				slog.String("key", key), slog.Any("error", err))
			return r.fallback.Allow(ctx, key, maxAttempts, window)
		}
	}

	r.logger.Warn("redis rate limiter CAS retries exhausted, using fallback",
		slog.String("key", key))
	return r.fallback.Allow(ctx, key, maxAttempts, window)
}

// Reset drops the counter for key in redis and the fallback
func (r *Redis) Reset(ctx context.Context, key string) {
	if err := r.client.Del(ctx, "ratelimit:"+key).Err(); err != nil {
		r.logger.Warn("redis rate limiter reset failed",
			slog.String("key", key), slog.Any("error", err))
	}
	r.fallback.Reset(ctx, key)
}

// Close releases the underlying redis connection
func (r *Redis) Close() error {
	return r.client.Close()
}
