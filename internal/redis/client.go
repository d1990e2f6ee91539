package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientOptions builds go-redis options with short timeouts. Redis only guards
// and caches here, so a slow Redis should fail fast rather than stall bookings.
func ClientOptions(addr, username, password string, poolSize int) *redis.Options {
	if poolSize <= 0 {
		poolSize = 20
	}
	return &redis.Options{
		Addr:         addr,
		Username:     username,
		Password:     password,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		PoolSize:     poolSize,
		MinIdleConns: min(2, poolSize),
		MaxRetries:   1,
	}
}

// NewRedisClient dials Redis and verifies the connection before returning.
func NewRedisClient(ctx context.Context, opts *redis.Options) (*redis.Client, error) {
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}

	return rdb, nil
}
