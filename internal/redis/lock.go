package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrLockNotAcquired means another holder owns the slot key right now.
	ErrLockNotAcquired = errors.New("slot lock not acquired")
	// ErrLockBackend means Redis could not be asked at all.
	ErrLockBackend = errors.New("slot lock backend unavailable")
)

// Locker guards critical sections per slot key. fn runs at most once and only
// while the key is held.
type Locker interface {
	WithSlotLock(ctx context.Context, slotKey string, fn func(ctx context.Context) error) error
}

// SlotKey names the lock for one (specialist, date, start time) triple.
func SlotKey(specialistID uuid.UUID, date, start string) string {
	return fmt.Sprintf("lock:slot:%s:%s:%s", specialistID, date, start)
}

type RedisSlotLocker struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedisSlotLocker(client *redis.Client, ttl time.Duration, log *zap.Logger) *RedisSlotLocker {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisSlotLocker{client: client, ttl: ttl, log: log}
}

// heldLock is one successful SETNX; token proves ownership on release.
type heldLock struct {
	key   string
	token string
}

func (l *RedisSlotLocker) acquire(ctx context.Context, key string) (heldLock, error) {
	lk := heldLock{key: key, token: uuid.NewString()}

	ok, err := l.client.SetNX(ctx, key, lk.token, l.ttl).Result()
	if err != nil {
		return heldLock{}, fmt.Errorf("%w: %v", ErrLockBackend, err)
	}
	if !ok {
		return heldLock{}, ErrLockNotAcquired
	}
	return lk, nil
}

func (l *RedisSlotLocker) WithSlotLock(ctx context.Context, slotKey string, fn func(ctx context.Context) error) error {
	lk, err := l.acquire(ctx, slotKey)
	if err != nil {
		return err
	}

	defer func() {
		// a cancelled caller must still free the key
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		owned, err := l.release(relCtx, lk)
		switch {
		case err != nil:
			l.log.Warn("slot lock release failed", zap.String("key", lk.key), zap.Error(err))
		case !owned:
			// the key expired mid-section and may have been taken by someone else
			l.log.Warn("slot lock lost before release", zap.String("key", lk.key), zap.Duration("ttl", l.ttl))
		}
	}()

	// the work must finish before the key can expire under it
	held, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(held)
}

// compareAndDelete removes KEYS[1] only while it still carries our token.
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// release reports whether the key was still ours when it was deleted.
func (l *RedisSlotLocker) release(ctx context.Context, lk heldLock) (bool, error) {
	n, err := compareAndDelete.Run(ctx, l.client, []string{lk.key}, lk.token).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("release slot lock %s: %w", lk.key, err)
	}
	return n == 1, nil
}
