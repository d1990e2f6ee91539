package specialist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/slot-booking-service/internal/schedule"
)

// CachedDirectory is a read-through Redis cache in front of another Directory.
// Cache failures fall back to the underlying directory.
type CachedDirectory struct {
	next   Directory
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewCachedDirectory(next Directory, client *redis.Client, ttl time.Duration, log *zap.Logger) *CachedDirectory {
	return &CachedDirectory{
		next:   next,
		client: client,
		ttl:    ttl,
		log:    log,
	}
}

func cacheKey(id uuid.UUID) string {
	return fmt.Sprintf("specialist:%s", id.String())
}

func (c *CachedDirectory) GetSpecialist(ctx context.Context, id uuid.UUID) (*schedule.Specialist, error) {
	key := cacheKey(id)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var sp schedule.Specialist
		if err := json.Unmarshal(raw, &sp); err == nil {
			return &sp, nil
		}
		c.log.Warn("discarding undecodable cached specialist", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("specialist cache read failed", zap.String("key", key), zap.Error(err))
	}

	sp, err := c.next.GetSpecialist(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(sp); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.log.Warn("specialist cache write failed", zap.String("key", key), zap.Error(err))
		}
	}

	return sp, nil
}

// Invalidate drops a cached specialist, e.g. after the provider record changed.
func (c *CachedDirectory) Invalidate(ctx context.Context, id uuid.UUID) error {
	if err := c.client.Del(ctx, cacheKey(id)).Err(); err != nil {
		return fmt.Errorf("invalidate specialist cache: %w", err)
	}
	return nil
}
