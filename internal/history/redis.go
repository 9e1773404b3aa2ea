package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/tabi-core/internal/dispatch"
)

// RedisCache keeps the latest successful command per device.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache returns a cache writing keys under prefix. A zero ttl
// stores keys without expiry.
func NewRedisCache(rdb *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) key(deviceID string) string {
	return c.prefix + "blind:last:" + deviceID
}

// RecordDispatch stores every successful outcome. Failed outcomes leave the
// previous value in place.
func (c *RedisCache) RecordDispatch(ctx context.Context, rec dispatch.Record) error {
	value, err := json.Marshal(LastCommand{Command: rec.Command.Wire(), At: rec.Timestamp.UTC()})
	if err != nil {
		return fmt.Errorf("history: encoding last command: %w", err)
	}

	pipe := c.rdb.Pipeline()
	queued := 0
	for _, o := range rec.Outcomes {
		if o.Status != dispatch.StatusSuccess {
			continue
		}
		pipe.Set(ctx, c.key(o.DeviceID), value, c.ttl)
		queued++
	}
	if queued == 0 {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("history: caching last command: %w", err)
	}
	return nil
}

// LastCommands fetches cached commands for deviceIDs in one round trip.
func (c *RedisCache) LastCommands(ctx context.Context, deviceIDs []string) (map[string]LastCommand, error) {
	out := make(map[string]LastCommand)
	if len(deviceIDs) == 0 {
		return out, nil
	}

	keys := make([]string, len(deviceIDs))
	for i, id := range deviceIDs {
		keys[i] = c.key(id)
	}

	values, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("history: reading last commands: %w", err)
	}

	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var lc LastCommand
		if err := json.Unmarshal([]byte(s), &lc); err != nil {
			continue
		}
		out[deviceIDs[i]] = lc
	}
	return out, nil
}

// Forget removes the cached command for a device, used when it is deleted.
func (c *RedisCache) Forget(ctx context.Context, deviceID string) error {
	return c.rdb.Del(ctx, c.key(deviceID)).Err()
}
