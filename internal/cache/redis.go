package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "bloodboard:cache:"
	generationKey = "bloodboard:cachegen"
)

// setIfGeneration writes KEYS[2] only while KEYS[1] still holds ARGV[1]. ARGV[3] is the TTL in ms.
var setIfGeneration = redis.NewScript(`
local gen = redis.call('GET', KEYS[1]) or '0'
if gen ~= ARGV[1] then
  return 0
end
if ARGV[3] == '0' then
  redis.call('SET', KEYS[2], ARGV[2])
else
  redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
end
return 1
`)

// Redis is a Store shared by every server instance.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis { return &Redis{client: client} }

func (r *Redis) Get(ctx context.Context, key string, dest any) (bool, error) {
	val, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := decode(val, dest); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	b, err := encode(value)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, keyPrefix+key, b, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Generation(ctx context.Context) (uint64, error) {
	gen, err := r.client.Get(ctx, generationKey).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache generation: %w", err)
	}
	return gen, nil
}

func (r *Redis) SetIfGeneration(ctx context.Context, gen uint64, key string, value any, ttl time.Duration) error {
	b, err := encode(value)
	if err != nil {
		return err
	}
	args := []any{strconv.FormatUint(gen, 10), b, strconv.FormatInt(ttl.Milliseconds(), 10)}
	if err := setIfGeneration.Run(ctx, r.client, []string{generationKey, keyPrefix + key}, args...).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Invalidate bumps the generation before deleting so a value computed earlier cannot be written back.
func (r *Redis) Invalidate(ctx context.Context, paths ...string) error {
	if err := r.client.Incr(ctx, generationKey).Err(); err != nil {
		return fmt.Errorf("cache generation bump: %w", err)
	}
	for _, p := range paths {
		keys := []string{keyPrefix + p}
		below, err := r.scan(ctx, keyPrefix+strings.TrimSuffix(p, "/")+"/*")
		if err != nil {
			return err
		}
		keys = append(keys, below...)
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("cache invalidate %s: %w", p, err)
		}
	}
	return nil
}

func (r *Redis) scan(ctx context.Context, match string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := r.client.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("cache scan %s: %w", match, err)
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

var _ Store = (*Redis)(nil)
