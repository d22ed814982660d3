package linker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisTimeout = 5 * time.Second

// RedisCache shares tool handles between processes. Entries never expire:
// a handle stays valid for as long as the remote tool exists.
type RedisCache struct {
	client redis.Cmdable
	prefix string
}

// NewRedisCache wraps an existing client. prefix namespaces the keys and
// defaults to "flowc:tool".
func NewRedisCache(client redis.Cmdable, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "flowc:tool"
	}
	return &RedisCache{client: client, prefix: prefix}
}

// ConnectRedis opens a client and pings it.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return client, nil
}

// key is prefix:workspace:tool, plus :url when the key carries one.
func (c *RedisCache) key(k Key) string {
	if k.URL == "" {
		return fmt.Sprintf("%s:%s:%s", c.prefix, k.Workspace, k.Tool)
	}
	return fmt.Sprintf("%s:%s:%s:%s", c.prefix, k.Workspace, k.Tool, k.URL)
}

func (c *RedisCache) Get(ctx context.Context, key Key) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	h, err := c.client.Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return h, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key Key, handle string) error {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	if err := c.client.Set(ctx, c.key(key), handle, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
