package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(addr, password string, db int, prefix string) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}

	return &RedisCache{client: rdb, prefix: prefix}, nil
}

func (c *RedisCache) userKey(userID int64) string {
	return fmt.Sprintf("%s:user_profile:%d", c.prefix, userID)
}

func (c *RedisCache) InvalidateUser(ctx context.Context, userID int64) error {
	return c.client.Del(ctx, c.userKey(userID)).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
