package cache

import (
    "context"
    "fmt"
    "time"

    "github.com/redis/go-redis/v9"

    cfg "github.com/docshield/document-redactor/config"
    "github.com/docshield/document-redactor/pkg/logger"
)

// RedisCache Redis 后端
type RedisCache struct {
    client *redis.Client
    logger logger.Logger
}

func NewRedisCache(log logger.Logger) *RedisCache {
    rc := cfg.GetRedisConfig()
    client := redis.NewClient(&redis.Options{
        Addr:     rc.Addr,
        Password: rc.Password,
        DB:       rc.DB,
    })
    return &RedisCache{client: client, logger: log}
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
    if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
        c.logger.Error("Failed to write cache entry",
            logger.String("key", key),
            logger.Error(err),
        )
        return fmt.Errorf("failed to write cache entry: %w", err)
    }
    return nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
    data, err := c.client.Get(ctx, key).Bytes()
    if err == redis.Nil {
        return nil, ErrMiss
    }
    if err != nil {
        c.logger.Error("Failed to read cache entry",
            logger.String("key", key),
            logger.Error(err),
        )
        return nil, fmt.Errorf("failed to read cache entry: %w", err)
    }
    return data, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
    if err := c.client.Del(ctx, key).Err(); err != nil {
        return fmt.Errorf("failed to delete cache entry: %w", err)
    }
    return nil
}

// Close 关闭底层连接
func (c *RedisCache) Close() error {
    return c.client.Close()
}
