package cache

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/docshield/document-redactor/pkg/logger"
)

// CacheType 定义缓存类型
type CacheType string

const (
    CacheTypeRedis  CacheType = "redis"
    CacheTypeMemory CacheType = "memory"
)

// ErrMiss 缓存未命中
var ErrMiss = errors.New("cache miss")

// Cache 会话缓存接口,按文件标识缓存归一化结果
type Cache interface {
    // Set 写入带过期时间的条目
    Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
    // Get 读取条目,未命中时返回 ErrMiss
    Get(ctx context.Context, key string) ([]byte, error)
    // Delete 删除条目
    Delete(ctx context.Context, key string) error
}

// NewCache 创建缓存实例的工厂方法
func NewCache(cacheType CacheType, log logger.Logger) (Cache, error) {
    switch cacheType {
    case CacheTypeRedis:
        return NewRedisCache(log), nil
    case CacheTypeMemory:
        return NewMemoryCache(), nil
    default:
        return nil, fmt.Errorf("unsupported cache type: %s", cacheType)
    }
}
