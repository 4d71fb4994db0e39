package config

import (
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
)

var (
	redisOnce   sync.Once
	redisConfig *RedisConfig
)

// RedisConfig 会话缓存与任务队列共用的 Redis 配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func GetRedisConfig() *RedisConfig {
	redisOnce.Do(func() {
		// 获取当前文件的目录
		_, filename, _, _ := runtime.Caller(0)
		configDir := filepath.Dir(filename)

		// 构建到项目根目录的路径
		rootDir := filepath.Dir(configDir)
		envPath := filepath.Join(rootDir, ".env")

		// 加载 .env 文件
		if err := godotenv.Load(envPath); err != nil {
			log.Printf("Warning: .env file not found at %s, falling back to environment variables", envPath)
		}

		redisConfig = &RedisConfig{
			Addr: "localhost:6379",
		}
		if v := os.Getenv("REDIS_ADDR"); v != "" {
			redisConfig.Addr = v
		}
		redisConfig.Password = os.Getenv("REDIS_PASSWORD")
		if v := os.Getenv("REDIS_DB"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				redisConfig.DB = n
			}
		}
	})
	return redisConfig
}
