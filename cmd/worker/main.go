package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"

    "github.com/docshield/document-redactor/config"
    "github.com/docshield/document-redactor/pkg/cache"
    "github.com/docshield/document-redactor/pkg/logger"
    "github.com/docshield/document-redactor/pkg/storage"
    "github.com/docshield/document-redactor/pkg/worker"
)

func main() {

    // 初始化日志
    log, err := logger.NewLogger(
        logger.WithLevel("info"),
        logger.WithEncoding("json"),
        logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
    )
    if err != nil {
        panic(err)
    }
    defer log.Sync()

    engineCfg := config.GetEngineConfig()
    redisCfg := config.GetRedisConfig()

    // 存储与会话缓存,和服务端指向同一批对象
    store, err := storage.NewStorage(storage.StorageType(engineCfg.StorageBackend), log)
    if err != nil {
        log.Error("Failed to initialize storage", logger.Error(err))
        os.Exit(1)
    }
    sessionCache, err := cache.NewCache(cache.CacheType(engineCfg.CacheBackend), log)
    if err != nil {
        log.Error("Failed to initialize cache", logger.Error(err))
        os.Exit(1)
    }

    // 创建 worker 配置
    workerCfg := &worker.Config{
        RedisAddr:     redisCfg.Addr,
        RedisPassword: redisCfg.Password,
        RedisDB:       redisCfg.DB,
        Concurrency:   10,
        Queues: map[string]int{
            "critical": 6,
            "default":  3,
            "low":      1,
        },
    }

    // 创建 worker
    retentionWorker, err := worker.NewRetentionWorker(workerCfg, store, sessionCache, engineCfg.RetentionPeriod(), log)
    if err != nil {
        log.Error("Failed to create retention worker", logger.Error(err))
        os.Exit(1)
    }

    // 创建上下文和取消函数
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    // 启动 worker
    if err := retentionWorker.Start(ctx); err != nil {
        log.Error("Failed to start worker", logger.Error(err))
        os.Exit(1)
    }

    // 等待中断信号
    sigChan := make(chan os.Signal, 1)
    signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
    <-sigChan

    // 优雅关闭
    log.Info("Shutting down worker...")
    retentionWorker.Stop()
    log.Info("Worker stopped")
}
