package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/docshield/document-redactor/pkg/cache"
	"github.com/docshield/document-redactor/pkg/logger"
	"github.com/docshield/document-redactor/pkg/queue"
	"github.com/docshield/document-redactor/pkg/storage"
)

// RetentionWorker 消费到期清理任务,并周期性兜底扫描过期对象。
// 每份文档在上传和脱敏时都会排期一条 retention:expire 任务;
// 任务丢失时由 CleanupBefore 扫描按修改时间补删
type RetentionWorker struct {
	BaseWorker
	store     storage.Storage
	cache     cache.Cache
	retention time.Duration
}

func NewRetentionWorker(cfg *Config, store storage.Storage, sessionCache cache.Cache, retention time.Duration, log logger.Logger) (*RetentionWorker, error) {
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.Queues,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * time.Minute
			},
		},
	)

	w := &RetentionWorker{
		BaseWorker: BaseWorker{
			server:   server,
			mux:      asynq.NewServeMux(),
			logger:   log,
			stopChan: make(chan struct{}),
		},
		store:     store,
		cache:     sessionCache,
		retention: retention,
	}

	// 注册任务处理器
	w.registerHandlers()
	return w, nil
}

func (w *RetentionWorker) registerHandlers() {
	w.mux.HandleFunc(queue.TaskTypeExpire, w.handleExpire)
}

// handleExpire 删除任务载荷列出的存储对象与缓存键。
// 对象可能已被兜底扫描删除,缺失不算失败
func (w *RetentionWorker) handleExpire(ctx context.Context, t *asynq.Task) error {
	var task queue.ExpireTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		w.logger.Error("Failed to unmarshal expire task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("failed to unmarshal expire task: %w", err)
	}
	if task.FileID == "" {
		return fmt.Errorf("expire task has no file id")
	}

	w.logger.Info("Expiring document",
		logger.String("fileId", task.FileID),
		logger.Int("storageKeys", len(task.StorageKeys)),
		logger.Int("cacheKeys", len(task.CacheKeys)),
	)

	for _, key := range task.StorageKeys {
		if err := w.store.Delete(ctx, key); err != nil {
			if storage.IsNotExist(err) {
				continue
			}
			w.logger.Error("Failed to delete expired object",
				logger.String("fileId", task.FileID),
				logger.String("key", key),
				logger.Error(err),
			)
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}

	for _, key := range task.CacheKeys {
		if err := w.cache.Delete(ctx, key); err != nil {
			w.logger.Warn("Failed to delete session cache entry",
				logger.String("fileId", task.FileID),
				logger.String("key", key),
				logger.Error(err),
			)
		}
	}

	return nil
}

// runCleanupLoop 每小时按保留期兜底清理存储
func (w *RetentionWorker) runCleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			threshold := time.Now().Add(-w.retention)
			if err := w.store.CleanupBefore(ctx, threshold); err != nil {
				w.logger.Error("Retention sweep failed", logger.Error(err))
				continue
			}
			w.logger.Debug("Retention sweep completed",
				logger.Time("threshold", threshold),
			)
		}
	}
}

func (w *RetentionWorker) Start(ctx context.Context) error {
	go func() {
		if err := w.server.Run(w.mux); err != nil {
			w.logger.Error("Worker server stopped", logger.Error(err))
		}
	}()

	go w.runCleanupLoop(ctx)

	go func() {
		<-ctx.Done()
		w.Stop()
	}()

	return nil
}
