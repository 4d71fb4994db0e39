// pkg/queue/queue.go
package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    "github.com/hibiken/asynq"

    "github.com/docshield/document-redactor/config"
)

// TaskType 定义任务类型
const (
    // TaskTypeExpire 到期清理:删除一个文件的存储对象与会话缓存
    TaskTypeExpire = "retention:expire"
)

// ExpireTask 到期清理任务载荷。按键删除,不携带文档内容
type ExpireTask struct {
    FileID      string   `json:"file_id"`
    StorageKeys []string `json:"storage_keys"`
    CacheKeys   []string `json:"cache_keys"`
}

// Queue 接口定义
type Queue interface {
    // EnqueueExpiry 在 delay 之后调度一次到期清理
    EnqueueExpiry(ctx context.Context, task *ExpireTask, delay time.Duration) error
    Close() error
}

// QueueConfig 定义队列配置
type QueueConfig struct {
    RedisAddr     string
    RedisPassword string
    RedisDB       int
    MaxRetries    int
}

// AsynqQueue 实现
type AsynqQueue struct {
    client     *asynq.Client
    maxRetries int
}

// GetQueue 获取队列实例
func GetQueue() (*AsynqQueue, error) {
    redisCfg := config.GetRedisConfig()
    return NewAsynqQueue(&QueueConfig{
        RedisAddr:     redisCfg.Addr,
        RedisPassword: redisCfg.Password,
        RedisDB:       redisCfg.DB,
        MaxRetries:    3,
    })
}

// NewAsynqQueue 创建新的队列实例
func NewAsynqQueue(cfg *QueueConfig) (*AsynqQueue, error) {
    if cfg == nil {
        return nil, fmt.Errorf("queue config is nil")
    }
    client := asynq.NewClient(asynq.RedisClientOpt{
        Addr:     cfg.RedisAddr,
        Password: cfg.RedisPassword,
        DB:       cfg.RedisDB,
    })
    maxRetries := cfg.MaxRetries
    if maxRetries <= 0 {
        maxRetries = 3
    }
    return &AsynqQueue{
        client:     client,
        maxRetries: maxRetries,
    }, nil
}

// EnqueueExpiry 将到期清理任务加入队列
func (q *AsynqQueue) EnqueueExpiry(ctx context.Context, task *ExpireTask, delay time.Duration) error {
    if task == nil || task.FileID == "" {
        return fmt.Errorf("expire task needs a file id")
    }

    payload, err := json.Marshal(task)
    if err != nil {
        return fmt.Errorf("failed to marshal task: %w", err)
    }

    // 以 file_id 去重,同一文件重复调度视为已排期
    opts := []asynq.Option{
        asynq.ProcessIn(delay),
        asynq.MaxRetry(q.maxRetries),
        asynq.TaskID(fmt.Sprintf("expire:%s", task.FileID)),
        asynq.Queue("low"),
    }

    t := asynq.NewTask(TaskTypeExpire, payload, opts...)
    if _, err := q.client.EnqueueContext(ctx, t); err != nil {
        if errors.Is(err, asynq.ErrTaskIDConflict) {
            return nil
        }
        return fmt.Errorf("failed to enqueue task: %w", err)
    }
    return nil
}

// Close 关闭队列客户端
func (q *AsynqQueue) Close() error {
    return q.client.Close()
}
