package worker

import (
    "context"
    "sync"

    "github.com/hibiken/asynq"
    "github.com/docshield/document-redactor/pkg/logger"
)

type Worker interface {
    Start(ctx context.Context) error
    Stop() error
}

type Config struct {
    RedisAddr     string
    RedisPassword string
    RedisDB       int
    Concurrency   int
    Queues        map[string]int
}

type BaseWorker struct {
    server   *asynq.Server
    mux      *asynq.ServeMux
    logger   logger.Logger
    stopChan chan struct{}
    stopOnce sync.Once
}

func (w *BaseWorker) Stop() error {
    w.stopOnce.Do(func() {
        close(w.stopChan)
        if w.server != nil {
            w.server.Stop()
        }
    })
    return nil
}
