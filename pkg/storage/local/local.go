package local

import (
    "context"
    "fmt"
    "io"
    "io/fs"
    "os"
    "path/filepath"
    "strings"
    "time"

    cfg "github.com/docshield/document-redactor/config"
    "github.com/docshield/document-redactor/pkg/logger"
)

// LocalStorage 本地文件系统存储,写入通过临时文件加改名原子发布
type LocalStorage struct {
    root   string
    logger logger.Logger
}

// Store implements Storage.Store
func (l *LocalStorage) Store(ctx context.Context, reader io.Reader, filename string) (string, error) {
    if err := validateKey(filename); err != nil {
        return "", err
    }
    if err := ctx.Err(); err != nil {
        return "", err
    }

    tmp, err := os.CreateTemp(l.root, ".upload-*")
    if err != nil {
        return "", fmt.Errorf("failed to create temp file: %w", err)
    }
    tmpName := tmp.Name()

    if _, err := io.Copy(tmp, reader); err != nil {
        tmp.Close()
        os.Remove(tmpName)
        return "", fmt.Errorf("failed to write file: %w", err)
    }
    if err := tmp.Sync(); err != nil {
        tmp.Close()
        os.Remove(tmpName)
        return "", fmt.Errorf("failed to sync file: %w", err)
    }
    if err := tmp.Close(); err != nil {
        os.Remove(tmpName)
        return "", fmt.Errorf("failed to close file: %w", err)
    }

    // 改名即发布,失败时不会留下半成品
    if err := os.Rename(tmpName, filepath.Join(l.root, filename)); err != nil {
        os.Remove(tmpName)
        return "", fmt.Errorf("failed to publish file: %w", err)
    }

    return filename, nil
}

// Get implements Storage.Get
func (l *LocalStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
    if err := validateKey(key); err != nil {
        return nil, err
    }
    f, err := os.Open(filepath.Join(l.root, key))
    if err != nil {
        if os.IsNotExist(err) {
            return nil, fmt.Errorf("object %s: %w", key, fs.ErrNotExist)
        }
        l.logger.Error("Failed to open file",
            logger.String("key", key),
            logger.Error(err),
        )
        return nil, fmt.Errorf("failed to get file: %w", err)
    }
    return f, nil
}

// Delete implements Storage.Delete
func (l *LocalStorage) Delete(ctx context.Context, key string) error {
    if err := validateKey(key); err != nil {
        return err
    }
    if err := os.Remove(filepath.Join(l.root, key)); err != nil {
        if os.IsNotExist(err) {
            return nil
        }
        return fmt.Errorf("failed to delete file: %w", err)
    }
    return nil
}

// CleanupBefore implements Storage.CleanupBefore
func (l *LocalStorage) CleanupBefore(ctx context.Context, threshold time.Time) error {
    entries, err := os.ReadDir(l.root)
    if err != nil {
        return fmt.Errorf("failed to list storage dir: %w", err)
    }

    for _, entry := range entries {
        if entry.IsDir() || strings.HasPrefix(entry.Name(), ".upload-") {
            continue
        }
        info, err := entry.Info()
        if err != nil {
            continue
        }
        if info.ModTime().Before(threshold) {
            if err := l.Delete(ctx, entry.Name()); err != nil {
                l.logger.Error("Failed to delete expired file",
                    logger.String("key", entry.Name()),
                    logger.Error(err),
                )
                continue
            }
            l.logger.Info("Deleted expired file",
                logger.String("key", entry.Name()),
                logger.Time("lastModified", info.ModTime()),
            )
        }
    }

    return nil
}

// 对象键必须是单层文件名,拒绝路径穿越
func validateKey(key string) error {
    if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
        return fmt.Errorf("invalid object key: %q", key)
    }
    return nil
}

func NewLocalStorage(root string, logger logger.Logger) (*LocalStorage, error) {
    if root == "" {
        root = "data"
    }
    if err := os.MkdirAll(root, 0755); err != nil {
        return nil, fmt.Errorf("failed to create storage dir: %w", err)
    }
    return &LocalStorage{root: root, logger: logger}, nil
}

func GetClient(logger logger.Logger) (*LocalStorage, error) {
    return NewLocalStorage(cfg.GetEngineConfig().StoragePath, logger)
}
