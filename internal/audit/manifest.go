package audit

import (
    "bytes"
    "context"
    "fmt"
    "time"

    "gopkg.in/yaml.v3"

    "github.com/docshield/document-redactor/internal/models"
    "github.com/docshield/document-redactor/pkg/logger"
    "github.com/docshield/document-redactor/pkg/storage"
)

// Manifest 单次脱敏的审计记录,只含计数与分类,
// 绝不写入被脱敏的文本本身
type Manifest struct {
    RedactedFileID  string         `yaml:"redacted_file_id"`
    SourceFileID    string         `yaml:"source_file_id"`
    Container       string         `yaml:"container"`
    Method          string         `yaml:"method"`
    TotalRedactions int            `yaml:"total_redactions"`
    Permanent       int            `yaml:"permanent"`
    Temporary       int            `yaml:"temporary"`
    Pages           map[int]int    `yaml:"pages"`
    Origins         map[string]int `yaml:"origins"`
    Categories      map[string]int `yaml:"categories,omitempty"`
    CreatedAt       time.Time      `yaml:"created_at"`
}

// BuildManifest 从最终计划汇总审计数据
func BuildManifest(redacted *models.RedactedDocument, fields []models.Field) *Manifest {
    m := &Manifest{
        RedactedFileID:  redacted.ID,
        SourceFileID:    redacted.SourceID,
        Container:       string(redacted.FileType),
        Method:          redacted.Method,
        TotalRedactions: len(fields),
        Pages:           make(map[int]int),
        Origins:         make(map[string]int),
        CreatedAt:       redacted.CreatedAt,
    }
    for _, f := range fields {
        if f.RedactionType == models.RedactionPermanent {
            m.Permanent++
        } else {
            m.Temporary++
        }
        m.Pages[f.Page]++
        m.Origins[string(f.Origin)]++
        if f.Category != "" {
            if m.Categories == nil {
                m.Categories = make(map[string]int)
            }
            m.Categories[f.Category]++
        }
    }
    return m
}

// ManifestKey 审计记录在产物存储中的对象键
func ManifestKey(redactedFileID string) string {
    return fmt.Sprintf("manifest_%s.yaml", redactedFileID)
}

// Writer 将审计记录存到产物旁边
type Writer struct {
    store  storage.Storage
    logger logger.Logger
}

func NewWriter(store storage.Storage, log logger.Logger) *Writer {
    return &Writer{store: store, logger: log}
}

// Write 序列化并发布审计记录,失败不阻断脱敏结果
func (w *Writer) Write(ctx context.Context, m *Manifest) error {
    data, err := yaml.Marshal(m)
    if err != nil {
        return fmt.Errorf("failed to marshal manifest: %w", err)
    }

    key := ManifestKey(m.RedactedFileID)
    if _, err := w.store.Store(ctx, bytes.NewReader(data), key); err != nil {
        return fmt.Errorf("failed to store manifest: %w", err)
    }

    w.logger.Info("Audit manifest written",
        logger.String("key", key),
        logger.Int("redactions", m.TotalRedactions),
    )
    return nil
}
