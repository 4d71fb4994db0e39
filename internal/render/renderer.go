package render

import (
    "context"
    "fmt"
    "time"

    "github.com/docshield/document-redactor/config"
    "github.com/docshield/document-redactor/internal/models"
    "github.com/docshield/document-redactor/pkg/logger"
)

// Renderer 将最终计划渲染回原始容器格式。
// 渲染与序列化是原子的:要么产出完整产物,要么什么都不发布。
type Renderer struct {
    logger  logger.Logger
    timeout time.Duration
}

func NewRenderer(log logger.Logger, cfg *config.EngineConfig) *Renderer {
    return &Renderer{
        logger:  log,
        timeout: cfg.RenderTimeout(),
    }
}

// Apply 对 doc 应用 fields 并返回产物字节。original 是上传时的
// 原始字节,PDF 路径在其对象图上编辑,非脱敏区域不经受再编码。
func (r *Renderer) Apply(ctx context.Context, doc *models.Document, original []byte, fields []models.Field) ([]byte, error) {
    if r.timeout > 0 {
        var cancel context.CancelFunc
        ctx, cancel = context.WithTimeout(ctx, r.timeout)
        defer cancel()
    }

    var out []byte
    var err error
    switch doc.FileType {
    case models.PDF:
        out, err = r.applyPDF(ctx, doc, original, fields)
    case models.Image:
        out, err = r.applyRaster(ctx, doc, fields)
    default:
        err = fmt.Errorf("unknown container kind %q", doc.FileType)
    }
    if err != nil {
        return nil, fmt.Errorf("%v: %w", err, models.ErrRender)
    }

    r.logger.Info("Redaction rendered",
        logger.String("container", string(doc.FileType)),
        logger.Int("fields", len(fields)),
        logger.Int("bytes", len(out)),
    )
    return out, nil
}
