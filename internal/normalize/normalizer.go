package normalize

import (
    "bytes"
    "context"
    "crypto/sha256"
    "encoding/hex"
    "fmt"
    "image"
    "time"

    "github.com/disintegration/imaging"
    "github.com/gen2brain/go-fitz"
    "golang.org/x/sync/errgroup"

    "github.com/docshield/document-redactor/config"
    "github.com/docshield/document-redactor/internal/models"
    "github.com/docshield/document-redactor/internal/pdf"
    "github.com/docshield/document-redactor/pkg/logger"
)

// Normalizer 将上传的原始字节规范化为有序页面序列。
// PDF 通过 MuPDF 按工作分辨率栅格化,原始字节保留给回写端;
// 单页图像按原生分辨率直通。
type Normalizer struct {
    logger  logger.Logger
    dpi     int
    workers int
}

func New(log logger.Logger, cfg *config.EngineConfig) *Normalizer {
    workers := cfg.PageWorkers
    if workers < 1 {
        workers = 1
    }
    dpi := cfg.RasterDPI
    if dpi <= 0 {
        dpi = 150
    }
    return &Normalizer{
        logger:  log,
        dpi:     dpi,
        workers: workers,
    }
}

// Normalize 按内容嗅探的真实格式处理字节。声明的 MIME 与内容不符
// 时视为伪装扩展名,返回 ErrUnsupportedFormat。
func (n *Normalizer) Normalize(ctx context.Context, data []byte, declaredMime string) (*models.Document, error) {
    if len(data) == 0 {
        return nil, fmt.Errorf("empty upload: %w", models.ErrUnsupportedFormat)
    }

    sniffed, ok := SniffMime(data)
    if !ok {
        return nil, fmt.Errorf("unrecognized content: %w", models.ErrUnsupportedFormat)
    }
    if declaredMime != "" && CanonicalMime(declaredMime) != sniffed {
        n.logger.Warn("Declared MIME does not match content",
            logger.String("declared", declaredMime),
            logger.String("sniffed", sniffed),
        )
        return nil, fmt.Errorf("content does not match declared type %s: %w", declaredMime, models.ErrUnsupportedFormat)
    }

    // 计算文件哈希
    hash := sha256.Sum256(data)
    hashString := hex.EncodeToString(hash[:])

    doc := &models.Document{
        MimeType:  sniffed,
        FileSize:  int64(len(data)),
        Hash:      hashString,
        CreatedAt: time.Now(),
    }

    var err error
    if sniffed == "application/pdf" {
        doc.FileType = models.PDF
        doc.Pages, err = n.normalizePDF(ctx, data)
    } else {
        doc.FileType = models.Image
        doc.Pages, err = n.normalizeImage(data)
    }
    if err != nil {
        return nil, err
    }

    n.logger.Info("Document normalized",
        logger.String("hash", hashString[:8]),
        logger.String("mimeType", sniffed),
        logger.Int("pages", len(doc.Pages)),
    )
    return doc, nil
}

// normalizePDF 解析对象图并逐页栅格化。加密 PDF 的回写端无法重建,
// 在此直接拒绝。
func (n *Normalizer) normalizePDF(ctx context.Context, data []byte) ([]models.Page, error) {
    parsed, err := pdf.Parse(data)
    if err != nil {
        return nil, fmt.Errorf("pdf parse failed: %v: %w", err, models.ErrCorruptDocument)
    }
    if parsed.IsEncrypted() {
        return nil, fmt.Errorf("encrypted pdf: %w", models.ErrUnsupportedFormat)
    }
    pdfPages, err := parsed.Pages()
    if err != nil {
        return nil, fmt.Errorf("pdf page tree: %v: %w", err, models.ErrCorruptDocument)
    }

    reader, err := fitz.NewFromMemory(data)
    if err != nil {
        return nil, fmt.Errorf("pdf open failed: %v: %w", err, models.ErrCorruptDocument)
    }
    defer reader.Close()

    total := reader.NumPage()
    if total == 0 {
        return nil, fmt.Errorf("pdf has no pages: %w", models.ErrCorruptDocument)
    }

    scale := float64(n.dpi) / 72.0
    pages := make([]models.Page, total)

    // 并发栅格化,信号量限制同时渲染的页数
    g, ctx := errgroup.WithContext(ctx)
    sem := make(chan struct{}, n.workers)

    for i := 0; i < total; i++ {
        pageNum := i
        g.Go(func() error {
            select {
            case sem <- struct{}{}:
                defer func() { <-sem }()
            case <-ctx.Done():
                return ctx.Err()
            }

            raster, err := reader.ImagePNG(pageNum, float64(n.dpi))
            if err != nil {
                return fmt.Errorf("rasterize page %d: %v: %w", pageNum, err, models.ErrCorruptDocument)
            }
            cfg, _, err := image.DecodeConfig(bytes.NewReader(raster))
            if err != nil {
                return fmt.Errorf("decode raster page %d: %v: %w", pageNum, err, models.ErrCorruptDocument)
            }

            page := models.Page{
                Index:  pageNum,
                Width:  float64(cfg.Width),
                Height: float64(cfg.Height),
                Scale:  scale,
                Raster: raster,
            }
            // 点空间几何来自对象图;页面树损坏时退回像素反推
            if pageNum < len(pdfPages) {
                p := pdfPages[pageNum]
                pw, ph := p.MediaBox.Width(), p.MediaBox.Height()
                if p.Rotate == 90 || p.Rotate == 270 {
                    pw, ph = ph, pw
                }
                page.PointWidth = pw
                page.PointHeight = ph
                page.Rotation = p.Rotate
            } else {
                page.PointWidth = float64(cfg.Width) / scale
                page.PointHeight = float64(cfg.Height) / scale
            }
            pages[pageNum] = page
            return nil
        })
    }
    if err := g.Wait(); err != nil {
        return nil, err
    }
    return pages, nil
}

// normalizeImage 单页图像直通,保留原始编码字节
func (n *Normalizer) normalizeImage(data []byte) ([]models.Page, error) {
    img, err := imaging.Decode(bytes.NewReader(data))
    if err != nil {
        return nil, fmt.Errorf("image decode failed: %v: %w", err, models.ErrCorruptDocument)
    }
    bounds := img.Bounds()
    return []models.Page{
        {
            Index:  0,
            Width:  float64(bounds.Dx()),
            Height: float64(bounds.Dy()),
            Scale:  1.0,
            Raster: data,
        },
    }, nil
}
