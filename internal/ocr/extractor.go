package ocr

import (
    "context"
    "fmt"
    "strings"
    "time"

    "golang.org/x/sync/errgroup"

    "github.com/docshield/document-redactor/config"
    "github.com/docshield/document-redactor/internal/models"
    "github.com/docshield/document-redactor/pkg/logger"
)

// Extractor 对文档各页并发执行 OCR,结果按页索引落位。
// 单页失败降级为页面警告,不中断整个文档。
type Extractor struct {
    logger      logger.Logger
    engine      Engine
    workers     int
    cutoff      float64
    pageTimeout time.Duration
}

func NewExtractor(log logger.Logger, engine Engine, cfg *config.EngineConfig) *Extractor {
    workers := cfg.PageWorkers
    if workers < 1 {
        workers = 1
    }
    return &Extractor{
        logger:      log,
        engine:      engine,
        workers:     workers,
        cutoff:      cfg.OcrConfidenceCutoff,
        pageTimeout: cfg.OcrPageTimeout(),
    }
}

// ExtractTokens 识别 doc 全部页面并就地写入 token。
// 低于置信度阈值的 token 保留并打上 low_confidence 标记。
func (e *Extractor) ExtractTokens(ctx context.Context, doc *models.Document, language string) error {
    if err := ctx.Err(); err != nil {
        return err
    }

    g, ctx := errgroup.WithContext(ctx)
    sem := make(chan struct{}, e.workers)

    for i := range doc.Pages {
        page := &doc.Pages[i]
        g.Go(func() error {
            select {
            case sem <- struct{}{}:
                defer func() { <-sem }()
            case <-ctx.Done():
                return ctx.Err()
            }

            words, err := e.recognizePage(ctx, page.Raster, language)
            if err != nil {
                // 父上下文取消是致命的,单页引擎故障不是
                if ctx.Err() != nil {
                    return ctx.Err()
                }
                e.logger.Warn("OCR failed for page",
                    logger.Int("page", page.Index),
                    logger.Error(err),
                )
                page.Tokens = []models.Token{}
                page.Warnings = append(page.Warnings,
                    fmt.Sprintf("%v: %v", models.ErrOcrEngineUnavailable, err))
                return nil
            }

            page.Tokens = e.toTokens(words)
            return nil
        })
    }
    if err := g.Wait(); err != nil {
        return err
    }

    e.logger.Info("OCR extraction complete",
        logger.String("language", language),
        logger.Int("pages", len(doc.Pages)),
        logger.Int("tokens", doc.TokenCount()),
    )
    return nil
}

// recognizePage 带单页超时的识别调用。引擎阻塞时提前返回,
// 识别协程继续运行直到引擎自行结束。
func (e *Extractor) recognizePage(ctx context.Context, raster []byte, language string) ([]Word, error) {
    pageCtx := ctx
    if e.pageTimeout > 0 {
        var cancel context.CancelFunc
        pageCtx, cancel = context.WithTimeout(ctx, e.pageTimeout)
        defer cancel()
    }

    type result struct {
        words []Word
        err   error
    }
    ch := make(chan result, 1)
    go func() {
        words, err := e.engine.Recognize(pageCtx, raster, language)
        ch <- result{words, err}
    }()

    select {
    case r := <-ch:
        return r.words, r.err
    case <-pageCtx.Done():
        return nil, pageCtx.Err()
    }
}

// toTokens 过滤空白词并标记低置信度
func (e *Extractor) toTokens(words []Word) []models.Token {
    tokens := make([]models.Token, 0, len(words))
    for _, w := range words {
        text := strings.TrimSpace(w.Text)
        if text == "" {
            continue
        }
        tokens = append(tokens, models.Token{
            Text:          text,
            Box:           w.Box,
            Confidence:    w.Confidence,
            LowConfidence: w.Confidence < e.cutoff,
        })
    }
    return tokens
}
