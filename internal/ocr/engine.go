package ocr

import (
    "bytes"
    "context"
    "fmt"
    "image/png"

    "github.com/disintegration/imaging"
    "github.com/otiai10/gosseract/v2"

    "github.com/docshield/document-redactor/internal/models"
)

// Word 单个识别结果,坐标为页面像素空间
type Word struct {
    Text       string
    Box        models.Box
    Confidence float64
}

// Engine 对编码后的页面栅格执行文字识别。
// 实现必须对相同输入返回相同序列,顺序即阅读顺序。
type Engine interface {
    Recognize(ctx context.Context, raster []byte, language string) ([]Word, error)
}

// TesseractEngine 基于 Tesseract 的识别引擎。
// 客户端不支持并发,每次调用新建并释放。
type TesseractEngine struct {
    preprocessors []ImagePreprocessor
}

func NewTesseractEngine() *TesseractEngine {
    return &TesseractEngine{
        preprocessors: defaultPreprocessors(),
    }
}

func (e *TesseractEngine) Recognize(ctx context.Context, raster []byte, language string) ([]Word, error) {
    if err := ctx.Err(); err != nil {
        return nil, err
    }

    // 解码并应用预处理管道
    img, err := imaging.Decode(bytes.NewReader(raster))
    if err != nil {
        return nil, fmt.Errorf("failed to decode raster: %w", err)
    }
    for _, p := range e.preprocessors {
        img, err = p.Process(img)
        if err != nil {
            return nil, fmt.Errorf("preprocessing failed: %w", err)
        }
    }
    buf := new(bytes.Buffer)
    if err := png.Encode(buf, img); err != nil {
        return nil, fmt.Errorf("failed to encode image: %w", err)
    }

    client := gosseract.NewClient()
    defer client.Close()

    if err := client.SetLanguage(language); err != nil {
        return nil, fmt.Errorf("failed to set language: %w", err)
    }
    if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
        return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
    }
    if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
        return nil, fmt.Errorf("failed to set image: %w", err)
    }

    boxes, err := client.GetBoundingBoxesVerbose()
    if err != nil {
        return nil, fmt.Errorf("failed to get bounding boxes: %w", err)
    }

    words := make([]Word, 0, len(boxes))
    for _, box := range boxes {
        words = append(words, Word{
            Text: box.Word,
            Box: models.Box{
                X:      float64(box.Box.Min.X),
                Y:      float64(box.Box.Min.Y),
                Width:  float64(box.Box.Max.X - box.Box.Min.X),
                Height: float64(box.Box.Max.Y - box.Box.Min.Y),
            },
            Confidence: box.Confidence,
        })
    }
    return words, nil
}
