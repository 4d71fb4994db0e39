package render

import (
    "bytes"
    "context"
    "fmt"
    "image"
    "image/color"
    "image/draw"
    "math"

    "github.com/disintegration/imaging"

    "github.com/docshield/document-redactor/internal/models"
)

// applyRaster 在解码后的像素上作画并按原始编码重新序列化。
// 先应用全部永久填充,再叠加临时高亮。
func (r *Renderer) applyRaster(ctx context.Context, doc *models.Document, fields []models.Field) ([]byte, error) {
    if len(doc.Pages) == 0 {
        return nil, fmt.Errorf("document has no pages")
    }
    page := doc.Pages[0]

    img, err := imaging.Decode(bytes.NewReader(page.Raster))
    if err != nil {
        return nil, fmt.Errorf("decode raster: %w", err)
    }
    canvas := imaging.Clone(img)

    for _, f := range fields {
        if f.Page != 0 || f.RedactionType != models.RedactionPermanent {
            continue
        }
        fillRect(canvas, f.Box, color.NRGBA{A: 255}, draw.Src)
    }
    for _, f := range fields {
        if f.Page != 0 || f.RedactionType != models.RedactionTemporary {
            continue
        }
        fillRect(canvas, f.Box, overlayColor(f.Origin), draw.Over)
    }
    if err := ctx.Err(); err != nil {
        return nil, err
    }

    format, opts, err := encodeFormat(doc.MimeType)
    if err != nil {
        return nil, err
    }
    var buf bytes.Buffer
    if err := imaging.Encode(&buf, canvas, format, opts...); err != nil {
        return nil, fmt.Errorf("encode %s: %w", doc.MimeType, err)
    }
    return buf.Bytes(), nil
}

// fillRect 区域向外取整,填充不会少盖
func fillRect(dst *image.NRGBA, box models.Box, c color.NRGBA, op draw.Op) {
    rect := image.Rect(
        int(math.Floor(box.X)),
        int(math.Floor(box.Y)),
        int(math.Ceil(box.Right())),
        int(math.Ceil(box.Bottom())),
    )
    draw.Draw(dst, rect.Intersect(dst.Bounds()), image.NewUniform(c), image.Point{}, op)
}

// overlayColor 临时覆盖的颜色约定:手绘与搜索命中用黄色高亮,
// 选择与 AI 建议用灰色
func overlayColor(origin models.FieldOrigin) color.NRGBA {
    switch origin {
    case models.OriginManualDraw, models.OriginTextSearch:
        return color.NRGBA{R: 255, G: 230, B: 0, A: 128}
    default:
        return color.NRGBA{R: 178, G: 178, B: 178, A: 128}
    }
}

func encodeFormat(mime string) (imaging.Format, []imaging.EncodeOption, error) {
    switch mime {
    case "image/png":
        return imaging.PNG, nil, nil
    case "image/jpeg":
        return imaging.JPEG, []imaging.EncodeOption{imaging.JPEGQuality(95)}, nil
    case "image/tiff":
        return imaging.TIFF, nil, nil
    case "image/bmp":
        return imaging.BMP, nil, nil
    }
    return imaging.PNG, nil, fmt.Errorf("no encoder for %s", mime)
}
