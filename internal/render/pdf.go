package render

import (
    "context"
    "fmt"
    "math"

    "github.com/docshield/document-redactor/internal/models"
    "github.com/docshield/document-redactor/internal/pdf"
    "github.com/docshield/document-redactor/pkg/logger"
)

// applyPDF 在原始字节的对象图上编辑,未触及的页面原样保留。
// 永久区域先移除再覆盖,临时区域只追加半透明覆盖。
func (r *Renderer) applyPDF(ctx context.Context, doc *models.Document, original []byte, fields []models.Field) ([]byte, error) {
    parsed, err := pdf.Parse(original)
    if err != nil {
        return nil, fmt.Errorf("reparse original: %w", err)
    }
    pages, err := parsed.Pages()
    if err != nil {
        return nil, fmt.Errorf("walk pages: %w", err)
    }

    byPage := make(map[int][]models.Field)
    for _, f := range fields {
        if f.Page >= len(pages) || f.Page >= len(doc.Pages) {
            return nil, fmt.Errorf("field %s targets page %d of %d", f.ID, f.Page, len(pages))
        }
        byPage[f.Page] = append(byPage[f.Page], f)
    }

    permanent := make(map[int][]pdf.Rect)
    for idx := range pages {
        if err := ctx.Err(); err != nil {
            return nil, err
        }
        group := byPage[idx]
        if len(group) == 0 {
            continue
        }
        areas := buildAreas(group, doc.Pages[idx], pages[idx].MediaBox)
        report, err := pdf.RedactPage(parsed, pages[idx], areas)
        if err != nil {
            return nil, fmt.Errorf("edit page %d: %w", idx, err)
        }
        for _, a := range areas {
            if a.Permanent {
                permanent[idx] = append(permanent[idx], a.Rect)
            }
        }
        r.logger.Debug("Page edited",
            logger.Int("page", idx),
            logger.Int("glyphsRemoved", report.GlyphsRemoved),
            logger.Int("pathsRemoved", report.PathsRemoved),
            logger.Int("imagesBlacked", report.ImagesBlacked),
            logger.Int("imagesDropped", report.ImagesDropped+report.InlineDropped),
        )
    }

    out, err := parsed.Write()
    if err != nil {
        return nil, fmt.Errorf("serialize: %w", err)
    }
    if len(permanent) > 0 {
        if err := verifyPermanentRemoval(out, permanent); err != nil {
            return nil, err
        }
    }
    return out, nil
}

// buildAreas 永久填充排在临时覆盖之前
func buildAreas(group []models.Field, page models.Page, media pdf.Rect) []pdf.RedactArea {
    areas := make([]pdf.RedactArea, 0, len(group))
    for _, f := range group {
        if f.RedactionType != models.RedactionPermanent {
            continue
        }
        areas = append(areas, pdf.RedactArea{
            Rect:      pixelToPoint(f.Box, page, media),
            Permanent: true,
        })
    }
    for _, f := range group {
        if f.RedactionType != models.RedactionTemporary {
            continue
        }
        areas = append(areas, pdf.RedactArea{
            Rect:  pixelToPoint(f.Box, page, media),
            Fill:  pdfOverlayFill(f.Origin),
            Alpha: 0.5,
        })
    }
    return areas
}

// pixelToPoint 将显示像素区域映射回未旋转的点空间。
// 显示坐标原点在左上,点空间原点在 MediaBox 左下。
func pixelToPoint(box models.Box, page models.Page, media pdf.Rect) pdf.Rect {
    scale := page.Scale
    if scale <= 0 {
        scale = 1
    }
    x0, y0 := displayToPoint(box.X, box.Y, page.Rotation, scale, media)
    x1, y1 := displayToPoint(box.Right(), box.Bottom(), page.Rotation, scale, media)
    return pdf.Rect{
        X0: math.Min(x0, x1),
        Y0: math.Min(y0, y1),
        X1: math.Max(x0, x1),
        Y1: math.Max(y0, y1),
    }
}

// displayToPoint /Rotate 是顺时针显示旋转,这里做逆变换
func displayToPoint(u, v float64, rotate int, scale float64, media pdf.Rect) (float64, float64) {
    u /= scale
    v /= scale
    switch ((rotate % 360) + 360) % 360 {
    case 90:
        return media.X0 + v, media.Y0 + u
    case 180:
        return media.X1 - u, media.Y0 + v
    case 270:
        return media.X1 - v, media.Y1 - u
    default:
        return media.X0 + u, media.Y1 - v
    }
}

func pdfOverlayFill(origin models.FieldOrigin) [3]float64 {
    switch origin {
    case models.OriginManualDraw, models.OriginTextSearch:
        return [3]float64{1, 0.9, 0}
    default:
        return [3]float64{0.7, 0.7, 0.7}
    }
}
