package render

import (
    "bytes"
    "fmt"

    lpdf "github.com/ledongthuc/pdf"

    "github.com/docshield/document-redactor/internal/pdf"
)

// verifyPermanentRemoval 用独立的解析器重新抽取产物文本,任何落在
// 永久区域内的字形基线都说明移除失败,产物不得发布。
func verifyPermanentRemoval(out []byte, permanent map[int][]pdf.Rect) error {
    reader, err := lpdf.NewReader(bytes.NewReader(out), int64(len(out)))
    if err != nil {
        return fmt.Errorf("verification reparse failed: %v", err)
    }
    for idx, rects := range permanent {
        texts, err := pageTexts(reader, idx+1)
        if err != nil {
            return fmt.Errorf("verification of page %d failed: %v", idx, err)
        }
        for _, t := range texts {
            for _, rect := range rects {
                if rect.Contains(t.X, t.Y) {
                    return fmt.Errorf("text %q survived permanent redaction on page %d", t.S, idx)
                }
            }
        }
    }
    return nil
}

// pageTexts 校验器对畸形输入会 panic,这里吸收为错误,宁可拒绝发布
func pageTexts(reader *lpdf.Reader, pageNum int) (texts []lpdf.Text, err error) {
    defer func() {
        if r := recover(); r != nil {
            texts = nil
            err = fmt.Errorf("extraction panic: %v", r)
        }
    }()
    if pageNum > reader.NumPage() {
        return nil, fmt.Errorf("page %d not reachable", pageNum)
    }
    page := reader.Page(pageNum)
    if page.V.IsNull() {
        return nil, fmt.Errorf("page %d not reachable", pageNum)
    }
    return page.Content().Text, nil
}
