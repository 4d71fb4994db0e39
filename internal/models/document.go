package models

import (
    "fmt"
    "time"
)

// FileType 文档容器类型
type FileType string

const (
    PDF   FileType = "pdf"
    Image FileType = "image"
)

// Box 页面像素坐标系中的矩形区域
type Box struct {
    X      float64 `json:"x"`
    Y      float64 `json:"y"`
    Width  float64 `json:"width"`
    Height float64 `json:"height"`
}

func (b Box) Right() float64  { return b.X + b.Width }
func (b Box) Bottom() float64 { return b.Y + b.Height }
func (b Box) Area() float64   { return b.Width * b.Height }

// IsDegenerate 宽或高不为正的区域视为退化
func (b Box) IsDegenerate() bool {
    return b.Width <= 0 || b.Height <= 0
}

// ClampTo 将区域裁剪到页面边界内,越界部分被截断
func (b Box) ClampTo(pageWidth, pageHeight float64) Box {
    x0 := max(b.X, 0)
    y0 := max(b.Y, 0)
    x1 := min(b.Right(), pageWidth)
    y1 := min(b.Bottom(), pageHeight)
    return Box{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Intersect 返回两区域的交集,不相交时返回退化区域
func (b Box) Intersect(o Box) Box {
    x0 := max(b.X, o.X)
    y0 := max(b.Y, o.Y)
    x1 := min(b.Right(), o.Right())
    y1 := min(b.Bottom(), o.Bottom())
    return Box{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Union 返回覆盖两区域的最小矩形
func (b Box) Union(o Box) Box {
    x0 := min(b.X, o.X)
    y0 := min(b.Y, o.Y)
    x1 := max(b.Right(), o.Right())
    y1 := max(b.Bottom(), o.Bottom())
    return Box{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

func (b Box) Intersects(o Box) bool {
    return !b.Intersect(o).IsDegenerate()
}

// IoU 交并比,用于判定重叠区域是否应合并
func (b Box) IoU(o Box) float64 {
    inter := b.Intersect(o)
    if inter.IsDegenerate() {
        return 0
    }
    union := b.Area() + o.Area() - inter.Area()
    if union <= 0 {
        return 0
    }
    return inter.Area() / union
}

// Scale 按比例缩放区域坐标
func (b Box) Scale(f float64) Box {
    return Box{X: b.X * f, Y: b.Y * f, Width: b.Width * f, Height: b.Height * f}
}

// Token OCR 输出的定位文本单元,创建后不可变
type Token struct {
    Text          string  `json:"text"`
    Box           Box     `json:"position"`
    Confidence    float64 `json:"confidence"`
    LowConfidence bool    `json:"lowConfidence,omitempty"`
}

// Page 归一化后的单页,栅格仅在流水线内使用
type Page struct {
    Index       int      `json:"index"`
    Width       float64  `json:"width"`
    Height      float64  `json:"height"`
    Rotation    int      `json:"rotation"`
    PointWidth  float64  `json:"pointWidth,omitempty"`
    PointHeight float64  `json:"pointHeight,omitempty"`
    Scale       float64  `json:"scale"`
    Raster      []byte   `json:"-"`
    Tokens      []Token  `json:"tokens"`
    Warnings    []string `json:"warnings,omitempty"`
}

// Document 上传文档的规范化表示,由处理它的流水线独占
type Document struct {
    ID               string    `json:"id"`
    OriginalFilename string    `json:"originalFilename"`
    FileType         FileType  `json:"fileType"`
    MimeType         string    `json:"mimeType"`
    DocumentType     string    `json:"documentType,omitempty"`
    Language         string    `json:"language"`
    FileSize         int64     `json:"fileSize"`
    Hash             string    `json:"hash,omitempty"`
    Pages            []Page    `json:"pages"`
    CreatedAt        time.Time `json:"createdAt"`
}

// Warnings 汇总各页的处理警告
func (d *Document) Warnings() []string {
    var out []string
    for _, p := range d.Pages {
        for _, w := range p.Warnings {
            out = append(out, fmt.Sprintf("page %d: %s", p.Index, w))
        }
    }
    return out
}

// TokenCount 所有页的 token 总数
func (d *Document) TokenCount() int {
    n := 0
    for _, p := range d.Pages {
        n += len(p.Tokens)
    }
    return n
}
