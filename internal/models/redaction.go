package models

import (
    "strings"
    "time"
)

// RedactionType 脱敏方式
type RedactionType string

const (
    RedactionTemporary RedactionType = "temporary"
    RedactionPermanent RedactionType = "permanent"
)

func (t RedactionType) Valid() bool {
    return t == RedactionTemporary || t == RedactionPermanent
}

// FieldOrigin 脱敏意图来源
type FieldOrigin string

const (
    OriginAISuggested  FieldOrigin = "ai-suggested"
    OriginManualSelect FieldOrigin = "manual-select"
    OriginManualDraw   FieldOrigin = "manual-draw"
    OriginTextSearch   FieldOrigin = "text-search"
)

// Priority 合并重叠区域时的优先级,数值越大越优先
func (o FieldOrigin) Priority() int {
    switch o {
    case OriginAISuggested:
        return 3
    case OriginManualSelect:
        return 2
    case OriginManualDraw:
        return 1
    case OriginTextSearch:
        return 0
    }
    return -1
}

// 手绘标记的笔触颜色约定
const (
    ColorPermanent = "#FF0000"
    ColorTemporary = "#FFFF00"
)

// RedactionTypeForColor 根据手绘笔触颜色推断脱敏方式
func RedactionTypeForColor(color string) (RedactionType, bool) {
    switch strings.ToUpper(strings.TrimPrefix(color, "#")) {
    case "FF0000":
        return RedactionPermanent, true
    case "FFFF00":
        return RedactionTemporary, true
    }
    return "", false
}

// Field 一个待脱敏区域及其来源
type Field struct {
    ID            string        `json:"id"`
    Text          string        `json:"text,omitempty"`
    Box           Box           `json:"position"`
    Page          int           `json:"page"`
    Category      string        `json:"category,omitempty"`
    Confidence    float64       `json:"confidence,omitempty"`
    Origin        FieldOrigin   `json:"origin"`
    RedactionType RedactionType `json:"redactionType"`
    Color         string        `json:"color,omitempty"`
    LowConfidence bool          `json:"-"`
}

// SearchTerm 文本搜索项
type SearchTerm struct {
    Text          string        `json:"text"`
    RedactionType RedactionType `json:"redactionType"`
    CaseSensitive bool          `json:"caseSensitive"`
}

// SearchMatch 单个搜索项的命中数
type SearchMatch struct {
    Text  string `json:"text"`
    Count int    `json:"count"`
}

// RedactionRequest 一次脱敏调用的全部意图输入
type RedactionRequest struct {
    FileID      string        `json:"fileId"`
    Fields      []Field       `json:"fields"`
    SearchTerms []SearchTerm  `json:"searchTerms"`
    DefaultType RedactionType `json:"defaultType"`
    Language    string        `json:"language,omitempty"`
}

// RedactedDocument 脱敏产物,每次成功调用恰好生成一份
type RedactedDocument struct {
    ID              string    `json:"id"`
    SourceID        string    `json:"sourceId"`
    FileType        FileType  `json:"fileType"`
    PageCount       int       `json:"pageCount"`
    TotalRedactions int       `json:"totalRedactions"`
    Method          string    `json:"method"`
    SearchMatches   []SearchMatch `json:"searchMatches,omitempty"`
    CreatedAt       time.Time `json:"createdAt"`
}
