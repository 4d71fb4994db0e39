package converters

import (
    "fmt"

    "github.com/docshield/document-redactor/internal/models"
)

// 对外 JSON 契约沿用原工具的 snake_case 字段,
// 内部模型与线上格式的互转都集中在这里

// PositionDTO 页面像素坐标
type PositionDTO struct {
    X      float64 `json:"x"`
    Y      float64 `json:"y"`
    Width  float64 `json:"width"`
    Height float64 `json:"height"`
}

// DataFieldDTO 上传响应中的一个定位 token
type DataFieldDTO struct {
    ID            string      `json:"id"`
    Text          string      `json:"text"`
    Page          int         `json:"page"`
    Confidence    float64     `json:"confidence"`
    LowConfidence bool        `json:"low_confidence,omitempty"`
    Position      PositionDTO `json:"position"`
}

// UploadResponse POST /api/upload 的响应
type UploadResponse struct {
    FileID           string         `json:"file_id"`
    OriginalFilename string         `json:"original_filename"`
    DocumentType     string         `json:"document_type,omitempty"`
    Language         string         `json:"language"`
    PageCount        int            `json:"page_count"`
    Warnings         []string       `json:"warnings,omitempty"`
    DataFields       []DataFieldDTO `json:"data_fields"`
}

// RedactionDTO 请求中的一个脱敏区域。method 取 select 或 brush,
// 与原工具一致;origin 是更精确的新字段,提供时优先
type RedactionDTO struct {
    ID            string      `json:"id,omitempty"`
    Text          string      `json:"text,omitempty"`
    Page          int         `json:"page"`
    Position      PositionDTO `json:"position"`
    Method        string      `json:"method,omitempty"`
    Origin        string      `json:"origin,omitempty"`
    RedactionType string      `json:"redaction_type,omitempty"`
    Color         string      `json:"color,omitempty"`
    Category      string      `json:"category,omitempty"`
    Confidence    float64     `json:"ai_confidence,omitempty"`
}

// SearchTermDTO 文本搜索项
type SearchTermDTO struct {
    Text          string `json:"text"`
    RedactionType string `json:"redaction_type,omitempty"`
    CaseSensitive bool   `json:"case_sensitive,omitempty"`
}

// RedactRequest POST /api/redact 的请求
type RedactRequest struct {
    FileID        string          `json:"file_id"`
    Redactions    []RedactionDTO  `json:"redactions"`
    RedactionType string          `json:"redaction_type,omitempty"`
    TextToRedact  []SearchTermDTO `json:"text_to_redact,omitempty"`
    DocumentType  string          `json:"document_type,omitempty"`
    Language      string          `json:"language,omitempty"`
}

// SearchMatchDTO 单个搜索项命中数
type SearchMatchDTO struct {
    Text  string `json:"text"`
    Count int    `json:"count"`
}

// RedactResponse POST /api/redact 的响应
type RedactResponse struct {
    RedactedFileID  string           `json:"redacted_file_id"`
    TotalRedactions int              `json:"total_redactions"`
    RedactionMethod string           `json:"redaction_method"`
    SearchMatches   []SearchMatchDTO `json:"search_matches,omitempty"`
}

// AnalyzeRequest POST /api/analyze-document 的请求
type AnalyzeRequest struct {
    FileID       string `json:"file_id"`
    DocumentType string `json:"document_type,omitempty"`
}

// SensitiveFieldDTO AI 建议的一个敏感区域
type SensitiveFieldDTO struct {
    ID           string      `json:"id"`
    Text         string      `json:"text"`
    Category     string      `json:"category"`
    AIConfidence float64     `json:"ai_confidence"`
    Page         int         `json:"page"`
    Method       string      `json:"method"`
    Position     PositionDTO `json:"position"`
}

// AnalyzeResponse POST /api/analyze-document 的响应
type AnalyzeResponse struct {
    SensitiveFields []SensitiveFieldDTO `json:"sensitive_fields"`
    AnalysisType    string              `json:"analysis_type"`
}

func toPositionDTO(b models.Box) PositionDTO {
    return PositionDTO{X: b.X, Y: b.Y, Width: b.Width, Height: b.Height}
}

func toBox(p PositionDTO) models.Box {
    return models.Box{X: p.X, Y: p.Y, Width: p.Width, Height: p.Height}
}

// ToUploadResponse 归一化文档 → 上传响应
func ToUploadResponse(doc *models.Document) *UploadResponse {
    resp := &UploadResponse{
        FileID:           doc.ID,
        OriginalFilename: doc.OriginalFilename,
        DocumentType:     doc.DocumentType,
        Language:         doc.Language,
        PageCount:        len(doc.Pages),
        Warnings:         doc.Warnings(),
        DataFields:       make([]DataFieldDTO, 0, doc.TokenCount()),
    }
    for _, page := range doc.Pages {
        for i, tok := range page.Tokens {
            resp.DataFields = append(resp.DataFields, DataFieldDTO{
                ID:            tokenID(page.Index, i),
                Text:          tok.Text,
                Page:          page.Index,
                Confidence:    tok.Confidence,
                LowConfidence: tok.LowConfidence,
                Position:      toPositionDTO(tok.Box),
            })
        }
    }
    return resp
}

func tokenID(page, index int) string {
    return fmt.Sprintf("tok-%d-%d", page, index)
}

// ToRedactionRequest 线上请求 → 匹配器输入
func ToRedactionRequest(req *RedactRequest) *models.RedactionRequest {
    out := &models.RedactionRequest{
        FileID:      req.FileID,
        DefaultType: models.RedactionType(req.RedactionType),
        Language:    req.Language,
    }
    for _, r := range req.Redactions {
        out.Fields = append(out.Fields, models.Field{
            ID:            r.ID,
            Text:          r.Text,
            Box:           toBox(r.Position),
            Page:          r.Page,
            Category:      r.Category,
            Confidence:    r.Confidence,
            Origin:        originFor(r),
            RedactionType: models.RedactionType(r.RedactionType),
            Color:         r.Color,
        })
    }
    for _, term := range req.TextToRedact {
        out.SearchTerms = append(out.SearchTerms, models.SearchTerm{
            Text:          term.Text,
            RedactionType: models.RedactionType(term.RedactionType),
            CaseSensitive: term.CaseSensitive,
        })
    }
    return out
}

// originFor 显式 origin 优先,否则按原工具的 method 约定
func originFor(r RedactionDTO) models.FieldOrigin {
    if r.Origin != "" {
        return models.FieldOrigin(r.Origin)
    }
    switch r.Method {
    case "brush":
        return models.OriginManualDraw
    case "select":
        return models.OriginManualSelect
    }
    return ""
}

// ToRedactResponse 脱敏产物 → 线上响应
func ToRedactResponse(doc *models.RedactedDocument) *RedactResponse {
    resp := &RedactResponse{
        RedactedFileID:  doc.ID,
        TotalRedactions: doc.TotalRedactions,
        RedactionMethod: doc.Method,
    }
    for _, m := range doc.SearchMatches {
        resp.SearchMatches = append(resp.SearchMatches, SearchMatchDTO{Text: m.Text, Count: m.Count})
    }
    return resp
}

// ToAnalyzeResponse 分类器输出 → 线上响应,建议区域按 select 处理
func ToAnalyzeResponse(fields []models.Field, analysisType string) *AnalyzeResponse {
    resp := &AnalyzeResponse{
        SensitiveFields: make([]SensitiveFieldDTO, 0, len(fields)),
        AnalysisType:    analysisType,
    }
    for _, f := range fields {
        resp.SensitiveFields = append(resp.SensitiveFields, SensitiveFieldDTO{
            ID:           f.ID,
            Text:         f.Text,
            Category:     f.Category,
            AIConfidence: f.Confidence,
            Page:         f.Page,
            Method:       "select",
            Position:     toPositionDTO(f.Box),
        })
    }
    return resp
}
