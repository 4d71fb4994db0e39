package classify

import (
    "context"
    "fmt"
    "strings"

    "github.com/docshield/document-redactor/config"
    "github.com/docshield/document-redactor/internal/models"
    "github.com/docshield/document-redactor/pkg/logger"
)

// Suggestion 分类器提出的一个敏感文本候选,尚未定位到页面
type Suggestion struct {
    Text       string  `json:"text"`
    Category   string  `json:"category"`
    Confidence float64 `json:"confidence"`
    Reason     string  `json:"reason,omitempty"`
}

// Result 一次文档分析的输出
type Result struct {
    Fields       []models.Field
    AnalysisType string
}

// Classifier 从已 OCR 的文档中提出脱敏候选区域
type Classifier interface {
    Analyze(ctx context.Context, doc *models.Document) (*Result, error)
}

// NewClassifier 按配置选择后端,默认 Gemini(内置 regex 兜底)
func NewClassifier(ctx context.Context, log logger.Logger) (Classifier, error) {
    geminiCfg := config.GetGeminiConfig()
    switch geminiCfg.Backend {
    case "textract":
        classifier, err := NewTextractClassifier(ctx, config.GetTextractConfig(), log)
        if err != nil {
            return nil, fmt.Errorf("failed to create textract classifier: %w", err)
        }
        return classifier, nil
    case "regex":
        return NewRegexClassifier(log), nil
    default:
        return NewGeminiClassifier(geminiCfg, log), nil
    }
}

// joinedText 按页序拼接全部 token 文本,供整体分析
func joinedText(doc *models.Document) string {
    var sb strings.Builder
    for _, page := range doc.Pages {
        for _, tok := range page.Tokens {
            if sb.Len() > 0 {
                sb.WriteByte(' ')
            }
            sb.WriteString(tok.Text)
        }
    }
    return sb.String()
}

// mapSuggestions 将文本候选按包含关系映射回带坐标的 token。
// 一个 token 只归入首个命中的候选。
func mapSuggestions(doc *models.Document, suggestions []Suggestion) []models.Field {
    var fields []models.Field
    for _, page := range doc.Pages {
        for _, tok := range page.Tokens {
            for _, s := range suggestions {
                if !textMatches(tok.Text, s.Text) {
                    continue
                }
                fields = append(fields, models.Field{
                    ID:         fmt.Sprintf("ai-%d-%d", page.Index, len(fields)),
                    Text:       tok.Text,
                    Box:        tok.Box,
                    Page:       page.Index,
                    Category:   s.Category,
                    Confidence: s.Confidence,
                    Origin:     models.OriginAISuggested,
                })
                break
            }
        }
    }
    return fields
}

// textMatches 大小写不敏感的相互包含,或字符集重叠超过七成
func textMatches(tokenText, suggestionText string) bool {
    a := strings.ToLower(strings.TrimSpace(tokenText))
    b := strings.ToLower(strings.TrimSpace(suggestionText))
    if a == "" || b == "" {
        return false
    }
    if a == b || strings.Contains(a, b) || strings.Contains(b, a) {
        return true
    }
    return charOverlap(a, b) > 0.7
}

// charOverlap token 字符集中被候选覆盖的比例
func charOverlap(a, b string) float64 {
    setA := make(map[rune]struct{})
    for _, r := range a {
        setA[r] = struct{}{}
    }
    if len(setA) == 0 {
        return 0
    }
    setB := make(map[rune]struct{})
    for _, r := range b {
        setB[r] = struct{}{}
    }
    common := 0
    for r := range setA {
        if _, ok := setB[r]; ok {
            common++
        }
    }
    return float64(common) / float64(len(setA))
}
