package classify

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "strings"
    "time"

    "github.com/docshield/document-redactor/config"
    "github.com/docshield/document-redactor/internal/models"
    "github.com/docshield/document-redactor/pkg/logger"
)

// 这些是文档自身的标签和表头,不是个人信息,提示词里明确排除
var nonSensitiveTerms = []string{
    "government of india", "govt of india", "government", "unique identification",
    "uidai", "issued by", "verify", "signature", "male", "female", "gender",
    "help", "toll free", "authority",
}

const geminiPromptTemplate = `First, analyze the text to determine what type of document this is (e.g., resume, identity card, certificate, financial statement, medical record, etc.).

Then, based on the document type, identify ONLY genuine personal/sensitive information. Consider the document context before classifying fields. Only mark information as sensitive if it reveals personal identifiable information about an individual.

DO NOT mark these elements as sensitive (these are document headers/labels, not sensitive information):
%s

Identify these types of information:
- Full names of individuals
- Physical addresses (home, mailing)
- Phone numbers
- Email addresses
- ID numbers (Aadhar, PAN, passport, SSN, etc.)
- Actual dates of birth (not other dates)
- Financial information (account numbers, credit cards)

Format your response as a JSON array with the following structure:
[
  {
    "text": "the exact sensitive text",
    "category": "category name (Name, Address, Phone, Email, ID_Number, DOB, Financial)",
    "confidence": confidence score between 0-100,
    "reason": "brief explanation of why this is sensitive in this document context"
  }
]

Only output the JSON array, nothing else.
This should work for multilingual text (English, Hindi, Tamil, Telugu, Kannada, Malayalam, etc.)

Text to analyze:
%s`

// geminiRequest 定义 generateContent 请求结构
type geminiRequest struct {
    Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
    Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
    Text string `json:"text"`
}

// geminiResponse 定义 generateContent 响应结构
type geminiResponse struct {
    Candidates []struct {
        Content struct {
            Parts []struct {
                Text string `json:"text"`
            } `json:"parts"`
        } `json:"content"`
    } `json:"candidates"`
    Error *struct {
        Code    int    `json:"code"`
        Message string `json:"message"`
    } `json:"error"`
}

// GeminiClassifier 调用 Gemini 分析全文,失败时自动退回 regex。
// 调用带超时且不重试,手动脱敏路径不依赖它。
type GeminiClassifier struct {
    endpoint   string
    model      string
    apiKey     string
    logger     logger.Logger
    fallback   *RegexClassifier
    httpClient *http.Client
}

func NewGeminiClassifier(cfg *config.GeminiConfig, log logger.Logger) *GeminiClassifier {
    return &GeminiClassifier{
        endpoint: cfg.Endpoint,
        model:    cfg.Model,
        apiKey:   cfg.APIKey,
        logger:   log,
        fallback: NewRegexClassifier(log),
        httpClient: &http.Client{
            Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
        },
    }
}

func (c *GeminiClassifier) Analyze(ctx context.Context, doc *models.Document) (*Result, error) {
    text := joinedText(doc)
    if text == "" {
        return &Result{AnalysisType: "ai"}, nil
    }
    if c.apiKey == "" {
        c.logger.Warn("No Gemini API key configured, using regex analysis")
        return c.fallback.Analyze(ctx, doc)
    }

    suggestions, err := c.analyzeText(ctx, text, doc.DocumentType)
    if err != nil {
        c.logger.Warn("AI analysis unavailable, falling back to regex",
            logger.String("documentId", doc.ID),
            logger.Error(err),
        )
        return c.fallback.Analyze(ctx, doc)
    }

    return &Result{
        Fields:       mapSuggestions(doc, suggestions),
        AnalysisType: "ai",
    }, nil
}

// analyzeText 单次 generateContent 调用,任何失败都返回
// ErrAnalysisUnavailable 由调用方决定兜底
func (c *GeminiClassifier) analyzeText(ctx context.Context, text, documentType string) ([]Suggestion, error) {
    prompt := fmt.Sprintf(geminiPromptTemplate, strings.Join(nonSensitiveTerms, ", "), text)
    if documentType != "" && documentType != "unknown" {
        prompt = fmt.Sprintf("The document is known to be: %s.\n\n%s", documentType, prompt)
    }

    reqData, err := json.Marshal(geminiRequest{
        Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
    })
    if err != nil {
        return nil, fmt.Errorf("failed to marshal request: %w", err)
    }

    url := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, c.model)
    req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqData))
    if err != nil {
        return nil, fmt.Errorf("failed to create request: %w", err)
    }
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set("X-goog-api-key", c.apiKey)

    resp, err := c.httpClient.Do(req)
    if err != nil {
        return nil, fmt.Errorf("gemini request failed: %v: %w", err, models.ErrAnalysisUnavailable)
    }
    defer resp.Body.Close()

    if resp.StatusCode != http.StatusOK {
        body, _ := io.ReadAll(resp.Body)
        return nil, fmt.Errorf("gemini status %d: %s: %w", resp.StatusCode, string(body), models.ErrAnalysisUnavailable)
    }

    var result geminiResponse
    if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
        return nil, fmt.Errorf("failed to decode response: %v: %w", err, models.ErrAnalysisUnavailable)
    }
    if result.Error != nil {
        return nil, fmt.Errorf("gemini error %d: %s: %w", result.Error.Code, result.Error.Message, models.ErrAnalysisUnavailable)
    }
    if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
        return nil, fmt.Errorf("gemini returned no candidates: %w", models.ErrAnalysisUnavailable)
    }

    raw := extractJSONArray(result.Candidates[0].Content.Parts[0].Text)
    var suggestions []Suggestion
    if err := json.Unmarshal([]byte(raw), &suggestions); err != nil {
        return nil, fmt.Errorf("failed to parse suggestions: %v: %w", err, models.ErrAnalysisUnavailable)
    }
    return suggestions, nil
}

// extractJSONArray 模型常把 JSON 包在说明文字或代码栅栏里,
// 截取首个完整的方括号片段
func extractJSONArray(text string) string {
    start := strings.Index(text, "[")
    if start < 0 {
        return strings.TrimSpace(text)
    }
    end := strings.LastIndex(text, "]")
    if end < start {
        return strings.TrimSpace(text)
    }
    return strings.TrimSpace(text[start : end+1])
}

func (c *GeminiClassifier) Close() error {
    c.httpClient.CloseIdleConnections()
    return nil
}
