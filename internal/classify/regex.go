package classify

import (
    "context"
    "regexp"

    "github.com/docshield/document-redactor/internal/models"
    "github.com/docshield/document-redactor/pkg/logger"
)

// regexRules 离线兜底规则,围绕印度证件场景
var regexRules = []struct {
    category   string
    confidence float64
    pattern    *regexp.Regexp
}{
    {"Name", 85, regexp.MustCompile(`\b[A-Z][a-z]+ [A-Z][a-z]+\b`)},
    {"Aadhar Number", 95, regexp.MustCompile(`\b\d{4}\s?\d{4}\s?\d{4}\b`)},
    {"PAN", 95, regexp.MustCompile(`\b[A-Z]{5}\d{4}[A-Z]\b`)},
    {"Email", 90, regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`)},
    {"Phone Number", 85, regexp.MustCompile(`\b\d{10}\b`)},
    {"Date of Birth", 80, regexp.MustCompile(`\b\d{1,2}[-/]\d{1,2}[-/]\d{2,4}\b`)},
}

// RegexClassifier 纯本地的模式识别,没有外部依赖,永不失败
type RegexClassifier struct {
    logger logger.Logger
}

func NewRegexClassifier(log logger.Logger) *RegexClassifier {
    return &RegexClassifier{logger: log}
}

func (c *RegexClassifier) Analyze(_ context.Context, doc *models.Document) (*Result, error) {
    suggestions := regexSuggestions(joinedText(doc))
    fields := mapSuggestions(doc, suggestions)
    c.logger.Info("Regex analysis complete",
        logger.String("documentId", doc.ID),
        logger.Int("suggestions", len(suggestions)),
        logger.Int("fields", len(fields)),
    )
    return &Result{Fields: fields, AnalysisType: "regex"}, nil
}

func regexSuggestions(text string) []Suggestion {
    var out []Suggestion
    for _, rule := range regexRules {
        for _, match := range rule.pattern.FindAllString(text, -1) {
            out = append(out, Suggestion{
                Text:       match,
                Category:   rule.category,
                Confidence: rule.confidence,
            })
        }
    }
    return out
}
