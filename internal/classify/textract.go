package classify

import (
    "context"
    "fmt"
    "strings"

    "github.com/aws/aws-sdk-go-v2/aws"
    awsconfig "github.com/aws/aws-sdk-go-v2/config"
    "github.com/aws/aws-sdk-go-v2/credentials"
    "github.com/aws/aws-sdk-go-v2/service/textract"
    "github.com/aws/aws-sdk-go-v2/service/textract/types"

    "github.com/docshield/document-redactor/config"
    "github.com/docshield/document-redactor/internal/models"
    "github.com/docshield/document-redactor/pkg/logger"
)

// sensitiveKeys 表单键名里出现这些词时,对应的值块视为敏感
var sensitiveKeys = []struct {
    keyword  string
    category string
}{
    {"name", "Name"},
    {"address", "Address"},
    {"phone", "Phone Number"},
    {"mobile", "Phone Number"},
    {"email", "Email"},
    {"birth", "Date of Birth"},
    {"dob", "Date of Birth"},
    {"aadhaar", "ID_Number"},
    {"aadhar", "ID_Number"},
    {"pan", "ID_Number"},
    {"passport", "ID_Number"},
    {"account", "Financial"},
    {"card", "Financial"},
}

// TextractClassifier 用 AWS Textract 的表单分析提出候选:
// 敏感键名对应的值块连同其几何信息直接成为候选区域
type TextractClassifier struct {
    client *textract.Client
    logger logger.Logger
    cfg    *config.TextractConfig
}

func NewTextractClassifier(ctx context.Context, cfg *config.TextractConfig, log logger.Logger) (*TextractClassifier, error) {
    creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")

    awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
        awsconfig.WithRegion(cfg.Region),
        awsconfig.WithCredentialsProvider(creds),
    )
    if err != nil {
        return nil, fmt.Errorf("unable to load AWS config: %w", err)
    }

    client := textract.NewFromConfig(awsCfg, func(o *textract.Options) {
        if cfg.Endpoint != "" {
            o.BaseEndpoint = aws.String(cfg.Endpoint)
        }
    })

    return &TextractClassifier{
        client: client,
        logger: log,
        cfg:    cfg,
    }, nil
}

func (c *TextractClassifier) Analyze(ctx context.Context, doc *models.Document) (*Result, error) {
    var fields []models.Field
    for _, page := range doc.Pages {
        if len(page.Raster) == 0 {
            continue
        }
        pageFields, err := c.analyzePage(ctx, page)
        if err != nil {
            return nil, fmt.Errorf("textract analysis of page %d failed: %v: %w",
                page.Index, err, models.ErrAnalysisUnavailable)
        }
        fields = append(fields, pageFields...)
    }

    c.logger.Info("Textract analysis complete",
        logger.String("documentId", doc.ID),
        logger.Int("fields", len(fields)),
    )
    return &Result{Fields: fields, AnalysisType: "textract"}, nil
}

func (c *TextractClassifier) analyzePage(ctx context.Context, page models.Page) ([]models.Field, error) {
    input := &textract.AnalyzeDocumentInput{
        Document:     &types.Document{Bytes: page.Raster},
        FeatureTypes: []types.FeatureType{types.FeatureTypeForms},
    }
    result, err := c.client.AnalyzeDocument(ctx, input)
    if err != nil {
        return nil, err
    }

    byID := make(map[string]types.Block, len(result.Blocks))
    for _, block := range result.Blocks {
        if block.Id != nil {
            byID[*block.Id] = block
        }
    }

    var fields []models.Field
    for _, block := range result.Blocks {
        if block.BlockType != types.BlockTypeKeyValueSet ||
            len(block.EntityTypes) == 0 ||
            block.EntityTypes[0] != types.EntityTypeKey {
            continue
        }
        keyText := childText(block, byID)
        category, ok := categoryForKey(keyText)
        if !ok {
            continue
        }
        value, ok := valueBlock(block, byID)
        if !ok {
            continue
        }
        confidence := float64(c.cfg.MinConfidence)
        if value.Confidence != nil {
            confidence = float64(*value.Confidence)
        }
        if confidence < float64(c.cfg.MinConfidence) {
            continue
        }
        box, ok := blockBox(value, page)
        if !ok {
            continue
        }
        fields = append(fields, models.Field{
            ID:         fmt.Sprintf("ai-%d-%d", page.Index, len(fields)),
            Text:       childText(value, byID),
            Box:        box,
            Page:       page.Index,
            Category:   category,
            Confidence: confidence,
            Origin:     models.OriginAISuggested,
        })
    }
    return fields, nil
}

// childText 拼接 CHILD 关系指向的词块文本
func childText(block types.Block, byID map[string]types.Block) string {
    var sb strings.Builder
    for _, rel := range block.Relationships {
        if rel.Type != "CHILD" {
            continue
        }
        for _, id := range rel.Ids {
            child, ok := byID[id]
            if !ok || child.Text == nil {
                continue
            }
            if sb.Len() > 0 {
                sb.WriteByte(' ')
            }
            sb.WriteString(*child.Text)
        }
    }
    return sb.String()
}

// valueBlock 解析键块 VALUE 关系指向的值块
func valueBlock(key types.Block, byID map[string]types.Block) (types.Block, bool) {
    for _, rel := range key.Relationships {
        if rel.Type != "VALUE" {
            continue
        }
        for _, id := range rel.Ids {
            if block, ok := byID[id]; ok {
                return block, true
            }
        }
    }
    return types.Block{}, false
}

// blockBox Textract 的几何是页面比例,换算为像素坐标
func blockBox(block types.Block, page models.Page) (models.Box, bool) {
    if block.Geometry == nil || block.Geometry.BoundingBox == nil {
        return models.Box{}, false
    }
    bb := block.Geometry.BoundingBox
    box := models.Box{
        X:      float64(bb.Left) * page.Width,
        Y:      float64(bb.Top) * page.Height,
        Width:  float64(bb.Width) * page.Width,
        Height: float64(bb.Height) * page.Height,
    }
    if box.IsDegenerate() {
        return models.Box{}, false
    }
    return box, true
}

func categoryForKey(keyText string) (string, bool) {
    lower := strings.ToLower(keyText)
    if lower == "" {
        return "", false
    }
    for _, k := range sensitiveKeys {
        if strings.Contains(lower, k.keyword) {
            return k.category, true
        }
    }
    return "", false
}

func (c *TextractClassifier) Close() error {
    return nil
}
