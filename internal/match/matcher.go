package match

import (
    "fmt"
    "sort"
    "strings"

    "github.com/docshield/document-redactor/config"
    "github.com/docshield/document-redactor/internal/models"
    "github.com/docshield/document-redactor/pkg/logger"
)

// Matcher 将四种来源的脱敏意图归并为单一的按页排序计划。
// 归并是纯函数式的折叠,不修改输入的文档或请求。
type Matcher struct {
    logger logger.Logger
    iou    float64
}

func NewMatcher(log logger.Logger, cfg *config.EngineConfig) *Matcher {
    iou := cfg.MergeIoUThreshold
    if iou <= 0 || iou > 1 {
        iou = 0.5
    }
    return &Matcher{logger: log, iou: iou}
}

// Plan 最终脱敏计划。Fields 已去重并按页序、左上位置排序。
type Plan struct {
    Fields        []models.Field
    SearchMatches []models.SearchMatch
    Method        string
}

// TotalRedactions 计划中的区域总数
func (p *Plan) TotalRedactions() int { return len(p.Fields) }

// HasPermanent 计划是否包含永久脱敏
func (p *Plan) HasPermanent() bool {
    for _, f := range p.Fields {
        if f.RedactionType == models.RedactionPermanent {
            return true
        }
    }
    return false
}

// Resolve 解析一次请求的全部意图。未命中的搜索项不构成错误,
// 只是在 SearchMatches 中计数为零。
func (m *Matcher) Resolve(doc *models.Document, req *models.RedactionRequest) (*Plan, error) {
    if doc == nil {
        return nil, fmt.Errorf("nil document")
    }
    if req == nil {
        return nil, fmt.Errorf("nil request")
    }

    plan := &Plan{Method: methodFor(req)}

    var candidates []models.Field
    for _, f := range req.Fields {
        nf, ok := m.normalizeField(doc, f, req.DefaultType)
        if !ok {
            continue
        }
        candidates = append(candidates, nf)
    }
    for _, term := range req.SearchTerms {
        fields, count := m.searchTerm(doc, term, req.DefaultType)
        candidates = append(candidates, fields...)
        plan.SearchMatches = append(plan.SearchMatches, models.SearchMatch{
            Text:  term.Text,
            Count: count,
        })
    }

    plan.Fields = m.merge(candidates)
    sortFields(plan.Fields)
    for i := range plan.Fields {
        if plan.Fields[i].ID == "" {
            plan.Fields[i].ID = fmt.Sprintf("field-%d", i+1)
        }
    }

    m.logger.Info("Redaction plan resolved",
        logger.String("method", plan.Method),
        logger.Int("candidates", len(candidates)),
        logger.Int("fields", len(plan.Fields)),
    )
    return plan, nil
}

// normalizeField 补全来源与脱敏方式并裁剪到页面边界。
// 引用未知页面或裁剪后退化的区域被丢弃。
func (m *Matcher) normalizeField(doc *models.Document, f models.Field, def models.RedactionType) (models.Field, bool) {
    if f.Page < 0 || f.Page >= len(doc.Pages) {
        m.logger.Warn("Field references unknown page",
            logger.String("field", f.ID),
            logger.Int("page", f.Page),
        )
        return f, false
    }

    if f.Origin.Priority() < 0 {
        if f.Color != "" {
            f.Origin = models.OriginManualDraw
        } else {
            f.Origin = models.OriginManualSelect
        }
    }

    // 显式方式优先,手绘退回笔触颜色约定,再退回请求默认值
    if !f.RedactionType.Valid() {
        if f.Origin == models.OriginManualDraw && f.Color != "" {
            if t, ok := models.RedactionTypeForColor(f.Color); ok {
                f.RedactionType = t
            }
        }
    }
    if !f.RedactionType.Valid() {
        f.RedactionType = def
    }
    if !f.RedactionType.Valid() {
        f.RedactionType = models.RedactionTemporary
    }

    page := doc.Pages[f.Page]
    f.Box = f.Box.ClampTo(page.Width, page.Height)
    if f.Box.IsDegenerate() {
        m.logger.Warn("Field degenerate after clamping",
            logger.String("field", f.ID),
            logger.Int("page", f.Page),
        )
        return f, false
    }
    return f, true
}

// searchTerm 在各页 token 序列上扫描一个搜索项。
// 多词短语匹配连续 token 以单个空格拼接后的文本,命中时合并各词的框。
func (m *Matcher) searchTerm(doc *models.Document, term models.SearchTerm, def models.RedactionType) ([]models.Field, int) {
    parts := strings.Fields(term.Text)
    if len(parts) == 0 {
        return nil, 0
    }
    want := strings.Join(parts, " ")

    rtype := term.RedactionType
    if !rtype.Valid() {
        rtype = def
    }
    if !rtype.Valid() {
        rtype = models.RedactionTemporary
    }

    var fields []models.Field
    count := 0
    n := len(parts)
    for pi := range doc.Pages {
        page := &doc.Pages[pi]
        toks := page.Tokens
        for i := 0; i+n <= len(toks); i++ {
            text, box, conf, low := joinWindow(toks[i : i+n])
            if !textMatches(text, want, term.CaseSensitive) {
                continue
            }
            box = box.ClampTo(page.Width, page.Height)
            if box.IsDegenerate() {
                continue
            }
            fields = append(fields, models.Field{
                Text:          text,
                Box:           box,
                Page:          page.Index,
                Origin:        models.OriginTextSearch,
                RedactionType: rtype,
                Confidence:    conf,
                LowConfidence: low,
            })
            count++
            // 命中后跳过构成短语的其余词,避免自重叠命中
            i += n - 1
        }
    }
    return fields, count
}

// joinWindow 拼接窗口内 token 的文本并合并框,
// 置信度取成员最小值,任一成员低置信度则整体低置信度
func joinWindow(toks []models.Token) (string, models.Box, float64, bool) {
    var sb strings.Builder
    box := toks[0].Box
    conf := toks[0].Confidence
    low := toks[0].LowConfidence
    for i, t := range toks {
        if i > 0 {
            sb.WriteByte(' ')
            box = box.Union(t.Box)
            if t.Confidence < conf {
                conf = t.Confidence
            }
            low = low || t.LowConfidence
        }
        sb.WriteString(t.Text)
    }
    return sb.String(), box, conf, low
}

func textMatches(got, want string, caseSensitive bool) bool {
    if caseSensitive {
        return got == want
    }
    return strings.EqualFold(got, want)
}

// merge 同页 IoU 达阈值的区域折叠为一个。胜者按来源优先级选出,
// 平级时非低置信度、更高置信度者胜;任一成员为永久则合并结果为永久;
// 框取并集,保证不低于任何成员的覆盖范围。
func (m *Matcher) merge(fields []models.Field) []models.Field {
    if len(fields) == 0 {
        return nil
    }

    sort.SliceStable(fields, func(i, j int) bool {
        pi, pj := fields[i].Origin.Priority(), fields[j].Origin.Priority()
        if pi != pj {
            return pi > pj
        }
        if fields[i].LowConfidence != fields[j].LowConfidence {
            return !fields[i].LowConfidence
        }
        return fields[i].Confidence > fields[j].Confidence
    })

    used := make([]bool, len(fields))
    out := make([]models.Field, 0, len(fields))
    for i := range fields {
        if used[i] {
            continue
        }
        used[i] = true
        merged := fields[i]
        seed := fields[i].Box
        for j := i + 1; j < len(fields); j++ {
            if used[j] || fields[j].Page != merged.Page {
                continue
            }
            if seed.IoU(fields[j].Box) < m.iou {
                continue
            }
            used[j] = true
            merged.Box = merged.Box.Union(fields[j].Box)
            if fields[j].RedactionType == models.RedactionPermanent {
                merged.RedactionType = models.RedactionPermanent
            }
        }
        out = append(out, merged)
    }
    return out
}

// sortFields 按页索引、再按左上位置排序
func sortFields(fields []models.Field) {
    sort.SliceStable(fields, func(i, j int) bool {
        if fields[i].Page != fields[j].Page {
            return fields[i].Page < fields[j].Page
        }
        if fields[i].Box.Y != fields[j].Box.Y {
            return fields[i].Box.Y < fields[j].Box.Y
        }
        return fields[i].Box.X < fields[j].Box.X
    })
}

func methodFor(req *models.RedactionRequest) string {
    switch {
    case len(req.Fields) > 0 && len(req.SearchTerms) > 0:
        return "mixed"
    case len(req.SearchTerms) > 0:
        return "text_search"
    case len(req.Fields) > 0:
        return "manual"
    default:
        return "none"
    }
}
