package redaction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docshield/document-redactor/config"
	"github.com/docshield/document-redactor/internal/audit"
	"github.com/docshield/document-redactor/internal/classify"
	"github.com/docshield/document-redactor/internal/match"
	"github.com/docshield/document-redactor/internal/models"
	"github.com/docshield/document-redactor/internal/normalize"
	"github.com/docshield/document-redactor/internal/ocr"
	"github.com/docshield/document-redactor/internal/render"
	"github.com/docshield/document-redactor/internal/utils/validator"
	"github.com/docshield/document-redactor/pkg/cache"
	"github.com/docshield/document-redactor/pkg/logger"
	"github.com/docshield/document-redactor/pkg/queue"
	"github.com/docshield/document-redactor/pkg/storage"
)

// RedactionService 把归一化、OCR、意图解析、渲染串成完整流水线。
// 每个文档在处理期间被独占,跨请求不共享可变状态
type RedactionService struct {
	normalizer *normalize.Normalizer
	extractor  *ocr.Extractor
	matcher    *match.Matcher
	renderer   *render.Renderer
	classifier classify.Classifier
	store      storage.Storage
	cache      cache.Cache
	queue      queue.Queue
	audit      *audit.Writer
	validator  *validator.DocumentValidator
	logger     logger.Logger
	config     *ServiceConfig

	// 文档级并发闸,栅格缓冲主导内存峰值
	sem chan struct{}
}

// Deps 服务依赖
type Deps struct {
	Normalizer *normalize.Normalizer
	Extractor  *ocr.Extractor
	Matcher    *match.Matcher
	Renderer   *render.Renderer
	Classifier classify.Classifier
	Store      storage.Storage
	Cache      cache.Cache
	Queue      queue.Queue
	Audit      *audit.Writer
	Validator  *validator.DocumentValidator
	Logger     logger.Logger
}

type ServiceConfig struct {
	MaxConcurrent     int
	SessionTTL        time.Duration
	RetentionPeriod   time.Duration
	ClassifierBackend string
}

func NewService(deps *Deps, cfg *ServiceConfig) Service {
	if cfg == nil {
		cfg = &ServiceConfig{}
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.RetentionPeriod <= 0 {
		cfg.RetentionPeriod = 24 * time.Hour
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = cfg.RetentionPeriod
	}

	return &RedactionService{
		normalizer: deps.Normalizer,
		extractor:  deps.Extractor,
		matcher:    deps.Matcher,
		renderer:   deps.Renderer,
		classifier: deps.Classifier,
		store:      deps.Store,
		cache:      deps.Cache,
		queue:      deps.Queue,
		audit:      deps.Audit,
		validator:  deps.Validator,
		logger:     deps.Logger,
		config:     cfg,
		sem:        make(chan struct{}, cfg.MaxConcurrent),
	}
}

// GetService 按配置装配默认服务实例
func GetService(ctx context.Context, log logger.Logger) (Service, error) {
	engineCfg := config.GetEngineConfig()

	store, err := storage.NewStorage(storage.StorageType(engineCfg.StorageBackend), log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	sessionCache, err := cache.NewCache(cache.CacheType(engineCfg.CacheBackend), log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	q, err := queue.GetQueue()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	classifier, err := classify.NewClassifier(ctx, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize classifier: %w", err)
	}

	deps := &Deps{
		Normalizer: normalize.New(log, engineCfg),
		Extractor:  ocr.NewExtractor(log, ocr.NewTesseractEngine(), engineCfg),
		Matcher:    match.NewMatcher(log, engineCfg),
		Renderer:   render.NewRenderer(log, engineCfg),
		Classifier: classifier,
		Store:      store,
		Cache:      sessionCache,
		Queue:      q,
		Audit:      audit.NewWriter(store, log),
		Validator: validator.NewDocumentValidator(log, &validator.ValidatorConfig{
			MaxFileSize: engineCfg.MaxFileSize,
		}),
		Logger: log,
	}
	cfg := &ServiceConfig{
		MaxConcurrent:     engineCfg.MaxConcurrentDocs,
		RetentionPeriod:   engineCfg.RetentionPeriod(),
		ClassifierBackend: config.GetGeminiConfig().Backend,
	}
	return NewService(deps, cfg), nil
}

// Upload 校验并归一化上传,OCR 后缓存会话,原件入库
func (s *RedactionService) Upload(ctx context.Context, in *UploadInput) (*models.Document, error) {
	s.logger.Info("Starting document upload",
		logger.String("filename", in.Filename),
		logger.Int("size", len(in.Data)),
	)

	res := s.validator.ValidateUpload(in.Filename, in.Data)
	if !res.IsValid {
		return nil, fmt.Errorf("%s: %w", res.FirstError(), models.ErrUnsupportedFormat)
	}
	language, err := validator.NormalizeLanguage(in.Language)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, models.ErrUnsupportedFormat)
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	doc, err := s.normalizer.Normalize(ctx, in.Data, res.FileInfo.MimeType)
	if err != nil {
		return nil, err
	}
	doc.ID = uuid.New().String() + res.FileInfo.Extension
	doc.OriginalFilename = in.Filename
	doc.DocumentType = in.DocumentType
	doc.Language = language

	if err := s.extractor.ExtractTokens(ctx, doc, language); err != nil {
		return nil, err
	}

	// 原件保留到保留期结束,脱敏渲染要在原始字节上进行
	if _, err := s.store.Store(ctx, bytes.NewReader(in.Data), doc.ID); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	s.cacheSession(ctx, doc)
	s.scheduleExpiry(ctx, doc.ID, []string{doc.ID}, []string{sessionKey(doc.ID)})

	s.logger.Info("Document uploaded",
		logger.String("fileId", doc.ID),
		logger.Int("pages", len(doc.Pages)),
		logger.Int("tokens", doc.TokenCount()),
	)
	return doc, nil
}

// Redact 解析意图、渲染产物并发布。渲染失败不发布任何内容
func (s *RedactionService) Redact(ctx context.Context, req *models.RedactionRequest) (*models.RedactedDocument, error) {
	if req == nil || req.FileID == "" {
		return nil, fmt.Errorf("missing file id: %w", models.ErrNotFound)
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	doc, original, err := s.loadDocument(ctx, req.FileID, req.Language)
	if err != nil {
		return nil, err
	}

	plan, err := s.matcher.Resolve(doc, req)
	if err != nil {
		return nil, err
	}

	output, err := s.renderer.Apply(ctx, doc, original, plan.Fields)
	if err != nil {
		return nil, err
	}

	redactedID := "redacted_" + doc.ID
	if _, err := s.store.Store(ctx, bytes.NewReader(output), redactedID); err != nil {
		return nil, fmt.Errorf("failed to store artifact: %w", err)
	}

	redacted := &models.RedactedDocument{
		ID:              redactedID,
		SourceID:        doc.ID,
		FileType:        doc.FileType,
		PageCount:       len(doc.Pages),
		TotalRedactions: plan.TotalRedactions(),
		Method:          plan.Method,
		SearchMatches:   plan.SearchMatches,
		CreatedAt:       time.Now(),
	}

	// 审计清单失败不回滚已发布的产物
	if err := s.audit.Write(ctx, audit.BuildManifest(redacted, plan.Fields)); err != nil {
		s.logger.Warn("Failed to write audit manifest",
			logger.String("redactedFileId", redactedID),
			logger.Error(err),
		)
	}

	s.scheduleExpiry(ctx, redactedID, []string{redactedID, audit.ManifestKey(redactedID)}, nil)

	s.logger.Info("Redaction completed",
		logger.String("fileId", doc.ID),
		logger.String("redactedFileId", redactedID),
		logger.String("method", plan.Method),
		logger.Int("redactions", plan.TotalRedactions()),
	)
	return redacted, nil
}

// Analyze 把会话文档交给 AI 分类器,输出与手动选择同构的字段
func (s *RedactionService) Analyze(ctx context.Context, fileID, documentType string) (*classify.Result, error) {
	if fileID == "" {
		return nil, fmt.Errorf("missing file id: %w", models.ErrNotFound)
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	doc, original, err := s.loadDocument(ctx, fileID, "")
	if err != nil {
		return nil, err
	}
	if documentType != "" {
		doc.DocumentType = documentType
	}

	// Textract 走的是页面图像而不是 token 文本
	if s.config.ClassifierBackend == "textract" {
		s.ensureRasters(ctx, doc, original)
	}

	result, err := s.classifier.Analyze(ctx, doc)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Document analyzed",
		logger.String("fileId", fileID),
		logger.String("analysisType", result.AnalysisType),
		logger.Int("fields", len(result.Fields)),
	)
	return result, nil
}

// Download 取回原件或脱敏产物
func (s *RedactionService) Download(ctx context.Context, fileID string) (io.ReadCloser, string, error) {
	if !validFileID(fileID) {
		return nil, "", fmt.Errorf("file %s: %w", fileID, models.ErrNotFound)
	}

	reader, err := s.store.Get(ctx, fileID)
	if err != nil {
		if storage.IsNotExist(err) {
			return nil, "", fmt.Errorf("file %s: %w", fileID, models.ErrNotFound)
		}
		return nil, "", fmt.Errorf("failed to get file: %w", err)
	}
	return reader, validator.MimeForExtension(fileID), nil
}

func (s *RedactionService) Close() error {
	if c, ok := s.classifier.(io.Closer); ok {
		_ = c.Close()
	}
	return s.queue.Close()
}

// loadDocument 取回原始字节和会话文档。缓存未命中或损坏时
// 从原件重建:重新归一化并再跑一遍 OCR
func (s *RedactionService) loadDocument(ctx context.Context, fileID, language string) (*models.Document, []byte, error) {
	if !validFileID(fileID) {
		return nil, nil, fmt.Errorf("file %s: %w", fileID, models.ErrNotFound)
	}

	reader, err := s.store.Get(ctx, fileID)
	if err != nil {
		if storage.IsNotExist(err) {
			return nil, nil, fmt.Errorf("file %s: %w", fileID, models.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("failed to get file: %w", err)
	}
	defer reader.Close()
	original, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read file: %w", err)
	}

	if data, err := s.cache.Get(ctx, sessionKey(fileID)); err == nil {
		var doc models.Document
		if err := json.Unmarshal(data, &doc); err == nil {
			attachRaster(&doc, original)
			return &doc, original, nil
		}
		s.logger.Warn("Corrupt session entry, rebuilding",
			logger.String("fileId", fileID),
		)
	} else if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("Session cache unavailable",
			logger.String("fileId", fileID),
			logger.Error(err),
		)
	}

	doc, err := s.rebuild(ctx, fileID, original, language)
	if err != nil {
		return nil, nil, err
	}
	return doc, original, nil
}

func (s *RedactionService) rebuild(ctx context.Context, fileID string, original []byte, language string) (*models.Document, error) {
	if language == "" {
		language = "eng"
	}

	doc, err := s.normalizer.Normalize(ctx, original, "")
	if err != nil {
		return nil, err
	}
	doc.ID = fileID
	doc.OriginalFilename = fileID
	doc.Language = language

	if err := s.extractor.ExtractTokens(ctx, doc, language); err != nil {
		return nil, err
	}

	s.cacheSession(ctx, doc)
	s.logger.Info("Session rebuilt from storage",
		logger.String("fileId", fileID),
		logger.Int("tokens", doc.TokenCount()),
	)
	return doc, nil
}

// cacheSession 会话条目不含栅格,读取侧按需重新挂载
func (s *RedactionService) cacheSession(ctx context.Context, doc *models.Document) {
	data, err := json.Marshal(doc)
	if err != nil {
		s.logger.Warn("Failed to marshal session", logger.Error(err))
		return
	}
	if err := s.cache.Set(ctx, sessionKey(doc.ID), data, s.config.SessionTTL); err != nil {
		s.logger.Warn("Failed to cache session",
			logger.String("fileId", doc.ID),
			logger.Error(err),
		)
	}
}

// scheduleExpiry 排期失败只降级为警告,兜底扫描仍会清理
func (s *RedactionService) scheduleExpiry(ctx context.Context, fileID string, storageKeys, cacheKeys []string) {
	task := &queue.ExpireTask{
		FileID:      fileID,
		StorageKeys: storageKeys,
		CacheKeys:   cacheKeys,
	}
	if err := s.queue.EnqueueExpiry(ctx, task, s.config.RetentionPeriod); err != nil {
		s.logger.Warn("Failed to schedule expiry",
			logger.String("fileId", fileID),
			logger.Error(err),
		)
	}
}

// ensureRasters 会话缓存不带栅格,需要时从原件重建
func (s *RedactionService) ensureRasters(ctx context.Context, doc *models.Document, original []byte) {
	missing := false
	for i := range doc.Pages {
		if len(doc.Pages[i].Raster) == 0 {
			missing = true
			break
		}
	}
	if !missing {
		return
	}

	fresh, err := s.normalizer.Normalize(ctx, original, "")
	if err != nil {
		s.logger.Warn("Failed to rebuild rasters",
			logger.String("fileId", doc.ID),
			logger.Error(err),
		)
		return
	}
	for i := range doc.Pages {
		if i < len(fresh.Pages) {
			doc.Pages[i].Raster = fresh.Pages[i].Raster
		}
	}
}

// attachRaster 图像容器的栅格就是原始字节
func attachRaster(doc *models.Document, original []byte) {
	if doc.FileType == models.Image && len(doc.Pages) == 1 {
		doc.Pages[0].Raster = original
	}
}

func (s *RedactionService) acquire(ctx context.Context) (func(), error) {
	select {
	case s.sem <- struct{}{}:
		return func() { <-s.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func sessionKey(fileID string) string {
	return fmt.Sprintf("document_session:%s", fileID)
}

// validFileID 标识不允许路径成分,未知标识一律按不存在处理
func validFileID(id string) bool {
	if id == "" || strings.Contains(id, "..") {
		return false
	}
	return !strings.ContainsAny(id, "/\\")
}
