package handlers

import (
    "errors"
    "fmt"
    "io"
    "net/http"

    "github.com/gin-gonic/gin"

    "github.com/docshield/document-redactor/config"
    "github.com/docshield/document-redactor/internal/models"
    "github.com/docshield/document-redactor/internal/service/redaction"
    "github.com/docshield/document-redactor/pkg/converters"
    "github.com/docshield/document-redactor/pkg/logger"
)

type RedactionHandler struct {
    service redaction.Service
    logger  logger.Logger
}

func NewRedactionHandler(service redaction.Service, log logger.Logger) *RedactionHandler {
    return &RedactionHandler{
        service: service,
        logger:  log,
    }
}

// Upload 接收上传并返回定位 token
func (h *RedactionHandler) Upload(c *gin.Context) {
    file, header, err := c.Request.FormFile("file")
    if err != nil {
        h.respondError(c, http.StatusBadRequest, "No file part", err)
        return
    }
    defer file.Close()

    if header.Filename == "" {
        h.respondError(c, http.StatusBadRequest, "No selected file", nil)
        return
    }

    data, err := io.ReadAll(file)
    if err != nil {
        h.respondError(c, http.StatusBadRequest, "Failed to read upload", err)
        return
    }

    doc, err := h.service.Upload(c.Request.Context(), &redaction.UploadInput{
        Filename:     header.Filename,
        Data:         data,
        DocumentType: c.DefaultPostForm("documentType", "unknown"),
        Language:     c.DefaultPostForm("language", "eng"),
    })
    if err != nil {
        h.serviceError(c, err)
        return
    }

    c.JSON(http.StatusOK, converters.ToUploadResponse(doc))
}

// Redact 应用脱敏计划并发布产物
func (h *RedactionHandler) Redact(c *gin.Context) {
    var req converters.RedactRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        h.respondError(c, http.StatusBadRequest, "Invalid request body", err)
        return
    }
    if req.FileID == "" {
        h.respondError(c, http.StatusBadRequest, "No file_id provided", nil)
        return
    }

    redacted, err := h.service.Redact(c.Request.Context(), converters.ToRedactionRequest(&req))
    if err != nil {
        h.serviceError(c, err)
        return
    }

    c.JSON(http.StatusOK, converters.ToRedactResponse(redacted))
}

// Download 取回原件或脱敏产物
func (h *RedactionHandler) Download(c *gin.Context) {
    fileID := c.Param("fileId")
    if fileID == "" {
        h.respondError(c, http.StatusBadRequest, "No file_id provided", nil)
        return
    }

    reader, mime, err := h.service.Download(c.Request.Context(), fileID)
    if err != nil {
        h.serviceError(c, err)
        return
    }
    defer reader.Close()

    data, err := io.ReadAll(reader)
    if err != nil {
        h.respondError(c, http.StatusInternalServerError, "Failed to read file", err)
        return
    }

    c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", fileID))
    c.Data(http.StatusOK, mime, data)
}

// Analyze 把文档交给 AI 分类器识别敏感字段
func (h *RedactionHandler) Analyze(c *gin.Context) {
    var req converters.AnalyzeRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        h.respondError(c, http.StatusBadRequest, "Invalid request body", err)
        return
    }
    if req.FileID == "" {
        h.respondError(c, http.StatusBadRequest, "No file_id provided", nil)
        return
    }

    result, err := h.service.Analyze(c.Request.Context(), req.FileID, req.DocumentType)
    if err != nil {
        h.serviceError(c, err)
        return
    }

    c.JSON(http.StatusOK, converters.ToAnalyzeResponse(result.Fields, result.AnalysisType))
}

// Languages 返回 OCR 语言目录
func (h *RedactionHandler) Languages(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{
        "languages":          config.SupportedLanguages(),
        "combined_languages": config.CombinedLanguages(),
    })
}

// serviceError 把错误分类映射到响应状态
func (h *RedactionHandler) serviceError(c *gin.Context, err error) {
    switch {
    case errors.Is(err, models.ErrNotFound):
        h.respondError(c, http.StatusNotFound, "File not found", err)
    case errors.Is(err, models.ErrUnsupportedFormat):
        h.respondError(c, http.StatusBadRequest, err.Error(), nil)
    case errors.Is(err, models.ErrCorruptDocument):
        h.respondError(c, http.StatusBadRequest, err.Error(), nil)
    case errors.Is(err, models.ErrAnalysisUnavailable):
        h.respondError(c, http.StatusServiceUnavailable, "AI analysis unavailable", err)
    case errors.Is(err, models.ErrRender):
        h.respondError(c, http.StatusInternalServerError, "Failed to apply redactions", err)
    default:
        h.respondError(c, http.StatusInternalServerError, "Internal server error", err)
    }
}

// respondError 统一错误处理
func (h *RedactionHandler) respondError(c *gin.Context, status int, message string, err error) {
    h.logger.Error(message,
        logger.String("path", c.Request.URL.Path),
        logger.Int("status", status),
        logger.Error(err),
    )
    c.JSON(status, gin.H{"error": message})
}
