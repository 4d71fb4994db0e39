package validator

import (
    "crypto/sha256"
    "encoding/hex"
    "fmt"
    "path/filepath"
    "strings"

    "github.com/docshield/document-redactor/config"
    "github.com/docshield/document-redactor/internal/normalize"
    "github.com/docshield/document-redactor/pkg/logger"
)

// DocumentValidator 上传前置校验:大小上限、扩展名白名单、
// 嗅探 MIME 与扩展名一致。通过校验的内容才进入归一化
type DocumentValidator struct {
    logger logger.Logger
    config *ValidatorConfig
}

// ValidatorConfig 验证器配置
type ValidatorConfig struct {
    MaxFileSize  int64             // 最大文件大小(字节)
    AllowedTypes map[string]string // 扩展名 → 规范 MIME
}

// ValidationResult 验证结果
type ValidationResult struct {
    IsValid  bool              `json:"isValid"`
    Errors   []ValidationError `json:"errors,omitempty"`
    FileInfo FileInfo          `json:"fileInfo"`
}

// ValidationError 验证错误
type ValidationError struct {
    Code    string `json:"code"`
    Message string `json:"message"`
    Field   string `json:"field,omitempty"`
}

// FileInfo 文件信息
type FileInfo struct {
    Filename  string `json:"filename"`
    Size      int64  `json:"size"`
    MimeType  string `json:"mimeType"`
    Extension string `json:"extension"`
    Hash      string `json:"hash"`
}

// 默认允许的容器类型
var defaultAllowedTypes = map[string]string{
    ".pdf":  "application/pdf",
    ".png":  "image/png",
    ".jpg":  "image/jpeg",
    ".jpeg": "image/jpeg",
    ".tif":  "image/tiff",
    ".tiff": "image/tiff",
    ".bmp":  "image/bmp",
}

// NewDocumentValidator 创建新的文档验证器
func NewDocumentValidator(log logger.Logger, cfg *ValidatorConfig) *DocumentValidator {
    if cfg == nil {
        cfg = &ValidatorConfig{MaxFileSize: 50 * 1024 * 1024}
    }
    if cfg.AllowedTypes == nil {
        cfg.AllowedTypes = defaultAllowedTypes
    }
    return &DocumentValidator{
        logger: log,
        config: cfg,
    }
}

// ValidateUpload 对一次上传做全部前置校验
func (v *DocumentValidator) ValidateUpload(filename string, data []byte) *ValidationResult {
    sum := sha256.Sum256(data)
    result := &ValidationResult{
        IsValid: true,
        FileInfo: FileInfo{
            Filename:  filename,
            Size:      int64(len(data)),
            Extension: strings.ToLower(filepath.Ext(filename)),
            Hash:      hex.EncodeToString(sum[:]),
        },
    }

    if result.FileInfo.Size == 0 {
        result.fail("EMPTY_FILE", "file is empty", "size")
        return result
    }
    if result.FileInfo.Size > v.config.MaxFileSize {
        result.fail("FILE_TOO_LARGE",
            fmt.Sprintf("file size exceeds maximum limit of %d bytes", v.config.MaxFileSize), "size")
    }

    wantMime, ok := v.config.AllowedTypes[result.FileInfo.Extension]
    if !ok {
        result.fail("INVALID_FILE_TYPE",
            fmt.Sprintf("file type %s is not allowed", result.FileInfo.Extension), "extension")
        return result
    }

    sniffed, ok := normalize.SniffMime(data)
    if !ok {
        result.fail("UNKNOWN_CONTENT", "file content is not a recognized document format", "mimeType")
        return result
    }
    result.FileInfo.MimeType = sniffed

    if normalize.CanonicalMime(sniffed) != normalize.CanonicalMime(wantMime) {
        result.fail("MIME_MISMATCH",
            fmt.Sprintf("content is %s but extension %s declares %s",
                sniffed, result.FileInfo.Extension, wantMime), "mimeType")
    }

    if !result.IsValid {
        v.logger.Warn("Upload rejected",
            logger.String("filename", filename),
            logger.String("reason", result.Errors[0].Message),
        )
    }
    return result
}

func (r *ValidationResult) fail(code, message, field string) {
    r.IsValid = false
    r.Errors = append(r.Errors, ValidationError{Code: code, Message: message, Field: field})
}

// FirstError 返回首个校验错误消息,用于构造响应
func (r *ValidationResult) FirstError() string {
    if len(r.Errors) == 0 {
        return ""
    }
    return r.Errors[0].Message
}

// MimeForExtension 下载响应的 Content-Type 按扩展名解析
func MimeForExtension(filename string) string {
    if mime, ok := defaultAllowedTypes[strings.ToLower(filepath.Ext(filename))]; ok {
        return mime
    }
    return "application/octet-stream"
}

// NormalizeLanguage 规范化语言码,空值退回 eng,未知语言报错
func NormalizeLanguage(code string) (string, error) {
    code = strings.TrimSpace(code)
    if code == "" {
        return "eng", nil
    }
    if !config.IsLanguageSupported(code) {
        return "", fmt.Errorf("unsupported language %q", code)
    }
    return code, nil
}
