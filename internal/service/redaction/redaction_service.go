package redaction

import (
    "context"
    "io"

    "github.com/docshield/document-redactor/internal/classify"
    "github.com/docshield/document-redactor/internal/models"
)

// UploadInput 一次上传的全部输入
type UploadInput struct {
    Filename     string
    Data         []byte
    DocumentType string
    Language     string
}

type Service interface {
    Upload(ctx context.Context, in *UploadInput) (*models.Document, error)
    Redact(ctx context.Context, req *models.RedactionRequest) (*models.RedactedDocument, error)
    Analyze(ctx context.Context, fileID, documentType string) (*classify.Result, error)
    Download(ctx context.Context, fileID string) (io.ReadCloser, string, error)
    Close() error
}
