package validator

import (
	"bytes"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/docshield/document-redactor/pkg/logger"
)

func testValidator(maxSize int64) *DocumentValidator {
	return NewDocumentValidator(logger.NewTestLogger(), &ValidatorConfig{MaxFileSize: maxSize})
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestValidateUploadAcceptsPng(t *testing.T) {
	v := testValidator(1 << 20)
	res := v.ValidateUpload("scan.png", pngBytes(t))
	if !res.IsValid {
		t.Fatalf("expected valid result, got errors %+v", res.Errors)
	}
	if res.FileInfo.MimeType != "image/png" {
		t.Errorf("MimeType = %q, want image/png", res.FileInfo.MimeType)
	}
	if res.FileInfo.Extension != ".png" {
		t.Errorf("Extension = %q, want .png", res.FileInfo.Extension)
	}
	if res.FileInfo.Hash == "" {
		t.Error("expected content hash to be set")
	}
}

func TestValidateUploadRejectsOversize(t *testing.T) {
	data := pngBytes(t)
	v := testValidator(int64(len(data)) - 1)
	res := v.ValidateUpload("scan.png", data)
	if res.IsValid {
		t.Fatal("expected oversize upload to be rejected")
	}
	if res.Errors[0].Code != "FILE_TOO_LARGE" {
		t.Errorf("code = %q, want FILE_TOO_LARGE", res.Errors[0].Code)
	}
}

func TestValidateUploadRejectsUnknownExtension(t *testing.T) {
	v := testValidator(1 << 20)
	res := v.ValidateUpload("report.docx", []byte("PK\x03\x04 not really"))
	if res.IsValid {
		t.Fatal("expected unknown extension to be rejected")
	}
	if res.Errors[0].Code != "INVALID_FILE_TYPE" {
		t.Errorf("code = %q, want INVALID_FILE_TYPE", res.Errors[0].Code)
	}
}

func TestValidateUploadRejectsMimeMismatch(t *testing.T) {
	v := testValidator(1 << 20)
	// PNG 字节伪装成 PDF 扩展名
	res := v.ValidateUpload("scan.pdf", pngBytes(t))
	if res.IsValid {
		t.Fatal("expected mismatched content to be rejected")
	}
	if res.Errors[0].Code != "MIME_MISMATCH" {
		t.Errorf("code = %q, want MIME_MISMATCH", res.Errors[0].Code)
	}
	if !strings.Contains(res.FirstError(), "image/png") {
		t.Errorf("error %q should name the sniffed type", res.FirstError())
	}
}

func TestValidateUploadRejectsEmptyFile(t *testing.T) {
	v := testValidator(1 << 20)
	res := v.ValidateUpload("scan.png", nil)
	if res.IsValid {
		t.Fatal("expected empty upload to be rejected")
	}
	if res.Errors[0].Code != "EMPTY_FILE" {
		t.Errorf("code = %q, want EMPTY_FILE", res.Errors[0].Code)
	}
}

func TestMimeForExtension(t *testing.T) {
	if got := MimeForExtension("redacted_ab12.pdf"); got != "application/pdf" {
		t.Errorf("pdf mime = %q", got)
	}
	if got := MimeForExtension("redacted_ab12.jpeg"); got != "image/jpeg" {
		t.Errorf("jpeg mime = %q", got)
	}
	if got := MimeForExtension("blob.bin"); got != "application/octet-stream" {
		t.Errorf("fallback mime = %q", got)
	}
}

func TestNormalizeLanguage(t *testing.T) {
	if code, err := NormalizeLanguage(""); err != nil || code != "eng" {
		t.Errorf("empty language = (%q, %v), want (eng, nil)", code, err)
	}
	if code, err := NormalizeLanguage("hin"); err != nil || code != "hin" {
		t.Errorf("hin = (%q, %v), want (hin, nil)", code, err)
	}
	if code, err := NormalizeLanguage("eng+tam"); err != nil || code != "eng+tam" {
		t.Errorf("combined = (%q, %v), want (eng+tam, nil)", code, err)
	}
	if _, err := NormalizeLanguage("xyz"); err == nil {
		t.Error("expected unsupported language to be rejected")
	}
}
