package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docshield/document-redactor/internal/classify"
	"github.com/docshield/document-redactor/internal/models"
	"github.com/docshield/document-redactor/internal/service/redaction"
	"github.com/docshield/document-redactor/pkg/converters"
	"github.com/docshield/document-redactor/pkg/logger"
)

type fakeService struct {
	uploadDoc   *models.Document
	uploadErr   error
	gotUpload   *redaction.UploadInput
	redactDoc   *models.RedactedDocument
	redactErr   error
	gotRedact   *models.RedactionRequest
	analyzeRes  *classify.Result
	analyzeErr  error
	downloadVal []byte
	downloadErr error
}

func (s *fakeService) Upload(ctx context.Context, in *redaction.UploadInput) (*models.Document, error) {
	s.gotUpload = in
	if s.uploadErr != nil {
		return nil, s.uploadErr
	}
	return s.uploadDoc, nil
}

func (s *fakeService) Redact(ctx context.Context, req *models.RedactionRequest) (*models.RedactedDocument, error) {
	s.gotRedact = req
	if s.redactErr != nil {
		return nil, s.redactErr
	}
	return s.redactDoc, nil
}

func (s *fakeService) Analyze(ctx context.Context, fileID, documentType string) (*classify.Result, error) {
	if s.analyzeErr != nil {
		return nil, s.analyzeErr
	}
	return s.analyzeRes, nil
}

func (s *fakeService) Download(ctx context.Context, fileID string) (io.ReadCloser, string, error) {
	if s.downloadErr != nil {
		return nil, "", s.downloadErr
	}
	return io.NopCloser(bytes.NewReader(s.downloadVal)), "application/pdf", nil
}

func (s *fakeService) Close() error { return nil }

func testRouter(svc redaction.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewRedactionHandler(svc, logger.NewTestLogger())
	r := gin.New()
	api := r.Group("/api")
	api.POST("/upload", h.Upload)
	api.POST("/redact", h.Redact)
	api.GET("/download/:fileId", h.Download)
	api.POST("/analyze-document", h.Analyze)
	api.GET("/get_supported_languages", h.Languages)
	return r
}

func multipartUpload(t *testing.T, fields map[string]string, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &body, mw.FormDataContentType()
}

func sampleDocument() *models.Document {
	return &models.Document{
		ID:               "ab12.png",
		OriginalFilename: "scan.png",
		FileType:         models.Image,
		MimeType:         "image/png",
		Language:         "eng+tam",
		Pages: []models.Page{
			{
				Index: 0, Width: 200, Height: 100, Scale: 1,
				Tokens: []models.Token{
					{Text: "John", Box: models.Box{X: 10, Y: 10, Width: 40, Height: 12}, Confidence: 91},
					{Text: "Smith", Box: models.Box{X: 55, Y: 10, Width: 45, Height: 12}, Confidence: 88},
				},
			},
		},
		CreatedAt: time.Now(),
	}
}

func TestUploadEndpoint(t *testing.T) {
	svc := &fakeService{uploadDoc: sampleDocument()}
	r := testRouter(svc)

	body, contentType := multipartUpload(t, map[string]string{
		"documentType": "aadhar",
		"language":     "eng+tam",
	}, "scan.png", []byte("fake-image-bytes"))

	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if svc.gotUpload.Filename != "scan.png" || svc.gotUpload.DocumentType != "aadhar" || svc.gotUpload.Language != "eng+tam" {
		t.Errorf("service input = %+v", svc.gotUpload)
	}

	var resp converters.UploadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.FileID != "ab12.png" || resp.PageCount != 1 || len(resp.DataFields) != 2 {
		t.Errorf("response = %+v", resp)
	}
	if resp.DataFields[0].Text != "John" || resp.DataFields[0].Position.X != 10 {
		t.Errorf("first field = %+v", resp.DataFields[0])
	}
}

func TestUploadWithoutFilePart(t *testing.T) {
	r := testRouter(&fakeService{})

	body, contentType := multipartUpload(t, map[string]string{"language": "eng"}, "", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "No file part") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestUploadUnsupportedFormat(t *testing.T) {
	svc := &fakeService{uploadErr: fmt.Errorf("file type .docx is not allowed: %w", models.ErrUnsupportedFormat)}
	r := testRouter(svc)

	body, contentType := multipartUpload(t, nil, "report.docx", []byte("zzzz"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "not allowed") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestRedactEndpointMapsRequest(t *testing.T) {
	svc := &fakeService{redactDoc: &models.RedactedDocument{
		ID:              "redacted_ab12.png",
		SourceID:        "ab12.png",
		TotalRedactions: 2,
		Method:          "mixed",
		SearchMatches:   []models.SearchMatch{{Text: "John", Count: 1}},
	}}
	r := testRouter(svc)

	payload := `{
		"file_id": "ab12.png",
		"redaction_type": "permanent",
		"redactions": [
			{"page": 0, "position": {"x": 10, "y": 10, "width": 40, "height": 12}, "method": "brush", "color": "#FF0000"}
		],
		"text_to_redact": [{"text": "John", "redaction_type": "temporary"}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/redact", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if svc.gotRedact.FileID != "ab12.png" || svc.gotRedact.DefaultType != models.RedactionPermanent {
		t.Errorf("request = %+v", svc.gotRedact)
	}
	if len(svc.gotRedact.Fields) != 1 || svc.gotRedact.Fields[0].Origin != models.OriginManualDraw {
		t.Errorf("fields = %+v", svc.gotRedact.Fields)
	}
	if len(svc.gotRedact.SearchTerms) != 1 || svc.gotRedact.SearchTerms[0].Text != "John" {
		t.Errorf("search terms = %+v", svc.gotRedact.SearchTerms)
	}

	var resp converters.RedactResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RedactedFileID != "redacted_ab12.png" || resp.TotalRedactions != 2 || resp.RedactionMethod != "mixed" {
		t.Errorf("response = %+v", resp)
	}
	if len(resp.SearchMatches) != 1 || resp.SearchMatches[0].Count != 1 {
		t.Errorf("search matches = %+v", resp.SearchMatches)
	}
}

func TestRedactWithoutFileID(t *testing.T) {
	r := testRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodPost, "/api/redact", strings.NewReader(`{"redactions": []}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "No file_id provided") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestRedactUnknownFile(t *testing.T) {
	svc := &fakeService{redactErr: fmt.Errorf("file nope.png: %w", models.ErrNotFound)}
	r := testRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/redact", strings.NewReader(`{"file_id": "nope.png"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if !strings.Contains(w.Body.String(), "File not found") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	svc := &fakeService{analyzeRes: &classify.Result{
		Fields: []models.Field{
			{ID: "ai-0-0", Text: "John Smith", Category: "Name", Confidence: 92, Page: 0,
				Box: models.Box{X: 10, Y: 10, Width: 90, Height: 12}, Origin: models.OriginAISuggested},
		},
		AnalysisType: "ai",
	}}
	r := testRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/analyze-document",
		strings.NewReader(`{"file_id": "ab12.png", "document_type": "aadhar"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp converters.AnalyzeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.AnalysisType != "ai" || len(resp.SensitiveFields) != 1 {
		t.Fatalf("response = %+v", resp)
	}
	f := resp.SensitiveFields[0]
	if f.Category != "Name" || f.AIConfidence != 92 || f.Method != "select" {
		t.Errorf("field = %+v", f)
	}
}

func TestAnalyzeUnavailable(t *testing.T) {
	svc := &fakeService{analyzeErr: fmt.Errorf("gemini timeout: %w", models.ErrAnalysisUnavailable)}
	r := testRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/analyze-document",
		strings.NewReader(`{"file_id": "ab12.png"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestDownloadEndpoint(t *testing.T) {
	svc := &fakeService{downloadVal: []byte("%PDF-1.4 artifact")}
	r := testRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/download/redacted_ab12.pdf", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "application/pdf" {
		t.Errorf("content type = %q", got)
	}
	if got := w.Header().Get("Content-Disposition"); !strings.Contains(got, "redacted_ab12.pdf") {
		t.Errorf("content disposition = %q", got)
	}
	if w.Body.String() != "%PDF-1.4 artifact" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestDownloadMissing(t *testing.T) {
	svc := &fakeService{downloadErr: fmt.Errorf("file nope.pdf: %w", models.ErrNotFound)}
	r := testRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/download/nope.pdf", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestLanguagesEndpoint(t *testing.T) {
	r := testRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodGet, "/api/get_supported_languages", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Languages []struct {
			Code string `json:"code"`
			Name string `json:"name"`
		} `json:"languages"`
		Combined []struct {
			Code string `json:"code"`
		} `json:"combined_languages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Languages) != 6 || resp.Languages[0].Code != "eng" {
		t.Errorf("languages = %+v", resp.Languages)
	}
	if len(resp.Combined) != 5 {
		t.Errorf("combined = %+v", resp.Combined)
	}
}
