package redaction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"

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
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (s *memStore) Store(ctx context.Context, reader io.Reader, filename string) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[filename] = data
	return filename, nil
}

func (s *memStore) Get(ctx context.Context, fileID string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[fileID]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", fileID, fs.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, id)
	return nil
}

func (s *memStore) CleanupBefore(ctx context.Context, threshold time.Time) error {
	return nil
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks []*queue.ExpireTask
}

func (q *fakeQueue) EnqueueExpiry(ctx context.Context, task *queue.ExpireTask, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *fakeQueue) Close() error { return nil }

type fakeEngine struct {
	words []ocr.Word
}

func (e *fakeEngine) Recognize(ctx context.Context, raster []byte, language string) ([]ocr.Word, error) {
	return e.words, nil
}

type fakeClassifier struct {
	result     *classify.Result
	err        error
	gotDocType string
}

func (c *fakeClassifier) Analyze(ctx context.Context, doc *models.Document) (*classify.Result, error) {
	c.gotDocType = doc.DocumentType
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}

type testEnv struct {
	svc   Service
	store *memStore
	cache *cache.MemoryCache
	queue *fakeQueue
	cls   *fakeClassifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.NewTestLogger()
	engineCfg := &config.EngineConfig{
		RasterDPI:           100,
		OcrConfidenceCutoff: 60,
		MergeIoUThreshold:   0.5,
		MaxFileSize:         1 << 20,
		MaxConcurrentDocs:   2,
		PageWorkers:         2,
		OcrPageTimeoutSec:   10,
		RenderTimeoutSec:    10,
		RetentionHours:      1,
	}
	store := newMemStore()
	sessionCache := cache.NewMemoryCache()
	q := &fakeQueue{}
	cls := &fakeClassifier{result: &classify.Result{AnalysisType: "ai"}}

	engine := &fakeEngine{words: []ocr.Word{
		{Text: "John", Box: models.Box{X: 10, Y: 10, Width: 40, Height: 12}, Confidence: 90},
		{Text: "Smith", Box: models.Box{X: 55, Y: 10, Width: 45, Height: 12}, Confidence: 90},
		{Text: "1234", Box: models.Box{X: 10, Y: 40, Width: 30, Height: 12}, Confidence: 95},
	}}

	deps := &Deps{
		Normalizer: normalize.New(log, engineCfg),
		Extractor:  ocr.NewExtractor(log, engine, engineCfg),
		Matcher:    match.NewMatcher(log, engineCfg),
		Renderer:   render.NewRenderer(log, engineCfg),
		Classifier: cls,
		Store:      store,
		Cache:      sessionCache,
		Queue:      q,
		Audit:      audit.NewWriter(store, log),
		Validator: validator.NewDocumentValidator(log, &validator.ValidatorConfig{
			MaxFileSize: engineCfg.MaxFileSize,
		}),
		Logger: log,
	}
	svc := NewService(deps, &ServiceConfig{
		MaxConcurrent:     2,
		SessionTTL:        time.Minute,
		RetentionPeriod:   time.Hour,
		ClassifierBackend: "gemini",
	})
	return &testEnv{svc: svc, store: store, cache: sessionCache, queue: q, cls: cls}
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := imaging.New(200, 100, color.White)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func uploadPNG(t *testing.T, env *testEnv) *models.Document {
	t.Helper()
	doc, err := env.svc.Upload(context.Background(), &UploadInput{
		Filename: "id-card.png",
		Data:     testPNG(t),
	})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	return doc
}

func TestUploadStoresOriginalAndCachesSession(t *testing.T) {
	env := newTestEnv(t)
	data := testPNG(t)

	doc, err := env.svc.Upload(context.Background(), &UploadInput{
		Filename: "id-card.png",
		Data:     data,
		Language: "",
	})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if doc.Language != "eng" {
		t.Errorf("Language = %q, want eng", doc.Language)
	}
	if doc.OriginalFilename != "id-card.png" {
		t.Errorf("OriginalFilename = %q", doc.OriginalFilename)
	}
	if len(doc.Pages) != 1 || len(doc.Pages[0].Tokens) != 3 {
		t.Fatalf("pages/tokens = %d/%d, want 1/3", len(doc.Pages), doc.TokenCount())
	}

	stored, ok := env.store.objects[doc.ID]
	if !ok || !bytes.Equal(stored, data) {
		t.Error("original bytes not stored under file id")
	}
	if _, err := env.cache.Get(context.Background(), sessionKey(doc.ID)); err != nil {
		t.Errorf("session not cached: %v", err)
	}
	if len(env.queue.tasks) != 1 {
		t.Fatalf("expiry tasks = %d, want 1", len(env.queue.tasks))
	}
	task := env.queue.tasks[0]
	if task.FileID != doc.ID || len(task.StorageKeys) != 1 || task.StorageKeys[0] != doc.ID {
		t.Errorf("expiry task = %+v", task)
	}
	if len(task.CacheKeys) != 1 || task.CacheKeys[0] != sessionKey(doc.ID) {
		t.Errorf("expiry cache keys = %v", task.CacheKeys)
	}
}

func TestUploadRejectsOversizeFile(t *testing.T) {
	env := newTestEnv(t)
	data := testPNG(t)

	big := make([]byte, (1<<20)+1)
	copy(big, data)
	_, err := env.svc.Upload(context.Background(), &UploadInput{Filename: "big.png", Data: big})
	if !errors.Is(err, models.ErrUnsupportedFormat) {
		t.Errorf("oversize upload error = %v, want ErrUnsupportedFormat", err)
	}
	if len(env.store.objects) != 0 {
		t.Error("rejected upload must not persist anything")
	}
}

func TestUploadRejectsUnknownLanguage(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Upload(context.Background(), &UploadInput{
		Filename: "id-card.png",
		Data:     testPNG(t),
		Language: "xyz",
	})
	if !errors.Is(err, models.ErrUnsupportedFormat) {
		t.Errorf("unknown language error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestRedactProducesArtifactAndManifest(t *testing.T) {
	env := newTestEnv(t)
	doc := uploadPNG(t, env)

	redacted, err := env.svc.Redact(context.Background(), &models.RedactionRequest{
		FileID: doc.ID,
		Fields: []models.Field{
			{Box: models.Box{X: 10, Y: 10, Width: 90, Height: 12}, Page: 0, Origin: models.OriginManualSelect},
		},
		DefaultType: models.RedactionPermanent,
	})
	if err != nil {
		t.Fatalf("Redact failed: %v", err)
	}

	if redacted.ID != "redacted_"+doc.ID {
		t.Errorf("redacted id = %q", redacted.ID)
	}
	if redacted.TotalRedactions != 1 {
		t.Errorf("TotalRedactions = %d, want 1", redacted.TotalRedactions)
	}
	if redacted.Method != "manual" {
		t.Errorf("Method = %q, want manual", redacted.Method)
	}

	artifact, ok := env.store.objects[redacted.ID]
	if !ok {
		t.Fatal("artifact not stored")
	}
	img, err := imaging.Decode(bytes.NewReader(artifact))
	if err != nil {
		t.Fatalf("artifact decode: %v", err)
	}
	c := color.NRGBAModel.Convert(img.At(15, 15)).(color.NRGBA)
	if c.R != 0 || c.G != 0 || c.B != 0 {
		t.Errorf("pixel inside permanent area = %+v, want black", c)
	}

	if _, ok := env.store.objects[audit.ManifestKey(redacted.ID)]; !ok {
		t.Error("audit manifest not stored beside artifact")
	}

	if len(env.queue.tasks) != 2 {
		t.Fatalf("expiry tasks = %d, want 2", len(env.queue.tasks))
	}
	artifactTask := env.queue.tasks[1]
	if artifactTask.FileID != redacted.ID {
		t.Errorf("artifact expiry file id = %q", artifactTask.FileID)
	}
	wantKeys := []string{redacted.ID, audit.ManifestKey(redacted.ID)}
	if len(artifactTask.StorageKeys) != 2 ||
		artifactTask.StorageKeys[0] != wantKeys[0] ||
		artifactTask.StorageKeys[1] != wantKeys[1] {
		t.Errorf("artifact expiry keys = %v, want %v", artifactTask.StorageKeys, wantKeys)
	}
}

func TestRedactRebuildsSessionOnCacheMiss(t *testing.T) {
	env := newTestEnv(t)
	doc := uploadPNG(t, env)

	if err := env.cache.Delete(context.Background(), sessionKey(doc.ID)); err != nil {
		t.Fatalf("cache delete: %v", err)
	}

	redacted, err := env.svc.Redact(context.Background(), &models.RedactionRequest{
		FileID: doc.ID,
		SearchTerms: []models.SearchTerm{
			{Text: "John", RedactionType: models.RedactionTemporary},
		},
		DefaultType: models.RedactionTemporary,
	})
	if err != nil {
		t.Fatalf("Redact after cache miss failed: %v", err)
	}
	if redacted.TotalRedactions != 1 {
		t.Errorf("TotalRedactions = %d, want 1", redacted.TotalRedactions)
	}
	if len(redacted.SearchMatches) != 1 || redacted.SearchMatches[0].Count != 1 {
		t.Errorf("SearchMatches = %+v", redacted.SearchMatches)
	}
	// 重建应当回填会话缓存
	if _, err := env.cache.Get(context.Background(), sessionKey(doc.ID)); err != nil {
		t.Errorf("session not re-cached after rebuild: %v", err)
	}
}

func TestRedactUnknownFileID(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Redact(context.Background(), &models.RedactionRequest{FileID: "missing.png"})
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown id error = %v, want ErrNotFound", err)
	}

	_, err = env.svc.Redact(context.Background(), &models.RedactionRequest{FileID: "../secret.png"})
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("path-like id error = %v, want ErrNotFound", err)
	}
}

func TestAnalyzeForwardsDocumentType(t *testing.T) {
	env := newTestEnv(t)
	doc := uploadPNG(t, env)
	env.cls.result = &classify.Result{
		Fields: []models.Field{
			{ID: "ai-0-0", Text: "John", Category: "Name", Confidence: 92, Page: 0, Origin: models.OriginAISuggested},
		},
		AnalysisType: "ai",
	}

	result, err := env.svc.Analyze(context.Background(), doc.ID, "aadhar")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if env.cls.gotDocType != "aadhar" {
		t.Errorf("classifier saw document type %q, want aadhar", env.cls.gotDocType)
	}
	if result.AnalysisType != "ai" || len(result.Fields) != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestAnalyzeSurfacesClassifierFailure(t *testing.T) {
	env := newTestEnv(t)
	doc := uploadPNG(t, env)
	env.cls.err = fmt.Errorf("backend down: %w", models.ErrAnalysisUnavailable)

	_, err := env.svc.Analyze(context.Background(), doc.ID, "")
	if !errors.Is(err, models.ErrAnalysisUnavailable) {
		t.Errorf("error = %v, want ErrAnalysisUnavailable", err)
	}
}

func TestDownloadReturnsStoredBytes(t *testing.T) {
	env := newTestEnv(t)
	data := testPNG(t)
	doc, err := env.svc.Upload(context.Background(), &UploadInput{Filename: "scan.png", Data: data})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	reader, mime, err := env.svc.Download(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	defer reader.Close()
	got, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("downloaded bytes differ from stored original")
	}
	if mime != "image/png" {
		t.Errorf("mime = %q, want image/png", mime)
	}

	if _, _, err := env.svc.Download(context.Background(), "nope.png"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("missing file error = %v, want ErrNotFound", err)
	}
}
