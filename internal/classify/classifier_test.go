package classify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/docshield/document-redactor/config"
	"github.com/docshield/document-redactor/internal/models"
	"github.com/docshield/document-redactor/pkg/logger"
)

func classifyDoc(tokens ...models.Token) *models.Document {
	return &models.Document{
		ID:    "doc-1",
		Pages: []models.Page{{Index: 0, Width: 1000, Height: 1400, Tokens: tokens}},
	}
}

func ctok(text string, x float64) models.Token {
	return models.Token{Text: text, Box: models.Box{X: x, Y: 100, Width: 80, Height: 20}, Confidence: 90}
}

func geminiFor(url string) *GeminiClassifier {
	return NewGeminiClassifier(&config.GeminiConfig{
		APIKey:     "test-key",
		Model:      "gemini-2.0-flash",
		Endpoint:   url,
		TimeoutSec: 5,
	}, logger.NewTestLogger())
}

func TestGeminiAnalyzeMapsSuggestionsToTokens(t *testing.T) {
	var gotPath, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-goog-api-key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":
			"Here are the results:\n[{\"text\": \"John Smith\", \"category\": \"Name\", \"confidence\": 92, \"reason\": \"personal name\"}]"
		}]}}]}`))
	}))
	defer server.Close()

	doc := classifyDoc(ctok("John", 100), ctok("Smith", 190), ctok("Invoice", 300))
	result, err := geminiFor(server.URL).Analyze(context.Background(), doc)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if !strings.HasSuffix(gotPath, "/models/gemini-2.0-flash:generateContent") {
		t.Errorf("request path = %q, want generateContent on the configured model", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("X-goog-api-key = %q, want test-key", gotKey)
	}
	if result.AnalysisType != "ai" {
		t.Errorf("AnalysisType = %q, want ai", result.AnalysisType)
	}
	if len(result.Fields) != 2 {
		t.Fatalf("got %d fields, want 2 (John and Smith)", len(result.Fields))
	}
	for _, f := range result.Fields {
		if f.Category != "Name" || f.Origin != models.OriginAISuggested {
			t.Errorf("field %+v, want category Name with ai-suggested origin", f)
		}
		if f.Confidence != 92 {
			t.Errorf("field confidence = %v, want 92", f.Confidence)
		}
	}
	if result.Fields[0].Text != "John" || result.Fields[1].Text != "Smith" {
		t.Errorf("mapped tokens = %q, %q, want John, Smith", result.Fields[0].Text, result.Fields[1].Text)
	}
}

func TestGeminiFallsBackToRegexOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	doc := classifyDoc(ctok("1234", 100), ctok("5678", 190), ctok("9123", 280))
	result, err := geminiFor(server.URL).Analyze(context.Background(), doc)
	if err != nil {
		t.Fatalf("Analyze failed instead of falling back: %v", err)
	}

	if result.AnalysisType != "regex" {
		t.Errorf("AnalysisType = %q, want regex", result.AnalysisType)
	}
	if len(result.Fields) != 3 {
		t.Fatalf("got %d fields, want all three Aadhar segments", len(result.Fields))
	}
	for _, f := range result.Fields {
		if f.Category != "Aadhar Number" {
			t.Errorf("field category = %q, want Aadhar Number", f.Category)
		}
	}
}

func TestGeminiWithoutKeyUsesRegex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request sent although no API key is configured")
	}))
	defer server.Close()

	classifier := NewGeminiClassifier(&config.GeminiConfig{
		Model:      "gemini-2.0-flash",
		Endpoint:   server.URL,
		TimeoutSec: 5,
	}, logger.NewTestLogger())

	result, err := classifier.Analyze(context.Background(), classifyDoc(ctok("hello", 100)))
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if result.AnalysisType != "regex" {
		t.Errorf("AnalysisType = %q, want regex", result.AnalysisType)
	}
}

func TestRegexSuggestions(t *testing.T) {
	text := "Ravi Kumar 1234 5678 9123 ABCDE1234F ravi@example.com 9876543210 12/04/1998"
	byCategory := make(map[string][]Suggestion)
	for _, s := range regexSuggestions(text) {
		byCategory[s.Category] = append(byCategory[s.Category], s)
	}

	tests := []struct {
		category   string
		text       string
		confidence float64
	}{
		{"Name", "Ravi Kumar", 85},
		{"Aadhar Number", "1234 5678 9123", 95},
		{"PAN", "ABCDE1234F", 95},
		{"Email", "ravi@example.com", 90},
		{"Phone Number", "9876543210", 85},
		{"Date of Birth", "12/04/1998", 80},
	}
	for _, tt := range tests {
		got := byCategory[tt.category]
		if len(got) != 1 {
			t.Errorf("%s: got %d matches, want 1", tt.category, len(got))
			continue
		}
		if got[0].Text != tt.text {
			t.Errorf("%s: matched %q, want %q", tt.category, got[0].Text, tt.text)
		}
		if got[0].Confidence != tt.confidence {
			t.Errorf("%s: confidence %v, want %v", tt.category, got[0].Confidence, tt.confidence)
		}
	}
}

func TestExtractJSONArray(t *testing.T) {
	fenced := "Sure, here you go:\n```json\n[{\"text\": \"x\"}]\n```\nLet me know."
	if got := extractJSONArray(fenced); got != `[{"text": "x"}]` {
		t.Errorf("extractJSONArray(fenced) = %q", got)
	}
	if got := extractJSONArray("  no array here  "); got != "no array here" {
		t.Errorf("extractJSONArray(plain) = %q", got)
	}
}

func TestTextMatches(t *testing.T) {
	tests := []struct {
		token      string
		suggestion string
		want       bool
	}{
		{"John", "john", true},
		{"John", "John Smith", true},
		{"John Smith", "Smith", true},
		{"Jhon", "John", true},
		{"Invoice", "John Smith", false},
		{"", "John", false},
	}
	for _, tt := range tests {
		if got := textMatches(tt.token, tt.suggestion); got != tt.want {
			t.Errorf("textMatches(%q, %q) = %v, want %v", tt.token, tt.suggestion, got, tt.want)
		}
	}
}

func TestMapSuggestionsFirstMatchWins(t *testing.T) {
	doc := classifyDoc(ctok("ravi@example.com", 100))
	fields := mapSuggestions(doc, []Suggestion{
		{Text: "ravi@example.com", Category: "Email", Confidence: 90},
		{Text: "ravi@example.com", Category: "Name", Confidence: 85},
	})
	if len(fields) != 1 {
		t.Fatalf("got %d fields, want 1", len(fields))
	}
	if fields[0].Category != "Email" {
		t.Errorf("category = %q, want the first matching suggestion", fields[0].Category)
	}
}

func TestCategoryForKey(t *testing.T) {
	tests := []struct {
		key      string
		category string
		ok       bool
	}{
		{"Full Name", "Name", true},
		{"Mobile No.", "Phone Number", true},
		{"Date of Birth", "Date of Birth", true},
		{"Aadhaar Number", "ID_Number", true},
		{"Occupation", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		category, ok := categoryForKey(tt.key)
		if category != tt.category || ok != tt.ok {
			t.Errorf("categoryForKey(%q) = %q, %v, want %q, %v", tt.key, category, ok, tt.category, tt.ok)
		}
	}
}

func TestBlockBoxScalesRatios(t *testing.T) {
	page := models.Page{Index: 0, Width: 1000, Height: 500}
	block := types.Block{
		Geometry: &types.Geometry{
			BoundingBox: &types.BoundingBox{Left: 0.1, Top: 0.2, Width: 0.3, Height: 0.1},
		},
	}
	box, ok := blockBox(block, page)
	if !ok {
		t.Fatal("blockBox rejected a valid geometry")
	}
	want := models.Box{X: 100, Y: 100, Width: 300, Height: 50}
	const eps = 0.01
	if box.X < want.X-eps || box.X > want.X+eps ||
		box.Y < want.Y-eps || box.Y > want.Y+eps ||
		box.Width < want.Width-eps || box.Width > want.Width+eps ||
		box.Height < want.Height-eps || box.Height > want.Height+eps {
		t.Errorf("blockBox = %+v, want %+v", box, want)
	}

	if _, ok := blockBox(types.Block{}, page); ok {
		t.Error("blockBox accepted a block without geometry")
	}
}
