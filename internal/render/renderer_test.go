package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/docshield/document-redactor/config"
	"github.com/docshield/document-redactor/internal/models"
	"github.com/docshield/document-redactor/internal/pdf"
	"github.com/docshield/document-redactor/pkg/logger"
)

func testRenderer() *Renderer {
	return NewRenderer(logger.NewTestLogger(), &config.EngineConfig{RenderTimeoutSec: 30})
}

func whiteImage(w, h int, format imaging.Format) []byte {
	img := imaging.New(w, h, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func rasterDoc(raster []byte, mime string, w, h float64) *models.Document {
	return &models.Document{
		ID:       "doc-1",
		FileType: models.Image,
		MimeType: mime,
		Pages:    []models.Page{{Index: 0, Width: w, Height: h, Scale: 1, Raster: raster}},
	}
}

func permField(x, y, w, h float64) models.Field {
	return models.Field{
		ID:            "field-1",
		Box:           models.Box{X: x, Y: y, Width: w, Height: h},
		Origin:        models.OriginManualSelect,
		RedactionType: models.RedactionPermanent,
	}
}

func tempField(origin models.FieldOrigin, x, y, w, h float64) models.Field {
	return models.Field{
		ID:            "field-2",
		Box:           models.Box{X: x, Y: y, Width: w, Height: h},
		Origin:        origin,
		RedactionType: models.RedactionTemporary,
	}
}

func decodeOutput(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	return img
}

func nrgbaAt(img image.Image, x, y int) color.NRGBA {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

func TestApplyRasterPermanentFillsBlack(t *testing.T) {
	doc := rasterDoc(whiteImage(200, 100, imaging.PNG), "image/png", 200, 100)

	out, err := testRenderer().Apply(context.Background(), doc, nil, []models.Field{
		permField(50, 20, 40, 30),
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	img := decodeOutput(t, out)
	inside := nrgbaAt(img, 60, 30)
	if inside.R != 0 || inside.G != 0 || inside.B != 0 {
		t.Errorf("pixel inside permanent area = %v, want opaque black", inside)
	}
	outside := nrgbaAt(img, 10, 10)
	if outside.R != 255 || outside.G != 255 || outside.B != 255 {
		t.Errorf("pixel outside area = %v, want untouched white", outside)
	}
}

func TestApplyRasterTemporaryGrayOverlay(t *testing.T) {
	doc := rasterDoc(whiteImage(200, 100, imaging.PNG), "image/png", 200, 100)

	out, err := testRenderer().Apply(context.Background(), doc, nil, []models.Field{
		tempField(models.OriginManualSelect, 50, 20, 40, 30),
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	px := nrgbaAt(decodeOutput(t, out), 60, 30)
	if px.R != px.G || px.G != px.B {
		t.Errorf("gray overlay pixel = %v, want equal channels", px)
	}
	if px.R < 150 || px.R > 250 {
		t.Errorf("gray overlay pixel = %v, want blended between gray and white", px)
	}
}

func TestApplyRasterTemporaryYellowForDrawOrigin(t *testing.T) {
	doc := rasterDoc(whiteImage(200, 100, imaging.PNG), "image/png", 200, 100)

	out, err := testRenderer().Apply(context.Background(), doc, nil, []models.Field{
		tempField(models.OriginManualDraw, 50, 20, 40, 30),
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	px := nrgbaAt(decodeOutput(t, out), 60, 30)
	if px.R <= px.B {
		t.Errorf("draw overlay pixel = %v, want yellow tint with R > B", px)
	}
	if px.B > 200 {
		t.Errorf("draw overlay pixel = %v, want blue channel suppressed", px)
	}
}

func TestApplyRasterPermanentUnderTemporary(t *testing.T) {
	doc := rasterDoc(whiteImage(200, 100, imaging.PNG), "image/png", 200, 100)

	out, err := testRenderer().Apply(context.Background(), doc, nil, []models.Field{
		tempField(models.OriginManualSelect, 50, 20, 40, 30),
		permField(50, 20, 40, 30),
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	// Permanent fill goes down first so the temporary overlay blends on
	// top of black instead of being buried under it.
	px := nrgbaAt(decodeOutput(t, out), 60, 30)
	if px.R < 40 || px.R > 150 {
		t.Errorf("stacked pixel = %v, want gray blended over black", px)
	}
}

func TestApplyRasterJpegOutput(t *testing.T) {
	doc := rasterDoc(whiteImage(80, 60, imaging.JPEG), "image/jpeg", 80, 60)

	out, err := testRenderer().Apply(context.Background(), doc, nil, []models.Field{
		permField(10, 10, 20, 20),
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output config: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("output format = %q, want jpeg", format)
	}
	if cfg.Width != 80 || cfg.Height != 60 {
		t.Errorf("output dimensions = %dx%d, want 80x60", cfg.Width, cfg.Height)
	}
}

func TestApplyRasterNoEncoderForMime(t *testing.T) {
	doc := rasterDoc(whiteImage(40, 40, imaging.PNG), "image/gif", 40, 40)

	_, err := testRenderer().Apply(context.Background(), doc, nil, []models.Field{
		permField(5, 5, 10, 10),
	})
	if !errors.Is(err, models.ErrRender) {
		t.Fatalf("Apply error = %v, want ErrRender", err)
	}
}

func TestApplyUnknownContainer(t *testing.T) {
	doc := &models.Document{ID: "doc-1", FileType: "spreadsheet"}

	_, err := testRenderer().Apply(context.Background(), doc, nil, []models.Field{
		permField(5, 5, 10, 10),
	})
	if !errors.Is(err, models.ErrRender) {
		t.Fatalf("Apply error = %v, want ErrRender", err)
	}
}

func TestApplyCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doc := rasterDoc(whiteImage(40, 40, imaging.PNG), "image/png", 40, 40)

	_, err := testRenderer().Apply(ctx, doc, nil, []models.Field{
		permField(5, 5, 10, 10),
	})
	if !errors.Is(err, models.ErrRender) {
		t.Fatalf("Apply error = %v, want ErrRender", err)
	}
}

// buildTestPDF returns a one page document drawing "ABC" in 24pt
// Helvetica at (72, 700). With 600/1000 glyph widths the letters sit at
// x = 72, 86.4 and 100.8.
func buildTestPDF() []byte {
	content := "BT /F1 24 Tf 72 700 Td (ABC) Tj ET"
	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	b.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	b.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] " +
		"/Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>\nendobj\n")
	b.WriteString("4 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica " +
		"/FirstChar 65 /LastChar 67 /Widths [600 600 600] >>\nendobj\n")
	fmt.Fprintf(&b, "5 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", len(content), content)
	b.WriteString("trailer\n<< /Root 1 0 R >>\n")
	return b.Bytes()
}

func pdfModelDoc() *models.Document {
	return &models.Document{
		ID:       "doc-1",
		FileType: models.PDF,
		MimeType: "application/pdf",
		Pages: []models.Page{{
			Index:       0,
			Width:       612,
			Height:      792,
			Scale:       1,
			PointWidth:  612,
			PointHeight: 792,
		}},
	}
}

func traceGlyphText(t *testing.T, data []byte) string {
	t.Helper()
	parsed, err := pdf.Parse(data)
	if err != nil {
		t.Fatalf("reparse output: %v", err)
	}
	pages, err := parsed.Pages()
	if err != nil {
		t.Fatalf("walk output pages: %v", err)
	}
	trace, err := pdf.TracePage(parsed, pages[0])
	if err != nil {
		t.Fatalf("trace output page: %v", err)
	}
	var sb strings.Builder
	for _, g := range trace.Streams[0].Glyphs {
		sb.WriteString(g.Text)
	}
	return sb.String()
}

func TestApplyPDFPermanentRemovesCoveredText(t *testing.T) {
	original := buildTestPDF()
	// Display pixels at scale 1: x [87, 100] maps onto the middle
	// letter only, y [74, 96] maps to points [696, 718].
	out, err := testRenderer().Apply(context.Background(), pdfModelDoc(), original, []models.Field{
		permField(87, 74, 13, 22),
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Fatalf("output does not start with a PDF header")
	}
	got := traceGlyphText(t, out)
	if strings.Contains(got, "B") {
		t.Errorf("covered glyph survived, remaining text %q", got)
	}
	if !strings.Contains(got, "A") || !strings.Contains(got, "C") {
		t.Errorf("uncovered glyphs lost, remaining text %q", got)
	}
}

func TestApplyPDFTemporaryKeepsContent(t *testing.T) {
	original := buildTestPDF()
	out, err := testRenderer().Apply(context.Background(), pdfModelDoc(), original, []models.Field{
		tempField(models.OriginManualSelect, 87, 74, 13, 22),
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if !bytes.Contains(out, []byte("BT /F1 24 Tf 72 700 Td (ABC) Tj ET")) {
		t.Errorf("original content stream was rewritten for a temporary redaction")
	}
	if !bytes.Contains(out, []byte("/ca 0.5")) {
		t.Errorf("output has no transparency state for the overlay")
	}
	if got := traceGlyphText(t, out); got != "ABC" {
		t.Errorf("remaining text = %q, want ABC", got)
	}
}

func TestVerifyFlagsSurvivingText(t *testing.T) {
	parsed, err := pdf.Parse(buildTestPDF())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := parsed.Write()
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	err = verifyPermanentRemoval(out, map[int][]pdf.Rect{
		0: {{X0: 60, Y0: 690, X1: 130, Y1: 720}},
	})
	if err == nil {
		t.Fatal("verification passed although the text is still present")
	}
	if !strings.Contains(err.Error(), "survived") {
		t.Errorf("verification error = %v, want surviving text report", err)
	}
}

func TestPixelToPointRotations(t *testing.T) {
	media := pdf.Rect{X0: 0, Y0: 0, X1: 612, Y1: 792}
	box := models.Box{X: 100, Y: 50, Width: 200, Height: 100}

	tests := []struct {
		rotate int
		want   pdf.Rect
	}{
		{0, pdf.Rect{X0: 50, Y0: 717, X1: 150, Y1: 767}},
		{90, pdf.Rect{X0: 25, Y0: 50, X1: 75, Y1: 150}},
		{180, pdf.Rect{X0: 462, Y0: 25, X1: 562, Y1: 75}},
		{270, pdf.Rect{X0: 537, Y0: 642, X1: 587, Y1: 742}},
	}
	for _, tt := range tests {
		page := models.Page{Scale: 2, Rotation: tt.rotate}
		got := pixelToPoint(box, page, media)
		if !nearRect(got, tt.want) {
			t.Errorf("rotate %d: pixelToPoint = %+v, want %+v", tt.rotate, got, tt.want)
		}
	}
}

func nearRect(a, b pdf.Rect) bool {
	const eps = 1e-6
	near := func(x, y float64) bool {
		d := x - y
		return d < eps && d > -eps
	}
	return near(a.X0, b.X0) && near(a.Y0, b.Y0) && near(a.X1, b.X1) && near(a.Y1, b.Y1)
}
