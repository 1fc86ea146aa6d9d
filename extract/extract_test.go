package extract

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/cardshield/cardshield/coords"
	"github.com/cardshield/cardshield/detect"
	"github.com/cardshield/cardshield/ocr"
)

type stubEngine struct {
	name string
	res  ocr.Result
}

func (s stubEngine) Name() string { return s.name }

func (s stubEngine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	res := s.res
	res.InputID = in.ID
	return res, nil
}

func writeTokenFile(t *testing.T, records string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.json")
	if err := os.WriteFile(path, []byte(records), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeTestPNG(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "page.png")
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtractTokenFile(t *testing.T) {
	path := writeTokenFile(t, `[
		{"text": "Invoice", "bbox": [10, 10, 80, 24], "page": 0},
		{"text": "4242", "bbox": [10, 40, 60, 54], "page": 0, "source": "ocr", "ocr_conf": 0.83}
	]`)
	e := NewDocumentExtractor(ocr.NewChain(nil), nil)
	tokens, stats, err := e.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("token count = %d", len(tokens))
	}
	if tokens[0].Source != detect.SourceText {
		t.Errorf("default source = %s, want text", tokens[0].Source)
	}
	if tokens[1].Source != detect.SourceOCR || tokens[1].Confidence != 0.83 {
		t.Errorf("ocr token = %+v", tokens[1])
	}
	if tokens[0].Box != coords.NewRect(10, 10, 80, 24) {
		t.Errorf("box = %+v", tokens[0].Box)
	}
	if stats.UsedOCR || stats.TextTokenCount != 1 || stats.OCRTokenCount != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestExtractTokenFileMalformed(t *testing.T) {
	path := writeTokenFile(t, `{not json`)
	e := NewDocumentExtractor(ocr.NewChain(nil), nil)
	_, _, err := e.Extract(context.Background(), path)
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("err = %v, want ErrExtraction", err)
	}
}

func TestExtractUnsupportedType(t *testing.T) {
	e := NewDocumentExtractor(ocr.NewChain(nil), nil)
	_, _, err := e.Extract(context.Background(), "document.docx")
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("err = %v, want ErrExtraction", err)
	}
}

func TestExtractMissingFileIsFatal(t *testing.T) {
	e := NewDocumentExtractor(ocr.NewChain(nil), nil)
	_, _, err := e.Extract(context.Background(), filepath.Join(t.TempDir(), "absent.json"))
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("err = %v, want ErrExtraction", err)
	}
}

func TestExtractImageRunsChain(t *testing.T) {
	path := writeTestPNG(t)
	engine := stubEngine{name: "stub", res: ocr.Result{
		Text: "4242 4242",
		Words: []ocr.Word{
			{Text: "4242", Box: coords.NewRect(0, 0, 18, 10), Confidence: 0.9},
			{Text: "4242", Box: coords.NewRect(22, 0, 40, 10), Confidence: 0.88},
			{Text: "   ", Box: coords.NewRect(0, 12, 4, 14), Confidence: 0.1},
		},
		AvgConfidence: 0.89,
	}}
	e := NewDocumentExtractor(ocr.NewChain(nil, engine), nil)
	tokens, stats, err := e.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("token count = %d (blank words must drop)", len(tokens))
	}
	if tokens[0].Source != detect.SourceOCR {
		t.Errorf("source = %s", tokens[0].Source)
	}
	if !stats.UsedOCR {
		t.Error("stats must record the OCR path")
	}
	if len(e.LastAttempts) != 1 || !e.LastAttempts[0].Success {
		t.Errorf("attempts = %+v", e.LastAttempts)
	}
}

func TestCharCount(t *testing.T) {
	tokens := []detect.Token{
		{Text: "  hello "},
		{Text: "4242"},
		{Text: "   "},
	}
	if got := CharCount(tokens); got != 9 {
		t.Errorf("CharCount = %d, want 9", got)
	}
}
