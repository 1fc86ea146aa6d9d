package verify

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cardshield/cardshield/coords"
	"github.com/cardshield/cardshield/detect"
	"github.com/cardshield/cardshield/extract"
	"github.com/cardshield/cardshield/ocr"
	"github.com/cardshield/cardshield/render"
)

type stubEngine struct {
	text string
	conf float64
}

func (s stubEngine) Name() string { return "stub" }

func (s stubEngine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	return ocr.Result{InputID: in.ID, Text: s.text, AvgConfidence: s.conf}, nil
}

func writePNG(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	img := image.NewRGBA(image.Rect(0, 0, 100, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 100; x++ {
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

func writeTokens(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "redacted.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newVerifier(engine ocr.Engine) *Verifier {
	chain := ocr.NewChain(nil, engine)
	return New(extract.NewDocumentExtractor(chain, nil), chain, nil)
}

func TestDocumentCleanAfterRedaction(t *testing.T) {
	path := writeTokens(t, `[{"text": "Invoice total 12.50", "bbox": [0, 0, 100, 12], "page": 0}]`)
	v := newVerifier(stubEngine{})
	out, err := v.Document(context.Background(), path, detect.DefaultPANConfig())
	if err != nil {
		t.Fatalf("Document failed: %v", err)
	}
	if !out.Clean || len(out.Remaining) != 0 {
		t.Fatalf("outcome = %+v, want clean", out)
	}
}

func TestDocumentDetectsSurvivingPAN(t *testing.T) {
	path := writeTokens(t, `[{"text": "4242 4242 4242 4242", "bbox": [0, 0, 100, 12], "page": 0}]`)
	v := newVerifier(stubEngine{})
	out, err := v.Document(context.Background(), path, detect.DefaultPANConfig())
	if err != nil {
		t.Fatalf("Document failed: %v", err)
	}
	if out.Clean {
		t.Fatal("surviving PAN must fail verification")
	}
	if len(out.Remaining) != 1 || out.Remaining[0].Raw != "4242424242424242" {
		t.Errorf("remaining = %+v", out.Remaining)
	}
}

func TestDocumentIsIdempotent(t *testing.T) {
	path := writeTokens(t, `[{"text": "4242 4242 4242 4242", "bbox": [0, 0, 100, 12], "page": 0}]`)
	v := newVerifier(stubEngine{})
	first, err := v.Document(context.Background(), path, detect.DefaultPANConfig())
	if err != nil {
		t.Fatal(err)
	}
	second, err := v.Document(context.Background(), path, detect.DefaultPANConfig())
	if err != nil {
		t.Fatal(err)
	}
	if first.Clean != second.Clean || len(first.Remaining) != len(second.Remaining) {
		t.Fatalf("verification not idempotent: %+v vs %+v", first, second)
	}
}

func TestBoxesCleanWhenNoDigitsRemain(t *testing.T) {
	path := writePNG(t, "redacted.png")
	v := newVerifier(stubEngine{})
	boxes := []render.Box{{Rect: coords.NewRect(10, 10, 90, 30)}}
	out, err := v.Boxes(context.Background(), path, boxes)
	if err != nil {
		t.Fatalf("Boxes failed: %v", err)
	}
	if !out.Clean || out.BoxesChecked != 1 {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestBoxesFailOnResidualDigits(t *testing.T) {
	path := writePNG(t, "redacted.png")
	v := newVerifier(stubEngine{text: "4242 4242 4242 4242", conf: 0.9})
	boxes := []render.Box{{Rect: coords.NewRect(10, 10, 90, 30)}}
	out, err := v.Boxes(context.Background(), path, boxes)
	if err != nil {
		t.Fatalf("Boxes failed: %v", err)
	}
	if out.Clean {
		t.Fatal("digit residue must fail the box")
	}
	if len(out.Remaining) == 0 {
		t.Fatal("remaining detections missing")
	}
}

func TestBoxesFailOnPartialDigitResidue(t *testing.T) {
	// Too short for a PAN candidate, but enough digits to prove the fill
	// missed content.
	path := writePNG(t, "redacted.png")
	v := newVerifier(stubEngine{text: "4242 4242", conf: 0.9})
	out, err := v.Boxes(context.Background(), path, []render.Box{{Rect: coords.NewRect(10, 10, 90, 30)}})
	if err != nil {
		t.Fatalf("Boxes failed: %v", err)
	}
	if out.Clean {
		t.Fatal("partial residue must fail the box")
	}
	if len(out.Remaining) != 1 || !out.Remaining[0].HasValidator("residual_digits") {
		t.Errorf("remaining = %+v", out.Remaining)
	}
}

func TestIDBoxesCleanAfterRedaction(t *testing.T) {
	path := writePNG(t, "redacted.png")
	v := newVerifier(stubEngine{})
	boxes := []render.Box{
		{Rect: coords.NewRect(10, 25, 90, 38), Label: detect.FieldMRZ},
		{Rect: coords.NewRect(10, 5, 60, 15), Label: detect.FieldIDNumber},
	}
	out, err := v.IDBoxes(context.Background(), path, boxes)
	if err != nil {
		t.Fatalf("IDBoxes failed: %v", err)
	}
	if !out.Clean || out.BoxesChecked != 2 {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestIDBoxesFailOnReadableMRZ(t *testing.T) {
	path := writePNG(t, "redacted.png")
	line := "P<UTOERIKSSON<<ANNA" + strings.Repeat("<", 25)
	v := newVerifier(stubEngine{text: line + "\n" + line, conf: 0.9})
	boxes := []render.Box{{Rect: coords.NewRect(10, 25, 90, 38), Label: detect.FieldMRZ}}
	out, err := v.IDBoxes(context.Background(), path, boxes)
	if err != nil {
		t.Fatalf("IDBoxes failed: %v", err)
	}
	if out.Clean {
		t.Fatal("readable MRZ must fail the box")
	}
	if len(out.Remaining) != 1 || out.Remaining[0].FieldID != detect.FieldMRZ {
		t.Errorf("remaining = %+v", out.Remaining)
	}
}

func TestIDBoxesFailOnReadableIDNumber(t *testing.T) {
	path := writePNG(t, "redacted.png")
	v := newVerifier(stubEngine{text: "AB123456", conf: 0.9})
	boxes := []render.Box{{Rect: coords.NewRect(10, 5, 60, 15), Label: detect.FieldIDNumber}}
	out, err := v.IDBoxes(context.Background(), path, boxes)
	if err != nil {
		t.Fatalf("IDBoxes failed: %v", err)
	}
	if out.Clean {
		t.Fatal("readable document number must fail the box")
	}
	if len(out.Remaining) != 1 || out.Remaining[0].Raw != "AB123456" {
		t.Errorf("remaining = %+v", out.Remaining)
	}
}

func TestIDBoxesSkipsUnstructuredLabels(t *testing.T) {
	// Face and date-of-birth boxes carry no re-detectable structure; even a
	// noisy read over them cannot fail the pass.
	path := writePNG(t, "redacted.png")
	v := newVerifier(stubEngine{text: "AB123456", conf: 0.9})
	boxes := []render.Box{{Rect: coords.NewRect(10, 5, 60, 15), Label: "face"}}
	out, err := v.IDBoxes(context.Background(), path, boxes)
	if err != nil {
		t.Fatalf("IDBoxes failed: %v", err)
	}
	if !out.Clean || out.BoxesChecked != 0 {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestDigitRun(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"total 12.50", "12"},
		{"4242 4242 4242 4242", "4242424242424242"},
		{"ab 12-34 cd 567", "1234"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := digitRun(tc.in); got != tc.want {
			t.Errorf("digitRun(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
