// Package tesseract adapts the gosseract Tesseract binding to the ocr.Engine
// contract used by the scan pipeline.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"

	"github.com/otiai10/gosseract/v2"

	"github.com/cardshield/cardshield/coords"
	"github.com/cardshield/cardshield/ocr"
)

// Engine implements ocr.Engine over a gosseract client per call. Clients are
// cheap relative to recognition; per-call construction keeps variable state
// (whitelists, PSM) from leaking between regions.
type Engine struct {
	clientFactory func() *gosseract.Client
}

// New constructs a Tesseract-backed OCR engine.
func New() *Engine {
	return &Engine{clientFactory: gosseract.NewClient}
}

// Register installs the engine factory into reg under the name "tesseract".
func Register(reg *ocr.Registry) {
	reg.Register("tesseract", func() (ocr.Engine, error) { return New(), nil })
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize performs OCR on one input region.
func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	select {
	case <-ctx.Done():
		return ocr.Result{}, ctx.Err()
	default:
	}
	c := e.clientFactory()
	defer c.Close()

	imgData, offset, err := cropImage(in.Image, in.Region)
	if err != nil {
		return ocr.Result{}, err
	}
	if err := c.SetImageFromBytes(imgData); err != nil {
		return ocr.Result{}, fmt.Errorf("set image: %w", err)
	}
	if len(in.Languages) > 0 {
		if err := c.SetLanguage(in.Languages...); err != nil {
			return ocr.Result{}, fmt.Errorf("set languages: %w", err)
		}
	}
	if in.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(in.DPI)); err != nil {
			return ocr.Result{}, fmt.Errorf("set dpi: %w", err)
		}
	}
	for k, v := range in.Metadata {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return ocr.Result{}, fmt.Errorf("set variable %s: %w", k, err)
		}
	}

	text, err := c.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("recognize text: %w", err)
	}

	words, avgConf := extractWords(c, offset)
	return ocr.Result{
		InputID:       in.ID,
		Text:          text,
		Words:         words,
		AvgConfidence: avgConf,
	}, nil
}

// extractWords reads word-level boxes and shifts them back into full-image
// coordinates when a region crop was applied.
func extractWords(c *gosseract.Client, offset coords.Point) ([]ocr.Word, float64) {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return nil, 0
	}
	words := make([]ocr.Word, 0, len(boxes))
	var sum float64
	for _, b := range boxes {
		conf := b.Confidence / 100.0
		sum += conf
		words = append(words, ocr.Word{
			Text: b.Word,
			Box: coords.Rect{
				X0: float64(b.Box.Min.X) + offset.X,
				Y0: float64(b.Box.Min.Y) + offset.Y,
				X1: float64(b.Box.Max.X) + offset.X,
				Y1: float64(b.Box.Max.Y) + offset.Y,
			},
			Confidence: conf,
		})
	}
	return words, sum / float64(len(words))
}

// cropImage returns the region sub-image re-encoded as PNG along with the
// crop origin, or the original payload untouched when no region applies.
func cropImage(data []byte, region *coords.Rect) ([]byte, coords.Point, error) {
	if region == nil || region.IsEmpty() {
		return data, coords.Point{}, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, coords.Point{}, fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()
	crop := image.Rect(
		bounds.Min.X+int(region.X0),
		bounds.Min.Y+int(region.Y0),
		bounds.Min.X+int(region.X1),
		bounds.Min.Y+int(region.Y1),
	).Intersect(bounds)
	if crop.Empty() {
		return data, coords.Point{}, nil
	}

	sub, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	})
	if !ok {
		return data, coords.Point{}, nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, sub.SubImage(crop)); err != nil {
		return nil, coords.Point{}, fmt.Errorf("encode crop: %w", err)
	}
	origin := coords.Point{X: float64(crop.Min.X - bounds.Min.X), Y: float64(crop.Min.Y - bounds.Min.Y)}
	return buf.Bytes(), origin, nil
}
