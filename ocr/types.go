package ocr

import (
	"context"

	"github.com/cardshield/cardshield/coords"
)

// ImageFormat identifies the content type of an OCR input image.
type ImageFormat string

const (
	ImageFormatPNG  ImageFormat = "image/png"
	ImageFormatJPEG ImageFormat = "image/jpeg"
)

// Input encapsulates a single image region submitted for OCR.
type Input struct {
	// ID is an optional caller-provided identifier echoed back in Results.
	ID string
	// Image is the encoded image payload in the format given by Format.
	Image []byte
	// Format declares the image content type.
	Format ImageFormat
	// PageIndex links the input back to the zero-based page it came from.
	PageIndex int
	// DPI carries the effective dots-per-inch; zero means unknown.
	DPI int
	// Languages holds trained-data hints such as "eng".
	Languages []string
	// Region restricts recognition to a subsection of the image in pixel
	// coordinates. Nil means the full image.
	Region *coords.Rect
	// Metadata passes engine-specific knobs (e.g. Tesseract variables)
	// without hard-coding them into the API surface.
	Metadata map[string]string
}

// Word is a single recognized token with its bounds in input coordinates.
type Word struct {
	Text       string
	Box        coords.Rect
	Confidence float64
}

// Result captures OCR output for one input.
type Result struct {
	// InputID mirrors the Input.ID that produced this result.
	InputID string
	// Engine names the backend that produced the result; "none" marks the
	// synthetic empty result emitted when every backend failed.
	Engine string
	// Text is the linearized recognized text.
	Text string
	// Words carries per-token geometry and confidence.
	Words []Word
	// AvgConfidence is the mean word confidence in [0,1].
	AvgConfidence float64
}

// MinConfidence returns the lowest word confidence, or zero without words.
func (r Result) MinConfidence() float64 {
	if len(r.Words) == 0 {
		return 0
	}
	min := r.Words[0].Confidence
	for _, w := range r.Words[1:] {
		if w.Confidence < min {
			min = w.Confidence
		}
	}
	return min
}

// Engine is the OCR provider contract: one image region in, one result out.
// Implementations must be safe for sequential reuse across documents.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, input Input) (Result, error)
}
