// Package detect implements the PAN detection core: confusable
// normalization, Luhn validation, single-token candidate extraction and
// multi-token span stitching over noisy OCR output.
package detect

import "github.com/cardshield/cardshield/coords"

// Source tags where a token's text came from.
type Source string

const (
	// SourceText marks tokens from a trusted native text layer.
	SourceText Source = "text"
	// SourceOCR marks tokens recognized from full-page OCR.
	SourceOCR Source = "ocr"
	// SourceROIOCR marks tokens recognized from a targeted region.
	SourceROIOCR Source = "roi-ocr"
	// SourceVisual marks detections raised by pixel heuristics without OCR.
	SourceVisual Source = "visual"
)

// Token is one extracted text fragment with its position on the page.
// Confidence is in [0,1]; zero means the producer reported none.
type Token struct {
	Text       string
	Box        coords.Rect
	Page       int
	Source     Source
	Confidence float64
}

// Severity distinguishes checksum-validated hits from plausible but
// unverified suspicions.
type Severity string

const (
	SeverityHit       Severity = "hit"
	SeveritySuspicion Severity = "suspicion"
)

// Detection is one sensitive-data finding. Raw carries the normalized digit
// string; Masked is safe for display and reports.
type Detection struct {
	FieldID    string
	Category   string
	Masked     string
	Raw        string
	Box        coords.Rect
	Page       int
	Source     Source
	Validators []string
	Severity   Severity
}

// HasValidator reports whether the detection carries the named tag.
func (d Detection) HasValidator(name string) bool {
	for _, v := range d.Validators {
		if v == name {
			return true
		}
	}
	return false
}

// CountBySeverity returns the number of hits and suspicions in dets.
func CountBySeverity(dets []Detection) (hits, suspicions int) {
	for _, d := range dets {
		switch d.Severity {
		case SeverityHit:
			hits++
		case SeveritySuspicion:
			suspicions++
		}
	}
	return hits, suspicions
}

// Categories for the built-in primitives.
const (
	CategoryPAN    = "pan"
	CategoryExpiry = "expiry"
	CategoryMRZ    = "mrz"
	CategoryID     = "id_number"
)

// Field identifiers for the built-in primitives.
const (
	FieldCardPAN    = "card_pan"
	FieldCardExpiry = "card_expiry"
	FieldMRZ        = "mrz"
	FieldIDNumber   = "id_number"
)
