package vision

import (
	"context"
	"image"

	"github.com/cardshield/cardshield/coords"
)

// Box is one localized object candidate from a region detector.
type Box struct {
	Label      string
	Confidence float64
	Rect       coords.Rect
}

// Detector localizes document/card/PAN/MRZ/face regions in an image. Absence
// of a detector (or an empty result) degrades to heuristic regions; it never
// fails a run.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Box, error)
}

// Region-candidate labels shared with detectors.
const (
	LabelCard     = "card"
	LabelIDCard   = "id_card"
	LabelPAN      = "pan"
	LabelExpiry   = "expiry"
	LabelMRZ      = "mrz"
	LabelIDNumber = "id_number"
	LabelDOB      = "dob"
	LabelFace     = "face"
)

// Region sources recorded in the trace.
const (
	RegionSourceDetector = "detector"
	RegionSourceEdges    = "edges"
	RegionSourceFallback = "fallback"
)

// ResolveCardRegion picks the document/card region: the highest-confidence
// detector box, else an edge-density guess, else a fixed-margin fallback.
func ResolveCardRegion(img image.Image, boxes []Box) (coords.Rect, string) {
	if best, ok := bestLabeled(boxes, LabelCard, LabelIDCard); ok {
		return best.Rect, RegionSourceDetector
	}
	if guess, ok := guessDocumentRegion(img); ok {
		return guess, RegionSourceEdges
	}
	bounds := img.Bounds()
	return FallbackDocumentRegion(bounds.Dx(), bounds.Dy()), RegionSourceFallback
}

// FallbackDocumentRegion returns the fixed-margin region used when nothing
// can be localized: 5% horizontal and 7% vertical margins.
func FallbackDocumentRegion(w, h int) coords.Rect {
	mw := float64(w) * 0.05
	mh := float64(h) * 0.07
	return coords.Rect{X0: mw, Y0: mh, X1: float64(w) - mw, Y1: float64(h) - mh}
}

// ResolvePANBand returns the region to OCR for PAN digits within the working
// image: the detector's pan box when present, else the middle band where
// embossed PANs sit.
func ResolvePANBand(boxes []Box, w, h int) coords.Rect {
	if best, ok := bestLabeled(boxes, LabelPAN); ok {
		return best.Rect
	}
	band := float64(h) * 0.3
	y0 := float64(h)/2 - band/2
	if y0 < 0 {
		y0 = 0
	}
	y1 := y0 + band
	if y1 > float64(h) {
		y1 = float64(h)
	}
	return coords.Rect{X0: float64(w) * 0.08, Y0: y0, X1: float64(w) * 0.92, Y1: y1}
}

// ResolveExpiryBand returns the region to OCR for the expiry date: the
// detector's expiry box when present, else the lower-right quadrant band.
func ResolveExpiryBand(boxes []Box, w, h int) coords.Rect {
	if best, ok := bestLabeled(boxes, LabelExpiry); ok {
		return best.Rect
	}
	return coords.Rect{
		X0: float64(w) * 0.55,
		Y0: float64(h) * 0.6,
		X1: float64(w) * 0.95,
		Y1: float64(h) * 0.92,
	}
}

// ResolveMRZBand returns the region to OCR for a machine-readable zone: the
// detector's mrz box when present, else the bottom band where passport and
// ID-card MRZs are printed.
func ResolveMRZBand(boxes []Box, w, h int) coords.Rect {
	if best, ok := bestLabeled(boxes, LabelMRZ); ok {
		return best.Rect
	}
	return coords.Rect{
		X0: float64(w) * 0.05,
		Y0: float64(h) * 0.75,
		X1: float64(w) * 0.95,
		Y1: float64(h),
	}
}

// ResolveIDNumberBand returns the region to OCR for the document number: the
// detector's id_number box when present, else the upper-middle band.
func ResolveIDNumberBand(boxes []Box, w, h int) coords.Rect {
	if best, ok := bestLabeled(boxes, LabelIDNumber); ok {
		return best.Rect
	}
	return coords.Rect{
		X0: float64(w) * 0.2,
		Y0: float64(h) * 0.2,
		X1: float64(w) * 0.8,
		Y1: float64(h) * 0.55,
	}
}

func bestLabeled(boxes []Box, labels ...string) (Box, bool) {
	var best Box
	found := false
	for _, b := range boxes {
		for _, label := range labels {
			if b.Label != label {
				continue
			}
			if !found || b.Confidence > best.Confidence {
				best = b
				found = true
			}
		}
	}
	return best, found
}

// guessDocumentRegion bounds the strong-gradient pixels of the image. A
// document against a plain background concentrates edges inside its outline;
// the guess is rejected when the bounded area is under 20% of the frame.
func guessDocumentRegion(img image.Image) (coords.Rect, bool) {
	gray := ToGray(img)
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 8 || h < 8 {
		return coords.Rect{}, false
	}

	minX, minY := w, h
	maxX, maxY := -1, -1
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			dx := int(gray.GrayAt(bounds.Min.X+x+1, bounds.Min.Y+y).Y) - int(gray.GrayAt(bounds.Min.X+x-1, bounds.Min.Y+y).Y)
			dy := int(gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y+1).Y) - int(gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y-1).Y)
			if dx < 0 {
				dx = -dx
			}
			if dy < 0 {
				dy = -dy
			}
			if dx+dy < 64 {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}
	if maxX < 0 || maxY < 0 {
		return coords.Rect{}, false
	}
	area := float64(maxX-minX) * float64(maxY-minY)
	if area < 0.2*float64(w)*float64(h) {
		return coords.Rect{}, false
	}
	padW := float64(maxX-minX) * 0.03
	padH := float64(maxY-minY) * 0.03
	frame := coords.Rect{X0: 0, Y0: 0, X1: float64(w), Y1: float64(h)}
	return coords.Rect{
		X0: float64(minX), Y0: float64(minY),
		X1: float64(maxX), Y1: float64(maxY),
	}.Pad(padW, padH, frame), true
}
