// Package render defines the annotation and redaction rendering seam. For
// raster documents the built-in renderer edits pixels directly; structured
// formats are handled by an external rendering collaborator behind the same
// interface. Redaction is destructive content removal, never a reversible
// overlay.
package render

import (
	"context"
	"image/color"

	"github.com/cardshield/cardshield/coords"
)

// Box is one rectangle to draw or remove, in page coordinates.
type Box struct {
	Page  int
	Rect  coords.Rect
	Label string
	Color color.RGBA
}

// Renderer produces annotated and redacted artifacts from a source document.
type Renderer interface {
	// Highlight writes a copy of src with boxes outlined, for review.
	Highlight(ctx context.Context, src string, boxes []Box, dst string) (string, error)
	// Redact writes a copy of src with box contents destructively
	// removed. The returned path must only be surfaced after the
	// verification loop has re-checked it.
	Redact(ctx context.Context, src string, boxes []Box, dst string) (string, error)
}

// Default annotation colors.
var (
	ColorHit       = color.RGBA{R: 0x00, G: 0xcc, B: 0x00, A: 0xff}
	ColorSuspicion = color.RGBA{R: 0xcc, G: 0x80, B: 0x00, A: 0xff}
	ColorVisual    = color.RGBA{R: 0xe6, G: 0x4d, B: 0x1a, A: 0xff}
	ColorROI       = color.RGBA{R: 0xe6, G: 0x33, B: 0x33, A: 0xff}
)
