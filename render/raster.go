package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"os"
)

// Raster renders highlights and redactions on single-page raster documents.
// Output is always PNG regardless of input encoding so redacted artifacts
// never carry residual compressed data from the original.
type Raster struct{}

func NewRaster() *Raster { return &Raster{} }

// Highlight draws box outlines over a copy of the image.
func (r *Raster) Highlight(ctx context.Context, src string, boxes []Box, dst string) (string, error) {
	img, err := loadRGBA(src)
	if err != nil {
		return "", err
	}
	for _, box := range boxes {
		drawOutline(img, box)
	}
	if err := writePNG(dst, img); err != nil {
		return "", err
	}
	return dst, nil
}

// Redact fills box interiors with opaque black. The original pixel data
// inside the boxes does not survive into the output.
func (r *Raster) Redact(ctx context.Context, src string, boxes []Box, dst string) (string, error) {
	img, err := loadRGBA(src)
	if err != nil {
		return "", err
	}
	black := image.NewUniform(color.RGBA{A: 0xff})
	for _, box := range boxes {
		rect := clampRect(box, img.Bounds())
		if rect.Empty() {
			continue
		}
		draw.Draw(img, rect, black, image.Point{}, draw.Src)
	}
	if err := writePNG(dst, img); err != nil {
		return "", err
	}
	return dst, nil
}

func clampRect(box Box, bounds image.Rectangle) image.Rectangle {
	rect := image.Rect(
		bounds.Min.X+int(box.Rect.X0), bounds.Min.Y+int(box.Rect.Y0),
		bounds.Min.X+int(box.Rect.X1)+1, bounds.Min.Y+int(box.Rect.Y1)+1,
	)
	return rect.Intersect(bounds)
}

const outlineWidth = 3

func drawOutline(img *image.RGBA, box Box) {
	rect := clampRect(box, img.Bounds())
	if rect.Empty() {
		return
	}
	c := box.Color
	if c.A == 0 {
		c = ColorROI
	}
	for t := 0; t < outlineWidth; t++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			setIfInside(img, x, rect.Min.Y+t, c)
			setIfInside(img, x, rect.Max.Y-1-t, c)
		}
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			setIfInside(img, rect.Min.X+t, y, c)
			setIfInside(img, rect.Max.X-1-t, y, c)
		}
	}
}

func setIfInside(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

func loadRGBA(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()
	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode source: %w", err)
	}
	out := image.NewRGBA(image.Rect(0, 0, src.Bounds().Dx(), src.Bounds().Dy()))
	draw.Draw(out, out.Bounds(), src, src.Bounds().Min, draw.Src)
	return out, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	return nil
}
