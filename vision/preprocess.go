package vision

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"

	"github.com/cardshield/cardshield/coords"
)

// Output is the working image derived from a document region plus the pure
// transforms between working coordinates and original page coordinates.
type Output struct {
	// Image is the cropped, contrast-stretched, possibly downscaled
	// grayscale working image.
	Image *image.Gray
	// ROI is the padded region that was cropped from the page.
	ROI coords.Rect
	// Forward maps page coordinates into working-image coordinates;
	// Inverse maps back. Both are affine and side-effect-free.
	Forward coords.Matrix
	Inverse coords.Matrix
	// Blur is the Laplacian-variance sharpness score of the region.
	Blur float64
	// Quality holds occlusion metrics measured on the color crop.
	Quality QualityMetrics
}

// MapToPage transforms a working-image box back into page space.
func (o Output) MapToPage(box coords.Rect) coords.Rect {
	return o.Inverse.TransformRect(box)
}

// MapFromPage transforms a page box into working-image space.
func (o Output) MapFromPage(box coords.Rect) coords.Rect {
	return o.Forward.TransformRect(box)
}

// regionPadding widens the resolved document region before cropping so a
// tight detector box does not clip glyph edges.
const regionPadding = 0.08

// maxWorkingWidth bounds the working image; larger crops are downscaled to
// keep OCR latency predictable.
const maxWorkingWidth = 1600

// Preprocess crops the document region out of the page image and prepares
// the working image the OCR and visual passes run on.
func Preprocess(img image.Image, region coords.Rect) Output {
	bounds := img.Bounds()
	frame := coords.Rect{X0: 0, Y0: 0, X1: float64(bounds.Dx()), Y1: float64(bounds.Dy())}
	roi := region.Clamp(frame)
	if roi.IsEmpty() {
		roi = frame
	}
	roi = roi.Pad(roi.Width()*regionPadding, roi.Height()*regionPadding, frame)

	cropRect := image.Rect(
		bounds.Min.X+int(roi.X0), bounds.Min.Y+int(roi.Y0),
		bounds.Min.X+int(roi.X1), bounds.Min.Y+int(roi.Y1),
	)
	crop := cropImage(img, cropRect)

	quality := MeasureOcclusion(crop)
	blur := BlurScore(crop)

	gray := stretchContrast(ToGray(crop))
	scale := 1.0
	if gray.Bounds().Dx() > maxWorkingWidth {
		scale = float64(maxWorkingWidth) / float64(gray.Bounds().Dx())
		gray = scaleGray(gray, scale)
	}

	forward := coords.Translate(-roi.X0, -roi.Y0).Multiply(coords.Scale(scale, scale))
	inverse, err := forward.Inverse()
	if err != nil {
		inverse = coords.Identity()
	}
	return Output{
		Image:   gray,
		ROI:     roi,
		Forward: forward,
		Inverse: inverse,
		Blur:    blur,
		Quality: quality,
	}
}

func cropImage(img image.Image, rect image.Rectangle) image.Image {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return img
	}
	if sub, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(rect)
	}
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	xdraw.Draw(out, out.Bounds(), img, rect.Min, xdraw.Src)
	return out
}

// stretchContrast maps the observed intensity range onto the full 8-bit
// range, clipping the darkest and brightest 1% so specks do not pin the
// histogram.
func stretchContrast(gray *image.Gray) *image.Gray {
	bounds := gray.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return gray
	}
	var hist [256]int
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			hist[gray.GrayAt(x, y).Y]++
		}
	}
	clip := total / 100
	lo, hi := 0, 255
	for acc := 0; lo < 255; lo++ {
		acc += hist[lo]
		if acc > clip {
			break
		}
	}
	for acc := 0; hi > 0; hi-- {
		acc += hist[hi]
		if acc > clip {
			break
		}
	}
	if hi <= lo {
		return gray
	}
	out := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	span := float64(hi - lo)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := float64(gray.GrayAt(x, y).Y)
			scaled := (v - float64(lo)) / span * 255
			if scaled < 0 {
				scaled = 0
			}
			if scaled > 255 {
				scaled = 255
			}
			out.SetGray(x-bounds.Min.X, y-bounds.Min.Y, color.Gray{Y: uint8(scaled)})
		}
	}
	return out
}

func scaleGray(gray *image.Gray, scale float64) *image.Gray {
	bounds := gray.Bounds()
	w := int(float64(bounds.Dx()) * scale)
	h := int(float64(bounds.Dy()) * scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	out := image.NewGray(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(out, out.Bounds(), gray, bounds, xdraw.Src, nil)
	return out
}
