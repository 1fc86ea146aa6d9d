// Package vision provides the pixel-level heuristics backing the image
// packs: document region resolution, capture-quality metrics, the visual
// PAN-band heuristic and working-image preprocessing. Perspective correction
// and denoising stay with the upstream capture pipeline; everything here is
// pure crop/scale/threshold arithmetic.
package vision

import (
	"image"
	"image/color"
)

// QualityMetrics summarizes occlusion-related ratios over a region. Skin and
// dark ratios are kept separate from the combined occlusion ratio so reports
// can show which signal fired.
type QualityMetrics struct {
	SkinRatio          float64 `json:"skin_ratio"`
	DarkRatio          float64 `json:"dark_ratio"`
	BrightRatio        float64 `json:"bright_ratio"`
	OcclusionRatio     float64 `json:"occlusion_ratio"`
	OcclusionSuspected bool    `json:"occlusion_suspected"`
}

// occlusionLimit is the combined skin-or-dark pixel share above which a
// region is suspected to be partly covered.
const occlusionLimit = 0.12

// MeasureOcclusion scans the region for skin-tone and near-black coverage.
func MeasureOcclusion(img image.Image) QualityMetrics {
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return QualityMetrics{}
	}
	var skin, dark, bright int
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			r8, g8, b8 := float64(r>>8), float64(g>>8), float64(b>>8)
			if isSkinTone(r8, g8, b8) {
				skin++
			}
			gray := luminance(r8, g8, b8)
			if gray < 25 {
				dark++
			} else if gray > 230 {
				bright++
			}
		}
	}
	m := QualityMetrics{
		SkinRatio:   float64(skin) / float64(total),
		DarkRatio:   float64(dark) / float64(total),
		BrightRatio: float64(bright) / float64(total),
	}
	m.OcclusionRatio = m.SkinRatio
	if m.DarkRatio > m.OcclusionRatio {
		m.OcclusionRatio = m.DarkRatio
	}
	m.OcclusionSuspected = m.OcclusionRatio > occlusionLimit
	return m
}

// isSkinTone tests HSV ranges covering the two hue bands of human skin.
func isSkinTone(r, g, b float64) bool {
	h, s, v := rgbToHSV(r, g, b)
	if v < 60.0/255 || s < 30.0/255 || s > 160.0/255 {
		return false
	}
	return h <= 50 || h >= 320
}

// rgbToHSV converts 0-255 channels to hue in degrees and sat/val in [0,1].
func rgbToHSV(r, g, b float64) (h, s, v float64) {
	max := r
	if g > max {
		max = g
	}
	if b > max {
		max = b
	}
	min := r
	if g < min {
		min = g
	}
	if b < min {
		min = b
	}
	v = max / 255
	delta := max - min
	if max > 0 {
		s = delta / max
	}
	if delta == 0 {
		return 0, s, v
	}
	switch max {
	case r:
		h = 60 * ((g - b) / delta)
	case g:
		h = 60 * ((b-r)/delta + 2)
	default:
		h = 60 * ((r-g)/delta + 4)
	}
	if h < 0 {
		h += 360
	}
	return h, s, v
}

// BlurScore returns the variance of a 4-neighbor Laplacian over the image.
// Sharp captures score high; a featureless or defocused region scores near
// zero.
func BlurScore(img image.Image) float64 {
	gray := ToGray(img)
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 3 || h < 3 {
		return 0
	}
	var sum, sumSq float64
	n := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			c := float64(gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			lap := float64(gray.GrayAt(bounds.Min.X+x-1, bounds.Min.Y+y).Y) +
				float64(gray.GrayAt(bounds.Min.X+x+1, bounds.Min.Y+y).Y) +
				float64(gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y-1).Y) +
				float64(gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y+1).Y) - 4*c
			sum += lap
			sumSq += lap * lap
			n++
		}
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}

// ToGray converts any image to 8-bit grayscale, copying when needed.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	out := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			out.SetGray(x, y, color.Gray{Y: uint8(luminance(float64(r>>8), float64(g>>8), float64(b>>8)))})
		}
	}
	return out
}

func luminance(r, g, b float64) float64 {
	return 0.299*r + 0.587*g + 0.114*b
}
