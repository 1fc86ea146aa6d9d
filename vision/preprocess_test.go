package vision

import (
	"image"
	"image/color"
	"testing"

	"github.com/cardshield/cardshield/coords"
)

func TestPreprocessCropAndMapping(t *testing.T) {
	img := flatImage(400, 300, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	region := coords.NewRect(100, 60, 300, 200)

	out := Preprocess(img, region)
	if out.Image == nil {
		t.Fatal("no working image")
	}
	// The ROI is padded 8% per side around the region.
	if out.ROI.X0 >= region.X0 || out.ROI.X1 <= region.X1 {
		t.Errorf("ROI %+v does not pad region %+v", out.ROI, region)
	}

	// A page point inside the ROI round-trips through the transforms.
	box := coords.NewRect(150, 100, 250, 150)
	back := out.MapToPage(out.MapFromPage(box))
	const eps = 1e-6
	if diff := back.X0 - box.X0; diff > eps || diff < -eps {
		t.Errorf("round trip X0 = %v, want %v", back.X0, box.X0)
	}
	if diff := back.Y1 - box.Y1; diff > eps || diff < -eps {
		t.Errorf("round trip Y1 = %v, want %v", back.Y1, box.Y1)
	}

	// The ROI origin maps to the working image origin.
	origin := out.MapFromPage(coords.NewRect(out.ROI.X0, out.ROI.Y0, out.ROI.X0+1, out.ROI.Y0+1))
	if origin.X0 != 0 || origin.Y0 != 0 {
		t.Errorf("origin maps to (%v, %v)", origin.X0, origin.Y0)
	}
}

func TestPreprocessDownscalesWideCrops(t *testing.T) {
	img := flatImage(2400, 600, color.RGBA{R: 180, G: 180, B: 180, A: 255})
	out := Preprocess(img, coords.NewRect(0, 0, 2400, 600))
	if got := out.Image.Bounds().Dx(); got > 1600 {
		t.Errorf("working width = %d, want <= 1600", got)
	}
}

func TestPreprocessEmptyRegionUsesFullFrame(t *testing.T) {
	img := flatImage(120, 80, color.RGBA{R: 180, G: 180, B: 180, A: 255})
	out := Preprocess(img, coords.Rect{})
	if out.ROI != (coords.Rect{X0: 0, Y0: 0, X1: 120, Y1: 80}) {
		t.Errorf("ROI = %+v, want full frame", out.ROI)
	}
}

func TestStretchContrast(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 100, 1))
	for x := 0; x < 100; x++ {
		v := uint8(100)
		if x >= 50 {
			v = 150
		}
		gray.SetGray(x, 0, color.Gray{Y: v})
	}
	out := stretchContrast(gray)
	lo, hi := out.GrayAt(0, 0).Y, out.GrayAt(99, 0).Y
	if lo != 0 || hi != 255 {
		t.Errorf("stretched range = %d..%d, want 0..255", lo, hi)
	}
}
