package vision

import (
	"image"
	"math"
	"sort"

	"github.com/cardshield/cardshield/coords"
)

// VisualPAN describes a PAN-shaped pixel pattern found without OCR. It only
// ever supports a REVIEW decision and a suggested redaction; it is never
// structural evidence on its own.
type VisualPAN struct {
	Box             coords.Rect `json:"box"`
	CardAspectRatio float64     `json:"card_aspect_ratio"`
	DigitLikeCount  int         `json:"digit_like_count"`
	SpacingCV       float64     `json:"spacing_cv"`
}

// segment is one digit-like run of inked columns inside the PAN band.
type segment struct {
	x0, x1  int
	y0, y1  int
	centerX float64
	centerY float64
	height  float64
}

// DetectVisualPAN looks for a horizontal run of evenly spaced digit-sized
// marks in the band where embossed PANs sit. The heuristic requires a
// card-shaped subject (aspect ratio 1.4–1.9 covering at least 40% of the
// frame), 10–32 digit-like marks on a shared baseline, and regular spacing.
func DetectVisualPAN(img image.Image) (VisualPAN, bool) {
	gray := ToGray(img)
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 32 || h < 32 {
		return VisualPAN{}, false
	}

	card, ok := guessDocumentRegion(img)
	if !ok {
		return VisualPAN{}, false
	}
	if card.Area() < 0.4*float64(w)*float64(h) {
		return VisualPAN{}, false
	}
	aspect := card.Width() / card.Height()
	if aspect < 1.4 || aspect > 1.9 {
		return VisualPAN{}, false
	}

	bandY0 := card.Y0 + card.Height()*0.30
	bandY1 := card.Y0 + card.Height()*0.60
	bandX0 := card.X0 + card.Width()*0.05
	bandX1 := card.X0 + card.Width()*0.95
	segments := bandSegments(gray, int(bandX0), int(bandX1), int(bandY0), int(bandY1))

	minH := card.Height() * 0.03
	maxH := card.Height() * 0.10
	minW := card.Width() * 0.01
	maxW := card.Width() * 0.06
	var digitLike []segment
	for _, s := range segments {
		sw := float64(s.x1 - s.x0)
		sh := s.height
		if sw < minW || sw > maxW || sh < minH || sh > maxH {
			continue
		}
		if sh == 0 {
			continue
		}
		ar := sw / sh
		if ar < 0.2 || ar > 1.0 {
			continue
		}
		digitLike = append(digitLike, s)
	}
	if len(digitLike) < 10 || len(digitLike) > 32 {
		return VisualPAN{}, false
	}

	centersY := make([]float64, len(digitLike))
	var heightSum float64
	for i, s := range digitLike {
		centersY[i] = s.centerY
		heightSum += s.height
	}
	avgHeight := heightSum / float64(len(digitLike))
	medianY := median(centersY)
	for _, cy := range centersY {
		if math.Abs(cy-medianY) > 0.25*avgHeight {
			return VisualPAN{}, false
		}
	}

	sort.Slice(digitLike, func(i, j int) bool { return digitLike[i].x0 < digitLike[j].x0 })
	var spacings []float64
	for i := 1; i < len(digitLike); i++ {
		gap := digitLike[i].centerX - digitLike[i-1].centerX
		if gap > 0 {
			spacings = append(spacings, gap)
		}
	}
	if len(spacings) == 0 {
		return VisualPAN{}, false
	}
	medSpacing := median(spacings)
	if medSpacing <= 0 {
		return VisualPAN{}, false
	}
	cv := stddev(spacings) / medSpacing
	if cv >= 0.6 {
		return VisualPAN{}, false
	}

	box := coords.Rect{
		X0: float64(digitLike[0].x0),
		Y0: float64(digitLike[0].y0),
		X1: float64(digitLike[0].x1),
		Y1: float64(digitLike[0].y1),
	}
	for _, s := range digitLike[1:] {
		box = box.Union(coords.Rect{X0: float64(s.x0), Y0: float64(s.y0), X1: float64(s.x1), Y1: float64(s.y1)})
	}
	return VisualPAN{
		Box:             box,
		CardAspectRatio: aspect,
		DigitLikeCount:  len(digitLike),
		SpacingCV:       cv,
	}, true
}

// bandSegments segments the band by column ink profile. A column is inked
// when it holds pixels darker than the band mean minus a margin; consecutive
// inked columns form one candidate mark.
func bandSegments(gray *image.Gray, x0, x1, y0, y1 int) []segment {
	bounds := gray.Bounds()
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > bounds.Dx() {
		x1 = bounds.Dx()
	}
	if y1 > bounds.Dy() {
		y1 = bounds.Dy()
	}
	if x1-x0 < 4 || y1-y0 < 4 {
		return nil
	}

	var sum, count float64
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			sum += float64(gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			count++
		}
	}
	threshold := sum/count - 30

	type colInk struct {
		inked  bool
		yFirst int
		yLast  int
	}
	cols := make([]colInk, x1-x0)
	for x := x0; x < x1; x++ {
		c := colInk{yFirst: -1}
		for y := y0; y < y1; y++ {
			if float64(gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y) < threshold {
				if c.yFirst < 0 {
					c.yFirst = y
				}
				c.yLast = y
				c.inked = true
			}
		}
		cols[x-x0] = c
	}

	var segments []segment
	i := 0
	for i < len(cols) {
		if !cols[i].inked {
			i++
			continue
		}
		j := i
		segY0, segY1 := cols[i].yFirst, cols[i].yLast
		for j < len(cols) && cols[j].inked {
			if cols[j].yFirst < segY0 {
				segY0 = cols[j].yFirst
			}
			if cols[j].yLast > segY1 {
				segY1 = cols[j].yLast
			}
			j++
		}
		s := segment{x0: x0 + i, x1: x0 + j, y0: segY0, y1: segY1 + 1}
		s.centerX = float64(s.x0+s.x1) / 2
		s.centerY = float64(s.y0+s.y1) / 2
		s.height = float64(s.y1 - s.y0)
		segments = append(segments, s)
		i = j
	}
	return segments
}

func median(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func stddev(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	var sq float64
	for _, v := range vals {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq / float64(len(vals)))
}
