// Package coords provides the pure geometry used across the detection
// pipeline: axis-aligned rectangles in page or image space and affine
// transforms between a cropped/scaled working image and the original page.
package coords

import (
	"errors"
	"math"
)

// Matrix is a 2D affine transform in the order [a b c d e f], mapping
// (x, y) to (a*x + c*y + e, b*x + d*y + f).
type Matrix [6]float64

func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }

func Scale(sx, sy float64) Matrix { return Matrix{sx, 0, 0, sy, 0, 0} }

// Multiply returns m followed by o.
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

// Inverse returns the inverse transform, or an error for a singular matrix.
func (m Matrix) Inverse() (Matrix, error) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(det) < 1e-10 {
		return Matrix{}, errors.New("matrix singular")
	}
	return Matrix{
		m[3] / det,
		-m[1] / det,
		-m[2] / det,
		m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det,
		(m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}

type Point struct{ X, Y float64 }

func (m Matrix) Transform(p Point) Point {
	return Point{X: m[0]*p.X + m[2]*p.Y + m[4], Y: m[1]*p.X + m[3]*p.Y + m[5]}
}

// Rect is an axis-aligned box with X0 <= X1 and Y0 <= Y1, origin upper-left.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

func NewRect(x0, y0, x1, y1 float64) Rect {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	return Rect{X0: x0, Y0: y0, X1: x1, Y1: y1}
}

func (r Rect) Width() float64  { return r.X1 - r.X0 }
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }
func (r Rect) Area() float64   { return r.Width() * r.Height() }
func (r Rect) IsEmpty() bool   { return r.Width() <= 0 || r.Height() <= 0 }

// YCenter returns the vertical midpoint, used for OCR line clustering.
func (r Rect) YCenter() float64 { return (r.Y0 + r.Y1) / 2 }

// Union returns the smallest rectangle covering both r and o.
func (r Rect) Union(o Rect) Rect {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	return Rect{
		X0: math.Min(r.X0, o.X0),
		Y0: math.Min(r.Y0, o.Y0),
		X1: math.Max(r.X1, o.X1),
		Y1: math.Max(r.Y1, o.Y1),
	}
}

// Intersect returns the overlap of r and o; the result may be empty.
func (r Rect) Intersect(o Rect) Rect {
	out := Rect{
		X0: math.Max(r.X0, o.X0),
		Y0: math.Max(r.Y0, o.Y0),
		X1: math.Min(r.X1, o.X1),
		Y1: math.Min(r.Y1, o.Y1),
	}
	if out.IsEmpty() {
		return Rect{}
	}
	return out
}

// Pad grows the rectangle by dx/dy on each side, clamped to bounds.
func (r Rect) Pad(dx, dy float64, bounds Rect) Rect {
	out := Rect{X0: r.X0 - dx, Y0: r.Y0 - dy, X1: r.X1 + dx, Y1: r.Y1 + dy}
	return out.Clamp(bounds)
}

// Clamp restricts the rectangle to bounds.
func (r Rect) Clamp(bounds Rect) Rect {
	out := Rect{
		X0: math.Max(r.X0, bounds.X0),
		Y0: math.Max(r.Y0, bounds.Y0),
		X1: math.Min(r.X1, bounds.X1),
		Y1: math.Min(r.Y1, bounds.Y1),
	}
	if out.X1 < out.X0 {
		out.X1 = out.X0
	}
	if out.Y1 < out.Y0 {
		out.Y1 = out.Y0
	}
	return out
}

// TransformRect maps the rectangle's corners through m and returns their
// bounding box. For affine transforms this is exact for axis-aligned input.
func (m Matrix) TransformRect(r Rect) Rect {
	corners := [4]Point{
		{r.X0, r.Y0}, {r.X1, r.Y0}, {r.X1, r.Y1}, {r.X0, r.Y1},
	}
	first := m.Transform(corners[0])
	out := Rect{X0: first.X, Y0: first.Y, X1: first.X, Y1: first.Y}
	for _, c := range corners[1:] {
		p := m.Transform(c)
		out.X0 = math.Min(out.X0, p.X)
		out.Y0 = math.Min(out.Y0, p.Y)
		out.X1 = math.Max(out.X1, p.X)
		out.Y1 = math.Max(out.Y1, p.Y)
	}
	return out
}
