// Package geometry holds the 2D math used by the physics engine.
package geometry

import "math"

// Vec2 is a point or velocity on the playfield.
type Vec2 struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

func V(x, y float64) Vec2 { return Vec2{X: x, Y: y} }

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }

func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.X - o.X, v.Y - o.Y} }

func (v Vec2) Scale(s float64) Vec2 { return Vec2{v.X * s, v.Y * s} }

func (v Vec2) Dot(o Vec2) float64 { return v.X*o.X + v.Y*o.Y }

func (v Vec2) Len() float64 { return math.Hypot(v.X, v.Y) }

func (v Vec2) LenSq() float64 { return v.X*v.X + v.Y*v.Y }

// Normalize returns the unit vector of v, or the zero vector when v is zero.
func (v Vec2) Normalize() Vec2 {
	l := v.Len()
	if l == 0 {
		return Vec2{}
	}
	return Vec2{v.X / l, v.Y / l}
}

// Reflect mirrors v about the surface with unit normal n.
func Reflect(v, n Vec2) Vec2 {
	return v.Sub(n.Scale(2 * v.Dot(n)))
}

// Distance returns the distance between two points.
func Distance(a, b Vec2) float64 {
	return a.Sub(b).Len()
}

// Clamp restricts v to [min, max].
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Circle is a body with a centre and radius.
type Circle struct {
	C Vec2
	R float64
}

// CirclesOverlap reports whether two circles strictly intersect
// (centre distance less than the sum of radii).
func CirclesOverlap(a, b Circle) bool {
	rs := a.R + b.R
	return a.C.Sub(b.C).LenSq() < rs*rs
}

// Rect is an axis-aligned rectangle.
type Rect struct {
	Min, Max Vec2
}

// ClosestPoint returns the point of r nearest to p.
func (r Rect) ClosestPoint(p Vec2) Vec2 {
	return Vec2{Clamp(p.X, r.Min.X, r.Max.X), Clamp(p.Y, r.Min.Y, r.Max.Y)}
}

// ContainsCircle reports whether c lies completely inside r.
func (r Rect) ContainsCircle(c Circle) bool {
	return c.C.X-c.R >= r.Min.X && c.C.X+c.R <= r.Max.X &&
		c.C.Y-c.R >= r.Min.Y && c.C.Y+c.R <= r.Max.Y
}

// CircleIntersectsRect reports whether any part of c overlaps r.
func CircleIntersectsRect(c Circle, r Rect) bool {
	return c.C.Sub(r.ClosestPoint(c.C)).LenSq() < c.R*c.R
}
