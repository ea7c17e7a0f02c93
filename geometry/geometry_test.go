package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	n := V(3, 4).Normalize()
	assert.InDelta(t, 0.6, n.X, 1e-9)
	assert.InDelta(t, 0.8, n.Y, 1e-9)

	assert.Equal(t, Vec2{}, Vec2{}.Normalize(), "zero vector stays zero")
}

func TestReflect(t *testing.T) {
	// ball moving left hits the west wall (normal points east)
	r := Reflect(V(-5, 2), V(1, 0))
	assert.InDelta(t, 5, r.X, 1e-9)
	assert.InDelta(t, 2, r.Y, 1e-9)
}

func TestCirclesOverlap(t *testing.T) {
	assert.True(t, CirclesOverlap(Circle{V(0, 0), 10}, Circle{V(15, 0), 10}))
	assert.False(t, CirclesOverlap(Circle{V(0, 0), 10}, Circle{V(20, 0), 10}), "touching is not overlapping")
	assert.False(t, CirclesOverlap(Circle{V(0, 0), 10}, Circle{V(25, 0), 10}))
	assert.True(t, CirclesOverlap(Circle{V(5, 5), 1}, Circle{V(5, 5), 1}))
}

func TestCircleRect(t *testing.T) {
	field := Rect{Min: V(0, 0), Max: V(800, 600)}

	assert.True(t, field.ContainsCircle(Circle{V(400, 300), 10}))
	assert.False(t, field.ContainsCircle(Circle{V(5, 300), 10}))

	assert.True(t, CircleIntersectsRect(Circle{V(-5, 300), 10}, field))
	assert.False(t, CircleIntersectsRect(Circle{V(-11, 300), 10}, field))
	assert.False(t, CircleIntersectsRect(Circle{V(-8, -8), 10}, field), "corner distance is ~11.3")
}

func TestClampAndDistance(t *testing.T) {
	assert.Equal(t, 1.0, Clamp(-3, 1, 5))
	assert.Equal(t, 5.0, Clamp(9, 1, 5))
	assert.Equal(t, 3.0, Clamp(3, 1, 5))
	assert.InDelta(t, math.Sqrt2, Distance(V(0, 0), V(1, 1)), 1e-12)
}
