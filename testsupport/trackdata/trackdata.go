// Package trackdata provides synthetic track geometry for tests.
// All values are in world units (cm).
package trackdata

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Circle returns n points counter-clockwise around the origin in the XY plane,
// starting at (radius, 0, 0).
func Circle(radius float64, n int) []mgl64.Vec3 {
	return Arc(radius, 0, 2*math.Pi, n, false)
}

// Arc returns points on a circle between two angles (radians). With
// inclusive the end angle itself is part of the result.
func Arc(radius, from, to float64, n int, inclusive bool) []mgl64.Vec3 {
	div := float64(n)
	if inclusive {
		div = float64(n - 1)
	}
	ret := make([]mgl64.Vec3, n)
	for i := range ret {
		ret[i] = OnCircle(radius, from+(to-from)*float64(i)/div)
	}
	return ret
}

// Line returns n evenly spaced points from a to b (inclusive).
func Line(a, b mgl64.Vec3, n int) []mgl64.Vec3 {
	ret := make([]mgl64.Vec3, n)
	for i := range ret {
		t := float64(i) / float64(n-1)
		ret[i] = a.Add(b.Sub(a).Mul(t))
	}
	return ret
}

// Detour returns an open path that leaves a circle of the given radius at
// angle from, bulges outwards by bulge and rejoins the circle at angle to.
func Detour(radius, from, to, bulge float64, n int) []mgl64.Vec3 {
	ret := make([]mgl64.Vec3, n)
	for i := range ret {
		t := float64(i) / float64(n-1)
		a := from + (to-from)*t
		r := radius + bulge*math.Sin(t*math.Pi)
		ret[i] = mgl64.Vec3{r * math.Cos(a), r * math.Sin(a), 0}
	}
	return ret
}

// Reverse returns points in reverse order.
func Reverse(points []mgl64.Vec3) []mgl64.Vec3 {
	ret := make([]mgl64.Vec3, len(points))
	for i, p := range points {
		ret[len(points)-1-i] = p
	}
	return ret
}

// OnCircle returns the location at angle a (radians) on a circle.
func OnCircle(radius, a float64) mgl64.Vec3 {
	return mgl64.Vec3{radius * math.Cos(a), radius * math.Sin(a), 0}
}

// Tangent returns the counter-clockwise tangent of a circle at angle a.
func Tangent(a float64) mgl64.Vec3 {
	return mgl64.Vec3{-math.Sin(a), math.Cos(a), 0}
}
