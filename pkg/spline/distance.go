package spline

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ClampDistance wraps distance into [0, length] on loops and clamps it on
// open splines.
func (s *Spline) ClampDistance(distance float64) float64 {
	return s.ClampDistanceAgainstLength(distance, s.length)
}

func (s *Spline) ClampDistanceAgainstLength(distance, length float64) float64 {
	if length <= 0 {
		return 0
	}
	if distance < 0 {
		if s.closed {
			return length - math.Mod(-distance, length)
		}
		return 0
	}
	if distance > length {
		if s.closed {
			return math.Mod(distance, length)
		}
		return length
	}
	return distance
}

// DistanceDifference returns distance0 minus distance1, taking the short way
// round on closed loops. A zero length means the length of the spline.
func (s *Spline) DistanceDifference(distance0, distance1, length float64, signed bool) float64 {
	return DistanceDifference(distance0, distance1, length, s.closed && s.length > 0, signed, s.length)
}

// DistanceDifference is the free form of Spline.DistanceDifference for
// callers holding only a length.
func DistanceDifference(distance0, distance1, length float64, closed, signed bool, fallback float64) float64 {
	diff := distance0 - distance1
	if closed {
		if length == 0 {
			length = fallback
		}
		half := length * 0.5
		if math.Abs(diff) > half {
			switch {
			case distance0 <= half && distance1 >= length-half:
				diff = distance0 + (length - distance1)
			case distance1 <= half && distance0 >= length-half:
				diff = -(distance1 + (length - distance0))
			}
		}
	}
	if signed {
		return diff
	}
	return math.Abs(diff)
}

// Side returns 1 when location is on the positive Y side of the curve at
// distance, -1 otherwise.
func (s *Spline) Side(distance float64, location mgl64.Vec3) float64 {
	side := s.RightVectorAt(distance)
	if location.Sub(s.LocationAt(distance)).Dot(side) >= 0 {
		return 1
	}
	return -1
}

// RelativeDirection returns 1 when direction travels with the curve at
// distance, -1 when against it.
func (s *Spline) RelativeDirection(distance float64, direction mgl64.Vec3) int {
	if direction.Dot(s.DirectionAt(distance)) >= 0 {
		return 1
	}
	return -1
}

// WorldToSplineSpace expresses a world location relative to the curve frame at
// distance. Without fullLocation only the rotation is applied.
func (s *Spline) WorldToSplineSpace(world mgl64.Vec3, distance float64, fullLocation bool) mgl64.Vec3 {
	q := s.QuaternionAt(distance)
	if fullLocation {
		world = world.Sub(s.LocationAt(distance))
	}
	return q.Inverse().Rotate(world)
}

func (s *Spline) SplineToWorldSpace(local mgl64.Vec3, distance float64, fullLocation bool) mgl64.Vec3 {
	v := s.QuaternionAt(distance).Rotate(local)
	if fullLocation {
		v = v.Add(s.LocationAt(distance))
	}
	return v
}

// DistanceInto returns how far distance lies past start within the section
// [start, end], wrapping on loops. Outside the section it returns 0.
func (s *Spline) DistanceInto(distance, start, end float64) float64 {
	distance, start, end = s.ClampDistance(distance), s.ClampDistance(start), s.ClampDistance(end)
	if start > end {
		if distance >= start {
			return distance - start
		} else if distance <= end {
			return distance + (s.length - start)
		}
		return 0
	}
	if distance >= start && distance <= end {
		return distance - start
	}
	return 0
}

// DistanceLeft returns how far distance lies before end within the section.
func (s *Spline) DistanceLeft(distance, start, end float64) float64 {
	distance, start, end = s.ClampDistance(distance), s.ClampDistance(start), s.ClampDistance(end)
	if start > end {
		if distance >= start {
			return end + (s.length - distance)
		} else if distance <= end {
			return end - distance
		}
		return 0
	}
	if distance >= start && distance <= end {
		return end - distance
	}
	return 0
}
