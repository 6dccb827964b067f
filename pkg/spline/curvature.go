package spline

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	straightMinLength          = 100 * 100.0
	straightMaxDegreesPerSec   = 75.0
	straightBaseSpeedMetersSec = 700.0 / 3.6
)

// CurvatureOverDistance sums the rotation change of the curve from distance
// over the next overDistance units in the given direction (+1 or -1), seen
// from withRespectTo. Open splines only consume the part of overDistance they
// can cover; the uncovered remainder is returned. Loops always return 0.
func (s *Spline) CurvatureOverDistance(
	distance, overDistance float64,
	direction int,
	withRespectTo mgl64.Quat,
	absolute bool,
) (Rotator, float64) {
	var degrees Rotator
	if !s.Valid() || s.length <= 0 {
		return degrees, overDistance
	}
	if direction >= 0 {
		direction = 1
	} else {
		direction = -1
	}
	end := distance + overDistance*float64(direction)
	if s.closed {
		overDistance = 0
	} else {
		end = s.ClampDistance(end)
		overDistance -= math.Abs(end - distance)
	}
	inv := withRespectTo.Normalize().Inverse()
	step := ExtendedPointMeters * 100
	n := int(math.Ceil(math.Abs(end-distance) / step))
	last := RotatorFromQuat(inv.Mul(s.QuaternionAt(distance)))
	for i := 0; i < n; i++ {
		distance = s.ClampDistance(distance + step*float64(direction))
		rot := RotatorFromQuat(inv.Mul(s.QuaternionAt(distance)))
		if absolute {
			degrees = degrees.Add(UnsignedDegreesDifference(last, rot))
		} else {
			degrees = degrees.Add(SignedDegreesDifference(last, rot))
		}
		last = rot
	}
	return degrees, overDistance
}

// calcStraightSections finds stretches of at least 100 m whose rotation
// change per sample stays below what a fast vehicle could follow.
func (s *Spline) calcStraightSections() []Section {
	if s.length <= 0 {
		return nil
	}
	step := ExtendedPointMeters * 100
	n := int(math.Ceil(s.length / step))
	rotations := make([]Rotator, 0, n)
	d := 0.0
	last := s.RotatorAt(d)
	for i := 0; i < n; i++ {
		d = s.ClampDistance(d + step)
		rot := s.RotatorAt(d)
		rotations = append(rotations, UnsignedDegreesDifference(last, rot))
		last = rot
	}
	maxPerStep := straightMaxDegreesPerSec / (straightBaseSpeedMetersSec / ExtendedPointMeters)
	tooWindy := func(r Rotator) bool {
		return math.Max(r.Yaw, r.Pitch) > maxPerStep || r.Roll > maxPerStep*2
	}

	sections := []Section{{Start: 0, End: s.length}}
	for index := 0; index < len(sections); index++ {
		sec := &sections[index]
		if sec.Start >= sec.End {
			continue
		}
		i0 := max(int(math.Floor(sec.Start/step)), 0)
		i1 := min(int(math.Ceil(sec.End/step)), len(rotations)-1)
		for i := i0; i <= i1; i++ {
			if !tooWindy(rotations[i]) {
				continue
			}
			j := i + 1
			for ; j <= i1; j++ {
				if !tooWindy(rotations[j]) {
					break
				}
			}
			ed0 := math.Max(float64(i-1)*step, sec.Start)
			ed1 := math.Min(float64(j)*step, sec.End)
			ed2 := sec.End
			sec.End = ed0
			if ed1 < ed2 {
				sections = append(sections[:index+1],
					append([]Section{{Start: ed1, End: ed2}}, sections[index+1:]...)...)
			}
			break
		}
	}
	out := sections[:0]
	for _, sec := range sections {
		if sec.End-sec.Start >= straightMinLength {
			out = append(out, sec)
		}
	}
	return out
}
