package spline

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	DefaultIterations = 4
	DefaultSamples    = 50
	DefaultEarlyExit  = 10.0
)

// Search describes the budget of an iterative nearest-distance search.
// End <= 0 means the full length of the spline.
type Search struct {
	Start      float64
	End        float64
	Iterations int
	Samples    int
	EarlyExit  float64
}

func DefaultSearch() Search {
	return Search{Iterations: DefaultIterations, Samples: DefaultSamples, EarlyExit: DefaultEarlyExit}
}

// NearestDistance returns the distance along the spline closest to location.
// Each iteration samples the current bracket evenly and narrows it to one
// sample step either side of the best sample.
func (s *Spline) NearestDistance(
	location mgl64.Vec3,
	start, end float64,
	iterations, samples int,
	earlyExit float64,
) float64 {
	return s.search(Search{start, end, iterations, samples, earlyExit},
		func(d float64) float64 {
			return s.LocationAt(d).Sub(location).LenSqr()
		}, earlyExit*earlyExit)
}

// NearestDistanceToPlane returns the distance along the spline where it is
// nearest to the plane through planeLocation with the given normal.
func (s *Spline) NearestDistanceToPlane(
	planeLocation, planeNormal mgl64.Vec3,
	start, end float64,
	iterations, samples int,
	earlyExit float64,
) float64 {
	if planeNormal.Len() < 1e-9 {
		return start
	}
	n := planeNormal.Normalize()
	return s.search(Search{start, end, iterations, samples, earlyExit},
		func(d float64) float64 {
			return math.Abs(s.LocationAt(d).Sub(planeLocation).Dot(n))
		}, earlyExit)
}

// Nearest runs NearestDistance with the budget in q.
func (s *Spline) Nearest(location mgl64.Vec3, q Search) float64 {
	return s.NearestDistance(location, q.Start, q.End, q.Iterations, q.Samples, q.EarlyExit)
}

// SearchFunc runs the iterative search with a caller supplied measure.
// away is evaluated at clamped distances and the search stops early once
// the best value drops below exitAway.
//
//nolint:gocritic // by design
func (s *Spline) SearchFunc(q Search, away func(distance float64) float64, exitAway float64) float64 {
	return s.search(q, away, exitAway)
}

//nolint:gocritic // by design
func (s *Spline) search(q Search, away func(float64) float64, exitAway float64) float64 {
	if !s.Valid() || s.length <= 0 {
		return 0
	}
	if q.End <= 0 {
		q.End = s.length
	}
	if q.Iterations <= 0 {
		q.Iterations = 5
	}
	if q.Samples <= 0 {
		q.Samples = DefaultSamples
	}
	minD, maxD := q.Start, q.End
	best := -1.0
	result := s.ClampDistance(minD)
	for iteration := 0; iteration < q.Iterations; iteration++ {
		step := (maxD - minD) / float64(q.Samples)
		lastResult := result
		along := minD
		for sample := 0; sample <= q.Samples; sample++ {
			d := s.ClampDistance(along)
			a := away(d)
			if best < 0 || a < best {
				best = a
				result = d
			}
			along += step
		}
		if iteration > 0 && step < q.EarlyExit*2 &&
			s.DistanceDifference(result, lastResult, 0, false) < q.EarlyExit {
			break
		}
		if best < exitAway {
			break
		}
		minD = result - step
		maxD = result + step
	}
	return result
}

// NumSamplesForRange returns the samples per iteration needed to resolve
// rangeDistance down to accuracy within the given number of iterations.
func NumSamplesForRange(rangeDistance float64, iterations int, accuracy float64, minimum int) int {
	if iterations <= 0 {
		iterations = 5
	}
	if accuracy <= 0 {
		accuracy = 1
	}
	n := int(math.Ceil(math.Pow(math.Max(1, rangeDistance)/accuracy, 1/float64(iterations)) * 2))
	return max(minimum, n)
}
