package spline

import (
	"math"
	"sort"

	"github.com/cnkei/gospline"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// reparamSteps is the number of distance samples taken per curve segment
	reparamSteps = 100
	// ExtendedPointMeters is the spacing used for sampled rotations
	ExtendedPointMeters = 10.0
	keyDelta            = 0.01
)

// axis evaluates one coordinate of the curve for a given input key
type axis interface {
	At(x float64) float64
}

type linear struct {
	xs, ys []float64
}

func (l linear) At(x float64) float64 {
	if x <= l.xs[0] {
		return l.ys[0]
	}
	last := len(l.xs) - 1
	if x >= l.xs[last] {
		return l.ys[last]
	}
	i := sort.SearchFloat64s(l.xs, x)
	x0, x1 := l.xs[i-1], l.xs[i]
	t := (x - x0) / (x1 - x0)
	return l.ys[i-1] + (l.ys[i]-l.ys[i-1])*t
}

type reparamEntry struct {
	distance float64
	key      float64
}

// Section is a stretch of a spline between two distances.
type Section struct {
	Start float64
	End   float64
}

// Spline is an immutable curve through control points. Input keys equal the
// point index. Distances are measured along the curve in world units.
type Spline struct {
	points   []mgl64.Vec3
	closed   bool
	axes     [3]axis
	reparam  []reparamEntry
	length   float64
	maxKey   float64
	straight []Section
}

// New builds a spline through points. Closed loops join the last point back
// to the first.
func New(points []mgl64.Vec3, closed bool) *Spline {
	s := &Spline{
		points: append([]mgl64.Vec3(nil), points...),
		closed: closed,
	}
	if len(points) < 2 {
		return s
	}
	s.buildAxes()
	s.buildReparam()
	s.straight = s.calcStraightSections()
	return s
}

func (s *Spline) buildAxes() {
	n := len(s.points)
	var keys []int
	if s.closed {
		s.maxKey = float64(n)
		for k := -2; k <= n+2; k++ {
			keys = append(keys, k)
		}
	} else {
		s.maxKey = float64(n - 1)
		for k := 0; k < n; k++ {
			keys = append(keys, k)
		}
	}
	xs := make([]float64, len(keys))
	for c := 0; c < 3; c++ {
		ys := make([]float64, len(keys))
		for i, k := range keys {
			xs[i] = float64(k)
			ys[i] = s.points[wrapIndex(k, n)][c]
		}
		if len(keys) < 3 {
			s.axes[c] = linear{xs: append([]float64(nil), xs...), ys: ys}
		} else {
			s.axes[c] = gospline.NewCubicSpline(append([]float64(nil), xs...), ys)
		}
	}
}

func (s *Spline) buildReparam() {
	steps := int(s.maxKey) * reparamSteps
	s.reparam = make([]reparamEntry, 0, steps+1)
	last := s.LocationAtKey(0)
	total := 0.0
	s.reparam = append(s.reparam, reparamEntry{distance: 0, key: 0})
	for i := 1; i <= steps; i++ {
		key := float64(i) / reparamSteps
		p := s.LocationAtKey(key)
		total += p.Sub(last).Len()
		s.reparam = append(s.reparam, reparamEntry{distance: total, key: key})
		last = p
	}
	s.length = total
}

func wrapIndex(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

func (s *Spline) IsClosedLoop() bool { return s.closed }

func (s *Spline) Length() float64 { return s.length }

func (s *Spline) NumPoints() int { return len(s.points) }

// Valid reports whether the spline has enough points to be queried.
func (s *Spline) Valid() bool { return s != nil && len(s.points) >= 2 }

func (s *Spline) Point(i int) mgl64.Vec3 {
	if len(s.points) == 0 {
		return mgl64.Vec3{}
	}
	return s.points[wrapIndex(i, len(s.points))]
}

func (s *Spline) StraightSections() []Section {
	return append([]Section(nil), s.straight...)
}

func (s *Spline) LocationAtKey(key float64) mgl64.Vec3 {
	switch len(s.points) {
	case 0:
		return mgl64.Vec3{}
	case 1:
		return s.points[0]
	}
	key = s.clampKey(key)
	return mgl64.Vec3{s.axes[0].At(key), s.axes[1].At(key), s.axes[2].At(key)}
}

func (s *Spline) clampKey(key float64) float64 {
	if s.closed {
		key = math.Mod(key, s.maxKey)
		if key < 0 {
			key += s.maxKey
		}
		return key
	}
	return mgl64.Clamp(key, 0, s.maxKey)
}

// KeyAtDistance maps a distance along the curve to an input key.
func (s *Spline) KeyAtDistance(distance float64) float64 {
	if len(s.reparam) < 2 {
		return 0
	}
	distance = s.ClampDistance(distance)
	i := sort.Search(len(s.reparam), func(i int) bool {
		return s.reparam[i].distance >= distance
	})
	if i == 0 {
		return s.reparam[0].key
	}
	if i >= len(s.reparam) {
		return s.reparam[len(s.reparam)-1].key
	}
	a, b := s.reparam[i-1], s.reparam[i]
	if b.distance-a.distance <= 0 {
		return a.key
	}
	t := (distance - a.distance) / (b.distance - a.distance)
	return a.key + (b.key-a.key)*t
}

// DistanceAtKey maps an input key to a distance along the curve.
func (s *Spline) DistanceAtKey(key float64) float64 {
	if len(s.reparam) < 2 {
		return 0
	}
	if s.closed && key >= s.maxKey {
		return s.length
	}
	key = s.clampKey(key)
	pos := key * reparamSteps
	i := int(math.Floor(pos))
	if i >= len(s.reparam)-1 {
		return s.reparam[len(s.reparam)-1].distance
	}
	a, b := s.reparam[i], s.reparam[i+1]
	return a.distance + (b.distance-a.distance)*(pos-float64(i))
}

// PointDistance returns the distance of control point i along the curve.
func (s *Spline) PointDistance(i int) float64 {
	return s.DistanceAtKey(float64(i))
}

func (s *Spline) LocationAt(distance float64) mgl64.Vec3 {
	return s.LocationAtKey(s.KeyAtDistance(distance))
}

func (s *Spline) DirectionAtKey(key float64) mgl64.Vec3 {
	if !s.Valid() {
		return mgl64.Vec3{1, 0, 0}
	}
	k0, k1 := key-keyDelta, key+keyDelta
	if !s.closed {
		k0 = math.Max(k0, 0)
		k1 = math.Min(k1, s.maxKey)
	}
	d := s.LocationAtKey(k1).Sub(s.LocationAtKey(k0))
	if d.Len() < 1e-9 {
		i := int(math.Floor(s.clampKey(key)))
		d = s.Point(i + 1).Sub(s.Point(i))
		if d.Len() < 1e-9 {
			return mgl64.Vec3{1, 0, 0}
		}
	}
	return d.Normalize()
}

// DirectionAt returns the unit tangent at distance.
func (s *Spline) DirectionAt(distance float64) mgl64.Vec3 {
	return s.DirectionAtKey(s.KeyAtDistance(distance))
}

// QuaternionAt returns the orientation of the curve at distance. The curve
// carries no roll so the side axis stays level.
func (s *Spline) QuaternionAt(distance float64) mgl64.Quat {
	return QuatFromDirection(s.DirectionAt(distance))
}

func (s *Spline) RotatorAt(distance float64) Rotator {
	return RotatorFromQuat(s.QuaternionAt(distance))
}

// UpVectorAt returns the local Z axis at distance.
func (s *Spline) UpVectorAt(distance float64) mgl64.Vec3 {
	return s.QuaternionAt(distance).Rotate(mgl64.Vec3{0, 0, 1})
}

// RightVectorAt returns the local Y axis at distance.
func (s *Spline) RightVectorAt(distance float64) mgl64.Vec3 {
	return s.QuaternionAt(distance).Rotate(mgl64.Vec3{0, 1, 0})
}
