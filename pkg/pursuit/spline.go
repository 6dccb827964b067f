package pursuit

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/mpapenbr/racenav/pkg/scene"
	"github.com/mpapenbr/racenav/pkg/spline"
)

const (
	maxOptimumSpeed   = 1000.0
	extendedSpacing   = spline.ExtendedPointMeters * 100
	withinRangePad    = 250.0
	noMasterDistance  = -1.0
	noMasterClass     = -1
	mergeWindow       = 50 * 100.0
	missingPointWidth = 50.0
)

type extendedPoint struct {
	distance       float64
	masterDistance float64
	quaternion     mgl64.Quat
}

// Spline is a pursuit spline: a scene spline plus route metadata.
type Spline struct {
	Properties
	Handle       scene.Handle
	Links        []Link
	RouteChoices []RouteChoice
	DeadStart    bool
	DeadEnd      bool

	entry    *scene.Entry
	net      *Network
	extended []extendedPoint
	// masterClass is the degree of separation the master distances were
	// derived with, noMasterClass while unknown
	masterClass int
}

func newSpline(net *Network, e *scene.Entry, props Properties) *Spline {
	s := &Spline{
		Properties:  props,
		Handle:      e.Handle,
		entry:       e,
		net:         net,
		masterClass: noMasterClass,
	}
	s.syncPointData()
	s.buildExtendedPoints()
	return s
}

// syncPointData sizes Points to the control points of the curve.
func (s *Spline) syncPointData() {
	n := s.Curve().NumPoints()
	if len(s.Points) > n {
		s.Points = s.Points[:n]
	}
	for len(s.Points) < n {
		if len(s.Points) == 0 {
			s.Points = append(s.Points, DefaultPointData())
		} else {
			s.Points = append(s.Points, s.Points[len(s.Points)-1])
		}
	}
}

func (s *Spline) buildExtendedPoints() {
	c := s.Curve()
	if !c.Valid() {
		s.extended = nil
		return
	}
	length := c.Length()
	n := max(2, int(math.Ceil(length/extendedSpacing))+1)
	s.extended = make([]extendedPoint, n)
	step := length / float64(n-1)
	for i := range s.extended {
		d := float64(i) * step
		s.extended[i] = extendedPoint{
			distance:       d,
			masterDistance: noMasterDistance,
			quaternion:     c.QuaternionAt(d),
		}
	}
}

func (s *Spline) Curve() *spline.Spline { return s.entry.Spline }

func (s *Spline) Name() string { return s.entry.Name }

func (s *Spline) RouteName() string { return s.entry.RouteName }

func (s *Spline) Enabled() bool { return s.entry.Enabled }

func (s *Spline) Length() float64 { return s.Curve().Length() }

func (s *Spline) IsClosedLoop() bool { return s.Curve().IsClosedLoop() }

func (s *Spline) bindKey(key int) int {
	n := len(s.Points)
	if n == 0 {
		return 0
	}
	if s.IsClosedLoop() {
		key %= n
		if key < 0 {
			key += n
		}
		return key
	}
	return min(max(key, 0), n-1)
}

// pointKeys returns the control points around distance and the fraction
// between them.
func (s *Spline) pointKeys(distance float64) (k0, k1 int, ratio float64) {
	key := s.Curve().KeyAtDistance(distance)
	f := math.Floor(key)
	return s.bindKey(int(f)), s.bindKey(int(math.Ceil(key))), key - f
}

// WidthAt returns the maneuvering width in meters.
func (s *Spline) WidthAt(distance float64) float64 {
	if len(s.Points) == 0 {
		return missingPointWidth
	}
	k0, k1, r := s.pointKeys(distance)
	return lerp(s.Points[k0].ManeuveringWidth, s.Points[k1].ManeuveringWidth, r)
}

// OptimumSpeedAt returns the optimum speed in km/h or 0 for full throttle.
// A point without an optimum speed counts as the maximum next to one that
// has it.
func (s *Spline) OptimumSpeedAt(distance float64) float64 {
	if len(s.Points) == 0 {
		return 0
	}
	k0, k1, r := s.pointKeys(distance)
	v0 := math.Min(s.Points[k0].OptimumSpeed, maxOptimumSpeed)
	v1 := math.Min(s.Points[k1].OptimumSpeed, maxOptimumSpeed)
	if v0 == 0 && v1 == 0 {
		return 0
	}
	if v0 == 0 {
		v0 = maxOptimumSpeed
	}
	if v1 == 0 {
		v1 = maxOptimumSpeed
	}
	return lerp(v0, v1, r)
}

func (s *Spline) MinimumSpeedAt(distance float64) float64 {
	if len(s.Points) == 0 {
		return 0
	}
	k0, k1, r := s.pointKeys(distance)
	return lerp(s.Points[k0].MinimumSpeed, s.Points[k1].MinimumSpeed, r)
}

// sampleOver visits distance and every 10 m after it in direction until
// overDistance is covered. It returns the part of overDistance an open
// spline could not cover.
func (s *Spline) sampleOver(distance, overDistance float64, direction int, fn func(d float64)) float64 {
	c := s.Curve()
	length := c.Length()
	dir := 1.0
	if direction < 0 {
		dir = -1
	}
	end := distance + overDistance*dir
	if c.IsClosedLoop() {
		overDistance = 0
	} else {
		end = c.ClampDistanceAgainstLength(end, length)
		overDistance = math.Max(0, overDistance-math.Abs(end-distance))
	}
	n := int(math.Ceil(math.Abs(end-distance) / extendedSpacing))
	for i := 0; i <= n; i++ {
		fn(distance)
		distance = c.ClampDistanceAgainstLength(distance+extendedSpacing*dir, length)
	}
	return overDistance
}

// MinimumOptimumSpeedOverDistance returns the lowest optimum speed ahead,
// 1000 when nothing restricts it, and the uncovered remainder of
// overDistance.
func (s *Spline) MinimumOptimumSpeedOverDistance(distance, overDistance float64, direction int) (float64, float64) {
	minimum := maxOptimumSpeed
	rest := s.sampleOver(distance, overDistance, direction, func(d float64) {
		if v := s.OptimumSpeedAt(d); v > 0 {
			minimum = math.Min(minimum, v)
		}
	})
	return minimum, rest
}

// MinimumSpeedOverDistance returns the highest minimum speed demanded ahead.
func (s *Spline) MinimumSpeedOverDistance(distance, overDistance float64, direction int) (float64, float64) {
	ret := 0.0
	rest := s.sampleOver(distance, overDistance, direction, func(d float64) {
		if v := s.MinimumSpeedAt(d); v > 1e-6 {
			ret = math.Max(ret, v)
		}
	})
	return ret, rest
}

// IsWorldLocationWithinRange reports whether location lies within the
// maneuvering width around the spline at distance.
func (s *Spline) IsWorldLocationWithinRange(distance float64, location mgl64.Vec3) bool {
	local := s.Curve().WorldToSplineSpace(location, distance, true)
	lateral := math.Hypot(local.Y(), local.Z())
	return lateral <= s.WidthAt(distance)*50+withinRangePad
}

// extendedKeys returns the extended points around distance.
func (s *Spline) extendedKeys(distance float64) (k0, k1 int, ratio float64) {
	n := len(s.extended)
	if n < 2 {
		return 0, 0, 0
	}
	c := s.Curve()
	distance = c.ClampDistance(distance)
	pointLength := c.Length() / float64(n-1)
	if pointLength <= 0 {
		return 0, 0, 0
	}
	bind := func(k int) int {
		if c.IsClosedLoop() {
			k %= n
			if k < 0 {
				k += n
			}
			return k
		}
		return min(max(k, 0), n-1)
	}
	r := distance / pointLength
	k0 = bind(int(math.Floor(r)))
	k1 = bind(int(math.Ceil(r)))
	for attempts := 0; attempts < 2; attempts++ {
		p0 := s.extended[k0]
		switch {
		case distance < p0.distance:
			k0, k1 = bind(k0-1), bind(k1-1)
		case distance-p0.distance > pointLength*1.5:
			k0, k1 = bind(k0+1), bind(k1+1)
		default:
			attempts = 2
		}
	}
	ratio = mgl64.Clamp((distance-s.extended[k0].distance)/pointLength, 0, 1)
	return k0, k1, ratio
}

// QuaternionAt interpolates the cached orientations of the extended points.
func (s *Spline) QuaternionAt(distance float64) mgl64.Quat {
	if len(s.extended) < 2 {
		return mgl64.QuatIdent()
	}
	k0, k1, r := s.extendedKeys(distance)
	return mgl64.QuatSlerp(s.extended[k0].quaternion, s.extended[k1].quaternion, r)
}

func (s *Spline) UpVectorAt(distance float64) mgl64.Vec3 {
	if len(s.extended) < 2 {
		return mgl64.Vec3{0, 0, 1}
	}
	return s.QuaternionAt(distance).Rotate(mgl64.Vec3{0, 0, 1})
}

// CurvatureOverDistance delegates to the curve.
func (s *Spline) CurvatureOverDistance(
	distance, overDistance float64,
	direction int,
	withRespectTo mgl64.Quat,
	absolute bool,
) (spline.Rotator, float64) {
	return s.Curve().CurvatureOverDistance(distance, overDistance, direction, withRespectTo, absolute)
}

// IsAboutToMergeWith reports whether distance lies within 50 m before a
// route choice that offers other as a forward link.
func (s *Spline) IsAboutToMergeWith(other scene.Handle, distance float64) bool {
	for _, choice := range s.RouteChoices {
		if distance >= choice.DecisionDistance-mergeWindow && distance <= choice.DecisionDistance {
			for _, l := range choice.Links {
				if l.Spline == other && l.Forward {
					return true
				}
			}
		}
	}
	return false
}

// IsSplineConnected returns the first forward link onto child.
func (s *Spline) IsSplineConnected(child scene.Handle) (atDistance, childDistance float64, ok bool) {
	for _, l := range s.Links {
		if l.Spline == child && l.Forward {
			return l.ThisDistance, l.NextDistance, true
		}
	}
	return 0, 0, false
}

// linkIsRouteChoice reports whether a link is worth a decision: a forward
// link onto a loop or onto at least 50 m of spline.
func (s *Spline) linkIsRouteChoice(l Link) bool {
	if !l.Forward {
		return false
	}
	target, ok := s.net.Spline(l.Spline)
	if !ok {
		return false
	}
	return target.IsClosedLoop() || target.Length()-l.NextDistance >= routeChoiceMinLeft
}

func (s *Spline) addLink(l Link) {
	for _, existing := range s.Links {
		if existing.sameAs(l) {
			return
		}
	}
	s.Links = append(s.Links, l)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
