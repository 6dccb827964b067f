package pursuit

import (
	"math"
	"math/rand/v2"

	"github.com/aarondl/opt/omit"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/mpapenbr/racenav/log"
	"github.com/mpapenbr/racenav/pkg/scene"
	"github.com/mpapenbr/racenav/pkg/spline"
)

const (
	// MovementMultiplier scales the per-tick movement into the window
	// searched around the current distance.
	MovementMultiplier = 4
	// choiceWindow limits how far the aiming point may move in one tick
	// and still trigger a route choice (50 m)
	choiceWindow = 5000.0
	// stayOnSplineLeft is how much of an open spline must remain for it to
	// stay a candidate at a route choice (100 m)
	stayOnSplineLeft = 10000.0
	// speedLookahead is the distance scanned when preferring fast routes
	speedLookahead   = 50000.0
	continuityTie    = 1e-3
	followerAccuracy = 1.0
	followerSamples  = 4
	minSearchWindow  = 1.0
)

// Preference steers the decision at a route choice.
type Preference struct {
	// Prefer names a spline to head for, directly or through one of the
	// choices offered.
	Prefer           omit.Val[scene.Handle]
	ForMissile       bool
	WantPickups      bool
	HighOptimumSpeed bool
	// FastPathways weights shortcuts, between -0.5 and 1.
	FastPathways float64
}

// Follower tracks a position along the pursuit network and the point it
// aims for ahead, switching splines at junctions.
type Follower struct {
	ThisSpline   scene.Handle
	ThisDistance float64
	NextSpline   scene.Handle
	NextDistance float64
	LastSpline   scene.Handle
	LastDistance float64
	// ThisSwitchDistance is the distance along ThisSpline where the follower
	// moves onto NextSpline, 0 if no switch is pending.
	ThisSwitchDistance float64
	// NextSwitchDistance is where the switch lands on NextSpline.
	NextSwitchDistance float64
	DecidedDistance    float64
	SwitchingSpline    bool
	SwitchLocation     mgl64.Vec3
	// Heading is the current travel direction. When zero the tangent of
	// ThisSpline is used.
	Heading mgl64.Vec3

	net    *Network
	rnd    *rand.Rand
	random bool
	logger *log.Logger
}

type FollowerOption func(*Follower)

// WithRand sets the random source for weighted route choices.
func WithRand(r *rand.Rand) FollowerOption {
	return func(f *Follower) {
		f.rnd = r
	}
}

// WithWeightedChoice picks routes at random weighted by their branch
// probability instead of by directional continuity.
func WithWeightedChoice(enabled bool) FollowerOption {
	return func(f *Follower) {
		f.random = enabled
	}
}

func WithFollowerLogger(l *log.Logger) FollowerOption {
	return func(f *Follower) {
		f.logger = l
	}
}

func NewFollower(net *Network, opts ...FollowerOption) *Follower {
	f := &Follower{
		ThisSpline:      scene.NoHandle,
		NextSpline:      scene.NoHandle,
		LastSpline:      scene.NoHandle,
		DecidedDistance: -1,
		net:             net,
		logger:          net.logger.Named("follower"),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.rnd == nil {
		f.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return f
}

// Attach places the follower on spline h at distance.
func (f *Follower) Attach(h scene.Handle, distance float64) {
	f.ThisSpline, f.NextSpline = h, h
	f.ThisDistance, f.NextDistance = distance, distance
	f.ThisSwitchDistance, f.NextSwitchDistance = 0, 0
	f.DecidedDistance = -1
	f.SwitchingSpline = false
}

func (f *Follower) this() (*Spline, bool) { return f.net.Spline(f.ThisSpline) }

func (f *Follower) next() (*Spline, bool) { return f.net.Spline(f.NextSpline) }

// EstimateThis advances ThisDistance by the movement projected onto the
// spline. It drifts, so DetermineThis should run regularly.
func (f *Follower) EstimateThis(position, movement mgl64.Vec3, movementSize float64, iterations int) {
	s, ok := f.this()
	if !ok {
		return
	}
	if l := movement.Len(); l > 0 {
		dir := s.QuaternionAt(f.ThisDistance).Rotate(mgl64.Vec3{1, 0, 0})
		f.ThisDistance = s.Curve().ClampDistance(f.ThisDistance + l*dir.Dot(movement.Mul(1/l)))
	}
	f.SwitchSplineAtJunction(position, movementSize, iterations)
}

// DetermineThis searches for position around ThisDistance.
func (f *Follower) DetermineThis(position mgl64.Vec3, movementSize float64, iterations int) {
	s, ok := f.this()
	if !ok {
		return
	}
	t0, t1 := searchWindow(s.Curve(), f.ThisDistance, movementSize*MovementMultiplier)
	f.ThisDistance = s.Curve().NearestDistance(position, t0, t1, iterations,
		spline.NumSamplesForRange(t1-t0, iterations, followerAccuracy, followerSamples), spline.DefaultEarlyExit)
	f.SwitchSplineAtJunction(position, movementSize, iterations)
}

// searchWindow brackets distance by half either side. The window never ends
// at or below zero, which the search would read as the full length.
func searchWindow(c *spline.Spline, distance, half float64) (t0, t1 float64) {
	t0, t1 = distance-half, distance+half
	if t1 > 0 {
		return t0, t1
	}
	if c.IsClosedLoop() && c.Length() > 0 {
		return t0 + c.Length(), t1 + c.Length()
	}
	return 0, minSearchWindow
}

// DetermineNext moves the aiming point ahead of ThisDistance, deciding at
// route choices which spline to take.
func (f *Follower) DetermineNext(ahead, movementSize float64, pref Preference) {
	if _, ok := f.this(); !ok {
		return
	}
	lastDistance := f.NextDistance
	if f.ThisSpline == f.NextSpline {
		next, _ := f.next()
		f.NextDistance = next.Curve().ClampDistance(f.ThisDistance + ahead)
		if lastDistance > 1 && lastDistance == f.NextDistance {
			lastDistance--
		}
		for _, choice := range next.RouteChoices {
			if !crossedDecision(lastDistance, f.NextDistance, choice.DecisionDistance) {
				continue
			}
			if f.DecidedDistance != choice.DecisionDistance {
				f.ThisSwitchDistance = 0
				link, ok := f.ChooseNextSpline(next, f.NextDistance, choice, pref)
				f.DecidedDistance = choice.DecisionDistance
				if ok && link.Spline != f.ThisSpline {
					f.NextSpline = link.Spline
					f.ThisSwitchDistance = link.ThisDistance
					f.NextSwitchDistance = link.NextDistance
					f.logger.Debug("route chosen",
						log.Int("from", int(f.ThisSpline)),
						log.Int("to", int(f.NextSpline)),
						log.Float64("at", link.ThisDistance))
				}
			}
			break
		}
	}
	if f.ThisSpline != f.NextSpline {
		f.NextDistance = f.ThisDistance + ahead
		if f.DecidedDistance >= 0 && lastDistance < f.DecidedDistance && f.NextDistance < f.DecidedDistance {
			// backed off before the decision point
			f.DecidedDistance = -1
			f.ThisSwitchDistance = 0
			f.NextSpline = f.ThisSpline
		} else if f.NextDistance > f.ThisSwitchDistance {
			f.NextDistance += f.NextSwitchDistance - f.ThisSwitchDistance
		}
	}
}

func crossedDecision(last, next, decision float64) bool {
	if last == 0 || math.Abs(last-next) >= choiceWindow {
		return false
	}
	if last < next {
		return last < decision && next >= decision
	}
	return next < decision && last >= decision
}

func (f *Follower) suitable(s *Spline, forMissile bool) bool {
	if !forMissile {
		return s.Type == General
	}
	return s.Type == MissileAssistance || (s.Type == General && s.SuitableForMissileGuidance)
}

// weightProbability scales the branch probability of s by its shortcut
// and pickup weighting.
func weightProbability(s *Spline, pickupWeighting, shortcutWeighting float64) float64 {
	p := s.BranchProbability
	ret := p
	if s.IsShortcut {
		ret += p * shortcutWeighting
	}
	if s.ContainsPickups {
		ret += p * pickupWeighting
	}
	return ret
}

// ChooseNextSpline picks one of the links of choice, or staying on current,
// following the preferences given.
//
//nolint:funlen,gocognit,cyclop // decision cascade
func (f *Follower) ChooseNextSpline(
	current *Spline,
	distanceAlong float64,
	choice RouteChoice,
	pref Preference,
) (Link, bool) {
	if len(choice.Links) == 0 {
		return Link{}, false
	}
	pickupWeighting := 0.5
	if pref.WantPickups {
		pickupWeighting = 1
	}
	shortcutWeighting := mgl64.Clamp(pref.FastPathways*2, -1, 2)
	stay := Link{Spline: current.Handle, ThisDistance: distanceAlong, NextDistance: distanceAlong}

	type option struct {
		link Link
		s    *Spline
	}
	options := []option{}
	addCurrent := true
	for _, l := range choice.Links {
		s, ok := f.net.Spline(l.Spline)
		if !ok || !s.Enabled() || !f.suitable(s, pref.ForMissile) {
			continue
		}
		options = append(options, option{l, s})
		if s == current {
			addCurrent = false
		}
		if s.AlwaysSelect && (!pref.ForMissile || s.SuitableForMissileGuidance) {
			return l, true
		}
	}
	if addCurrent && (current.IsClosedLoop() || distanceAlong < current.Length()-stayOnSplineLeft) {
		options = append(options, option{stay, current})
	}
	if len(options) == 0 {
		return stay, true
	}

	if pref.ForMissile {
		for _, o := range options {
			if o.s.Type == MissileAssistance {
				return o.link, true
			}
		}
	}
	if prefer, ok := pref.Prefer.Get(); ok {
		for _, o := range options {
			if o.s.Handle == prefer {
				return o.link, true
			}
		}
		for _, o := range options {
			for _, l := range o.s.Links {
				if l.Spline == prefer {
					return o.link, true
				}
			}
		}
	}
	if pref.ForMissile {
		for _, o := range options {
			if o.s.IsClosedLoop() {
				return o.link, true
			}
		}
	}
	if pref.HighOptimumSpeed {
		speeds := make([]float64, len(options))
		minSpeed, avgSpeed := maxOptimumSpeed, 0.0
		for i, o := range options {
			v, _ := o.s.MinimumOptimumSpeedOverDistance(o.link.NextDistance, speedLookahead, 1)
			if v == 0 {
				v = maxOptimumSpeed
			}
			speeds[i] = v
			minSpeed = math.Min(minSpeed, v)
			avgSpeed += v
		}
		avgSpeed /= float64(len(options))
		best, found := 0.0, -1
		for i, v := range speeds {
			if best < v && (v > avgSpeed+50 || v > minSpeed+100) {
				best, found = v, i
			}
		}
		if found >= 0 {
			return options[found].link, true
		}
	}

	if f.random {
		total := 0.0
		for _, o := range options {
			total += weightProbability(o.s, pickupWeighting, shortcutWeighting)
		}
		probability := f.rnd.Float64() * total
		amount := 0.0
		for _, o := range options {
			amount += weightProbability(o.s, pickupWeighting, shortcutWeighting)
			if probability <= amount {
				return o.link, true
			}
		}
		return options[len(options)-1].link, true
	}

	heading := f.Heading
	if heading.Len() < 1e-9 {
		heading = current.Curve().DirectionAt(distanceAlong)
	} else {
		heading = heading.Normalize()
	}
	best, bestDot := -1, -1.0
	currentDot := math.Inf(-1)
	for i, o := range options {
		dot := heading.Dot(o.s.Curve().DirectionAt(o.link.NextDistance))
		if dot <= 0 {
			continue
		}
		if o.s == current {
			currentDot = dot
		}
		if dot > bestDot {
			best, bestDot = i, dot
		}
	}
	switch {
	case best < 0:
		return options[len(options)-1].link, true
	case bestDot-currentDot <= continuityTie:
		for _, o := range options {
			if o.s == current {
				return o.link, true
			}
		}
	}
	return options[best].link, true
}

// SwitchSplineAtJunction moves onto NextSpline once ThisDistance passed the
// pending switch distance.
func (f *Follower) SwitchSplineAtJunction(position mgl64.Vec3, movementSize float64, iterations int) {
	if f.ThisSwitchDistance == 0 || f.ThisDistance < f.ThisSwitchDistance {
		return
	}
	if f.ThisSpline != f.NextSpline {
		this, _ := f.this()
		for _, l := range this.Links {
			if l.Spline != f.NextSpline || l.ThisDistance != f.ThisSwitchDistance || l.NextDistance != f.NextSwitchDistance {
				continue
			}
			next, ok := f.next()
			if !ok {
				break
			}
			f.SwitchingSpline = true
			f.LastSpline, f.LastDistance = f.ThisSpline, f.ThisDistance
			f.SwitchLocation = position
			t0 := l.NextDistance
			t1 := l.NextDistance + movementSize*MovementMultiplier
			f.ThisSpline = f.NextSpline
			f.ThisDistance = next.Curve().NearestDistance(position, t0, t1, iterations,
				spline.NumSamplesForRange(t1-t0, iterations, followerAccuracy, followerSamples), spline.DefaultEarlyExit)
			f.DecidedDistance = -1
			f.logger.Debug("switched spline",
				log.Int("from", int(f.LastSpline)),
				log.Int("to", int(f.ThisSpline)),
				log.Float64("distance", f.ThisDistance))
			break
		}
	}
	f.ThisSwitchDistance = 0
}

// CheckBranchConnection reports whether the follower left the spline it
// switched onto, once it moved atDistance past the switch. It is true when
// the previous spline is nearer and the new one lies beyond its width.
func (f *Follower) CheckBranchConnection(position mgl64.Vec3, atDistance float64) bool {
	if !f.SwitchingSpline || position.Sub(f.SwitchLocation).Len() <= atDistance {
		return false
	}
	f.SwitchingSpline = false
	last, ok := f.net.Spline(f.LastSpline)
	if !ok {
		return false
	}
	this, ok := f.this()
	if !ok {
		return false
	}
	t0 := f.LastDistance - atDistance
	t1 := f.LastDistance + atDistance
	d := last.Curve().NearestDistance(position, t0, t1, 5,
		spline.NumSamplesForRange(t1-t0, 5, followerAccuracy, followerSamples), spline.DefaultEarlyExit)
	dl := position.Sub(last.Curve().LocationAt(d)).Len()
	dt := position.Sub(this.Curve().LocationAt(f.ThisDistance)).Len()
	if dl > dt {
		return false
	}
	return dt > this.WidthAt(f.ThisDistance)*100
}

// MinimumOptimumSpeedOverDistance spans ThisSpline and the spline the
// follower switches onto.
func (f *Follower) MinimumOptimumSpeedOverDistance(distance, overDistance float64, direction int) (float64, float64) {
	m0, m1 := maxOptimumSpeed, maxOptimumSpeed
	if s, ok := f.this(); ok {
		m0, overDistance = s.MinimumOptimumSpeedOverDistance(distance, overDistance, direction)
		m1 = m0
	}
	if n, ok := f.next(); ok && f.NextSpline != f.ThisSpline {
		m1, overDistance = n.MinimumOptimumSpeedOverDistance(f.NextSwitchDistance, overDistance, direction)
	}
	return math.Min(m0, m1), overDistance
}

func (f *Follower) MinimumSpeedOverDistance(distance, overDistance float64, direction int) (float64, float64) {
	m0, m1 := 0.0, 0.0
	if s, ok := f.this(); ok {
		m0, overDistance = s.MinimumSpeedOverDistance(distance, overDistance, direction)
		m1 = m0
	}
	if n, ok := f.next(); ok && f.NextSpline != f.ThisSpline {
		m1, overDistance = n.MinimumSpeedOverDistance(f.NextSwitchDistance, overDistance, direction)
	}
	return math.Max(m0, m1), overDistance
}

// CurvatureOverDistance sums the curvature of ThisSpline and of the spline
// the follower switches onto.
func (f *Follower) CurvatureOverDistance(
	distance, overDistance float64,
	direction int,
	withRespectTo mgl64.Quat,
	absolute bool,
) (spline.Rotator, float64) {
	var d0, d1 spline.Rotator
	if s, ok := f.this(); ok {
		d0, overDistance = s.CurvatureOverDistance(distance, overDistance, direction, withRespectTo, absolute)
	}
	if n, ok := f.next(); ok && f.NextSpline != f.ThisSpline {
		d1, overDistance = n.CurvatureOverDistance(f.NextSwitchDistance, overDistance, direction, withRespectTo, absolute)
	}
	return d0.Add(d1), overDistance
}
