package race

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/mpapenbr/racenav/pkg/pursuit"
	"github.com/mpapenbr/racenav/pkg/scene"
	"github.com/mpapenbr/racenav/pkg/spline"
)

const (
	kmhToCms = 100000.0 / 3600.0
	// botLookAhead is how far ahead of the bot the route is decided (30 m)
	botLookAhead   = 3000.0
	botIterations  = 3
	endOfSplineGap = 100.0
)

// Bot drives along the pursuit network at the optimum speed of the splines
// it follows, capped by its top speed.
type Bot struct {
	Follower *pursuit.Follower
	// TopSpeed in km/h
	TopSpeed float64
	// Lane is the lateral offset from the spline in cm, positive to the right.
	Lane       float64
	Preference pursuit.Preference

	net      *pursuit.Network
	location mgl64.Vec3
	master   float64
}

type BotOption func(*Bot)

func WithLane(offset float64) BotOption {
	return func(b *Bot) {
		b.Lane = offset
	}
}

func WithPreference(p pursuit.Preference) BotOption {
	return func(b *Bot) {
		b.Preference = p
	}
}

func WithFollowerOptions(opts ...pursuit.FollowerOption) BotOption {
	return func(b *Bot) {
		b.Follower = pursuit.NewFollower(b.net, opts...)
	}
}

func NewBot(net *pursuit.Network, topSpeed float64, opts ...BotOption) *Bot {
	b := &Bot{net: net, TopSpeed: topSpeed}
	for _, opt := range opts {
		opt(b)
	}
	if b.Follower == nil {
		b.Follower = pursuit.NewFollower(net)
	}
	return b
}

// PlaceOnMaster puts the bot on the master spline at masterDistance.
func (b *Bot) PlaceOnMaster(masterDistance float64) bool {
	m, ok := b.net.Master()
	if !ok {
		return false
	}
	b.Place(m.Handle, m.Curve().ClampDistance(masterDistance))
	return true
}

// PlaceAt puts the bot on the pursuit spline nearest to location. In a race
// in progress visibleOnly keeps bots off splines they cannot see.
func (b *Bot) PlaceAt(location mgl64.Vec3, visibleOnly bool) bool {
	r, ok := b.net.FindNearestPursuitSpline(pursuit.Query{
		Location:    location,
		VisibleOnly: visibleOnly,
	})
	if !ok {
		return false
	}
	b.Place(r.Handle, r.Distance)
	return true
}

// Place puts the bot on spline h at distance.
func (b *Bot) Place(h scene.Handle, distance float64) {
	b.Follower.Attach(h, distance)
	b.Follower.DetermineNext(botLookAhead, 0, b.Preference)
	if s, ok := b.net.Spline(h); ok {
		b.update(s)
	}
}

func (b *Bot) Location() mgl64.Vec3 { return b.location }

func (b *Bot) MasterDistance() float64 { return b.master }

// Speed returns the speed in km/h the bot drives at its current position.
func (b *Bot) Speed() float64 {
	s, ok := b.net.Spline(b.Follower.ThisSpline)
	if !ok {
		return 0
	}
	speed := b.TopSpeed
	if opt := s.OptimumSpeedAt(b.Follower.ThisDistance); opt > 0 {
		speed = math.Min(speed, opt)
	}
	if minSpeed := s.MinimumSpeedAt(b.Follower.ThisDistance); minSpeed > 0 {
		speed = math.Max(speed, minSpeed)
	}
	return speed
}

// Drive moves the bot for deltaSeconds. It returns the new master distance
// and location, false if the bot is not on a spline of the network.
func (b *Bot) Drive(deltaSeconds float64) (float64, mgl64.Vec3, bool) {
	f := b.Follower
	s, ok := b.net.Spline(f.ThisSpline)
	if !ok {
		return 0, b.location, false
	}
	step := b.Speed() * kmhToCms * deltaSeconds
	f.ThisDistance = s.Curve().ClampDistance(f.ThisDistance + step)
	f.SwitchSplineAtJunction(s.Curve().LocationAt(f.ThisDistance), step, botIterations)

	if s, ok = b.net.Spline(f.ThisSpline); !ok {
		return 0, b.location, false
	}
	if !s.IsClosedLoop() && f.ThisSpline == f.NextSpline && f.ThisDistance >= s.Length()-endOfSplineGap {
		// dead end, back onto the master spline
		b.rejoinMaster(s)
		if s, ok = b.net.Spline(f.ThisSpline); !ok {
			return 0, b.location, false
		}
	}
	f.DetermineNext(botLookAhead+step, step, b.Preference)
	b.update(s)
	return b.master, b.location, true
}

func (b *Bot) rejoinMaster(s *pursuit.Spline) {
	m, ok := b.net.Master()
	if !ok || m.Handle == s.Handle {
		return
	}
	md := s.MasterDistanceAt(b.Follower.ThisDistance)
	b.Follower.Attach(m.Handle, m.NearestDistanceToMasterDistance(md))
}

func (b *Bot) update(s *pursuit.Spline) {
	d := b.Follower.ThisDistance
	curve := s.Curve()
	b.location = curve.LocationAt(d)
	if b.Lane != 0 {
		b.location = b.location.Add(curve.RightVectorAt(d).Mul(b.Lane))
	}
	if s.HasMasterDistances() {
		b.master = s.MasterDistanceAt(d)
		return
	}
	if m, ok := b.net.Master(); ok {
		b.master = m.Curve().Nearest(b.location, spline.DefaultSearch())
	}
}
