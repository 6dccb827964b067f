package pursuit

import (
	"context"
	"slices"
	"strings"

	"github.com/aarondl/opt/omit"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mpapenbr/racenav/log"
	"github.com/mpapenbr/racenav/pkg/scene"
	"github.com/mpapenbr/racenav/pkg/spline"
)

const (
	// linkTolerance is the distance within which two links are the same
	linkTolerance = 100.0
	// MinDistanceForSplineLinks is the proximity (10 m) that makes a junction
	MinDistanceForSplineLinks = 1000.0
	deadEndTolerance          = 100.0
	routeChoiceGroup          = 1000.0
	routeChoiceMinLeft        = 5000.0
	linkSearchIterations      = 5
	linkSearchMinSamples      = 100
)

// LineOfSight answers visibility queries against the level geometry.
type LineOfSight interface {
	Clear(from, to mgl64.Vec3) bool
}

type Network struct {
	scene   *scene.Scene
	splines map[scene.Handle]*Spline
	valid   []*Spline
	master  omit.Val[scene.Handle]
	filter  scene.Filter
	sight   LineOfSight
	logger  *log.Logger
	tracer  trace.Tracer
}

type Option func(*Network)

func WithLogger(l *log.Logger) Option {
	return func(n *Network) {
		n.logger = l
	}
}

// WithFilter restricts the network to splines of eligible actors.
func WithFilter(f scene.Filter) Option {
	return func(n *Network) {
		n.filter = f
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(n *Network) {
		n.tracer = t
	}
}

func WithLineOfSight(los LineOfSight) Option {
	return func(n *Network) {
		n.sight = los
	}
}

func NewNetwork(sc *scene.Scene, opts ...Option) *Network {
	n := &Network{
		scene:   sc,
		splines: map[scene.Handle]*Spline{},
		filter:  scene.All,
		logger:  log.Default().Named("pursuit"),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.tracer == nil {
		n.tracer = otel.Tracer("racenav")
	}
	return n
}

func (n *Network) Scene() *scene.Scene { return n.scene }

// Add registers the scene spline h as a pursuit spline.
func (n *Network) Add(h scene.Handle, props Properties) (*Spline, error) {
	e, ok := n.scene.Spline(h)
	if !ok {
		return nil, scene.ErrInvalidHandle
	}
	s := newSpline(n, e, props)
	n.splines[h] = s
	return s, nil
}

func (n *Network) Spline(h scene.Handle) (*Spline, bool) {
	s, ok := n.splines[h]
	return s, ok
}

// Splines returns the splines taking part in the last Build, ordered by
// actor name.
func (n *Network) Splines() []*Spline {
	return n.valid
}

func (n *Network) Master() (*Spline, bool) {
	h, ok := n.master.Get()
	if !ok {
		return nil, false
	}
	return n.Spline(h)
}

// MasterLength returns the length of the master spline or 0.
func (n *Network) MasterLength() float64 {
	if m, ok := n.Master(); ok {
		return m.Length()
	}
	return 0
}

// AlwaysSelectPath marks the matching splines to be picked at every route
// choice offering them.
func (n *Network) AlwaysSelectPath(routeName, name string, always bool) int {
	return n.scene.Matching(routeName, name, func(e *scene.Entry) {
		if s, ok := n.splines[e.Handle]; ok {
			s.AlwaysSelect = always
		}
	})
}

// NeverSelectPath disables the matching splines.
func (n *Network) NeverSelectPath(routeName, name string, never bool) int {
	return n.scene.EnablePath(routeName, name, !never)
}

// Build computes the link topology, the route choices and the master
// distances. It must complete before any navigation query runs.
func (n *Network) Build(ctx context.Context) {
	_, span := n.tracer.Start(ctx, "pursuit.build")
	defer span.End()

	n.collectValid()
	for _, s := range n.valid {
		s.Links = nil
		s.RouteChoices = nil
		s.DeadStart, s.DeadEnd = false, false
		s.masterClass = noMasterClass
		s.syncPointData()
		s.buildExtendedPoints()
	}
	for _, s := range n.valid {
		n.EstablishLinks(s)
	}
	for _, s := range n.valid {
		n.finishLinks(s)
	}

	n.master = omit.Val[scene.Handle]{}
	if m, ok := lo.Find(n.valid, func(s *Spline) bool { return s.IsClosedLoop() }); ok {
		n.master = omit.From(m.Handle)
	}
	n.buildMasterDistances()

	span.SetAttributes(
		attribute.Int("splines", len(n.valid)),
		attribute.Float64("master.length", n.MasterLength()),
	)
	n.logTopology()
}

func (n *Network) collectValid() {
	n.valid = n.valid[:0]
	for _, a := range n.scene.Actors() {
		if !n.filter.Eligible(a) {
			continue
		}
		for _, h := range a.Splines() {
			if s, ok := n.splines[h]; ok && s.Curve().Valid() {
				n.valid = append(n.valid, s)
			}
		}
	}
	slices.SortStableFunc(n.valid, func(a, b *Spline) int {
		return strings.Compare(n.actorName(a), n.actorName(b))
	})
}

func (n *Network) actorName(s *Spline) string {
	if a, ok := n.scene.Actor(s.entry.Actor); ok {
		return a.Name
	}
	return ""
}

// EstablishLinks detects the junctions between target and every other
// valid spline by proximity of their start and end points, and records
// links on both sides.
func (n *Network) EstablishLinks(target *Spline) {
	tc := target.Curve()
	length := tc.Length()
	samples := spline.NumSamplesForRange(length, linkSearchIterations, 1, linkSearchMinSamples)
	nearest := func(loc mgl64.Vec3) (float64, bool) {
		d := tc.NearestDistance(loc, 0, length, linkSearchIterations, samples, 1)
		gap := tc.LocationAt(d).Sub(loc)
		return d, gap.Dot(gap) < MinDistanceForSplineLinks*MinDistanceForSplineLinks
	}
	aligned := func(d float64, other *spline.Spline, otherDistance float64) bool {
		d = mgl64.Clamp(d, 1, length-1)
		otherDistance = mgl64.Clamp(otherDistance, 1, other.Length()-1)
		return tc.DirectionAt(d).Dot(other.DirectionAt(otherDistance)) > 0
	}

	for _, other := range n.valid {
		if other == target {
			continue
		}
		oc := other.Curve()
		otherLength := oc.Length()
		if d0, ok := nearest(oc.LocationAt(0)); ok && aligned(d0, oc, 0) {
			target.addLink(Link{Spline: other.Handle, ThisDistance: d0, NextDistance: 0, Forward: true})
			other.addLink(Link{Spline: target.Handle, ThisDistance: 0, NextDistance: d0, Forward: false})
		}
		if oc.IsClosedLoop() {
			continue
		}
		if d1, ok := nearest(oc.LocationAt(otherLength)); ok && aligned(d1, oc, otherLength) {
			target.addLink(Link{Spline: other.Handle, ThisDistance: d1, NextDistance: otherLength, Forward: false})
			other.addLink(Link{Spline: target.Handle, ThisDistance: otherLength, NextDistance: d1, Forward: true})
		}
	}
}

// finishLinks orders the links of s, flags dead ends and groups the route
// choices.
func (n *Network) finishLinks(s *Spline) {
	slices.SortStableFunc(s.Links, func(a, b Link) int {
		switch {
		case a.ThisDistance < b.ThisDistance:
			return -1
		case a.ThisDistance > b.ThisDistance:
			return 1
		}
		return 0
	})
	if !s.IsClosedLoop() {
		length := s.Length()
		s.DeadStart = len(s.Links) == 0 || s.Links[0].ThisDistance > deadEndTolerance
		s.DeadEnd = len(s.Links) == 0 || s.Links[len(s.Links)-1].ThisDistance < length-deadEndTolerance
	}

	choices := lo.Filter(s.Links, func(l Link, _ int) bool { return s.linkIsRouteChoice(l) })
	for len(choices) > 0 {
		first := choices[0].ThisDistance
		group := lo.Filter(choices, func(l Link, _ int) bool { return l.ThisDistance-first <= routeChoiceGroup })
		choices = choices[len(group):]
		decision := lo.MinBy(group, func(a, b Link) bool { return a.ThisDistance < b.ThisDistance }).ThisDistance
		if decision > routeChoiceGroup {
			s.RouteChoices = append(s.RouteChoices, RouteChoice{DecisionDistance: decision, Links: group})
		}
	}
}

func (n *Network) logTopology() {
	for _, s := range n.valid {
		fields := []log.Field{
			log.String("spline", s.Name()),
			log.Int("links", len(s.Links)),
			log.Int("choices", len(s.RouteChoices)),
			log.Int("masterClass", s.masterClass),
		}
		switch {
		case s.DeadStart || s.DeadEnd:
			n.logger.Info("spline has dead ends",
				append(fields, log.Bool("deadStart", s.DeadStart), log.Bool("deadEnd", s.DeadEnd))...)
		case len(s.Links) == 0:
			n.logger.Warn("spline is not linked", fields...)
		default:
			n.logger.Debug("spline linked", fields...)
		}
	}
}
