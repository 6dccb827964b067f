package pursuit

import (
	"math"
	"slices"

	"github.com/aarondl/opt/omit"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/samber/lo"

	"github.com/mpapenbr/racenav/log"
	"github.com/mpapenbr/racenav/pkg/scene"
	"github.com/mpapenbr/racenav/pkg/spline"
)

const (
	// maxMatchingDistance is the largest master distance mismatch (250 m)
	// accepted when matching a master distance
	maxMatchingDistance = 25000.0
	nearestIterations   = 5
	nearestEarlyExit    = 10.0
)

// Query selects a pursuit spline near Location.
type Query struct {
	Location mgl64.Vec3
	// Type restricts the candidates to one spline type when set.
	Type omit.Val[Type]
	// MasterDistance keeps the result in registration with a distance along
	// the master spline when set.
	MasterDistance omit.Val[float64]
	// MinMatchingDistance widens the accepted master distance mismatch.
	MinMatchingDistance float64
	AllowDeadStarts     bool
	AllowDeadEnds       bool
	// VisibleOnly prefers the nearest visible candidate over closer hidden
	// ones. Otherwise the nearest candidate wins.
	VisibleOnly bool
}

type Result struct {
	Handle   scene.Handle
	Distance float64
	Away     float64
	// Visible is set when the result passed the visibility test.
	Visible bool
}

type candidate struct {
	s        *Spline
	distance float64
	away     float64
}

// FindNearestPursuitSpline returns the pursuit spline nearest to
// q.Location honouring the filters of q. With q.VisibleOnly visible
// candidates are preferred over closer hidden ones. When no candidate
// qualifies the master spline is returned, at q.MasterDistance if given.
func (n *Network) FindNearestPursuitSpline(q Query) (Result, bool) {
	candidates := n.nearestCandidates(q)
	slices.SortStableFunc(candidates, func(a, b candidate) int {
		switch {
		case a.away < b.away:
			return -1
		case a.away > b.away:
			return 1
		}
		return 0
	})
	if q.VisibleOnly {
		if c, ok := lo.Find(candidates, func(c candidate) bool { return n.visible(c, q.Location) }); ok {
			return c.result(true), true
		}
	}
	if len(candidates) > 0 {
		c := candidates[0]
		return c.result(n.visible(c, q.Location)), true
	}
	master, ok := n.Master()
	if !ok {
		return Result{Handle: scene.NoHandle}, false
	}
	c := master.Curve()
	var d float64
	if md, ok := q.MasterDistance.Get(); ok {
		d = c.ClampDistance(md)
	} else {
		d = c.NearestDistance(q.Location, 0, 0, nearestIterations,
			spline.NumSamplesForRange(c.Length(), nearestIterations, 1, 0), nearestEarlyExit)
	}
	n.logger.Debug("no suitable pursuit spline, using the master spline",
		log.Float64("distance", d))
	return candidate{s: master, distance: d, away: c.LocationAt(d).Sub(q.Location).Len()}.result(false), true
}

func (c candidate) result(visible bool) Result {
	return Result{Handle: c.s.Handle, Distance: c.distance, Away: c.away, Visible: visible}
}

func (n *Network) nearestCandidates(q Query) []candidate {
	masterLength := n.MasterLength()
	md, matching := q.MasterDistance.Get()
	matching = matching && masterLength > 0
	ret := []candidate{}
	for _, s := range n.valid {
		if !s.Enabled() || s.Curve().NumPoints() < 2 {
			continue
		}
		if (s.DeadStart && !q.AllowDeadStarts) || (s.DeadEnd && !q.AllowDeadEnds) {
			continue
		}
		if t, ok := q.Type.Get(); ok && s.Type != t {
			continue
		}
		c := s.Curve()
		var d float64
		switch {
		case matching && s.Handle == n.masterHandle():
			window := maxMatchingDistance * 2
			d = c.NearestDistance(q.Location, md-window, md+window, nearestIterations,
				spline.NumSamplesForRange(window*2, nearestIterations, 1, 0), nearestEarlyExit)
		case matching:
			if !s.HasMasterDistances() {
				continue
			}
			d = s.NearestDistanceToMasterDistance(md)
		default:
			d = c.NearestDistance(q.Location, 0, 0, nearestIterations,
				spline.NumSamplesForRange(c.Length(), nearestIterations, 1, 0), nearestEarlyExit)
		}
		if matching {
			diff := spline.DistanceDifference(s.MasterDistanceAt(d), md, masterLength, true, false, masterLength)
			if diff > math.Max(q.MinMatchingDistance, maxMatchingDistance) {
				continue
			}
		}
		ret = append(ret, candidate{s: s, distance: d, away: c.LocationAt(d).Sub(q.Location).Len()})
	}
	return ret
}

// visible reports whether the candidate point can be seen from location:
// either location lies within its maneuvering width or the line of sight
// is clear.
func (n *Network) visible(c candidate, location mgl64.Vec3) bool {
	if c.s.IsWorldLocationWithinRange(c.distance, location) {
		return true
	}
	return n.sight != nil && n.sight.Clear(location, c.s.Curve().LocationAt(c.distance))
}
