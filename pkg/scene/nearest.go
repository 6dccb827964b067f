package scene

import (
	"slices"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/samber/lo"
)

const (
	actorSearchIterations = 5
	actorSearchSamples    = 100
	// nearestSplinesWindow is the minimum away distance still considered by
	// FindNearestSplines (100 m)
	nearestSplinesWindow = 100 * 100.0
)

// Filter decides whether an actor takes part in scene-wide queries.
type Filter interface {
	Eligible(a *Actor) bool
}

type FilterFunc func(a *Actor) bool

func (f FilterFunc) Eligible(a *Actor) bool { return f(a) }

// All accepts every actor.
var All Filter = FilterFunc(func(*Actor) bool { return true })

// Nearest is the result of a nearest spline query.
type Nearest struct {
	Handle Handle
	// Along is the distance along the spline.
	Along float64
	// Away is the straight-line distance from the query point.
	Away float64
}

// FindNearestSplineOnActor searches the enabled splines of one actor,
// compared by straight-line distance from location. Ties keep the first
// spline in attachment order.
func (s *Scene) FindNearestSplineOnActor(id ActorID, location mgl64.Vec3) (Nearest, bool) {
	a, ok := s.Actor(id)
	if !ok {
		return Nearest{Handle: NoHandle}, false
	}
	best := Nearest{Handle: NoHandle}
	searches := 0
	for _, h := range a.splines {
		e := s.entries[h]
		if !e.Enabled || e.Spline.NumPoints() < 2 {
			continue
		}
		along := e.Spline.NearestDistance(location, 0, 0, actorSearchIterations, actorSearchSamples, 10)
		searches++
		away := e.Spline.LocationAt(along).Sub(location).Len()
		if best.Handle == NoHandle || away < best.Away {
			best = Nearest{Handle: h, Along: along, Away: away}
		}
	}
	s.countSearches(searches)
	return best, best.Handle != NoHandle
}

func (s *Scene) eligible(filter Filter) []*Actor {
	if filter == nil {
		filter = All
	}
	return lo.Filter(s.actors, func(a *Actor, _ int) bool {
		return filter.Eligible(a)
	})
}

// FindNearestSpline returns the spline nearest to location across all
// eligible actors, compared by straight-line distance.
func (s *Scene) FindNearestSpline(location mgl64.Vec3, filter Filter) (Nearest, bool) {
	best := Nearest{Handle: NoHandle, Away: -1}
	for _, a := range s.eligible(filter) {
		n, ok := s.FindNearestSplineOnActor(a.ID, location)
		if !ok {
			continue
		}
		if best.Handle == NoHandle || n.Away < best.Away {
			best = n
		}
	}
	return best, best.Handle != NoHandle
}

// FindNearestSplines returns candidate splines ordered by distance from
// location. Only candidates within max(closest, 100 m) that travel the same
// way as the closest one are kept.
func (s *Scene) FindNearestSplines(location mgl64.Vec3, filter Filter) ([]Nearest, bool) {
	candidates := []Nearest{}
	for _, a := range s.eligible(filter) {
		if n, ok := s.FindNearestSplineOnActor(a.ID, location); ok {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	slices.SortStableFunc(candidates, func(a, b Nearest) int {
		switch {
		case a.Away < b.Away:
			return -1
		case a.Away > b.Away:
			return 1
		}
		return 0
	})
	window := max(candidates[0].Away, nearestSplinesWindow)
	base := s.direction(candidates[0])
	ret := lo.Filter(candidates, func(n Nearest, _ int) bool {
		return n.Away <= window && s.direction(n).Dot(base) > 0
	})
	return ret, true
}

func (s *Scene) direction(n Nearest) mgl64.Vec3 {
	return s.entries[n.Handle].Spline.DirectionAt(n.Along)
}
