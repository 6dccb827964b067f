// Package scene keeps the splines attached to the actors of a level and
// answers nearest-spline queries across them.
package scene

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/racenav/log"
	"github.com/mpapenbr/racenav/pkg/spline"
)

var ErrInvalidHandle = errors.New("invalid handle")

type (
	// Handle references a spline entry of a Scene.
	Handle int
	// ActorID references an actor of a Scene.
	ActorID int
)

const NoHandle Handle = -1

// Actor owns a set of splines. Attributes are consulted by eligibility
// filters (world, level, difficulty and so on).
type Actor struct {
	ID         ActorID
	Name       string
	Attributes map[string]any
	splines    []Handle
}

func (a *Actor) Splines() []Handle {
	return append([]Handle(nil), a.splines...)
}

type Entry struct {
	Handle    Handle
	Actor     ActorID
	Name      string
	RouteName string
	Spline    *spline.Spline
	Enabled   bool
}

type Scene struct {
	actors   []*Actor
	entries  []*Entry
	logger   *log.Logger
	searches metric.Int64Counter
}

type Option func(*Scene)

func WithLogger(l *log.Logger) Option {
	return func(s *Scene) {
		s.logger = l
	}
}

func WithMeter(m metric.Meter) Option {
	return func(s *Scene) {
		s.setupMetrics(m)
	}
}

func New(opts ...Option) *Scene {
	s := &Scene{logger: log.Default().Named("scene")}
	for _, opt := range opts {
		opt(s)
	}
	if s.searches == nil {
		s.setupMetrics(otel.GetMeterProvider().Meter("racenav.scene"))
	}
	return s
}

func (s *Scene) setupMetrics(m metric.Meter) {
	c, err := m.Int64Counter("racenav.nearest.searches",
		metric.WithDescription("Number of nearest distance searches"),
		metric.WithUnit("{count}"))
	if err != nil {
		s.logger.Error("failed to register metric", log.ErrorField(err))
		return
	}
	s.searches = c
}

func (s *Scene) countSearches(n int) {
	if s.searches != nil && n > 0 {
		s.searches.Add(context.Background(), int64(n))
	}
}

func (s *Scene) AddActor(name string, attributes map[string]any) ActorID {
	id := ActorID(len(s.actors))
	s.actors = append(s.actors, &Actor{ID: id, Name: name, Attributes: attributes})
	return id
}

// AddSpline attaches an enabled spline to an actor.
func (s *Scene) AddSpline(actor ActorID, name, routeName string, sp *spline.Spline) (Handle, error) {
	a, ok := s.Actor(actor)
	if !ok {
		return NoHandle, ErrInvalidHandle
	}
	if sp == nil {
		sp = spline.New(nil, false)
	}
	h := Handle(len(s.entries))
	s.entries = append(s.entries, &Entry{
		Handle:    h,
		Actor:     actor,
		Name:      name,
		RouteName: routeName,
		Spline:    sp,
		Enabled:   true,
	})
	a.splines = append(a.splines, h)
	return h, nil
}

func (s *Scene) Actor(id ActorID) (*Actor, bool) {
	if id < 0 || int(id) >= len(s.actors) {
		return nil, false
	}
	return s.actors[id], true
}

func (s *Scene) Spline(h Handle) (*Entry, bool) {
	if h < 0 || int(h) >= len(s.entries) {
		return nil, false
	}
	return s.entries[h], true
}

func (s *Scene) Actors() []*Actor {
	return s.actors
}

func (s *Scene) Entries() []*Entry {
	return s.entries
}

// Matching calls fn for every entry whose name equals name or whose route
// equals routeName. Empty arguments never match.
func (s *Scene) Matching(routeName, name string, fn func(e *Entry)) int {
	n := 0
	for _, e := range s.entries {
		if (name != "" && e.Name == name) || (routeName != "" && e.RouteName == routeName) {
			fn(e)
			n++
		}
	}
	return n
}

// EnablePath enables or disables the splines with the given route or name.
func (s *Scene) EnablePath(routeName, name string, enabled bool) int {
	n := s.Matching(routeName, name, func(e *Entry) { e.Enabled = enabled })
	s.logger.Debug("enable path",
		log.String("route", routeName),
		log.String("name", name),
		log.Bool("enabled", enabled),
		log.Int("matched", n))
	return n
}
