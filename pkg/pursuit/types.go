// Package pursuit adds route topology to the splines of a scene: junction
// links, route choices, per-point driving data and distances mapped onto the
// master racing spline. A Follower walks the resulting network.
package pursuit

import (
	"fmt"
	"strings"

	"github.com/mpapenbr/racenav/pkg/scene"
)

type Type int

const (
	General Type = iota
	Military
	MissileAssistance
)

func (t Type) String() string {
	switch t {
	case General:
		return "general"
	case Military:
		return "military"
	case MissileAssistance:
		return "missile-assistance"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "", "general":
		return General, nil
	case "military":
		return Military, nil
	case "missile-assistance", "missileassistance":
		return MissileAssistance, nil
	}
	return General, fmt.Errorf("unknown spline type %q", s)
}

// PointData holds the authored driving data of one control point.
type PointData struct {
	// OptimumSpeed in km/h, 0 means full throttle
	OptimumSpeed float64
	// MinimumSpeed in km/h, 0 means none
	MinimumSpeed float64
	// ManeuveringWidth in meters
	ManeuveringWidth float64
}

func DefaultPointData() PointData {
	return PointData{ManeuveringWidth: 50}
}

// Link connects a distance on one spline with a distance on another.
type Link struct {
	Spline scene.Handle
	// ThisDistance is where the link sits on the spline holding it.
	ThisDistance float64
	// NextDistance is where the link sits on Spline.
	NextDistance float64
	// Forward is set when the link leads onto Spline in travel direction.
	Forward bool
}

// sameAs reports whether two links describe the same junction.
func (l Link) sameAs(o Link) bool {
	return l.Spline == o.Spline &&
		abs(l.ThisDistance-o.ThisDistance) < linkTolerance &&
		abs(l.NextDistance-o.NextDistance) < linkTolerance
}

// RouteChoice groups links that require a decision at the same place.
type RouteChoice struct {
	DecisionDistance float64
	Links            []Link
}

// Properties are the authored attributes of a pursuit spline.
type Properties struct {
	Type                       Type
	AlwaysSelect               bool
	SuitableForMissileGuidance bool
	ContainsPickups            bool
	IsShortcut                 bool
	CarefulDriving             bool
	BranchProbability          float64
	// Points holds per control point data. Missing entries repeat the last
	// one given.
	Points []PointData
}

func DefaultProperties() Properties {
	return Properties{
		Type:                       General,
		SuitableForMissileGuidance: true,
		BranchProbability:          1,
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
