// Package track reads track definitions. A definition lists the actors of
// a level with their splines, the pursuit data of those splines, the
// checkpoints and optionally a field of bots.
//
// Distances and locations are given in cm, speeds in km/h, widths in m and
// angles in degrees.
package track

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

const (
	// MinVersion is the oldest file format understood.
	MinVersion = "v1.0.0"
	// MaxMajor is the newest major file format understood.
	MaxMajor = "v1"
)

var (
	ErrUnsupportedVersion = errors.New("unsupported track file version")
	ErrNoMasterSpline     = errors.New("track has no closed pursuit spline")
	ErrInvalidDefinition  = errors.New("invalid track definition")
)

type (
	Definition struct {
		Version     string          `yaml:"version"`
		Name        string          `yaml:"name"`
		World       string          `yaml:"world,omitempty"`
		Level       string          `yaml:"level,omitempty"`
		Difficulty  string          `yaml:"difficulty,omitempty"`
		Mode        string          `yaml:"mode,omitempty"`
		Laps        int             `yaml:"laps,omitempty"`
		Actors      []ActorDef      `yaml:"actors"`
		Checkpoints []CheckpointDef `yaml:"checkpoints"`
		Paths       []PathDef       `yaml:"paths,omitempty"`
		Bots        []BotDef        `yaml:"bots,omitempty"`
	}

	ActorDef struct {
		Name       string         `yaml:"name"`
		Attributes map[string]any `yaml:"attributes,omitempty"`
		Splines    []SplineDef    `yaml:"splines"`
	}

	SplineDef struct {
		Name    string      `yaml:"name"`
		Route   string      `yaml:"route,omitempty"`
		Closed  bool        `yaml:"closed,omitempty"`
		Points  []Vec       `yaml:"points,omitempty"`
		Shape   *ShapeDef   `yaml:"shape,omitempty"`
		Pursuit *PursuitDef `yaml:"pursuit,omitempty"`
	}

	// ShapeDef generates the points of a spline instead of listing them.
	ShapeDef struct {
		// Kind is one of circle, arc or detour.
		Kind   string  `yaml:"kind"`
		Radius float64 `yaml:"radius"`
		From   float64 `yaml:"from,omitempty"`
		To     float64 `yaml:"to,omitempty"`
		Bulge  float64 `yaml:"bulge,omitempty"`
		Points int     `yaml:"points"`
		Center Vec     `yaml:"center,omitempty"`
	}

	// PursuitDef makes a spline part of the pursuit network.
	PursuitDef struct {
		Type              string     `yaml:"type,omitempty"`
		AlwaysSelect      bool       `yaml:"alwaysSelect,omitempty"`
		MissileGuidance   *bool      `yaml:"missileGuidance,omitempty"`
		Pickups           bool       `yaml:"pickups,omitempty"`
		Shortcut          bool       `yaml:"shortcut,omitempty"`
		Careful           bool       `yaml:"careful,omitempty"`
		BranchProbability *float64   `yaml:"branchProbability,omitempty"`
		Points            []PointDef `yaml:"points,omitempty"`
	}

	PointDef struct {
		OptimumSpeed float64 `yaml:"optimumSpeed,omitempty"`
		MinimumSpeed float64 `yaml:"minimumSpeed,omitempty"`
		Width        float64 `yaml:"width,omitempty"`
	}

	CheckpointDef struct {
		Name  string `yaml:"name"`
		Order int    `yaml:"order"`
		// Distance places the checkpoint on the master spline, facing along
		// it. Location and Rotation are ignored then.
		Distance   *float64       `yaml:"distance,omitempty"`
		Location   Vec            `yaml:"location,omitempty"`
		Rotation   RotationDef    `yaml:"rotation,omitempty"`
		Window     *WindowDef     `yaml:"window,omitempty"`
		Attributes map[string]any `yaml:"attributes,omitempty"`
	}

	RotationDef struct {
		Pitch float64 `yaml:"pitch,omitempty"`
		Yaw   float64 `yaml:"yaw,omitempty"`
		Roll  float64 `yaml:"roll,omitempty"`
	}

	WindowDef struct {
		Width  float64 `yaml:"width"`
		Height float64 `yaml:"height"`
	}

	// PathDef switches splines selected by route or name.
	PathDef struct {
		Route   string `yaml:"route,omitempty"`
		Name    string `yaml:"name,omitempty"`
		Enabled *bool  `yaml:"enabled,omitempty"`
		Always  bool   `yaml:"always,omitempty"`
		Never   bool   `yaml:"never,omitempty"`
	}

	BotDef struct {
		Name     string  `yaml:"name"`
		TopSpeed float64 `yaml:"topSpeed"`
		Lane     float64 `yaml:"lane,omitempty"`
		// Prefer names a spline the bot heads for at route choices.
		Prefer string `yaml:"prefer,omitempty"`
	}

	// Vec is a location in cm, written as [x, y, z].
	Vec [3]float64
)

func (v Vec) Vec3() mgl64.Vec3 { return mgl64.Vec3(v) }

// Parse decodes and checks a track definition.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// CheckVersion accepts versions from MinVersion up to the latest minor of
// MaxMajor. The leading v is optional.
func CheckVersion(version string) error {
	v := version
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) || semver.Compare(v, MinVersion) < 0 || semver.Major(v) != MaxMajor {
		return fmt.Errorf("%w: %q", ErrUnsupportedVersion, version)
	}
	return nil
}

func (d *Definition) Validate() error {
	if err := CheckVersion(d.Version); err != nil {
		return err
	}
	if d.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidDefinition)
	}
	seen := map[string]bool{}
	for _, a := range d.Actors {
		if a.Name == "" {
			return fmt.Errorf("%w: actor without name", ErrInvalidDefinition)
		}
		for _, s := range a.Splines {
			if s.Name == "" {
				return fmt.Errorf("%w: spline without name on actor %s", ErrInvalidDefinition, a.Name)
			}
			if seen[s.Name] {
				return fmt.Errorf("%w: duplicate spline %s", ErrInvalidDefinition, s.Name)
			}
			seen[s.Name] = true
			if s.Shape != nil && len(s.Points) > 0 {
				return fmt.Errorf("%w: spline %s has points and a shape", ErrInvalidDefinition, s.Name)
			}
		}
	}
	for _, b := range d.Bots {
		if b.Prefer != "" && !seen[b.Prefer] {
			return fmt.Errorf("%w: bot %s prefers unknown spline %s", ErrInvalidDefinition, b.Name, b.Prefer)
		}
	}
	return nil
}

// ControlPoints returns the control points of s, generated from its shape if set.
func (s *SplineDef) ControlPoints() ([]mgl64.Vec3, error) {
	if s.Shape == nil {
		ret := make([]mgl64.Vec3, len(s.Points))
		for i, p := range s.Points {
			ret[i] = p.Vec3()
		}
		return ret, nil
	}
	sh := s.Shape
	if sh.Points < 2 || sh.Radius <= 0 {
		return nil, fmt.Errorf("%w: shape of spline %s needs a radius and at least 2 points", ErrInvalidDefinition, s.Name)
	}
	from, to := mgl64.DegToRad(sh.From), mgl64.DegToRad(sh.To)
	center := sh.Center.Vec3()
	ret := make([]mgl64.Vec3, sh.Points)
	at := func(a, r float64) mgl64.Vec3 {
		return center.Add(mgl64.Vec3{r * math.Cos(a), r * math.Sin(a), 0})
	}
	switch strings.ToLower(sh.Kind) {
	case "circle":
		for i := range ret {
			ret[i] = at(2*math.Pi*float64(i)/float64(sh.Points), sh.Radius)
		}
	case "arc":
		for i := range ret {
			ret[i] = at(from+(to-from)*float64(i)/float64(sh.Points-1), sh.Radius)
		}
	case "detour":
		for i := range ret {
			t := float64(i) / float64(sh.Points-1)
			ret[i] = at(from+(to-from)*t, sh.Radius+sh.Bulge*math.Sin(t*math.Pi))
		}
	default:
		return nil, fmt.Errorf("%w: unknown shape %q of spline %s", ErrInvalidDefinition, sh.Kind, s.Name)
	}
	return ret, nil
}

// IsClosed reports whether s forms a loop. Circles always do.
func (s *SplineDef) IsClosed() bool {
	return s.Closed || (s.Shape != nil && strings.EqualFold(s.Shape.Kind, "circle"))
}
