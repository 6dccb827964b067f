//nolint:thelper,whitespace,lll,funlen // ok for tests
package track

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	gta "gotest.tools/v3/assert"

	"github.com/mpapenbr/racenav/pkg/eligibility"
	"github.com/mpapenbr/racenav/pkg/events"
	"github.com/mpapenbr/racenav/pkg/progress"
	"github.com/mpapenbr/racenav/pkg/race"
)

const ovalFile = "testdata/oval.yaml"

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		version string
		wantErr bool
	}{
		{"1.0.0", false},
		{"v1.0.0", false},
		{"1.4.2", false},
		{"1.0", false},
		{"0.9.0", true},
		{"2.0.0", true},
		{"", true},
		{"latest", true},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			err := CheckVersion(tt.version)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedVersion)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"no yaml", "version: [", ErrInvalidDefinition},
		{"old version", "version: 0.1.0\nname: x", ErrUnsupportedVersion},
		{"no name", "version: 1.0.0", ErrInvalidDefinition},
		{
			"duplicate spline",
			"version: 1.0.0\nname: x\nactors:\n  - name: a\n    splines:\n      - name: s\n      - name: s\n",
			ErrInvalidDefinition,
		},
		{
			"points and shape",
			"version: 1.0.0\nname: x\nactors:\n  - name: a\n    splines:\n      - name: s\n        points: [[0,0,0],[1,0,0]]\n        shape: {kind: circle, radius: 10, points: 8}\n",
			ErrInvalidDefinition,
		},
		{
			"unknown preferred spline",
			"version: 1.0.0\nname: x\nbots:\n  - name: b\n    topSpeed: 100\n    prefer: nowhere\n",
			ErrInvalidDefinition,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestControlPoints(t *testing.T) {
	tests := []struct {
		name       string
		shape      ShapeDef
		wantPoints int
		// radius of first and middle point
		wantFirst, wantMid float64
	}{
		{"circle", ShapeDef{Kind: "circle", Radius: 1000, Points: 8}, 8, 1000, 1000},
		{"arc", ShapeDef{Kind: "arc", Radius: 500, From: 0, To: 90, Points: 5}, 5, 500, 500},
		{"detour", ShapeDef{Kind: "detour", Radius: 1000, From: 0, To: 90, Bulge: 200, Points: 5}, 5, 1000, 1200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := SplineDef{Name: tt.name, Shape: &tt.shape}
			points, err := s.ControlPoints()
			gta.NilError(t, err)
			gta.Equal(t, tt.wantPoints, len(points))
			assert.InDelta(t, tt.wantFirst, points[0].Len(), 1e-6)
			assert.InDelta(t, tt.wantMid, points[len(points)/2].Len(), 1e-6)
		})
	}

	t.Run("arc ends on to", func(t *testing.T) {
		s := SplineDef{Name: "arc", Shape: &ShapeDef{Kind: "arc", Radius: 500, To: 90, Points: 3}}
		points, err := s.ControlPoints()
		gta.NilError(t, err)
		assert.InDelta(t, 0, points[2].X(), 1e-9)
		assert.InDelta(t, 500, points[2].Y(), 1e-9)
	})
	t.Run("unknown shape", func(t *testing.T) {
		s := SplineDef{Name: "x", Shape: &ShapeDef{Kind: "square", Radius: 1, Points: 4}}
		_, err := s.ControlPoints()
		assert.ErrorIs(t, err, ErrInvalidDefinition)
	})
	t.Run("too few points", func(t *testing.T) {
		s := SplineDef{Name: "x", Shape: &ShapeDef{Kind: "circle", Radius: 1, Points: 1}}
		_, err := s.ControlPoints()
		assert.ErrorIs(t, err, ErrInvalidDefinition)
	})
	t.Run("closed", func(t *testing.T) {
		assert.True(t, (&SplineDef{Shape: &ShapeDef{Kind: "Circle"}}).IsClosed())
		assert.False(t, (&SplineDef{Shape: &ShapeDef{Kind: "arc"}}).IsClosed())
		assert.True(t, (&SplineDef{Closed: true}).IsClosed())
	})
}

func TestPursuitProperties(t *testing.T) {
	no := false
	half := 0.5
	p := PursuitDef{
		Type:              "military",
		Shortcut:          true,
		MissileGuidance:   &no,
		BranchProbability: &half,
		Points:            []PointDef{{OptimumSpeed: 200}, {MinimumSpeed: 50, Width: 10}},
	}
	props, err := p.Properties()
	gta.NilError(t, err)
	assert.True(t, props.IsShortcut)
	assert.False(t, props.SuitableForMissileGuidance)
	assert.Equal(t, 0.5, props.BranchProbability)
	gta.Equal(t, 2, len(props.Points))
	assert.Equal(t, 200.0, props.Points[0].OptimumSpeed)
	assert.Equal(t, 50.0, props.Points[0].ManeuveringWidth)
	assert.Equal(t, 10.0, props.Points[1].ManeuveringWidth)

	_, err = (&PursuitDef{Type: "teleport"}).Properties()
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	tr, err := Load(context.Background(), ovalFile)
	gta.NilError(t, err)

	assert.Equal(t, uuid.NewV5(Namespace, "oval"), tr.ID)
	assert.Equal(t, []string{"cut", "detour", "fence", "main"}, tr.SplineNames())
	assert.Len(t, tr.Network.Splines(), 3)

	master, ok := tr.Network.Master()
	gta.Assert(t, ok)
	assert.Equal(t, tr.Handles["main"], master.Handle)
	assert.InEpsilon(t, 2*math.Pi*20000, tr.Network.MasterLength(), 0.01)

	gta.Equal(t, 4, tr.Checkpoints.Len())
	assert.InDelta(t, 6000, tr.Checkpoints.StartDistance(), 50)
	start, _ := tr.Checkpoints.At(0)
	assert.True(t, start.Window.IsValue())

	cut, ok := tr.Scene.Spline(tr.Handles["cut"])
	gta.Assert(t, ok)
	assert.False(t, cut.Enabled)
}

func TestLoadWithEligibility(t *testing.T) {
	ctx := context.Background()
	policy, err := eligibility.New(ctx, eligibility.WithContext(eligibility.Context{
		World: "alpha", Level: "canyon", Difficulty: "easy",
	}))
	gta.NilError(t, err)
	tr, err := Load(ctx, ovalFile, WithFilter(policy))
	gta.NilError(t, err)

	assert.Len(t, tr.Network.Splines(), 2)
	gta.Equal(t, 3, tr.Checkpoints.Len())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(context.Background(), "testdata/missing.yaml")
	assert.ErrorIs(t, err, os.ErrNotExist)

	def := &Definition{
		Version: "1.0.0",
		Name:    "open",
		Actors: []ActorDef{{Name: "a", Splines: []SplineDef{{
			Name:    "line",
			Points:  []Vec{{0, 0, 0}, {1000, 0, 0}, {2000, 0, 0}},
			Pursuit: &PursuitDef{},
		}}}},
	}
	_, err = Build(context.Background(), def)
	assert.ErrorIs(t, err, ErrNoMasterSpline)
}

func TestQuery(t *testing.T) {
	data, err := os.ReadFile(ovalFile)
	gta.NilError(t, err)

	tests := []struct {
		name string
		expr string
		want []any
	}{
		{"name", "$.name", []any{"oval"}},
		{"bot names", "$.bots[*].name", []any{"fast", "slow"}},
		{"shortcuts", "$.actors[*].splines[?(@.pursuit.shortcut == true)].name", []any{"cut"}},
		{"none", "$.nothing", []any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Query(data, tt.expr)
			gta.NilError(t, err)
			assert.ElementsMatch(t, tt.want, res)
		})
	}

	_, err = Query(data, "$[")
	assert.Error(t, err)

	js, err := QueryJSON(data, "$.checkpoints[0].window")
	gta.NilError(t, err)
	assert.Equal(t, []string{`{"height":10,"width":20}`}, js)
}

func TestNewSession(t *testing.T) {
	ctx := context.Background()
	tr, err := Load(ctx, ovalFile)
	gta.NilError(t, err)

	rec := &events.Recorder{}
	s, err := tr.NewSession(race.WithSink(rec))
	gta.NilError(t, err)
	assert.Equal(t, progress.Race, s.Mode())
	assert.Equal(t, 2, s.Laps())
	gta.Equal(t, 2, len(s.Participants()))
	assert.Equal(t, "fast", s.Participants()[0].Name)
	master, ok := tr.Network.Master()
	gta.Assert(t, ok)
	for i, p := range s.Participants() {
		assert.Equal(t, master.Handle, p.Bot.Follower.ThisSpline)
		assert.InDelta(t, tr.Checkpoints.StartDistance()-800*float64(i+1), p.State.MasterDistance, 50)
	}

	gta.NilError(t, s.Start(ctx))
	for i := 0; i < 2400 && !s.Finished(); i++ {
		gta.NilError(t, s.Tick(ctx, 0.05))
	}
	gta.Assert(t, s.Finished())
	leader, ok := s.Leader()
	gta.Assert(t, ok)
	assert.Equal(t, "fast", leader.Name)
	assert.Len(t, rec.Messages(events.Completed), 2)
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "track.yaml")
	data, err := os.ReadFile(ovalFile)
	gta.NilError(t, err)
	gta.NilError(t, os.WriteFile(file, data, 0o600))

	tracks := NewCache(0)
	w, err := NewWatcher(file, tracks)
	gta.NilError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first, err := tracks.Get(ctx, w.Path())
	gta.NilError(t, err)

	loaded := make(chan *Track, 10)
	go w.Run(ctx, func(tr *Track, err error) {
		if err == nil {
			loaded <- tr
		}
	})
	gta.NilError(t, os.WriteFile(file, data, 0o600))

	select {
	case tr := <-loaded:
		assert.Equal(t, "oval", tr.Definition.Name)
		assert.NotSame(t, first, tr)
		assert.Equal(t, 1, tracks.Len())
	case <-time.After(5 * time.Second):
		t.Fatal("no reload within 5s")
	}
}

func TestCache(t *testing.T) {
	ctx := context.Background()
	c := NewCache(0)
	a, err := c.Get(ctx, ovalFile)
	gta.NilError(t, err)
	b, err := c.Get(ctx, ovalFile)
	gta.NilError(t, err)
	assert.Same(t, a, b)

	c.Invalidate(ctx, ovalFile)
	b, err = c.Get(ctx, ovalFile)
	gta.NilError(t, err)
	assert.NotSame(t, a, b)
	assert.Equal(t, a.ID, b.ID)

	_, err = c.Get(ctx, "testdata/missing.yaml")
	assert.Error(t, err)
}
