package track

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/aarondl/opt/omit"
	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mpapenbr/racenav/log"
	"github.com/mpapenbr/racenav/pkg/checkpoint"
	"github.com/mpapenbr/racenav/pkg/progress"
	"github.com/mpapenbr/racenav/pkg/pursuit"
	"github.com/mpapenbr/racenav/pkg/race"
	"github.com/mpapenbr/racenav/pkg/scene"
	"github.com/mpapenbr/racenav/pkg/spline"
)

// Namespace is the namespace of track IDs. Tracks with the same name share
// the same ID.
var Namespace = uuid.Must(uuid.FromString("6f0c1f7e-3a47-4b51-9d57-8c2b1e6a0d33"))

// Track is a loaded track definition ready for navigation.
type Track struct {
	ID          uuid.UUID
	Definition  *Definition
	Scene       *scene.Scene
	Network     *pursuit.Network
	Checkpoints *checkpoint.Track
	// Handles maps spline names to their scene handles.
	Handles map[string]scene.Handle
}

type config struct {
	filter scene.Filter
	l      *log.Logger
	tracer trace.Tracer
	meter  metric.Meter
}

type Option func(*config)

// WithFilter restricts the actors and checkpoints taking part.
func WithFilter(f scene.Filter) Option {
	return func(c *config) {
		c.filter = f
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *config) {
		c.l = l
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(c *config) {
		c.tracer = t
	}
}

func WithMeter(m metric.Meter) Option {
	return func(c *config) {
		c.meter = m
	}
}

// Load reads the definition at path and builds the track.
func Load(ctx context.Context, path string, opts ...Option) (*Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return Build(ctx, def, opts...)
}

//nolint:funlen,cyclop // building steps
func Build(ctx context.Context, def *Definition, opts ...Option) (*Track, error) {
	cfg := &config{
		filter: scene.All,
		l:      log.Default().Named("track"),
		tracer: otel.Tracer("racenav"),
		meter:  otel.GetMeterProvider().Meter("racenav"),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	ctx, span := cfg.tracer.Start(ctx, "track.build",
		trace.WithAttributes(attribute.String("track", def.Name)))
	defer span.End()

	t := &Track{
		ID:         uuid.NewV5(Namespace, def.Name),
		Definition: def,
		Scene: scene.New(
			scene.WithLogger(cfg.l.Named("scene")),
			scene.WithMeter(cfg.meter)),
		Handles: map[string]scene.Handle{},
	}
	t.Network = pursuit.NewNetwork(t.Scene,
		pursuit.WithLogger(cfg.l.Named("pursuit")),
		pursuit.WithFilter(cfg.filter),
		pursuit.WithTracer(cfg.tracer))

	for i := range def.Actors {
		a := &def.Actors[i]
		id := t.Scene.AddActor(a.Name, a.Attributes)
		for j := range a.Splines {
			if err := t.addSpline(id, &a.Splines[j]); err != nil {
				span.RecordError(err)
				return nil, err
			}
		}
	}
	for _, p := range def.Paths {
		t.applyPath(p)
	}
	t.Network.Build(ctx)

	master, ok := t.Network.Master()
	if !ok {
		span.RecordError(ErrNoMasterSpline)
		return nil, fmt.Errorf("%s: %w", def.Name, ErrNoMasterSpline)
	}
	cps := make([]checkpoint.Checkpoint, 0, len(def.Checkpoints))
	for i := range def.Checkpoints {
		cps = append(cps, checkpointFromDef(&def.Checkpoints[i], master.Curve()))
	}
	t.Checkpoints = checkpoint.NewTrack(master.Curve(), cps,
		checkpoint.WithLogger(cfg.l.Named("checkpoint")),
		checkpoint.WithFilter(cfg.filter))

	span.SetAttributes(
		attribute.Int("splines", len(t.Network.Splines())),
		attribute.Int("checkpoints", t.Checkpoints.Len()),
		attribute.Float64("length", t.Network.MasterLength()))
	cfg.l.Info("track loaded",
		log.String("name", def.Name),
		log.String("id", t.ID.String()),
		log.Int("splines", len(t.Network.Splines())),
		log.Int("checkpoints", t.Checkpoints.Len()),
		log.Float64("length", t.Network.MasterLength()))
	return t, nil
}

func (t *Track) addSpline(actor scene.ActorID, def *SplineDef) error {
	points, err := def.ControlPoints()
	if err != nil {
		return err
	}
	h, err := t.Scene.AddSpline(actor, def.Name, def.Route, spline.New(points, def.IsClosed()))
	if err != nil {
		return fmt.Errorf("spline %s: %w", def.Name, err)
	}
	t.Handles[def.Name] = h
	if def.Pursuit == nil {
		return nil
	}
	props, err := def.Pursuit.Properties()
	if err != nil {
		return fmt.Errorf("spline %s: %w", def.Name, err)
	}
	if _, err := t.Network.Add(h, props); err != nil {
		return fmt.Errorf("spline %s: %w", def.Name, err)
	}
	return nil
}

func (t *Track) applyPath(p PathDef) {
	if p.Enabled != nil {
		t.Scene.EnablePath(p.Route, p.Name, *p.Enabled)
	}
	if p.Always {
		t.Network.AlwaysSelectPath(p.Route, p.Name, true)
	}
	if p.Never {
		t.Network.NeverSelectPath(p.Route, p.Name, true)
	}
}

// Properties converts the authored pursuit data.
func (p *PursuitDef) Properties() (pursuit.Properties, error) {
	props := pursuit.DefaultProperties()
	typ, err := pursuit.ParseType(p.Type)
	if err != nil {
		return props, err
	}
	props.Type = typ
	props.AlwaysSelect = p.AlwaysSelect
	props.ContainsPickups = p.Pickups
	props.IsShortcut = p.Shortcut
	props.CarefulDriving = p.Careful
	if p.MissileGuidance != nil {
		props.SuitableForMissileGuidance = *p.MissileGuidance
	}
	if p.BranchProbability != nil {
		props.BranchProbability = *p.BranchProbability
	}
	for _, pd := range p.Points {
		data := pursuit.DefaultPointData()
		data.OptimumSpeed = pd.OptimumSpeed
		data.MinimumSpeed = pd.MinimumSpeed
		if pd.Width > 0 {
			data.ManeuveringWidth = pd.Width
		}
		props.Points = append(props.Points, data)
	}
	return props, nil
}

func checkpointFromDef(def *CheckpointDef, master *spline.Spline) checkpoint.Checkpoint {
	c := checkpoint.Checkpoint{
		Name:       def.Name,
		Order:      def.Order,
		Location:   def.Location.Vec3(),
		Rotation:   spline.Rotator{Pitch: def.Rotation.Pitch, Yaw: def.Rotation.Yaw, Roll: def.Rotation.Roll}.Quat(),
		Attributes: def.Attributes,
	}
	if def.Distance != nil {
		d := master.ClampDistance(*def.Distance)
		c.Location = master.LocationAt(d)
		c.Rotation = spline.QuatFromDirection(master.DirectionAt(d))
	}
	if def.Window != nil {
		c.Window = omit.From(checkpoint.Window{Width: def.Window.Width, Height: def.Window.Height})
	}
	return c
}

// SplineNames returns the names of all splines in alphabetical order.
func (t *Track) SplineNames() []string {
	ret := make([]string, 0, len(t.Handles))
	for name := range t.Handles {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// NewSession sets up a race on this track with the bots of the definition
// entered. Mode and laps of the definition are applied before opts.
func (t *Track) NewSession(opts ...race.Option) (*race.Session, error) {
	mode, err := progress.ParseMode(t.Definition.Mode)
	if err != nil {
		return nil, err
	}
	master, ok := t.Network.Master()
	if !ok {
		return nil, ErrNoMasterSpline
	}
	all := []race.Option{race.WithMode(mode), race.WithNetwork(t.Network)}
	if t.Definition.Laps > 0 {
		all = append(all, race.WithLaps(t.Definition.Laps))
	}
	s, err := race.NewSession(t.Checkpoints, append(all, opts...)...)
	if err != nil {
		return nil, err
	}
	for i, bd := range t.Definition.Bots {
		b, err := t.newBot(bd)
		if err != nil {
			return nil, err
		}
		// grid slots behind the start line, 8 m apart
		d := master.Curve().ClampDistance(t.Checkpoints.StartDistance() - gridSpacing*float64(i+1))
		if !b.PlaceAt(master.Curve().LocationAt(d), false) {
			return nil, ErrNoMasterSpline
		}
		s.AddBot(bd.Name, b)
	}
	return s, nil
}

const gridSpacing = 800.0

func (t *Track) newBot(def BotDef) (*race.Bot, error) {
	pref := pursuit.Preference{}
	if def.Prefer != "" {
		h, ok := t.Handles[def.Prefer]
		if !ok {
			return nil, fmt.Errorf("%w: bot %s prefers unknown spline %s",
				ErrInvalidDefinition, def.Name, def.Prefer)
		}
		pref.Prefer = omit.From(h)
	}
	return race.NewBot(t.Network, def.TopSpeed,
		race.WithLane(def.Lane),
		race.WithPreference(pref)), nil
}
