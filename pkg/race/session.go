// Package race runs a race session: it owns the participants, drives the
// bots along the pursuit network, ranks everybody once per tick and hands
// the resulting events to a sink.
package race

import (
	"context"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/racenav/log"
	"github.com/mpapenbr/racenav/pkg/checkpoint"
	"github.com/mpapenbr/racenav/pkg/events"
	"github.com/mpapenbr/racenav/pkg/progress"
	"github.com/mpapenbr/racenav/pkg/pursuit"
)

// MaxPlayers caps the positions handed out.
const MaxPlayers = 16

type Participant struct {
	ID    uuid.UUID
	Name  string
	State *progress.State
	// Bot is nil for participants moved from outside the session.
	Bot *Bot
	// Eliminated participants no longer take part in the ranking.
	Eliminated bool
}

type Session struct {
	ID string

	mode  progress.Mode
	laps  int
	track *checkpoint.Track
	net   *pursuit.Network

	clock            float64
	started          bool
	finishingRank    int
	eliminationTimer float64
	participants     []*Participant
	pending          []*events.Message
	standings        *Standings

	sink     events.Sink
	logger   *log.Logger
	meter    metric.Meter
	progress *progress.Metrics
	now      func() time.Time
}

type Option func(*Session)

func WithMode(m progress.Mode) Option {
	return func(s *Session) {
		s.mode = m
	}
}

// WithLaps sets the number of laps, 0 selects progress.DefaultLaps.
func WithLaps(n int) Option {
	return func(s *Session) {
		s.laps = n
	}
}

// WithNetwork lets MoveTo resolve world locations on the pursuit network.
func WithNetwork(net *pursuit.Network) Option {
	return func(s *Session) {
		s.net = net
	}
}

func WithSink(sink events.Sink) Option {
	return func(s *Session) {
		s.sink = sink
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

func WithMeter(m metric.Meter) Option {
	return func(s *Session) {
		s.meter = m
	}
}

func NewSession(track *checkpoint.Track, opts ...Option) (*Session, error) {
	s := &Session{
		ID:        ksuid.New().String(),
		mode:      progress.Race,
		track:     track,
		standings: NewStandings(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.laps <= 0 {
		s.laps = progress.DefaultLaps
	}
	if s.logger == nil {
		s.logger = log.Default().Named("race")
	}
	if s.meter == nil {
		s.meter = otel.GetMeterProvider().Meter("racenav.race")
	}
	var err error
	if s.progress, err = progress.NewMetrics(s.meter); err != nil {
		return nil, fmt.Errorf("progress metrics: %w", err)
	}
	if err = s.setupMetrics(); err != nil {
		return nil, fmt.Errorf("race metrics: %w", err)
	}
	return s, nil
}

func (s *Session) Mode() progress.Mode { return s.mode }

func (s *Session) Laps() int { return s.laps }

func (s *Session) Track() *checkpoint.Track { return s.track }

func (s *Session) Started() bool { return s.started }

func (s *Session) Clock() float64 { return s.clock }

func (s *Session) Opponents() int { return len(s.participants) }

func (s *Session) OpponentsLeft() int {
	n := 0
	for _, p := range s.participants {
		if !p.Eliminated {
			n++
		}
	}
	return n
}

// EliminationRatio is the fraction of the current elimination period that
// has passed.
func (s *Session) EliminationRatio() float64 {
	if s.mode != progress.Elimination {
		return 0
	}
	return s.eliminationTimer / progress.EliminationSeconds
}

// CollectFinishingRank hands out the next finishing position, starting at 0.
func (s *Session) CollectFinishingRank() int {
	rank := s.finishingRank
	s.finishingRank++
	return rank
}

func (s *Session) Participants() []*Participant { return s.participants }

func (s *Session) Standings() *Standings { return s.standings }

// Add enters a participant whose movement is reported through Move.
func (s *Session) Add(name string, human bool) *Participant {
	p := &Participant{ID: uuid.New(), Name: name}
	index := len(s.participants)
	p.State = progress.New(index,
		progress.WithHuman(human),
		progress.WithLogger(s.logger.Named("progress")),
		progress.WithMetrics(s.progress),
		progress.WithListener(func(e progress.Event) { s.onProgress(p, e) }),
	)
	s.participants = append(s.participants, p)
	s.logger.Debug("participant added",
		log.String("session", s.ID),
		log.String("participant", p.ID.String()),
		log.String("name", name),
		log.Int("vehicle", index),
		log.Bool("human", human))
	return p
}

// AddBot enters a participant driven by b, placed where b currently is.
func (s *Session) AddBot(name string, b *Bot) *Participant {
	p := s.Add(name, false)
	p.Bot = b
	p.State.Place(b.MasterDistance(), b.Location())
	return p
}

// Participant returns the participant with the given vehicle index.
func (s *Session) Participant(vehicle int) (*Participant, bool) {
	if vehicle < 0 || vehicle >= len(s.participants) {
		return nil, false
	}
	return s.participants[vehicle], true
}

// Start begins the race clock.
func (s *Session) Start(ctx context.Context) error {
	if s.started {
		return nil
	}
	s.started = true
	s.logger.Info("session started",
		log.String("session", s.ID),
		log.String("mode", s.mode.String()),
		log.Int("laps", s.laps),
		log.Int("participants", len(s.participants)))
	s.queue(&events.Message{Kind: events.SessionStarted})
	return s.flush(ctx)
}

// Tick advances the session by deltaSeconds. Bots move first, then every
// participant is updated and ranked. The events raised on the way are
// published at the end.
func (s *Session) Tick(ctx context.Context, deltaSeconds float64) error {
	wasFinished := s.Finished()
	if s.started {
		s.clock += deltaSeconds
	}
	for _, p := range s.participants {
		if p.Bot == nil || p.Eliminated {
			continue
		}
		if md, loc, ok := p.Bot.Drive(deltaSeconds); ok {
			p.State.Move(md, loc)
		}
	}
	for _, p := range s.participants {
		if !p.Eliminated {
			p.State.Update(s, deltaSeconds)
		}
	}
	s.UpdatePositions()
	if s.started {
		s.updateElimination(deltaSeconds)
	}
	if s.standings.Record(s) {
		s.queue(&events.Message{Kind: events.Standings, Standings: s.standings.Current()})
	}
	if !wasFinished && s.Finished() {
		s.logger.Info("session finished",
			log.String("session", s.ID),
			log.Float64("clock", s.clock))
		s.queue(&events.Message{Kind: events.SessionFinished})
	}
	return s.flush(ctx)
}

// Move reports the position of a participant not driven by a bot.
func (s *Session) Move(vehicle int, masterDistance float64, loc mgl64.Vec3) {
	if p, ok := s.Participant(vehicle); ok {
		p.State.Move(masterDistance, loc)
	}
}

// MoveTo moves a participant to a world location. The master distance is
// taken from the nearest pursuit spline, the nearest visible one once the
// session started. It returns false without a network.
func (s *Session) MoveTo(vehicle int, loc mgl64.Vec3) bool {
	p, ok := s.Participant(vehicle)
	if !ok || s.net == nil {
		return false
	}
	r, ok := s.net.FindNearestPursuitSpline(pursuit.Query{
		Location:        loc,
		VisibleOnly:     s.started,
		AllowDeadStarts: true,
		AllowDeadEnds:   true,
	})
	if !ok {
		return false
	}
	sp, ok := s.net.Spline(r.Handle)
	if !ok {
		return false
	}
	p.State.Move(sp.MasterDistanceAt(r.Distance), loc)
	return true
}

// Finished reports whether every participant ended the race. Practice
// sessions never finish.
func (s *Session) Finished() bool {
	if !s.started || len(s.participants) == 0 || s.mode == progress.Practice {
		return false
	}
	for _, p := range s.participants {
		if !p.Eliminated && !p.State.Completion.Finished() {
			return false
		}
	}
	return true
}

// Disqualify ends the race of a participant for good.
func (s *Session) Disqualify(vehicle int) bool {
	p, ok := s.Participant(vehicle)
	if !ok {
		return false
	}
	p.State.Complete(s, true, false, false, progress.Disqualified)
	return true
}

// Abandon ends the race of a participant with an estimated race time.
func (s *Session) Abandon(vehicle int) bool {
	p, ok := s.Participant(vehicle)
	if !ok {
		return false
	}
	p.State.Complete(s, true, false, true, progress.Abandoned)
	return true
}

func (s *Session) updateElimination(deltaSeconds float64) {
	if s.mode != progress.Elimination {
		return
	}
	s.eliminationTimer += deltaSeconds
	if s.eliminationTimer < progress.EliminationSeconds {
		return
	}
	s.eliminationTimer = 0
	if s.OpponentsLeft() <= 1 {
		return
	}
	var rearmost *Participant
	maxPosition := -1
	for _, p := range s.participants {
		if !p.Eliminated && p.State.RacePosition > maxPosition {
			maxPosition = p.State.RacePosition
			rearmost = p
		}
	}
	if maxPosition <= 0 || rearmost == nil {
		return
	}
	rearmost.State.Complete(s, true, false, true, progress.Complete)
	rearmost.Eliminated = true
	s.logger.Debug("participant eliminated",
		log.String("session", s.ID),
		log.Int("vehicle", rearmost.State.VehicleIndex),
		log.Int("position", maxPosition))
	s.queue(&events.Message{
		Kind:        events.Eliminated,
		Participant: rearmost.ID.String(),
		Vehicle:     rearmost.State.VehicleIndex,
		Position:    maxPosition,
	})
}

func (s *Session) onProgress(p *Participant, e progress.Event) {
	m := &events.Message{
		Participant: p.ID.String(),
		Vehicle:     e.Vehicle,
		Clock:       e.Clock,
	}
	switch e.Kind {
	case progress.CheckpointCrossed:
		m.Kind = events.CheckpointCrossed
		m.Checkpoint = e.Checkpoint
		m.Direction = e.Direction
	case progress.LapCompleted:
		m.Kind = events.LapCompleted
		m.Lap = e.Lap
		m.LapTime = e.LapTime
		s.standings.AddLap(p, e.Lap, e.LapTime)
	case progress.EliminationAlert:
		m.Kind = events.EliminationAlert
		m.Ratio = e.Ratio
	case progress.Completed:
		m.Kind = events.Completed
		m.Status = e.Status.String()
		m.Position = e.Position
	}
	s.queue(m)
}

func (s *Session) queue(m *events.Message) {
	m.Session = s.ID
	m.Timestamp = s.now()
	if m.Clock == 0 {
		m.Clock = s.clock
	}
	s.pending = append(s.pending, m)
}

func (s *Session) flush(ctx context.Context) error {
	msgs := s.pending
	s.pending = nil
	if s.sink == nil {
		return nil
	}
	for _, m := range msgs {
		if err := s.sink.Publish(ctx, m); err != nil {
			return fmt.Errorf("session %s: %w", s.ID, err)
		}
	}
	return nil
}
