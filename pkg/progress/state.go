package progress

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/mpapenbr/racenav/log"
)

type Completion int

const (
	InProgress Completion = iota
	Complete
	Disqualified
	Abandoned
)

func (c Completion) String() string {
	switch c {
	case InProgress:
		return "in-progress"
	case Complete:
		return "complete"
	case Disqualified:
		return "disqualified"
	case Abandoned:
		return "abandoned"
	}
	return fmt.Sprintf("Completion(%d)", int(c))
}

// Finished reports whether no further progress is accounted.
func (c Completion) Finished() bool { return c >= Complete }

const (
	alertMinCooldown = 0.15
	alertMaxCooldown = 1.5
	// eliminationSmoothing is the per-frame (60 Hz) retention of the
	// displayed elimination ratio.
	eliminationSmoothing = 0.95
	smoothingFrameRate   = 60.0
	eliminationJitter    = 0.2
	smallNumber          = 1e-4
)

type Elimination struct {
	// AlertTimer counts down to the next elimination alert.
	AlertTimer float64
	// Ratio is the smoothed elimination ratio for presentation.
	Ratio float64
}

// State is the race state of one participant. Update is called once per
// simulation frame, after Move has reported the new position.
type State struct {
	VehicleIndex int
	Human        bool

	Completion     Completion
	RacePosition   int
	GameFinishedAt float64

	NextCheckpoint     int
	LastCheckpoint     int
	CheckpointsReached int

	// Eternal values keep counting after the participant finished,
	// LapNumber and RaceDistance freeze at completion.
	EternalLapNumber    int
	EternalRaceDistance float64
	MaxLapNumber        int
	LapNumber           int
	LapDistance         float64
	RaceDistance        float64

	MasterDistance     float64
	LastMasterDistance float64
	Location           mgl64.Vec3
	LastLocation       mgl64.Vec3

	RaceTime     float64
	LapTime      float64
	LastLapTime  float64
	BestLapTime  float64
	LapCompleted bool

	InGamePoints int
	TotalPoints  int

	Elimination Elimination

	logger   *log.Logger
	rnd      *rand.Rand
	metrics  *Metrics
	listener func(Event)
}

type Option func(*State)

func WithLogger(l *log.Logger) Option {
	return func(s *State) {
		s.logger = l
	}
}

// WithRand sets the source of the jitter of estimated elimination times.
func WithRand(r *rand.Rand) Option {
	return func(s *State) {
		s.rnd = r
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *State) {
		s.metrics = m
	}
}

// WithListener receives the events raised during Update and Complete.
func WithListener(fn func(Event)) Option {
	return func(s *State) {
		s.listener = fn
	}
}

func WithHuman(human bool) Option {
	return func(s *State) {
		s.Human = human
	}
}

// New returns the state of a participant on the grid, behind the start
// line and before the first lap.
func New(vehicleIndex int, opts ...Option) *State {
	s := &State{
		VehicleIndex:     vehicleIndex,
		NextCheckpoint:   -1,
		LastCheckpoint:   -1,
		EternalLapNumber: -1,
		LapNumber:        -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.Default().Named("progress")
	}
	if s.rnd == nil {
		//nolint:gosec // jitter only
		s.rnd = rand.New(rand.NewPCG(uint64(vehicleIndex), 0))
	}
	return s
}

// Place sets the initial position without any movement.
func (s *State) Place(masterDistance float64, location mgl64.Vec3) {
	s.MasterDistance, s.LastMasterDistance = masterDistance, masterDistance
	s.Location, s.LastLocation = location, location
}

// Move records the position of the current frame, the previous one is kept
// for crossing tests.
func (s *State) Move(masterDistance float64, location mgl64.Vec3) {
	s.LastMasterDistance, s.MasterDistance = s.MasterDistance, masterDistance
	s.LastLocation, s.Location = s.Location, location
}

// Teleport moves the participant and accounts the checkpoints passed on the
// way without testing the checkpoint windows.
func (s *State) Teleport(sess Session, masterDistance float64, location mgl64.Vec3) {
	s.Move(masterDistance, location)
	if sess.Mode().IsRace() {
		s.UpdateCheckpoints(sess, true)
	}
}

// Update advances the timers and the checkpoint accounting of one frame.
// deltaSeconds is the simulation delta, race and lap times follow the real
// time clock of the session instead.
func (s *State) Update(sess Session, deltaSeconds float64) {
	s.LapCompleted = false
	if !sess.Started() {
		return
	}
	mode := sess.Mode()
	if s.Completion.Finished() {
		// eternal values are still needed for spectating
		if mode.IsRace() {
			s.UpdateCheckpoints(sess, false)
		}
		return
	}

	frame := sess.Clock() - s.RaceTime
	s.LapTime += frame
	s.RaceTime += frame

	if mode.IsRace() {
		if noOpponentsLeft(sess) {
			s.Complete(sess, true, true, false, Complete)
		}
		if mode == Elimination {
			s.updateElimination(sess, deltaSeconds)
		}
		s.UpdateCheckpoints(sess, false)
	}
	if s.Completion.Finished() {
		s.GameFinishedAt = sess.Clock()
	}
}

func (s *State) updateElimination(sess Session, deltaSeconds float64) {
	e := &s.Elimination
	e.AlertTimer = math.Max(e.AlertTimer-deltaSeconds, 0)
	ratio := 0.0
	if sess.OpponentsLeft()-1 == s.RacePosition {
		if s.Human {
			ratio = sess.EliminationRatio()
			if ratio != 0 && e.AlertTimer <= 0 {
				e.AlertTimer = lerp(alertMaxCooldown, alertMinCooldown, math.Sin(ratio*math.Pi/2))
				s.emit(Event{Kind: EliminationAlert, Ratio: ratio, Clock: sess.Clock()})
			}
		}
	} else {
		e.AlertTimer = 0
	}
	if noOpponentsLeft(sess) {
		s.RacePosition = sess.OpponentsLeft() - 1
		s.Complete(sess, true, true, false, Complete)
	}
	keep := math.Pow(eliminationSmoothing, deltaSeconds*smoothingFrameRate)
	e.Ratio = lerp(ratio, e.Ratio, keep)
}

// EventProgress is the fraction of the race distance covered, 0 for modes
// not measured in laps.
func (s *State) EventProgress(sess Session) float64 {
	if !sess.Mode().IsLapBased() {
		return 0
	}
	tr := sess.Track()
	laps := sess.Laps()
	if tr == nil || tr.MasterLength() <= 0 || laps <= 0 {
		return 0
	}
	return math.Min(s.RaceDistance/(tr.MasterLength()*float64(laps)), 1)
}

// AccountingClosed reports whether results are final.
func (s *State) AccountingClosed() bool {
	return s.Completion.Finished()
}

// AddPoints adds points while the accounting is still open.
func (s *State) AddPoints(n int) bool {
	if s.AccountingClosed() {
		return false
	}
	s.InGamePoints += n
	s.TotalPoints += n
	return true
}

// Complete ends the race for the participant. Once Complete or Abandoned
// further calls have no effect, a disqualification is never overwritten.
// estimate extrapolates the race time of participants that did not reach
// the finish.
func (s *State) Complete(sess Session, setStatus, gameComplete, estimate bool, status Completion) {
	if s.Completion == Complete || s.Completion == Abandoned {
		return
	}
	if setStatus && s.Completion != Disqualified {
		s.Completion = status
	}
	mode := sess.Mode()
	if mode != Elimination {
		s.RacePosition = sess.CollectFinishingRank()
	}
	if estimate {
		clock := sess.Clock()
		switch {
		case mode.IsLapBased():
			if p := s.EventProgress(sess); p > smallNumber {
				s.RaceTime /= p
			}
			s.RaceTime = math.Max(s.RaceTime, clock)
		case mode == Elimination:
			index := sess.Opponents() - s.RacePosition + 1
			s.RaceTime = float64(index)*EliminationSeconds + (s.rnd.Float64()*2-1)*eliminationJitter
		}
	}
	s.logger.Debug("participant complete",
		log.Int("vehicle", s.VehicleIndex),
		log.String("status", s.Completion.String()),
		log.Int("position", s.RacePosition),
		log.Float64("raceTime", s.RaceTime),
		log.Bool("estimated", estimate),
		log.Bool("gameComplete", gameComplete))
	s.emit(Event{Kind: Completed, Status: s.Completion, Position: s.RacePosition, Clock: sess.Clock()})
	if s.metrics != nil {
		s.metrics.completed(context.Background(), s.Completion)
	}
}

func (s *State) emit(e Event) {
	if s.listener == nil {
		return
	}
	e.Vehicle = s.VehicleIndex
	s.listener(e)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
