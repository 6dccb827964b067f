//nolint:thelper,whitespace,lll,funlen // ok for tests
package progress

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/aarondl/opt/omit"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	gta "gotest.tools/v3/assert"

	"github.com/mpapenbr/racenav/pkg/checkpoint"
	"github.com/mpapenbr/racenav/pkg/spline"
	"github.com/mpapenbr/racenav/testsupport/trackdata"
)

const (
	radius = 20000.0
	step   = 2000.0
)

type session struct {
	mode      Mode
	laps      int
	track     *checkpoint.Track
	started   bool
	clock     float64
	opponents int
	left      int
	ratio     float64
	rank      int
}

func (s *session) Mode() Mode                { return s.mode }
func (s *session) Laps() int                 { return s.laps }
func (s *session) Track() *checkpoint.Track  { return s.track }
func (s *session) Started() bool             { return s.started }
func (s *session) Clock() float64            { return s.clock }
func (s *session) Opponents() int            { return s.opponents }
func (s *session) OpponentsLeft() int        { return s.left }
func (s *session) EliminationRatio() float64 { return s.ratio }

func (s *session) CollectFinishingRank() int {
	r := s.rank
	s.rank++
	return r
}

func (s *session) tick(st *State, delta float64) {
	s.clock += delta
	st.Update(s, delta)
}

type fixture struct {
	sess   *session
	master *spline.Spline
	d      []float64
	length float64
	// offset shifts driven locations sideways
	offset mgl64.Vec3
}

// setup builds a circular track with four checkpoints. The second one has a
// 10 m wide window.
func setup(t *testing.T, laps int) *fixture {
	master := spline.New(trackdata.Circle(radius, 72), true)
	cps := []checkpoint.Checkpoint{}
	for i, a := range []float64{0.3, 1.3, 1.8, 4.0} {
		c := checkpoint.Checkpoint{
			Order:    i,
			Location: trackdata.OnCircle(radius, a),
			Rotation: spline.QuatFromDirection(trackdata.Tangent(a)),
		}
		if i == 1 {
			c.Window = omit.From(checkpoint.Window{Width: 10, Height: 5})
		}
		cps = append(cps, c)
	}
	tr := checkpoint.NewTrack(master, cps)
	f := &fixture{
		sess:   &session{mode: Race, laps: laps, track: tr, started: true, opponents: 4, left: 4},
		master: master,
		length: tr.MasterLength(),
	}
	for _, c := range tr.Checkpoints() {
		f.d = append(f.d, c.Distance)
	}
	gta.Equal(t, len(f.d), 4)
	return f
}

func (f *fixture) location(d float64) mgl64.Vec3 {
	return f.master.LocationAt(d).Add(f.offset)
}

func (f *fixture) wrap(d float64) float64 {
	return math.Mod(d, f.length)
}

// drive moves forward (or backward) in steps from the current unwrapped
// master distance to `to`, updating once per step.
func (f *fixture) drive(st *State, from, to float64) {
	dir := 1.0
	if to < from {
		dir = -1
	}
	for d := from + dir*step; dir*(to-d) > 0; d += dir * step {
		f.move(st, d)
	}
	f.move(st, to)
}

func (f *fixture) move(st *State, d float64) {
	w := f.wrap(d)
	st.Move(w, f.location(w))
	f.sess.tick(st, 1)
}

func (f *fixture) grid(opts ...Option) *State {
	st := New(0, opts...)
	start := f.d[0] - 1000
	st.Place(start, f.location(start))
	return st
}

func TestInitialState(t *testing.T) {
	st := New(3)
	assert.Equal(t, -1, st.EternalLapNumber)
	assert.Equal(t, -1, st.LastCheckpoint)
	assert.Equal(t, -1, st.NextCheckpoint)
	assert.Equal(t, InProgress, st.Completion)
	assert.Equal(t, 3, st.VehicleIndex)
}

func TestCrossingStartLine(t *testing.T) {
	f := setup(t, 3)
	st := f.grid()
	f.sess.tick(st, 1)
	assert.Equal(t, 0, st.NextCheckpoint)
	assert.Equal(t, 3, st.LastCheckpoint)
	assert.Equal(t, 0, st.CheckpointsReached)

	f.drive(st, f.d[0]-1000, f.d[0]+1000)
	assert.Equal(t, 1, st.CheckpointsReached)
	assert.Equal(t, 0, st.EternalLapNumber)
	assert.Equal(t, 0, st.LapNumber)
	assert.False(t, st.LapCompleted)
	assert.Equal(t, 1, st.NextCheckpoint)
	assert.Equal(t, 0, st.LastCheckpoint)
	assert.InDelta(t, 1000, st.LapDistance, 1e-6)
	assert.InDelta(t, 1000, st.RaceDistance, 1e-6)
}

func TestForwardTravel(t *testing.T) {
	const laps = 3
	f := setup(t, 10)
	st := f.grid()
	f.drive(st, f.d[0]-1000, f.d[0]+1000)
	reached := st.CheckpointsReached

	from := f.d[0] + 1000
	f.drive(st, from, from+laps*f.length)
	assert.Equal(t, reached+4*laps, st.CheckpointsReached)
	assert.Equal(t, laps, st.EternalLapNumber)
	assert.Equal(t, laps, st.MaxLapNumber)
	assert.Equal(t, laps, st.LapNumber)
	assert.InDelta(t, laps*f.length+1000, st.EternalRaceDistance, 1e-6)
	assert.Equal(t, st.EternalRaceDistance, st.RaceDistance)
	assert.Equal(t, InProgress, st.Completion)
	assert.Greater(t, st.BestLapTime, 0.0)
	assert.LessOrEqual(t, st.BestLapTime, st.LastLapTime)
	assert.Less(t, st.LapTime, st.LastLapTime)
}

func TestUpdateIdempotence(t *testing.T) {
	f := setup(t, 3)
	st := f.grid()
	f.drive(st, f.d[0]-1000, f.d[1]+500)
	want := *st

	for range 5 {
		f.move(st, f.d[1]+500)
	}
	assert.Equal(t, want.EternalLapNumber, st.EternalLapNumber)
	assert.Equal(t, want.CheckpointsReached, st.CheckpointsReached)
	assert.Equal(t, want.LapDistance, st.LapDistance)
	assert.Equal(t, want.NextCheckpoint, st.NextCheckpoint)
}

func TestBackwardThenForward(t *testing.T) {
	f := setup(t, 3)
	st := f.grid()
	f.drive(st, f.d[0]-1000, f.d[1]-500)
	next, last, reached := st.NextCheckpoint, st.LastCheckpoint, st.CheckpointsReached

	f.move(st, f.d[1]+500)
	assert.Equal(t, reached+1, st.CheckpointsReached)
	assert.Equal(t, 1, st.LastCheckpoint)

	f.move(st, f.d[1]-500)
	assert.Equal(t, next, st.NextCheckpoint)
	assert.Equal(t, last, st.LastCheckpoint)
	assert.Equal(t, reached, st.CheckpointsReached)
	assert.InDelta(t, f.d[1]-500-f.d[0], st.LapDistance, 1e-6)
}

func TestBackwardAcrossStartLine(t *testing.T) {
	f := setup(t, 3)
	st := f.grid()
	f.drive(st, f.d[0]-1000, f.d[0]+1000)
	assert.Equal(t, 0, st.EternalLapNumber)

	f.move(st, f.d[0]-1000)
	assert.Equal(t, -1, st.EternalLapNumber)
	assert.Equal(t, 0, st.NextCheckpoint)
	assert.Equal(t, 3, st.LastCheckpoint)
	assert.Equal(t, 0, st.CheckpointsReached)

	// crossing again does not count as a completed lap
	f.move(st, f.d[0]+1000)
	assert.Equal(t, 0, st.EternalLapNumber)
	assert.False(t, st.LapCompleted)
	assert.Equal(t, 0.0, st.LastLapTime)
}

func TestMissedWindow(t *testing.T) {
	f := setup(t, 3)
	st := f.grid()
	f.drive(st, f.d[0]-1000, f.d[0]+1000)

	// drive past the second checkpoint beside its window
	f.offset = f.master.RightVectorAt(f.d[1]).Mul(2000)
	f.drive(st, f.d[0]+1000, f.d[1]+5000)
	assert.Equal(t, 1, st.CheckpointsReached)
	assert.Equal(t, 1, st.NextCheckpoint)
	assert.InDelta(t, f.d[1]-f.d[0], st.LapDistance, 1e-6)

	// back off and teleport through the window
	f.move(st, f.d[1]-1000)
	assert.Equal(t, 1, st.CheckpointsReached)
	st.Teleport(f.sess, f.d[1]+1000, f.location(f.d[1]+1000))
	assert.Equal(t, 2, st.CheckpointsReached)
	assert.Equal(t, 2, st.NextCheckpoint)
}

func TestTeleportAcrossCheckpoints(t *testing.T) {
	f := setup(t, 3)
	st := f.grid()
	f.drive(st, f.d[0]-1000, f.d[0]+1000)

	f.offset = mgl64.Vec3{0, 0, 5000}
	st.Teleport(f.sess, f.d[2]+500, f.location(f.d[2]+500))
	assert.Equal(t, 3, st.CheckpointsReached)
	assert.Equal(t, 2, st.LastCheckpoint)
	assert.Equal(t, 3, st.NextCheckpoint)
	assert.InDelta(t, f.d[2]+500-f.d[0], st.LapDistance, 1e-6)
}

func TestRaceCompletion(t *testing.T) {
	f := setup(t, 2)
	events := []Event{}
	st := f.grid(WithListener(func(e Event) { events = append(events, e) }))
	f.drive(st, f.d[0]-1000, f.d[0]+1000)
	from := f.d[0] + 1000
	f.drive(st, from, from+2*f.length)

	gta.Equal(t, st.Completion, Complete)
	gta.Equal(t, st.RacePosition, 0)
	gta.Equal(t, st.EternalLapNumber, 2)
	assert.Greater(t, st.GameFinishedAt, 0.0)
	assert.LessOrEqual(t, st.GameFinishedAt, f.sess.clock)
	assert.True(t, st.AccountingClosed())
	assert.False(t, st.AddPoints(10))

	laps := 0
	completed := 0
	for _, e := range events {
		switch e.Kind {
		case LapCompleted:
			laps++
		case Completed:
			completed++
			assert.Equal(t, Complete, e.Status)
		case CheckpointCrossed:
			assert.Equal(t, 1, e.Direction)
		case EliminationAlert:
			t.Errorf("unexpected alert %+v", e)
		}
	}
	gta.Equal(t, laps, 2)
	gta.Equal(t, completed, 1)

	// display values freeze, eternal values keep counting
	lapNumber, raceDistance, finished := st.LapNumber, st.RaceDistance, st.GameFinishedAt
	from += 2 * f.length
	f.drive(st, from, from+f.length)
	gta.Equal(t, st.EternalLapNumber, 3)
	gta.Equal(t, st.LapNumber, lapNumber)
	gta.Equal(t, st.RaceDistance, raceDistance)
	gta.Equal(t, st.GameFinishedAt, finished)
	gta.Equal(t, f.sess.rank, 1)
}

func TestPracticeNeverCompletes(t *testing.T) {
	f := setup(t, 1)
	f.sess.mode = Practice
	st := f.grid()
	f.drive(st, f.d[0]-1000, f.d[0]+1000+2*f.length)
	gta.Equal(t, st.EternalLapNumber, 2)
	gta.Equal(t, st.Completion, InProgress)
}

func TestNotStarted(t *testing.T) {
	f := setup(t, 3)
	f.sess.started = false
	st := f.grid()
	f.drive(st, f.d[0]-1000, f.d[1]+1000)
	gta.Equal(t, st.CheckpointsReached, 0)
	gta.Equal(t, st.RaceTime, 0.0)
	gta.Equal(t, st.LastCheckpoint, -1)
}

func TestWithoutTrack(t *testing.T) {
	f := setup(t, 3)
	f.sess.track = nil
	st := f.grid()
	f.drive(st, f.d[0]-1000, f.d[1]+1000)
	gta.Equal(t, st.CheckpointsReached, 0)
	gta.Equal(t, st.EternalLapNumber, -1)
	gta.Equal(t, st.RaceDistance, 0.0)
	assert.Greater(t, st.RaceTime, 0.0)
	gta.Equal(t, st.EventProgress(f.sess), 0.0)
}

func TestTiming(t *testing.T) {
	f := setup(t, 3)
	st := f.grid()
	f.sess.clock = 10
	st.Update(f.sess, 0.016)
	gta.Equal(t, st.RaceTime, 10.0)
	gta.Equal(t, st.LapTime, 10.0)
	f.sess.clock = 10.5
	st.Update(f.sess, 0.016)
	gta.Equal(t, st.RaceTime, 10.5)
}

func TestNoOpponentsLeft(t *testing.T) {
	f := setup(t, 3)
	f.sess.left = 1
	st := f.grid()
	f.sess.tick(st, 1)
	gta.Equal(t, st.Completion, Complete)
	gta.Equal(t, st.GameFinishedAt, f.sess.clock)

	// a single participant race does not end by itself
	f = setup(t, 3)
	f.sess.opponents, f.sess.left = 1, 1
	st = f.grid()
	f.sess.tick(st, 1)
	gta.Equal(t, st.Completion, InProgress)
}

func TestDisqualificationSticks(t *testing.T) {
	f := setup(t, 3)
	st := f.grid()
	st.Completion = Disqualified
	for _, status := range []Completion{Complete, Abandoned, InProgress} {
		st.Complete(f.sess, true, true, false, status)
		gta.Equal(t, st.Completion, Disqualified)
	}
	assert.False(t, st.AddPoints(1))
}

func TestCompleteIsFinal(t *testing.T) {
	tests := []struct {
		name  string
		first Completion
	}{
		{name: "complete", first: Complete},
		{name: "abandoned", first: Abandoned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, 3)
			st := f.grid()
			st.Complete(f.sess, true, false, false, tt.first)
			st.Complete(f.sess, true, false, true, Disqualified)
			gta.Equal(t, st.Completion, tt.first)
			gta.Equal(t, f.sess.rank, 1)
		})
	}
}

func TestEstimateRaceTime(t *testing.T) {
	f := setup(t, 2)
	st := f.grid()
	st.RaceDistance = f.length
	st.RaceTime = 50
	f.sess.clock = 60
	st.Complete(f.sess, true, true, true, Complete)
	assert.InDelta(t, 100, st.RaceTime, 1e-9)

	// never earlier than the clock
	st = f.grid()
	st.RaceDistance = f.length * 2
	st.RaceTime = 50
	st.Complete(f.sess, true, true, true, Complete)
	gta.Equal(t, st.RaceTime, 60.0)

	f.sess.mode = Elimination
	st = f.grid(WithRand(rand.New(rand.NewPCG(7, 7))))
	st.RacePosition = 2
	st.Complete(f.sess, true, true, true, Complete)
	assert.InDelta(t, 3*EliminationSeconds, st.RaceTime, eliminationJitter)
	gta.Equal(t, st.RacePosition, 2)
}

func TestAddPoints(t *testing.T) {
	st := New(0)
	assert.True(t, st.AddPoints(5))
	assert.True(t, st.AddPoints(-2))
	gta.Equal(t, st.InGamePoints, 3)
	gta.Equal(t, st.TotalPoints, 3)
}

func TestEventProgress(t *testing.T) {
	f := setup(t, 2)
	st := f.grid()
	tests := []struct {
		name     string
		mode     Mode
		distance float64
		want     float64
	}{
		{name: "start", mode: Race, distance: 0, want: 0},
		{name: "half", mode: Race, distance: f.length, want: 0.5},
		{name: "capped", mode: Race, distance: 3 * f.length, want: 1},
		{name: "elimination", mode: Elimination, distance: f.length, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.sess.mode = tt.mode
			st.RaceDistance = tt.distance
			assert.InDelta(t, tt.want, st.EventProgress(f.sess), 1e-9)
		})
	}
}

func TestEliminationAlert(t *testing.T) {
	f := setup(t, 3)
	f.sess.mode = Elimination
	f.sess.left = 3
	f.sess.ratio = 0.5
	alerts := 0
	st := f.grid(WithHuman(true), WithListener(func(e Event) {
		if e.Kind == EliminationAlert {
			alerts++
		}
	}))
	st.RacePosition = 2

	f.sess.tick(st, 0.1)
	gta.Equal(t, alerts, 1)
	want := alertMaxCooldown + (alertMinCooldown-alertMaxCooldown)*math.Sin(0.25*math.Pi)
	assert.InDelta(t, want, st.Elimination.AlertTimer, 1e-9)
	assert.Greater(t, st.Elimination.Ratio, 0.0)
	assert.Less(t, st.Elimination.Ratio, 0.5)

	f.sess.tick(st, 0.1)
	gta.Equal(t, alerts, 1)
	assert.InDelta(t, want-0.1, st.Elimination.AlertTimer, 1e-9)

	// no longer last
	st.RacePosition = 1
	f.sess.tick(st, 0.1)
	gta.Equal(t, st.Elimination.AlertTimer, 0.0)

	// last one standing
	f.sess.left = 1
	f.sess.tick(st, 0.1)
	gta.Equal(t, st.Completion, Complete)
	gta.Equal(t, st.RacePosition, 0)
	gta.Equal(t, f.sess.rank, 0)
}

func TestEliminationNoLapCompletedFlag(t *testing.T) {
	f := setup(t, 3)
	f.sess.mode = Elimination
	st := f.grid()
	from := f.d[0] + 1000
	f.drive(st, f.d[0]-1000, from)
	f.drive(st, from, from+f.length-2000)
	f.move(st, from+f.length)
	gta.Equal(t, st.EternalLapNumber, 1)
	gta.Assert(t, !st.LapCompleted)
	assert.Greater(t, st.LastLapTime, 0.0)
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{Race, Elimination, Practice} {
		got, err := ParseMode(m.String())
		assert.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMode("drift")
	assert.Error(t, err)
	assert.True(t, Practice.IsLapBased())
	assert.False(t, Elimination.IsLapBased())
	assert.Equal(t, "abandoned", Abandoned.String())
	assert.Equal(t, "lap-completed", LapCompleted.String())
}
