package race

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/mpapenbr/racenav/pkg/events"
)

type (
	LapInfo struct {
		Lap     int
		LapTime float64
	}
	ParticipantLaps struct {
		Participant string
		Laps        []LapInfo
	}
	GapInfo struct {
		Participant string
		Lap         int
		Position    int
		// Gap is the distance to the leader in cm.
		Gap float64
	}
	// RaceGraphEntry holds the gaps to the leader while the leader was on
	// lap Lap.
	RaceGraphEntry struct {
		Lap  int
		Gaps []GapInfo
	}
)

// Standings collects the race order, the lap times per participant and the
// gaps to the leader per lap.
type Standings struct {
	// RaceOrder holds participant IDs by position.
	RaceOrder []string
	Laps      map[string]ParticipantLaps
	RaceGraph []RaceGraphEntry

	current   []events.Standing
	lapsAdded bool
}

func NewStandings() *Standings {
	return &Standings{
		RaceOrder: make([]string, 0),
		Laps:      make(map[string]ParticipantLaps),
		RaceGraph: make([]RaceGraphEntry, 0),
	}
}

// AddLap records a lap time. A lap recorded again replaces the former entry.
func (st *Standings) AddLap(p *Participant, lap int, lapTime float64) {
	if lap < 0 {
		return
	}
	id := p.ID.String()
	entry, ok := st.Laps[id]
	if !ok {
		entry = ParticipantLaps{Participant: id, Laps: make([]LapInfo, 0)}
	}
	info := LapInfo{Lap: lap, LapTime: lapTime}
	if idx := slices.IndexFunc(entry.Laps, func(item LapInfo) bool { return item.Lap == lap }); idx != -1 {
		entry.Laps[idx] = info
	} else {
		entry.Laps = append(entry.Laps, info)
	}
	st.Laps[id] = entry
	st.lapsAdded = true
}

// Record takes the standings of the session. It reports whether the order
// or the laps changed since the last call.
func (st *Standings) Record(s *Session) bool {
	order := s.Order()
	raceOrder := make([]string, 0, len(order))
	current := make([]events.Standing, 0, len(order))
	leaderDistance := 0.0
	if len(order) > 0 {
		leaderDistance = order[0].State.RaceDistance
	}
	for _, p := range order {
		state := p.State
		status := state.Completion.String()
		if p.Eliminated {
			status = "eliminated"
		}
		raceOrder = append(raceOrder, p.ID.String())
		current = append(current, events.Standing{
			Position:     state.RacePosition,
			Vehicle:      state.VehicleIndex,
			Participant:  p.ID.String(),
			Name:         p.Name,
			Lap:          state.LapNumber,
			RaceDistance: state.RaceDistance,
			Gap:          leaderDistance - state.RaceDistance,
			LastLap:      FormatLapTime(state.LastLapTime),
			BestLap:      FormatLapTime(state.BestLapTime),
			Status:       status,
		})
	}
	changed := st.lapsAdded || !slices.Equal(st.RaceOrder, raceOrder) || statusChanged(st.current, current)
	st.RaceOrder = raceOrder
	st.current = current
	st.lapsAdded = false
	if len(order) > 0 && order[0].State.LapNumber >= 0 {
		st.recordGraph(order[0].State.LapNumber, current)
	}
	return changed
}

func statusChanged(a, b []events.Standing) bool {
	if len(a) != len(b) {
		return true
	}
	for i := range a {
		if a[i].Status != b[i].Status || a[i].Lap != b[i].Lap {
			return true
		}
	}
	return false
}

func (st *Standings) recordGraph(leaderLap int, current []events.Standing) {
	entry := RaceGraphEntry{Lap: leaderLap, Gaps: make([]GapInfo, 0, len(current))}
	for _, c := range current {
		entry.Gaps = append(entry.Gaps, GapInfo{
			Participant: c.Participant,
			Lap:         c.Lap,
			Position:    c.Position,
			Gap:         c.Gap,
		})
	}
	slices.SortStableFunc(entry.Gaps, func(a, b GapInfo) int {
		return a.Position - b.Position
	})
	if idx := slices.IndexFunc(st.RaceGraph, func(item RaceGraphEntry) bool {
		return item.Lap == entry.Lap
	}); idx != -1 {
		st.RaceGraph[idx] = entry
	} else {
		st.RaceGraph = append(st.RaceGraph, entry)
	}
}

// Current returns the standings taken by the last Record.
func (st *Standings) Current() []events.Standing {
	return slices.Clone(st.current)
}

// FormatLapTime renders seconds as m:ss.fff, or ss.fff below a minute.
// Times not set yet are empty.
func FormatLapTime(seconds float64) string {
	if seconds <= 0 {
		return ""
	}
	d := decimal.NewFromFloat(seconds).Round(3)
	sixty := decimal.NewFromInt(60)
	if d.LessThan(sixty) {
		return d.StringFixed(3)
	}
	minutes := d.Div(sixty).Floor()
	rest := d.Sub(minutes.Mul(sixty))
	secs := rest.StringFixed(3)
	if rest.LessThan(decimal.NewFromInt(10)) {
		secs = "0" + secs
	}
	return fmt.Sprintf("%s:%s", minutes.String(), secs)
}
