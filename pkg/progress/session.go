// Package progress tracks the race progress of a single participant: the
// checkpoints passed, lap accounting, timing, completion and points.
package progress

import (
	"fmt"
	"strings"

	"github.com/mpapenbr/racenav/pkg/checkpoint"
)

const (
	// EliminationSeconds is the time between two eliminations.
	EliminationSeconds = 20.0
	// DefaultLaps is used when a race is configured without a number of laps.
	DefaultLaps = 4
)

type Mode int

const (
	// Race is a lap based race which ends after the configured number of laps.
	Race Mode = iota
	// Elimination removes the last participant at regular intervals.
	Elimination
	// Practice counts laps without ever finishing.
	Practice
)

func (m Mode) String() string {
	switch m {
	case Race:
		return "race"
	case Elimination:
		return "elimination"
	case Practice:
		return "practice"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "race", "":
		return Race, nil
	case "elimination":
		return Elimination, nil
	case "practice":
		return Practice, nil
	}
	return Race, fmt.Errorf("unknown mode %q", s)
}

// IsRace reports whether checkpoint progress is tracked in this mode.
func (m Mode) IsRace() bool {
	return m == Race || m == Elimination || m == Practice
}

// IsLapBased reports whether progress is measured in laps.
func (m Mode) IsLapBased() bool {
	return m == Race || m == Practice
}

// Session is what a participant needs to know about the race it takes part
// in. It is supplied by the owner of the simulation loop.
type Session interface {
	Mode() Mode
	// Laps is the number of laps of a race.
	Laps() int
	// Track may be nil when the level has no checkpoints.
	Track() *checkpoint.Track
	// Started reports whether the race start sequence is over.
	Started() bool
	// Clock is the real-time game clock in seconds.
	Clock() float64
	// Opponents is the number of participants the race started with.
	Opponents() int
	// OpponentsLeft is the number of participants not yet eliminated.
	OpponentsLeft() int
	// EliminationRatio is the fraction of the current elimination interval
	// that has passed.
	EliminationRatio() float64
	// CollectFinishingRank hands out the next finishing position.
	CollectFinishingRank() int
}

func noOpponentsLeft(s Session) bool {
	return s.OpponentsLeft() <= 1 && s.Opponents() > 1
}
