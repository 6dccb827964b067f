// Package events carries the race events raised by a session to
// presentation layers and external consumers.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

type Kind string

const (
	SessionStarted    Kind = "session-started"
	SessionFinished   Kind = "session-finished"
	CheckpointCrossed Kind = "checkpoint-crossed"
	LapCompleted      Kind = "lap-completed"
	EliminationAlert  Kind = "elimination-alert"
	Eliminated        Kind = "eliminated"
	Completed         Kind = "completed"
	Standings         Kind = "standings"
)

// Message is the payload published for every event. Only the fields of its
// kind are set.
type Message struct {
	Session     string    `msgpack:"session" json:"session"`
	Kind        Kind      `msgpack:"kind" json:"kind"`
	Timestamp   time.Time `msgpack:"ts" json:"ts"`
	Clock       float64   `msgpack:"clock" json:"clock"`
	Participant string    `msgpack:"participant,omitempty" json:"participant,omitempty"`
	Vehicle     int       `msgpack:"vehicle" json:"vehicle"`

	Checkpoint int `msgpack:"checkpoint,omitempty" json:"checkpoint,omitempty"`
	Direction  int `msgpack:"direction,omitempty" json:"direction,omitempty"`

	Lap     int     `msgpack:"lap,omitempty" json:"lap,omitempty"`
	LapTime float64 `msgpack:"lapTime,omitempty" json:"lapTime,omitempty"`

	Ratio float64 `msgpack:"ratio,omitempty" json:"ratio,omitempty"`

	Status   string `msgpack:"status,omitempty" json:"status,omitempty"`
	Position int    `msgpack:"position,omitempty" json:"position,omitempty"`

	Standings []Standing `msgpack:"standings,omitempty" json:"standings,omitempty"`
}

// Standing is one row of the race order.
type Standing struct {
	Position     int     `msgpack:"pos" json:"pos"`
	Vehicle      int     `msgpack:"vehicle" json:"vehicle"`
	Participant  string  `msgpack:"participant" json:"participant"`
	Name         string  `msgpack:"name" json:"name"`
	Lap          int     `msgpack:"lap" json:"lap"`
	RaceDistance float64 `msgpack:"raceDistance" json:"raceDistance"`
	Gap          float64 `msgpack:"gap" json:"gap"`
	LastLap      string  `msgpack:"lastLap,omitempty" json:"lastLap,omitempty"`
	BestLap      string  `msgpack:"bestLap,omitempty" json:"bestLap,omitempty"`
	Status       string  `msgpack:"status" json:"status"`
}

// Sink receives the messages of a session in the order they were raised.
type Sink interface {
	Publish(ctx context.Context, m *Message) error
	Close() error
}

func Encode(m *Message) ([]byte, error) {
	data, err := msgpack.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", m.Kind, err)
	}
	return data, nil
}

func Decode(data []byte) (*Message, error) {
	var m Message
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &m, nil
}
