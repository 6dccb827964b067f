package progress

import "fmt"

type EventKind int

const (
	CheckpointCrossed EventKind = iota
	LapCompleted
	EliminationAlert
	Completed
)

func (k EventKind) String() string {
	switch k {
	case CheckpointCrossed:
		return "checkpoint-crossed"
	case LapCompleted:
		return "lap-completed"
	case EliminationAlert:
		return "elimination-alert"
	case Completed:
		return "completed"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is raised for presentation layers, only the fields of its kind are
// set.
type Event struct {
	Kind    EventKind
	Vehicle int
	Clock   float64

	Checkpoint int
	// Direction is +1 for a forward and -1 for a backward crossing.
	Direction int

	Lap     int
	LapTime float64

	Ratio float64

	Status   Completion
	Position int
}
