package progress

import (
	"context"
	"math"

	"github.com/mpapenbr/racenav/log"
	"github.com/mpapenbr/racenav/pkg/checkpoint"
)

// UpdateCheckpoints accounts the checkpoints crossed between the last and the
// current master distance and derives the lap and race distance from it.
// Large jumps wind through several checkpoints but never more than one lap.
// ignoreSize skips the checkpoint windows, teleports legitimately miss them.
//
//nolint:funlen,gocognit,cyclop // by design
func (s *State) UpdateCheckpoints(sess Session, ignoreSize bool) {
	tr := sess.Track()
	if tr != nil && tr.Len() > 0 && sess.Mode().IsRace() {
		n := tr.Len()
		if s.LastCheckpoint == -1 {
			s.NextCheckpoint = 0
			s.LastCheckpoint = n - 1
		}
		// the track may have changed since the last call
		s.NextCheckpoint = min(max(s.NextCheckpoint, 0), n-1)
		s.LastCheckpoint = min(max(s.LastCheckpoint, 0), n-1)

		length := tr.MasterLength()
		half := length / 2
		crossedStart := math.Abs(s.LastMasterDistance-s.MasterDistance) > half
		started := s.LastCheckpoint
		for {
			next, _ := tr.At(s.NextCheckpoint)
			last, _ := tr.At(s.LastCheckpoint)
			forward := next.CrossedWithin(s.LastMasterDistance, s.MasterDistance, length, crossedStart,
				s.LastLocation, s.Location, ignoreSize)
			backward := last.CrossedWithin(s.LastMasterDistance, s.MasterDistance, length, crossedStart,
				s.LastLocation, s.Location, ignoreSize)
			if forward > 0 {
				s.passForward(sess, n)
			} else if backward < 0 {
				s.passBackward(sess, n, length)
			} else {
				break
			}
			if s.LastCheckpoint == started {
				break
			}
		}
		if s.EternalLapNumber >= 0 && length > 0 {
			s.updateLapDistance(tr, half)
			s.EternalRaceDistance = float64(s.EternalLapNumber)*length + s.LapDistance
		}
	}
	if !s.Completion.Finished() {
		s.LapNumber = s.EternalLapNumber
		s.RaceDistance = s.EternalRaceDistance
	}
}

func (s *State) passForward(sess Session, n int) {
	s.CheckpointsReached++
	s.LastCheckpoint = s.NextCheckpoint
	s.NextCheckpoint = (s.NextCheckpoint + 1) % n
	s.crossed(sess, s.LastCheckpoint, 1)
	if s.LastCheckpoint != 0 {
		return
	}
	// the start line closes a lap
	s.EternalLapNumber++
	s.LapDistance = 0
	if s.EternalLapNumber > 0 && s.EternalLapNumber > s.MaxLapNumber {
		mode := sess.Mode()
		if mode != Elimination {
			s.LapCompleted = true
		}
		s.LastLapTime = s.LapTime
		if s.BestLapTime == 0 || s.BestLapTime > s.LastLapTime {
			s.BestLapTime = s.LastLapTime
		}
		s.logger.Debug("lap completed",
			log.Int("vehicle", s.VehicleIndex),
			log.Int("lap", s.EternalLapNumber),
			log.Float64("lapTime", s.LastLapTime))
		s.emit(Event{Kind: LapCompleted, Lap: s.EternalLapNumber, LapTime: s.LastLapTime, Clock: sess.Clock()})
		if s.metrics != nil {
			s.metrics.lapCompleted(context.Background())
		}
		if s.EternalLapNumber == sess.Laps() && mode == Race {
			s.Complete(sess, true, false, false, Complete)
		} else {
			s.LapTime = 0
		}
	}
	s.MaxLapNumber = max(s.MaxLapNumber, s.EternalLapNumber)
}

func (s *State) passBackward(sess Session, n int, length float64) {
	s.CheckpointsReached--
	s.crossed(sess, s.LastCheckpoint, -1)
	s.NextCheckpoint = s.LastCheckpoint
	s.LastCheckpoint--
	if s.LastCheckpoint < 0 {
		s.EternalLapNumber--
		s.LastCheckpoint = n - 1
		s.LapDistance = length
	}
}

func (s *State) crossed(sess Session, index, direction int) {
	s.emit(Event{Kind: CheckpointCrossed, Checkpoint: index, Direction: direction, Clock: sess.Clock()})
	if s.metrics != nil {
		s.metrics.checkpointCrossed(context.Background(), direction)
	}
}

// updateLapDistance never lets the lap distance run ahead of the next
// checkpoint. A jump of more than half a lap means the start line was
// crossed backwards.
func (s *State) updateLapDistance(tr *checkpoint.Track, half float64) {
	this := tr.LapDistance(s.MasterDistance)
	switch {
	case s.LapDistance > this:
		s.LapDistance = this
	case this-s.LapDistance > half:
		s.LapDistance = 0
	default:
		s.LapDistance = this
	}
	s.LapDistance = math.Min(s.LapDistance, tr.MaxLapDistance(s.NextCheckpoint))
}
