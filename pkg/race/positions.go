package race

import (
	"slices"

	"github.com/samber/lo"

	"github.com/mpapenbr/racenav/pkg/progress"
)

// UpdatePositions ranks the participants still racing by race distance.
// Positions are 0-based and continue after the finishers. Participants
// that have not moved yet keep their position, except in elimination where
// everybody is ranked from the start.
func (s *Session) UpdatePositions() {
	first := 0
	racing := make([]*Participant, 0, len(s.participants))
	for _, p := range s.participants {
		if p.Eliminated {
			continue
		}
		switch st := p.State; {
		case !st.Completion.Finished():
			racing = append(racing, p)
		case st.Completion == progress.Complete:
			first = max(first, st.RacePosition+1)
		}
	}
	slices.SortStableFunc(racing, func(a, b *Participant) int {
		if a.State.RaceDistance == b.State.RaceDistance {
			return a.State.VehicleIndex - b.State.VehicleIndex
		}
		if a.State.RaceDistance > b.State.RaceDistance {
			return -1
		}
		return 1
	})
	elimination := s.mode == progress.Elimination
	for _, p := range racing {
		if p.State.RaceDistance != 0 || elimination {
			p.State.RacePosition = min(first, MaxPlayers-1)
			first++
		}
	}
}

// Order returns the participants by position, finished or not. Eliminated
// participants follow in reverse order of elimination.
func (s *Session) Order() []*Participant {
	ret := slices.Clone(s.participants)
	slices.SortStableFunc(ret, func(a, b *Participant) int {
		if a.Eliminated != b.Eliminated {
			if a.Eliminated {
				return 1
			}
			return -1
		}
		return a.State.RacePosition - b.State.RacePosition
	})
	return ret
}

// Leader returns the participant in first position.
func (s *Session) Leader() (*Participant, bool) {
	return lo.Find(s.participants, func(p *Participant) bool {
		return !p.Eliminated && p.State.RacePosition == 0
	})
}
