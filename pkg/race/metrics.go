package race

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/racenav/pkg/progress"
)

// setupMetrics registers a gauge reporting the participants of the session
// per completion state.
func (s *Session) setupMetrics() error {
	_, err := s.meter.Int64ObservableGauge("racenav.race.participants",
		metric.WithDescription("Number of participants per completion state"),
		metric.WithUnit("{count}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			for status, n := range s.countByCompletion() {
				o.Observe(n, metric.WithAttributes(
					attribute.String("session", s.ID),
					attribute.String("status", status),
				))
			}
			return nil
		}))
	return err
}

func (s *Session) countByCompletion() map[string]int64 {
	ret := map[string]int64{}
	for _, c := range []progress.Completion{
		progress.InProgress, progress.Complete, progress.Disqualified, progress.Abandoned,
	} {
		ret[c.String()] = 0
	}
	for _, p := range s.participants {
		key := p.State.Completion.String()
		if p.Eliminated {
			key = "eliminated"
		}
		ret[key]++
	}
	return ret
}
