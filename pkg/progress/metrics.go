package progress

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the instruments shared by all participants of a session.
type Metrics struct {
	crossed   metric.Int64Counter
	laps      metric.Int64Counter
	completes metric.Int64Counter
}

// NewMetrics registers the progress instruments with m. A nil meter uses the
// global meter provider.
func NewMetrics(m metric.Meter) (*Metrics, error) {
	if m == nil {
		m = otel.GetMeterProvider().Meter("racenav.progress")
	}
	ret := &Metrics{}
	var err error
	if ret.crossed, err = m.Int64Counter("racenav.checkpoints.crossed",
		metric.WithDescription("Number of checkpoint crossings"),
		metric.WithUnit("{count}")); err != nil {
		return nil, err
	}
	if ret.laps, err = m.Int64Counter("racenav.laps.completed",
		metric.WithDescription("Number of completed laps"),
		metric.WithUnit("{count}")); err != nil {
		return nil, err
	}
	if ret.completes, err = m.Int64Counter("racenav.participants.completed",
		metric.WithDescription("Number of participants that ended their race"),
		metric.WithUnit("{count}")); err != nil {
		return nil, err
	}
	return ret, nil
}

func (m *Metrics) checkpointCrossed(ctx context.Context, direction int) {
	dir := "forward"
	if direction < 0 {
		dir = "backward"
	}
	m.crossed.Add(ctx, 1, metric.WithAttributes(attribute.String("direction", dir)))
}

func (m *Metrics) lapCompleted(ctx context.Context) {
	m.laps.Add(ctx, 1)
}

func (m *Metrics) completed(ctx context.Context, c Completion) {
	m.completes.Add(ctx, 1, metric.WithAttributes(attribute.String("status", c.String())))
}
