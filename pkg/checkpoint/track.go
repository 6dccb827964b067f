package checkpoint

import (
	"slices"

	"github.com/samber/lo"

	"github.com/mpapenbr/racenav/log"
	"github.com/mpapenbr/racenav/pkg/scene"
	"github.com/mpapenbr/racenav/pkg/spline"
)

const (
	bindIterations = 10
	bindSamples    = 50
	// smallNumber treats lap distances this close to zero as zero.
	smallNumber = 1e-4
)

// Track is the ordered list of checkpoints of a race bound to the master
// spline. Index 0 is the start/finish line.
type Track struct {
	checkpoints []*Checkpoint
	length      float64
	start       float64
	filter      scene.Filter
	logger      *log.Logger
}

type Option func(*Track)

func WithLogger(l *log.Logger) Option {
	return func(t *Track) {
		t.logger = l
	}
}

// WithFilter drops checkpoints the filter rejects. A checkpoint is presented
// to the filter as an actor carrying its name and attributes.
func WithFilter(f scene.Filter) Option {
	return func(t *Track) {
		t.filter = f
	}
}

// NewTrack binds the checkpoints to the master spline. Checkpoints are
// sorted by Order, keeping the given order for equal values. Without a
// valid master spline every checkpoint is bound to distance 0.
func NewTrack(master *spline.Spline, checkpoints []Checkpoint, opts ...Option) *Track {
	t := &Track{logger: log.Default().Named("checkpoint"), filter: scene.All}
	for _, opt := range opts {
		opt(t)
	}
	eligible := lo.Filter(checkpoints, func(c Checkpoint, _ int) bool {
		return t.filter.Eligible(&scene.Actor{Name: c.Name, Attributes: c.Attributes})
	})
	t.checkpoints = lo.Map(eligible, func(c Checkpoint, _ int) *Checkpoint { return &c })
	slices.SortStableFunc(t.checkpoints, func(a, b *Checkpoint) int { return a.Order - b.Order })

	if master.Valid() {
		t.length = master.Length()
		for _, c := range t.checkpoints {
			c.Distance = master.NearestDistance(c.Location, 0, 0,
				bindIterations, bindSamples, spline.DefaultEarlyExit)
		}
	}
	if len(t.checkpoints) > 0 {
		t.start = t.checkpoints[0].Distance
	}
	for i, c := range t.checkpoints {
		t.logger.Debug("checkpoint bound",
			log.Int("index", i),
			log.String("name", c.Name),
			log.Int("order", c.Order),
			log.Float64("distance", c.Distance))
	}
	if len(t.checkpoints) < len(checkpoints) {
		t.logger.Info("checkpoints skipped by filter",
			log.Int("skipped", len(checkpoints)-len(t.checkpoints)))
	}
	return t
}

func (t *Track) Len() int { return len(t.checkpoints) }

// At returns checkpoint i or false when i is out of range.
func (t *Track) At(i int) (*Checkpoint, bool) {
	if i < 0 || i >= len(t.checkpoints) {
		return nil, false
	}
	return t.checkpoints[i], true
}

func (t *Track) Checkpoints() []*Checkpoint {
	return slices.Clone(t.checkpoints)
}

// MasterLength is the length of the master spline the track is bound to,
// 0 when there is none.
func (t *Track) MasterLength() float64 { return t.length }

// StartDistance is the master distance of the start line.
func (t *Track) StartDistance() float64 { return t.start }

// LapDistance converts a master distance into the distance travelled since
// the start line. Distances up to the start line count as the end of the
// previous lap.
func (t *Track) LapDistance(masterDistance float64) float64 {
	if masterDistance <= t.start {
		return masterDistance + (t.length - t.start)
	}
	return masterDistance - t.start
}

// MaxLapDistance is the lap distance progress may reach while next is the
// upcoming checkpoint. The start line closes the lap.
func (t *Track) MaxLapDistance(next int) float64 {
	c, ok := t.At(next)
	if !ok || next == 0 {
		return t.length
	}
	ret := t.LapDistance(c.Distance)
	if ret < smallNumber && ret > -smallNumber {
		return t.length
	}
	return ret
}
