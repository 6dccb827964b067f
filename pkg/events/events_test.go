//nolint:thelper,whitespace,lll,funlen // ok for tests
package events

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/stretchr/testify/assert"
	gta "gotest.tools/v3/assert"
)

func sampleStandings() *Message {
	return &Message{
		Session:   "2Jr0",
		Kind:      Standings,
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Clock:     61.5,
		Standings: []Standing{
			{Position: 0, Vehicle: 2, Participant: "a", Name: "Alpha", Lap: 1, RaceDistance: 130000, LastLap: "58.120", BestLap: "58.120", Status: "in-progress"},
			{Position: 1, Vehicle: 0, Participant: "b", Name: "Bravo", Lap: 1, RaceDistance: 120000, Gap: 10000, Status: "in-progress"},
		},
	}
}

func TestCodec(t *testing.T) {
	m := sampleStandings()
	data, err := Encode(m)
	gta.NilError(t, err)
	got, err := Decode(data)
	gta.NilError(t, err)
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte{0xc1})
	assert.Error(t, err)
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	gta.NilError(t, w.Publish(context.Background(), &Message{Session: "s", Kind: LapCompleted, Vehicle: 3, Lap: 2, LapTime: 61.25}))
	gta.NilError(t, w.Publish(context.Background(), sampleStandings()))
	gta.NilError(t, w.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	gta.Equal(t, 2, len(lines))

	first, err := oj.ParseString(lines[0])
	gta.NilError(t, err)
	assert.Equal(t, []any{"lap-completed"}, jp.MustParseString("$.kind").Get(first))
	assert.Equal(t, []any{int64(3)}, jp.MustParseString("$.vehicle").Get(first))

	second, err := oj.ParseString(lines[1])
	gta.NilError(t, err)
	assert.Equal(t, []any{"Alpha", "Bravo"}, jp.MustParseString("$.standings[*].name").Get(second))
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	ctx := context.Background()
	for _, k := range []Kind{SessionStarted, CheckpointCrossed, LapCompleted, CheckpointCrossed} {
		gta.NilError(t, r.Publish(ctx, &Message{Kind: k}))
	}
	assert.Len(t, r.Messages(), 4)
	assert.Len(t, r.Messages(CheckpointCrossed), 2)
	assert.Len(t, r.Messages(LapCompleted, SessionStarted), 2)
	assert.Empty(t, r.Messages(Completed))
}

type failing struct{ err error }

func (f failing) Publish(context.Context, *Message) error { return f.err }
func (f failing) Close() error                            { return f.err }

func TestMulti(t *testing.T) {
	errA := errors.New("a")
	r := &Recorder{}
	m := Multi{r, failing{errA}, NewLogger(nil)}
	err := m.Publish(context.Background(), &Message{Kind: Completed})
	assert.ErrorIs(t, err, errA)
	// the other sinks still got the message
	assert.Len(t, r.Messages(), 1)
	assert.ErrorIs(t, m.Close(), errA)
	assert.NoError(t, Multi{r}.Close())
}

func TestChannel(t *testing.T) {
	ch := make(chan *Message, 1)
	c := NewChannel(ch)
	gta.NilError(t, c.Publish(context.Background(), &Message{Kind: Eliminated}))
	assert.Equal(t, Eliminated, (<-ch).Kind)

	full := NewChannel(make(chan *Message))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, full.Publish(ctx, &Message{}), context.Canceled)
}
