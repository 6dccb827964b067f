//nolint:thelper,whitespace,lll,funlen // ok for tests
package natsevents

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	gta "gotest.tools/v3/assert"

	"github.com/mpapenbr/racenav/pkg/events"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs    []published
	err     error
	flushed bool
	closed  bool
}

func (c *fakeConn) Publish(subj string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, published{subj, data})
	return nil
}

func (c *fakeConn) Flush() error {
	c.flushed = true
	return nil
}

func (c *fakeConn) Close() { c.closed = true }

// fakeKV implements the Put of a jetstream.KeyValue, other methods panic.
type fakeKV struct {
	jetstream.KeyValue
	puts map[string][]byte
}

func (kv *fakeKV) Put(_ context.Context, key string, value []byte) (uint64, error) {
	kv.puts[key] = value
	return uint64(len(kv.puts)), nil
}

func TestSubjects(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		subject string
	}{
		{"default", nil, "racenav.abc.events"},
		{"prefix", []Option{WithPrefix("test.race")}, "test.race.abc.events"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPublisher(&fakeConn{}, tt.opts...)
			assert.Equal(t, tt.subject, p.Subject("abc"))
			assert.Equal(t, "standings.abc", p.StandingsKey("abc"))
		})
	}
}

func TestPublish(t *testing.T) {
	c := &fakeConn{}
	kv := &fakeKV{puts: map[string][]byte{}}
	p := newPublisher(c)
	p.kv = kv
	ctx := context.Background()

	gta.NilError(t, p.Publish(ctx, &events.Message{Session: "s1", Kind: events.LapCompleted, Vehicle: 2, Lap: 1}))
	gta.NilError(t, p.Publish(ctx, &events.Message{Session: "s1", Kind: events.Standings, Standings: []events.Standing{{Name: "a"}}}))

	gta.Equal(t, 2, len(c.msgs))
	assert.Equal(t, "racenav.s1.events", c.msgs[0].subject)
	got, err := events.Decode(c.msgs[0].data)
	gta.NilError(t, err)
	assert.Equal(t, events.LapCompleted, got.Kind)
	assert.Equal(t, 2, got.Vehicle)

	// only standings go to the bucket
	assert.Len(t, kv.puts, 1)
	assert.Equal(t, c.msgs[1].data, kv.puts["standings.s1"])

	gta.NilError(t, p.Close())
	assert.True(t, c.flushed)
	assert.True(t, c.closed)
}

func TestPublishError(t *testing.T) {
	errDown := errors.New("down")
	p := newPublisher(&fakeConn{err: errDown}, WithoutStandingsBucket())
	err := p.Publish(context.Background(), &events.Message{Kind: events.Completed})
	assert.ErrorIs(t, err, errDown)
}
