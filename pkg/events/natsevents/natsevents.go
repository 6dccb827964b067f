// Package natsevents publishes race events on NATS. Every message goes to
// the subject <prefix>.<session>.events, the latest standings are kept in a
// JetStream key value bucket.
package natsevents

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/mpapenbr/racenav/log"
	"github.com/mpapenbr/racenav/pkg/events"
)

const (
	DefaultPrefix = "racenav"
	DefaultBucket = "racenav_standings"
	DefaultTTL    = time.Hour
)

type (
	// conn is the part of *nats.Conn the publisher uses.
	conn interface {
		Publish(subj string, data []byte) error
		Flush() error
		Close()
	}
	Publisher struct {
		conn   conn
		kv     jetstream.KeyValue
		prefix string
		bucket string
		ttl    time.Duration
		noKV   bool
		l      *log.Logger
	}
	Option func(*Publisher)
)

func WithPrefix(prefix string) Option {
	return func(p *Publisher) {
		p.prefix = prefix
	}
}

func WithBucket(bucket string, ttl time.Duration) Option {
	return func(p *Publisher) {
		p.bucket = bucket
		p.ttl = ttl
	}
}

// WithoutStandingsBucket publishes standings as plain messages only, for
// servers without JetStream.
func WithoutStandingsBucket() Option {
	return func(p *Publisher) {
		p.noKV = true
	}
}

func WithLogger(l *log.Logger) Option {
	return func(p *Publisher) {
		p.l = l
	}
}

func New(ctx context.Context, nc *nats.Conn, opts ...Option) (*Publisher, error) {
	p := newPublisher(nc, opts...)
	if p.noKV {
		return p, nil
	}
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	p.kv, err = js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: p.bucket,
		TTL:    p.ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("standings bucket %s: %w", p.bucket, err)
	}
	return p, nil
}

func newPublisher(c conn, opts ...Option) *Publisher {
	p := &Publisher{
		conn:   c,
		prefix: DefaultPrefix,
		bucket: DefaultBucket,
		ttl:    DefaultTTL,
		l:      log.Default().Named("nats"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subject returns the subject the messages of session are published on.
func (p *Publisher) Subject(session string) string {
	return fmt.Sprintf("%s.%s.events", p.prefix, session)
}

// StandingsKey returns the bucket key of the standings of session.
func (p *Publisher) StandingsKey(session string) string {
	return fmt.Sprintf("standings.%s", session)
}

func (p *Publisher) Publish(ctx context.Context, m *events.Message) error {
	data, err := events.Encode(m)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.Subject(m.Session), data); err != nil {
		return fmt.Errorf("publish %s: %w", m.Kind, err)
	}
	if m.Kind == events.Standings && p.kv != nil {
		rev, err := p.kv.Put(ctx, p.StandingsKey(m.Session), data)
		if err != nil {
			return fmt.Errorf("put standings: %w", err)
		}
		p.l.Debug("standings put",
			log.String("session", m.Session),
			log.Any("revision", rev))
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	err := p.conn.Flush()
	p.conn.Close()
	return err
}
