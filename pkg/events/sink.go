package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ohler55/ojg/oj"
	"github.com/samber/lo"

	"github.com/mpapenbr/racenav/log"
)

// Recorder keeps all messages in memory.
type Recorder struct {
	mu   sync.Mutex
	msgs []*Message
}

func (r *Recorder) Publish(_ context.Context, m *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Messages returns the recorded messages of the given kinds, all if none
// are given.
func (r *Recorder) Messages(kinds ...Kind) []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Filter(r.msgs, func(m *Message, _ int) bool {
		return len(kinds) == 0 || lo.Contains(kinds, m.Kind)
	})
}

// Writer writes one JSON document per message.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Publish(_ context.Context, m *Message) error {
	data, err := oj.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", m.Kind, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

func (w *Writer) Close() error { return nil }

// Logger logs messages at debug level. Standings are skipped.
type Logger struct {
	logger *log.Logger
}

func NewLogger(l *log.Logger) *Logger {
	if l == nil {
		l = log.Default().Named("events")
	}
	return &Logger{logger: l}
}

func (l *Logger) Publish(_ context.Context, m *Message) error {
	if m.Kind == Standings {
		return nil
	}
	l.logger.Debug("race event",
		log.String("session", m.Session),
		log.String("kind", string(m.Kind)),
		log.Int("vehicle", m.Vehicle),
		log.Float64("clock", m.Clock))
	return nil
}

func (l *Logger) Close() error { return nil }

// Channel forwards messages to a channel, typically the source of a
// broadcast server. Publish blocks until the message is taken or ctx is
// done.
type Channel struct {
	ch chan<- *Message
}

func NewChannel(ch chan<- *Message) *Channel {
	return &Channel{ch: ch}
}

func (c *Channel) Publish(ctx context.Context, m *Message) error {
	select {
	case c.ch <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) Close() error { return nil }

// Multi publishes to every sink, errors are joined.
type Multi []Sink

func (ms Multi) Publish(ctx context.Context, m *Message) error {
	var errs []error
	for _, s := range ms {
		if err := s.Publish(ctx, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (ms Multi) Close() error {
	var errs []error
	for _, s := range ms {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
