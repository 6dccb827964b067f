// Package broadcast fans the messages of one channel out to any number of
// subscribers. Slow subscribers miss messages instead of blocking the
// source.
package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/racenav/log"
)

const defaultSendTimeout = 50 * time.Millisecond

type Server[T any] interface {
	Subscribe() <-chan T
	CancelSubscription(<-chan T)
	Close()
}

type server[T any] struct {
	name           string
	source         <-chan T
	listeners      []chan T
	addListener    chan chan T
	removeListener chan (<-chan T)
	ctx            context.Context
	cancel         context.CancelFunc
	done           chan struct{}
	sendTimeout    time.Duration
	buffer         int
	l              *log.Logger
	mu             sync.Mutex
	numRcv         int64
	numSnd         int64
	numSkip        int64
}

type Option[T any] func(*server[T])

// WithSendTimeout sets how long a message waits for a subscriber.
func WithSendTimeout[T any](d time.Duration) Option[T] {
	return func(s *server[T]) {
		s.sendTimeout = d
	}
}

// WithBuffer gives each subscription channel a buffer of n messages.
func WithBuffer[T any](n int) Option[T] {
	return func(s *server[T]) {
		s.buffer = n
	}
}

func WithLogger[T any](l *log.Logger) Option[T] {
	return func(s *server[T]) {
		s.l = l
	}
}

// New starts serving source until Close is called or source is closed.
func New[T any](name string, source <-chan T, opts ...Option[T]) Server[T] {
	ctx, cancel := context.WithCancel(context.Background())
	s := &server[T]{
		name:           name,
		source:         source,
		addListener:    make(chan chan T),
		removeListener: make(chan (<-chan T)),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
		sendTimeout:    defaultSendTimeout,
		l:              log.Default().Named("broadcast"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupMetrics()
	go s.serve()
	return s
}

// Subscribe returns a channel receiving all messages from now on. It is
// closed when the server stops.
func (s *server[T]) Subscribe() <-chan T {
	ch := make(chan T, s.buffer)
	select {
	case s.addListener <- ch:
	case <-s.done:
		close(ch)
	}
	return ch
}

func (s *server[T]) CancelSubscription(ch <-chan T) {
	select {
	case s.removeListener <- ch:
	case <-s.done:
	}
}

// Close stops the server and waits for all subscriptions to be closed.
func (s *server[T]) Close() {
	s.cancel()
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	s.l.Info("broadcast closed",
		log.String("name", s.name),
		log.Int64("rcv", s.numRcv),
		log.Int64("snd", s.numSnd),
		log.Int64("skip", s.numSkip))
}

func (s *server[T]) setupMetrics() {
	meter := otel.GetMeterProvider().Meter(fmt.Sprintf("racenav.broadcast.%s", s.name))
	register := func(name, desc string, value func() int64) {
		if _, err := meter.Int64ObservableGauge(
			name,
			metric.WithDescription(desc),
			metric.WithUnit("{count}"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				s.mu.Lock()
				defer s.mu.Unlock()
				o.Observe(value(), metric.WithAttributes(attribute.String("name", s.name)))
				return nil
			})); err != nil {
			s.l.Error("failed to register metric",
				log.String("metric", name),
				log.ErrorField(err))
		}
	}
	register("racenav.broadcast.rcv", "Number of received messages",
		func() int64 { return s.numRcv })
	register("racenav.broadcast.snd", "Number of sent messages",
		func() int64 { return s.numSnd })
	register("racenav.broadcast.skip", "Number of skipped messages",
		func() int64 { return s.numSkip })
	register("racenav.broadcast.listener", "Number of listeners",
		func() int64 { return int64(len(s.listeners)) })
}

//nolint:cyclop // channel handling
func (s *server[T]) serve() {
	defer func() {
		s.mu.Lock()
		for _, listener := range s.listeners {
			close(listener)
		}
		s.listeners = nil
		s.mu.Unlock()
		close(s.done)
	}()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ch := <-s.addListener:
			s.mu.Lock()
			s.listeners = append(s.listeners, ch)
			s.mu.Unlock()
		case ch := <-s.removeListener:
			s.mu.Lock()
			for i, listener := range s.listeners {
				if listener == ch {
					s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
					close(listener)
					break
				}
			}
			s.mu.Unlock()
		case msg, ok := <-s.source:
			if !ok {
				s.l.Debug("source closed", log.String("name", s.name))
				return
			}
			s.send(msg)
		}
	}
}

func (s *server[T]) send(msg T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.numRcv++
	for _, listener := range s.listeners {
		select {
		case listener <- msg:
			s.numSnd++
		case <-time.After(s.sendTimeout):
			s.numSkip++
		}
	}
}
