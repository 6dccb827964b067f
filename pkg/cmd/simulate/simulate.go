// Package simulate runs a headless race of bots on a track definition.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/mpapenbr/racenav/log"
	"github.com/mpapenbr/racenav/pkg/config"
	"github.com/mpapenbr/racenav/pkg/eligibility"
	"github.com/mpapenbr/racenav/pkg/events"
	"github.com/mpapenbr/racenav/pkg/events/natsevents"
	"github.com/mpapenbr/racenav/pkg/progress"
	"github.com/mpapenbr/racenav/pkg/race"
	"github.com/mpapenbr/racenav/pkg/track"
	"github.com/mpapenbr/racenav/pkg/utils"
	"github.com/mpapenbr/racenav/pkg/utils/broadcast"
)

var ErrInterrupted = errors.New("simulation interrupted")

func NewSimulateCmd() *cobra.Command {
	cfg := config.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "simulate <track.yaml>",
		Short: "runs a race of bots on a track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return Run(ctx, args[0], cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&cfg.Mode, "mode", "",
		"race mode (race, elimination, practice), defaults to the track setting")
	cmd.Flags().IntVar(&cfg.Laps, "laps", 0,
		"number of laps, defaults to the track setting")
	cmd.Flags().DurationVar(&cfg.TimeStep, "time-step", cfg.TimeStep,
		"simulated time per tick")
	cmd.Flags().DurationVar(&cfg.Duration, "duration", cfg.Duration,
		"stop after this simulated time")
	cmd.Flags().BoolVar(&cfg.Realtime, "realtime", false,
		"pace the simulation with the wall clock")
	cmd.Flags().StringVar(&cfg.World, "world", "",
		"world for the eligibility policy, defaults to the track setting")
	cmd.Flags().StringVar(&cfg.Level, "level", "",
		"level for the eligibility policy, defaults to the track setting")
	cmd.Flags().StringVar(&cfg.Difficulty, "difficulty", "",
		"difficulty for the eligibility policy, defaults to the track setting")
	cmd.Flags().BoolVar(&cfg.Watch, "watch", false,
		"restart the race whenever the track file changes")
	cmd.Flags().StringVar(&cfg.Output, "output", cfg.Output,
		"output format (text, json)")
	cmd.Flags().StringVar(&config.NatsURL, "nats-url", "",
		"publish race events to this NATS server")
	cmd.Flags().StringVar(&config.NatsPrefix, "nats-prefix", natsevents.DefaultPrefix,
		"subject prefix for race events")
	cmd.Flags().StringVar(&config.StandingsBucket, "standings-bucket", natsevents.DefaultBucket,
		"jetstream key value bucket for the latest standings, empty disables it")
	cmd.Flags().StringVar(&config.WaitForServices, "wait-for-services", "15s",
		"Duration to wait for the NATS server to be ready")
	cmd.Flags().StringVar(&config.PolicyFile, "policy-file", "",
		"rego module replacing the built-in eligibility policy")
	cmd.Flags().StringVar(&config.PolicyData, "policy-data", "",
		"JSON data file for the eligibility policy")
	return cmd
}

// Run simulates the race on the track at path until it is finished, the
// configured duration has been simulated or ctx is done.
//
//nolint:funlen,cyclop // by design
func Run(ctx context.Context, path string, cfg config.Config, out io.Writer) error {
	l := log.Default().Named("simulate")
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	def, err := track.Parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	policy, err := newPolicy(ctx, def, cfg)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	tracks := track.NewCache(0, track.WithFilter(policy))
	tr, err := tracks.Get(ctx, abs)
	if err != nil {
		return err
	}

	var reload chan *track.Track
	if cfg.Watch {
		w, err := track.NewWatcher(abs, tracks)
		if err != nil {
			return err
		}
		reload = make(chan *track.Track, 1)
		go w.Run(ctx, func(t *track.Track, err error) {
			if err != nil {
				l.Warn("track reload failed", log.ErrorField(err))
				return
			}
			select {
			case reload <- t:
			default:
			}
		})
	}

	publisher, err := newPublisher(ctx)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer publisher.Close()
	}

	for {
		next, err := runRace(ctx, tr, cfg, publisher, reload, out)
		if err != nil || next == nil {
			return err
		}
		l.Info("restarting race on reloaded track", log.String("track", next.Definition.Name))
		tr = next
	}
}

func newPolicy(ctx context.Context, def *track.Definition, cfg config.Config) (*eligibility.Policy, error) {
	pc := eligibility.Context{
		World:      firstOf(cfg.World, def.World),
		Level:      firstOf(cfg.Level, def.Level),
		Difficulty: firstOf(cfg.Difficulty, def.Difficulty),
	}
	opts := []eligibility.Option{eligibility.WithContext(pc)}
	if config.PolicyFile != "" {
		module, err := os.ReadFile(config.PolicyFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, eligibility.WithModule(module))
	}
	if config.PolicyData != "" {
		data, err := os.ReadFile(config.PolicyData)
		if err != nil {
			return nil, err
		}
		opts = append(opts, eligibility.WithData(data))
	}
	return eligibility.New(ctx, opts...)
}

func firstOf(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

//nolint:nilnil // no publisher configured
func newPublisher(ctx context.Context) (*natsevents.Publisher, error) {
	if config.NatsURL == "" {
		return nil, nil
	}
	wait, err := time.ParseDuration(config.WaitForServices)
	if err != nil {
		return nil, fmt.Errorf("wait-for-services: %w", err)
	}
	if addr := utils.ExtractFromNatsURL(config.NatsURL); addr != "" {
		if err := utils.WaitForTCP(ctx, addr, wait); err != nil {
			return nil, err
		}
	}
	nc, err := nats.Connect(config.NatsURL, nats.Name("racenav simulate"))
	if err != nil {
		return nil, err
	}
	opts := []natsevents.Option{natsevents.WithPrefix(config.NatsPrefix)}
	if config.StandingsBucket == "" {
		opts = append(opts, natsevents.WithoutStandingsBucket())
	} else {
		opts = append(opts, natsevents.WithBucket(config.StandingsBucket, natsevents.DefaultTTL))
	}
	p, err := natsevents.New(ctx, nc, opts...)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return p, nil
}

// runRace returns the reloaded track if the race was interrupted by a
// track change.
//
//nolint:funlen,cyclop,gocognit // by design
func runRace(
	ctx context.Context,
	tr *track.Track,
	cfg config.Config,
	publisher *natsevents.Publisher,
	reload <-chan *track.Track,
	out io.Writer,
) (*track.Track, error) {
	src := make(chan *events.Message, 64)
	bc := broadcast.New("simulate", src,
		broadcast.WithBuffer[*events.Message](1024),
		broadcast.WithSendTimeout[*events.Message](time.Second))
	sub := bc.Subscribe()

	sink := events.Multi{events.NewLogger(nil), events.NewChannel(src)}
	if publisher != nil {
		sink = append(sink, publisher)
	}
	opts := []race.Option{race.WithSink(sink)}
	if cfg.Mode != "" {
		mode, err := progress.ParseMode(cfg.Mode)
		if err != nil {
			bc.Close()
			return nil, err
		}
		opts = append(opts, race.WithMode(mode))
	}
	if cfg.Laps > 0 {
		opts = append(opts, race.WithLaps(cfg.Laps))
	}
	s, err := tr.NewSession(opts...)
	if err != nil {
		bc.Close()
		return nil, err
	}

	p := newPrinter(out, cfg.Output, s)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for m := range sub {
			p.message(m)
		}
	}()
	finish := func() {
		close(src)
		<-printed
		bc.Close()
		p.final(s)
	}

	if err := s.Start(ctx); err != nil {
		finish()
		return nil, err
	}
	dt := cfg.TimeStep.Seconds()
	var pace <-chan time.Time
	if cfg.Realtime {
		ticker := time.NewTicker(cfg.TimeStep)
		defer ticker.Stop()
		pace = ticker.C
	}
	for !s.Finished() && s.Clock() < cfg.Duration.Seconds() {
		select {
		case <-ctx.Done():
			finish()
			return nil, ErrInterrupted
		case next := <-reload:
			finish()
			return next, nil
		default:
		}
		if pace != nil {
			select {
			case <-ctx.Done():
				finish()
				return nil, ErrInterrupted
			case <-pace:
			}
		}
		if err := s.Tick(ctx, dt); err != nil {
			finish()
			return nil, err
		}
	}
	finish()
	if !cfg.Watch {
		return nil, nil
	}
	select {
	case <-ctx.Done():
		return nil, nil
	case next := <-reload:
		return next, nil
	}
}
