package config

import "time"

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	LogLevel          string // sets the log level (zap log level values)
	LogFormat         string // text vs json
	LogFilter         string // zapfilter rules, for example "*:info pursuit:debug"
	EnableTelemetry   bool   // enable telemetry
	TelemetryEndpoint string // endpoint for telemetry (otlp grpc)
	TelemetryOutput   string // otlp or stdout
	NatsURL           string // NATS server url, events are published there if set
	NatsPrefix        string // subject prefix for race events
	StandingsBucket   string // jetstream KV bucket holding the latest standings
	WaitForServices   string // duration to wait for other services to be ready
	PolicyFile        string // rego module replacing the embedded eligibility policy
	PolicyData        string // JSON data for the eligibility policy
)

// Config holds the simulation parameters.
type Config struct {
	// Mode overrides the mode of the track definition if set.
	Mode string
	// Laps overrides the laps of the track definition if > 0.
	Laps int
	// TimeStep is the simulated time per tick.
	TimeStep time.Duration
	// Duration limits the simulated time.
	Duration time.Duration
	// Realtime paces the simulation with the wall clock.
	Realtime bool
	// World, Level and Difficulty form the eligibility context.
	World      string
	Level      string
	Difficulty string
	// Watch reloads the track file and restarts the race on changes.
	Watch bool
	// Output is text or json.
	Output string
}

func DefaultConfig() Config {
	return Config{
		TimeStep: 50 * time.Millisecond,
		Duration: 30 * time.Minute,
		Output:   "text",
	}
}
