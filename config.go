package kfrp

import (
	"fmt"
	"os"
	"time"

	"github.com/birdayz/kfrp/kevents"
	"github.com/birdayz/kfrp/kserde"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"gopkg.in/yaml.v3"
)

// DefaultSnapshotRetention is the number of frames the debugger keeps.
const DefaultSnapshotRetention = 1024

type config struct {
	timeTravel        bool
	debug             bool
	lazy              bool
	eventLogger       kevents.Logger
	clockInterval     time.Duration
	log               logr.Logger
	registerer        prometheus.Registerer
	tracerProvider    trace.TracerProvider
	snapshotRetention int
	cycleDetection    bool
	registry          *kserde.Registry
}

func defaultConfig() config {
	return config{
		lazy:              true,
		eventLogger:       kevents.NoOp{},
		log:               logr.Discard(),
		tracerProvider:    noop.NewTracerProvider(),
		snapshotRetention: DefaultSnapshotRetention,
		cycleDetection:    true,
	}
}

// Option configures a Timeline.
type Option func(*config)

// WithTimeTravel keeps a snapshot per frame and enables the debugger.
// The graph switches to the persistent implementation.
var WithTimeTravel = func(enabled bool) Option {
	return func(c *config) {
		c.timeTravel = enabled
	}
}

// WithDebug logs propagation decisions at V(1).
var WithDebug = func(enabled bool) Option {
	return func(c *config) {
		c.debug = enabled
	}
}

// WithLazy only marks unobserved nodes dirty instead of recomputing them.
// Enabled by default.
var WithLazy = func(enabled bool) Option {
	return func(c *config) {
		c.lazy = enabled
	}
}

var WithEventLogger = func(l kevents.Logger) Option {
	return func(c *config) {
		c.eventLogger = l
	}
}

// WithClock advances logical time from a wall clock ticker running in the
// timeline scope. Zero disables the ticker; time then only moves via Tick.
var WithClock = func(interval time.Duration) Option {
	return func(c *config) {
		c.clockInterval = interval
	}
}

var WithLogr = func(log logr.Logger) Option {
	return func(c *config) {
		c.log = log
	}
}

// WithMetrics registers the timeline collectors.
var WithMetrics = func(reg prometheus.Registerer) Option {
	return func(c *config) {
		c.registerer = reg
	}
}

var WithTracer = func(tp trace.TracerProvider) Option {
	return func(c *config) {
		c.tracerProvider = tp
	}
}

// WithSnapshotRetention bounds the number of frames the debugger keeps.
// Older frames are evicted and cannot be restored.
var WithSnapshotRetention = func(frames int) Option {
	return func(c *config) {
		c.snapshotRetention = frames
	}
}

// WithCycleDetection rejects edges that would close a dependency cycle.
// Enabled by default.
var WithCycleDetection = func(enabled bool) Option {
	return func(c *config) {
		c.cycleDetection = enabled
	}
}

// WithRegistry sets the codecs used to log external values.
var WithRegistry = func(r *kserde.Registry) Option {
	return func(c *config) {
		c.registry = r
	}
}

// Config is the file form of the timeline options.
type Config struct {
	TimeTravel        bool           `yaml:"timeTravel"`
	Debug             bool           `yaml:"debug"`
	Lazy              *bool          `yaml:"lazy"`
	ClockInterval     time.Duration  `yaml:"clockInterval"`
	SnapshotRetention int            `yaml:"snapshotRetention"`
	CycleDetection    *bool          `yaml:"cycleDetection"`
	EventLog          kevents.Config `yaml:"eventLog"`
}

func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.SnapshotRetention < 0 {
		return Config{}, fmt.Errorf("snapshotRetention must be non-negative, got %d", cfg.SnapshotRetention)
	}
	return cfg, nil
}

func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// Options converts the file settings. The event log is opened separately
// (see kevents.Config.Open) and passed with WithEventLogger.
func (c Config) Options() []Option {
	opts := []Option{
		WithTimeTravel(c.TimeTravel),
		WithDebug(c.Debug),
		WithClock(c.ClockInterval),
	}
	if c.Lazy != nil {
		opts = append(opts, WithLazy(*c.Lazy))
	}
	if c.SnapshotRetention > 0 {
		opts = append(opts, WithSnapshotRetention(c.SnapshotRetention))
	}
	if c.CycleDetection != nil {
		opts = append(opts, WithCycleDetection(*c.CycleDetection))
	}
	return opts
}
