package calculator

import (
	"os"
	"strconv"
	"strings"

	"github.com/openfluke/webgpu/wgpu"
	"github.com/rs/zerolog"
)

const (
	// DefaultCapacity is the number of buffer slots a new Calculator starts with.
	DefaultCapacity = 3
	// DefaultGrowth is how many slots are added when the table is full.
	DefaultGrowth = 3
)

// Environment overrides, applied before any Option.
const (
	EnvCapacity = "LINALG_CAPACITY"
	EnvGrowth   = "LINALG_GROWTH"
	EnvAdapter  = "LINALG_ADAPTER"
	EnvPower    = "LINALG_POWER" // "high" or "low"
	EnvDebug    = "LINALG_DEBUG" // any value accepted by strconv.ParseBool
)

type config struct {
	capacity int
	growth   int
	adapter  string
	power    wgpu.PowerPreference
	log      zerolog.Logger
}

// Option configures New.
type Option func(*config)

// WithInitialCapacity sets the starting number of buffer slots. Values below 1 are ignored.
func WithInitialCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithGrowth sets how many slots are added when the table runs out. Values below 1 are ignored.
func WithGrowth(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.growth = n
		}
	}
}

// WithAdapter prefers the adapter whose name or vendor contains name.
func WithAdapter(name string) Option {
	return func(c *config) { c.adapter = name }
}

// WithPowerPreference sets the power preference used when no adapter matches by name.
func WithPowerPreference(p wgpu.PowerPreference) Option {
	return func(c *config) { c.power = p }
}

// WithLogger routes calculator and device logs to l.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.log = l }
}

func newConfig(opts []Option) config {
	cfg := config{
		capacity: DefaultCapacity,
		growth:   DefaultGrowth,
		power:    wgpu.PowerPreferenceHighPerformance,
		log:      zerolog.Nop(),
	}
	cfg.fromEnv(os.Getenv)
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c *config) fromEnv(getenv func(string) string) {
	if n, err := strconv.Atoi(getenv(EnvCapacity)); err == nil && n > 0 {
		c.capacity = n
	}
	if n, err := strconv.Atoi(getenv(EnvGrowth)); err == nil && n > 0 {
		c.growth = n
	}
	if v := getenv(EnvAdapter); v != "" {
		c.adapter = v
	}
	switch strings.ToLower(getenv(EnvPower)) {
	case "low":
		c.power = wgpu.PowerPreferenceLowPower
	case "high":
		c.power = wgpu.PowerPreferenceHighPerformance
	}
	if on, err := strconv.ParseBool(getenv(EnvDebug)); err == nil && on {
		c.log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(zerolog.DebugLevel).
			With().Timestamp().Str("component", "linalg").
			Logger()
	}
}
