package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fluxorio/replyloop/pkg/observability/tracing"
	"github.com/fluxorio/replyloop/pkg/work"
)

// EnvPrefix prefixes every environment override (e.g., REPLYLOOP_WORKERS).
const EnvPrefix = "REPLYLOOP"

// Dispatcher configures the dispatch loop, its worker pool and the caller
// simulation. Durations in YAML use time.ParseDuration syntax.
type Dispatcher struct {
	Workers         int           `yaml:"workers" json:"workers"`
	InboundCapacity int           `yaml:"inbound_capacity" json:"inbound_capacity"`
	Callers         int           `yaml:"callers" json:"callers"`
	PayloadUnit     time.Duration `yaml:"payload_unit" json:"payload_unit"`
	MaxPayload      uint64        `yaml:"max_payload" json:"max_payload"`
	MaxStartDelay   time.Duration `yaml:"max_start_delay" json:"max_start_delay"`

	Metrics struct {
		Addr string `yaml:"addr" json:"addr"`
	} `yaml:"metrics" json:"metrics"`

	Tracing tracing.Config `yaml:"tracing" json:"tracing"`

	Log struct {
		Level       string `yaml:"level" json:"level"`
		Development bool   `yaml:"development" json:"development"`
	} `yaml:"log" json:"log"`
}

// Default returns four workers serving four callers, payloads of one to
// nine seconds and start delays under five seconds.
func Default() Dispatcher {
	var cfg Dispatcher
	cfg.Workers = 4
	cfg.Callers = 4
	cfg.PayloadUnit = work.DefaultUnit
	cfg.MaxPayload = 10
	cfg.MaxStartDelay = 5 * time.Second
	cfg.Tracing.Exporter = tracing.ExporterNone
	cfg.Tracing.ServiceName = "replyloop"
	cfg.Log.Level = "info"
	return cfg
}

// Normalize fills derived defaults. The inbound queue holds one item per
// caller unless configured otherwise.
func (c *Dispatcher) Normalize() {
	if c.InboundCapacity <= 0 {
		c.InboundCapacity = c.Callers
	}
	if c.PayloadUnit <= 0 {
		c.PayloadUnit = work.DefaultUnit
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks field ranges and enumerations.
func (c *Dispatcher) Validate() error {
	exporters := make([]interface{}, 0, 4)
	exporters = append(exporters, "")
	for _, name := range tracing.Exporters() {
		exporters = append(exporters, name)
	}

	return Validate(c,
		RangeValidator("Workers", 1, 1024),
		RangeValidator("Callers", 1, 100000),
		RangeValidator("InboundCapacity", 1, 1000000),
		RangeValidator("MaxPayload", 1, 1<<20),
		RequiredFields("Log.Level"),
		OneOfValidator("Log.Level", "debug", "info", "warn", "error"),
		OneOfValidator("Tracing.Exporter", exporters...),
		ValidatorFunc(func(interface{}) error {
			if c.PayloadUnit <= 0 {
				return errors.New("field PayloadUnit must be positive")
			}
			if c.MaxStartDelay < 0 {
				return errors.New("field MaxStartDelay must not be negative")
			}
			return nil
		}),
	)
}

// LoadDispatcher starts from Default, applies the file at path (skipped
// when empty), REPLYLOOP_* environment overrides and then overrides in
// order, and finally normalizes and validates the result.
func LoadDispatcher(path string, overrides ...func(*Dispatcher)) (Dispatcher, error) {
	cfg := Default()
	if path != "" {
		if err := LoadWithEnv(path, EnvPrefix, &cfg); err != nil {
			return cfg, err
		}
	} else if err := ApplyEnvOverrides(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to apply env overrides: %w", err)
	}
	for _, override := range overrides {
		override(&cfg)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
