// Package config provides configuration loading for detectd.
//
// Configuration is layered: hardcoded defaults, then an optional YAML file,
// then DETECTD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/detectd/pkg/cover"
)

// Config holds the complete detectd configuration.
type Config struct {
	Search        SearchConfig        `koanf:"search"`
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	Logging       LoggingConfig       `koanf:"logging"`
	Watch         WatchConfig         `koanf:"watch"`
	Events        EventsConfig        `koanf:"events"`
}

// SearchConfig tunes the cover search.
type SearchConfig struct {
	MaxDistance float64       `koanf:"max_distance"`
	SATTimeout  time.Duration `koanf:"sat_timeout"`
	LowerBound  int           `koanf:"lower_bound"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"http_host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	Endpoint        string `koanf:"endpoint"`
	Protocol        string `koanf:"protocol"`
	Insecure        bool   `koanf:"insecure"`
}

// LoggingConfig selects the log level and encoding.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// WatchConfig holds file watcher configuration.
type WatchConfig struct {
	MinInterval  time.Duration `koanf:"min_interval"`
	OutputSuffix string        `koanf:"output_suffix"`
}

// EventsConfig configures NATS publishing of annotation events. An empty
// NATSURL disables publishing.
type EventsConfig struct {
	NATSURL string `koanf:"nats_url"`
	Subject string `koanf:"subject"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Search: SearchConfig{
			MaxDistance: cover.DefaultMaxDistance,
			SATTimeout:  cover.DefaultTimeout,
			LowerBound:  cover.DefaultLowerBound,
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            9191,
			ShutdownTimeout: 10 * time.Second,
		},
		Observability: ObservabilityConfig{
			EnableTelemetry: false,
			ServiceName:     "detectd",
			Endpoint:        "localhost:4317",
			Protocol:        "grpc",
			Insecure:        true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Watch: WatchConfig{
			MinInterval:  500 * time.Millisecond,
			OutputSuffix: ".detectors.stim",
		},
		Events: EventsConfig{
			Subject: "detectd.annotations",
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Search.MaxDistance < 0 {
		return fmt.Errorf("search.max_distance cannot be negative: %v", c.Search.MaxDistance)
	}
	if c.Search.SATTimeout <= 0 {
		return errors.New("search.sat_timeout must be positive")
	}
	if c.Search.LowerBound < 0 {
		return fmt.Errorf("search.lower_bound cannot be negative: %d", c.Search.LowerBound)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	switch c.Observability.Protocol {
	case "grpc", "http/protobuf":
	default:
		return fmt.Errorf("unsupported OTLP protocol %q", c.Observability.Protocol)
	}

	if c.Watch.MinInterval <= 0 {
		return errors.New("watch.min_interval must be positive")
	}
	if c.Watch.OutputSuffix == "" {
		return errors.New("watch.output_suffix is required")
	}
	if c.Events.NATSURL != "" && c.Events.Subject == "" {
		return errors.New("events.subject is required when events.nats_url is set")
	}
	return nil
}

// CoverOptions translates the search section into cover search options.
func (c *Config) CoverOptions() []cover.Option {
	return []cover.Option{
		cover.WithMaxDistance(c.Search.MaxDistance),
		cover.WithTimeout(c.Search.SATTimeout),
		cover.WithLowerBound(c.Search.LowerBound),
	}
}
