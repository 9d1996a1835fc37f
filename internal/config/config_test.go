package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5.0, cfg.Search.MaxDistance)
	assert.Equal(t, 100*time.Millisecond, cfg.Search.SATTimeout)
	assert.Equal(t, 2, cfg.Search.LowerBound)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, ".detectors.stim", cfg.Watch.OutputSuffix)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "negative distance",
			mutate:  func(c *Config) { c.Search.MaxDistance = -1 },
			wantErr: "max_distance",
		},
		{
			name:    "zero sat timeout",
			mutate:  func(c *Config) { c.Search.SATTimeout = 0 },
			wantErr: "sat_timeout",
		},
		{
			name:    "negative lower bound",
			mutate:  func(c *Config) { c.Search.LowerBound = -3 },
			wantErr: "lower_bound",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "zero shutdown timeout",
			mutate:  func(c *Config) { c.Server.ShutdownTimeout = 0 },
			wantErr: "shutdown timeout",
		},
		{
			name: "telemetry without service name",
			mutate: func(c *Config) {
				c.Observability.EnableTelemetry = true
				c.Observability.ServiceName = ""
			},
			wantErr: "service name",
		},
		{
			name:    "unknown protocol",
			mutate:  func(c *Config) { c.Observability.Protocol = "carrier-pigeon" },
			wantErr: "unsupported OTLP protocol",
		},
		{
			name:    "zero watch interval",
			mutate:  func(c *Config) { c.Watch.MinInterval = 0 },
			wantErr: "min_interval",
		},
		{
			name:    "empty suffix",
			mutate:  func(c *Config) { c.Watch.OutputSuffix = "" },
			wantErr: "output_suffix",
		},
		{
			name: "nats without subject",
			mutate: func(c *Config) {
				c.Events.NATSURL = "nats://127.0.0.1:4222"
				c.Events.Subject = ""
			},
			wantErr: "events.subject",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_CoverOptions(t *testing.T) {
	cfg := Default()
	assert.Len(t, cfg.CoverOptions(), 3)
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("250ms")))
	assert.Equal(t, 250*time.Millisecond, d.Duration())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "250ms", string(text))

	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
