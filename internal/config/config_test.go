package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "health:events", cfg.Streams.Events)
	assert.Equal(t, "health:alerts", cfg.Streams.Alerts)
	assert.Equal(t, "alerts", cfg.AlertChannel)
	assert.Equal(t, 120.0, cfg.Thresholds.HeartRateHigh)
	assert.Equal(t, 160.0, cfg.Thresholds.BPSystolicHigh)
	assert.Equal(t, int64(50), cfg.Aggregator.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Aggregator.BlockTimeout)
	assert.Equal(t, 48, cfg.Aggregator.RetentionHours)
	assert.Equal(t, "$", cfg.Aggregator.StartID)
	assert.Equal(t, 200, cfg.RecentAlertsCapacity)
	assert.True(t, cfg.Sensor.Enabled)
	assert.Equal(t, 5, cfg.Sensor.Subjects)
	assert.False(t, cfg.Archive.Enabled)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("STREAM_EVENTS", "vitals:events")
	t.Setenv("ALERT_HR_THRESHOLD", "110.5")
	t.Setenv("AGG_BATCH_SIZE", "100")
	t.Setenv("AGG_BLOCK_MS", "500")
	t.Setenv("SENSOR_ENABLED", "false")
	t.Setenv("RECENT_ALERTS_CAPACITY", "50")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, "vitals:events", cfg.Streams.Events)
	assert.Equal(t, 110.5, cfg.Thresholds.HeartRateHigh)
	assert.Equal(t, int64(100), cfg.Aggregator.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Aggregator.BlockTimeout)
	assert.False(t, cfg.Sensor.Enabled)
	assert.Equal(t, 50, cfg.RecentAlertsCapacity)
}

func TestLoad_InvalidEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("AGG_BATCH_SIZE", "not-a-number")
	t.Setenv("SENSOR_ENABLED", "maybe")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(50), cfg.Aggregator.BatchSize)
	assert.True(t, cfg.Sensor.Enabled)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty redis addr", func(c *Config) { c.Redis.Addr = "" }},
		{"empty event stream", func(c *Config) { c.Streams.Events = "" }},
		{"empty alert channel", func(c *Config) { c.AlertChannel = "" }},
		{"zero hr threshold", func(c *Config) { c.Thresholds.HeartRateHigh = 0 }},
		{"negative bp threshold", func(c *Config) { c.Thresholds.BPSystolicHigh = -1 }},
		{"zero batch size", func(c *Config) { c.Aggregator.BatchSize = 0 }},
		{"zero block timeout", func(c *Config) { c.Aggregator.BlockTimeout = 0 }},
		{"zero retention", func(c *Config) { c.Aggregator.RetentionHours = 0 }},
		{"zero ring capacity", func(c *Config) { c.RecentAlertsCapacity = 0 }},
		{"sensor enabled without subjects", func(c *Config) {
			c.Sensor.Enabled = true
			c.Sensor.Subjects = 0
		}},
		{"archive enabled without db", func(c *Config) {
			c.Archive.Enabled = true
			c.Database.Host = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRetention(t *testing.T) {
	cfg := &Config{}
	cfg.Aggregator.RetentionHours = 48
	assert.Equal(t, 48*time.Hour, cfg.Retention())
}
