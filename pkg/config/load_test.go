package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "1", cfg.I2C.Bus)
	assert.Equal(t, 0x48, cfg.I2C.Address)
	assert.Equal(t, 860, cfg.SampleRate)
	assert.Equal(t, 20*time.Millisecond, cfg.Period())
	assert.Equal(t, "round", cfg.TimestampReference)
	assert.Len(t, cfg.EnabledChannels(), 4)
	assert.Equal(t, "pico/pico1/status", cfg.Control.StatusTopicOrDefault())
	assert.Equal(t, time.Second, cfg.Control.StatusInterval())
}

func TestConvWaitFromSampleRate(t *testing.T) {
	cfg := DefaultConfig()
	// 860 SPS: 1.163ms per conversion plus an eighth
	assert.InDelta(t, float64(1308*time.Microsecond), float64(cfg.ConvWait()), float64(time.Microsecond))

	cfg.SampleRate = 128
	assert.InDelta(t, float64(8789*time.Microsecond), float64(cfg.ConvWait()), float64(time.Microsecond))

	cfg.ConvWaitUs = 1300
	assert.Equal(t, 1300*time.Microsecond, cfg.ConvWait())
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sampler.yaml")
	yamlContent := `
i2c:
  bus: "0"
  address: 73
pga: 2.048
sample_rate: 475
conv_wait_us: 2500
period_us: 40000
timestamp_reference: process
on_emit_error: continue
sensor_type: simulation
channels:
  - channel: 2
    name: a401
    enabled: true
  - channel: 0
    name: vref
    enabled: true
    calibration_scale: 2.0
outputs:
  - type: csv
    path: /tmp/force.csv
  - type: serial
    serial:
      port: /dev/ttyACM0
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	cfg, err := Load([]string{"-config", path})
	require.NoError(t, err)
	assert.Equal(t, "0", cfg.I2C.Bus)
	assert.Equal(t, 73, cfg.I2C.Address)
	assert.Equal(t, 2.048, cfg.PGA)
	assert.Equal(t, 2500*time.Microsecond, cfg.ConvWait())
	assert.Equal(t, 40*time.Millisecond, cfg.Period())
	assert.Equal(t, "process", cfg.TimestampReference)
	assert.Equal(t, "continue", cfg.OnEmitError)
	require.Len(t, cfg.Channels, 2)
	assert.Equal(t, 2, cfg.Channels[0].Channel)
	assert.Nil(t, cfg.Channels[0].CalibrationScale)
	assert.Equal(t, 1.0, cfg.Channels[0].Scale(), "missing scale defaults to 1")
	assert.Equal(t, 2.0, cfg.Channels[1].Scale())
	require.Len(t, cfg.Outputs, 2)
	assert.Equal(t, 115200, cfg.Outputs[1].Serial.BaudRate)
}

func TestLoadJSONFileWithFlagOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sampler.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sample_rate": 250, "period_us": 30000}`), 0o644))

	cfg, err := Load([]string{
		"-config", path,
		"-sample-rate", "860",
		"-i2c-address", "0x49",
		"-channels", "3,1",
		"-channel-names", "3=vs,1=a301",
		"-channel-scales", "1=0.5",
		"-outputs", "console,mqtt,csv",
		"-output-paths", "csv=/sd/out.csv",
		"-mqtt-server", "tcp://broker:1883",
		"-mqtt-topic", "ads1115/%d",
		"-control",
		"-device-id", "pico7",
		"-status-interval-ms", "30000",
	})
	require.NoError(t, err)
	assert.Equal(t, 860, cfg.SampleRate)
	assert.Equal(t, 30*time.Millisecond, cfg.Period())
	assert.Equal(t, 0x49, cfg.I2C.Address)

	require.Len(t, cfg.Channels, 2)
	assert.Equal(t, 3, cfg.Channels[0].Channel)
	assert.Equal(t, "vs", cfg.Channels[0].Name)
	assert.Equal(t, 1, cfg.Channels[1].Channel)
	assert.Equal(t, 0.5, cfg.Channels[1].Scale())

	require.Len(t, cfg.Outputs, 3)
	assert.Equal(t, "tcp://broker:1883", cfg.Outputs[1].MQTT.Server)
	assert.Equal(t, "ads1115/%d", cfg.Outputs[1].MQTT.StateTopic)
	assert.Equal(t, "/sd/out.csv", cfg.Outputs[2].Path)

	assert.True(t, cfg.Control.Enabled)
	assert.Equal(t, "tcp://broker:1883", cfg.Control.MQTT.Server)
	assert.Equal(t, "pico/pico7/status", cfg.Control.StatusTopicOrDefault())
	assert.Equal(t, 30*time.Second, cfg.Control.StatusInterval())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load([]string{"-config", filepath.Join(t.TempDir(), "nope.json")})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"bad pga", func(c *Config) { c.PGA = 3.3 }, false},
		{"bad rate", func(c *Config) { c.SampleRate = 100 }, false},
		{"zero period", func(c *Config) { c.PeriodUs = 0 }, false},
		{"period below conv wait", func(c *Config) { c.ConvWaitUs = 5000; c.PeriodUs = 4000 }, false},
		{"degraded budget is allowed", func(c *Config) { c.ConvWaitUs = 6000; c.PeriodUs = 20000 }, true},
		{"bad reference", func(c *Config) { c.TimestampReference = "wall" }, false},
		{"bad emit policy", func(c *Config) { c.OnEmitError = "retry" }, false},
		{"bad sensor", func(c *Config) { c.SensorType = "i2c" }, false},
		{"channel out of range", func(c *Config) { c.Channels[0].Channel = 4 }, false},
		{"duplicate channel", func(c *Config) { c.Channels[1].Channel = 0 }, false},
		{"none enabled", func(c *Config) {
			for i := range c.Channels {
				c.Channels[i].Enabled = false
			}
		}, false},
		{"csv without path", func(c *Config) { c.Outputs = []OutputConfig{{Type: "csv"}} }, false},
		{"serial without port", func(c *Config) { c.Outputs = []OutputConfig{{Type: "serial"}} }, false},
		{"mqtt without server", func(c *Config) { c.Outputs = []OutputConfig{{Type: "mqtt"}} }, false},
		{"unknown output", func(c *Config) { c.Outputs = []OutputConfig{{Type: "sd"}} }, false},
		{"control without server", func(c *Config) { c.Control.Enabled = true }, false},
		{"negative status interval", func(c *Config) { c.Control.StatusIntervalMs = -1 }, false},
		{"heartbeat disabled", func(c *Config) { c.Control.StatusIntervalMs = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLoadKeepsExplicitZeroScale(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sampler.yaml")
	yamlContent := `
channels:
  - channel: 0
    name: muted
    enabled: true
    calibration_scale: 0
    calibration_offset: 0.25
  - channel: 1
    enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	cfg, err := Load([]string{"-config", path})
	require.NoError(t, err)
	require.NotNil(t, cfg.Channels[0].CalibrationScale)
	assert.Zero(t, cfg.Channels[0].Scale())
	assert.Equal(t, 0.25, cfg.Channels[0].CalibrationOffset)
	assert.Equal(t, 1.0, cfg.Channels[1].Scale())

	cfg, err = Load([]string{"-channel-scales", "2=0"})
	require.NoError(t, err)
	require.NotNil(t, cfg.Channels[2].CalibrationScale)
	assert.Zero(t, cfg.Channels[2].Scale())
}
