package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoadDefaultsFromEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("ECODEVICES_ECODEVICES_HOST", "192.168.1.50")
	t.Setenv("ECODEVICES_LOG_LEVEL", "debug")

	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.50", cfg.EcoDevices.Host)
	assert.Equal(t, uint(80), cfg.EcoDevices.Port)
	assert.Equal(t, 5*time.Second, cfg.EcoDevices.ScanIntervalDuration())
	assert.Equal(t, 2*time.Second, cfg.EcoDevices.Timeout())
	assert.Equal(t, "auto", cfg.EcoDevices.Generation)
	assert.True(t, cfg.Teleinfo1.Enabled)
	assert.Equal(t, "base", cfg.Teleinfo1.Scheme)
	assert.False(t, cfg.Meter1.Enabled)
	assert.True(t, cfg.Meter1.ZeroGuard)
	assert.Equal(t, "ecodevices", cfg.MQTT.BaseTopic)
	assert.Equal(t, zapcore.DebugLevel, cfg.LogLevel)
	assert.Equal(t, uint(8080), cfg.Port)
}

func TestLoadFromFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
log_level: info
ecodevices:
  host: ecodevices.lan
  port: 8080
  username: admin
  password: secret
  scan_interval: 30
teleinfo1:
  enabled: true
  scheme: tempo
meter1:
  enabled: true
  unit: L
  total_unit: m³
  device_class: water
  divider_factor: 1
mqtt:
  base_topic: EcoDevices
`), 0o600))
	t.Setenv("CONFIG_FILE", file)

	cfg, err := Load(NewViper())
	require.NoError(t, err)
	assert.Equal(t, "ecodevices.lan", cfg.EcoDevices.Host)
	assert.Equal(t, uint(8080), cfg.EcoDevices.Port)
	assert.Equal(t, uint(30), cfg.EcoDevices.ScanInterval)
	assert.Equal(t, "tempo", cfg.Teleinfo1.Scheme)
	assert.Equal(t, "water", cfg.Meter1.DeviceClass)
	assert.Equal(t, 1.0, cfg.Meter1.DividerFactor)
	// topics are normalized
	assert.Equal(t, "ecodevices", cfg.MQTT.BaseTopic)
	assert.Equal(t, zapcore.InfoLevel, cfg.LogLevel)

	redacted := cfg.Redacted()
	assert.Equal(t, "*redacted*", redacted.EcoDevices.Password)
	assert.Equal(t, "secret", cfg.EcoDevices.Password)
}

func validConfig() Config {
	return Config{
		EcoDevices: EcoDevicesConfig{
			Host:          "192.168.1.50",
			Port:          80,
			ScanInterval:  5,
			TimeoutMillis: 2000,
			Generation:    "auto",
		},
		Teleinfo1: TeleinfoConfig{Enabled: true, Scheme: "hchp"},
		MQTT: MQTTConfig{
			BaseTopic:        "ecodevices",
			HADiscoveryTopic: "homeassistant",
		},
	}
}

func TestValidate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing host", func(c *Config) { c.EcoDevices.Host = "" }},
		{"zero scan interval", func(c *Config) { c.EcoDevices.ScanInterval = 0 }},
		{"short timeout", func(c *Config) { c.EcoDevices.TimeoutMillis = 10 }},
		{"bad generation", func(c *Config) { c.EcoDevices.Generation = "v3" }},
		{"bad scheme", func(c *Config) { c.Teleinfo2.Scheme = "ejp" }},
		{"negative divider", func(c *Config) { c.Meter2.DividerFactor = -1 }},
		{"bad topic", func(c *Config) { c.MQTT.BaseTopic = "eco/devices" }},
		{"bad discovery topic", func(c *Config) { c.MQTT.HADiscoveryTopic = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestCheckMQTTTopic(t *testing.T) {
	topic, err := CheckMQTTTopic("Home_Assistant")
	require.NoError(t, err)
	assert.Equal(t, "home_assistant", topic)

	_, err = CheckMQTTTopic("home-assistant")
	assert.Error(t, err)
}
