package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

var topicRegexp = regexp.MustCompile("^[a-z0-9_]+$")

type Config struct {
	LogLevel   zapcore.Level
	EcoDevices EcoDevicesConfig `mapstructure:"ecodevices"`
	Teleinfo1  TeleinfoConfig   `mapstructure:"teleinfo1"`
	Teleinfo2  TeleinfoConfig   `mapstructure:"teleinfo2"`
	Meter1     MeterConfig      `mapstructure:"meter1"`
	Meter2     MeterConfig      `mapstructure:"meter2"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`

	Port    uint `mapstructure:"port"`
	HttpLog bool `mapstructure:"http_log"`
}

type EcoDevicesConfig struct {
	Host          string
	Port          uint
	Username      string
	Password      string
	ScanInterval  uint   `mapstructure:"scan_interval"`
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
	// auto, legacy or current
	Generation string
}

type TeleinfoConfig struct {
	Enabled bool
	// base, hchp or tempo
	Scheme string
}

type MeterConfig struct {
	Enabled       bool
	Unit          string
	TotalUnit     string  `mapstructure:"total_unit"`
	DeviceClass   string  `mapstructure:"device_class"`
	DividerFactor float64 `mapstructure:"divider_factor"`
	ZeroGuard     bool    `mapstructure:"zero_guard"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func (c EcoDevicesConfig) ScanIntervalDuration() time.Duration {
	return time.Duration(c.ScanInterval) * time.Second
}

func (c EcoDevicesConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

// Validate checks bounds and normalizes topics in place.
func (c *Config) Validate() error {
	if c.EcoDevices.Host == "" {
		return errors.New("config param ecodevices.host is required")
	}
	if c.EcoDevices.Port == 0 || c.EcoDevices.Port > 65535 {
		return errors.New("config param ecodevices.port should be in 1..65535")
	}
	if c.EcoDevices.ScanInterval < 1 {
		return errors.New("config param ecodevices.scan_interval should be >= 1")
	}
	if c.EcoDevices.TimeoutMillis < 100 {
		return errors.New("config param ecodevices.timeout_millis should be >= 100")
	}
	switch strings.ToLower(c.EcoDevices.Generation) {
	case "", "auto", "legacy", "current":
	default:
		return fmt.Errorf("config param ecodevices.generation should be one of auto, legacy, current (got %q)", c.EcoDevices.Generation)
	}
	for i, ti := range []TeleinfoConfig{c.Teleinfo1, c.Teleinfo2} {
		switch strings.ToLower(ti.Scheme) {
		case "", "base", "hchp", "tempo":
		default:
			return fmt.Errorf("config param teleinfo%d.scheme should be one of base, hchp, tempo (got %q)", i+1, ti.Scheme)
		}
	}
	for i, m := range []MeterConfig{c.Meter1, c.Meter2} {
		if m.DividerFactor < 0 {
			return fmt.Errorf("config param meter%d.divider_factor should be >= 0", i+1)
		}
	}

	// check and fix base topic
	baseTopic, err := CheckMQTTTopic(c.MQTT.BaseTopic)
	if err != nil {
		return errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	c.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := CheckMQTTTopic(c.MQTT.HADiscoveryTopic)
	if err != nil {
		return errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	c.MQTT.HADiscoveryTopic = hadBaseTopic
	return nil
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	c.EcoDevices.Password = "*redacted*"
	c.MQTT.Username = "*redacted*"
	c.MQTT.Password = "*redacted*"
	return c
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	lowerBaseTopic := strings.ToLower(baseTopic)
	if !topicRegexp.MatchString(lowerBaseTopic) {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

func ParseLogLevel(level string) zapcore.Level {
	switch level {
	case "trace", "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "error":
		return zapcore.ErrorLevel
	case "warn":
		return zapcore.WarnLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
