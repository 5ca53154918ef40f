package config

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const ENV_PREFIX = "ecodevices"

// NewViper returns a viper instance with defaults, env binding and, when
// CONFIG_FILE points to an existing file, the yaml config loaded.
func NewViper() *viper.Viper {
	// alias PORT => ECODEVICES_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("ECODEVICES_PORT", port)
	}

	v := viper.New()
	SetDefaults(v)

	// ecodevices.host => ECODEVICES_ECODEVICES_HOST
	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			v.SetConfigFile(cfgFile)

			err = v.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}
	return v
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "warn")
	v.SetDefault("ecodevices.host", "")
	v.SetDefault("ecodevices.port", 80)
	v.SetDefault("ecodevices.username", "")
	v.SetDefault("ecodevices.password", "")
	v.SetDefault("ecodevices.scan_interval", 5)
	v.SetDefault("ecodevices.timeout_millis", 2000)
	v.SetDefault("ecodevices.generation", "auto")
	v.SetDefault("teleinfo1.enabled", true)
	v.SetDefault("teleinfo1.scheme", "base")
	v.SetDefault("teleinfo2.enabled", false)
	v.SetDefault("teleinfo2.scheme", "base")
	for _, meter := range []string{"meter1", "meter2"} {
		v.SetDefault(meter+".enabled", false)
		v.SetDefault(meter+".unit", "")
		v.SetDefault(meter+".total_unit", "")
		v.SetDefault(meter+".device_class", "")
		v.SetDefault(meter+".divider_factor", 0)
		v.SetDefault(meter+".zero_guard", true)
	}
	v.SetDefault("mqtt.host", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.ha_discovery_enable", false)
	v.SetDefault("mqtt.base_topic", "ecodevices")
	v.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	v.SetDefault("port", 8080)
	v.SetDefault("http_log", false)
}

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config

	err := v.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = ParseLogLevel(v.GetString("log_level"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
