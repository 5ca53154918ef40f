package util

import (
	"github.com/berfenger/ecodevices2mqtt/internal/config"
	"github.com/berfenger/ecodevices2mqtt/pkg/ecodevices"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		EcoDevices: config.EcoDevicesConfig{
			Host:          "192.168.1.50",
			Port:          80,
			ScanInterval:  5,
			TimeoutMillis: 2000,
			Generation:    "auto",
		},
		Teleinfo1: config.TeleinfoConfig{
			Enabled: true,
			Scheme:  "hchp",
		},
		Teleinfo2: config.TeleinfoConfig{
			Enabled: true,
			Scheme:  "base",
		},
		Meter1: config.MeterConfig{
			Enabled:       true,
			Unit:          "L",
			TotalUnit:     "m³",
			DeviceClass:   "water",
			DividerFactor: 1000,
			ZeroGuard:     true,
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "ecodevices",
			HADiscoveryTopic: "homeassistant",
		},
		Port: 8080,
	}
}

// TestClientFactory returns a client factory always handing out client.
func TestClientFactory(client ecodevices.Client) func(config.EcoDevicesConfig, *zap.Logger, *ecodevices.Instrument) (ecodevices.Client, error) {
	return func(config.EcoDevicesConfig, *zap.Logger, *ecodevices.Instrument) (ecodevices.Client, error) {
		return client, nil
	}
}
