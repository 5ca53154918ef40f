package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/berfenger/ecodevices2mqtt/internal/core/coordinator"
	. "github.com/berfenger/ecodevices2mqtt/internal/core/domain"
	"github.com/berfenger/ecodevices2mqtt/internal/core/metric"
	"github.com/berfenger/ecodevices2mqtt/pkg/ecodevices"
	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE = "bridge"
	SENSOR_ID_POLL_STATUS  = "poll_status"
	SENSOR_ID_LAST_POLL    = "last_poll"
	BUTTON_ID_REFRESH      = "refresh"

	SENSOR_TYPE_SENSOR = metric.COMPONENT_SENSOR
	SENSOR_TYPE_BINARY = metric.COMPONENT_BINARY_SENSOR
	SENSOR_TYPE_BUTTON = "button"

	DEVICE_CLASS_CONNECTIVITY = "connectivity"
	DEVICE_CLASS_TIMESTAMP    = "timestamp"
	ENTITY_CLASS_DIAGNOSTIC   = "diagnostic"

	MANUFACTURER_GCE = "GCE Electronics"
	MODEL_ECODEVICES = "Eco-Devices"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("ecodevices_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ecodevices2mqtt",
		Model:        "ecodevices2mqtt",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Eco-Devices bridge %s", md5HashShort(baseTopic)),
	}
}

// GatewayDevice describes the polled gateway. It is keyed by its MAC address
// when the firmware reports one.
func GatewayDevice(identity ecodevices.DeviceIdentity, via Device) Device {
	return Device{
		Id:               fmt.Sprintf("ecodevices_%s", identity.Id()),
		Manufacturer:     MANUFACTURER_GCE,
		Model:            MODEL_ECODEVICES,
		Version:          identity.Version,
		Name:             fmt.Sprintf("Eco-Devices %s:%d", identity.Host, identity.Port),
		ViaDevice:        via.Id,
		ConfigurationURL: identity.ConfigurationURL(),
		MAC:              identity.MACAddress,
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

// MetricSensors maps every metric of the catalog to an entity of the gateway.
func MetricSensors(gatewayDevice Device, catalog *metric.Catalog) []GenericSensor {
	var sensors []GenericSensor
	for _, spec := range catalog.Specs() {
		sensor := GenericSensor{
			Device:            gatewayDevice,
			Id:                spec.Id,
			SensorType:        spec.Component(),
			Name:              spec.Name,
			UniqueId:          uniqueId(gatewayDevice.Id, spec.Id),
			UnitOfMeasurement: spec.Unit,
			StateClass:        spec.StateClass,
			DeviceClass:       spec.DeviceClass,
			Icon:              spec.Icon,
			Options:           spec.Options(),
			HasAvailability:   true,
			HasAttributes:     len(spec.Attributes) > 0 || spec.Kind == metric.KindEnumerated,
		}
		if spec.Decimals > 0 {
			sensor.SuggestedDecimals = optionalUint(spec.Decimals)
		}
		sensors = append(sensors, sensor)
	}
	return sensors
}

func GatewayDiagnosticSensors(gatewayDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Poll status
	sensors = append(sensors, GenericSensor{
		Device:         gatewayDevice,
		Id:             SENSOR_ID_POLL_STATUS,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Poll status",
		DeviceClass:    metric.DEVICE_CLASS_ENUM,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		Icon:           "mdi:lan-connect",
		Options: []string{
			coordinator.StatusUnpolled.String(),
			coordinator.StatusFresh.String(),
			coordinator.StatusStale.String(),
			coordinator.StatusFailed.String(),
		},
		HasAttributes: true,
		UniqueId:      uniqueId(gatewayDevice.Id, SENSOR_ID_POLL_STATUS),
	})

	// Last poll
	sensors = append(sensors, GenericSensor{
		Device:           gatewayDevice,
		Id:               SENSOR_ID_LAST_POLL,
		SensorType:       SENSOR_TYPE_SENSOR,
		Name:             "Last poll",
		DeviceClass:      DEVICE_CLASS_TIMESTAMP,
		EntityCategory:   ENTITY_CLASS_DIAGNOSTIC,
		EnabledByDefault: optionalBool(false),
		UniqueId:         uniqueId(gatewayDevice.Id, SENSOR_ID_LAST_POLL),
	})

	return sensors
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Bridge connection
	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

func GatewayButtons(gatewayDevice Device) []GenericButton {
	return []GenericButton{
		{
			Device:         gatewayDevice,
			Id:             BUTTON_ID_REFRESH,
			Name:           "Refresh",
			Icon:           "mdi:refresh",
			EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
			UniqueId:       uniqueId(gatewayDevice.Id, BUTTON_ID_REFRESH),
		},
	}
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}

func optionalUint(value uint) *uint {
	return &value
}
