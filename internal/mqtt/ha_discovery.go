package mqtt

import (
	"fmt"

	"github.com/berfenger/ecodevices2mqtt/internal/core/domain"
	"github.com/berfenger/ecodevices2mqtt/internal/core/events"
)

const (
	AVAILABILITY_MODE_ALL = "all"
)

type HADiscoveryConfig struct {
	Device              HADiscoveryDevice         `json:"device"`
	StateTopic          string                    `json:"state_topic,omitempty"`
	CommandTopic        string                    `json:"command_topic,omitempty"`
	JsonAttributesTopic string                    `json:"json_attributes_topic,omitempty"`
	StateClass          string                    `json:"state_class,omitempty"`
	DeviceClass         string                    `json:"device_class,omitempty"`
	UnitOfMeasurement   string                    `json:"unit_of_measurement,omitempty"`
	Availability        []HADiscoveryAvailability `json:"availability,omitempty"`
	AvailabilityMode    string                    `json:"availability_mode,omitempty"`
	EntityCategory      string                    `json:"entity_category,omitempty"`
	Name                string                    `json:"name"`
	UniqueId            string                    `json:"unique_id"`
	Platform            string                    `json:"platform"`
	EnabledByDefault    *bool                     `json:"enabled_by_default,omitempty"`
	PayloadOn           string                    `json:"payload_on,omitempty"`
	PayloadOff          string                    `json:"payload_off,omitempty"`
	PayloadPress        string                    `json:"payload_press,omitempty"`
	Icon                string                    `json:"icon,omitempty"`
	Options             []string                  `json:"options,omitempty"`
	SuggestedPrecision  *uint                     `json:"suggested_display_precision,omitempty"`
}

type HADiscoveryAvailability struct {
	Topic               string `json:"topic"`
	PayloadAvailable    string `json:"payload_available,omitempty"`
	PayloadNotAvailable string `json:"payload_not_available,omitempty"`
}

type HADiscoveryDevice struct {
	Id               []string    `json:"identifiers"`
	Connections      [][2]string `json:"connections,omitempty"`
	Manufacturer     string      `json:"manufacturer,omitempty"`
	Version          string      `json:"sw_version,omitempty"`
	Model            string      `json:"model,omitempty"`
	Name             string      `json:"name,omitempty"`
	ViaDevice        string      `json:"via_device,omitempty"`
	ConfigurationURL string      `json:"configuration_url,omitempty"`
}

func HADiscoverySensorTopic(prefix string, sensor domain.GenericSensor) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", prefix, sensor.SensorType, sensor.Device.Id, sensor.Id)
}

func HADiscoveryButtonTopic(prefix string, button domain.GenericButton) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", prefix, events.SENSOR_TYPE_BUTTON, button.Device.Id, button.Id)
}

func GenericSensorToHADiscoveryMessage(client *MQTTClient, sensor domain.GenericSensor) HADiscoveryConfig {
	var topic string
	if sensor.Id == events.SENSOR_ID_BRIDGE_STATE {
		topic = client.BridgeStateTopic()
	} else {
		topic = client.StateTopic(sensor.SensorType, sensor.Id)
	}
	disConfig := HADiscoveryConfig{
		Device:             device(sensor.Device),
		StateTopic:         topic,
		StateClass:         sensor.StateClass,
		DeviceClass:        sensor.DeviceClass,
		UnitOfMeasurement:  sensor.UnitOfMeasurement,
		Availability:       []HADiscoveryAvailability{bridgeAvailability(client)},
		EntityCategory:     sensor.EntityCategory,
		Name:               sensor.Name,
		UniqueId:           sensor.UniqueId,
		Icon:               sensor.Icon,
		EnabledByDefault:   sensor.EnabledByDefault,
		Options:            sensor.Options,
		SuggestedPrecision: sensor.SuggestedDecimals,
		Platform:           "mqtt",
	}
	if sensor.HasAvailability {
		disConfig.Availability = append(disConfig.Availability, HADiscoveryAvailability{
			Topic: client.AvailabilityTopic(sensor.SensorType, sensor.Id),
		})
		disConfig.AvailabilityMode = AVAILABILITY_MODE_ALL
	}
	if sensor.HasAttributes {
		disConfig.JsonAttributesTopic = client.AttributesTopic(sensor.SensorType, sensor.Id)
	}
	if sensor.Id == events.SENSOR_ID_BRIDGE_STATE {
		// the bridge entity reports its own connection
		disConfig.Availability = nil
		disConfig.PayloadOn = MQTT_PAYLOAD_ONLINE
		disConfig.PayloadOff = MQTT_PAYLOAD_OFFLINE
	} else if sensor.SensorType == events.SENSOR_TYPE_BINARY {
		disConfig.PayloadOn = MQTT_PAYLOAD_ON
		disConfig.PayloadOff = MQTT_PAYLOAD_OFF
	}
	return disConfig
}

func GenericButtonToHADiscoveryMessage(client *MQTTClient, button domain.GenericButton) HADiscoveryConfig {
	return HADiscoveryConfig{
		Device:         device(button.Device),
		CommandTopic:   client.ButtonCommandTopic(button.Id),
		Availability:   []HADiscoveryAvailability{bridgeAvailability(client)},
		EntityCategory: button.EntityCategory,
		Name:           button.Name,
		UniqueId:       button.UniqueId,
		Icon:           button.Icon,
		Platform:       "mqtt",
		PayloadPress:   MQTT_PAYLOAD_PRESS,
	}
}

func bridgeAvailability(client *MQTTClient) HADiscoveryAvailability {
	return HADiscoveryAvailability{
		Topic:               client.BridgeStateTopic(),
		PayloadAvailable:    MQTT_PAYLOAD_ONLINE,
		PayloadNotAvailable: MQTT_PAYLOAD_OFFLINE,
	}
}

func device(d domain.Device) HADiscoveryDevice {
	dev := HADiscoveryDevice{
		Id:               []string{d.Id},
		Manufacturer:     d.Manufacturer,
		Version:          d.Version,
		Model:            d.Model,
		Name:             d.Name,
		ViaDevice:        d.ViaDevice,
		ConfigurationURL: d.ConfigurationURL,
	}
	if d.MAC != "" {
		dev.Connections = [][2]string{{"mac", d.MAC}}
	}
	return dev
}
