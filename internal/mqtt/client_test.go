package mqtt

import (
	"encoding/json"
	"testing"

	"github.com/berfenger/ecodevices2mqtt/internal/core/domain"
	"github.com/berfenger/ecodevices2mqtt/internal/core/events"
	"github.com/berfenger/ecodevices2mqtt/internal/util"
	"github.com/berfenger/ecodevices2mqtt/pkg/ecodevices"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestButtonCommandParse(t *testing.T) {

	assert := assert.New(t)

	r := buttonCommandExtractor("loremTopic")
	cmd, err := parseButtonCommand(r, "loremTopic/button/refresh/press", []byte("PRESS"))

	assert.NoError(err)
	assert.Equal("refresh", cmd.DeviceId, "button extract")
	assert.Equal(COMMAND_BUTTON, cmd.Command)
}

func TestButtonCommandParseFail(t *testing.T) {

	assert := assert.New(t)

	r := buttonCommandExtractor("loremTopic")

	_, err := parseButtonCommand(r, "loremTopic/sensor/refresh/state", []byte("PRESS"))
	assert.Error(err, "not a command topic")

	_, err = parseButtonCommand(r, "otherTopic/button/refresh/press", []byte("PRESS"))
	assert.Error(err, "foreign base topic")

	_, err = parseButtonCommand(r, "loremTopic/button/refresh/press", []byte("on"))
	assert.Error(err, "bad payload")
}

func testClient() *MQTTClient {
	cfg := util.LoadTestConfig()
	return CreateMQTTClient(&cfg, OptsFromConfig(&cfg), nil, nil)
}

func TestTopics(t *testing.T) {
	c := testClient()
	assert.Equal(t, "ecodevices/bridge/state", c.BridgeStateTopic())
	assert.Equal(t, "ecodevices/sensor/t1/state", c.StateTopic("sensor", "t1"))
	assert.Equal(t, "ecodevices/binary_sensor/t1_heures_creuses/availability", c.AvailabilityTopic("binary_sensor", "t1_heures_creuses"))
	assert.Equal(t, "ecodevices/sensor/t1/attributes", c.AttributesTopic("sensor", "t1"))
	assert.Equal(t, "ecodevices/button/refresh/press", c.ButtonCommandTopic("refresh"))
}

func TestSensorDiscoveryMessage(t *testing.T) {
	c := testClient()
	bridge := events.BridgeDevice("ecodevices")
	gateway := events.GatewayDevice(ecodevices.DeviceIdentity{
		Host: "192.168.1.50", Port: 80, MACAddress: "00:04:A3:12:34:56", Version: "3.00.01",
	}, bridge)

	sensor := domain.GenericSensor{
		Device:          gateway,
		Id:              "t1_ptec",
		SensorType:      "sensor",
		Name:            "Teleinfo 1 Couleur Tempo",
		DeviceClass:     "enum",
		Options:         []string{"blue", "white", "red", "unknown"},
		HasAvailability: true,
		HasAttributes:   true,
		UniqueId:        "uid_t1_ptec",
	}

	assert.Equal(t, "homeassistant/sensor/ecodevices_0004a3123456/t1_ptec/config", HADiscoverySensorTopic(c.DiscoveryPrefix(), sensor))

	raw, err := json.Marshal(GenericSensorToHADiscoveryMessage(c, sensor))
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "ecodevices/sensor/t1_ptec/state", payload["state_topic"])
	assert.Equal(t, "ecodevices/sensor/t1_ptec/attributes", payload["json_attributes_topic"])
	assert.Equal(t, "all", payload["availability_mode"])
	assert.Len(t, payload["availability"], 2)
	assert.Equal(t, []any{"blue", "white", "red", "unknown"}, payload["options"])

	dev := payload["device"].(map[string]any)
	assert.Equal(t, "GCE Electronics", dev["manufacturer"])
	assert.Equal(t, "http://192.168.1.50:80", dev["configuration_url"])
	assert.Equal(t, []any{[]any{"mac", "00:04:A3:12:34:56"}}, dev["connections"])
	assert.Equal(t, bridge.Id, dev["via_device"])
}

func TestBinarySensorDiscoveryPayloads(t *testing.T) {
	c := testClient()
	bridge := events.BridgeDevice("ecodevices")

	msg := GenericSensorToHADiscoveryMessage(c, events.BridgeSensors(bridge)[0])
	assert.Equal(t, c.BridgeStateTopic(), msg.StateTopic)
	assert.Equal(t, MQTT_PAYLOAD_ONLINE, msg.PayloadOn)
	assert.Empty(t, msg.Availability)

	flag := GenericSensorToHADiscoveryMessage(c, domain.GenericSensor{
		Device: bridge, Id: "t1_heures_creuses", SensorType: events.SENSOR_TYPE_BINARY,
	})
	assert.Equal(t, MQTT_PAYLOAD_ON, flag.PayloadOn)
	assert.Equal(t, MQTT_PAYLOAD_OFF, flag.PayloadOff)
	assert.Equal(t, "ecodevices/binary_sensor/t1_heures_creuses/state", flag.StateTopic)
}

func TestButtonDiscoveryMessage(t *testing.T) {
	c := testClient()
	button := events.GatewayButtons(events.BridgeDevice("ecodevices"))[0]

	assert.Equal(t, "homeassistant/button/"+button.Device.Id+"/refresh/config", HADiscoveryButtonTopic("homeassistant", button))
	msg := GenericButtonToHADiscoveryMessage(c, button)
	assert.Equal(t, "ecodevices/button/refresh/press", msg.CommandTopic)
	assert.Equal(t, MQTT_PAYLOAD_PRESS, msg.PayloadPress)
	assert.Empty(t, msg.StateTopic)
}
