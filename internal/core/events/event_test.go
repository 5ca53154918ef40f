package events

import (
	"errors"
	"testing"
	"time"

	"github.com/berfenger/ecodevices2mqtt/internal/core/coordinator"
	"github.com/berfenger/ecodevices2mqtt/internal/core/domain"
	"github.com/berfenger/ecodevices2mqtt/internal/core/metric"
	"github.com/berfenger/ecodevices2mqtt/pkg/ecodevices"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadingsToUpdateEvents(t *testing.T) {
	power := metric.Spec{Id: "t1", Kind: metric.KindInstantaneous}
	total := metric.Spec{Id: "t1_total", Kind: metric.KindMonotonic, Decimals: 3}
	hc := metric.Spec{Id: "t1_heures_creuses", Kind: metric.KindFlag}

	guarded := metric.Unavailable(metric.ValueNumber)
	guarded.Attributes = map[string]any{"index_base": "0"}

	evts := ReadingsToUpdateEvents([]metric.Reading{
		{Spec: power, Value: metric.NumberValue(450)},
		{Spec: total, Value: guarded},
		{Spec: hc, Value: metric.BoolValue(true)},
	})
	require.Len(t, evts, 6)

	assert.Equal(t, domain.FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: "t1"},
		Value:                  450,
	}, evts[0])
	assert.Equal(t, domain.SensorAvailabilityUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: "t1"},
		Available:              true,
	}, evts[1])

	// guarded totals keep their attributes but go unavailable
	assert.IsType(t, domain.SensorAttributesUpdateEvent{}, evts[2])
	assert.Equal(t, domain.SensorAvailabilityUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: "t1_total"},
		Available:              false,
	}, evts[3])

	flag, ok := evts[4].(domain.BinarySensorUpdateEvent)
	require.True(t, ok)
	assert.True(t, flag.Value)
	assert.True(t, flag.IsBinary())
}

func TestPollStateToUpdateEvents(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	evts := PollStateToUpdateEvents(coordinator.PollState{
		Status:    coordinator.StatusStale,
		Snapshot:  ecodevices.NewSnapshot(map[string]any{"T1_PAPP": 1}, now.Add(-time.Minute)),
		Err:       errors.New("boom"),
		UpdatedAt: now,
	})
	require.Len(t, evts, 3)
	assert.Equal(t, "stale", evts[0].(domain.TextSensorUpdateEvent).Value)
	attrs := evts[1].(domain.SensorAttributesUpdateEvent).Attributes
	assert.Equal(t, "boom", attrs["last_error"])
	assert.Equal(t, "2024-03-01T11:59:00Z", attrs["captured_at"])
	assert.Equal(t, false, attrs["auth_failure"])
	assert.Equal(t, "2024-03-01T12:00:00Z", evts[2].(domain.TextSensorUpdateEvent).Value)

	// never polled: no timestamp
	assert.Len(t, PollStateToUpdateEvents(coordinator.PollState{}), 2)
}

func TestMetricSensors(t *testing.T) {
	catalog, err := metric.BuildCatalog(metric.Options{
		Teleinfo: []metric.TeleinfoOptions{{Input: 1, Enabled: true, Scheme: metric.SCHEME_TEMPO}},
	}, metric.GENERATION_CURRENT)
	require.NoError(t, err)

	device := GatewayDevice(ecodevices.DeviceIdentity{Host: "192.168.1.50", Port: 80, MACAddress: "00:04:A3:12:34:56", Version: "3.00.01"},
		BridgeDevice("ecodevices"))
	assert.Equal(t, "ecodevices_0004a3123456", device.Id)
	assert.Equal(t, "http://192.168.1.50:80", device.ConfigurationURL)
	assert.Equal(t, MANUFACTURER_GCE, device.Manufacturer)

	sensors := MetricSensors(device, catalog)
	require.Len(t, sensors, catalog.Len())

	byId := map[string]domain.GenericSensor{}
	for _, s := range sensors {
		byId[s.Id] = s
	}
	assert.Equal(t, []string{"blue", "white", "red", "unknown"}, byId["t1_ptec"].Options)
	assert.True(t, byId["t1_ptec"].HasAttributes)
	assert.Equal(t, SENSOR_TYPE_BINARY, byId["t1_heures_creuses"].SensorType)
	assert.Equal(t, "uid_ecodevices_0004a3123456_t1", byId["t1"].UniqueId)
}
