package actor

import (
	"context"
	"testing"

	"github.com/berfenger/ecodevices2mqtt/internal/core/domain"
	"github.com/berfenger/ecodevices2mqtt/internal/core/events"
	"github.com/berfenger/ecodevices2mqtt/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoveryEntities(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	gw := newTestGateway(t, cfg)
	ctrl, err := gw.manager.Controller()
	require.NoError(t, err)

	sensors, buttons := DiscoveryEntities(cfg.MQTT.BaseTopic, domain.GetDeviceInfoResponse{
		Identity: ctrl.Identity(),
		Catalog:  ctrl.Catalog(),
	})

	// bridge + metrics + poll_status + last_poll
	require.Len(t, sensors, 1+ctrl.Catalog().Len()+2)
	assert.Equal(events.SENSOR_ID_BRIDGE_STATE, sensors[0].Id)

	gateway := sensors[1].Device
	assert.Equal(events.MANUFACTURER_GCE, gateway.Manufacturer)
	assert.Equal(sensors[0].Device.Id, gateway.ViaDevice)
	for _, s := range sensors[2:] {
		assert.Equal(gateway.Id, s.Device.Id)
		assert.Empty(s.Device.Manufacturer, "full device only sent once")
	}
	assert.Equal(events.SENSOR_ID_LAST_POLL, sensors[len(sensors)-1].Id)

	require.Len(t, buttons, 1)
	assert.Equal(events.BUTTON_ID_REFRESH, buttons[0].Id)
	assert.Equal(gateway.Id, buttons[0].Device.Id)
}

func TestRemovedEntities(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	gw := newTestGateway(t, cfg)
	ctrl, err := gw.manager.Controller()
	require.NoError(t, err)
	info := domain.GetDeviceInfoResponse{Identity: ctrl.Identity(), Catalog: ctrl.Catalog()}
	sensors, buttons := DiscoveryEntities(cfg.MQTT.BaseTopic, info)

	// nothing removed when the announcement is unchanged
	removedSensors, removedButtons := RemovedEntities(domain.DiscoveryPublished{Sensors: sensors, Buttons: buttons}, sensors, buttons)
	assert.Empty(removedSensors)
	assert.Empty(removedButtons)

	next := cfg
	next.Teleinfo2.Enabled = false
	ctrl, err = gw.manager.Reload(context.Background(), next)
	require.NoError(t, err)
	nextSensors, nextButtons := DiscoveryEntities(cfg.MQTT.BaseTopic, domain.GetDeviceInfoResponse{Identity: ctrl.Identity(), Catalog: ctrl.Catalog()})

	removedSensors, removedButtons = RemovedEntities(domain.DiscoveryPublished{Sensors: sensors, Buttons: buttons}, nextSensors, nextButtons)
	assert.Empty(removedButtons)
	var ids []string
	for _, s := range removedSensors {
		ids = append(ids, s.Id)
	}
	assert.ElementsMatch([]string{"t2", "t2_total"}, ids)
}
