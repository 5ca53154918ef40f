package domain

import (
	"github.com/berfenger/ecodevices2mqtt/internal/config"
	"github.com/berfenger/ecodevices2mqtt/internal/core/coordinator"
	"github.com/berfenger/ecodevices2mqtt/internal/core/metric"
	"github.com/berfenger/ecodevices2mqtt/pkg/ecodevices"
)

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_ECODEVICES   = "ecodevices"
	ACTOR_ID_POLLER       = "poller"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

// Gateway

type GetDeviceInfoRequest struct {
	ActorRequestMixIn
}

type GetDeviceInfoResponse struct {
	ActorResponseMixIn
	Identity ecodevices.DeviceIdentity
	Catalog  *metric.Catalog
}

// RefreshRequest asks for a coalesced poll of the gateway.
type RefreshRequest struct {
	ActorRequestMixIn
}

type RefreshResponse struct {
	ActorResponseMixIn
	State    coordinator.PollState
	Readings []metric.Reading
}

// GetStateRequest returns the last poll state without touching the gateway.
type GetStateRequest struct {
	ActorRequestMixIn
}

type GetStateResponse struct {
	ActorResponseMixIn
	State    coordinator.PollState
	Readings []metric.Reading
}

// PublishStateRequest asks the poller to publish the current state without
// polling the gateway.
type PublishStateRequest struct {
}

// ControllerChanged is sent to the master after a configuration reload.
type ControllerChanged struct {
	Config config.Config
}

// MQTT

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors []GenericSensor
	Buttons []GenericButton
	// entities announced before and gone now, their configs are cleared
	RemovedSensors []GenericSensor
	RemovedButtons []GenericButton
}

// DiscoveryPublished tells the master which entities are announced.
type DiscoveryPublished struct {
	Sensors []GenericSensor
	Buttons []GenericButton
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

// ButtonPressRequest is produced by a press on a discovered button.
type ButtonPressRequest struct {
	ActorRequestMixIn
	ButtonId string
}

// Health

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
