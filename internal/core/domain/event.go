package domain

import "fmt"

type SensorUpdateEventMixIn struct {
	Id string
	// Binary marks events targeting a binary_sensor entity.
	Binary bool
}

type SensorUpdateEvent interface {
	SensorUpdateEvent() string
	SensorId() string
	IsBinary() bool
}

func (e SensorUpdateEventMixIn) SensorUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

func (e SensorUpdateEventMixIn) IsBinary() bool {
	return e.Binary
}

type FloatSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

type BinarySensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

type TextSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value string
}

type BridgeStateUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

// SensorAvailabilityUpdateEvent flips an entity between a value and unavailable.
type SensorAvailabilityUpdateEvent struct {
	SensorUpdateEventMixIn
	Available bool
}

type SensorAttributesUpdateEvent struct {
	SensorUpdateEventMixIn
	Attributes map[string]any
}
