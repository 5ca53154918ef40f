package events

import (
	"time"

	"github.com/berfenger/ecodevices2mqtt/internal/core/coordinator"
	. "github.com/berfenger/ecodevices2mqtt/internal/core/domain"
	"github.com/berfenger/ecodevices2mqtt/internal/core/metric"
)

// ReadingsToUpdateEvents turns evaluated metrics into event stream messages.
// Available readings publish their value before the availability flip so the
// entity never comes back online with an outdated state.
func ReadingsToUpdateEvents(readings []metric.Reading) []any {
	var events []any
	for _, r := range readings {
		mixIn := SensorUpdateEventMixIn{
			Id:     r.Spec.Id,
			Binary: r.Spec.Component() == metric.COMPONENT_BINARY_SENSOR,
		}
		if r.Value.Available {
			switch r.Value.Type {
			case metric.ValueNumber:
				events = append(events, FloatSensorUpdateEvent{
					SensorUpdateEventMixIn: mixIn,
					Value:                  r.Value.Number,
					Decimals:               r.Spec.Decimals,
				})
			case metric.ValueText:
				events = append(events, TextSensorUpdateEvent{
					SensorUpdateEventMixIn: mixIn,
					Value:                  r.Value.Text,
				})
			case metric.ValueBool:
				events = append(events, BinarySensorUpdateEvent{
					SensorUpdateEventMixIn: mixIn,
					Value:                  r.Value.Bool,
				})
			}
		}
		if len(r.Value.Attributes) > 0 {
			events = append(events, SensorAttributesUpdateEvent{
				SensorUpdateEventMixIn: mixIn,
				Attributes:             r.Value.Attributes,
			})
		}
		events = append(events, SensorAvailabilityUpdateEvent{
			SensorUpdateEventMixIn: mixIn,
			Available:              r.Value.Available,
		})
	}
	return events
}

func PollStateToUpdateEvents(state coordinator.PollState) []any {
	var events []any

	events = append(events, TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_POLL_STATUS,
		},
		Value: state.Status.String(),
	})

	attrs := map[string]any{}
	if state.Err != nil {
		attrs["last_error"] = state.Err.Error()
	} else {
		attrs["last_error"] = nil
	}
	attrs["auth_failure"] = state.IsAuthFailure()
	if state.HasSnapshot() {
		attrs["captured_at"] = state.Snapshot.CapturedAt().Format(time.RFC3339)
	}
	events = append(events, SensorAttributesUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_POLL_STATUS,
		},
		Attributes: attrs,
	})

	if !state.UpdatedAt.IsZero() {
		events = append(events, TextSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_LAST_POLL,
			},
			Value: state.UpdatedAt.Format(time.RFC3339),
		})
	}

	return events
}

func BridgeStateEvent(online bool) any {
	return BridgeStateUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id:     SENSOR_ID_BRIDGE_STATE,
			Binary: true,
		},
		Value: online,
	}
}
