package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/ecodevices2mqtt/internal/config"
	"github.com/berfenger/ecodevices2mqtt/internal/core/domain"
	"github.com/berfenger/ecodevices2mqtt/internal/core/events"
	"github.com/berfenger/ecodevices2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const (
	HADISCOVERY_ACTOR_ID = domain.ACTOR_ID_HA_DISCOVERY
)

// HADiscoveryActor announces the gateway entities once both the gateway and
// the broker are reachable.
type HADiscoveryActor struct {
	config                 *config.Config
	behavior               actor.Behavior
	stash                  *actorutil.Stash
	ecoDevicesActor        *actor.PID
	mqttActor              *actor.PID
	previous               *domain.DiscoveryPublished
	ecoDevicesActorHealthy bool
	mqttActorHealthy       bool
	healthyRecv            int

	logger *zap.Logger
}

// previous lists the entities announced before a reload, nil on first start.
func NewHADiscoveryActor(config *config.Config, ecoDevicesActor *actor.PID, mqttActor *actor.PID, previous *domain.DiscoveryPublished, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:          config,
		ecoDevicesActor: ecoDevicesActor,
		mqttActor:       mqttActor,
		previous:        previous,
		behavior:        actor.NewBehavior(),
		stash:           &actorutil.Stash{},
		logger:          actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// Check gateway and MQTT actor healthy
		state.healthyRecv = 0
		state.ecoDevicesActorHealthy = false
		state.mqttActorHealthy = false
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.ecoDevicesActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_ECODEVICES,
				Healthy: false,
			}
		})
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.healthyRecv++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_ECODEVICES:
				state.ecoDevicesActorHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.mqttActorHealthy = true
			}
		}
		if state.healthyRecv == 2 {
			if !state.ecoDevicesActorHealthy || !state.mqttActorHealthy {
				panic(errors.New("MQTT actor or Eco-Devices actor are not healthy"))
			}
			actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.ecoDevicesActor, domain.GetDeviceInfoRequest{}, 2*time.Second), func(err error) any {
				return domain.GetDeviceInfoResponse{
					ActorResponseMixIn: domain.ErrorResponse(err),
				}
			})
			state.behavior.Become(state.WaitingInfoReceive)
			state.stash.UnstashAll(ctx)
		}
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) Done(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_HA_DISCOVERY,
			Healthy: true,
			State:   "published",
		})
	default:
		state.logger.Debug("hadiscovery@done: ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) WaitingInfoReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetDeviceInfoResponse:
		if msg.HasResponseError() {
			panic(msg.GetResponseError())
		}
		state.logger.Debug("hadiscovery@info: GetDeviceInfoResponse", zap.String("device", msg.Identity.Id()))

		sensors, buttons := DiscoveryEntities(state.config.MQTT.BaseTopic, msg)

		req := domain.PublishDiscoveryRequest{
			Sensors: sensors,
			Buttons: buttons,
		}
		if state.previous != nil {
			req.RemovedSensors, req.RemovedButtons = RemovedEntities(*state.previous, sensors, buttons)
		}
		if ctx.Parent() != nil {
			ctx.Send(ctx.Parent(), domain.DiscoveryPublished{Sensors: sensors, Buttons: buttons})
		}
		ctx.Send(state.mqttActor, req)
		state.logger.Info("hadiscovery: published", zap.Int("sensors", len(sensors)), zap.Int("buttons", len(buttons)),
			zap.Int("removed", len(req.RemovedSensors)+len(req.RemovedButtons)))
		state.behavior.Become(state.Done)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("hadiscovery@info: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// DiscoveryEntities lists every entity announced for a gateway. The full
// device description is only sent with the first entity of each device.
func DiscoveryEntities(baseTopic string, info domain.GetDeviceInfoResponse) ([]domain.GenericSensor, []domain.GenericButton) {
	var sensors []domain.GenericSensor

	bridgeDevice := events.BridgeDevice(baseTopic)
	sensors = append(sensors, events.BridgeSensors(bridgeDevice)...)

	gatewayDevice := events.GatewayDevice(info.Identity, bridgeDevice)
	gatewaySensors := events.MetricSensors(gatewayDevice, info.Catalog)
	gatewaySensors = append(gatewaySensors, events.GatewayDiagnosticSensors(gatewayDevice)...)
	for i := range gatewaySensors {
		if i > 0 {
			gatewaySensors[i].Device = events.IdDevice(gatewayDevice)
		}
		sensors = append(sensors, gatewaySensors[i])
	}

	buttons := events.GatewayButtons(events.IdDevice(gatewayDevice))
	return sensors, buttons
}

// RemovedEntities lists the entities of previous missing from the current
// announcement. Entities are matched by component, device and id, the fields
// their discovery topic is built from.
func RemovedEntities(previous domain.DiscoveryPublished, sensors []domain.GenericSensor, buttons []domain.GenericButton) ([]domain.GenericSensor, []domain.GenericButton) {
	key := func(component, device, id string) string {
		return component + "/" + device + "/" + id
	}

	current := map[string]bool{}
	for _, s := range sensors {
		current[key(s.SensorType, s.Device.Id, s.Id)] = true
	}
	for _, b := range buttons {
		current[key(events.SENSOR_TYPE_BUTTON, b.Device.Id, b.Id)] = true
	}

	var removedSensors []domain.GenericSensor
	for _, s := range previous.Sensors {
		if !current[key(s.SensorType, s.Device.Id, s.Id)] {
			removedSensors = append(removedSensors, s)
		}
	}
	var removedButtons []domain.GenericButton
	for _, b := range previous.Buttons {
		if !current[key(events.SENSOR_TYPE_BUTTON, b.Device.Id, b.Id)] {
			removedButtons = append(removedButtons, b)
		}
	}
	return removedSensors, removedButtons
}
