package actor

import (
	"errors"
	"fmt"
	"time"

	adactor "github.com/berfenger/ecodevices2mqtt/internal/adapter/actor"
	"github.com/berfenger/ecodevices2mqtt/internal/config"
	"github.com/berfenger/ecodevices2mqtt/internal/core/domain"
	. "github.com/berfenger/ecodevices2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type EcoDevicesActorProvider func() *adactor.EcoDevicesActor

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck      healthCheckResult
	eventStream             *eventstream.EventStream
	ecoDevicesActor         *actor.PID
	mqttActor               *actor.PID
	pollerActor             *actor.PID
	haDiscoveryActor        *actor.PID
	announced               *domain.DiscoveryPublished
	ecoDevicesActorProvider EcoDevicesActorProvider
	mqttActorProvider       MQTTActorProvider
	logger                  *zap.Logger
}

type healthCheckResult struct {
	healthy        map[string]bool
	checksReceived int
	respondTo      *actor.PID
}

var healthCheckedActors = []string{domain.ACTOR_ID_ECODEVICES, domain.ACTOR_ID_MQTT, domain.ACTOR_ID_POLLER}

func NewMasterOfPuppetsActor(config config.Config, ecoDevicesActorProvider EcoDevicesActorProvider, mqttActorProvider MQTTActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:                  config,
		behavior:                actor.NewBehavior(),
		stash:                   &Stash{},
		logger:                  ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:             &eventstream.EventStream{},
		ecoDevicesActorProvider: ecoDevicesActorProvider,
		mqttActorProvider:       mqttActorProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) EventStream() *eventstream.EventStream {
	return state.eventStream
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck.reset()

		// start gateway child
		ecoDevicesActorPID, err := state.startEcoDevicesActor(ctx)
		if err != nil {
			panic(err)
		}
		state.ecoDevicesActor = ecoDevicesActorPID

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		state.startDeviceActors(ctx)

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()

		children := map[string]*actor.PID{
			domain.ACTOR_ID_ECODEVICES: state.ecoDevicesActor,
			domain.ACTOR_ID_MQTT:       state.mqttActor,
			domain.ACTOR_ID_POLLER:     state.pollerActor,
		}
		for _, id := range healthCheckedActors {
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(children[id], domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      id,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case adactor.ParsedCommand:
		// redirect parsedCommand to actor
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			switch cmd := MQTTCommandToRequest(*msg.Command).(type) {
			case domain.ButtonPressRequest:
				ctx.Send(state.pollerActor, cmd)
			default:
				state.logger.Warn("master@default unknown command", zap.String("id", msg.Command.DeviceId))
			}
		}
	case domain.ButtonPressRequest:
		ctx.Send(state.pollerActor, msg)
	case domain.PublishStateRequest:
		ctx.Send(state.pollerActor, msg)
	case domain.DiscoveryPublished:
		state.announced = &msg
	case domain.ControllerChanged:
		// the gateway or its channels changed: poll and announce again
		state.logger.Info("master@default controller changed, restarting device actors")
		state.config = msg.Config
		state.stopDeviceActors(ctx)
		state.startDeviceActors(ctx)
	case *actor.Terminated:
		// if the gateway actor gives up, terminate
		if state.ecoDevicesActor != nil && msg.Who.Equal(state.ecoDevicesActor) {
			state.logger.Error("master@default ecodevices terminated")
			panic(errors.New("ecodevices terminated"))
		}
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.CancelReceiveTimeout()
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			state.currentHealthCheck.healthy[msg.Id] = true
		}
		if state.currentHealthCheck.allReceived() {
			ctx.CancelReceiveTimeout()
			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) startEcoDevicesActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	props := actor.PropsFromProducer(func() actor.Actor {
		return state.ecoDevicesActorProvider()
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, domain.ACTOR_ID_ECODEVICES)
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	props := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, domain.ACTOR_ID_MQTT)
}

// startDeviceActors spawns the actors bound to the current gateway
// configuration. Names are prefixed since a reload respawns them.
func (state *MasterOfPuppetsActor) startDeviceActors(ctx actor.Context) {
	cfg := state.config

	decider := func(reason interface{}) actor.Directive {
		state.logger.Warn("master: handling failure for child", zap.Any("reason", reason))
		return actor.RestartDirective
	}

	pollerProps := actor.PropsFromProducer(func() actor.Actor {
		return NewPollerActor(&cfg, state.ecoDevicesActor, state.eventStream, state.logger)
	}, actor.WithSupervisor(actor.NewOneForOneStrategy(3, 10*time.Second, decider)))
	state.pollerActor = ctx.SpawnPrefix(pollerProps, domain.ACTOR_ID_POLLER)

	if cfg.MQTT.HADiscoveryEnable {
		announced := state.announced
		haDiscProps := actor.PropsFromProducer(func() actor.Actor {
			return NewHADiscoveryActor(&cfg, state.ecoDevicesActor, state.mqttActor, announced, state.logger)
		}, actor.WithSupervisor(actor.NewOneForOneStrategy(1, 10*time.Second, decider)))
		state.haDiscoveryActor = ctx.SpawnPrefix(haDiscProps, HADISCOVERY_ACTOR_ID)
	}
}

func (state *MasterOfPuppetsActor) stopDeviceActors(ctx actor.Context) {
	if state.pollerActor != nil {
		ctx.Stop(state.pollerActor)
		state.pollerActor = nil
	}
	if state.haDiscoveryActor != nil {
		ctx.Stop(state.haDiscoveryActor)
		state.haDiscoveryActor = nil
	}
}

func (state *healthCheckResult) reset() {
	state.healthy = map[string]bool{}
	state.checksReceived = 0
	state.respondTo = nil
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived == len(healthCheckedActors)
}

func (state *healthCheckResult) allHealthy() bool {
	for _, id := range healthCheckedActors {
		if !state.healthy[id] {
			return false
		}
	}
	return true
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
