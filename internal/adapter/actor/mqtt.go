package actor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/berfenger/ecodevices2mqtt/internal/config"
	"github.com/berfenger/ecodevices2mqtt/internal/core/domain"
	"github.com/berfenger/ecodevices2mqtt/internal/core/events"
	"github.com/berfenger/ecodevices2mqtt/internal/mqtt"
	"github.com/berfenger/ecodevices2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

type MQTTActor struct {
	config         *config.Config
	behavior       actor.Behavior
	stash          *actorutil.Stash
	client         *mqtt.MQTTClient
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	logger         *zap.Logger

	// test actor only
	mu        sync.Mutex
	published []PublishedMessage
}

type MQTTConnected struct {
}

type MQTTSubscribed struct {
}

type MQTTConnectionLost struct {
	Error error
}

type publishResult struct {
	ReplyTo      *actor.PID
	Error        error
	SensorUpdate bool
}

type ParsedCommand struct {
	Command *mqtt.ParsedMQTTCommand
}

// PublishedMessage is a message handed to the broker.
type PublishedMessage struct {
	Topic   string
	Payload string
	Retain  bool
}

func NewMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		eventStream: eventStream,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")

		root := ctx.ActorSystem().Root
		self := ctx.Self()

		// create MQTT client
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), func(_ pahomqtt.Client) {
		}, func(_ pahomqtt.Client, err error) {
			root.Send(self, MQTTConnectionLost{Error: err})
		})

		// connect to MQTT server
		state.client.Connect(func(err error) {
			if err != nil {
				root.Send(self, MQTTConnectionLost{Error: err})
			} else {
				root.Send(self, MQTTConnected{})
			}
		}, 10*time.Second)

	case MQTTConnected:
		state.logger.Debug("mqtt@starting connected")

		root := ctx.ActorSystem().Root
		self := ctx.Self()

		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(error) {}, 500*time.Millisecond)

		// subscribe to MQTT command topic
		state.client.SubscribeToCommandTopic(func(c pahomqtt.Client, m pahomqtt.Message) {
			cmd, err := state.client.ParseMQTTCommand(m)
			if err != nil {
				state.logger.Warn("mqtt: ignoring command", zap.String("topic", m.Topic()), zap.Error(err))
				return
			}
			root.Send(self, ParsedCommand{Command: cmd})
		}, func(err error) {
			if err != nil {
				root.Send(self, MQTTConnectionLost{Error: err})
			} else {
				root.Send(self, MQTTSubscribed{})
			}
		}, 1*time.Second)
	case MQTTSubscribed:
		// init completed, transition to default state
		state.logger.Debug("mqtt@starting subscribed")
		state.subscribeEventStream(ctx)
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		// respond health check request
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case ParsedCommand:
		// route command to parent
		state.logger.Debug("mqtt@default parsedCommand", zap.Any("command", msg.Command))
		ctx.Send(ctx.Parent(), msg)
	case domain.PublishMessageRequest:
		state.logger.Debug("mqtt@default PublishMessageRequest", zap.String("topic", msg.Topic))
		state.publishMessage(ctx, PublishedMessage{Topic: msg.Topic, Payload: msg.Payload, Retain: msg.Retain},
			actorutil.ForRequest(msg).ReplyTo(ctx), false)
	case domain.PublishSensorUpdateRequest:
		// receive message from event bus and publish to MQTT if needed
		state.logger.Debug("mqtt@default PublishSensorUpdateRequest", zap.String("type", fmt.Sprintf("%T", msg.Event)))
		if raw := state.event2MQTTMessage(msg.Event); raw != nil {
			raw.Retain = raw.Retain || msg.Retain
			var replyTo *actor.PID
			if msg.ReplyToRef != nil {
				replyTo = (*actor.PID)(msg.ReplyToRef)
			}
			state.publishMessage(ctx, *raw, replyTo, true)
		}
	case domain.PublishDiscoveryRequest:
		state.logger.Debug("mqtt@default PublishHADiscovery", zap.Int("sensors", len(msg.Sensors)), zap.Int("buttons", len(msg.Buttons)))
		err := state.publishHomeAssistantDiscovery(msg)
		if err != nil {
			state.logger.Error("mqtt@default PublishHADiscovery error", zap.Error(err))
		}
		if msg.ReplyToRef != nil {
			ctx.Send((*actor.PID)(msg.ReplyToRef), domain.PublishDiscoveryResponse{ActorResponseMixIn: domain.ErrorResponse(err)})
		}
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MQTTActor) subscribeEventStream(ctx actor.Context) {
	if state.eventStream == nil || state.eventStreamSub != nil {
		return
	}
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
		if evt, ok := value.(domain.SensorUpdateEvent); ok {
			root.Send(self, domain.PublishSensorUpdateRequest{Event: evt})
		}
	})
}

func component(event domain.SensorUpdateEvent) string {
	if event.IsBinary() {
		return events.SENSOR_TYPE_BINARY
	}
	return events.SENSOR_TYPE_SENSOR
}

func (state *MQTTActor) event2MQTTMessage(event domain.SensorUpdateEvent) *PublishedMessage {
	switch msg := event.(type) {
	case domain.FloatSensorUpdateEvent:
		return &PublishedMessage{
			Topic:   state.client.StateTopic(component(msg), msg.Id),
			Payload: formatFloat(msg.Value, msg.Decimals),
		}
	case domain.BinarySensorUpdateEvent:
		return &PublishedMessage{
			Topic:   state.client.StateTopic(events.SENSOR_TYPE_BINARY, msg.Id),
			Payload: bool2MQTTPayload(msg.Value),
		}
	case domain.TextSensorUpdateEvent:
		return &PublishedMessage{
			Topic:   state.client.StateTopic(component(msg), msg.Id),
			Payload: msg.Value,
		}
	case domain.SensorAvailabilityUpdateEvent:
		return &PublishedMessage{
			Topic:   state.client.AvailabilityTopic(component(msg), msg.Id),
			Payload: availability2MQTTPayload(msg.Available),
			Retain:  true,
		}
	case domain.SensorAttributesUpdateEvent:
		payload, err := json.Marshal(msg.Attributes)
		if err != nil {
			state.logger.Error("mqtt: cannot encode attributes", zap.String("sensor", msg.Id), zap.Error(err))
			return nil
		}
		return &PublishedMessage{
			Topic:   state.client.AttributesTopic(component(msg), msg.Id),
			Payload: string(payload),
			Retain:  true,
		}
	case domain.BridgeStateUpdateEvent:
		return &PublishedMessage{
			Topic:   state.client.BridgeStateTopic(),
			Payload: availability2MQTTPayload(msg.Value),
			Retain:  true,
		}
	default:
		return nil
	}
}

func (state *MQTTActor) publishMessage(ctx actor.Context, msg PublishedMessage, replyTo *actor.PID, sensorUpdate bool) {
	state.logger.Sugar().Debugf("mqtt@publish: %s => %s", msg.Topic, msg.Payload)
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	state.client.Publish(msg.Topic, msg.Payload, 1, msg.Retain, func(err error) {
		root.Send(self, publishResult{ReplyTo: replyTo, Error: err, SensorUpdate: sensorUpdate})
	}, 5*time.Second)
	state.behavior.BecomeStacked(state.PublishResultReceive)
}

func (state *MQTTActor) PublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		// log error and return to default state
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		}
		switch {
		case msg.ReplyTo == nil:
		case msg.SensorUpdate:
			ctx.Send(msg.ReplyTo, domain.PublishSensorUpdateResponse{
				ActorResponseMixIn: domain.ErrorResponse(msg.Error),
			})
		default:
			ctx.Send(msg.ReplyTo, domain.PublishMessageResponse{
				ActorResponseMixIn: domain.ErrorResponse(msg.Error),
			})
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		state.logger.Error("mqtt@publishing connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) publishHomeAssistantDiscovery(req domain.PublishDiscoveryRequest) error {
	for _, msg := range state.discoveryRequestMessages(req) {
		state.client.Publish(msg.Topic, msg.Payload, 0, msg.Retain, func(err error) {
			if err != nil {
				state.logger.Warn("mqtt: discovery publish failed", zap.Error(err))
			}
		}, 1*time.Second)
	}
	return nil
}

func (state *MQTTActor) discoveryRequestMessages(req domain.PublishDiscoveryRequest) []PublishedMessage {
	msgs := state.removedDiscoveryMessages(req.RemovedSensors, req.RemovedButtons)
	return append(msgs, state.discoveryMessages(req.Sensors, req.Buttons)...)
}

// removedDiscoveryMessages clears the retained configs of removed entities.
func (state *MQTTActor) removedDiscoveryMessages(sensors []domain.GenericSensor, buttons []domain.GenericButton) []PublishedMessage {
	prefix := state.client.DiscoveryPrefix()
	var msgs []PublishedMessage
	for i := range sensors {
		msgs = append(msgs, PublishedMessage{Topic: mqtt.HADiscoverySensorTopic(prefix, sensors[i]), Retain: true})
	}
	for i := range buttons {
		msgs = append(msgs, PublishedMessage{Topic: mqtt.HADiscoveryButtonTopic(prefix, buttons[i]), Retain: true})
	}
	return msgs
}

func (state *MQTTActor) discoveryMessages(sensors []domain.GenericSensor, buttons []domain.GenericButton) []PublishedMessage {
	prefix := state.client.DiscoveryPrefix()
	var msgs []PublishedMessage
	for i := range sensors {
		payload, err := json.Marshal(mqtt.GenericSensorToHADiscoveryMessage(state.client, sensors[i]))
		if err != nil {
			state.logger.Error("mqtt: cannot encode discovery", zap.String("sensor", sensors[i].Id), zap.Error(err))
			continue
		}
		msgs = append(msgs, PublishedMessage{
			Topic:   mqtt.HADiscoverySensorTopic(prefix, sensors[i]),
			Payload: string(payload),
			Retain:  true,
		})
	}
	for i := range buttons {
		payload, err := json.Marshal(mqtt.GenericButtonToHADiscoveryMessage(state.client, buttons[i]))
		if err != nil {
			state.logger.Error("mqtt: cannot encode discovery", zap.String("button", buttons[i].Id), zap.Error(err))
			continue
		}
		msgs = append(msgs, PublishedMessage{
			Topic:   mqtt.HADiscoveryButtonTopic(prefix, buttons[i]),
			Payload: string(payload),
			Retain:  true,
		})
	}
	return msgs
}

func (state *MQTTActor) stop() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
	if state.client != nil {
		state.logger.Debug("mqtt: disconnect")
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 500*time.Millisecond)
		state.client.Disconnect(500 * time.Millisecond)
		state.client = nil
	}
}

// formatFloat renders a value with a fixed number of decimals. Zero decimals
// keeps the shortest exact representation.
func formatFloat(value float64, decimals uint) string {
	if decimals == 0 {
		return strconv.FormatFloat(value, 'f', -1, 64)
	}
	return strconv.FormatFloat(value, 'f', int(decimals), 64)
}

func bool2MQTTPayload(value bool) string {
	if value {
		return mqtt.MQTT_PAYLOAD_ON
	} else {
		return mqtt.MQTT_PAYLOAD_OFF
	}
}

func availability2MQTTPayload(value bool) string {
	if value {
		return mqtt.MQTT_PAYLOAD_ONLINE
	}
	return mqtt.MQTT_PAYLOAD_OFFLINE
}

// Dummy actor. It never connects and records what it would publish.
func NewTestMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		eventStream: eventStream,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger("mqtt", logger),
	}
	act.behavior.Become(act.DummyReceive)
	return act
}

func (state *MQTTActor) Published() []PublishedMessage {
	state.mu.Lock()
	defer state.mu.Unlock()
	return append([]PublishedMessage(nil), state.published...)
}

func (state *MQTTActor) record(msgs ...PublishedMessage) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.published = append(state.published, msgs...)
}

func (state *MQTTActor) DummyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), nil, nil)
		state.subscribeEventStream(ctx)
	case *actor.Stopping:
		if state.eventStreamSub != nil {
			state.eventStream.Unsubscribe(state.eventStreamSub)
			state.eventStreamSub = nil
		}
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@dummy ActorHealthRequest")
		// respond health check request
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case ParsedCommand:
		ctx.Send(ctx.Parent(), msg)
	case domain.PublishSensorUpdateRequest:
		if raw := state.event2MQTTMessage(msg.Event); raw != nil {
			state.record(*raw)
		}
		if msg.ReplyToRef != nil {
			ctx.Send((*actor.PID)(msg.ReplyToRef), domain.PublishSensorUpdateResponse{})
		}
	case domain.PublishMessageRequest:
		state.record(PublishedMessage{Topic: msg.Topic, Payload: msg.Payload, Retain: msg.Retain})
		if msg.ReplyToRef != nil {
			ctx.Send((*actor.PID)(msg.ReplyToRef), domain.PublishMessageResponse{})
		}
	case domain.PublishDiscoveryRequest:
		state.record(state.discoveryRequestMessages(msg)...)
		if msg.ReplyToRef != nil {
			ctx.Send((*actor.PID)(msg.ReplyToRef), domain.PublishDiscoveryResponse{})
		}
	}
}
