package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/ecodevices2mqtt/internal/controller"
	"github.com/berfenger/ecodevices2mqtt/internal/core/coordinator"
	"github.com/berfenger/ecodevices2mqtt/internal/core/domain"
	"github.com/berfenger/ecodevices2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const (
	ECODEVICES_ACTOR_ID = domain.ACTOR_ID_ECODEVICES

	// added to the device timeout to bound a whole refresh
	refreshTaskMargin = 2 * time.Second
)

// ControllerProvider hands out the active gateway controller.
type ControllerProvider interface {
	Controller() (*controller.Controller, error)
}

// EcoDevicesActor serves gateway requests. Blocking controller calls run as
// background tasks while the actor stashes whatever needs the gateway.
type EcoDevicesActor struct {
	behavior    actor.Behavior
	stash       *actorutil.Stash
	controllers ControllerProvider
	logger      *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewEcoDevicesActor(controllers ControllerProvider, logger *zap.Logger) *EcoDevicesActor {
	act := &EcoDevicesActor{
		controllers: controllers,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(ECODEVICES_ACTOR_ID, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *EcoDevicesActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *EcoDevicesActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("ecodevices@starting started")
		if _, err := state.controllers.Controller(); err != nil {
			panic(err)
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("ecodevices@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *EcoDevicesActor) DefaultReceive(ctx actor.Context) {
	if state.handleQuery(ctx) {
		return
	}
	switch msg := ctx.Message().(type) {
	case domain.GetDeviceInfoRequest:
		state.logger.Debug("ecodevices@default: GetDeviceInfoRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		ctx.Send(sender, state.getDeviceInfo())
	case domain.RefreshRequest:
		state.logger.Debug("ecodevices@default: RefreshRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		ctrl, err := state.controllers.Controller()
		if err != nil {
			ctx.Send(sender, domain.RefreshResponse{ActorResponseMixIn: domain.ErrorResponse(err)})
			return
		}

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskNoError(ctx, func() *domain.RefreshResponse {
			return refresh(ctrl)
		}), mapTaskResult[domain.RefreshResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.RefreshResponse{
					ActorResponseMixIn: domain.ErrorResponse(err),
					State:              ctrl.Current(),
				},
				replyTo: sender,
			}
		}).WithTimeout(ctrl.Config().EcoDevices.Timeout() + refreshTaskMargin).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingGateway)
	default:
		state.logger.Debug("ecodevices@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *EcoDevicesActor) WaitingGateway(ctx actor.Context) {
	if state.handleQuery(ctx) {
		return
	}
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("ecodevices@waitingGateway backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("ecodevices@waitingGateway stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// handleQuery answers the requests that never touch the gateway.
func (state *EcoDevicesActor) handleQuery(ctx actor.Context) bool {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(state.health())
	case domain.GetStateRequest:
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		ctrl, err := state.controllers.Controller()
		if err != nil {
			ctx.Send(sender, domain.GetStateResponse{ActorResponseMixIn: domain.ErrorResponse(err)})
			return true
		}
		current := ctrl.Current()
		ctx.Send(sender, domain.GetStateResponse{
			State:    current,
			Readings: ctrl.Readings(current),
		})
	default:
		return false
	}
	return true
}

func (state *EcoDevicesActor) health() domain.ActorHealthResponse {
	ctrl, err := state.controllers.Controller()
	if err != nil {
		return domain.ActorHealthResponse{
			Id:      ECODEVICES_ACTOR_ID,
			Healthy: false,
			State:   err.Error(),
		}
	}
	current := ctrl.Current()
	return domain.ActorHealthResponse{
		Id:      ECODEVICES_ACTOR_ID,
		Healthy: current.Status != coordinator.StatusFailed,
		State:   current.Status.String(),
	}
}

func (state *EcoDevicesActor) getDeviceInfo() domain.GetDeviceInfoResponse {
	ctrl, err := state.controllers.Controller()
	if err != nil {
		return domain.GetDeviceInfoResponse{ActorResponseMixIn: domain.ErrorResponse(err)}
	}
	return domain.GetDeviceInfoResponse{
		Identity: ctrl.Identity(),
		Catalog:  ctrl.Catalog(),
	}
}

func refresh(ctrl *controller.Controller) *domain.RefreshResponse {
	polled := ctrl.Refresh(context.Background())
	return &domain.RefreshResponse{
		State:    polled,
		Readings: ctrl.PollReadings(polled),
	}
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
