package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/ecodevices2mqtt/internal/config"
	"github.com/berfenger/ecodevices2mqtt/internal/core/coordinator"
	"github.com/berfenger/ecodevices2mqtt/internal/core/domain"
	"github.com/berfenger/ecodevices2mqtt/internal/core/events"
	. "github.com/berfenger/ecodevices2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

const (
	POLL_JOB_KEY = "ecodevices_poll"

	// added to the device timeout when waiting for a refresh
	refreshRequestMargin = 3 * time.Second
)

// PollerActor drives the periodic refresh of the gateway and publishes the
// derived readings on the event stream.
type PollerActor struct {
	behavior actor.Behavior
	stash    *Stash

	scheduler       quartz.Scheduler
	cancelScheduler context.CancelFunc

	ecoDevicesActor *actor.PID
	config          *config.Config
	eventStream     *eventstream.EventStream
	lastStatus      coordinator.Status

	logger *zap.Logger
}

type pollTick struct {
}

func NewPollerActor(config *config.Config, ecoDevicesActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *PollerActor {
	act := &PollerActor{
		config:          config,
		ecoDevicesActor: ecoDevicesActor,
		behavior:        actor.NewBehavior(),
		stash:           &Stash{},
		logger:          ActorLogger(domain.ACTOR_ID_POLLER, logger),
		eventStream:     eventStream,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *PollerActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *PollerActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("poller@starting started")

		if err := state.startScheduler(ctx); err != nil {
			panic(err)
		}

		// publish what the first poll already fetched
		state.requestState(ctx)
	case *actor.Restarting:
		state.stopScheduler()
	default:
		state.logger.Debug("poller@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollerActor) WaitingStateReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetStateResponse:
		if msg.HasResponseError() {
			state.logger.Error("poller@waitingState GetStateResponse", zap.Error(msg.GetResponseError()))
		} else {
			state.publish(msg.State, events.ReadingsToUpdateEvents(msg.Readings))
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.stopScheduler()
	case *actor.Restarting:
		state.stopScheduler()
	default:
		state.logger.Debug("poller@waitingState: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollerActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("poller@default: ActorHealthRequest")
		ctx.Respond(state.health("idle"))
	case pollTick:
		state.logger.Debug("poller@default tick")
		state.requestRefresh(ctx)
	case domain.ButtonPressRequest:
		state.logger.Info("poller@default manual refresh", zap.String("button", msg.ButtonId))
		state.requestRefresh(ctx)
	case domain.PublishStateRequest:
		state.requestState(ctx)
	case *actor.Stopping:
		state.stopScheduler()
	case *actor.Restarting:
		state.stopScheduler()
	default:
		state.logger.Debug("poller@default ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *PollerActor) WaitingRefreshReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.RefreshResponse:
		if msg.HasResponseError() {
			state.logger.Error("poller@waiting RefreshResponse error", zap.Error(msg.GetResponseError()))
		} else {
			state.logger.Debug("poller@waiting RefreshResponse", zap.Stringer("status", msg.State.Status))
			state.publish(msg.State, events.ReadingsToUpdateEvents(msg.Readings))
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case pollTick, domain.ButtonPressRequest:
		// the refresh in flight serves this request too
		state.logger.Debug("poller@waiting refresh in progress, skip", zap.String("type", fmt.Sprintf("%T", msg)))
	case domain.ActorHealthRequest:
		ctx.Respond(state.health("polling"))
	case *actor.Stopping:
		state.stopScheduler()
	case *actor.Restarting:
		state.stopScheduler()
	default:
		state.logger.Debug("poller@waiting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollerActor) requestState(ctx actor.Context) {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.ecoDevicesActor, domain.GetStateRequest{}, 2*time.Second), func(err error) any {
		return domain.GetStateResponse{
			ActorResponseMixIn: domain.ErrorResponse(err),
		}
	})
	state.behavior.Become(state.WaitingStateReceive)
}

func (state *PollerActor) requestRefresh(ctx actor.Context) {
	timeout := state.config.EcoDevices.Timeout() + refreshRequestMargin
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.ecoDevicesActor, domain.RefreshRequest{}, timeout), func(err error) any {
		return domain.RefreshResponse{
			ActorResponseMixIn: domain.ErrorResponse(err),
		}
	})
	state.behavior.BecomeStacked(state.WaitingRefreshReceive)
}

func (state *PollerActor) publish(polled coordinator.PollState, readingEvents []any) {
	if polled.Status != state.lastStatus {
		state.logger.Info("poller: status changed",
			zap.Stringer("from", state.lastStatus), zap.Stringer("to", polled.Status))
		state.lastStatus = polled.Status
	}
	for _, ev := range readingEvents {
		state.eventStream.Publish(ev)
	}
	for _, ev := range events.PollStateToUpdateEvents(polled) {
		state.eventStream.Publish(ev)
	}
}

func (state *PollerActor) health(activity string) domain.ActorHealthResponse {
	return domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_POLLER,
		Healthy: true,
		State:   fmt.Sprintf("%s (%s)", activity, state.lastStatus),
	}
}

func (state *PollerActor) startScheduler(ctx actor.Context) error {
	interval := state.config.EcoDevices.ScanIntervalDuration()
	if interval <= 0 {
		return fmt.Errorf("invalid scan interval %s", interval)
	}

	sched, err := quartz.NewStdScheduler()
	if err != nil {
		return err
	}
	schedCtx, cancel := context.WithCancel(context.Background())
	sched.Start(schedCtx)

	root := ctx.ActorSystem().Root
	self := ctx.Self()
	pollJob := job.NewFunctionJob(func(_ context.Context) (bool, error) {
		root.Send(self, pollTick{})
		return true, nil
	})
	err = sched.ScheduleJob(quartz.NewJobDetail(pollJob, quartz.NewJobKey(POLL_JOB_KEY)),
		quartz.NewSimpleTrigger(interval))
	if err != nil {
		cancel()
		sched.Stop()
		return err
	}

	state.logger.Info("poller: scheduled", zap.Duration("interval", interval))
	state.scheduler = sched
	state.cancelScheduler = cancel
	return nil
}

func (state *PollerActor) stopScheduler() {
	if state.scheduler == nil {
		return
	}
	state.scheduler.Stop()
	state.cancelScheduler()
	state.scheduler = nil
	state.cancelScheduler = nil
}
