package coordinator

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/berfenger/ecodevices2mqtt/pkg/ecodevices"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	DEFAULT_POLL_TIMEOUT = 5 * time.Second
	refreshKey           = "refresh"
)

var DefaultCommands = []ecodevices.Command{
	ecodevices.CommandTelemetry,
	ecodevices.CommandCounters,
}

// Coordinator owns the latest poll state of one gateway. Refresh may be
// called from any goroutine; concurrent calls share a single device round-trip.
type Coordinator struct {
	client   ecodevices.Client
	commands []ecodevices.Command
	timeout  time.Duration
	logger   *zap.Logger

	state atomic.Pointer[PollState]
	group singleflight.Group
	polls atomic.Int64
}

type Option func(*Coordinator)

func WithCommands(commands ...ecodevices.Command) Option {
	return func(c *Coordinator) {
		c.commands = commands
	}
}

// WithTimeout bounds a whole refresh cycle, every command included.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func New(client ecodevices.Client, logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		client:   client,
		commands: DefaultCommands,
		timeout:  DEFAULT_POLL_TIMEOUT,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state.Store(&PollState{Status: StatusUnpolled})
	return c
}

// Current returns the latest published state without doing any I/O.
func (c *Coordinator) Current() PollState {
	return *c.state.Load()
}

// Polls returns the number of device round-trips started so far.
func (c *Coordinator) Polls() int64 {
	return c.polls.Load()
}

// Refresh polls the gateway, or joins the poll already in flight, and returns
// the resulting state. If ctx ends first the caller gets Current() while the
// poll keeps running to completion.
func (c *Coordinator) Refresh(ctx context.Context) PollState {
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		return c.poll(ctx), nil
	})
	select {
	case res := <-ch:
		return res.Val.(PollState)
	case <-ctx.Done():
		return c.Current()
	}
}

func (c *Coordinator) poll(parent context.Context) PollState {
	c.polls.Add(1)
	// the poll outlives any single caller, only the coordinator timeout bounds it
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.timeout)
	defer cancel()

	snapshot, err := c.fetchAll(ctx)

	prev := c.Current()
	next := prev.next(snapshot, err, time.Now())
	c.state.Store(&next)

	switch {
	case err == nil && prev.Err != nil:
		c.logger.Info("eco-devices poll recovered", zap.Stringer("previous", prev.Status))
	case err != nil && ecodevices.IsAuthError(err):
		c.logger.Error("eco-devices rejected credentials", zap.Stringer("status", next.Status), zap.Error(err))
	case err != nil:
		c.logger.Warn("eco-devices poll failed", zap.Stringer("status", next.Status), zap.Error(err))
	default:
		c.logger.Debug("eco-devices poll", zap.Int("fields", snapshot.Len()))
	}
	return next
}

// fetchAll runs every command concurrently. The snapshot is only assembled
// once all of them succeeded.
func (c *Coordinator) fetchAll(ctx context.Context) (ecodevices.Snapshot, error) {
	results := make([]ecodevices.Snapshot, len(c.commands))
	g, gctx := errgroup.WithContext(ctx)
	for i, cmd := range c.commands {
		g.Go(func() error {
			s, err := c.client.Fetch(gctx, cmd)
			if err != nil {
				return err
			}
			results[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ecodevices.Snapshot{}, err
	}
	return ecodevices.Merge(time.Now(), results...), nil
}
