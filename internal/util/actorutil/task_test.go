package actorutil

import (
	"errors"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type taskResult struct {
	value string
	err   error
}

// spawnTaskRunner starts an actor running build on Started and forwarding
// every string or taskResult it receives to results.
func spawnTaskRunner(t *testing.T, build func(ctx actor.Context)) chan any {
	as := actor.NewActorSystem()
	t.Cleanup(as.Shutdown)

	results := make(chan any, 4)
	as.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case *actor.Started:
			build(ctx)
		case string, taskResult:
			results <- msg
		}
	}))
	return results
}

func TestBackgroundTaskPipeTo(t *testing.T) {

	results := spawnTaskRunner(t, func(ctx actor.Context) {
		MapBackgroundTask(NewBackgroundTaskNoError(ctx, func() *int {
			v := 42
			return &v
		}), func(v *int) *taskResult {
			return &taskResult{value: "ok"}
		}).PipeTo(ctx.Self())
	})

	select {
	case res := <-results:
		assert.Equal(t, taskResult{value: "ok"}, res)
	case <-time.After(2 * time.Second):
		require.Fail(t, "no result")
	}
}

func TestBackgroundTaskTimeoutRecovers(t *testing.T) {

	results := spawnTaskRunner(t, func(ctx actor.Context) {
		NewBackgroundTaskNoError(ctx, func() *taskResult {
			time.Sleep(time.Second)
			return &taskResult{value: "late"}
		}).Recover(func(err error) taskResult {
			return taskResult{err: err}
		}).WithTimeout(50 * time.Millisecond).PipeTo(ctx.Self())
	})

	select {
	case res := <-results:
		assert.Error(t, res.(taskResult).err)
	case <-time.After(2 * time.Second):
		require.Fail(t, "no result")
	}
}

func TestBackgroundTaskPanicRecovers(t *testing.T) {

	results := spawnTaskRunner(t, func(ctx actor.Context) {
		NewBackgroundTaskNoError(ctx, func() *taskResult {
			panic(errors.New("boom"))
		}).Recover(func(err error) taskResult {
			return taskResult{err: err}
		}).PipeTo(ctx.Self())
	})

	select {
	case res := <-results:
		assert.Error(t, res.(taskResult).err)
	case <-time.After(2 * time.Second):
		require.Fail(t, "no result")
	}
}
