package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/ecodevices2mqtt/pkg/ecodevices"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRefreshFresh(t *testing.T) {
	client := ecodevices.CreateTestClient()
	c := New(client, zap.NewNop())

	assert.Equal(t, StatusUnpolled, c.Current().Status)

	state := c.Refresh(context.Background())
	require.Equal(t, StatusFresh, state.Status)
	assert.NoError(t, state.Err)
	assert.True(t, state.HasSnapshot())
	// both commands land in the same snapshot
	assert.True(t, state.Snapshot.Has("T1_PAPP"))
	assert.True(t, state.Snapshot.Has("c0day"))
	assert.Equal(t, 2, client.Fetches())
	assert.Equal(t, state, c.Current())
}

func TestRefreshCoalescing(t *testing.T) {
	client := ecodevices.CreateTestClient()
	client.Gate = make(chan struct{})
	c := New(client, zap.NewNop())

	var wg sync.WaitGroup
	results := make([]PollState, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = c.Refresh(context.Background())
	}()
	assert.Eventually(t, func() bool { return client.Fetches() == 2 }, time.Second, 5*time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1] = c.Refresh(context.Background())
	}()
	time.Sleep(50 * time.Millisecond)
	close(client.Gate)
	wg.Wait()

	assert.Equal(t, 2, client.Fetches())
	assert.Equal(t, int64(1), c.Polls())
	assert.Equal(t, StatusFresh, results[0].Status)
	assert.Equal(t, results[0], results[1])
}

func TestRefreshFailedThenStale(t *testing.T) {
	client := ecodevices.CreateTestClient()
	c := New(client, zap.NewNop())

	connErr := &ecodevices.ConnectError{URL: "test", StatusCode: 500}
	client.SetError(ecodevices.CommandCounters, connErr)

	state := c.Refresh(context.Background())
	assert.Equal(t, StatusFailed, state.Status)
	assert.False(t, state.HasSnapshot())
	assert.True(t, ecodevices.IsConnectError(state.Err))

	client.SetError(ecodevices.CommandCounters, nil)
	fresh := c.Refresh(context.Background())
	require.Equal(t, StatusFresh, fresh.Status)

	client.SetError(ecodevices.CommandTelemetry, &ecodevices.ProtocolError{URL: "test", Reason: "unexpected product \"IPX800\""})
	stale := c.Refresh(context.Background())
	assert.Equal(t, StatusStale, stale.Status)
	assert.True(t, ecodevices.IsProtocolError(stale.Err))
	// the last good snapshot stays servable
	assert.Equal(t, fresh.Snapshot, stale.Snapshot)
	assert.Equal(t, StatusStale, c.Current().Status)
}

func TestRefreshAuthFailure(t *testing.T) {
	client := ecodevices.CreateTestClient()
	client.SetError(ecodevices.CommandTelemetry, &ecodevices.AuthError{URL: "test", StatusCode: 401})
	c := New(client, zap.NewNop())

	state := c.Refresh(context.Background())
	assert.Equal(t, StatusFailed, state.Status)
	assert.True(t, state.IsAuthFailure())
}

func TestRefreshCallerContext(t *testing.T) {
	client := ecodevices.CreateTestClient()
	client.Gate = make(chan struct{})
	c := New(client, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	state := c.Refresh(ctx)
	assert.Equal(t, StatusUnpolled, state.Status)

	// the poll in flight is not cancelled with its caller
	close(client.Gate)
	assert.Eventually(t, func() bool { return c.Current().Status == StatusFresh }, time.Second, 5*time.Millisecond)
}

func TestRefreshTimeout(t *testing.T) {
	client := ecodevices.CreateTestClient()
	client.Gate = make(chan struct{})
	defer close(client.Gate)
	c := New(client, zap.NewNop(), WithTimeout(30*time.Millisecond))

	state := c.Refresh(context.Background())
	assert.Equal(t, StatusFailed, state.Status)
	assert.True(t, errors.Is(state.Err, context.DeadlineExceeded))

	// a stuck poll does not prevent the next one
	state = c.Refresh(context.Background())
	assert.Equal(t, StatusFailed, state.Status)
	assert.Equal(t, int64(2), c.Polls())
}

func TestCurrentNeverObservesPartialSnapshot(t *testing.T) {
	client := ecodevices.CreateTestClient()
	client.Delay = time.Millisecond
	c := New(client, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			state := c.Current()
			if !state.HasSnapshot() {
				continue
			}
			a, errA := state.Snapshot.Number("cycle_a")
			b, errB := state.Snapshot.Number("cycle_b")
			if !assert.NoError(t, errA) || !assert.NoError(t, errB) || !assert.Equal(t, a, b) {
				return
			}
		}
	}()

	for i := 0; i < 50; i++ {
		cycle := json.Number(strconv.Itoa(i))
		client.SetResponse(ecodevices.CommandTelemetry, map[string]any{ecodevices.FIELD_PRODUCT: ecodevices.PRODUCT_ECODEVICES, "cycle_a": cycle})
		client.SetResponse(ecodevices.CommandCounters, map[string]any{ecodevices.FIELD_PRODUCT: ecodevices.PRODUCT_ECODEVICES, "cycle_b": cycle})
		require.Equal(t, StatusFresh, c.Refresh(context.Background()).Status)
	}
	cancel()
	wg.Wait()
}
