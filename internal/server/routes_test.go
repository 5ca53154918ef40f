package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/berfenger/ecodevices2mqtt/internal/controller"
	"github.com/berfenger/ecodevices2mqtt/internal/core/domain"
	"github.com/berfenger/ecodevices2mqtt/internal/metrics"
	"github.com/berfenger/ecodevices2mqtt/internal/util"
	"github.com/berfenger/ecodevices2mqtt/pkg/ecodevices"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, healthy bool) (*httptest.Server, *ecodevices.TestClient, chan any) {
	logger := zap.NewNop()
	client := ecodevices.CreateTestClient()
	manager := controller.NewManager(logger, controller.WithClientFactory(util.TestClientFactory(client)))
	_, err := manager.Reload(context.Background(), util.LoadTestConfig())
	require.NoError(t, err)

	received := make(chan any, 8)
	as := actor.NewActorSystem()
	master := as.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case domain.ActorHealthRequest:
			ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_MASTER, Healthy: healthy})
		case domain.PublishStateRequest:
			received <- msg
		}
	}))

	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg, metrics.NewCollector(manager), metrics.NewRequestRecorder()))

	srv := &Server{
		rootContext: as.Root,
		masterActor: master,
		controllers: manager,
		gatherer:    reg,
		logger:      logger,
	}
	ts := httptest.NewServer(srv.RegisterRoutes())
	t.Cleanup(func() {
		ts.Close()
		as.Shutdown()
		manager.Close()
	})
	return ts, client, received
}

func readBody(t *testing.T, resp *http.Response) string {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestHealthCheck(t *testing.T) {

	ts, _, _ := newTestServer(t, true)
	resp, err := http.Get(ts.URL + "/healthcheck")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "health_check: OK", readBody(t, resp))

	ts, _, _ = newTestServer(t, false)
	resp, err = http.Get(ts.URL + "/healthcheck")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "health_check: FAIL", readBody(t, resp))
}

func TestState(t *testing.T) {

	assert := assert.New(t)

	ts, client, _ := newTestServer(t, true)
	before := client.Fetches()

	resp, err := http.Get(ts.URL + "/api/state")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state StateResponse
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &state))
	assert.Equal("fresh", state.Status)
	assert.NotNil(state.CapturedAt)
	assert.Nil(state.LastError)
	assert.NotEmpty(state.Readings)
	assert.Equal(before, client.Fetches(), "state does not poll")

	var t1 *ReadingResponse
	for i := range state.Readings {
		if state.Readings[i].Id == "t1" {
			t1 = &state.Readings[i]
		}
	}
	require.NotNil(t, t1)
	assert.True(t1.Available)
	assert.Equal(450.0, t1.Value)
	assert.Equal("VA", t1.Unit)
}

func TestRefresh(t *testing.T) {

	assert := assert.New(t)

	ts, client, received := newTestServer(t, true)
	client.SetError(ecodevices.CommandTelemetry, &ecodevices.ConnectError{URL: "test", StatusCode: 500})
	before := client.Fetches()

	resp, err := http.Post(ts.URL+"/api/refresh", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state StateResponse
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &state))
	assert.Equal("stale", state.Status)
	require.NotNil(t, state.LastError)
	assert.NotEmpty(*state.LastError)
	require.NotEmpty(t, state.Readings)
	for _, r := range state.Readings {
		assert.False(r.Available, "reading %s available while stale", r.Id)
		assert.Nil(r.Value)
	}
	assert.Greater(client.Fetches(), before)

	assert.IsType(domain.PublishStateRequest{}, <-received)
}

func TestMetricsEndpoint(t *testing.T) {

	ts, _, _ := newTestServer(t, true)
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.True(t, strings.Contains(body, `ecodevices_poll_status{status="fresh"} 1`))
	assert.True(t, strings.Contains(body, `ecodevices_reading{channel="T1",metric="t1",unit="VA"} 450`))
}
