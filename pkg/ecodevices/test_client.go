package ecodevices

import (
	"context"
	"encoding/json"
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

func CreateTestClient() *TestClient {
	return &TestClient{
		Identity: DeviceIdentity{
			Host:       "192.168.1.50",
			Port:       80,
			MACAddress: "00:04:A3:12:34:56",
			Version:    "3.00.01",
		},
		Responses: map[Command]map[string]any{
			CommandTelemetry: {
				FIELD_PRODUCT: PRODUCT_ECODEVICES,
				"T1_PTEC":     "HC..",
				"T1_PAPP":     json.Number("450"),
				"T1_BASE":     json.Number("0"),
				"T1_HCHC":     json.Number("1230456"),
				"T1_HCHP":     json.Number("2345678"),
				"T1_ISOUSC":   json.Number("45"),
				"T1_IMAX":     json.Number("90"),
				"T2_PAPP":     json.Number("0"),
				"meter2":      json.Number("120"),
				"meter3":      json.Number("0"),
				"count0":      json.Number("123456"),
				"count1":      json.Number("0"),
				"c0_fuel":     json.Number("12.3"),
			},
			CommandCounters: {
				FIELD_PRODUCT: PRODUCT_ECODEVICES,
				"c0day":       json.Number("2500"),
				"c1day":       json.Number("0"),
			},
		},
	}
}

// TestClient is an in-memory Client returning canned responses.
type TestClient struct {
	mu        sync.Mutex
	Identity  DeviceIdentity
	Responses map[Command]map[string]any
	Errors    map[Command]error
	// when set, every Fetch blocks until the channel is closed or ctx ends
	Gate  chan struct{}
	Delay time.Duration

	fetches atomic.Int32
	closed  atomic.Bool
}

func (c *TestClient) SetResponse(cmd Command, fields map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Responses == nil {
		c.Responses = make(map[Command]map[string]any)
	}
	c.Responses[cmd] = fields
}

func (c *TestClient) SetError(cmd Command, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Errors == nil {
		c.Errors = make(map[Command]error)
	}
	if err == nil {
		delete(c.Errors, cmd)
		return
	}
	c.Errors[cmd] = err
}

func (c *TestClient) Fetches() int {
	return int(c.fetches.Load())
}

func (c *TestClient) Closed() bool {
	return c.closed.Load()
}

func (c *TestClient) Fetch(ctx context.Context, cmd Command) (Snapshot, error) {
	c.fetches.Add(1)
	if c.Gate != nil {
		select {
		case <-c.Gate:
		case <-ctx.Done():
			return Snapshot{}, &ConnectError{URL: "test", Err: ctx.Err()}
		}
	}
	if c.Delay > 0 {
		select {
		case <-time.After(c.Delay):
		case <-ctx.Done():
			return Snapshot{}, &ConnectError{URL: "test", Err: ctx.Err()}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.Errors[cmd]; ok {
		return Snapshot{}, err
	}
	fields, ok := c.Responses[cmd]
	if !ok {
		fields = map[string]any{FIELD_PRODUCT: PRODUCT_ECODEVICES}
	}
	return NewSnapshot(maps.Clone(fields), time.Now()), nil
}

func (c *TestClient) Identify(ctx context.Context) (DeviceIdentity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.Errors[CommandIdentity]; ok {
		return DeviceIdentity{}, err
	}
	return c.Identity, nil
}

func (c *TestClient) Ping(ctx context.Context) error {
	_, err := c.Fetch(ctx, CommandTelemetry)
	return err
}

func (c *TestClient) Close() {
	c.closed.Store(true)
}

var _ Client = (*TestClient)(nil)
