package controller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/berfenger/ecodevices2mqtt/internal/config"
	"github.com/berfenger/ecodevices2mqtt/internal/core/coordinator"
	"github.com/berfenger/ecodevices2mqtt/internal/core/metric"
	"github.com/berfenger/ecodevices2mqtt/pkg/ecodevices"
	"go.uber.org/zap"
)

type ClientFactory func(cfg config.EcoDevicesConfig, logger *zap.Logger, instrument *ecodevices.Instrument) (ecodevices.Client, error)

func HTTPClientFactory(cfg config.EcoDevicesConfig, logger *zap.Logger, instrument *ecodevices.Instrument) (ecodevices.Client, error) {
	return ecodevices.CreateHTTPClient(ecodevices.ClientConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  cfg.Timeout(),
	}, logger, instrument)
}

type options struct {
	clientFactory ClientFactory
	instrument    *ecodevices.Instrument
}

type Option func(*options)

func WithClientFactory(factory ClientFactory) Option {
	return func(o *options) {
		o.clientFactory = factory
	}
}

func WithInstrument(instrument *ecodevices.Instrument) Option {
	return func(o *options) {
		o.instrument = instrument
	}
}

// Controller is the handle to one configured gateway. Consumers receive it
// explicitly and never share mutable state besides the coordinator.
type Controller struct {
	cfg         config.Config
	client      ecodevices.Client
	identity    ecodevices.DeviceIdentity
	coordinator *coordinator.Coordinator
	catalog     *metric.Catalog
	logger      *zap.Logger
}

// Setup connects to the gateway, polls it once and resolves the metric
// catalog. It fails fast when the gateway cannot be reached or rejects the
// credentials.
func Setup(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*Controller, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{clientFactory: HTTPClientFactory}
	for _, opt := range opts {
		opt(&o)
	}

	client, err := o.clientFactory(cfg.EcoDevices, logger, o.instrument)
	if err != nil {
		return nil, fmt.Errorf("cannot create eco-devices client: %w", err)
	}

	identity, err := client.Identify(ctx)
	switch {
	case err == nil:
	case ecodevices.IsProtocolError(err):
		// older firmwares do not answer the identity command
		logger.Warn("eco-devices identity not available, falling back to host identifier", zap.Error(err))
		identity = ecodevices.DeviceIdentity{Host: cfg.EcoDevices.Host, Port: cfg.EcoDevices.Port}
	default:
		client.Close()
		return nil, fmt.Errorf("cannot identify eco-devices %s:%d: %w", cfg.EcoDevices.Host, cfg.EcoDevices.Port, err)
	}
	if identity.Host == "" {
		identity.Host = cfg.EcoDevices.Host
		identity.Port = cfg.EcoDevices.Port
	}

	coord := coordinator.New(client, logger.With(zap.String("device", identity.Id())),
		coordinator.WithTimeout(cfg.EcoDevices.Timeout()+time.Second))

	state := coord.Refresh(ctx)
	if state.Status == coordinator.StatusFailed {
		client.Close()
		return nil, fmt.Errorf("first eco-devices poll failed: %w", state.Err)
	}

	generation, err := metric.ParseGeneration(cfg.EcoDevices.Generation)
	if err != nil {
		client.Close()
		return nil, err
	}
	if generation == metric.GENERATION_AUTO {
		generation = metric.GENERATION_CURRENT
		if state.HasSnapshot() {
			generation = metric.DetectGeneration(state.Snapshot)
		}
		logger.Info("eco-devices firmware generation detected", zap.String("generation", string(generation)))
	}

	catalog, err := metric.BuildCatalog(MetricOptions(cfg), generation)
	if err != nil {
		client.Close()
		return nil, err
	}

	logger.Info("eco-devices ready",
		zap.String("id", identity.Id()),
		zap.String("version", identity.Version),
		zap.Int("metrics", catalog.Len()))

	return &Controller{
		cfg:         cfg,
		client:      client,
		identity:    identity,
		coordinator: coord,
		catalog:     catalog,
		logger:      logger,
	}, nil
}

// MetricOptions maps the channel configuration to catalog options.
func MetricOptions(cfg config.Config) metric.Options {
	var opts metric.Options
	for i, ti := range []config.TeleinfoConfig{cfg.Teleinfo1, cfg.Teleinfo2} {
		opts.Teleinfo = append(opts.Teleinfo, metric.TeleinfoOptions{
			Input:   i + 1,
			Enabled: ti.Enabled,
			Scheme:  metric.Scheme(strings.ToLower(ti.Scheme)),
		})
	}
	for i, m := range []config.MeterConfig{cfg.Meter1, cfg.Meter2} {
		opts.Meters = append(opts.Meters, metric.MeterOptions{
			Input:         i + 1,
			Enabled:       m.Enabled,
			Unit:          m.Unit,
			TotalUnit:     m.TotalUnit,
			DeviceClass:   m.DeviceClass,
			DividerFactor: m.DividerFactor,
			ZeroGuard:     m.ZeroGuard,
		})
	}
	return opts
}

// Teardown releases the HTTP session.
func (c *Controller) Teardown() {
	c.client.Close()
}

func (c *Controller) Config() config.Config {
	return c.cfg
}

func (c *Controller) Identity() ecodevices.DeviceIdentity {
	return c.identity
}

func (c *Controller) Catalog() *metric.Catalog {
	return c.catalog
}

func (c *Controller) Refresh(ctx context.Context) coordinator.PollState {
	return c.coordinator.Refresh(ctx)
}

func (c *Controller) Current() coordinator.PollState {
	return c.coordinator.Current()
}

// Readings evaluates the catalog against a poll state. States without a
// snapshot produce no readings and a stale snapshot only produces unavailable
// ones. Nothing is logged, it is safe on every state query and scrape.
func (c *Controller) Readings(state coordinator.PollState) []metric.Reading {
	return c.readings(state, nil)
}

// PollReadings is Readings for the state returned by a refresh. Guard hits
// and missing data of a fresh snapshot are logged once per poll.
func (c *Controller) PollReadings(state coordinator.PollState) []metric.Reading {
	if state.Status != coordinator.StatusFresh {
		return c.readings(state, nil)
	}
	return c.readings(state, c.logger)
}

func (c *Controller) readings(state coordinator.PollState, logger *zap.Logger) []metric.Reading {
	if !state.HasSnapshot() {
		return nil
	}
	readings := metric.Evaluate(c.catalog, state.Snapshot, logger)
	if state.Status == coordinator.StatusStale {
		// the gateway stopped answering: the last values are not live
		for i := range readings {
			readings[i].Value = metric.Unavailable(readings[i].Value.Type)
		}
	}
	return readings
}
