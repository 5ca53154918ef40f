// Package metrics exposes the gateway readings and the device request timings
// to prometheus.
package metrics

import (
	"errors"
	"time"

	"github.com/berfenger/ecodevices2mqtt/internal/controller"
	"github.com/berfenger/ecodevices2mqtt/internal/core/coordinator"
	"github.com/berfenger/ecodevices2mqtt/internal/core/metric"
	"github.com/berfenger/ecodevices2mqtt/pkg/ecodevices"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ecodevices"

var allStatuses = []coordinator.Status{
	coordinator.StatusUnpolled,
	coordinator.StatusFresh,
	coordinator.StatusStale,
	coordinator.StatusFailed,
}

type ControllerProvider interface {
	Controller() (*controller.Controller, error)
}

// Collector reads the current poll state of the gateway on every scrape.
// It never triggers a device request.
type Collector struct {
	controllers ControllerProvider

	readingDesc   *prometheus.Desc
	statusDesc    *prometheus.Desc
	lastPollDesc  *prometheus.Desc
	availableDesc *prometheus.Desc
}

func NewCollector(controllers ControllerProvider) *Collector {
	return &Collector{
		controllers: controllers,
		readingDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "reading"),
			"Current value of a numeric gateway metric.",
			[]string{"metric", "channel", "unit"}, nil),
		statusDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "poll", "status"),
			"Poll status of the gateway, 1 for the current status.",
			[]string{"status"}, nil),
		lastPollDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "poll", "updated_timestamp_seconds"),
			"Time of the last completed refresh.",
			nil, nil),
		availableDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "reading_available"),
			"Whether a gateway metric currently has a value.",
			[]string{"metric", "channel"}, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.readingDesc
	ch <- c.statusDesc
	ch <- c.lastPollDesc
	ch <- c.availableDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctrl, err := c.controllers.Controller()
	if err != nil {
		return
	}
	state := ctrl.Current()

	for _, status := range allStatuses {
		value := 0.0
		if status == state.Status {
			value = 1
		}
		ch <- prometheus.MustNewConstMetric(c.statusDesc, prometheus.GaugeValue, value, status.String())
	}
	if !state.UpdatedAt.IsZero() {
		ch <- prometheus.MustNewConstMetric(c.lastPollDesc, prometheus.GaugeValue, float64(state.UpdatedAt.Unix()))
	}

	for _, r := range ctrl.Readings(state) {
		available := 0.0
		if r.Value.Available {
			available = 1
		}
		ch <- prometheus.MustNewConstMetric(c.availableDesc, prometheus.GaugeValue, available, r.Spec.Id, r.Spec.Channel)

		if !r.Value.Available {
			continue
		}
		if value, ok := numericValue(r.Value); ok {
			ch <- prometheus.MustNewConstMetric(c.readingDesc, prometheus.GaugeValue, value, r.Spec.Id, r.Spec.Channel, r.Spec.Unit)
		}
	}
}

func numericValue(v metric.Value) (float64, bool) {
	switch v.Type {
	case metric.ValueNumber:
		return v.Number, true
	case metric.ValueBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// RequestRecorder is a histogram of gateway request durations, fed by the
// client instrumentation hook.
type RequestRecorder struct {
	seconds *prometheus.HistogramVec
}

func NewRequestRecorder() *RequestRecorder {
	return &RequestRecorder{
		seconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "request_duration_seconds",
			Help:      "Duration of requests to the gateway JSON API.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"command", "result"}),
	}
}

func (r *RequestRecorder) Instrument() *ecodevices.Instrument {
	return &ecodevices.Instrument{
		RecordTime: func(cmd ecodevices.Command, readTime time.Duration, err error) {
			r.seconds.WithLabelValues(cmd.String(), requestResult(err)).Observe(readTime.Seconds())
		},
	}
}

func (r *RequestRecorder) Describe(ch chan<- *prometheus.Desc) {
	r.seconds.Describe(ch)
}

func (r *RequestRecorder) Collect(ch chan<- prometheus.Metric) {
	r.seconds.Collect(ch)
}

func requestResult(err error) string {
	var authErr *ecodevices.AuthError
	var protoErr *ecodevices.ProtocolError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &authErr):
		return "auth_error"
	case errors.As(err, &protoErr):
		return "protocol_error"
	default:
		return "connect_error"
	}
}

// Register adds both collectors to reg.
func Register(reg prometheus.Registerer, collector *Collector, recorder *RequestRecorder) error {
	if err := reg.Register(collector); err != nil {
		return err
	}
	return reg.Register(recorder)
}

var (
	_ prometheus.Collector = (*Collector)(nil)
	_ prometheus.Collector = (*RequestRecorder)(nil)
)
