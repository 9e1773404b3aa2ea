// Package metrics exposes Prometheus collectors for dispatches, bus
// publishes and HTTP requests.
//
// Collectors live on their own registry rather than the global default so
// several instances can coexist in tests.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/tabi-core/internal/dispatch"
)

const namespace = "tabi"

// Collectors holds every metric the backend exports.
type Collectors struct {
	registry *prometheus.Registry

	Dispatches      *prometheus.CounterVec
	Outcomes        *prometheus.CounterVec
	PublishDuration *prometheus.HistogramVec
	HTTPRequests    *prometheus.CounterVec
	BusConnected    prometheus.GaugeFunc
}

// New creates and registers the collectors. connected feeds the
// tabi_bus_connected gauge; it may be nil.
func New(connected func() bool) *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		Dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatches_total",
				Help:      "Dispatches that reached the bus, by kind and command.",
			},
			[]string{"kind", "command"},
		),
		Outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_outcomes_total",
				Help:      "Per-device publish outcomes, by command and status.",
			},
			[]string{"command", "status"},
		),
		PublishDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "publish_duration_seconds",
				Help:      "Time spent in a single bus publish, including the broker acknowledgement.",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"result"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route pattern, method and status code.",
			},
			[]string{"route", "method", "code"},
		),
	}

	if connected == nil {
		connected = func() bool { return false }
	}
	c.BusConnected = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bus_connected",
			Help:      "1 when the MQTT client has a live session.",
		},
		func() float64 {
			if connected() {
				return 1
			}
			return 0
		},
	)

	c.registry.MustRegister(
		c.Dispatches,
		c.Outcomes,
		c.PublishDuration,
		c.HTTPRequests,
		c.BusConnected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry the collectors are registered on.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordDispatch counts a dispatch and each of its outcomes.
func (c *Collectors) RecordDispatch(_ context.Context, rec dispatch.Record) error {
	cmd := rec.Command.Wire()
	c.Dispatches.WithLabelValues(string(rec.Kind), cmd).Inc()
	for _, o := range rec.Outcomes {
		c.Outcomes.WithLabelValues(cmd, string(o.Status)).Inc()
	}
	return nil
}

// ObserveHTTP counts one request.
func (c *Collectors) ObserveHTTP(route, method string, code int) {
	c.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
}

// InstrumentPublisher wraps p so every publish is timed.
func (c *Collectors) InstrumentPublisher(p dispatch.Publisher) dispatch.Publisher {
	return &instrumentedPublisher{next: p, hist: c.PublishDuration}
}

type instrumentedPublisher struct {
	next dispatch.Publisher
	hist *prometheus.HistogramVec
}

func (p *instrumentedPublisher) Publish(topic string, payload []byte) error {
	start := time.Now()
	err := p.next.Publish(topic, payload)
	result := "success"
	if err != nil {
		result = "error"
	}
	p.hist.WithLabelValues(result).Observe(time.Since(start).Seconds())
	return err
}

func (p *instrumentedPublisher) IsConnected() bool {
	return p.next.IsConnected()
}
