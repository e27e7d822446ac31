package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "apiproxy"

// promMetrics mirrors collector events as Prometheus series on a private
// registry, so several collectors can coexist in one process.
type promMetrics struct {
	registry           *prometheus.Registry
	requests           *prometheus.CounterVec
	responses          *prometheus.CounterVec
	duration           *prometheus.HistogramVec
	transportErrors    *prometheus.CounterVec
	resolutionFailures prometheus.Counter
	healthy            *prometheus.GaugeVec
}

func newPromMetrics() *promMetrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &promMetrics{
		registry: registry,
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Requests resolved to an upstream target",
			},
			[]string{"target"},
		),
		responses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "responses_total",
				Help:      "Responses returned to callers by status code",
			},
			[]string{"target", "code"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_duration_seconds",
				Help:      "Time from sending the upstream request to the end of the relayed body",
				Buckets: []float64{
					.005, .01, .025, .05,
					.1, .25, .5, 1,
					2.5, 5, 10, 30,
				},
			},
			[]string{"target"},
		),
		transportErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transport_errors_total",
				Help:      "Upstream calls that failed before a response arrived",
			},
			[]string{"target", "kind"},
		),
		resolutionFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolution_failures_total",
				Help:      "Requests rejected because no target could be resolved",
			},
		),
		healthy: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "connection_healthy",
				Help:      "Last health probe result per connection (1 healthy, 0 down)",
			},
			[]string{"target"},
		),
	}
}

func (p *promMetrics) observe(event MetricEvent) {
	switch event.Type {
	case EventRequestReceived:
		p.requests.WithLabelValues(event.Target).Inc()

	case EventResolutionFailed:
		p.resolutionFailures.Inc()

	case EventResponseCompleted:
		p.responses.WithLabelValues(event.Target, strconv.Itoa(event.StatusCode)).Inc()
		if event.Duration > 0 {
			p.duration.WithLabelValues(event.Target).Observe(event.Duration.Seconds())
		}

	case EventTransportError:
		p.transportErrors.WithLabelValues(event.Target, event.ErrorKind).Inc()

	case EventHealthChanged:
		value := 0.0
		if event.Healthy {
			value = 1
		}
		p.healthy.WithLabelValues(event.Target).Set(value)
	}
}
