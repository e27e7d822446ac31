// Package metrics collects forwarding statistics per upstream target.
//
// Request handlers emit events on a buffered channel with non-blocking
// sends; a single collector goroutine folds them into counters so the
// request path never waits on metrics. A target is either a registry
// connection name or, for every direct request, "direct".
//
// Tracked per target:
//   - request count
//   - response status code distribution
//   - response times (average, P50, P95, P99)
//   - transport errors by kind
//   - probe health, when health checking is enabled
//
// The same events are exported in the Prometheus text format through
// PrometheusHandler, on a registry private to the collector.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventResponseCompleted,
//		Target:     "prod",
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//	})
//
//	snapshot := collector.Snapshot()
package metrics
