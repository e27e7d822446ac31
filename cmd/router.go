package main

import (
	"net/http"
	"strings"

	"github.com/angeloszaimis/api-proxy/internal/metrics"
)

const (
	metricsPath           = "/metrics"
	prometheusMetricsPath = "/metrics/prometheus"
)

// router sends everything under the mount prefix straight to the gateway.
// http.ServeMux would clean "//" and "." segments with a redirect, which
// drops request bodies, so it only serves the metrics routes.
type router struct {
	mount   string
	gateway http.Handler
	metrics bool
	mux     *http.ServeMux
}

// setupRouter serves the gateway under mountPath and, when a collector is
// given, the metrics snapshot at /metrics and its Prometheus exposition at
// /metrics/prometheus.
func setupRouter(gateway http.Handler, metricsCollector *metrics.Collector, mountPath string) http.Handler {
	mux := http.NewServeMux()

	if metricsCollector != nil {
		mux.HandleFunc("GET "+metricsPath, metricsCollector.Handler())
		mux.Handle("GET "+prometheusMetricsPath, metricsCollector.PrometheusHandler())
	}

	return &router{
		mount:   strings.TrimSuffix(mountPath, "/"),
		gateway: gateway,
		metrics: metricsCollector != nil,
		mux:     mux,
	}
}

func (rt *router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if rt.mounted(r.URL.Path) && !rt.isMetrics(r) {
		rt.gateway.ServeHTTP(w, r)
		return
	}

	rt.mux.ServeHTTP(w, r)
}

func (rt *router) mounted(path string) bool {
	if rt.mount == "" {
		return true
	}
	return path == rt.mount || strings.HasPrefix(path, rt.mount+"/")
}

func (rt *router) isMetrics(r *http.Request) bool {
	if !rt.metrics || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
		return false
	}
	return r.URL.Path == metricsPath || r.URL.Path == prometheusMetricsPath
}
