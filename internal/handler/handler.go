package handler

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/angeloszaimis/api-proxy/internal/backend"
	"github.com/angeloszaimis/api-proxy/internal/forwarder"
	"github.com/angeloszaimis/api-proxy/internal/metrics"
	"github.com/angeloszaimis/api-proxy/internal/resolver"
	"github.com/angeloszaimis/api-proxy/pkg/logger"
	"github.com/google/uuid"
)

// statusClientClosedRequest is recorded when the caller disconnected before
// any response was written.
const statusClientClosedRequest = 499

// requestIDHeader is read from callers that already carry a correlation id.
// It only labels log records and is never sent upstream.
const requestIDHeader = "X-Request-ID"

// directTarget is the metrics label shared by every u= request.
const directTarget = "direct"

type GatewayHandler struct {
	logger           *slog.Logger
	resolver         *resolver.Resolver
	builder          *backend.Builder
	forwarder        *forwarder.Forwarder
	metricsCollector *metrics.Collector
	mountPath        string
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (g *GatewayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientIP := extractClientIP(r)

	log := g.logger.With(slog.String("request_id", requestID(r)))
	r = r.WithContext(logger.IntoContext(r.Context(), log))

	log.Info("Received request",
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("proto", r.Proto),
		slog.String("user_agent", r.UserAgent()))

	target, err := g.resolver.Resolve(r.Method, g.pathSuffix(r.URL.Path), r.URL.Query())
	if err != nil {
		var resErr *resolver.ResolutionError
		if !errors.As(err, &resErr) {
			resErr = &resolver.ResolutionError{Reason: err.Error()}
		}

		log.Warn("Unable to resolve target",
			slog.String("client", clientIP),
			slog.String("reason", resErr.Reason))
		g.metricsCollector.Emit(metrics.MetricEvent{Type: metrics.EventResolutionFailed})

		forwarder.WriteText(w, http.StatusBadRequest, "Unable to connect. Reason: "+resErr.Reason)
		return
	}

	label := targetLabel(target)
	g.metricsCollector.Emit(metrics.MetricEvent{
		Type:   metrics.EventRequestReceived,
		Target: label,
	})

	out, err := g.builder.Build(target, r)
	if err != nil {
		code := http.StatusBadRequest
		var bodyErr *backend.BodyError
		if errors.As(err, &bodyErr) {
			code = bodyErr.StatusCode
		}

		log.Warn("Unable to build upstream request",
			slog.String("client", clientIP),
			slog.String("target", label),
			slog.String("upstream_host", upstreamHost(target)),
			slog.Any("err", err))

		forwarder.WriteText(w, code, "Unable to parse request body: "+err.Error())
		g.metricsCollector.Emit(metrics.MetricEvent{
			Type:       metrics.EventResponseCompleted,
			Target:     label,
			StatusCode: code,
		})
		return
	}

	log.Debug("Forwarding to upstream",
		slog.String("client", clientIP),
		slog.String("target", label),
		slog.String("upstream_host", upstreamHost(target)),
		slog.String("method", out.Method),
		slog.String("url", out.URL))

	wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	res := g.forwarder.Forward(wrapped, r, out)

	if res.Err != nil {
		g.metricsCollector.Emit(metrics.MetricEvent{
			Type:      metrics.EventTransportError,
			Target:    label,
			ErrorKind: res.Err.Kind.String(),
		})
	}

	status := wrapped.statusCode
	if res.StatusCode == 0 {
		status = statusClientClosedRequest
	}
	g.metricsCollector.Emit(metrics.MetricEvent{
		Type:       metrics.EventResponseCompleted,
		Target:     label,
		Duration:   res.Duration,
		StatusCode: status,
	})
}

// pathSuffix returns the request path below the mount prefix without its
// leading slash.
func (g *GatewayHandler) pathSuffix(path string) string {
	suffix := strings.TrimPrefix(path, g.mountPath)
	return strings.TrimPrefix(suffix, "/")
}

// targetLabel names a target for metrics. Named connections come from
// configuration; direct targets are chosen by callers, so they share a
// single label and the host only appears in logs.
func targetLabel(t resolver.Target) string {
	if t.Connection != "" {
		return t.Connection
	}
	return directTarget
}

func upstreamHost(t resolver.Target) string {
	if u, err := url.Parse(t.URL); err == nil {
		return u.Host
	}
	return ""
}

func requestID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(requestIDHeader)); id != "" {
		return id
	}
	return uuid.New().String()
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer for flushes.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// NewGatewayHandler wires the request pipeline. collector may be nil.
// mountPath is the prefix the handler is served under, such as "/api".
func NewGatewayHandler(
	logger *slog.Logger,
	targetResolver *resolver.Resolver,
	requestBuilder *backend.Builder,
	fwd *forwarder.Forwarder,
	collector *metrics.Collector,
	mountPath string,
) *GatewayHandler {
	return &GatewayHandler{
		logger:           logger,
		resolver:         targetResolver,
		builder:          requestBuilder,
		forwarder:        fwd,
		metricsCollector: collector,
		mountPath:        strings.TrimSuffix(mountPath, "/"),
	}
}
